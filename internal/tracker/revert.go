package tracker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainraise/chainraise/internal/types"
)

var revertPattern = regexp.MustCompile(`execution reverted:?\s*(.*)`)

// dataError is the structured error payload some RPC backends attach to a
// reverted call, carrying the ABI-encoded revert reason.
type dataError interface {
	ErrorData() interface{}
}

// RevertReason extracts the best available human-readable reason from a
// rejection. Decoding is attempted in order: the structured error payload,
// then pattern extraction from an "execution reverted:" message, then the raw
// error message, then a generic fallback.
func RevertReason(err error) string {
	if err == nil {
		return "Unknown error"
	}

	var de dataError
	if errors.As(err, &de) {
		if reason := decodeErrorData(de.ErrorData()); reason != "" {
			return reason
		}
	}

	msg := err.Error()
	if m := revertPattern.FindStringSubmatch(msg); m != nil {
		if reason := strings.TrimSpace(m[1]); reason != "" {
			return reason
		}
	}

	if strings.TrimSpace(msg) != "" {
		return msg
	}
	return "Unknown error"
}

func decodeErrorData(data interface{}) string {
	hexData, ok := data.(string)
	if !ok {
		return ""
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return ""
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return ""
	}
	return reason
}

// ClassifySubmission maps a synchronous submission failure onto the error
// taxonomy. Errors already carrying a taxonomy sentinel pass through; wallet
// rejections and revert-shaped failures are wrapped accordingly.
func ClassifySubmission(err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{
		types.ErrProviderUnavailable,
		types.ErrNoWalletConnected,
		types.ErrWrongNetwork,
		types.ErrChainUnavailable,
		types.ErrContractNotFound,
		types.ErrInvalidInput,
		types.ErrUserRejected,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if types.IsReverted(err) {
		return err
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "user rejected") ||
		strings.Contains(msg, "request rejected") {
		return fmt.Errorf("%w: %v", types.ErrUserRejected, err)
	}

	var de dataError
	if strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "insufficient funds") ||
		errors.As(err, &de) {
		return types.NewRevertError(RevertReason(err))
	}

	return err
}
