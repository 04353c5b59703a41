package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// bigIntable is the duck-typed conversion method carried by big-integer-like
// decode results (decimal types, wrapped words). It is checked before any
// plain numeric coercion.
type bigIntable interface {
	BigInt() *big.Int
}

// AsBigInt normalizes a numeric value decoded off the chain into *big.Int.
// Depending on the RPC library path, on-chain integers arrive as *big.Int,
// big-integer-like objects, plain numbers, or numeric strings; every numeric
// field read from the contract must pass through here, with no call-site
// exceptions.
func AsBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case nil:
		return nil, fmt.Errorf("cannot normalize nil numeric value")
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("cannot normalize nil *big.Int")
		}
		return new(big.Int).Set(n), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case bigIntable:
		out := n.BigInt()
		if out == nil {
			return nil, fmt.Errorf("BigInt conversion returned nil")
		}
		return out, nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case float64:
		f := big.NewFloat(n)
		out, acc := f.Int(nil)
		if acc != big.Exact {
			return nil, fmt.Errorf("numeric value %v is not an integer", n)
		}
		return out, nil
	case json.Number:
		return parseBigString(string(n))
	case string:
		return parseBigString(n)
	default:
		return nil, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// AsUint64 normalizes like AsBigInt and range-checks the result.
func AsUint64(v interface{}) (uint64, error) {
	n, err := AsBigInt(v)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("numeric value %s out of uint64 range", n)
	}
	return n.Uint64(), nil
}

// AsInt64 normalizes like AsBigInt and range-checks the result.
func AsInt64(v interface{}) (int64, error) {
	n, err := AsBigInt(v)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("numeric value %s out of int64 range", n)
	}
	return n.Int64(), nil
}

func parseBigString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty numeric string")
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}

	out, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("malformed numeric string %q", s)
	}
	return out, nil
}
