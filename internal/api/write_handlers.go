package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/chainraise/chainraise/internal/notify"
	"github.com/chainraise/chainraise/internal/tracker"
	"github.com/chainraise/chainraise/internal/types"
)

// Write handlers. Every write shows one of three end states: success with
// confirmation, explicit failure with the best available reason, or
// submitted-but-unconfirmed prompting manual verification. No silent
// failures.

type CreateCampaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Goal        string `json:"goal"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	s.submitWrite(w, r, types.OpCreateCampaign, nil, func(ctx context.Context) (common.Hash, error) {
		return s.gateway.CreateCampaign(ctx, req.Name, req.Description, req.Goal)
	})
}

type DonateRequest struct {
	Amount  string `json:"amount"`
	Message string `json:"message"`
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	var req DonateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// The required chain is negotiated before the donation is dispatched;
	// a failed switch means nothing is submitted.
	if err := s.wallets.EnsureChain(r.Context()); err != nil {
		s.notifier.Error(r.Context(), "Donation not submitted", tracker.RevertReason(err))
		respondTaxonomyError(w, err)
		return
	}

	s.submitWrite(w, r, types.OpDonate, &id, func(ctx context.Context) (common.Hash, error) {
		return s.gateway.Donate(ctx, id, req.Amount, req.Message)
	})
}

func (s *Server) handleCloseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	s.submitWrite(w, r, types.OpCloseCampaign, &id, func(ctx context.Context) (common.Hash, error) {
		return s.gateway.CloseCampaign(ctx, id)
	})
}

func (s *Server) handleWithdrawFunds(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	s.submitWrite(w, r, types.OpWithdrawFunds, &id, func(ctx context.Context) (common.Hash, error) {
		return s.gateway.WithdrawFunds(ctx, id)
	})
}

// submitWrite dispatches one state-changing operation and hands the resulting
// transaction to the confirmation tracker.
func (s *Server) submitWrite(w http.ResponseWriter, r *http.Request, op types.WriteOp, campaignID *uint64, submit func(context.Context) (common.Hash, error)) {
	hash, err := submit(r.Context())
	if err != nil {
		err = tracker.ClassifySubmission(err)
		s.notifier.Publish(r.Context(), &notify.Event{
			Level:   notify.LevelError,
			Title:   fmt.Sprintf("%s failed", opTitle(op)),
			Message: tracker.RevertReason(err),
			Op:      op,
		})
		respondTaxonomyError(w, err)
		return
	}

	pending := types.PendingTx{
		TrackingID:  uuid.NewString(),
		TxHash:      hash.Hex(),
		Op:          op,
		CampaignID:  campaignID,
		SubmittedAt: time.Now().UTC(),
	}
	s.tracker.Register(pending)
	s.tracker.Track(context.Background(), s.client, pending.TrackingID, s.onConfirmed, s.onTerminal)

	respondJSON(w, http.StatusAccepted, pending)
}

// onConfirmed performs the single reload of dependent read state after a
// confirmed write.
func (s *Server) onConfirmed(p types.PendingTx) {
	ctx := context.Background()

	if p.CampaignID != nil {
		s.snapshots.InvalidateCampaign(*p.CampaignID)
	} else {
		s.snapshots.Clear()
	}

	campaigns, err := s.gateway.ListCampaigns(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to reload campaigns after confirmation")
		return
	}
	s.snapshots.SetCampaigns(campaigns)

	if p.CampaignID != nil {
		donations, err := s.gateway.GetCampaignDonations(ctx, *p.CampaignID)
		if err != nil {
			s.logger.Warn().Err(err).Uint64("campaign_id", *p.CampaignID).Msg("Failed to reload donations after confirmation")
			return
		}
		s.snapshots.SetDonations(*p.CampaignID, donations)
	}
}

// onTerminal turns every terminal tracking state into a visible notification.
func (s *Server) onTerminal(p types.PendingTx) {
	ctx := context.Background()
	event := &notify.Event{
		Op:         p.Op,
		TxHash:     p.TxHash,
		TrackingID: p.TrackingID,
	}

	switch {
	case p.State.Confirmed():
		event.Level = notify.LevelSuccess
		event.Title = fmt.Sprintf("%s confirmed", opTitle(p.Op))
	case p.State == types.TxStateReverted:
		event.Level = notify.LevelError
		event.Title = fmt.Sprintf("%s reverted", opTitle(p.Op))
		event.Message = p.Reason
	default:
		event.Level = notify.LevelInfo
		event.Title = fmt.Sprintf("%s unconfirmed", opTitle(p.Op))
		event.Message = "The transaction was submitted but no receipt was observed. Verify it manually on the explorer."
	}

	s.notifier.Publish(ctx, event)
}

func opTitle(op types.WriteOp) string {
	switch op {
	case types.OpCreateCampaign:
		return "Campaign creation"
	case types.OpDonate:
		return "Donation"
	case types.OpCloseCampaign:
		return "Campaign closure"
	case types.OpWithdrawFunds:
		return "Withdrawal"
	default:
		return "Transaction"
	}
}
