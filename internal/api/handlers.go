package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/chainraise/chainraise/internal/types"
)

// Campaign handlers

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.listCampaigns(r)
	if err != nil {
		respondTaxonomyError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": campaigns,
		"total":     len(campaigns),
	})
}

func (s *Server) listCampaigns(r *http.Request) ([]types.Campaign, error) {
	if cached, ok := s.snapshots.GetCampaigns(); ok {
		return cached, nil
	}

	campaigns, err := s.gateway.ListCampaigns(r.Context())
	if err != nil {
		return nil, err
	}
	s.snapshots.SetCampaigns(campaigns)
	return campaigns, nil
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	campaign, err := s.gateway.GetCampaign(r.Context(), id)
	if err != nil {
		respondTaxonomyError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleListDonations(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromRequest(w, r)
	if !ok {
		return
	}

	donations, cached := s.snapshots.GetDonations(id)
	if !cached {
		var err error
		donations, err = s.gateway.GetCampaignDonations(r.Context(), id)
		if err != nil {
			respondTaxonomyError(w, err)
			return
		}
		s.snapshots.SetDonations(id, donations)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": id,
		"donations":   donations,
		"total":       len(donations),
	})
}

// Donor history handlers

func (s *Server) handleDonorHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	history, err := s.gateway.GetAllUserDonations(r.Context(), address)
	if err != nil {
		respondTaxonomyError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"donor":     address,
		"donations": history,
		"total":     len(history),
	})
}

// Transaction handlers

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := s.tracker.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total":        len(txs),
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trackingID := vars["id"]

	tx, ok := s.tracker.Get(trackingID)
	if !ok {
		respondError(w, http.StatusNotFound, "transaction not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// campaignIDFromRequest parses the {id} path variable, responding with a 400
// on malformed input.
func campaignIDFromRequest(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid campaign id", err)
		return 0, false
	}
	return id, true
}
