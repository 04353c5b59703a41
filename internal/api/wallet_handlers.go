package api

import (
	"encoding/json"
	"net/http"
)

// Wallet session handlers

func (s *Server) handleWalletSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.wallets.Session())
}

func (s *Server) handleWalletProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.wallets.Providers()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"total":     len(providers),
	})
}

type WalletConnectRequest struct {
	ProviderID string `json:"provider_id"`
}

func (s *Server) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	var req WalletConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ProviderID == "" {
		respondError(w, http.StatusBadRequest, "provider_id is required", nil)
		return
	}

	session, err := s.wallets.Connect(r.Context(), req.ProviderID)
	if err != nil {
		respondTaxonomyError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

type WalletSelectRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleWalletSelect(w http.ResponseWriter, r *http.Request) {
	var req WalletSelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Address == "" {
		respondError(w, http.StatusBadRequest, "address is required", nil)
		return
	}

	session, err := s.wallets.SelectAccount(r.Context(), req.Address)
	if err != nil {
		respondTaxonomyError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// handleWalletChain requests a switch to the required chain without blocking;
// the outcome is observed through the session.
func (s *Server) handleWalletChain(w http.ResponseWriter, r *http.Request) {
	session := s.wallets.Session()
	if !session.Connected {
		respondError(w, http.StatusUnauthorized, "no wallet connected", nil)
		return
	}

	s.wallets.RequireChain()

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":            "switch requested",
		"current_chain_id":  session.ChainID,
		"required_chain_id": s.client.Network().ChainID,
	})
}

func (s *Server) handleWalletDisconnect(w http.ResponseWriter, r *http.Request) {
	s.wallets.Disconnect()
	respondJSON(w, http.StatusOK, s.wallets.Session())
}
