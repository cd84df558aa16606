package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintgate/mintgate-go/pkg/types"
)

// adminOnly gates a handler behind bearer-token verification.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Authenticate(r); err != nil {
			s.logger.Sugar().Warnw("Admin authentication failed",
				"path", r.URL.Path,
				"error", err)
			writeJSON(w, http.StatusUnauthorized, types.ErrorResponse{Error: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// decodeCampaignRequest parses the shared create/update body.
func decodeCampaignRequest(r *http.Request) (types.CampaignParams, error) {
	var req types.CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return types.CampaignParams{}, fmt.Errorf("failed to parse request: %v: %w", err, types.ErrInvalidInput)
	}
	return types.CampaignParams{
		Root:            [32]byte(req.Root),
		StartTime:       unixTime(req.StartTime),
		EndTime:         unixTime(req.EndTime),
		Capacity:        req.Capacity,
		MetadataLocator: req.MetadataLocator,
	}, nil
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	params, err := decodeCampaignRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	campaign, err := s.registry.CreateCampaign(params, s.now())
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Campaign created",
		"campaign_id", campaign.ID,
		"capacity", campaign.Capacity)
	writeJSON(w, http.StatusCreated, campaignResponse(campaign))
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	params, err := decodeCampaignRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	campaign, err := s.registry.UpdateCampaign(types.CampaignID(id), params, s.now())
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Campaign updated", "campaign_id", campaign.ID)
	writeJSON(w, http.StatusOK, campaignResponse(campaign))
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.registry.DeleteCampaign(types.CampaignID(id), s.now()); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Campaign deleted", "campaign_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// ?active=false deactivates; the default is activation.
	active := r.URL.Query().Get("active") != "false"

	if err := s.registry.SetActive(types.CampaignID(id), active, s.now()); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Campaign activation changed", "campaign_id", id, "active", active)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMetadataLocator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.MetadataLocatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("failed to parse request: %v: %w", err, types.ErrInvalidInput))
		return
	}

	if err := s.registry.SetMetadataLocator(types.CampaignID(id), req.MetadataLocator); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Campaign metadata locator updated", "campaign_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.controller.Revoke(types.CredentialID(id)); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Credential revoked", "credential_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Pause(); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Sugar().Warnw("Admission paused")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Unpause(); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Sugar().Infow("Admission unpaused")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRotateSubmitter(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("failed to parse request: %v: %w", err, types.ErrInvalidInput))
		return
	}

	if !common.IsHexAddress(req.Submitter) {
		writeError(w, fmt.Errorf("malformed submitter %q: %w", req.Submitter, types.ErrInvalidInput))
		return
	}

	if err := s.controller.RotateSubmitter(common.HexToAddress(req.Submitter)); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Authorized submitter rotated", "submitter", req.Submitter)
	w.WriteHeader(http.StatusNoContent)
}
