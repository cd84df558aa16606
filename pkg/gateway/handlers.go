package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mintgate/mintgate-go/pkg/types"
)

// handleClaim admits an identity into a campaign. The relayer asserts its
// submitter role via the X-Submitter-Address header; the controller
// enforces the role match.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Sugar().Warnw("Claim rate limited", "request_id", requestID)
		writeJSON(w, http.StatusTooManyRequests, types.ErrorResponse{Error: "rate limit exceeded"})
		return
	}

	var req types.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("failed to parse request: %v: %w", err, types.ErrInvalidInput))
		return
	}

	if !common.IsHexAddress(req.Identity) {
		writeError(w, fmt.Errorf("malformed identity %q: %w", req.Identity, types.ErrInvalidInput))
		return
	}
	identity := common.HexToAddress(req.Identity)

	submitterHeader := r.Header.Get("X-Submitter-Address")
	var submitter types.Identity
	if common.IsHexAddress(submitterHeader) {
		submitter = common.HexToAddress(submitterHeader)
	}

	proof := make([][32]byte, len(req.Proof))
	for i, node := range req.Proof {
		proof[i] = [32]byte(node)
	}

	credentialID, err := s.controller.Claim(submitter, identity, types.CampaignID(req.CampaignID), proof, s.now())
	if err != nil {
		s.logger.Sugar().Infow("Claim rejected",
			"request_id", requestID,
			"campaign_id", req.CampaignID,
			"identity", identity.Hex(),
			"reason", err)
		writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Claim accepted",
		"request_id", requestID,
		"campaign_id", req.CampaignID,
		"identity", identity.Hex(),
		"credential_id", credentialID)

	writeJSON(w, http.StatusOK, types.ClaimResponse{CredentialID: uint64(credentialID)})
}

// campaignResponse converts a campaign to its wire shape.
func campaignResponse(c *types.Campaign) types.CampaignResponse {
	return types.CampaignResponse{
		ID:              uint64(c.ID),
		Root:            types.HexHash(c.Root),
		StartTime:       c.StartTime.Unix(),
		EndTime:         c.EndTime.Unix(),
		Capacity:        c.Capacity,
		MintedCount:     c.MintedCount,
		IsActive:        c.IsActive,
		MetadataLocator: c.MetadataLocator,
	}
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("malformed id %q: %w", r.PathValue("id"), types.ErrInvalidInput)
	}
	return id, nil
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns := s.registry.ListCampaigns()
	out := make([]types.CampaignResponse, 0, len(campaigns))
	for _, campaign := range campaigns {
		out = append(out, campaignResponse(campaign))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	campaign, err := s.registry.GetCampaign(types.CampaignID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignResponse(campaign))
}

// handleEligibility is the read-only pre-flight: it replicates the
// campaign-side admission checks without requiring a proof.
func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	identityParam := r.URL.Query().Get("identity")
	if !common.IsHexAddress(identityParam) {
		writeError(w, fmt.Errorf("malformed identity %q: %w", identityParam, types.ErrInvalidInput))
		return
	}

	err = s.controller.Qualify(common.HexToAddress(identityParam), types.CampaignID(id), s.now())
	if err != nil {
		writeJSON(w, http.StatusOK, types.EligibilityResponse{Eligible: false, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.EligibilityResponse{Eligible: true})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	locator, err := s.ledger.ResolveMetadata(types.CredentialID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MetadataResponse{CredentialID: id, Locator: locator})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.HealthCheck(); err != nil {
			s.logger.Sugar().Errorw("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Error: "store unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
