package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mintgate/mintgate-go/pkg/admission"
	"github.com/mintgate/mintgate-go/pkg/ledger"
	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/registry"
)

// Server exposes the claim, query, and administrative interfaces over
// HTTP.
//
// Claim flow: the external relayer (the authorized submitter) posts
// (identity, campaign id, proof) to /claim, asserting its role via the
// X-Submitter-Address header; the admission controller enforces the role
// match. Admin endpoints require a verified JWT. The query surface is
// unauthenticated and read-only.
type Server struct {
	controller *admission.Controller
	registry   *registry.Registry
	ledger     *ledger.Ledger
	store      persistence.Store

	auth    *AdminAuthenticator
	limiter *rate.Limiter
	logger  *zap.Logger

	// now is injectable for handler tests; every time-dependent check
	// uses the value captured at the moment of the request.
	now func() time.Time

	httpServer *http.Server
}

// NewServer wires the HTTP surface. claimRate is sustained claims/sec
// accepted before shedding with 429; zero disables limiting.
func NewServer(port int, controller *admission.Controller, reg *registry.Registry, led *ledger.Ledger, store persistence.Store, auth *AdminAuthenticator, claimRate float64, logger *zap.Logger) *Server {
	s := &Server{
		controller: controller,
		registry:   reg,
		ledger:     led,
		store:      store,
		auth:       auth,
		logger:     logger,
		now:        time.Now,
	}

	if claimRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(claimRate), int(claimRate*2)+1)
	}

	mux := http.NewServeMux()

	// Claim interface (relayer-facing)
	mux.HandleFunc("POST /claim", s.handleClaim)

	// Query interface
	mux.HandleFunc("GET /campaigns", s.handleListCampaigns)
	mux.HandleFunc("GET /campaigns/{id}", s.handleGetCampaign)
	mux.HandleFunc("GET /campaigns/{id}/eligibility", s.handleEligibility)
	mux.HandleFunc("GET /credentials/{id}/metadata", s.handleMetadata)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Administrative interface (JWT-gated)
	mux.HandleFunc("POST /admin/campaigns", s.adminOnly(s.handleCreateCampaign))
	mux.HandleFunc("PUT /admin/campaigns/{id}", s.adminOnly(s.handleUpdateCampaign))
	mux.HandleFunc("DELETE /admin/campaigns/{id}", s.adminOnly(s.handleDeleteCampaign))
	mux.HandleFunc("POST /admin/campaigns/{id}/activate", s.adminOnly(s.handleActivateCampaign))
	mux.HandleFunc("PUT /admin/campaigns/{id}/metadata", s.adminOnly(s.handleSetMetadataLocator))
	mux.HandleFunc("POST /admin/credentials/{id}/revoke", s.adminOnly(s.handleRevokeCredential))
	mux.HandleFunc("POST /admin/pause", s.adminOnly(s.handlePause))
	mux.HandleFunc("POST /admin/unpause", s.adminOnly(s.handleUnpause))
	mux.HandleFunc("POST /admin/submitter", s.adminOnly(s.handleRotateSubmitter))

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return s
}

// Start serves in a background goroutine.
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing).
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
