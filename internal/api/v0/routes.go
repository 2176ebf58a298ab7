// Package v0 provides the REST API handlers for subgraph directory access.
package v0

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/graphfoundry/subgraph-directory/internal/directory"
	"github.com/graphfoundry/subgraph-directory/internal/tiers"
	"github.com/graphfoundry/subgraph-directory/internal/versions"
)

// DeploymentSubgraphsResponse lists the subgraphs referencing a deployment,
// in upstream version order.
type DeploymentSubgraphsResponse struct {
	Deployment directory.DeploymentID `json:"deployment"`
	Subgraphs  []directory.Subgraph   `json:"subgraphs"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the directory API with dependency injection
type Routes struct {
	directory *directory.Directory
	tiers     *tiers.Tiers
}

// NewRoutes creates a new Routes instance with the provided collaborators
func NewRoutes(dir *directory.Directory, tierTable *tiers.Tiers) *Routes {
	return &Routes{
		directory: dir,
		tiers:     tierTable,
	}
}

// Router creates a new router for the directory API
func Router(dir *directory.Directory, tierTable *tiers.Tiers) http.Handler {
	routes := NewRoutes(dir, tierTable)

	r := chi.NewRouter()

	// Directory lookups
	r.Get("/deployments/{deploymentID}/subgraphs", routes.getDeploymentSubgraphs)
	r.Get("/subgraphs/{subgraphID}", routes.getSubgraph)

	// Tier lookups
	r.Get("/tiers", routes.listTiers)
	r.Get("/tiers/current", routes.getCurrentTier)
	r.Get("/tiers/next", routes.getNextTier)

	return r
}

// getDeploymentSubgraphs handles GET /v0/deployments/{deploymentID}/subgraphs.
// Unknown deployments yield an empty list, not an error.
func (rr *Routes) getDeploymentSubgraphs(w http.ResponseWriter, r *http.Request) {
	if !rr.directory.Ready() {
		rr.writeErrorResponse(w, "Directory not ready: no snapshot published yet", http.StatusServiceUnavailable)
		return
	}

	id := directory.DeploymentID(chi.URLParam(r, "deploymentID"))
	subgraphs := rr.directory.DeploymentSubgraphs(r.Context(), id)
	if subgraphs == nil {
		subgraphs = []directory.Subgraph{}
	}

	rr.writeJSONResponse(w, DeploymentSubgraphsResponse{
		Deployment: id,
		Subgraphs:  subgraphs,
	})
}

// getSubgraph handles GET /v0/subgraphs/{subgraphID}
func (rr *Routes) getSubgraph(w http.ResponseWriter, r *http.Request) {
	if !rr.directory.Ready() {
		rr.writeErrorResponse(w, "Directory not ready: no snapshot published yet", http.StatusServiceUnavailable)
		return
	}

	id := directory.SubgraphID(chi.URLParam(r, "subgraphID"))
	subgraph, ok := rr.directory.Subgraph(r.Context(), id)
	if !ok {
		rr.writeErrorResponse(w, "Subgraph not found", http.StatusNotFound)
		return
	}

	rr.writeJSONResponse(w, subgraph)
}

// listTiers handles GET /v0/tiers
func (rr *Routes) listTiers(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, rr.tiers.All())
}

// getCurrentTier handles GET /v0/tiers/current?rate=<numeric string>
func (rr *Routes) getCurrentTier(w http.ResponseWriter, r *http.Request) {
	rate, ok := rr.parseRateParam(w, r)
	if !ok {
		return
	}

	rr.writeJSONResponse(w, rr.tiers.TierForRate(rate))
}

// getNextTier handles GET /v0/tiers/next?rate=<numeric string>
func (rr *Routes) getNextTier(w http.ResponseWriter, r *http.Request) {
	rate, ok := rr.parseRateParam(w, r)
	if !ok {
		return
	}

	tier, ok := rr.tiers.NextTierAbove(rate)
	if !ok {
		rr.writeErrorResponse(w, "No tier above the given rate", http.StatusNotFound)
		return
	}

	rr.writeJSONResponse(w, tier)
}

// parseRateParam extracts and validates the rate query parameter, writing
// the error response itself when the parameter is missing or malformed.
func (rr *Routes) parseRateParam(w http.ResponseWriter, r *http.Request) (tiers.Rate, bool) {
	raw := r.URL.Query().Get("rate")
	if raw == "" {
		rr.writeErrorResponse(w, "Missing required query parameter: rate", http.StatusBadRequest)
		return tiers.Rate{}, false
	}

	rate, err := tiers.ParseRate(raw)
	if err != nil {
		rr.writeErrorResponse(w, "Invalid rate: "+err.Error(), http.StatusBadRequest)
		return tiers.Rate{}, false
	}

	return rate, true
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(dir *directory.Directory) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(dir))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests. The server is ready
// once the first directory snapshot has been published.
func readinessHandler(dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !dir.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			if err := json.NewEncoder(w).Encode(ErrorResponse{
				Error: "Directory not ready: no snapshot published yet",
			}); err != nil {
				slog.Error("Failed to encode readiness error response", "error", err)
			}
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(info); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
