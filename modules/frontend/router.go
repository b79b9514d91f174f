// Package frontend implements C8: the HTTP surface (spec §6) — request
// dispatch across the queries in one payload, error translation between
// the coherence engine's typed failures and HTTP status codes, and the
// read-through metadata/maintenance endpoints. Grounded on
// original_source/tscached/handler_general.py and handler_maintenance.py
// for the route table, and on the teacher's gorilla/mux-free router (the
// teacher uses weaveworks/common/middleware); the pack's
// kubilitics-backend/internal/api/rest supplies the gorilla/mux wiring
// convention this package follows instead, since tscached's route table
// is small enough to want path variables and method-specific registration
// rather than a bespoke mux.
package frontend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/modules/coherence"
	"github.com/tscached/tscached/modules/readahead"
	"github.com/tscached/tscached/pkg/config"
)

// Version is the string served at GET /version (spec §6). It is a fixed
// constant in the source, not injected at build time, and carries no
// VCS-embedded build info since this module has no equivalent of the
// teacher's build package.
const Version = "tscached 1.0.0"

// Handler wires the coherence engine, raw cache client, and read-ahead
// eligibility/maintenance config into the route table. It has no
// per-request state; one Handler is shared across all connections.
type Handler struct {
	Engine   *coherence.Engine
	Cache    cache.Client
	Kairos   MetadataProxy
	Shadow   config.ShadowConfig
	Expiry   config.ExpiryConfig
	Eligible readahead.Config
}

// NewRouter builds the full route table (spec §6 "HTTP surface").
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", h.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/version", h.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/health/check", h.handleHealthCheck).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/datapoints/query", h.handleQuery).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/api/v1/datapoints/query/tags", h.handleQueryTags).Methods(http.MethodPost)

	r.HandleFunc("/api/v1/metricnames", h.handleMetricNames).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tagnames", h.handleTagNames).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tagvalues", h.handleTagValues).Methods(http.MethodGet)

	r.HandleFunc("/api/maintenance/flushall", h.handleFlushall).Methods(http.MethodGet)

	return r
}
