// Package management exposes the administrative HTTP API: reputation list
// maintenance, window resets, and config reload.
package management

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rategate/internal/gate"
	"rategate/internal/reputation"
	"rategate/pkg/errors"
	"rategate/pkg/metrics"
)

// Limiter is the subset of the rate limiter used by the admin surface.
type Limiter interface {
	Reset(ctx context.Context, key string) error
}

// API serves the management endpoints under a base path.
type API struct {
	reputation *reputation.Store
	limiter    Limiter
	reload     func() error
	stats      func() gate.Stats
	metrics    *metrics.Metrics
	logger     *slog.Logger
	basePath   string
	token      string
	startedAt  time.Time
}

// Options configures the management API.
type Options struct {
	// BasePath is the URL prefix for all endpoints, e.g. "/management".
	BasePath string
	// Token, when non-empty, is required as a bearer token on every request.
	Token string
	// Reload, when non-nil, is invoked by POST {base}/config/reload.
	Reload func() error
	// Stats, when non-nil, contributes decision counters to {base}/stats.
	Stats func() gate.Stats
}

// NewAPI creates the management API.
func NewAPI(rep *reputation.Store, lim Limiter, m *metrics.Metrics, logger *slog.Logger, opts Options) *API {
	basePath := strings.TrimSuffix(opts.BasePath, "/")
	if basePath == "" {
		basePath = "/management"
	}

	return &API{
		reputation: rep,
		limiter:    lim,
		reload:     opts.Reload,
		stats:      opts.Stats,
		metrics:    m,
		logger:     logger.With("component", "management"),
		basePath:   basePath,
		token:      opts.Token,
		startedAt:  time.Now(),
	}
}

// Routes mounts all management endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc(a.basePath+"/whitelist", a.authorized(a.handleList("whitelist")))
	mux.HandleFunc(a.basePath+"/whitelist/", a.authorized(a.handleRemove("whitelist")))
	mux.HandleFunc(a.basePath+"/blacklist", a.authorized(a.handleList("blacklist")))
	mux.HandleFunc(a.basePath+"/blacklist/", a.authorized(a.handleRemove("blacklist")))
	mux.HandleFunc(a.basePath+"/limits/reset", a.authorized(a.handleReset))
	mux.HandleFunc(a.basePath+"/config/reload", a.authorized(a.handleReload))
	mux.HandleFunc(a.basePath+"/stats", a.authorized(a.handleStats))
}

func (a *API) authorized(next http.HandlerFunc) http.HandlerFunc {
	if a.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != a.token {
			a.writeError(w, errors.NewError(errors.ErrorTypeUnauthorized, "invalid or missing management token"))
			return
		}
		next(w, r)
	}
}

type listEntryRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason,omitempty"`
	// TTLSeconds of 0 means the entry never expires.
	TTLSeconds int `json:"ttlSeconds,omitempty"`
}

// handleList serves GET (list entries) and POST (add entry) for one list.
func (a *API) handleList(list string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			a.listEntries(w, r, list)
		case http.MethodPost:
			a.addEntry(w, r, list)
		default:
			a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "method not allowed"))
		}
	}
}

func (a *API) listEntries(w http.ResponseWriter, r *http.Request, list string) {
	var (
		entries []reputation.Entry
		err     error
	)
	if list == "whitelist" {
		entries, err = a.reputation.ListWhitelist(r.Context())
	} else {
		entries, err = a.reputation.ListBlacklist(r.Context())
	}
	if err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "failed to list entries").WithCause(err))
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (a *API) addEntry(w http.ResponseWriter, r *http.Request, list string) {
	var req listEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.IP) == "" {
		a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "ip is required"))
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	var err error
	if list == "whitelist" {
		err = a.reputation.AddToWhitelist(r.Context(), req.IP, req.Reason, ttl)
	} else {
		err = a.reputation.AddToBlacklist(r.Context(), req.IP, req.Reason, ttl)
	}
	if err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "failed to add entry").WithCause(err))
		return
	}

	a.logger.Info("list entry added", "list", list, "ip", req.IP, "reason", req.Reason)
	if a.metrics != nil {
		a.metrics.ListMutations.WithLabelValues(list, "add").Inc()
	}

	a.writeJSON(w, http.StatusCreated, map[string]string{
		"status": "added",
		"ip":     req.IP,
	})
}

// handleRemove serves DELETE {base}/<list>/{ip}.
func (a *API) handleRemove(list string) http.HandlerFunc {
	prefix := a.basePath + "/" + list + "/"
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "method not allowed"))
			return
		}

		ip := strings.TrimPrefix(r.URL.Path, prefix)
		if ip == "" || strings.Contains(ip, "/") {
			a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "ip is required"))
			return
		}

		var err error
		if list == "whitelist" {
			err = a.reputation.RemoveFromWhitelist(r.Context(), ip)
		} else {
			err = a.reputation.RemoveFromBlacklist(r.Context(), ip)
		}
		if err != nil {
			a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "failed to remove entry").WithCause(err))
			return
		}

		a.logger.Info("list entry removed", "list", list, "ip", ip)
		if a.metrics != nil {
			a.metrics.ListMutations.WithLabelValues(list, "remove").Inc()
		}

		a.writeJSON(w, http.StatusOK, map[string]string{
			"status": "removed",
			"ip":     ip,
		})
	}
}

type resetRequest struct {
	Key string `json:"key"`
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "method not allowed"))
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "key is required"))
		return
	}

	if err := a.limiter.Reset(r.Context(), req.Key); err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "failed to reset window").WithCause(err))
		return
	}

	a.logger.Info("window reset", "key", req.Key)
	a.writeJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
		"key":    req.Key,
	})
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "method not allowed"))
		return
	}
	if a.reload == nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "reload is not configured"))
		return
	}

	if err := a.reload(); err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "config reload failed").WithCause(err))
		return
	}

	a.logger.Info("config reloaded via management api")
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeError(w, errors.NewError(errors.ErrorTypeBadRequest, "method not allowed"))
		return
	}

	whitelist, err := a.reputation.ListWhitelist(r.Context())
	if err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "failed to read whitelist").WithCause(err))
		return
	}
	blacklist, err := a.reputation.ListBlacklist(r.Context())
	if err != nil {
		a.writeError(w, errors.NewError(errors.ErrorTypeInternal, "failed to read blacklist").WithCause(err))
		return
	}

	body := map[string]interface{}{
		"uptimeSeconds":  int64(time.Since(a.startedAt).Seconds()),
		"whitelistCount": len(whitelist),
		"blacklistCount": len(blacklist),
	}
	if a.stats != nil {
		body["decisions"] = a.stats()
	}

	a.writeJSON(w, http.StatusOK, body)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, err *errors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatusCode())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"type":    string(err.Type),
			"message": err.Message,
		},
	})
}
