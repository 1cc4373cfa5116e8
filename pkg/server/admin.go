package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/sentinel/pkg/limits"
	"mercator-hq/sentinel/pkg/limits/admission"
	"mercator-hq/sentinel/pkg/limits/identity"
	"mercator-hq/sentinel/pkg/limits/policy"
	"mercator-hq/sentinel/pkg/proxy"
	"mercator-hq/sentinel/pkg/security/auth"
)

// StatusResponse is the body of the status endpoints.
type StatusResponse struct {
	ClientID   string           `json:"client_id"`
	Tier       string           `json:"tier"`
	Policy     string           `json:"policy"`
	Source     string           `json:"source"`
	RateLimits admission.Status `json:"rate_limits"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ResetResponse is the body of a successful reset.
type ResetResponse struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Removed  int    `json:"removed"`
}

// PolicyResponse describes one configured policy.
type PolicyResponse struct {
	ID      string           `json:"id"`
	Windows []WindowResponse `json:"windows"`
}

// WindowResponse describes one window of a policy.
type WindowResponse struct {
	Name            string `json:"name"`
	DurationSeconds int64  `json:"duration_seconds"`
	MaxRequests     int    `json:"max_requests"`
}

type adminHandler struct {
	holder *admission.Holder
	logger *slog.Logger
}

// NewAdminRouter returns the admin API. Routes are relative to the mount point:
//
//	GET    /status                 usage of the calling client
//	GET    /clients/{clientID}     usage of any client (?path=&tier=)
//	DELETE /clients/{clientID}     clear every counter of a client
//	GET    /policies               configured policies
func NewAdminRouter(holder *admission.Holder, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &adminHandler{holder: holder, logger: logger.With("component", "admin")}

	r := chi.NewRouter()
	r.Get("/status", h.selfStatus)
	r.Get("/clients/{clientID}", h.clientStatus)
	r.Delete("/clients/{clientID}", h.reset)
	r.Get("/policies", h.policies)
	return r
}

func (h *adminHandler) selfStatus(w http.ResponseWriter, r *http.Request) {
	principal := ""
	premium := false
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		principal, premium = p.UserID, p.Premium
	}
	id := identity.Identify(identity.FromHTTPRequest(r, principal))

	q := admission.StatusQuery{Path: r.URL.Query().Get("path")}
	if premium {
		q.Tier = policy.ResolveTier(principal, premium)
	}
	h.writeStatus(w, r, id.Client, q)
}

func (h *adminHandler) clientStatus(w http.ResponseWriter, r *http.Request) {
	client, ok := clientParam(w, r)
	if !ok {
		return
	}

	q := admission.StatusQuery{Path: r.URL.Query().Get("path")}
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, err := limits.ParseTier(raw)
		if err != nil {
			proxy.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Tier = tier
	}
	h.writeStatus(w, r, client, q)
}

func (h *adminHandler) writeStatus(w http.ResponseWriter, r *http.Request, client limits.ClientID, q admission.StatusQuery) {
	report, err := h.holder.Load().Status(r.Context(), client, q)
	if err != nil {
		h.writeAdminError(w, r, "status", client, err)
		return
	}

	proxy.WriteJSON(w, http.StatusOK, StatusResponse{
		ClientID:   string(report.Client),
		Tier:       string(report.Tier),
		Policy:     report.Policy,
		Source:     string(report.Source),
		RateLimits: report.Status,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *adminHandler) reset(w http.ResponseWriter, r *http.Request) {
	client, ok := clientParam(w, r)
	if !ok {
		return
	}

	removed, err := h.holder.Load().Reset(r.Context(), client)
	if err != nil {
		h.writeAdminError(w, r, "reset", client, err)
		return
	}

	h.logger.InfoContext(r.Context(), "rate limits reset via admin API",
		"client", client,
		"removed", removed,
		"remote_addr", r.RemoteAddr,
	)
	proxy.WriteJSON(w, http.StatusOK, ResetResponse{
		Status:   "reset",
		ClientID: string(client),
		Removed:  removed,
	})
}

func (h *adminHandler) policies(w http.ResponseWriter, r *http.Request) {
	policies := h.holder.Load().Registry().Policies()

	out := make([]PolicyResponse, 0, len(policies))
	for _, p := range policies {
		pr := PolicyResponse{ID: p.ID, Windows: make([]WindowResponse, 0, len(p.Windows))}
		for _, win := range p.Windows {
			pr.Windows = append(pr.Windows, WindowResponse{
				Name:            win.Name,
				DurationSeconds: int64(win.Duration / time.Second),
				MaxRequests:     win.MaxRequests,
			})
		}
		out = append(out, pr)
	}
	proxy.WriteJSON(w, http.StatusOK, out)
}

func (h *adminHandler) writeAdminError(w http.ResponseWriter, r *http.Request, op string, client limits.ClientID, err error) {
	switch {
	case errors.Is(err, admission.ErrInvalidClient):
		proxy.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, limits.ErrStoreUnavailable):
		h.logger.WarnContext(r.Context(), "admin "+op+" failed", "client", client, "error", err)
		proxy.WriteError(w, http.StatusServiceUnavailable, "counter store unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "admin "+op+" failed", "client", client, "error", err)
		proxy.WriteError(w, http.StatusInternalServerError, "failed to "+op+" client")
	}
}

func clientParam(w http.ResponseWriter, r *http.Request) (limits.ClientID, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "clientID"))
	if err != nil {
		proxy.WriteError(w, http.StatusBadRequest, "malformed client id")
		return "", false
	}
	return limits.ClientID(raw), true
}
