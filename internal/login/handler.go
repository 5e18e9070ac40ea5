// internal/login/handler.go
package login

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gatehouse/internal/gate"
	"gatehouse/internal/upstream"
	"gatehouse/pkg/autherr"
	"gatehouse/pkg/tenants"
	"gatehouse/pkg/tokens"
)

type Handler struct {
	reg   *tenants.Registry
	svc   *Service
	audit *Recorder
	log   *zap.SugaredLogger
}

func NewHandler(reg *tenants.Registry, svc *Service, audit *Recorder, log *zap.SugaredLogger) *Handler {
	return &Handler{reg: reg, svc: svc, audit: audit, log: log}
}

// GetLogin describes the sign-in surface for the resolved tenant. The
// actual form rendering is the front-end's job; theme metadata passes
// through untouched.
func (h *Handler) GetLogin(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":    t.ID,
		"name":         t.Name,
		"auth_methods": t.AuthMethods,
		"theme":        t.Theme,
		"google_url":   "/auth/google?tenant_id=" + t.ID,
	})
}

type credentialsBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PostLogin handles a credential submission. The gate already admitted
// the request (tenant, IP limit, CSRF); this adds the per-identifier
// attempt limit so one address cannot brute-force one account.
func (h *Handler) PostLogin(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	body, ok := readCredentials(r)
	if !ok || body.Email == "" || body.Password == "" {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Missing email or password"), http.StatusFound)
		return
	}
	if !t.SupportsMethod(tenants.MethodPassword) {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Password sign-in is not enabled for this application"), http.StatusFound)
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(body.Email))
	res, err := h.reg.CheckRateLimit(r.Context(), t.ID, "login:"+identifier)
	if err != nil || !res.Allowed {
		if !res.ResetAt.IsZero() {
			secs := int(time.Until(res.ResetAt).Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	ip := gate.ClientIP(r)
	token, refresh, err := h.svc.Login(r.Context(), t.ID, identifier, body.Password)
	if err != nil {
		h.audit.Record(r.Context(), t.ID, identifier, ip, false)
		if errors.Is(err, ErrInvalidCredentials) {
			http.Redirect(w, r, autherr.RedirectURL(autherr.AuthFailed, "Invalid credentials"), http.StatusFound)
			return
		}
		h.log.Errorw("login upstream", "tenant", t.ID, "err", err)
		http.Redirect(w, r, autherr.RedirectURL(autherr.AuthFailed, ""), http.StatusFound)
		return
	}

	h.audit.Record(r.Context(), t.ID, identifier, ip, true)
	tokens.NewCookieStore(w, r, t.ID, t.Tokens.AccessTokenTTL, t.Tokens.RefreshTokenTTL).Set(token, refresh)
	http.Redirect(w, r, h.destination(t, callbackURL(r)), http.StatusFound)
}

func (h *Handler) PostRegister(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	body, ok := readCredentials(r)
	if !ok || body.Email == "" || body.Password == "" {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Missing registration fields"), http.StatusFound)
		return
	}
	if !t.SupportsMethod(tenants.MethodPassword) {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Password sign-in is not enabled for this application"), http.StatusFound)
		return
	}

	token, refresh, err := h.svc.Register(r.Context(), t.ID, body.Name, body.Email, body.Password)
	if err != nil {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, upstreamSafeMessage(err)), http.StatusFound)
		return
	}
	tokens.NewCookieStore(w, r, t.ID, t.Tokens.AccessTokenTTL, t.Tokens.RefreshTokenTTL).Set(token, refresh)
	http.Redirect(w, r, h.destination(t, callbackURL(r)), http.StatusFound)
}

// PostRefresh exchanges the refresh cookie for a fresh access token.
// The refresh cookie only rotates when the tenant's policy says so.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	store := tokens.NewCookieStore(w, r, t.ID, t.Tokens.AccessTokenTTL, t.Tokens.RefreshTokenTTL)
	refreshToken, ok := store.GetRefresh()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": autherr.SessionExpired})
		return
	}

	token, newRefresh, err := h.svc.Refresh(r.Context(), t.ID, refreshToken)
	if err != nil {
		store.Remove()
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": autherr.SessionExpired})
		return
	}
	if !t.Tokens.RotateRefreshToken {
		newRefresh = ""
	}
	store.Set(token, newRefresh)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// PostLogout clears the tenant's token cookies. Idempotent.
func (h *Handler) PostLogout(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	tokens.NewCookieStore(w, r, t.ID, 0, 0).Remove()
	http.Redirect(w, r, t.ApplicationURL, http.StatusFound)
}

// destination picks the post-login target: a same-origin path is taken
// as-is, an absolute URL must be allow-listed, anything else falls back
// to the tenant's canonical application URL.
func (h *Handler) destination(t tenants.TenantConfig, callback string) string {
	switch {
	case callback == "":
		return t.ApplicationURL
	case strings.HasPrefix(callback, "/") && !strings.HasPrefix(callback, "//"):
		return callback
	case h.reg.IsRedirectAllowed(t.ID, callback):
		return callback
	default:
		return t.ApplicationURL
	}
}

func callbackURL(r *http.Request) string {
	if v := r.URL.Query().Get("callbackUrl"); v != "" {
		return v
	}
	return r.PostFormValue("callbackUrl")
}

func readCredentials(r *http.Request) (credentialsBody, bool) {
	var body credentialsBody
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return body, false
		}
		return body, true
	}
	if err := r.ParseForm(); err != nil {
		return body, false
	}
	body.Name = r.PostFormValue("name")
	body.Email = r.PostFormValue("email")
	body.Password = r.PostFormValue("password")
	return body, true
}

// upstreamSafeMessage returns the upstream's own user-safe message, or
// "" so the error page shows only the code.
func upstreamSafeMessage(err error) string {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
