// internal/federation/handler.go
package federation

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gatehouse/internal/gate"
	"gatehouse/pkg/autherr"
	"gatehouse/pkg/tenants"
	"gatehouse/pkg/tokens"
)

// Handler runs the provider round trip: Start sends the browser to the
// provider, Callback completes the code exchange and decides the
// post-login destination.
type Handler struct {
	reg      *tenants.Registry
	states   StateStore
	exch     Exchanger
	provider Provider
	stateTTL time.Duration
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func NewHandler(reg *tenants.Registry, states StateStore, exch Exchanger, provider Provider, stateTTL, timeout time.Duration, log *zap.SugaredLogger) *Handler {
	return &Handler{reg: reg, states: states, exch: exch, provider: provider, stateTTL: stateTTL, timeout: timeout, log: log}
}

func stateCookieName(tenantID string) string { return "oauth_state_" + tenantID }

// Start creates the pending federation state and redirects to the
// provider's authorization endpoint. The gate has already resolved the
// tenant and vetted any redirect_uri against the allow-list.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	if !t.SupportsMethod(tenants.MethodGoogle) {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Google sign-in is not enabled for this application"), http.StatusFound)
		return
	}

	st := State{
		Nonce:       uuid.NewString(),
		TenantID:    t.ID,
		RedirectURI: r.URL.Query().Get("redirect_uri"),
		CreatedAt:   time.Now(),
	}
	if err := h.states.Create(r.Context(), st, h.stateTTL); err != nil {
		h.log.Errorw("federation state create", "tenant", t.ID, "err", err)
		http.Redirect(w, r, autherr.RedirectURL(autherr.AuthFailed, ""), http.StatusFound)
		return
	}

	// Lax, not Strict: the provider sends the browser back via a
	// cross-site top-level navigation and the cookie must survive it.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(t.ID),
		Value:    st.Nonce,
		Path:     "/",
		MaxAge:   int(h.stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthorizationURL(st.Nonce), http.StatusFound)
}

// Callback completes the flow when the provider redirects back with
// code, state, and optionally error/error_description.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Provider-reported denial is passed through verbatim, never
	// swallowed. No state is consumed and no token stored.
	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = "Google authentication failed"
		}
		http.Redirect(w, r, autherr.RedirectURL(autherr.Code(errParam), desc), http.StatusFound)
		return
	}

	code := q.Get("code")
	stateParam := q.Get("state")
	if code == "" || stateParam == "" {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Missing required parameters"), http.StatusFound)
		return
	}

	// Single use: the state is consumed whatever happens next, so a
	// replayed callback can never validate a second time.
	st, ok := h.states.Consume(r.Context(), stateParam)
	if !ok {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Invalid or expired state"), http.StatusFound)
		return
	}

	// The tenant comes from the stored state, never from a callback
	// query parameter: an attacker must not redirect a valid code into a
	// different tenant.
	clearStateCookie(w, r, st.TenantID)
	if c, err := r.Cookie(stateCookieName(st.TenantID)); err != nil || c.Value != stateParam {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidRequest, "Invalid or expired state"), http.StatusFound)
		return
	}
	t, ok := h.reg.Get(st.TenantID)
	if !ok {
		http.Redirect(w, r, autherr.RedirectURL(autherr.InvalidTenant, ""), http.StatusFound)
		return
	}

	// The exchange keeps running if the caller disconnects: abandoning
	// it would burn the single-use authorization code.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()
	token, refresh, err := h.exch.Exchange(ctx, t.ID, code, stateParam)
	if err != nil {
		h.log.Errorw("code exchange", "tenant", t.ID, "err", err)
		http.Redirect(w, r, autherr.RedirectURL(autherr.AuthFailed, UserMessage(err)), http.StatusFound)
		return
	}

	tokens.NewCookieStore(w, r, t.ID, t.Tokens.AccessTokenTTL, t.Tokens.RefreshTokenTTL).Set(token, refresh)

	if st.RedirectURI != "" && h.reg.IsRedirectAllowed(t.ID, st.RedirectURI) {
		http.Redirect(w, r, gate.AppendToken(st.RedirectURI, token), http.StatusFound)
		return
	}
	http.Redirect(w, r, t.ApplicationURL, http.StatusFound)
}

func clearStateCookie(w http.ResponseWriter, r *http.Request, tenantID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName(tenantID),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
