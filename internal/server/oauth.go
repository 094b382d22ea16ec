package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/services"
)

// VerifierCookie holds the PKCE code verifier of a pending sign in.
const VerifierCookie = "vibewatch-code-verifier"

// CallbackHandler completes e-mail confirmation and recovery links.
// Implements the Handler interface for registration with a Router.
//
// The code is exchanged for a session which is handed to the onSession hook; the browser is then
// redirected to next. A failed exchange is logged and the redirect still happens, so a stale
// link lands on a page rather than an error.
type CallbackHandler struct {
	auth      services.Authenticator
	onSession func(*models.Session) error
	logger    *log.Logger
}

// NewCallbackHandler creates the auth callback handler. onSession may be nil.
func NewCallbackHandler(auth services.Authenticator, onSession func(*models.Session) error, logger *log.Logger) *CallbackHandler {
	return &CallbackHandler{auth: auth, onSession: onSession, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /auth/callback"}
}

// ServeHTTP handles the callback request.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	next := SafeNext(q.Get("next"))

	if code := q.Get("code"); code != "" && h.auth != nil {
		var verifier string
		if c, err := r.Cookie(VerifierCookie); err == nil {
			verifier = c.Value
		}

		session, err := h.auth.ExchangeCode(r.Context(), code, verifier)
		switch {
		case err != nil:
			h.logger.Warn("code exchange failed", "error", err, "request_id", RequestIDFrom(r.Context()))
		case h.onSession != nil:
			if err := h.onSession(session); err != nil {
				h.logger.Error("failed to store session", "error", err)
			}
		}
		http.SetCookie(w, &http.Cookie{Name: VerifierCookie, Path: "/", MaxAge: -1})
	} else if errDesc := q.Get("error_description"); errDesc != "" {
		h.logger.Warn("authorization failed", "error", q.Get("error"), "description", errDesc)
	}

	http.Redirect(w, r, next, http.StatusSeeOther)
}

// SafeNext returns next when it is a same-site absolute path, and "/" otherwise.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return next
}
