package http

import (
	"errors"
	"net/http"
	"time"

	"khatabook/internal/core"
	"khatabook/internal/log"
	"khatabook/internal/session"
)

const (
	msgAccountCreated     = "Account created! Please login."
	msgUsernameTaken      = "Username already exists."
	msgInvalidCredentials = "Invalid username or password"
	msgCredentialsMissing = "Username and password are required."
	msgPasswordTooLong    = "Password is too long (max 72 bytes)."
	msgTryAgain           = "Something went wrong. Please try again."
	msgBadFormat          = "Invalid request format"

	// initialRows is how many empty entry rows the dashboard starts with.
	initialRows = 3
)

// pageData feeds index.html.
type pageData struct {
	Session    *session.Session
	Categories []string
	Kinds      []core.Kind
	Rows       int
	Message    string
	Error      string
}

func (s *Server) newPageData() pageData {
	return pageData{
		Categories: core.Categories,
		Kinds:      core.Kinds,
		Rows:       initialRows,
	}
}

// sessionFromRequest validates the session cookie.
func (s *Server) sessionFromRequest(r *http.Request) (session.Session, error) {
	c, err := r.Cookie(session.CookieName)
	if err != nil || c.Value == "" {
		return session.Session{}, core.ErrUnauthorized
	}
	return s.sessions.Parse(c.Value)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionHandler is a handler that runs with a validated session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess session.Session)

// requireSession rejects requests without a valid session: htmx and API
// callers get 401, browsers are sent back to the login page.
func (s *Server) requireSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessionFromRequest(r)
		if err != nil {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Session rejected",
				log.FieldComponent, log.ComponentSession,
				log.FieldPath, r.URL.Path,
				log.FieldError, err.Error())
			if _, cookieErr := r.Cookie(session.CookieName); cookieErr == nil {
				s.clearSessionCookie(w)
			}
			switch {
			case wantsJSON(r):
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			case isHTMX(r):
				UnauthorizedError("Your session has expired. Please login again.").Redirect("/").Write(w)
			default:
				http.Redirect(w, r, "/", http.StatusSeeOther)
			}
			return
		}
		ctx := r.Context()
		logger := log.FromContext(ctx).With(log.FieldUserID, sess.UserID, log.FieldSessionID, sess.ID.String())
		next(w, r.WithContext(log.WithLogger(ctx, logger)), sess)
	})
}

// handleIndex renders the login page or, with a session, the dashboard.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundError("Page not found.").Write(w)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	data := s.newPageData()
	if sess, err := s.sessionFromRequest(r); err == nil {
		data.Session = &sess
	}
	s.render(w, r, http.StatusOK, "index.html", data)
}

// authFailure answers a failed register or login. htmx swaps the message
// into the form; a plain form post gets the page back with the message.
func (s *Server) authFailure(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder) {
	if isHTMX(r) {
		resp.Write(w)
		return
	}
	data := s.newPageData()
	data.Error = resp.message
	s.render(w, r, resp.statusCode, "index.html", data)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.authFailure(w, r, BadRequestError(msgBadFormat))
		return
	}

	_, err := s.auth.Register(r.Context(), parser.Get("username"), parser.GetSecret("password"))
	switch {
	case err == nil:
	case errors.Is(err, core.ErrDuplicateUsername):
		s.authFailure(w, r, ConflictError(msgUsernameTaken))
		return
	case errors.Is(err, core.ErrEmptyUsername), errors.Is(err, core.ErrEmptyPassword):
		s.authFailure(w, r, UnprocessableEntityError(msgCredentialsMissing))
		return
	case errors.Is(err, core.ErrPasswordTooLong):
		s.authFailure(w, r, UnprocessableEntityError(msgPasswordTooLong))
		return
	default:
		s.authFailure(w, r, InternalServerError(msgTryAgain))
		return
	}

	if isHTMX(r) {
		MessageResponse(http.StatusOK, "success", msgAccountCreated).Write(w)
		return
	}
	data := s.newPageData()
	data.Message = msgAccountCreated
	s.render(w, r, http.StatusOK, "index.html", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.authFailure(w, r, BadRequestError(msgBadFormat))
		return
	}

	user, err := s.auth.Authenticate(r.Context(), parser.Get("username"), parser.GetSecret("password"))
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			s.authFailure(w, r, UnauthorizedError(msgInvalidCredentials))
		} else {
			s.authFailure(w, r, InternalServerError(msgTryAgain))
		}
		return
	}

	sess, token, err := s.sessions.Issue(user)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Session issue failed",
			log.FieldComponent, log.ComponentSession,
			log.FieldUserID, user.ID,
			log.FieldError, err.Error())
		s.authFailure(w, r, InternalServerError(msgTryAgain))
		return
	}
	s.setSessionCookie(w, token, sess.ExpiresAt)

	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	s.clearSessionCookie(w)
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
