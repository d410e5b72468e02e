package httpapi

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"caixa/backend/internal/auth"
	"caixa/backend/internal/domain"
	"caixa/backend/internal/metrics"
	"caixa/backend/internal/service"
)

const sessionCookie = "session"

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Caixa - Entrar</title></head>
<body>
<form method="post" action="/login">
{{if .Failed}}<p role="alert">Usuário ou senha inválidos.</p>{{end}}
<label>Usuário <input name="username" autocomplete="username" required></label>
<label>Senha <input name="password" type="password" autocomplete="current-password" required></label>
<button type="submit">Entrar</button>
</form>
</body>
</html>
`))

func (a *API) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = loginPage.Execute(w, map[string]any{"Failed": r.URL.Query().Get("erro") != ""})
}

// handleLogin accepts a form post or a JSON body. Unknown user, wrong
// password and inactive account all produce the same redirect.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		metrics.LoginAttempts.WithLabelValues("limited").Inc()
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	req, err := decodeLogin(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.LoginAttempts.WithLabelValues("rejected").Inc()
			http.Redirect(w, r, "/login?erro=credenciais", http.StatusSeeOther)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	log.Info().Str("username", session.Username).Msg("login")
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   session.MaxAge(a.now()),
		HttpOnly: true,
		Secure:   a.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err := a.auth.Logout(r.Context(), cookie.Value); err != nil {
			log.Warn().Err(err).Msg("session revocation failed")
		}
	}
	a.clearSession(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// requireSession sends anonymous visitors to the login page and puts the
// resolved actor on the request context.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		actor, ok := a.auth.Resolve(r.Context(), cookie.Value)
		if !ok {
			a.clearSession(w, r)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) clearSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) secureCookies(r *http.Request) bool {
	return a.opts.CookieSecure || r.TLS != nil
}

func decodeLogin(r *http.Request) (domain.LoginRequest, error) {
	var req domain.LoginRequest
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return domain.LoginRequest{}, errors.New("invalid login payload")
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return domain.LoginRequest{}, errors.New("invalid login form")
	}
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	return req, nil
}
