package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"tenantauth.org/internal/audit"
	"tenantauth.org/internal/auth"
	"tenantauth.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.RecordAuthEvent("login", "failure")
		_ = audit.LogEvent(r.Context(), "auth.login.failed", zap.String("remote_ip", clientIP(r, a.opts.TrustForwardedFor)))
		a.handleAuthError(w, r, err)
		return
	}
	obs.RecordAuthEvent("login", "success")
	_ = audit.LogEvent(r.Context(), "auth.login", zap.String("subject_id", session.User.ID))

	a.setAccessCookie(w, session.AccessToken, session.MaxAge)
	a.setRefreshCookie(w, session.RefreshToken, session.MaxAge)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: session.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   session.AccessExpiresAt,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshToken(r)
	if token == "" {
		unauthorized(w, r, "refresh token missing")
		return
	}
	grant, err := a.sessions.Refresh(r.Context(), token)
	if err != nil {
		obs.RecordAuthEvent("refresh", "failure")
		a.handleAuthError(w, r, err)
		return
	}
	obs.RecordAuthEvent("refresh", "success")
	a.setAccessCookie(w, grant.AccessToken, grant.MaxAge)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: grant.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   grant.ExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	access, err := accessToken(r)
	if err != nil {
		unauthorized(w, r, err.Error())
		return
	}
	if err := a.sessions.Logout(r.Context(), access, refreshToken(r)); err != nil {
		obs.RecordAuthEvent("logout", "failure")
		a.handleAuthError(w, r, err)
		return
	}
	obs.RecordAuthEvent("logout", "success")
	_ = audit.LogEvent(r.Context(), "auth.logout")
	a.clearCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out successfully"})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorized(w, r, msgMissingToken)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.sessions.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		obs.RecordAuthEvent("change_password", "failure")
		a.handleAuthError(w, r, err)
		return
	}
	obs.RecordAuthEvent("change_password", "success")
	_ = audit.LogEvent(r.Context(), "auth.password.changed")
	a.clearCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "password changed successfully"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		unauthorized(w, r, msgMissingToken)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
