package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tenantauth.org/internal/audit"
	"tenantauth.org/internal/auth"
)

type countResponse struct {
	Role  auth.AccessLevel `json:"role"`
	Name  string           `json:"role_name"`
	Count int              `json:"count"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	member, err := a.tenants.Signup(r.Context(), in)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.signup",
		zap.String("organization_id", member.OrganizationID),
		zap.String("member_id", member.ID))
	writeJSON(w, http.StatusCreated, member)
}

func (a *API) handleCountByRole(w http.ResponseWriter, r *http.Request) {
	level, err := auth.ParseAccessLevel(r.URL.Query().Get("role"))
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	count, err := a.tenants.CountUsersByLevel(r.Context(), level)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Role: level, Name: level.String(), Count: count})
}

func (a *API) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()
	email := strings.TrimSpace(q.Get("user_email"))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "user_email is required")
		return
	}
	level, err := auth.ParseAccessLevel(q.Get("new_role"))
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	updated, err := a.tenants.ChangeUserLevel(r.Context(), caller, email, level)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.user.level_changed",
		zap.String("target_id", updated.ID),
		zap.String("level", level.String()))
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())
	var in auth.MemberInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	member, err := a.tenants.InviteMember(r.Context(), caller, in)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.member.invited",
		zap.String("organization_id", member.OrganizationID),
		zap.String("member_id", member.ID))
	writeJSON(w, http.StatusCreated, member)
}

func (a *API) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()
	orgID := q.Get("org_id")
	name := q.Get("memberName")
	if err := a.tenants.DeleteMember(r.Context(), caller, orgID, name); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.member.deleted",
		zap.String("organization_id", orgID),
		zap.String("member_name", name))
	writeJSON(w, http.StatusOK, messageResponse{Message: "member deleted"})
}
