package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ministry-hr/internal/authz"
	"ministry-hr/internal/models"
	"ministry-hr/internal/store"
)

type createUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	ServiceRef  string `json:"service_ref"`
}

type userListResponse struct {
	Items []models.User `json:"items"`
}

// WithUserAdmin mounts /api/admin/users, restricted to ADMIN_HR.
func (h *Handler) WithUserAdmin(users store.UserStore) *Handler {
	h.users = users
	return h
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	outcome := authz.Authorize(actorFromRequest(r), authz.RequireRole(models.RoleAdminHR))
	switch outcome.Decision {
	case authz.AuthenticationRequired:
		writeError(w, http.StatusUnauthorized, "authentication_required", outcome.Reason)
		return
	case authz.Denied:
		writeError(w, http.StatusForbidden, "unauthorized", outcome.Reason)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleListUsers(w, r)
	case http.MethodPost:
		h.handleCreateUser(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("list users")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "user directory is temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, userListResponse{Items: users})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}
	role, err := models.ParseRole(strings.TrimSpace(req.Role))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	user := models.User{
		Username:    req.Username,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        role,
		ServiceRef:  strings.TrimSpace(req.ServiceRef),
	}
	if user.ServiceRef == "" {
		user.ServiceRef = role.Department()
	}

	created, err := h.users.CreateUser(r.Context(), user, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			writeError(w, http.StatusConflict, "user_exists", "username already taken")
			return
		}
		h.logger.WithError(err).Error("create user")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "user directory is temporarily unavailable")
		return
	}
	h.logger.WithField("user", created.Username).WithField("role", created.Role).Info("user created")
	writeJSON(w, http.StatusCreated, created)
}
