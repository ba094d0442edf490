package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/store"
	"ministry-hr/internal/workflow"

	"github.com/sirupsen/logrus"
)

type Handler struct {
	auth   store.AuthStore
	users  store.UserStore
	engine *workflow.Engine
	logger logrus.FieldLogger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	CreatedAt string      `json:"created_at"`
	ExpiresAt string      `json:"expires_at"`
	User      models.User `json:"user"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(auth store.AuthStore, engine *workflow.Engine, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{auth: auth, engine: engine, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/absences", h.handleAbsences)
	mux.HandleFunc("/api/absences/", h.handleAbsenceActions)
	if h.users != nil {
		mux.HandleFunc("/api/admin/users", h.handleUsers)
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), store.LoginInput{Username: req.Username, Password: req.Password})
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
			return
		}
		h.logger.WithError(err).Error("login failed")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "authentication is temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(result.Session))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication_required", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token != "" {
		if err := h.auth.DeleteSession(r.Context(), token); err != nil {
			h.logger.WithError(err).Warn("delete session")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func newSessionResponse(session models.Session) sessionResponse {
	return sessionResponse{
		Token:     session.Token,
		CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      session.User,
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

var errorStatus = map[string]int{
	"not_found":               http.StatusNotFound,
	"invalid_transition":      http.StatusConflict,
	"unauthorized":            http.StatusForbidden,
	"authentication_required": http.StatusUnauthorized,
	"missing_reason":          http.StatusUnprocessableEntity,
	"validation_error":        http.StatusBadRequest,
	"unavailable":             http.StatusServiceUnavailable,
}

func mapError(err error) (int, string, string) {
	code := workflow.Code(err)
	status, ok := errorStatus[code]
	if !ok {
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
	if code == "unavailable" {
		return status, code, workflow.ErrUnavailable.Error()
	}
	return status, code, err.Error()
}

func (h *Handler) writeWorkflowError(w http.ResponseWriter, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("absence request failed")
	}
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
