package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/session"
	"ministry-hr/internal/workflow"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to hr-service. It implements session.Verifier and the
// absence calls used by hrctl.
type Client struct {
	baseURL string
	client  *http.Client
}

type SubmitRequest struct {
	RequesterRef string `json:"requester_ref,omitempty"`
	ServiceRef   string `json:"service_ref,omitempty"`
	Type         string `json:"type"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

type sessionPayload struct {
	Token     string      `json:"token"`
	CreatedAt string      `json:"created_at"`
	ExpiresAt string      `json:"expires_at"`
	User      models.User `json:"user"`
}

type absencePayload struct {
	ID              string `json:"id"`
	RequesterRef    string `json:"requester_ref"`
	ServiceRef      string `json:"service_ref"`
	Type            string `json:"type"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Status          string `json:"status"`
	ApproverRef     string `json:"approver_ref"`
	ApproverComment string `json:"approver_comment"`
	RejectionReason string `json:"rejection_reason"`
	RequestedAt     string `json:"requested_at"`
	ResolvedAt      string `json:"resolved_at"`
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiError is a non-2xx response from hr-service.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("unexpected status %d", e.status)
}

func NewClient(baseURL string, options Options) *Client {
	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

func (c *Client) Verify(ctx context.Context, credentials session.Credentials) (models.Session, error) {
	var payload sessionPayload
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": credentials.Username,
		"password": credentials.Password,
	}, &payload)
	if err != nil {
		return models.Session{}, authError(err, session.ErrInvalidCredentials)
	}
	return payload.toSession()
}

func (c *Client) Resume(ctx context.Context, token string) (models.Session, error) {
	var payload sessionPayload
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &payload); err != nil {
		return models.Session{}, authError(err, session.ErrSessionExpired)
	}
	if payload.Token == "" {
		payload.Token = token
	}
	return payload.toSession()
}

func (c *Client) Revoke(ctx context.Context, token string) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil); err != nil {
		return authError(err, session.ErrSessionExpired)
	}
	return nil
}

func (c *Client) ListAbsences(ctx context.Context, token string, requester string, status models.AbsenceStatus) ([]models.AbsenceRequest, error) {
	query := url.Values{}
	if requester != "" {
		query.Set("requester", requester)
	}
	if status != "" {
		query.Set("status", string(status))
	}
	path := "/api/absences"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var payload struct {
		Items []absencePayload `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, token, nil, &payload); err != nil {
		return nil, workflowError(err)
	}
	requests := make([]models.AbsenceRequest, 0, len(payload.Items))
	for _, item := range payload.Items {
		request, err := item.toAbsence()
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func (c *Client) GetAbsence(ctx context.Context, token, id string) (models.AbsenceRequest, error) {
	return c.absenceCall(ctx, http.MethodGet, "/api/absences/"+url.PathEscape(id), token, nil)
}

func (c *Client) SubmitAbsence(ctx context.Context, token string, req SubmitRequest) (models.AbsenceRequest, error) {
	return c.absenceCall(ctx, http.MethodPost, "/api/absences", token, req)
}

func (c *Client) Approve(ctx context.Context, token, id, comment string) (models.AbsenceRequest, error) {
	return c.absenceCall(ctx, http.MethodPost, "/api/absences/"+url.PathEscape(id)+"/approve", token, map[string]string{"comment": comment})
}

func (c *Client) Reject(ctx context.Context, token, id, reason string) (models.AbsenceRequest, error) {
	return c.absenceCall(ctx, http.MethodPost, "/api/absences/"+url.PathEscape(id)+"/reject", token, map[string]string{"reason": reason})
}

func (c *Client) Cancel(ctx context.Context, token, id string) (models.AbsenceRequest, error) {
	return c.absenceCall(ctx, http.MethodPost, "/api/absences/"+url.PathEscape(id)+"/cancel", token, nil)
}

func (c *Client) absenceCall(ctx context.Context, method, path, token string, body interface{}) (models.AbsenceRequest, error) {
	var payload absencePayload
	if err := c.do(ctx, method, path, token, body, &payload); err != nil {
		return models.AbsenceRequest{}, workflowError(err)
	}
	return payload.toAbsence()
}

func (c *Client) do(ctx context.Context, method, path, token string, body interface{}, target interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var payload errorPayload
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload)
		return &apiError{status: resp.StatusCode, code: payload.Error.Code, message: payload.Error.Message}
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// authError maps a failed auth call onto the session taxonomy. A 401 means
// the credentials or token were refused; everything else is a network failure.
func authError(err error, refused error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.status == http.StatusUnauthorized {
		return refused
	}
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", session.ErrNetwork, apiErr.Error())
	}
	return fmt.Errorf("%w: %v", session.ErrNetwork, err)
}

func workflowError(err error) error {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", workflow.ErrUnavailable, err)
	}
	if apiErr.status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", workflow.ErrAuthenticationRequired, apiErr.Error())
	}
	if sentinel := workflow.FromCode(apiErr.code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, apiErr.Error())
	}
	return fmt.Errorf("%w: %s", workflow.ErrUnavailable, apiErr.Error())
}

func (p sessionPayload) toSession() (models.Session, error) {
	result := models.Session{Token: p.Token, User: p.User}
	if p.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil {
			return models.Session{}, fmt.Errorf("%w: bad created_at %q", session.ErrNetwork, p.CreatedAt)
		}
		result.CreatedAt = createdAt
	}
	if p.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, p.ExpiresAt)
		if err != nil {
			return models.Session{}, fmt.Errorf("%w: bad expires_at %q", session.ErrNetwork, p.ExpiresAt)
		}
		result.ExpiresAt = expiresAt
	}
	if _, err := models.ParseRole(string(p.User.Role)); err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", session.ErrNetwork, err)
	}
	return result, nil
}

func (p absencePayload) toAbsence() (models.AbsenceRequest, error) {
	request := models.AbsenceRequest{
		ID:              p.ID,
		RequesterRef:    p.RequesterRef,
		ServiceRef:      p.ServiceRef,
		Type:            models.AbsenceType(p.Type),
		Status:          models.AbsenceStatus(p.Status),
		ApproverRef:     p.ApproverRef,
		ApproverComment: p.ApproverComment,
		RejectionReason: p.RejectionReason,
	}
	var err error
	if request.StartDate, err = time.Parse(models.DateLayout, p.StartDate); err != nil {
		return models.AbsenceRequest{}, fmt.Errorf("decode start_date: %w", err)
	}
	if request.EndDate, err = time.Parse(models.DateLayout, p.EndDate); err != nil {
		return models.AbsenceRequest{}, fmt.Errorf("decode end_date: %w", err)
	}
	if p.RequestedAt != "" {
		if request.RequestedAt, err = time.Parse(time.RFC3339, p.RequestedAt); err != nil {
			return models.AbsenceRequest{}, fmt.Errorf("decode requested_at: %w", err)
		}
	}
	if p.ResolvedAt != "" {
		resolvedAt, err := time.Parse(time.RFC3339, p.ResolvedAt)
		if err != nil {
			return models.AbsenceRequest{}, fmt.Errorf("decode resolved_at: %w", err)
		}
		request.ResolvedAt = &resolvedAt
	}
	return request, nil
}
