package httpapi

import (
	"net/http"
	"strings"
	"time"

	"ministry-hr/internal/models"
	"ministry-hr/internal/workflow"
)

const timeLayout = time.RFC3339

type submitRequest struct {
	RequesterRef string `json:"requester_ref"`
	ServiceRef   string `json:"service_ref"`
	Type         string `json:"type"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

type decisionRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

type absenceResponse struct {
	ID              string `json:"id"`
	RequesterRef    string `json:"requester_ref"`
	ServiceRef      string `json:"service_ref,omitempty"`
	Type            string `json:"type"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Status          string `json:"status"`
	ApproverRef     string `json:"approver_ref,omitempty"`
	ApproverComment string `json:"approver_comment,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	RequestedAt     string `json:"requested_at"`
	ResolvedAt      string `json:"resolved_at,omitempty"`
}

type absenceListResponse struct {
	Items []absenceResponse `json:"items"`
}

func newAbsenceResponse(request models.AbsenceRequest) absenceResponse {
	resp := absenceResponse{
		ID:              request.ID,
		RequesterRef:    request.RequesterRef,
		ServiceRef:      request.ServiceRef,
		Type:            string(request.Type),
		StartDate:       request.StartDate.Format(models.DateLayout),
		EndDate:         request.EndDate.Format(models.DateLayout),
		Status:          string(request.Status),
		ApproverRef:     request.ApproverRef,
		ApproverComment: request.ApproverComment,
		RejectionReason: request.RejectionReason,
		RequestedAt:     request.RequestedAt.UTC().Format(timeLayout),
	}
	if request.ResolvedAt != nil {
		resp.ResolvedAt = request.ResolvedAt.UTC().Format(timeLayout)
	}
	return resp
}

func (h *Handler) handleAbsences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListAbsences(w, r)
	case http.MethodPost:
		h.handleSubmitAbsence(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleListAbsences(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := workflow.Filter{
		RequesterRef: strings.TrimSpace(query.Get("requester")),
		Status:       models.AbsenceStatus(strings.ToUpper(strings.TrimSpace(query.Get("status")))),
	}
	requests, err := h.engine.List(r.Context(), actorFromRequest(r), filter)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	resp := absenceListResponse{Items: make([]absenceResponse, 0, len(requests))}
	for _, request := range requests {
		resp.Items = append(resp.Items, newAbsenceResponse(request))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSubmitAbsence(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	input := workflow.SubmitInput{
		RequesterRef: strings.TrimSpace(req.RequesterRef),
		ServiceRef:   strings.TrimSpace(req.ServiceRef),
		Type:         models.AbsenceType(strings.TrimSpace(req.Type)),
	}
	var err error
	if input.StartDate, err = workflow.ParseDate(req.StartDate); err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	if input.EndDate, err = workflow.ParseDate(req.EndDate); err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	request, err := h.engine.Submit(r.Context(), actorFromRequest(r), input)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAbsenceResponse(request))
}

func (h *Handler) handleAbsenceActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/absences/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	absenceID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		request, err := h.engine.Get(r.Context(), absenceID, actorFromRequest(r))
		if err != nil {
			h.writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAbsenceResponse(request))
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req decisionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	actor := actorFromRequest(r)
	var (
		request models.AbsenceRequest
		err     error
	)
	switch parts[1] {
	case "approve":
		request, err = h.engine.Approve(r.Context(), absenceID, actor, strings.TrimSpace(req.Comment))
	case "reject":
		request, err = h.engine.Reject(r.Context(), absenceID, actor, req.Reason)
	case "cancel":
		request, err = h.engine.Cancel(r.Context(), absenceID, actor)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAbsenceResponse(request))
}
