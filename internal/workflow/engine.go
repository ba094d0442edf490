package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ministry-hr/internal/authz"
	"ministry-hr/internal/models"
	"ministry-hr/internal/store"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 5 * time.Second

type Filter struct {
	RequesterRef string
	Status       models.AbsenceStatus
}

type Options struct {
	Timeout time.Duration
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Engine runs the absence request lifecycle. Every mutation goes through
// store.TransitionAbsence so concurrent decisions on one request resolve to a
// single winner.
type Engine struct {
	store   store.AbsenceStore
	timeout time.Duration
	logger  logrus.FieldLogger
	now     func() time.Time
	tracer  trace.Tracer
}

func NewEngine(st store.AbsenceStore, options Options) *Engine {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:   st,
		timeout: timeout,
		logger:  logger.WithField("component", "workflow"),
		now:     now,
		tracer:  otel.Tracer("ministry-hr/workflow"),
	}
}

func (e *Engine) Submit(ctx context.Context, actor models.SessionState, input SubmitInput) (request models.AbsenceRequest, err error) {
	ctx, span := e.start(ctx, "workflow.Submit")
	defer func() { e.finish(span, err) }()

	user, err := requireAuthenticated(actor, authz.None())
	if err != nil {
		return models.AbsenceRequest{}, err
	}

	serviceRef := user.ServiceRef
	if input.RequesterRef == "" || input.RequesterRef == user.ID {
		input.RequesterRef = user.ID
	} else {
		if user.Role != models.RoleAdminHR {
			return models.AbsenceRequest{}, fmt.Errorf("%w: only HR may file on behalf of another employee", ErrUnauthorized)
		}
		serviceRef = input.ServiceRef
	}

	if err := ValidateSubmission(input); err != nil {
		return models.AbsenceRequest{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	request, err = e.store.CreateAbsence(ctx, store.CreateAbsenceInput{
		RequesterRef: input.RequesterRef,
		ServiceRef:   serviceRef,
		Type:         input.Type,
		StartDate:    truncateDate(input.StartDate),
		EndDate:      truncateDate(input.EndDate),
		RequestedAt:  e.now().UTC(),
	})
	if err != nil {
		return models.AbsenceRequest{}, mapStoreError(err)
	}
	span.SetAttributes(attribute.String("absence.id", request.ID))
	e.logger.WithFields(logrus.Fields{
		"absence_id": request.ID,
		"requester":  request.RequesterRef,
		"type":       request.Type,
		"actor":      user.ID,
	}).Info("absence request submitted")
	return request, nil
}

func (e *Engine) Approve(ctx context.Context, id string, actor models.SessionState, comment string) (request models.AbsenceRequest, err error) {
	ctx, span := e.start(ctx, "workflow.Approve", attribute.String("absence.id", id))
	defer func() { e.finish(span, err) }()

	user, err := requireAuthenticated(actor, authz.ApproverRequirement())
	if err != nil {
		return models.AbsenceRequest{}, err
	}
	return e.decide(ctx, id, user, store.TransitionInput{
		Action:          store.ActionApprove,
		ApproverComment: comment,
	})
}

func (e *Engine) Reject(ctx context.Context, id string, actor models.SessionState, reason string) (request models.AbsenceRequest, err error) {
	ctx, span := e.start(ctx, "workflow.Reject", attribute.String("absence.id", id))
	defer func() { e.finish(span, err) }()

	trimmed, err := ValidateReason(reason)
	if err != nil {
		return models.AbsenceRequest{}, err
	}
	user, err := requireAuthenticated(actor, authz.ApproverRequirement())
	if err != nil {
		return models.AbsenceRequest{}, err
	}
	return e.decide(ctx, id, user, store.TransitionInput{
		Action:          store.ActionReject,
		RejectionReason: trimmed,
	})
}

func (e *Engine) Cancel(ctx context.Context, id string, actor models.SessionState) (request models.AbsenceRequest, err error) {
	ctx, span := e.start(ctx, "workflow.Cancel", attribute.String("absence.id", id))
	defer func() { e.finish(span, err) }()

	user, err := requireAuthenticated(actor, authz.None())
	if err != nil {
		return models.AbsenceRequest{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	current, err := e.store.GetAbsence(ctx, id)
	if err != nil {
		return models.AbsenceRequest{}, mapStoreError(err)
	}
	if current.RequesterRef != user.ID {
		return models.AbsenceRequest{}, fmt.Errorf("%w: only the requester may cancel", ErrUnauthorized)
	}
	if current.Status != models.StatusPending {
		return models.AbsenceRequest{}, ErrInvalidTransition
	}

	request, err = e.store.TransitionAbsence(ctx, store.TransitionInput{
		ID:          id,
		Action:      store.ActionCancel,
		From:        models.StatusPending,
		ApproverRef: user.ID,
		OccurredAt:  e.now().UTC(),
	})
	if err != nil {
		return models.AbsenceRequest{}, e.transitionFailed(id, store.ActionCancel, user, err)
	}
	e.logTransition(request, store.ActionCancel, user)
	return request, nil
}

// Get returns a request the actor is allowed to see.
func (e *Engine) Get(ctx context.Context, id string, actor models.SessionState) (request models.AbsenceRequest, err error) {
	ctx, span := e.start(ctx, "workflow.Get", attribute.String("absence.id", id))
	defer func() { e.finish(span, err) }()

	user, err := requireAuthenticated(actor, authz.None())
	if err != nil {
		return models.AbsenceRequest{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	request, err = e.store.GetAbsence(ctx, id)
	if err != nil {
		return models.AbsenceRequest{}, mapStoreError(err)
	}
	if !canView(user, request) {
		return models.AbsenceRequest{}, fmt.Errorf("%w: request belongs to another department", ErrUnauthorized)
	}
	return request, nil
}

// List returns requests visible to the actor: HR sees everything, chiefs see
// their department, everyone else sees their own.
func (e *Engine) List(ctx context.Context, actor models.SessionState, filter Filter) (requests []models.AbsenceRequest, err error) {
	ctx, span := e.start(ctx, "workflow.List")
	defer func() { e.finish(span, err) }()

	user, err := requireAuthenticated(actor, authz.None())
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}

	storeFilter := store.AbsenceFilter{RequesterRef: filter.RequesterRef, Status: filter.Status}
	switch {
	case user.Role == models.RoleAdminHR:
	case models.IsDepartmentChief(user.Role):
		storeFilter.ServiceRef = chiefScope(user)
	default:
		if filter.RequesterRef != "" && filter.RequesterRef != user.ID {
			return nil, fmt.Errorf("%w: employees may only list their own requests", ErrUnauthorized)
		}
		storeFilter.RequesterRef = user.ID
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	requests, err = e.store.ListAbsences(ctx, storeFilter)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return requests, nil
}

func (e *Engine) decide(ctx context.Context, id string, user models.User, input store.TransitionInput) (models.AbsenceRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	current, err := e.store.GetAbsence(ctx, id)
	if err != nil {
		return models.AbsenceRequest{}, mapStoreError(err)
	}
	if models.IsDepartmentChief(user.Role) && current.ServiceRef != chiefScope(user) {
		return models.AbsenceRequest{}, fmt.Errorf("%w: request belongs to another department", ErrUnauthorized)
	}
	if current.Status != models.StatusPending {
		return models.AbsenceRequest{}, ErrInvalidTransition
	}

	input.ID = id
	input.From = models.StatusPending
	input.ApproverRef = user.ID
	input.OccurredAt = e.now().UTC()
	request, err := e.store.TransitionAbsence(ctx, input)
	if err != nil {
		return models.AbsenceRequest{}, e.transitionFailed(id, input.Action, user, err)
	}
	e.logTransition(request, input.Action, user)
	return request, nil
}

func (e *Engine) transitionFailed(id, action string, user models.User, err error) error {
	mapped := mapStoreError(err)
	entry := e.logger.WithFields(logrus.Fields{"absence_id": id, "action": action, "actor": user.ID})
	if errors.Is(mapped, ErrUnavailable) {
		entry.WithError(err).Error("absence transition failed")
	} else {
		entry.WithError(mapped).Info("absence transition rejected")
	}
	return mapped
}

func (e *Engine) logTransition(request models.AbsenceRequest, action string, user models.User) {
	e.logger.WithFields(logrus.Fields{
		"absence_id": request.ID,
		"action":     action,
		"status":     request.Status,
		"actor":      user.ID,
	}).Info("absence request resolved")
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (e *Engine) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if code := Code(err); code != "" {
			span.SetAttributes(attribute.String("workflow.error", code))
		}
		if errors.Is(err, ErrUnavailable) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func requireAuthenticated(actor models.SessionState, req authz.Requirement) (models.User, error) {
	outcome := authz.Authorize(actor, req)
	switch outcome.Decision {
	case authz.Allowed:
		user, _ := actor.User()
		return user, nil
	case authz.AuthenticationRequired:
		return models.User{}, fmt.Errorf("%w: %s", ErrAuthenticationRequired, outcome.Reason)
	default:
		return models.User{}, fmt.Errorf("%w: %s", ErrUnauthorized, outcome.Reason)
	}
}

func chiefScope(user models.User) string {
	if user.ServiceRef != "" {
		return user.ServiceRef
	}
	return user.Role.Department()
}

func canView(user models.User, request models.AbsenceRequest) bool {
	switch {
	case user.Role == models.RoleAdminHR:
		return true
	case request.RequesterRef == user.ID:
		return true
	case models.IsDepartmentChief(user.Role):
		return request.ServiceRef == chiefScope(user)
	default:
		return false
	}
}
