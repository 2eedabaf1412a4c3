package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/trip-expense/internal/application/service"
	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/protocol"
)

// ActionObserver records per-action outcomes; the metrics package implements it
type ActionObserver interface {
	ObserveAction(action, code string, elapsed time.Duration)
}

// authMode says whether an action needs a bearer token
type authMode int

const (
	authNone authMode = iota
	// authOptional authenticates a token when one is sent
	authOptional
	authRequired
)

type actionFunc func(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error)

type route struct {
	auth authMode
	fn   actionFunc
}

// Handlers dispatches protocol actions to the application services
type Handlers struct {
	tripService   service.TripService
	reviewService service.ReviewService
	authService   service.AuthService
	observer      ActionObserver
	logger        Logger
	routes        map[protocol.Action]route
}

// NewHandlers creates a new Handlers instance. observer may be nil.
func NewHandlers(
	tripService service.TripService,
	reviewService service.ReviewService,
	authService service.AuthService,
	observer ActionObserver,
	logger Logger,
) *Handlers {
	h := &Handlers{
		tripService:   tripService,
		reviewService: reviewService,
		authService:   authService,
		observer:      observer,
		logger:        logger,
	}
	h.routes = map[protocol.Action]route{
		protocol.ActionSubmitTrip:         {authOptional, h.submitTrip},
		protocol.ActionGetTripStatus:      {authNone, h.getTripStatus},
		protocol.ActionDownloadTrip:       {authNone, h.downloadTrip},
		protocol.ActionCheckServerVersion: {authNone, h.checkServerVersion},
		protocol.ActionCheckDuplicate:     {authNone, h.checkDuplicate},
		protocol.ActionGetMembers:         {authNone, h.getMembers},

		protocol.ActionAdminLogin:  {authNone, h.adminLogin},
		protocol.ActionLoginLeader: {authNone, h.loginLeader},

		protocol.ActionSubmitTripStatus:         {authRequired, h.submitTripStatus},
		protocol.ActionAdminGetTrips:            {authRequired, h.adminGetTrips},
		protocol.ActionAdminGetTripDetail:       {authRequired, h.adminGetTripDetail},
		protocol.ActionAdminReview:              {authRequired, h.adminReview},
		protocol.ActionAdminReviewExpense:       {authRequired, h.adminReviewExpense},
		protocol.ActionAdminBatchReviewExpenses: {authRequired, h.adminBatchReviewExpenses},
		protocol.ActionAdminEditExpense:         {authRequired, h.adminEditExpense},
		protocol.ActionAdminLockTrip:            {authRequired, h.adminLockTrip},
		protocol.ActionAdminUnlockTrip:          {authRequired, h.adminUnlockTrip},
		protocol.ActionAdminGetPhoto:            {authRequired, h.adminGetPhoto},
	}
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Exec handles POST on the action endpoint. Protocol failures are answered
// with 200 and success=false; only an undecodable body gets 400.
func (h *Handlers) Exec(c *gin.Context) {
	start := time.Now()

	var req protocol.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err, requestIDKey, c.GetString(requestIDKey))
		c.JSON(http.StatusBadRequest, protocol.Failure(fmt.Errorf("%w: %v", entity.ErrValidation, err)))
		return
	}

	resp := h.dispatch(c.Request.Context(), &req)
	if h.observer != nil {
		h.observer.ObserveAction(string(req.Action), string(resp.ErrorCode), time.Since(start))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	r, ok := h.routes[req.Action]
	if !ok {
		return protocol.Failure(fmt.Errorf("%w: %q", entity.ErrUnknownAction, req.Action))
	}

	var role access.Role
	if r.auth == authRequired || (r.auth == authOptional && req.Token != "") {
		parsed, err := h.authService.Authenticate(req.Token)
		if err != nil {
			return protocol.Failure(err)
		}
		role = parsed
	}

	resp, err := r.fn(ctx, req, role)
	if err != nil {
		failure := protocol.Failure(err)
		if failure.ErrorCode == protocol.CodeInternal {
			h.logger.Error("Action failed", "action", req.Action, "error", err)
			failure.Error = "internal error"
		}
		return failure
	}
	resp.Success = true
	return resp
}

func (h *Handlers) submitTrip(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	var employees []entity.Employee
	if req.Employees != nil {
		employees = append([]entity.Employee{}, *req.Employees...)
	}
	result, err := h.tripService.SubmitTrip(ctx, service.SubmitCommand{
		TripCode:    req.TripCode,
		TripInfo:    req.TripInfo,
		Employees:   employees,
		Expenses:    req.Expenses,
		SubmittedBy: req.SubmittedBy,
		LeaderName:  req.LeaderName,
		Password:    req.Password,
		BaseVersion: req.BaseVersion,
		Role:        role,
	})
	if err != nil {
		return nil, err
	}
	return &protocol.Response{
		TripCode:           result.TripCode,
		ServerLastModified: result.ServerLastModified,
		Expenses:           result.Expenses,
	}, nil
}

func (h *Handlers) getTripStatus(ctx context.Context, req *protocol.Request, _ access.Role) (*protocol.Response, error) {
	snapshot, err := h.tripService.GetTripStatus(ctx, req.TripCode, req.MemberName)
	if err != nil {
		return nil, err
	}
	return snapshotResponse(snapshot), nil
}

func (h *Handlers) downloadTrip(ctx context.Context, req *protocol.Request, _ access.Role) (*protocol.Response, error) {
	snapshot, err := h.tripService.DownloadTrip(ctx, req.TripCode)
	if err != nil {
		return nil, err
	}
	return snapshotResponse(snapshot), nil
}

func (h *Handlers) checkServerVersion(ctx context.Context, req *protocol.Request, _ access.Role) (*protocol.Response, error) {
	version, err := h.tripService.CheckServerVersion(ctx, req.TripCode)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{TripCode: req.TripCode, ServerLastModified: version}, nil
}

func (h *Handlers) checkDuplicate(ctx context.Context, req *protocol.Request, _ access.Role) (*protocol.Response, error) {
	activity, err := h.tripService.CheckDuplicate(ctx, req.TripCode, req.SubmittedBy)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Duplicate: &protocol.Duplicate{
		Exists:       activity.ExpenseCount > 0,
		ExpenseCount: activity.ExpenseCount,
		LastUpdated:  activity.LastUpdated,
	}}, nil
}

func (h *Handlers) getMembers(ctx context.Context, req *protocol.Request, _ access.Role) (*protocol.Response, error) {
	members, err := h.tripService.GetMembers(ctx, req.TripCode)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{TripCode: req.TripCode, Members: members}, nil
}

func (h *Handlers) adminLogin(ctx context.Context, req *protocol.Request, _ access.Role) (*protocol.Response, error) {
	auditor, err := h.authService.AdminLogin(ctx, req.Password)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Token: auditor.Token, Role: string(auditor.Kind())}, nil
}

func (h *Handlers) loginLeader(ctx context.Context, req *protocol.Request, _ access.Role) (*protocol.Response, error) {
	leader, err := h.authService.LoginLeader(ctx, req.TripCode, req.Password)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Token: leader.Token, Role: string(leader.Kind()), TripCode: leader.Trip}, nil
}

func (h *Handlers) submitTripStatus(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	trip, err := h.reviewService.SetTripStatus(ctx, role, req.TripCode, req.TripStatus)
	if err != nil {
		return nil, err
	}
	return tripResponse(trip), nil
}

func (h *Handlers) adminGetTrips(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	trips, err := h.reviewService.ListTrips(ctx, role, req.StatusFilter)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Trips: trips}, nil
}

func (h *Handlers) adminGetTripDetail(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	detail, err := h.reviewService.GetTripDetail(ctx, role, req.TripCode)
	if err != nil {
		return nil, err
	}
	resp := snapshotResponse(&detail.TripSnapshot)
	resp.Counts = &detail.Counts
	return resp, nil
}

func (h *Handlers) adminReview(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	trip, err := h.reviewService.ReviewTrip(ctx, role, req.TripCode, req.ReviewAction, req.Note)
	if err != nil {
		return nil, err
	}
	return tripResponse(trip), nil
}

func (h *Handlers) adminReviewExpense(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	exp, err := h.reviewService.ReviewExpense(ctx, role, req.ExpenseID, req.ReviewAction, req.Note)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{TripCode: exp.TripCode, Expense: exp}, nil
}

func (h *Handlers) adminBatchReviewExpenses(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	results, version, err := h.reviewService.BatchReviewExpenses(ctx, role, req.TripCode, req.Reviews)
	if err != nil {
		return nil, err
	}

	resp := &protocol.Response{TripCode: req.TripCode, ServerLastModified: version}
	for _, r := range results {
		out := protocol.ReviewResult{ExpenseID: r.ExpenseID, Success: r.Err == nil}
		if r.Err != nil {
			out.Error = r.Err.Error()
			out.ErrorCode = protocol.CodeFor(r.Err)
		}
		resp.Results = append(resp.Results, out)
	}
	return resp, nil
}

func (h *Handlers) adminEditExpense(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	if req.Changes == nil {
		return nil, fmt.Errorf("%w: changes are required", entity.ErrValidation)
	}
	exp, err := h.reviewService.EditExpense(ctx, role, req.ExpenseID, *req.Changes)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{TripCode: exp.TripCode, Expense: exp}, nil
}

func (h *Handlers) adminLockTrip(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	return h.setLock(ctx, req, role, true)
}

func (h *Handlers) adminUnlockTrip(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	return h.setLock(ctx, req, role, false)
}

func (h *Handlers) setLock(ctx context.Context, req *protocol.Request, role access.Role, locked bool) (*protocol.Response, error) {
	trip, err := h.reviewService.SetLock(ctx, role, req.TripCode, locked)
	if err != nil {
		return nil, err
	}
	return tripResponse(trip), nil
}

func (h *Handlers) adminGetPhoto(ctx context.Context, req *protocol.Request, role access.Role) (*protocol.Response, error) {
	photo, err := h.reviewService.GetPhoto(ctx, role, req.FileID)
	if err != nil {
		return nil, err
	}
	return &protocol.Response{
		Photo:    base64.StdEncoding.EncodeToString(photo.Content),
		MimeType: photo.MimeType,
	}, nil
}

func snapshotResponse(s *service.TripSnapshot) *protocol.Response {
	return &protocol.Response{
		TripCode:           s.Trip.TripCode,
		ServerLastModified: s.Trip.ServerLastModified,
		Trip:               s.Trip,
		Employees:          s.Employees,
		Expenses:           s.Expenses,
	}
}

func tripResponse(trip *entity.Trip) *protocol.Response {
	return &protocol.Response{
		TripCode:           trip.TripCode,
		ServerLastModified: trip.ServerLastModified,
		Trip:               trip,
	}
}
