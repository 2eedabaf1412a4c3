package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/protocol"
)

// UploadOutcome classifies the result of an upload attempt
type UploadOutcome string

const (
	UploadOutcomeSuccess   UploadOutcome = "success"
	UploadOutcomeConflict  UploadOutcome = "conflict"
	UploadOutcomeDuplicate UploadOutcome = "duplicate_submitter"
)

// UploadOptions tune one upload
type UploadOptions struct {
	// ConfirmOverwrite skips the duplicate submitter check
	ConfirmOverwrite bool
	// Password sets the leader password on the first upload. Members may
	// not send it to an existing trip.
	Password string
}

// Snapshot is the server state of one trip
type Snapshot struct {
	Trip      *entity.Trip
	Employees []entity.Employee
	Expenses  []*entity.Expense
}

// UploadResult reports what an upload did
type UploadResult struct {
	Outcome       UploadOutcome
	TripCode      string
	ServerVersion int64
	// Duplicate is set for UploadOutcomeDuplicate
	Duplicate *protocol.Duplicate
	// Server is the current server state for UploadOutcomeConflict
	Server *Snapshot
}

// SyncEngine moves a session to and from the server. Calls on one engine
// are serialized.
type SyncEngine struct {
	api     Caller
	session *Session
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewSyncEngine creates an engine over api for session
func NewSyncEngine(api Caller, session *Session, logger *zap.Logger) *SyncEngine {
	return &SyncEngine{
		api:     api,
		session: session,
		logger:  logger,
	}
}

// Session returns the session the engine syncs
func (e *SyncEngine) Session() *Session {
	return e.session
}

// call sends req with the session token and clears a rejected token
func (e *SyncEngine) call(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	role := e.session.Role()
	if req.Token == "" {
		req.Token = access.ResolveToken(role)
	}

	resp, err := e.api.Call(ctx, req)
	if err != nil && errors.Is(err, entity.ErrAuth) && req.Token != "" {
		e.session.clearToken()
	}
	return resp, err
}

// Upload submits the session to the server. A trip that already has a code
// is first checked for another submission under the same name.
func (e *SyncEngine) Upload(ctx context.Context, opts UploadOptions) (*UploadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.session.prepareUpload(ctx)
	if out.submittedBy == "" {
		return nil, fmt.Errorf("%w: submitter name is required", entity.ErrValidation)
	}
	if opts.Password != "" && !out.manage {
		return nil, fmt.Errorf("%w: only the trip leader sets the password of %s", entity.ErrForbidden, out.tripCode)
	}

	if out.tripCode != "" && !opts.ConfirmOverwrite {
		if dup := e.checkDuplicate(ctx, out); dup != nil {
			return &UploadResult{
				Outcome:   UploadOutcomeDuplicate,
				TripCode:  out.tripCode,
				Duplicate: dup,
			}, nil
		}
	}

	stamp := e.session.stamp()
	req := protocol.Request{
		Action:          protocol.ActionSubmitTrip,
		TripCode:        out.tripCode,
		Expenses:        out.expenses,
		SubmittedBy:     out.submittedBy,
		BaseVersion:     out.baseVersion,
		ClientTimestamp: stamp,
	}
	if out.manage {
		info := out.info
		req.TripInfo = &info
		req.Employees = &out.employees
		req.LeaderName = out.leaderName
		req.Password = opts.Password
	}
	resp, err := e.call(ctx, req)
	if errors.Is(err, entity.ErrVersionConflict) {
		return e.conflict(ctx, out.tripCode)
	}
	if err != nil {
		e.logger.Error("Upload failed", zap.String("trip_code", out.tripCode), zap.Error(err))
		return nil, err
	}

	e.session.applyUpload(out, resp.TripCode, resp.ServerLastModified, stamp, resp.Expenses)
	e.logger.Info("Trip uploaded",
		zap.String("trip_code", resp.TripCode),
		zap.Int("expenses", len(out.expenses)),
		zap.Int64("server_version", resp.ServerLastModified))

	return &UploadResult{
		Outcome:       UploadOutcomeSuccess,
		TripCode:      resp.TripCode,
		ServerVersion: resp.ServerLastModified,
	}, nil
}

// checkDuplicate reports another submission under the submitter's name.
// Data the session itself uploaded earlier is not a duplicate, and a failed
// check never blocks the upload.
func (e *SyncEngine) checkDuplicate(ctx context.Context, out outgoing) *protocol.Duplicate {
	resp, err := e.call(ctx, protocol.Request{
		Action:      protocol.ActionCheckDuplicate,
		TripCode:    out.tripCode,
		SubmittedBy: out.submittedBy,
	})
	if err != nil {
		e.logger.Warn("Duplicate check skipped", zap.String("trip_code", out.tripCode), zap.Error(err))
		return nil
	}
	if resp.Duplicate == nil || !resp.Duplicate.Exists {
		return nil
	}

	for _, exp := range out.expenses {
		if exp.ExpenseID != "" && exp.EmployeeName == out.submittedBy {
			return nil
		}
	}
	return resp.Duplicate
}

func (e *SyncEngine) conflict(ctx context.Context, tripCode string) (*UploadResult, error) {
	snap, err := e.fetch(ctx, tripCode)
	if err != nil {
		return nil, fmt.Errorf("version conflict, fetching server state: %w", err)
	}
	e.session.observeTrip(snap.Trip)
	e.session.observeVersion(snap.Trip.ServerLastModified)

	e.logger.Warn("Upload rejected by newer server version",
		zap.String("trip_code", tripCode),
		zap.Int64("server_version", snap.Trip.ServerLastModified))
	return &UploadResult{
		Outcome:       UploadOutcomeConflict,
		TripCode:      tripCode,
		ServerVersion: snap.Trip.ServerLastModified,
		Server:        snap,
	}, nil
}

func (e *SyncEngine) fetch(ctx context.Context, tripCode string) (*Snapshot, error) {
	resp, err := e.call(ctx, protocol.Request{Action: protocol.ActionDownloadTrip, TripCode: tripCode})
	if err != nil {
		return nil, err
	}
	if resp.Trip == nil {
		return nil, fmt.Errorf("%w: downloadTrip returned no trip", ErrUnavailable)
	}
	return &Snapshot{Trip: resp.Trip, Employees: resp.Employees, Expenses: resp.Expenses}, nil
}

// Download replaces the local trip with the server state. An empty
// tripCode means the session's own trip.
func (e *SyncEngine) Download(ctx context.Context, tripCode string) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.download(ctx, tripCode)
}

func (e *SyncEngine) download(ctx context.Context, tripCode string) (*Snapshot, error) {
	if tripCode == "" {
		tripCode = e.session.TripCode()
	}
	if tripCode == "" {
		return nil, fmt.Errorf("%w: no trip code to download", entity.ErrValidation)
	}

	stamp := e.session.stamp()
	snap, err := e.fetch(ctx, tripCode)
	if err != nil {
		return nil, err
	}

	e.session.applySnapshot(ctx, snap, stamp)
	e.logger.Info("Trip downloaded",
		zap.String("trip_code", tripCode),
		zap.Int("expenses", len(snap.Expenses)),
		zap.Int64("server_version", snap.Trip.ServerLastModified))
	return snap, nil
}

// ResolveConflictByDownload discards local edits in favour of the server
func (e *SyncEngine) ResolveConflictByDownload(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.download(ctx, "")
}

// CheckServerUpdate polls the server version and raises the update flag
// when it moved past the last sync. It never downloads. On failure the
// flag is left as it was.
func (e *SyncEngine) CheckServerUpdate(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tripCode := e.session.TripCode()
	if tripCode == "" {
		return false, nil
	}

	resp, err := e.call(ctx, protocol.Request{Action: protocol.ActionCheckServerVersion, TripCode: tripCode})
	if err != nil {
		return e.session.HasServerUpdate(), err
	}
	return e.session.observeVersion(resp.ServerLastModified), nil
}

// RefreshStatus fetches the member view of the trip to update lock and
// review state without touching local expenses.
func (e *SyncEngine) RefreshStatus(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tripCode := e.session.TripCode()
	if tripCode == "" {
		return nil, fmt.Errorf("%w: trip has not been uploaded", entity.ErrValidation)
	}

	resp, err := e.call(ctx, protocol.Request{
		Action:     protocol.ActionGetTripStatus,
		TripCode:   tripCode,
		MemberName: e.session.UserName(),
	})
	if err != nil {
		return nil, err
	}
	e.session.observeTrip(resp.Trip)
	if resp.Trip != nil {
		e.session.observeVersion(resp.Trip.ServerLastModified)
	}
	return &Snapshot{Trip: resp.Trip, Employees: resp.Employees, Expenses: resp.Expenses}, nil
}

// Status derives the session sync state
func (e *SyncEngine) Status() SyncStatus {
	return e.session.Status()
}
