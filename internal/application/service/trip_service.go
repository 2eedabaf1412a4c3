package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/review"
)

// SubmitCommand is one trip upload
type SubmitCommand struct {
	// TripCode is empty on the first upload
	TripCode    string
	TripInfo    *entity.TripInfo
	Employees   []entity.Employee
	Expenses    []*entity.Expense
	SubmittedBy string
	LeaderName  string
	Password    string
	BaseVersion int64
	// Role is the authenticated caller; nil means a member named SubmittedBy
	Role access.Role
}

// SubmitResult is the server state after an accepted upload
type SubmitResult struct {
	TripCode           string
	ServerLastModified int64
	// Expenses are the caller's entries as stored, echoing each client id
	Expenses []*entity.Expense
}

// TripSnapshot is the full server state of one trip
type TripSnapshot struct {
	Trip      *entity.Trip
	Employees []entity.Employee
	Expenses  []*entity.Expense
}

// TripService serves the member-facing sync actions
type TripService interface {
	SubmitTrip(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error)
	// GetTripStatus limits expenses to memberName when it is set
	GetTripStatus(ctx context.Context, tripCode, memberName string) (*TripSnapshot, error)
	DownloadTrip(ctx context.Context, tripCode string) (*TripSnapshot, error)
	CheckServerVersion(ctx context.Context, tripCode string) (int64, error)
	CheckDuplicate(ctx context.Context, tripCode, submittedBy string) (*port.SubmitterActivity, error)
	GetMembers(ctx context.Context, tripCode string) ([]string, error)
}

type tripServiceImpl struct {
	tripReader
	photos     port.PhotoStorage
	ids        port.IDGenerator
	hasher     port.PasswordHasher
	authorizer *access.Authorizer
	txManager  port.TransactionManager
	metrics    MetricsRecorder
}

// NewTripService creates a new TripService. metrics may be nil.
func NewTripService(
	tripRepo port.TripRepository,
	employeeRepo port.EmployeeRepository,
	expenseRepo port.ExpenseRepository,
	photos port.PhotoStorage,
	ids port.IDGenerator,
	hasher port.PasswordHasher,
	authorizer *access.Authorizer,
	txManager port.TransactionManager,
	metrics MetricsRecorder,
	logger Logger,
) TripService {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &tripServiceImpl{
		tripReader: tripReader{
			tripRepo:     tripRepo,
			employeeRepo: employeeRepo,
			expenseRepo:  expenseRepo,
			logger:       logger,
		},
		photos:     photos,
		ids:        ids,
		hasher:     hasher,
		authorizer: authorizer,
		txManager:  txManager,
		metrics:    metrics,
	}
}

// submission tracks photo files written or orphaned during one upload
type submission struct {
	stored   []string
	released []string
	synced   []*entity.Expense
}

// SubmitTrip creates the trip on first upload and updates it in place afterwards.
// Members replace only their own expenses; privileged roles replace the whole set.
func (s *tripServiceImpl) SubmitTrip(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error) {
	if err := validateSubmit(cmd); err != nil {
		return nil, err
	}

	var (
		result *SubmitResult
		sub    submission
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// A busy retry runs this again; drop what the failed attempt wrote
		s.releasePhotos(ctx, sub.stored)
		sub = submission{}
		now := time.Now()

		trip, created, err := s.resolveTrip(txCtx, cmd, now)
		if err != nil {
			return err
		}

		role := cmd.Role
		if role == nil {
			role = access.Member{Name: cmd.SubmittedBy, Trip: trip.TripCode}
		}
		if err := s.authorizer.CheckWritable(role, trip); err != nil {
			return err
		}

		capability := access.CapEditOwnExpenses
		if access.IsPrivileged(role) {
			capability = access.CapEditOthersExpenses
		}
		if err := s.authorizer.Authorize(role, capability, trip.TripCode); err != nil {
			return err
		}

		if created || s.authorizer.Can(role, access.CapManageTrip, trip.TripCode) {
			if err := s.applyHeader(txCtx, trip, cmd); err != nil {
				return err
			}
		} else if err := s.checkHeaderUnchanged(txCtx, trip, cmd); err != nil {
			return err
		}

		version := nextVersion(now, trip.ServerLastModified)
		if err := s.syncExpenses(txCtx, trip.TripCode, cmd, role, version, &sub); err != nil {
			return err
		}

		trip.ServerLastModified = version
		if err := s.tripRepo.Update(txCtx, trip); err != nil {
			return fmt.Errorf("update trip: %w", err)
		}

		result = &SubmitResult{TripCode: trip.TripCode, ServerLastModified: version, Expenses: sub.synced}
		return nil
	})

	if err != nil {
		s.releasePhotos(ctx, sub.stored)
		s.logger.Error("Failed to submit trip", "error", err, "trip_code", cmd.TripCode, "submitted_by", cmd.SubmittedBy)
		return nil, err
	}

	s.releasePhotos(ctx, sub.released)
	s.logger.Info("Trip submitted",
		"trip_code", result.TripCode,
		"submitted_by", cmd.SubmittedBy,
		"expenses", len(cmd.Expenses),
		"server_last_modified", result.ServerLastModified)
	return result, nil
}

// resolveTrip creates a new trip or loads the existing one and checks its version.
// created is true when this upload assigned the trip code.
func (s *tripServiceImpl) resolveTrip(ctx context.Context, cmd SubmitCommand, now time.Time) (trip *entity.Trip, created bool, err error) {
	if cmd.TripCode == "" {
		if cmd.TripInfo == nil {
			return nil, false, fmt.Errorf("%w: tripInfo is required on first upload", entity.ErrValidation)
		}
		code, err := s.tripRepo.NextCode(ctx)
		if err != nil {
			return nil, false, err
		}

		info := *cmd.TripInfo
		info.ApplyDefaults()
		leader := cmd.LeaderName
		if leader == "" {
			leader = cmd.SubmittedBy
		}
		trip = &entity.Trip{
			TripInfo:           info,
			TripCode:           code,
			SubmittedBy:        cmd.SubmittedBy,
			SubmittedDate:      now.UTC().Format(time.RFC3339),
			LeaderName:         leader,
			TripStatus:         entity.TripOpen,
			Status:             entity.ReviewPending,
			ServerLastModified: nextVersion(now, 0),
		}
		if err := s.tripRepo.Create(ctx, trip); err != nil {
			return nil, false, fmt.Errorf("create trip: %w", err)
		}
		s.logger.Info("Trip code assigned", "trip_code", code, "submitted_by", cmd.SubmittedBy)
		return trip, true, nil
	}

	trip, err = s.tripRepo.GetByCode(ctx, cmd.TripCode)
	if err != nil {
		return nil, false, err
	}
	if trip == nil {
		return nil, false, fmt.Errorf("%w: trip %s", entity.ErrNotFound, cmd.TripCode)
	}
	if cmd.BaseVersion < trip.ServerLastModified {
		s.metrics.ObserveConflict()
		return nil, false, fmt.Errorf("%w: base version %d is older than server version %d",
			entity.ErrVersionConflict, cmd.BaseVersion, trip.ServerLastModified)
	}
	return trip, false, nil
}

// applyHeader stores the trip header, leader and employee list sent by the
// creating upload or a role that manages the trip. The leader password is
// set once.
func (s *tripServiceImpl) applyHeader(ctx context.Context, trip *entity.Trip, cmd SubmitCommand) error {
	if cmd.TripInfo != nil {
		info := *cmd.TripInfo
		info.ApplyDefaults()
		trip.TripInfo = info
	}
	if cmd.LeaderName != "" {
		trip.LeaderName = cmd.LeaderName
	}
	if cmd.Password != "" && trip.PasswordHash == "" {
		hash, err := s.hasher.Hash(cmd.Password)
		if err != nil {
			return err
		}
		trip.PasswordHash = hash
	}

	if cmd.Employees != nil {
		if err := s.employeeRepo.ReplaceForTrip(ctx, trip.TripCode, cmd.Employees); err != nil {
			return fmt.Errorf("replace employees: %w", err)
		}
	}
	return nil
}

// checkHeaderUnchanged lets a member echo the stored header back but rejects
// any change to it, and any attempt to set the leader password.
func (s *tripServiceImpl) checkHeaderUnchanged(ctx context.Context, trip *entity.Trip, cmd SubmitCommand) error {
	if cmd.Password != "" {
		return fmt.Errorf("%w: only the trip leader sets the password of %s", entity.ErrForbidden, trip.TripCode)
	}
	if cmd.LeaderName != "" && cmd.LeaderName != trip.LeaderName {
		return fmt.Errorf("%w: only the trip leader changes the leader of %s", entity.ErrForbidden, trip.TripCode)
	}
	if cmd.TripInfo != nil {
		info := *cmd.TripInfo
		info.ApplyDefaults()
		if info != trip.TripInfo {
			return fmt.Errorf("%w: only the trip leader edits the details of %s", entity.ErrForbidden, trip.TripCode)
		}
	}
	if cmd.Employees == nil {
		return nil
	}

	current, err := s.employeeRepo.ListByTrip(ctx, trip.TripCode)
	if err != nil {
		return err
	}
	if !slices.Equal(current, cmd.Employees) {
		return fmt.Errorf("%w: only the trip leader edits the employees of %s", entity.ErrForbidden, trip.TripCode)
	}
	return nil
}

// syncExpenses replaces the caller's slice of the expense set with cmd.Expenses
func (s *tripServiceImpl) syncExpenses(ctx context.Context, tripCode string, cmd SubmitCommand, role access.Role, version int64, sub *submission) error {
	privileged := access.IsPrivileged(role)

	current, err := s.expenseRepo.ListByTrip(ctx, tripCode)
	if err != nil {
		return err
	}
	owned := make(map[string]*entity.Expense)
	for _, exp := range current {
		if privileged || exp.EmployeeName == cmd.SubmittedBy {
			owned[exp.ExpenseID] = exp
		}
	}

	kept := make(map[string]bool)
	for _, in := range cmd.Expenses {
		exp := in.Clone()
		exp.TripCode = tripCode
		if !privileged || exp.EmployeeName == "" {
			exp.EmployeeName = cmd.SubmittedBy
		}
		exp.LastModifiedBy = cmd.SubmittedBy
		exp.RecomputeNTD()

		prev, known := owned[exp.ExpenseID]
		if exp.ExpenseID == "" || !known {
			if err := s.createExpense(ctx, exp, version, sub); err != nil {
				return err
			}
		} else {
			kept[exp.ExpenseID] = true
			if err := s.updateExpense(ctx, prev, exp, version, sub); err != nil {
				return err
			}
		}
		sub.synced = append(sub.synced, exp)
	}

	for id, prev := range owned {
		if kept[id] {
			continue
		}
		if err := s.expenseRepo.Delete(ctx, id); err != nil {
			return err
		}
		if prev.PhotoFileID != "" {
			sub.released = append(sub.released, prev.PhotoFileID)
		}
	}
	return nil
}

func (s *tripServiceImpl) createExpense(ctx context.Context, exp *entity.Expense, version int64, sub *submission) error {
	exp.ExpenseID = s.ids.NextID()
	if exp.ID == "" {
		exp.ID = exp.ExpenseID
	}
	exp.ExpenseStatus = entity.ReviewPending
	exp.ExpenseReviewNote = ""
	if photoTrip(exp.PhotoFileID) != exp.TripCode {
		exp.PhotoFileID = ""
	}
	if err := s.storePhoto(ctx, exp, sub); err != nil {
		return err
	}
	return s.expenseRepo.Create(ctx, exp, version)
}

func (s *tripServiceImpl) updateExpense(ctx context.Context, prev, exp *entity.Expense, version int64, sub *submission) error {
	changed := contentChanged(prev, exp)

	exp.ExpenseStatus = prev.ExpenseStatus
	exp.ExpenseReviewNote = prev.ExpenseReviewNote
	if changed {
		if _, err := review.ResubmitExpense(ctx, exp); err != nil {
			return err
		}
	}

	exp.PhotoFileID = prev.PhotoFileID
	if exp.PhotoData != "" {
		if err := s.storePhoto(ctx, exp, sub); err != nil {
			return err
		}
		if prev.PhotoFileID != "" {
			sub.released = append(sub.released, prev.PhotoFileID)
		}
	}

	if !changed && exp.PhotoFileID == prev.PhotoFileID && exp.EmployeeName == prev.EmployeeName {
		return nil
	}
	return s.expenseRepo.Update(ctx, exp, version)
}

// storePhoto moves base64 photoData into photo storage and records its file id
func (s *tripServiceImpl) storePhoto(ctx context.Context, exp *entity.Expense, sub *submission) error {
	if exp.PhotoData == "" {
		return nil
	}
	content, err := decodePhoto(exp.PhotoData)
	if err != nil {
		return err
	}
	fileID, err := s.photos.Store(ctx, exp.TripCode, content)
	if err != nil {
		return fmt.Errorf("store photo: %w", err)
	}
	sub.stored = append(sub.stored, fileID)
	exp.PhotoFileID = fileID
	exp.PhotoData = ""
	return nil
}

func (s *tripServiceImpl) releasePhotos(ctx context.Context, fileIDs []string) {
	for _, id := range fileIDs {
		if err := s.photos.Release(ctx, id); err != nil {
			s.logger.Error("Failed to release photo", "error", err, "file_id", id)
		}
	}
}

// GetTripStatus returns the trip verdicts and the expense statuses
func (s *tripServiceImpl) GetTripStatus(ctx context.Context, tripCode, memberName string) (*TripSnapshot, error) {
	snapshot, err := s.DownloadTrip(ctx, tripCode)
	if err != nil {
		return nil, err
	}
	if memberName == "" {
		return snapshot, nil
	}

	visible := make([]*entity.Expense, 0, len(snapshot.Expenses))
	for _, exp := range snapshot.Expenses {
		if exp.VisibleTo(memberName) {
			visible = append(visible, exp)
		}
	}
	snapshot.Expenses = visible
	return snapshot, nil
}

// DownloadTrip returns the whole trip for a wholesale client replace
func (s *tripServiceImpl) DownloadTrip(ctx context.Context, tripCode string) (*TripSnapshot, error) {
	return s.snapshot(ctx, tripCode)
}

// CheckServerVersion returns the trip's serverLastModified
func (s *tripServiceImpl) CheckServerVersion(ctx context.Context, tripCode string) (int64, error) {
	trip, err := s.getTrip(ctx, tripCode)
	if err != nil {
		return 0, err
	}
	return trip.ServerLastModified, nil
}

// CheckDuplicate reports expenses already stored under submittedBy
func (s *tripServiceImpl) CheckDuplicate(ctx context.Context, tripCode, submittedBy string) (*port.SubmitterActivity, error) {
	if strings.TrimSpace(submittedBy) == "" {
		return nil, fmt.Errorf("%w: submittedBy is required", entity.ErrValidation)
	}
	if _, err := s.getTrip(ctx, tripCode); err != nil {
		return nil, err
	}
	return s.expenseRepo.SubmitterActivity(ctx, tripCode, submittedBy)
}

// GetMembers returns employee names followed by any other submitters
func (s *tripServiceImpl) GetMembers(ctx context.Context, tripCode string) ([]string, error) {
	snapshot, err := s.DownloadTrip(ctx, tripCode)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	members := []string{}
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		members = append(members, name)
	}
	for _, emp := range snapshot.Employees {
		add(emp.Name)
	}
	for _, exp := range snapshot.Expenses {
		add(exp.EmployeeName)
	}
	return members, nil
}

func validateSubmit(cmd SubmitCommand) error {
	if strings.TrimSpace(cmd.SubmittedBy) == "" {
		return fmt.Errorf("%w: submittedBy is required", entity.ErrValidation)
	}
	if cmd.TripInfo != nil {
		if err := cmd.TripInfo.Validate(); err != nil {
			return err
		}
	}
	for _, emp := range cmd.Employees {
		if err := emp.Validate(); err != nil {
			return err
		}
	}
	for _, exp := range cmd.Expenses {
		if exp == nil {
			return fmt.Errorf("%w: null expense entry", entity.ErrValidation)
		}
		if err := exp.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func contentChanged(prev, next *entity.Expense) bool {
	return prev.Category != next.Category ||
		prev.Date != next.Date ||
		prev.Description != next.Description ||
		prev.Currency != next.Currency ||
		prev.Amount != next.Amount ||
		prev.ExchangeRate != next.ExchangeRate ||
		prev.BelongTo != next.BelongTo ||
		next.PhotoData != ""
}

// decodePhoto accepts raw base64 or a data URL
func decodePhoto(data string) ([]byte, error) {
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	content, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: photoData is not base64: %v", entity.ErrValidation, err)
	}
	return content, nil
}
