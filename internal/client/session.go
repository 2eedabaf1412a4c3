package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/expense"
)

// SyncStatus is the derived sync state of a session
type SyncStatus string

const (
	StatusSynced         SyncStatus = "synced"
	StatusLocalChanges   SyncStatus = "local_changes_unsynced"
	StatusServerUpdate   SyncStatus = "server_update_available"
	StatusClosedOrLocked SyncStatus = "closed_or_locked"
)

// PhotoSource resolves local photo handles to bytes
type PhotoSource interface {
	Load(ctx context.Context, handle string) ([]byte, error)
	Release(ctx context.Context, handle string) error
}

// Draft is the persisted form of a session
type Draft struct {
	UserName   string            `json:"userName"`
	LeaderName string            `json:"leaderName,omitempty"`
	TripCode   string            `json:"tripCode,omitempty"`
	TripInfo   entity.TripInfo   `json:"tripInfo"`
	Employees  []entity.Employee `json:"employees"`
	Expenses   []*entity.Expense `json:"expenses"`
	// Trip is the last server record seen, used for lock and status display
	Trip *entity.Trip `json:"trip,omitempty"`

	RoleKind access.Kind `json:"roleKind,omitempty"`
	Token    string      `json:"token,omitempty"`

	PendingPhotos   []string `json:"pendingPhotos,omitempty"`
	ServerVersion   int64    `json:"serverVersion"`
	LastSyncTime    int64    `json:"lastSyncTime"`
	Revision        int64    `json:"revision"`
	SyncedRevision  int64    `json:"syncedRevision"`
	HasServerUpdate bool     `json:"hasServerUpdate"`
}

// Session is the local state of one trip on one device
type Session struct {
	mu sync.RWMutex

	userName   string
	leaderName string
	role       access.Role

	tripCode  string
	info      entity.TripInfo
	employees []entity.Employee
	trip      *entity.Trip
	store     *expense.Store

	photos PhotoSource
	// pending holds expense ids whose photo has not reached the server
	pending map[string]bool

	serverVersion   int64
	lastSyncTime    int64
	revision        int64
	syncedRevision  int64
	hasServerUpdate bool

	now    func() time.Time
	logger *zap.Logger
}

// NewSession creates an empty session for userName. photos may be nil.
func NewSession(userName string, photos PhotoSource, logger *zap.Logger) *Session {
	s := &Session{
		userName: userName,
		photos:   photos,
		pending:  make(map[string]bool),
		now:      time.Now,
		logger:   logger,
	}
	var releaser expense.PhotoReleaser
	if photos != nil {
		releaser = photos
	}
	s.store = expense.NewStore(releaser, logger)
	return s
}

// UserName returns the member name the session submits as
func (s *Session) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userName
}

// SetLeaderName records the leader announced on the first upload
func (s *Session) SetLeaderName(name string) {
	s.mu.Lock()
	s.leaderName = name
	s.mu.Unlock()
}

// Role returns the current role; without a login it is a member
func (s *Session) Role() access.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roleLocked()
}

func (s *Session) roleLocked() access.Role {
	if s.role != nil {
		return s.role
	}
	return access.Member{Name: s.userName, Trip: s.tripCode}
}

// SetRole installs a privileged role after a login
func (s *Session) SetRole(role access.Role) {
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
}

// clearToken drops a rejected token, falling back to the member role
func (s *Session) clearToken() {
	s.mu.Lock()
	s.role = nil
	s.mu.Unlock()
	s.logger.Info("Session token cleared")
}

// TripCode returns the server trip code, empty before the first upload
func (s *Session) TripCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tripCode
}

// SetTripCode joins an existing trip, typically before a download
func (s *Session) SetTripCode(code string) {
	s.mu.Lock()
	s.tripCode = code
	s.mu.Unlock()
}

// TripInfo returns the trip header
func (s *Session) TripInfo() entity.TripInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// SetTripInfo validates and replaces the trip header
func (s *Session) SetTripInfo(info entity.TripInfo) error {
	info.ApplyDefaults()
	if err := info.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.info = info
	s.revision++
	s.mu.Unlock()
	return nil
}

// Employees returns a copy of the employee list
func (s *Session) Employees() []entity.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Employee(nil), s.employees...)
}

// SetEmployees validates and replaces the employee list
func (s *Session) SetEmployees(employees []entity.Employee) error {
	for _, emp := range employees {
		if err := emp.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.employees = append([]entity.Employee(nil), employees...)
	s.revision++
	s.mu.Unlock()
	return nil
}

// AddExpense records a new expense owned by the session user unless named otherwise
func (s *Session) AddExpense(exp entity.Expense) (*entity.Expense, error) {
	if exp.EmployeeName == "" {
		exp.EmployeeName = s.UserName()
	}
	exp.ExpenseID = ""
	exp.PhotoFileID = ""
	exp.ExpenseStatus = ""

	added, err := s.store.Add(exp)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if added.Photo != "" {
		s.pending[added.ID] = true
	}
	s.revision++
	s.mu.Unlock()
	return added, nil
}

// UpdateExpense applies a partial update to a local expense
func (s *Session) UpdateExpense(id string, patch expense.Patch) (*entity.Expense, error) {
	updated, err := s.store.Update(id, patch)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if patch.Photo != nil && *patch.Photo != "" {
		s.pending[id] = true
	}
	s.revision++
	s.mu.Unlock()
	return updated, nil
}

// RemoveExpense deletes a local expense and releases its photo
func (s *Session) RemoveExpense(ctx context.Context, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.pending, id)
	s.revision++
	s.mu.Unlock()
	return nil
}

// Expenses returns every local expense in insertion order
func (s *Session) Expenses() []*entity.Expense {
	return s.store.All()
}

// VisibleExpenses returns what the current role may see
func (s *Session) VisibleExpenses() []*entity.Expense {
	role := s.Role()
	return s.store.Visible(expense.Viewer{
		Name:       role.DisplayName(),
		Privileged: access.IsPrivileged(role),
	})
}

// Trip returns a copy of the last server record seen, or nil
func (s *Session) Trip() *entity.Trip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trip == nil {
		return nil
	}
	t := *s.trip
	return &t
}

// ServerVersion returns the serverLastModified of the last sync
func (s *Session) ServerVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverVersion
}

// LastSyncTime returns the client timestamp of the last sync in unix ms
func (s *Session) LastSyncTime() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncTime
}

// HasServerUpdate reports whether a poll saw a newer server version
func (s *Session) HasServerUpdate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasServerUpdate
}

// Status derives the sync state: a closed or locked trip wins, then a
// pending server update, then unsynced local edits.
func (s *Session) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.trip != nil && s.trip.IsReadOnlyForMembers():
		return StatusClosedOrLocked
	case s.hasServerUpdate:
		return StatusServerUpdate
	case s.revision != s.syncedRevision:
		return StatusLocalChanges
	default:
		return StatusSynced
	}
}

// outgoing is one prepared upload
type outgoing struct {
	tripCode    string
	info        entity.TripInfo
	employees   []entity.Employee
	expenses    []*entity.Expense
	submittedBy string
	leaderName  string
	baseVersion int64
	revision    int64
	role        access.Role
	// manage is set when the upload may carry the trip header, the
	// employee list and the leader password
	manage bool
}

// prepareUpload snapshots what the current role may submit. Members send
// only their own expenses and, once the trip exists, no header; photos
// awaiting upload travel as base64.
func (s *Session) prepareUpload(ctx context.Context) outgoing {
	s.mu.RLock()
	out := outgoing{
		tripCode:    s.tripCode,
		info:        s.info,
		employees:   make([]entity.Employee, len(s.employees)),
		submittedBy: s.userName,
		leaderName:  s.leaderName,
		baseVersion: s.serverVersion,
		revision:    s.revision,
		role:        s.roleLocked(),
	}
	copy(out.employees, s.employees)
	out.manage = out.tripCode == "" ||
		(access.IsPrivileged(out.role) && access.InScope(out.role, out.tripCode))
	pending := make(map[string]bool, len(s.pending))
	for id := range s.pending {
		pending[id] = true
	}
	s.mu.RUnlock()

	privileged := access.IsPrivileged(out.role)
	for _, exp := range s.store.All() {
		if !privileged && exp.EmployeeName != out.submittedBy {
			continue
		}
		if pending[exp.ID] && exp.Photo != "" {
			exp.PhotoData = s.encodePhoto(ctx, exp)
		}
		out.expenses = append(out.expenses, exp)
	}
	return out
}

func (s *Session) encodePhoto(ctx context.Context, exp *entity.Expense) string {
	if s.photos == nil {
		return ""
	}
	content, err := s.photos.Load(ctx, exp.Photo)
	if err != nil {
		s.logger.Warn("Skipping unreadable receipt photo",
			zap.String("expense_id", exp.ID),
			zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(content)
}

// applyUpload records an accepted upload and adopts the server ids
func (s *Session) applyUpload(out outgoing, tripCode string, version, stamp int64, synced []*entity.Expense) {
	byLocal := make(map[string]*entity.Expense, len(synced))
	for _, exp := range synced {
		if exp.ID != "" {
			byLocal[exp.ID] = exp
		}
	}

	local := s.store.All()
	merged := make([]*entity.Expense, 0, len(local))
	sent := make(map[string]bool, len(out.expenses))
	for _, exp := range out.expenses {
		sent[exp.ID] = exp.PhotoData != ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, exp := range local {
		remote, ok := byLocal[exp.ID]
		if !ok {
			merged = append(merged, exp)
			continue
		}
		if sent[exp.ID] {
			delete(s.pending, exp.ID)
		}
		if s.pending[exp.ID] {
			delete(s.pending, exp.ID)
			s.pending[remote.ExpenseID] = true
		}
		exp.ID = remote.ExpenseID
		exp.ExpenseID = remote.ExpenseID
		exp.TripCode = tripCode
		exp.PhotoFileID = remote.PhotoFileID
		exp.PhotoData = ""
		exp.EmployeeName = remote.EmployeeName
		exp.ExpenseStatus = remote.ExpenseStatus
		exp.ExpenseReviewNote = remote.ExpenseReviewNote
		exp.LastModifiedBy = remote.LastModifiedBy
		merged = append(merged, exp)
	}
	s.store.Replace(merged)

	s.tripCode = tripCode
	s.serverVersion = version
	s.lastSyncTime = stamp
	s.syncedRevision = out.revision
	s.hasServerUpdate = false
	if s.trip != nil {
		s.trip.ServerLastModified = version
	}
}

// applySnapshot replaces the local trip wholesale with the server state.
// Local photo handles survive for expenses that are still present.
func (s *Session) applySnapshot(ctx context.Context, snap *Snapshot, stamp int64) {
	handles := make(map[string]string)
	for _, exp := range s.store.All() {
		if exp.Photo != "" {
			handles[exp.ID] = exp.Photo
		}
	}

	incoming := make([]*entity.Expense, 0, len(snap.Expenses))
	for _, exp := range snap.Expenses {
		c := exp.Clone()
		c.ID = c.ExpenseID
		if handle, ok := handles[c.ID]; ok {
			c.Photo = handle
			delete(handles, c.ID)
		}
		incoming = append(incoming, c)
	}
	s.store.Replace(incoming)

	if s.photos != nil {
		for id, handle := range handles {
			if err := s.photos.Release(ctx, handle); err != nil {
				s.logger.Warn("Failed to release dropped receipt photo",
					zap.String("expense_id", id),
					zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trip := *snap.Trip
	s.trip = &trip
	s.tripCode = trip.TripCode
	s.info = trip.TripInfo
	s.employees = append([]entity.Employee(nil), snap.Employees...)
	if s.leaderName == "" {
		s.leaderName = trip.LeaderName
	}
	s.pending = make(map[string]bool)
	s.serverVersion = trip.ServerLastModified
	s.lastSyncTime = stamp
	s.syncedRevision = s.revision
	s.hasServerUpdate = false
}

// observeTrip refreshes the server record without touching local data
func (s *Session) observeTrip(trip *entity.Trip) {
	if trip == nil {
		return
	}
	t := *trip
	s.mu.Lock()
	s.trip = &t
	s.mu.Unlock()
}

// observeVersion flags a newer server version; it never clears the flag
func (s *Session) observeVersion(version int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > s.serverVersion {
		s.hasServerUpdate = true
	}
	return s.hasServerUpdate
}

func (s *Session) stamp() int64 {
	return s.now().UnixMilli()
}

// Snapshot returns the persistable form of the session
func (s *Session) Snapshot() Draft {
	expenses := s.store.All()

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Draft{
		UserName:        s.userName,
		LeaderName:      s.leaderName,
		TripCode:        s.tripCode,
		TripInfo:        s.info,
		Employees:       append([]entity.Employee(nil), s.employees...),
		Expenses:        expenses,
		ServerVersion:   s.serverVersion,
		LastSyncTime:    s.lastSyncTime,
		Revision:        s.revision,
		SyncedRevision:  s.syncedRevision,
		HasServerUpdate: s.hasServerUpdate,
	}
	if s.trip != nil {
		t := *s.trip
		d.Trip = &t
	}
	if s.role != nil {
		d.RoleKind = s.role.Kind()
		d.Token = access.ResolveToken(s.role)
	}
	for id := range s.pending {
		d.PendingPhotos = append(d.PendingPhotos, id)
	}
	return d
}

// Restore loads a persisted draft into the session
func (s *Session) Restore(d Draft) {
	s.store.Replace(d.Expenses)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.userName = d.UserName
	s.leaderName = d.LeaderName
	s.tripCode = d.TripCode
	s.info = d.TripInfo
	s.employees = append([]entity.Employee(nil), d.Employees...)
	s.trip = d.Trip
	s.serverVersion = d.ServerVersion
	s.lastSyncTime = d.LastSyncTime
	s.revision = d.Revision
	s.syncedRevision = d.SyncedRevision
	s.hasServerUpdate = d.HasServerUpdate

	s.pending = make(map[string]bool, len(d.PendingPhotos))
	for _, id := range d.PendingPhotos {
		s.pending[id] = true
	}

	s.role = nil
	switch d.RoleKind {
	case access.KindAuditor:
		s.role = access.Auditor{Token: d.Token}
	case access.KindLeader:
		s.role = access.Leader{Token: d.Token, Trip: d.TripCode, Name: d.LeaderName}
	}
}

// Save writes the session to path atomically
func (s *Session) Save(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}

// LoadSession reads a saved session; a missing file yields an empty one
func LoadSession(path, userName string, photos PhotoSource, logger *zap.Logger) (*Session, error) {
	s := NewSession(userName, photos, logger)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", path, err)
	}
	if userName != "" {
		d.UserName = userName
	}
	s.Restore(d)
	return s, nil
}
