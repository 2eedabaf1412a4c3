package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
)

func TestTripService_SubmitTrip_FirstUpload(t *testing.T) {
	f := newFixture(t)

	result := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Employees:   []entity.Employee{{Name: "Alice", Apply: "y", StartDate: entity.FullYearSentinel}},
		Expenses:    []*entity.Expense{sampleExpense("lunch", 300)},
		SubmittedBy: "Alice",
		Password:    "pw",
	})

	if result.TripCode != "TRIP-0001" {
		t.Errorf("TripCode = %q, want TRIP-0001", result.TripCode)
	}
	if result.ServerLastModified <= 0 {
		t.Errorf("ServerLastModified = %d, want > 0", result.ServerLastModified)
	}

	trip := f.trips.trips["TRIP-0001"]
	if trip.PasswordHash != "hashed:pw" {
		t.Errorf("PasswordHash = %q, want hashed password", trip.PasswordHash)
	}
	if trip.LeaderName != "Alice" {
		t.Errorf("LeaderName = %q, want Alice", trip.LeaderName)
	}
	if trip.SubsidyAmount != entity.DefaultSubsidyAmount {
		t.Errorf("SubsidyAmount = %v, want default", trip.SubsidyAmount)
	}
	if trip.ServerLastModified != result.ServerLastModified {
		t.Errorf("stored version %d != returned %d", trip.ServerLastModified, result.ServerLastModified)
	}

	expenses := f.expensesOf("TRIP-0001")
	if len(expenses) != 1 {
		t.Fatalf("len(expenses) = %d, want 1", len(expenses))
	}
	if expenses[0].ExpenseID == "" || expenses[0].ExpenseStatus != entity.ReviewPending {
		t.Errorf("expense = %+v, want assigned id and pending status", expenses[0])
	}
	if expenses[0].EmployeeName != "Alice" {
		t.Errorf("EmployeeName = %q, want Alice", expenses[0].EmployeeName)
	}
}

func TestTripService_SubmitTrip_EchoesClientIDs(t *testing.T) {
	f := newFixture(t)

	local := sampleExpense("lunch", 300)
	local.ID = "local-1"
	result := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Expenses:    []*entity.Expense{local},
		SubmittedBy: "Alice",
	})

	if len(result.Expenses) != 1 {
		t.Fatalf("len(result.Expenses) = %d, want 1", len(result.Expenses))
	}
	synced := result.Expenses[0]
	if synced.ID != "local-1" {
		t.Errorf("ID = %q, want local-1", synced.ID)
	}
	if synced.ExpenseID == "" || synced.ExpenseID == "local-1" {
		t.Errorf("ExpenseID = %q, want a server id", synced.ExpenseID)
	}
}

func TestTripService_SubmitTrip_Validation(t *testing.T) {
	tests := []struct {
		name string
		cmd  SubmitCommand
	}{
		{
			name: "missing submitter",
			cmd:  SubmitCommand{TripInfo: sampleInfo()},
		},
		{
			name: "missing trip info on first upload",
			cmd:  SubmitCommand{SubmittedBy: "Alice"},
		},
		{
			name: "end before start",
			cmd: SubmitCommand{
				TripInfo:    &entity.TripInfo{StartDate: "2024-03-05", EndDate: "2024-03-01"},
				SubmittedBy: "Alice",
			},
		},
		{
			name: "unknown category",
			cmd: SubmitCommand{
				TripInfo:    sampleInfo(),
				SubmittedBy: "Alice",
				Expenses:    []*entity.Expense{{Category: "food", Date: "2024-03-02", Currency: "TWD", ExchangeRate: 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.tripSvc.SubmitTrip(context.Background(), tt.cmd)
			if !errors.Is(err, entity.ErrValidation) {
				t.Errorf("SubmitTrip() error = %v, want ErrValidation", err)
			}
			if len(f.trips.trips) != 0 {
				t.Errorf("trip created despite validation failure")
			}
		})
	}
}

func TestTripService_SubmitTrip_MemberReplacesOnlyOwnExpenses(t *testing.T) {
	f := newFixture(t)

	first := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Expenses:    []*entity.Expense{sampleExpense("alice-1", 100), sampleExpense("alice-2", 200)},
		SubmittedBy: "Alice",
	})
	second := f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		Expenses:    []*entity.Expense{sampleExpense("bob-1", 50)},
		SubmittedBy: "Bob",
		BaseVersion: first.ServerLastModified,
	})

	kept := f.expensesOf(first.TripCode)[0].Clone()
	kept.Description = "alice-1"
	f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		Expenses:    []*entity.Expense{kept},
		SubmittedBy: "Alice",
		BaseVersion: second.ServerLastModified,
	})

	if got := descriptions(f.expensesOf(first.TripCode)); got != "alice-1,bob-1" {
		t.Errorf("expenses = %q, want alice-1,bob-1", got)
	}
}

func TestTripService_SubmitTrip_VersionConflict(t *testing.T) {
	f := newFixture(t)

	first := f.submit(t, SubmitCommand{TripInfo: sampleInfo(), SubmittedBy: "Alice"})
	f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		Expenses:    []*entity.Expense{sampleExpense("bob", 1)},
		SubmittedBy: "Bob",
		BaseVersion: first.ServerLastModified,
	})
	before := *f.trips.trips[first.TripCode]

	_, err := f.tripSvc.SubmitTrip(context.Background(), SubmitCommand{
		TripCode:    first.TripCode,
		Expenses:    []*entity.Expense{sampleExpense("carol", 1)},
		SubmittedBy: "Carol",
		BaseVersion: first.ServerLastModified,
	})
	if !errors.Is(err, entity.ErrVersionConflict) {
		t.Fatalf("SubmitTrip() error = %v, want ErrVersionConflict", err)
	}
	if f.metrics.conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", f.metrics.conflicts)
	}
	if f.trips.trips[first.TripCode].ServerLastModified != before.ServerLastModified {
		t.Errorf("version changed on conflict")
	}
	if got := descriptions(f.expensesOf(first.TripCode)); got != "bob" {
		t.Errorf("expenses = %q, want bob", got)
	}
}

func TestTripService_SubmitTrip_LockedAndClosed(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*entity.Trip)
		role    access.Role
		wantErr error
	}{
		{
			name:    "locked rejects member",
			mutate:  func(t *entity.Trip) { t.IsLocked = true },
			wantErr: entity.ErrTripLocked,
		},
		{
			name:    "closed rejects member",
			mutate:  func(t *entity.Trip) { t.TripStatus = entity.TripClosed },
			wantErr: entity.ErrTripLocked,
		},
		{
			name:    "locked rejects leader",
			mutate:  func(t *entity.Trip) { t.IsLocked = true },
			role:    access.Leader{Trip: "TRIP-0001", Name: "Alice"},
			wantErr: entity.ErrTripLocked,
		},
		{
			name:   "auditor bypasses lock",
			mutate: func(t *entity.Trip) { t.IsLocked = true },
			role:   access.Auditor{},
		},
		{
			name:    "leader of another trip is forbidden",
			mutate:  func(t *entity.Trip) {},
			role:    access.Leader{Trip: "TRIP-0999"},
			wantErr: entity.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			first := f.submit(t, SubmitCommand{TripInfo: sampleInfo(), SubmittedBy: "Alice"})
			tt.mutate(f.trips.trips[first.TripCode])

			_, err := f.tripSvc.SubmitTrip(context.Background(), SubmitCommand{
				TripCode:    first.TripCode,
				Expenses:    []*entity.Expense{sampleExpense("late", 10)},
				SubmittedBy: "Alice",
				BaseVersion: first.ServerLastModified,
				Role:        tt.role,
			})

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SubmitTrip() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SubmitTrip() error = %v, want %v", err, tt.wantErr)
			}
			if n := len(f.expensesOf(first.TripCode)); n != 0 {
				t.Errorf("expenses = %d, want no change", n)
			}
		})
	}
}

func TestTripService_SubmitTrip_MemberCannotEditHeader(t *testing.T) {
	hacked := sampleInfo()
	hacked.Location = "Hacked"
	hacked.SubsidyAmount = 99999

	tests := []struct {
		name string
		edit func(*SubmitCommand)
	}{
		{"sets leader password", func(c *SubmitCommand) { c.Password = "mallory-pw" }},
		{"renames leader", func(c *SubmitCommand) { c.LeaderName = "Bob" }},
		{"rewrites trip info", func(c *SubmitCommand) { c.TripInfo = hacked }},
		{"replaces employees", func(c *SubmitCommand) { c.Employees = []entity.Employee{{Name: "Bob", Apply: "y"}} }},
		{"clears employees", func(c *SubmitCommand) { c.Employees = []entity.Employee{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			first := f.submit(t, SubmitCommand{
				TripInfo:    sampleInfo(),
				Employees:   []entity.Employee{{Name: "Alice", Apply: "y"}, {Name: "Bob", Apply: "y"}},
				Expenses:    []*entity.Expense{sampleExpense("alice", 100)},
				SubmittedBy: "Alice",
			})
			before := *f.trips.trips[first.TripCode]

			cmd := SubmitCommand{
				TripCode:    first.TripCode,
				Expenses:    []*entity.Expense{sampleExpense("bob", 50)},
				SubmittedBy: "Bob",
				BaseVersion: first.ServerLastModified,
			}
			tt.edit(&cmd)

			_, err := f.tripSvc.SubmitTrip(context.Background(), cmd)
			if !errors.Is(err, entity.ErrForbidden) {
				t.Fatalf("SubmitTrip() error = %v, want ErrForbidden", err)
			}
			if after := *f.trips.trips[first.TripCode]; after != before {
				t.Errorf("trip changed: %+v, want %+v", after, before)
			}
			if n := len(f.employees.byTrip[first.TripCode]); n != 2 {
				t.Errorf("employees = %d, want 2", n)
			}
			if got := descriptions(f.expensesOf(first.TripCode)); got != "alice" {
				t.Errorf("expenses = %q, want alice", got)
			}
		})
	}
}

func TestTripService_SubmitTrip_HeaderEcho(t *testing.T) {
	f := newFixture(t)
	employees := []entity.Employee{{Name: "Alice", Apply: "y"}, {Name: "Bob", Apply: "y"}}
	first := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Employees:   employees,
		SubmittedBy: "Alice",
		Password:    "pw",
	})

	// a member may send the header back untouched
	second := f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		TripInfo:    sampleInfo(),
		Employees:   employees,
		LeaderName:  "Alice",
		Expenses:    []*entity.Expense{sampleExpense("bob", 50)},
		SubmittedBy: "Bob",
		BaseVersion: first.ServerLastModified,
	})

	edited := sampleInfo()
	edited.Location = "Osaka"
	f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		TripInfo:    edited,
		Employees:   []entity.Employee{},
		Expenses:    f.expensesOf(first.TripCode),
		SubmittedBy: "Alice",
		Password:    "replaced",
		BaseVersion: second.ServerLastModified,
		Role:        access.Leader{Trip: first.TripCode, Name: "Alice"},
	})

	trip := f.trips.trips[first.TripCode]
	if trip.Location != "Osaka" {
		t.Errorf("Location = %q, want Osaka", trip.Location)
	}
	if trip.PasswordHash != "hashed:pw" {
		t.Errorf("PasswordHash = %q, want the first password kept", trip.PasswordHash)
	}
	if n := len(f.employees.byTrip[first.TripCode]); n != 0 {
		t.Errorf("employees = %d, want cleared", n)
	}
}

func TestTripService_SubmitTrip_EditKeepsSettledVerdict(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Expenses:    []*entity.Expense{sampleExpense("taxi", 100)},
		SubmittedBy: "Alice",
	})

	stored := f.expensesOf(first.TripCode)[0]
	stored.ExpenseStatus = entity.ReviewApproved
	f.expenses.items[stored.ExpenseID] = stored.Clone()

	edited := stored.Clone()
	edited.Amount = 150
	f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		Expenses:    []*entity.Expense{edited},
		SubmittedBy: "Alice",
		BaseVersion: first.ServerLastModified,
	})

	if got := f.expenses.items[stored.ExpenseID].ExpenseStatus; got != entity.ReviewApproved {
		t.Errorf("ExpenseStatus = %q, want approved", got)
	}
}

func TestTripService_SubmitTrip_RevisionResetsToPending(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Expenses:    []*entity.Expense{sampleExpense("taxi", 100)},
		SubmittedBy: "Alice",
	})

	stored := f.expensesOf(first.TripCode)[0]
	stored.ExpenseStatus = entity.ReviewNeedsRevision
	stored.ExpenseReviewNote = "receipt missing"
	f.expenses.items[stored.ExpenseID] = stored.Clone()

	fixed := stored.Clone()
	fixed.Amount = 120
	fixed.ExpenseStatus = entity.ReviewApproved
	f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		Expenses:    []*entity.Expense{fixed},
		SubmittedBy: "Alice",
		BaseVersion: first.ServerLastModified,
	})

	got := f.expenses.items[stored.ExpenseID]
	if got.ExpenseStatus != entity.ReviewPending {
		t.Errorf("ExpenseStatus = %q, want pending", got.ExpenseStatus)
	}
	if got.AmountNTD != 120 {
		t.Errorf("AmountNTD = %v, want 120", got.AmountNTD)
	}
	if got.ExpenseReviewNote != "receipt missing" {
		t.Errorf("review note lost: %q", got.ExpenseReviewNote)
	}
}

func TestTripService_SubmitTrip_Photos(t *testing.T) {
	f := newFixture(t)

	withPhoto := sampleExpense("hotel", 3000)
	withPhoto.PhotoData = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-1"))
	first := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Expenses:    []*entity.Expense{withPhoto},
		SubmittedBy: "Alice",
	})

	stored := f.expensesOf(first.TripCode)[0]
	if stored.PhotoFileID == "" || stored.PhotoData != "" {
		t.Fatalf("photo not moved to storage: %+v", stored)
	}
	if string(f.photos.files[stored.PhotoFileID]) != "jpeg-1" {
		t.Errorf("stored photo = %q", f.photos.files[stored.PhotoFileID])
	}

	_, err := f.tripSvc.SubmitTrip(context.Background(), SubmitCommand{
		TripCode:    first.TripCode,
		SubmittedBy: "Alice",
		BaseVersion: first.ServerLastModified,
		Expenses:    []*entity.Expense{},
	})
	if err != nil {
		t.Fatalf("SubmitTrip() error = %v", err)
	}
	if len(f.photos.released) != 1 || f.photos.released[0] != stored.PhotoFileID {
		t.Errorf("released = %v, want %s", f.photos.released, stored.PhotoFileID)
	}

	bad := sampleExpense("bad", 1)
	bad.PhotoData = "%%%"
	_, err = f.tripSvc.SubmitTrip(context.Background(), SubmitCommand{
		TripInfo:    sampleInfo(),
		Expenses:    []*entity.Expense{bad},
		SubmittedBy: "Bob",
	})
	if !errors.Is(err, entity.ErrValidation) {
		t.Errorf("SubmitTrip() error = %v, want ErrValidation", err)
	}
}

func TestTripService_ReadActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.submit(t, SubmitCommand{
		TripInfo:    sampleInfo(),
		Employees:   []entity.Employee{{Name: "Alice"}, {Name: "Bob"}},
		Expenses:    []*entity.Expense{sampleExpense("alice", 1)},
		SubmittedBy: "Alice",
	})
	latest := f.submit(t, SubmitCommand{
		TripCode:    first.TripCode,
		Expenses:    []*entity.Expense{sampleExpense("dave", 2)},
		SubmittedBy: "Dave",
		BaseVersion: first.ServerLastModified,
	})

	version, err := f.tripSvc.CheckServerVersion(ctx, first.TripCode)
	if err != nil || version != latest.ServerLastModified {
		t.Errorf("CheckServerVersion() = %d, %v; want %d", version, err, latest.ServerLastModified)
	}

	if _, err := f.tripSvc.CheckServerVersion(ctx, "TRIP-0404"); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("CheckServerVersion(missing) error = %v, want ErrNotFound", err)
	}

	dup, err := f.tripSvc.CheckDuplicate(ctx, first.TripCode, "Dave")
	if err != nil || dup.ExpenseCount != 1 || dup.LastUpdated != latest.ServerLastModified {
		t.Errorf("CheckDuplicate() = %+v, %v", dup, err)
	}
	none, err := f.tripSvc.CheckDuplicate(ctx, first.TripCode, "Erin")
	if err != nil || none.ExpenseCount != 0 {
		t.Errorf("CheckDuplicate(Erin) = %+v, %v", none, err)
	}

	members, err := f.tripSvc.GetMembers(ctx, first.TripCode)
	if err != nil {
		t.Fatalf("GetMembers() error = %v", err)
	}
	if len(members) != 3 || members[0] != "Alice" || members[2] != "Dave" {
		t.Errorf("GetMembers() = %v, want [Alice Bob Dave]", members)
	}

	status, err := f.tripSvc.GetTripStatus(ctx, first.TripCode, "Dave")
	if err != nil {
		t.Fatalf("GetTripStatus() error = %v", err)
	}
	if got := descriptions(status.Expenses); got != "dave" {
		t.Errorf("GetTripStatus() expenses = %q, want dave", got)
	}

	snapshot, err := f.tripSvc.DownloadTrip(ctx, first.TripCode)
	if err != nil || len(snapshot.Expenses) != 2 || len(snapshot.Employees) != 2 {
		t.Errorf("DownloadTrip() = %+v, %v", snapshot, err)
	}
}
