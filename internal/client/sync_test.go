package client

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/garyjia/trip-expense/internal/config"
	"github.com/garyjia/trip-expense/internal/container"
	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/infrastructure/storage"
	"github.com/garyjia/trip-expense/internal/protocol"
)

const adminPassword = "secret-pass"

// startServer runs the full server stack over a temporary SQLite store
func startServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, ExecPath: "/api/exec", NodeID: 1},
		Database: config.DatabaseConfig{
			Path:         filepath.Join(dir, "trips.db"),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Storage: config.StorageConfig{PhotoDir: filepath.Join(dir, "photos")},
		Auth: config.AuthConfig{
			AdminPassword: adminPassword,
			JWTSecret:     "0123456789abcdef0123",
			TokenTTL:      time.Hour,
			BcryptCost:    bcrypt.MinCost,
		},
	}

	c, err := container.NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	srv := httptest.NewServer(c.Server().Router())
	t.Cleanup(srv.Close)
	return srv.URL + "/api/exec"
}

type device struct {
	session *Session
	engine  *SyncEngine
	photos  *storage.LocalPhotoStorage
}

func newDevice(t *testing.T, url, name string) *device {
	t.Helper()
	photos := storage.NewLocalPhotoStorage(t.TempDir(), zap.NewNop())
	session := NewSession(name, photos, zap.NewNop())
	api := NewAPIClient(APIConfig{URL: url, Timeout: 5 * time.Second}, zap.NewNop())
	return &device{
		session: session,
		engine:  NewSyncEngine(api, session, zap.NewNop()),
		photos:  photos,
	}
}

func (d *device) addExpense(t *testing.T, desc string, amount float64) *entity.Expense {
	t.Helper()
	exp, err := d.session.AddExpense(entity.Expense{
		Category:     entity.CategoryMeal,
		Date:         "2024-03-02",
		Description:  desc,
		Currency:     "JPY",
		Amount:       amount,
		ExchangeRate: 0.2,
	})
	require.NoError(t, err)
	return exp
}

func newTripDevice(t *testing.T, url string) *device {
	t.Helper()
	alice := newDevice(t, url, "Alice")
	require.NoError(t, alice.session.SetTripInfo(entity.TripInfo{
		Location:  "Tokyo",
		StartDate: "2024-03-01",
		EndDate:   "2024-03-05",
	}))
	require.NoError(t, alice.session.SetEmployees([]entity.Employee{
		{Name: "Alice", Apply: "y", StartDate: entity.FullYearSentinel},
		{Name: "Bob", Apply: "y", StartDate: "2023-09-01"},
	}))
	return alice
}

func TestSync_UploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	handle, err := alice.photos.Store(ctx, "local", []byte("\xff\xd8\xff\xe0receipt"))
	require.NoError(t, err)
	exp, err := alice.session.AddExpense(entity.Expense{
		Category:     entity.CategoryAccommodation,
		Date:         "2024-03-01",
		Description:  "hotel",
		Currency:     "JPY",
		Amount:       10000,
		ExchangeRate: 0.21,
		Photo:        handle,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusLocalChanges, alice.engine.Status())

	result, err := alice.engine.Upload(ctx, UploadOptions{Password: "leader-pw"})
	require.NoError(t, err)
	assert.Equal(t, UploadOutcomeSuccess, result.Outcome)
	assert.Equal(t, "TRIP-0001", result.TripCode)
	assert.Equal(t, StatusSynced, alice.engine.Status())
	assert.Equal(t, result.ServerVersion, alice.session.ServerVersion())
	assert.NotZero(t, alice.session.LastSyncTime())

	local := alice.session.Expenses()
	require.Len(t, local, 1)
	assert.NotEqual(t, exp.ID, local[0].ID)
	assert.Equal(t, local[0].ID, local[0].ExpenseID)
	assert.NotEmpty(t, local[0].PhotoFileID)
	assert.Equal(t, handle, local[0].Photo)

	bob := newDevice(t, url, "Bob")
	snap, err := bob.engine.Download(ctx, "TRIP-0001")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", snap.Trip.Location)
	assert.Equal(t, entity.TripOpen, snap.Trip.TripStatus)
	assert.Equal(t, "Alice", snap.Trip.LeaderName)
	require.Len(t, bob.session.Expenses(), 1)
	assert.InDelta(t, 2100.0, bob.session.Expenses()[0].AmountNTD, 1e-6)
	assert.Len(t, bob.session.Employees(), 2)
	assert.Equal(t, StatusSynced, bob.engine.Status())

	updated, err := bob.engine.CheckServerUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, updated)

	require.NoError(t, bob.engine.LoginLeader(ctx, "TRIP-0001", "leader-pw"))
	content, mime, err := bob.engine.Photo(ctx, local[0].PhotoFileID)
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8\xff\xe0receipt"), content)
	assert.Equal(t, "image/jpeg", mime)
}

func TestSync_ReuploadKeepsServerIDs(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	alice.addExpense(t, "ramen", 1200)
	_, err := alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)
	first := alice.session.Expenses()[0].ExpenseID

	alice.addExpense(t, "sushi", 3000)
	result, err := alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, UploadOutcomeSuccess, result.Outcome)

	snap, err := alice.engine.Download(ctx, "")
	require.NoError(t, err)
	require.Len(t, snap.Expenses, 2)
	ids := []string{snap.Expenses[0].ExpenseID, snap.Expenses[1].ExpenseID}
	assert.Contains(t, ids, first)
}

func TestSync_SecondUploaderGetsConflict(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	alice.addExpense(t, "ramen", 1200)
	_, err := alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)

	bob := newDevice(t, url, "Bob")
	_, err = bob.engine.Download(ctx, "TRIP-0001")
	require.NoError(t, err)

	alice.addExpense(t, "sushi", 3000)
	_, err = alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)

	bob.addExpense(t, "taxi", 2500)
	result, err := bob.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, UploadOutcomeConflict, result.Outcome)
	require.NotNil(t, result.Server)
	assert.Len(t, result.Server.Expenses, 2)
	assert.Equal(t, StatusServerUpdate, bob.engine.Status())

	_, err = bob.engine.ResolveConflictByDownload(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, bob.engine.Status())
	assert.Len(t, bob.session.Expenses(), 2)
}

func TestSync_LockedTripRejectsMemberWrite(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	alice.addExpense(t, "ramen", 1200)
	_, err := alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)

	auditor := newDevice(t, url, "auditor")
	require.NoError(t, auditor.engine.LoginAuditor(ctx, adminPassword))
	trip, err := auditor.engine.SetLock(ctx, "TRIP-0001", true)
	require.NoError(t, err)
	assert.True(t, trip.IsLocked)

	updated, err := alice.engine.CheckServerUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, updated)

	_, err = alice.engine.Download(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, StatusClosedOrLocked, alice.engine.Status())

	alice.addExpense(t, "late snack", 500)
	_, err = alice.engine.Upload(ctx, UploadOptions{})
	assert.ErrorIs(t, err, entity.ErrTripLocked)

	for _, exp := range alice.session.Expenses() {
		require.NoError(t, alice.session.RemoveExpense(ctx, exp.ID))
	}
	_, err = alice.engine.Upload(ctx, UploadOptions{ConfirmOverwrite: true})
	assert.ErrorIs(t, err, entity.ErrTripLocked)

	witness := newDevice(t, url, "Carol")
	snap, err := witness.engine.Download(ctx, "TRIP-0001")
	require.NoError(t, err)
	require.Len(t, snap.Expenses, 1)
	assert.Equal(t, "ramen", snap.Expenses[0].Description)
	assert.Equal(t, "Alice", snap.Expenses[0].EmployeeName)
}

func TestSync_MemberCannotTakeOverTrip(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	alice.addExpense(t, "ramen", 1200)
	_, err := alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)

	mallory := newDevice(t, url, "Mallory")
	_, err = mallory.engine.Download(ctx, "TRIP-0001")
	require.NoError(t, err)
	mallory.addExpense(t, "taxi", 800)
	_, err = mallory.engine.Upload(ctx, UploadOptions{Password: "mallory-pw"})
	assert.ErrorIs(t, err, entity.ErrForbidden)

	// a hand-built request skips the client-side checks
	api := NewAPIClient(APIConfig{URL: url, Timeout: 5 * time.Second}, zap.NewNop())
	hacked := entity.TripInfo{Location: "Hacked", StartDate: "2024-03-01", EndDate: "2024-03-05", SubsidyAmount: 99999}
	onlyBob := []entity.Employee{{Name: "Bob", Apply: "y"}}
	requests := map[string]protocol.Request{
		"password":  {Password: "mallory-pw"},
		"trip info": {TripInfo: &hacked},
		"employees": {Employees: &onlyBob},
		"leader":    {LeaderName: "Mallory"},
	}
	for name, req := range requests {
		req.Action = protocol.ActionSubmitTrip
		req.TripCode = "TRIP-0001"
		req.SubmittedBy = "Mallory"
		req.BaseVersion = alice.session.ServerVersion()
		_, err := api.Call(ctx, req)
		assert.ErrorIs(t, err, entity.ErrForbidden, name)
	}

	assert.Error(t, mallory.engine.LoginLeader(ctx, "TRIP-0001", "mallory-pw"))

	// the header stays out of a member upload, so expenses still sync
	result, err := mallory.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, UploadOutcomeSuccess, result.Outcome)

	snap, err := mallory.engine.Download(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", snap.Trip.Location)
	assert.Equal(t, float64(entity.DefaultSubsidyAmount), snap.Trip.SubsidyAmount)
	assert.Equal(t, "Alice", snap.Trip.LeaderName)
	assert.Len(t, snap.Employees, 2)
	assert.Len(t, snap.Expenses, 2)
}

func TestSync_LeaderClearsEmployees(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	_, err := alice.engine.Upload(ctx, UploadOptions{Password: "leader-pw"})
	require.NoError(t, err)
	require.NoError(t, alice.engine.LoginLeader(ctx, "TRIP-0001", "leader-pw"))

	require.NoError(t, alice.session.SetEmployees(nil))
	_, err = alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)

	bob := newDevice(t, url, "Bob")
	snap, err := bob.engine.Download(ctx, "TRIP-0001")
	require.NoError(t, err)
	assert.Empty(t, snap.Employees)
	assert.Empty(t, bob.session.Employees())
}

func TestSync_DuplicateSubmitterNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	alice.addExpense(t, "ramen", 1200)
	_, err := alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)

	impostor := newDevice(t, url, "Alice")
	impostor.session.SetTripCode("TRIP-0001")
	require.NoError(t, impostor.session.SetTripInfo(alice.session.TripInfo()))
	impostor.addExpense(t, "coffee", 400)
	impostor.session.serverVersion = alice.session.ServerVersion()

	result, err := impostor.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, UploadOutcomeDuplicate, result.Outcome)
	require.NotNil(t, result.Duplicate)
	assert.Equal(t, 1, result.Duplicate.ExpenseCount)

	result, err = impostor.engine.Upload(ctx, UploadOptions{ConfirmOverwrite: true})
	require.NoError(t, err)
	assert.Equal(t, UploadOutcomeSuccess, result.Outcome)
}

func TestSync_ReviewerFlow(t *testing.T) {
	ctx := context.Background()
	url := startServer(t)

	alice := newTripDevice(t, url)
	alice.addExpense(t, "ramen", 1200)
	alice.addExpense(t, "sushi", 3000)
	_, err := alice.engine.Upload(ctx, UploadOptions{})
	require.NoError(t, err)

	auditor := newDevice(t, url, "auditor")
	require.NoError(t, auditor.engine.LoginAuditor(ctx, adminPassword))

	trips, err := auditor.engine.ListTrips(ctx, entity.ReviewPending)
	require.NoError(t, err)
	require.Len(t, trips, 1)

	detail, err := auditor.engine.TripDetail(ctx, "TRIP-0001")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Counts.Pending)

	bulk, err := auditor.engine.BulkApprove(ctx, "TRIP-0001")
	require.NoError(t, err)
	assert.Equal(t, 2, bulk.Approved)
	assert.Empty(t, bulk.Failed)

	_, err = auditor.engine.BulkApprove(ctx, "TRIP-0001")
	assert.ErrorIs(t, err, entity.ErrNothingToReview)

	reviewed, err := auditor.engine.ReviewTrip(ctx, "TRIP-0001", entity.ReviewApproved, "ok")
	require.NoError(t, err)
	assert.Equal(t, entity.ReviewApproved, reviewed.Status)

	closed, err := auditor.engine.SetTripStatus(ctx, "TRIP-0001", entity.TripClosed)
	require.NoError(t, err)
	assert.Equal(t, entity.TripClosed, closed.TripStatus)

	members, err := auditor.engine.Members(ctx, "TRIP-0001")
	require.NoError(t, err)
	assert.Contains(t, members, "Alice")

	status, err := alice.engine.RefreshStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.ReviewApproved, status.Trip.Status)
	assert.Equal(t, StatusClosedOrLocked, alice.engine.Status())
}
