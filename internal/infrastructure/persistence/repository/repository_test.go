package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/migrations"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/trip-expense/pkg/database"
)

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "trips.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, logger).RunMigrations(migrations.FS)
	require.NoError(t, err)
	return db
}

func newTrip(code string) *entity.Trip {
	return &entity.Trip{
		TripInfo: entity.TripInfo{
			Location:      "Tokyo",
			StartDate:     "2024-03-01",
			EndDate:       "2024-03-05",
			SubsidyAmount: 10000,
			PaymentMethod: entity.DefaultPaymentMethod,
			SubsidyMethod: entity.DefaultSubsidyMethod,
		},
		TripCode:           code,
		SubmittedBy:        "Alice",
		TripStatus:         entity.TripOpen,
		Status:             entity.ReviewPending,
		ServerLastModified: 1000,
	}
}

func TestTripRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewTripRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	code, err := repo.NextCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TRIP-0001", code)

	trip := newTrip(code)
	trip.PasswordHash = "hash"
	require.NoError(t, repo.Create(ctx, trip))

	got, err := repo.GetByCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Tokyo", got.Location)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Equal(t, int64(1000), got.ServerLastModified)

	next, err := repo.NextCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TRIP-0002", next)

	missing, err := repo.GetByCode(ctx, "TRIP-9999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTripRepository_UpdateAndList(t *testing.T) {
	db := setupDB(t)
	repo := NewTripRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTrip("TRIP-0001")))
	require.NoError(t, repo.Create(ctx, newTrip("TRIP-0002")))

	trip, err := repo.GetByCode(ctx, "TRIP-0001")
	require.NoError(t, err)
	trip.Status = entity.ReviewApproved
	trip.IsLocked = true
	require.NoError(t, repo.Update(ctx, trip))

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "TRIP-0002", all[0].TripCode)

	approved, err := repo.List(ctx, entity.ReviewApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.True(t, approved[0].IsLocked)

	err = repo.Update(ctx, newTrip("TRIP-0404"))
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestEmployeeRepository_ReplaceForTrip(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewTripRepository(db.DB, zap.NewNop()).Create(ctx, newTrip("TRIP-0001")))
	repo := NewEmployeeRepository(db.DB, zap.NewNop())

	require.NoError(t, repo.ReplaceForTrip(ctx, "TRIP-0001", []entity.Employee{
		{Name: "Alice", Apply: "y", StartDate: entity.FullYearSentinel},
		{Name: "Bob", Apply: "n", StartDate: "2024-01-01"},
	}))
	require.NoError(t, repo.ReplaceForTrip(ctx, "TRIP-0001", []entity.Employee{
		{Name: "Carol", Apply: "y"},
	}))

	employees, err := repo.ListByTrip(ctx, "TRIP-0001")
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "Carol", employees[0].Name)
}

func TestExpenseRepository_Lifecycle(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewTripRepository(db.DB, zap.NewNop()).Create(ctx, newTrip("TRIP-0001")))
	repo := NewExpenseRepository(db.DB, zap.NewNop())

	exp := &entity.Expense{
		ExpenseID:     "exp-1",
		TripCode:      "TRIP-0001",
		Category:      entity.CategoryMeal,
		Date:          "2024-03-02",
		Currency:      "JPY",
		Amount:        1000,
		ExchangeRate:  0.22,
		AmountNTD:     220,
		EmployeeName:  "Alice",
		ExpenseStatus: entity.ReviewPending,
	}
	require.NoError(t, repo.Create(ctx, exp, 100))

	second := exp.Clone()
	second.ExpenseID = "exp-2"
	require.NoError(t, repo.Create(ctx, second, 300))

	got, err := repo.GetByID(ctx, "exp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "exp-1", got.ID)
	assert.Equal(t, 220.0, got.AmountNTD)

	got.ExpenseStatus = entity.ReviewApproved
	require.NoError(t, repo.Update(ctx, got, 200))

	activity, err := repo.SubmitterActivity(ctx, "TRIP-0001", "Alice")
	require.NoError(t, err)
	assert.Equal(t, 2, activity.ExpenseCount)
	assert.Equal(t, int64(300), activity.LastUpdated)

	require.NoError(t, repo.Delete(ctx, "exp-2"))
	list, err := repo.ListByTrip(ctx, "TRIP-0001")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, entity.ReviewApproved, list[0].ExpenseStatus)

	none, err := repo.SubmitterActivity(ctx, "TRIP-0001", "Nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, none.ExpenseCount)
}

func TestExpenseRepository_PhotoFileIDs(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	require.NoError(t, NewTripRepository(db.DB, zap.NewNop()).Create(ctx, newTrip("TRIP-0001")))
	repo := NewExpenseRepository(db.DB, zap.NewNop())

	for i, photo := range []string{"TRIP-0001/a", "", "TRIP-0001/a", "TRIP-0001/b"} {
		require.NoError(t, repo.Create(ctx, &entity.Expense{
			ExpenseID:     fmt.Sprintf("exp-%d", i),
			TripCode:      "TRIP-0001",
			Category:      entity.CategoryOther,
			Date:          "2024-03-02",
			Currency:      "TWD",
			ExchangeRate:  1,
			PhotoFileID:   photo,
			EmployeeName:  "Alice",
			ExpenseStatus: entity.ReviewPending,
		}, 1))
	}

	ids, err := repo.PhotoFileIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"TRIP-0001/a", "TRIP-0001/b"}, ids)
}

func TestRepositories_TransactionRollback(t *testing.T) {
	db := setupDB(t)
	tm := sqlite.NewDB(db.DB, zap.NewNop())
	trips := NewTripRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, trips.Create(txCtx, newTrip("TRIP-0001")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := trips.GetByCode(ctx, "TRIP-0001")
	require.NoError(t, err)
	assert.Nil(t, got)
}
