package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// Mock repositories keep copies so tests observe only what was written
type mockTripRepo struct {
	trips      map[string]*entity.Trip
	order      []string
	updateFunc func(ctx context.Context, trip *entity.Trip) error
}

func newMockTripRepo() *mockTripRepo {
	return &mockTripRepo{trips: make(map[string]*entity.Trip)}
}

func (m *mockTripRepo) NextCode(ctx context.Context) (string, error) {
	return fmt.Sprintf("TRIP-%04d", len(m.order)+1), nil
}

func (m *mockTripRepo) Create(ctx context.Context, trip *entity.Trip) error {
	c := *trip
	m.trips[trip.TripCode] = &c
	m.order = append(m.order, trip.TripCode)
	return nil
}

func (m *mockTripRepo) GetByCode(ctx context.Context, tripCode string) (*entity.Trip, error) {
	trip, ok := m.trips[tripCode]
	if !ok {
		return nil, nil
	}
	c := *trip
	return &c, nil
}

func (m *mockTripRepo) Update(ctx context.Context, trip *entity.Trip) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, trip)
	}
	if _, ok := m.trips[trip.TripCode]; !ok {
		return entity.ErrNotFound
	}
	c := *trip
	m.trips[trip.TripCode] = &c
	return nil
}

func (m *mockTripRepo) List(ctx context.Context, status entity.ReviewStatus) ([]*entity.Trip, error) {
	out := []*entity.Trip{}
	for i := len(m.order) - 1; i >= 0; i-- {
		trip := m.trips[m.order[i]]
		if status == "" || trip.Status == status {
			c := *trip
			out = append(out, &c)
		}
	}
	return out, nil
}

type mockEmployeeRepo struct {
	byTrip map[string][]entity.Employee
}

func newMockEmployeeRepo() *mockEmployeeRepo {
	return &mockEmployeeRepo{byTrip: make(map[string][]entity.Employee)}
}

func (m *mockEmployeeRepo) ReplaceForTrip(ctx context.Context, tripCode string, employees []entity.Employee) error {
	m.byTrip[tripCode] = append([]entity.Employee(nil), employees...)
	return nil
}

func (m *mockEmployeeRepo) ListByTrip(ctx context.Context, tripCode string) ([]entity.Employee, error) {
	return append([]entity.Employee{}, m.byTrip[tripCode]...), nil
}

type mockExpenseRepo struct {
	items   map[string]*entity.Expense
	order   []string
	updated map[string]int64
}

func newMockExpenseRepo() *mockExpenseRepo {
	return &mockExpenseRepo{
		items:   make(map[string]*entity.Expense),
		updated: make(map[string]int64),
	}
}

func (m *mockExpenseRepo) Create(ctx context.Context, exp *entity.Expense, updatedAt int64) error {
	m.items[exp.ExpenseID] = exp.Clone()
	m.order = append(m.order, exp.ExpenseID)
	m.updated[exp.ExpenseID] = updatedAt
	return nil
}

func (m *mockExpenseRepo) GetByID(ctx context.Context, expenseID string) (*entity.Expense, error) {
	exp, ok := m.items[expenseID]
	if !ok {
		return nil, nil
	}
	return exp.Clone(), nil
}

func (m *mockExpenseRepo) Update(ctx context.Context, exp *entity.Expense, updatedAt int64) error {
	if _, ok := m.items[exp.ExpenseID]; !ok {
		return entity.ErrNotFound
	}
	m.items[exp.ExpenseID] = exp.Clone()
	m.updated[exp.ExpenseID] = updatedAt
	return nil
}

func (m *mockExpenseRepo) Delete(ctx context.Context, expenseID string) error {
	delete(m.items, expenseID)
	return nil
}

func (m *mockExpenseRepo) ListByTrip(ctx context.Context, tripCode string) ([]*entity.Expense, error) {
	out := []*entity.Expense{}
	for _, id := range m.order {
		exp, ok := m.items[id]
		if ok && exp.TripCode == tripCode {
			out = append(out, exp.Clone())
		}
	}
	return out, nil
}

func (m *mockExpenseRepo) PhotoFileIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for _, exp := range m.items {
		if exp.PhotoFileID != "" {
			ids = append(ids, exp.PhotoFileID)
		}
	}
	return ids, nil
}

func (m *mockExpenseRepo) SubmitterActivity(ctx context.Context, tripCode, submitter string) (*port.SubmitterActivity, error) {
	activity := &port.SubmitterActivity{}
	for id, exp := range m.items {
		if exp.TripCode == tripCode && exp.EmployeeName == submitter {
			activity.ExpenseCount++
			if m.updated[id] > activity.LastUpdated {
				activity.LastUpdated = m.updated[id]
			}
		}
	}
	return activity, nil
}

type mockPhotoStorage struct {
	files    map[string][]byte
	n        int
	released []string
}

func newMockPhotoStorage() *mockPhotoStorage {
	return &mockPhotoStorage{files: make(map[string][]byte)}
}

func (m *mockPhotoStorage) Store(ctx context.Context, tripCode string, content []byte) (string, error) {
	m.n++
	id := fmt.Sprintf("%s/photo-%d", tripCode, m.n)
	m.files[id] = content
	return id, nil
}

func (m *mockPhotoStorage) Load(ctx context.Context, fileID string) ([]byte, error) {
	content, ok := m.files[fileID]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return content, nil
}

func (m *mockPhotoStorage) Release(ctx context.Context, fileID string) error {
	delete(m.files, fileID)
	m.released = append(m.released, fileID)
	return nil
}

type mockIDGenerator struct {
	n int
}

func (m *mockIDGenerator) NextID() string {
	m.n++
	return fmt.Sprintf("exp-%d", m.n)
}

type mockHasher struct{}

func (mockHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (mockHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return fmt.Errorf("%w: wrong password", entity.ErrAuth)
	}
	return nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockRecorder struct {
	reviews   []string
	conflicts int
}

func (m *mockRecorder) ObserveReview(target, verdict string) {
	m.reviews = append(m.reviews, target+":"+verdict)
}

func (m *mockRecorder) ObserveConflict() {
	m.conflicts++
}

// fixture wires both services over shared in-memory mocks
type fixture struct {
	trips     *mockTripRepo
	employees *mockEmployeeRepo
	expenses  *mockExpenseRepo
	photos    *mockPhotoStorage
	metrics   *mockRecorder
	tripSvc   TripService
	reviewSvc ReviewService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authorizer, err := access.NewAuthorizer()
	if err != nil {
		t.Fatalf("NewAuthorizer() error = %v", err)
	}

	f := &fixture{
		trips:     newMockTripRepo(),
		employees: newMockEmployeeRepo(),
		expenses:  newMockExpenseRepo(),
		photos:    newMockPhotoStorage(),
		metrics:   &mockRecorder{},
	}
	f.tripSvc = NewTripService(f.trips, f.employees, f.expenses, f.photos, &mockIDGenerator{},
		mockHasher{}, authorizer, &mockTxManager{}, f.metrics, &mockLogger{})
	f.reviewSvc = NewReviewService(f.trips, f.employees, f.expenses, f.photos,
		authorizer, &mockTxManager{}, f.metrics, &mockLogger{})
	return f
}

func sampleInfo() *entity.TripInfo {
	return &entity.TripInfo{Location: "Tokyo", StartDate: "2024-03-01", EndDate: "2024-03-05"}
}

func sampleExpense(desc string, amount float64) *entity.Expense {
	return &entity.Expense{
		Category:     entity.CategoryMeal,
		Date:         "2024-03-02",
		Description:  desc,
		Currency:     "TWD",
		Amount:       amount,
		ExchangeRate: 1,
	}
}

// submit uploads for a member and fails the test on error
func (f *fixture) submit(t *testing.T, cmd SubmitCommand) *SubmitResult {
	t.Helper()
	result, err := f.tripSvc.SubmitTrip(context.Background(), cmd)
	if err != nil {
		t.Fatalf("SubmitTrip() error = %v", err)
	}
	return result
}

func (f *fixture) expensesOf(tripCode string) []*entity.Expense {
	list, _ := f.expenses.ListByTrip(context.Background(), tripCode)
	return list
}

func descriptions(expenses []*entity.Expense) string {
	var out []string
	for _, exp := range expenses {
		out = append(out, exp.Description)
	}
	return strings.Join(out, ",")
}
