package entity

import (
	"errors"
	"testing"
)

func TestTripInfo_ID(t *testing.T) {
	tests := []struct {
		name string
		info TripInfo
		want string
	}{
		{"full", TripInfo{Location: "花蓮", StartDate: "2025-03-01", EndDate: "2025-03-03"}, "花蓮_2025-03-01_2025-03-03"},
		{"no location", TripInfo{StartDate: "2025-03-01", EndDate: "2025-03-03"}, UnsetLocation + "_2025-03-01_2025-03-03"},
		{"empty", TripInfo{}, UnsetLocation + "__"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.ID(); got != tt.want {
				t.Errorf("ID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTripInfo_Validate(t *testing.T) {
	tests := []struct {
		name    string
		info    TripInfo
		wantErr bool
	}{
		{"ok", TripInfo{StartDate: "2025-03-01", EndDate: "2025-03-03"}, false},
		{"same day", TripInfo{StartDate: "2025-03-01", EndDate: "2025-03-01"}, false},
		{"dates optional", TripInfo{}, false},
		{"end before start", TripInfo{StartDate: "2025-03-03", EndDate: "2025-03-01"}, true},
		{"bad start", TripInfo{StartDate: "2025/03/01"}, true},
		{"negative subsidy", TripInfo{SubsidyAmount: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTripInfo_ApplyDefaults(t *testing.T) {
	info := TripInfo{PaymentMethod: "個別匯款"}
	info.ApplyDefaults()

	if info.SubsidyAmount != DefaultSubsidyAmount {
		t.Errorf("SubsidyAmount = %v, want %v", info.SubsidyAmount, DefaultSubsidyAmount)
	}
	if info.PaymentMethod != "個別匯款" {
		t.Errorf("PaymentMethod overwritten: %q", info.PaymentMethod)
	}
	if info.SubsidyMethod != DefaultSubsidyMethod {
		t.Errorf("SubsidyMethod = %q, want %q", info.SubsidyMethod, DefaultSubsidyMethod)
	}
}

func TestTrip_IsReadOnlyForMembers(t *testing.T) {
	tests := []struct {
		name string
		trip Trip
		want bool
	}{
		{"open", Trip{TripStatus: TripOpen}, false},
		{"submitted", Trip{TripStatus: TripSubmitted}, false},
		{"closed", Trip{TripStatus: TripClosed}, true},
		{"locked open", Trip{TripStatus: TripOpen, IsLocked: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trip.IsReadOnlyForMembers(); got != tt.want {
				t.Errorf("IsReadOnlyForMembers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReviewStatus_IsAction(t *testing.T) {
	if ReviewPending.IsAction() {
		t.Error("pending must not be a reviewer action")
	}
	for _, s := range []ReviewStatus{ReviewApproved, ReviewRejected, ReviewNeedsRevision} {
		if !s.IsAction() {
			t.Errorf("%s should be an action", s)
		}
	}
	if ReviewStatus("archived").IsValid() {
		t.Error("unknown verdict reported valid")
	}
}

func TestEmployee(t *testing.T) {
	tests := []struct {
		name      string
		employee  Employee
		applies   bool
		fullYear  bool
		wantError bool
	}{
		{"applies lower", Employee{Name: "A", Apply: "y", StartDate: "2024-01-01"}, true, false, false},
		{"applies yes", Employee{Name: "A", Apply: " YES "}, true, false, false},
		{"declines", Employee{Name: "A", Apply: "n"}, false, false, false},
		{"sentinel", Employee{Name: "A", Apply: "y", StartDate: FullYearSentinel}, true, true, false},
		{"bad date", Employee{Name: "A", StartDate: "last spring"}, false, false, true},
		{"no name", Employee{Apply: "y"}, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.employee.Applies(); got != tt.applies {
				t.Errorf("Applies() = %v, want %v", got, tt.applies)
			}
			if got := tt.employee.HasFullYear(); got != tt.fullYear {
				t.Errorf("HasFullYear() = %v, want %v", got, tt.fullYear)
			}
			if err := tt.employee.Validate(); (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestExpense(t *testing.T) {
	e := &Expense{
		Category:     CategoryMeal,
		Date:         "2025-03-02",
		Currency:     "JPY",
		Amount:       1000,
		ExchangeRate: 0.21,
		EmployeeName: "Alice",
	}
	e.RecomputeNTD()
	if e.AmountNTD != 1000*0.21 {
		t.Errorf("AmountNTD = %v", e.AmountNTD)
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if e.Owner() != "Alice" {
		t.Errorf("Owner() = %q, want Alice", e.Owner())
	}

	e.BelongTo = "Bob"
	if e.Owner() != "Bob" {
		t.Errorf("Owner() = %q, want Bob", e.Owner())
	}
	if !e.VisibleTo("Alice") || !e.VisibleTo("Bob") || e.VisibleTo("Carol") {
		t.Error("VisibleTo must match submitter or beneficiary only")
	}

	c := e.Clone()
	c.Amount = 5
	if e.Amount == 5 {
		t.Error("Clone shares state with the original")
	}

	bad := *e
	bad.Category = "雜支"
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown category: got %v", err)
	}
	bad = *e
	bad.ExchangeRate = 0
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("zero rate: got %v", err)
	}
}
