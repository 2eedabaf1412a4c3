package access

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/garyjia/trip-expense/internal/domain/entity"
)

//go:embed model.conf
var modelText string

// Capability is a single permission from the role matrix
type Capability string

const (
	CapViewAllTrips       Capability = "view_all_trips"
	CapManageTrip         Capability = "manage_trip"
	CapEditOwnExpenses    Capability = "edit_own_expenses"
	CapEditOthersExpenses Capability = "edit_others_expenses"
	CapReview             Capability = "review"
	CapLockTrip           Capability = "lock_trip"
	CapSetTripStatus      Capability = "set_trip_status"
	// CapBypassLock lets a role write to a locked trip
	CapBypassLock Capability = "bypass_lock"
)

// AllCapabilities lists every capability in matrix order
var AllCapabilities = []Capability{
	CapViewAllTrips,
	CapManageTrip,
	CapEditOwnExpenses,
	CapEditOthersExpenses,
	CapReview,
	CapLockTrip,
	CapSetTripStatus,
	CapBypassLock,
}

var matrix = map[Kind][]Capability{
	KindAuditor: AllCapabilities,
	KindLeader: {
		CapManageTrip,
		CapEditOwnExpenses,
		CapEditOthersExpenses,
		CapReview,
		CapLockTrip,
		CapSetTripStatus,
	},
	KindMember: {
		CapEditOwnExpenses,
	},
}

// Authorizer evaluates the capability matrix
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewAuthorizer loads the embedded model and seeds the role matrix
func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse access model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	for kind, caps := range matrix {
		for _, c := range caps {
			if _, err := enforcer.AddPolicy(string(kind), string(c)); err != nil {
				return nil, fmt.Errorf("failed to seed policy %s/%s: %w", kind, c, err)
			}
		}
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// Can reports whether role holds capability over tripCode
func (a *Authorizer) Can(role Role, capability Capability, tripCode string) bool {
	if !InScope(role, tripCode) {
		return false
	}
	ok, err := a.enforcer.Enforce(string(role.Kind()), string(capability))
	return err == nil && ok
}

// Authorize is Can returning entity.ErrForbidden on denial
func (a *Authorizer) Authorize(role Role, capability Capability, tripCode string) error {
	if a.Can(role, capability, tripCode) {
		return nil
	}
	name := "anonymous"
	if role != nil {
		name = string(role.Kind())
	}
	return fmt.Errorf("%w: %s lacks %s on %s", entity.ErrForbidden, name, capability, tripCode)
}

// Capabilities returns every capability role holds, ignoring trip scope
func (a *Authorizer) Capabilities(role Role) []Capability {
	if role == nil {
		return nil
	}
	var out []Capability
	for _, c := range AllCapabilities {
		if a.Can(role, c, "") {
			out = append(out, c)
		}
	}
	return out
}

// CanWriteExpense combines lock state, ownership and role into one decision.
// Locked or closed trips reject writes with entity.ErrTripLocked unless the role bypasses locks.
func (a *Authorizer) CanWriteExpense(role Role, trip *entity.Trip, exp *entity.Expense) error {
	if err := a.CheckWritable(role, trip); err != nil {
		return err
	}
	if exp != nil && !exp.VisibleTo(role.DisplayName()) {
		return a.Authorize(role, CapEditOthersExpenses, trip.TripCode)
	}
	return a.Authorize(role, CapEditOwnExpenses, trip.TripCode)
}

// CheckWritable rejects writes to a locked trip, and member writes to a closed one
func (a *Authorizer) CheckWritable(role Role, trip *entity.Trip) error {
	if a.Can(role, CapBypassLock, trip.TripCode) {
		return nil
	}
	if trip.IsLocked {
		return fmt.Errorf("%w: %s", entity.ErrTripLocked, trip.TripCode)
	}
	if trip.TripStatus == entity.TripClosed && !IsPrivileged(role) {
		return fmt.Errorf("%w: %s is closed", entity.ErrTripLocked, trip.TripCode)
	}
	return nil
}
