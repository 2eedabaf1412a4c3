package service

import (
	"context"
	"fmt"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// AuthService turns passwords into bearer tokens and tokens back into roles
type AuthService interface {
	AdminLogin(ctx context.Context, password string) (access.Auditor, error)
	LoginLeader(ctx context.Context, tripCode, password string) (access.Leader, error)
	Authenticate(token string) (access.Role, error)
}

type authServiceImpl struct {
	tripRepo  port.TripRepository
	hasher    port.PasswordHasher
	issuer    *access.TokenIssuer
	adminHash string
	logger    Logger
}

// NewAuthService creates a new AuthService. An empty adminHash disables auditor login.
func NewAuthService(
	tripRepo port.TripRepository,
	hasher port.PasswordHasher,
	issuer *access.TokenIssuer,
	adminHash string,
	logger Logger,
) AuthService {
	return &authServiceImpl{
		tripRepo:  tripRepo,
		hasher:    hasher,
		issuer:    issuer,
		adminHash: adminHash,
		logger:    logger,
	}
}

// AdminLogin checks the shared auditor password
func (s *authServiceImpl) AdminLogin(ctx context.Context, password string) (access.Auditor, error) {
	if s.adminHash == "" {
		return access.Auditor{}, fmt.Errorf("%w: admin login is disabled", entity.ErrAuth)
	}
	if err := s.hasher.Compare(s.adminHash, password); err != nil {
		s.logger.Info("Rejected admin login")
		return access.Auditor{}, err
	}

	auditor, err := s.issuer.IssueAuditor()
	if err != nil {
		s.logger.Error("Failed to issue auditor token", "error", err)
		return access.Auditor{}, err
	}
	s.logger.Info("Auditor logged in")
	return auditor, nil
}

// LoginLeader checks the password set on the trip's first submit
func (s *authServiceImpl) LoginLeader(ctx context.Context, tripCode, password string) (access.Leader, error) {
	trip, err := s.tripRepo.GetByCode(ctx, tripCode)
	if err != nil {
		return access.Leader{}, err
	}
	if trip == nil || trip.PasswordHash == "" {
		return access.Leader{}, fmt.Errorf("%w: no leader password for %s", entity.ErrAuth, tripCode)
	}
	if err := s.hasher.Compare(trip.PasswordHash, password); err != nil {
		s.logger.Info("Rejected leader login", "trip_code", tripCode)
		return access.Leader{}, err
	}

	leader, err := s.issuer.IssueLeader(trip.TripCode, trip.LeaderName)
	if err != nil {
		s.logger.Error("Failed to issue leader token", "error", err, "trip_code", tripCode)
		return access.Leader{}, err
	}
	s.logger.Info("Leader logged in", "trip_code", tripCode, "leader", trip.LeaderName)
	return leader, nil
}

// Authenticate parses a bearer token; every failure wraps entity.ErrAuth
func (s *authServiceImpl) Authenticate(token string) (access.Role, error) {
	return s.issuer.Parse(token)
}
