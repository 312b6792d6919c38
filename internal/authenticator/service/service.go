// Package service implements the Authenticator's login pipeline: password verification,
// risk-scoring and MFA orchestration, and bearer-credential lifecycle.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adaptivemfa/internal/apierr"
	"adaptivemfa/internal/authenticator/credential"
	"adaptivemfa/internal/authenticator/geolocation"
	"adaptivemfa/internal/authenticator/mfaclient"
	"adaptivemfa/internal/authenticator/riskclient"
	"adaptivemfa/internal/authenticator/user"
	"adaptivemfa/internal/cache"
	"adaptivemfa/internal/eventbus"
	"adaptivemfa/internal/security"
)

// UserRepo is the subset of user.Repository the service depends on.
type UserRepo interface {
	Create(ctx context.Context, u *user.User) error
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	Delete(ctx context.Context, email string) (int64, error)
}

// CredentialRepo is the subset of credential.Repository the service depends on.
type CredentialRepo interface {
	Create(ctx context.Context, c *credential.Credential) error
	GetByUserID(ctx context.Context, userID string) (*credential.Credential, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error
	Delete(ctx context.Context, userID string) error
}

// Cache is the subset of cache.Client the service depends on.
type Cache interface {
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v interface{}) error
	Del(ctx context.Context, key string) error
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Hasher verifies and rewrites password hashes.
type Hasher interface {
	Hash(password []byte) (string, error)
	Compare(hash string, password []byte) error
}

// TokenProvider issues and validates bearer credentials.
type TokenProvider interface {
	Issue(email string, mfa bool) (token string, expiresAt time.Time, err error)
	Validate(tokenString string) (*security.Claims, error)
}

// GeoResolver resolves a client IP to a coarse location.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (geolocation.Location, error)
}

// RiskClient predicts a login's risk score.
type RiskClient interface {
	Predict(ctx context.Context, req riskclient.PredictRequest) (*riskclient.PredictResult, error)
}

// MFAClient checks and verifies MFA challenges and performs account-deletion cascades.
type MFAClient interface {
	Check(ctx context.Context, req mfaclient.CheckRequest) (*mfaclient.CheckResult, error)
	Verify(ctx context.Context, req mfaclient.VerifyRequest) (*mfaclient.VerifyResult, error)
	DeleteTrustedDevices(ctx context.Context, userID string) error
	DeleteOTPLogs(ctx context.Context, email string) error
}

// Publisher publishes login.attempted events. May be nil.
type Publisher interface {
	PublishAsync(routingKey string, event interface{})
}

// Service implements the Authenticator's operations.
type Service struct {
	users       UserRepo
	credentials CredentialRepo
	cache       Cache
	hasher      Hasher
	tokens      TokenProvider
	geo         GeoResolver
	risk        RiskClient
	mfa         MFAClient
	publisher   Publisher
	newEventID  func() string
	now         func() time.Time
}

// New returns a Service. publisher may be nil.
func New(users UserRepo, credentials CredentialRepo, c Cache, hasher Hasher, tokens TokenProvider, geo GeoResolver, risk RiskClient, mfa MFAClient, publisher Publisher) *Service {
	return &Service{
		users: users, credentials: credentials, cache: c, hasher: hasher, tokens: tokens,
		geo: geo, risk: risk, mfa: mfa, publisher: publisher,
		newEventID: func() string { return uuid.NewString() },
		now:        time.Now,
	}
}

// RegisterRequest is the /register envelope.
type RegisterRequest struct {
	Email    string
	Password string
}

// Register creates a new account with a hashed password verifier.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	existing, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return apierr.ErrEmailExists
	}

	hash, err := s.hasher.Hash([]byte(req.Password))
	if err != nil {
		return err
	}

	u := &user.User{ID: uuid.NewString(), Email: req.Email, Role: user.RoleUser, CreatedAt: s.now()}
	if err := s.users.Create(ctx, u); err != nil {
		return err
	}
	return s.credentials.Create(ctx, &credential.Credential{UserID: u.ID, PasswordHash: hash, UpdatedAt: s.now()})
}

// LoginRequest is the /login envelope.
type LoginRequest struct {
	Email     string
	Password  string
	DeviceID  string
	ClientIP  string
	UserAgent string
}

// LoginResult is the /login response: exactly one of Token or MFARequired is meaningful.
type LoginResult struct {
	MFARequired bool
	Token       string
	ExpiresAt   time.Time
}

// Login verifies the password, scores the attempt, and either mints a credential or
// signals that an MFA challenge was issued.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	eventID := s.newEventID()
	now := s.now()

	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	loc, err := s.geo.Resolve(ctx, req.ClientIP)
	if err != nil {
		loc = geolocation.Location{}
	}

	var userID *string
	if u != nil {
		userID = &u.ID
	}

	if !s.passwordMatches(ctx, u, req.Password) {
		s.publishLoginAttempted(eventID, userID, req, loc, now, false)
		return nil, apierr.ErrInvalidCredentials
	}

	predictResult, err := s.risk.Predict(ctx, riskclient.PredictRequest{
		EventID: eventID, UserID: userID, Email: req.Email, IPAddress: req.ClientIP, UserAgent: req.UserAgent,
		Country: loc.Country, Region: loc.Region, City: loc.City, Timestamp: now, WasSuccessful: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrUpstreamUnavailable, err)
	}
	if predictResult.EventID != eventID {
		return nil, apierr.ErrUpstreamEventMismatch
	}

	checkResult, err := s.mfa.Check(ctx, mfaclient.CheckRequest{
		EventID: eventID, UserID: u.ID, Email: req.Email, DeviceID: req.DeviceID, RiskScore: predictResult.RiskScore,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrUpstreamUnavailable, err)
	}
	if checkResult.EventID != eventID {
		return nil, apierr.ErrUpstreamEventMismatch
	}

	if checkResult.MFARequired {
		if err := s.cache.SetJSON(ctx, cache.EventCorrelationKey(req.Email), eventID, cache.EventCorrelationTTL); err != nil {
			return nil, err
		}
		return &LoginResult{MFARequired: true}, nil
	}

	token, expiresAt, err := s.tokens.Issue(req.Email, false)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) passwordMatches(ctx context.Context, u *user.User, password string) bool {
	if u == nil {
		return false
	}
	cred, err := s.credentials.GetByUserID(ctx, u.ID)
	if err != nil || cred == nil {
		return false
	}
	return s.hasher.Compare(cred.PasswordHash, []byte(password)) == nil
}

func (s *Service) publishLoginAttempted(eventID string, userID *string, req LoginRequest, loc geolocation.Location, ts time.Time, wasSuccessful bool) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishAsync(eventbus.RoutingKeyLoginAttempted, eventbus.LoginAttempted{
		EventID: eventID, UserID: userID, Email: req.Email, IPAddress: req.ClientIP, UserAgent: req.UserAgent,
		Country: loc.Country, Region: loc.Region, City: loc.City, Timestamp: ts, WasSuccessful: wasSuccessful,
	})
}

// VerifyOTPRequest is the /verify-otp envelope.
type VerifyOTPRequest struct {
	Email     string
	DeviceID  string
	OTP       string
	UserAgent string
	ClientIP  string
}

// VerifyOTP recovers the event_id correlated to email's outstanding challenge, forwards
// the code to the MFA Arbiter, and mints a credential on success.
func (s *Service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*LoginResult, error) {
	var eventID string
	if err := s.cache.GetJSON(ctx, cache.EventCorrelationKey(req.Email), &eventID); err != nil {
		if err == cache.ErrNotFound {
			return nil, apierr.ErrNoPendingChallenge
		}
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.ErrNoPendingChallenge
	}

	if _, err := s.mfa.Verify(ctx, mfaclient.VerifyRequest{
		EventID: eventID, UserID: u.ID, Email: req.Email, DeviceID: req.DeviceID,
		UserAgent: req.UserAgent, IPAddress: req.ClientIP, OTP: req.OTP,
	}); err != nil {
		return nil, err
	}

	_ = s.cache.Del(ctx, cache.EventCorrelationKey(req.Email))

	token, expiresAt, err := s.tokens.Issue(req.Email, true)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Logout blacklists token for the remainder of its natural lifetime.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return apierr.ErrTokenInvalid
	}
	remaining := claims.RemainingLifetime(s.now())
	if remaining <= 0 {
		return nil
	}
	return s.cache.SetString(ctx, cache.BlacklistKey(token), "blacklisted", remaining)
}

// CurrentUser validates token (checking the blacklist first) and returns the account it names.
func (s *Service) CurrentUser(ctx context.Context, token string) (*user.User, error) {
	blacklisted, err := s.cache.Exists(ctx, cache.BlacklistKey(token))
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, apierr.ErrTokenRevoked
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		if err == security.ErrTokenExpired {
			return nil, apierr.ErrTokenExpired
		}
		return nil, apierr.ErrTokenInvalid
	}

	u, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.ErrTokenInvalid
	}
	return u, nil
}

// ChangePasswordRequest is the /change-password envelope.
type ChangePasswordRequest struct {
	Email           string
	NewPassword     string
	ConfirmPassword string
}

// ChangePassword rewrites the password verifier for email after an equality check
// between NewPassword and ConfirmPassword.
func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return &apierr.ValidationError{Detail: "new_password and confirm_password must match"}
	}

	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return err
	}
	if u == nil {
		return apierr.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash([]byte(req.NewPassword))
	if err != nil {
		return err
	}
	return s.credentials.UpdatePasswordHash(ctx, u.ID, hash, s.now())
}

// DeleteUserResult reports the row counts of a cascading account deletion.
type DeleteUserResult struct {
	UserRowsDeleted int64
}

// DeleteUser performs a best-effort cascade: it first asks the MFA Arbiter to drop the
// account's trusted devices and OTP logs, then deletes the local user and credential rows.
func (s *Service) DeleteUser(ctx context.Context, email string) (*DeleteUserResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.ErrInvalidCredentials
	}

	if err := s.mfa.DeleteTrustedDevices(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrUpstreamUnavailable, err)
	}
	if err := s.mfa.DeleteOTPLogs(ctx, email); err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrUpstreamUnavailable, err)
	}

	if err := s.credentials.Delete(ctx, u.ID); err != nil {
		return nil, err
	}
	rows, err := s.users.Delete(ctx, email)
	if err != nil {
		return nil, err
	}
	return &DeleteUserResult{UserRowsDeleted: rows}, nil
}
