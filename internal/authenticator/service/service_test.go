package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"adaptivemfa/internal/apierr"
	"adaptivemfa/internal/authenticator/credential"
	"adaptivemfa/internal/authenticator/geolocation"
	"adaptivemfa/internal/authenticator/mfaclient"
	"adaptivemfa/internal/authenticator/riskclient"
	"adaptivemfa/internal/authenticator/user"
	"adaptivemfa/internal/cache"
	"adaptivemfa/internal/security"
)

type fakeUserRepo struct {
	byEmail map[string]*user.User
	byID    map[string]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*user.User), byID: make(map[string]*user.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, u *user.User) error {
	cp := *u
	r.byEmail[u.Email] = &cp
	r.byID[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.byEmail[email], nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.byID[id], nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, email string) (int64, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return 0, nil
	}
	delete(r.byEmail, email)
	delete(r.byID, u.ID)
	return 1, nil
}

type fakeCredentialRepo struct{ byUserID map[string]*credential.Credential }

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{byUserID: make(map[string]*credential.Credential)}
}

func (r *fakeCredentialRepo) Create(ctx context.Context, c *credential.Credential) error {
	cp := *c
	r.byUserID[c.UserID] = &cp
	return nil
}

func (r *fakeCredentialRepo) GetByUserID(ctx context.Context, userID string) (*credential.Credential, error) {
	return r.byUserID[userID], nil
}

func (r *fakeCredentialRepo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, updatedAt time.Time) error {
	c, ok := r.byUserID[userID]
	if !ok {
		return errors.New("no such credential")
	}
	c.PasswordHash = passwordHash
	c.UpdatedAt = updatedAt
	return nil
}

func (r *fakeCredentialRepo) Delete(ctx context.Context, userID string) error {
	delete(r.byUserID, userID)
	return nil
}

type fakeCache struct{ store map[string]interface{} }

func newFakeCache() *fakeCache { return &fakeCache{store: make(map[string]interface{})} }

func (c *fakeCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	c.store[key] = v
	return nil
}

func (c *fakeCache) GetJSON(ctx context.Context, key string, v interface{}) error {
	stored, ok := c.store[key]
	if !ok {
		return cache.ErrNotFound
	}
	switch dst := v.(type) {
	case *string:
		*dst = stored.(string)
	default:
		return errors.New("fakeCache: unsupported type")
	}
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.store, key)
	return nil
}

func (c *fakeCache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	c.store[key] = value
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.store[key]
	return ok, nil
}

type fixedGeoResolver struct{ loc geolocation.Location }

func (g fixedGeoResolver) Resolve(ctx context.Context, ip string) (geolocation.Location, error) {
	return g.loc, nil
}

type fixedRiskClient struct {
	score       int
	mismatchID  bool
	callErr     error
}

func (c *fixedRiskClient) Predict(ctx context.Context, req riskclient.PredictRequest) (*riskclient.PredictResult, error) {
	if c.callErr != nil {
		return nil, c.callErr
	}
	eventID := req.EventID
	if c.mismatchID {
		eventID = "different-event"
	}
	return &riskclient.PredictResult{EventID: eventID, RiskScore: c.score, Persisted: true}, nil
}

type fixedMFAClient struct {
	mfaRequired    bool
	mismatchID     bool
	checkErr       error
	verifyErr      error
	verifyCalls    int
	deletedDevices string
	deletedLogs    string
}

func (c *fixedMFAClient) Check(ctx context.Context, req mfaclient.CheckRequest) (*mfaclient.CheckResult, error) {
	if c.checkErr != nil {
		return nil, c.checkErr
	}
	eventID := req.EventID
	if c.mismatchID {
		eventID = "different-event"
	}
	return &mfaclient.CheckResult{EventID: eventID, MFARequired: c.mfaRequired}, nil
}

func (c *fixedMFAClient) Verify(ctx context.Context, req mfaclient.VerifyRequest) (*mfaclient.VerifyResult, error) {
	c.verifyCalls++
	if c.verifyErr != nil {
		return nil, c.verifyErr
	}
	return &mfaclient.VerifyResult{DeviceSaved: true}, nil
}

func (c *fixedMFAClient) DeleteTrustedDevices(ctx context.Context, userID string) error {
	c.deletedDevices = userID
	return nil
}

func (c *fixedMFAClient) DeleteOTPLogs(ctx context.Context, email string) error {
	c.deletedLogs = email
	return nil
}

type recordingPublisher struct {
	events []interface{}
}

func (p *recordingPublisher) PublishAsync(routingKey string, event interface{}) {
	p.events = append(p.events, event)
}

func newTestService(riskScore int, mfaRequired bool) (*Service, *fakeUserRepo, *fakeCredentialRepo, *fakeCache, *fixedMFAClient, *recordingPublisher) {
	users := newFakeUserRepo()
	creds := newFakeCredentialRepo()
	c := newFakeCache()
	hasher := security.NewHasher(4)
	tokens := security.NewTokenProvider("test-secret", time.Hour)
	geo := fixedGeoResolver{}
	risk := &fixedRiskClient{score: riskScore}
	mfa := &fixedMFAClient{mfaRequired: mfaRequired}
	pub := &recordingPublisher{}
	svc := New(users, creds, c, hasher, tokens, geo, risk, mfa, pub)
	return svc, users, creds, c, mfa, pub
}

func registerUser(t *testing.T, svc *Service, email, password string) {
	t.Helper()
	if err := svc.Register(context.Background(), RegisterRequest{Email: email, Password: password}); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestRegister_CreatesUserAndCredential(t *testing.T) {
	svc, users, creds, _, _, _ := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")

	u := users.byEmail["a@example.com"]
	if u == nil {
		t.Fatal("expected a user row")
	}
	if creds.byUserID[u.ID] == nil {
		t.Fatal("expected a credential row")
	}
}

func TestRegister_RejectsDuplicateEmail(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")

	err := svc.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "other"})
	if !errors.Is(err, apierr.ErrEmailExists) {
		t.Errorf("err = %v, want ErrEmailExists", err)
	}
}

func TestLogin_WrongPasswordIsInvalidCredentials(t *testing.T) {
	svc, _, _, _, _, pub := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")

	_, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "wrong", DeviceID: "d1", ClientIP: "8.8.8.8"})
	if !errors.Is(err, apierr.ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
	if len(pub.events) != 1 {
		t.Errorf("expected one published login.attempted event, got %d", len(pub.events))
	}
}

func TestLogin_UnknownEmailIsInvalidCredentials(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(0, false)
	_, err := svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "x", DeviceID: "d1", ClientIP: "8.8.8.8"})
	if !errors.Is(err, apierr.ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_LowRiskIssuesTokenImmediately(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(10, false)
	registerUser(t, svc, "a@example.com", "hunter2")

	result, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.MFARequired || result.Token == "" {
		t.Errorf("result = %+v, want an immediate token", result)
	}
}

func TestLogin_HighRiskRequiresMFAAndCachesEventID(t *testing.T) {
	svc, _, _, c, _, _ := newTestService(90, true)
	registerUser(t, svc, "a@example.com", "hunter2")

	result, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.MFARequired || result.Token != "" {
		t.Errorf("result = %+v, want MFARequired with no token", result)
	}
	if _, ok := c.store[cache.EventCorrelationKey("a@example.com")]; !ok {
		t.Error("expected the event_id to be cached under mfa:{email}")
	}
}

func TestLogin_RiskScorerEventMismatchFails(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(10, false)
	svc.risk = &fixedRiskClient{score: 10, mismatchID: true}
	registerUser(t, svc, "a@example.com", "hunter2")

	_, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"})
	if !errors.Is(err, apierr.ErrUpstreamEventMismatch) {
		t.Errorf("err = %v, want ErrUpstreamEventMismatch", err)
	}
}

func TestLogin_MFAArbiterEventMismatchFails(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(10, false)
	svc.mfa = &fixedMFAClient{mfaRequired: false, mismatchID: true}
	registerUser(t, svc, "a@example.com", "hunter2")

	_, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"})
	if !errors.Is(err, apierr.ErrUpstreamEventMismatch) {
		t.Errorf("err = %v, want ErrUpstreamEventMismatch", err)
	}
}

func TestLogin_RiskScorerUnavailable(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(10, false)
	svc.risk = &fixedRiskClient{callErr: errors.New("connection refused")}
	registerUser(t, svc, "a@example.com", "hunter2")

	_, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"})
	if !errors.Is(err, apierr.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestVerifyOTP_NoPendingChallengeWithoutCachedEventID(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(90, true)
	registerUser(t, svc, "a@example.com", "hunter2")

	_, err := svc.VerifyOTP(context.Background(), VerifyOTPRequest{Email: "a@example.com", DeviceID: "d1", OTP: "123456"})
	if !errors.Is(err, apierr.ErrNoPendingChallenge) {
		t.Errorf("err = %v, want ErrNoPendingChallenge", err)
	}
}

func TestVerifyOTP_SuccessIssuesMFAToken(t *testing.T) {
	svc, _, _, _, mfa, _ := newTestService(90, true)
	registerUser(t, svc, "a@example.com", "hunter2")
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	result, err := svc.VerifyOTP(context.Background(), VerifyOTPRequest{Email: "a@example.com", DeviceID: "d1", OTP: "424242"})
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if result.Token == "" {
		t.Error("expected a token on successful verification")
	}
	if mfa.verifyCalls != 1 {
		t.Errorf("Verify called %d times, want 1", mfa.verifyCalls)
	}

	claims, err := security.NewTokenProvider("test-secret", time.Hour).Validate(result.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !claims.MFA {
		t.Error("expected mfa=true on the issued credential")
	}
}

func TestVerifyOTP_WrongOTPPropagatesArbiterError(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(90, true)
	svc.mfa = &fixedMFAClient{mfaRequired: true, verifyErr: apierr.ErrOTPInvalid}
	registerUser(t, svc, "a@example.com", "hunter2")
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err := svc.VerifyOTP(context.Background(), VerifyOTPRequest{Email: "a@example.com", DeviceID: "d1", OTP: "000000"})
	if !errors.Is(err, apierr.ErrOTPInvalid) {
		t.Errorf("err = %v, want ErrOTPInvalid", err)
	}
}

func TestLogout_BlacklistsTokenForRemainingLifetime(t *testing.T) {
	svc, _, _, c, _, _ := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")
	token, _, err := security.NewTokenProvider("test-secret", time.Hour).Issue("a@example.com", false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := c.store[cache.BlacklistKey(token)]; !ok {
		t.Error("expected the token to be blacklisted")
	}
}

func TestCurrentUser_RejectsBlacklistedToken(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")
	token, _, err := security.NewTokenProvider("test-secret", time.Hour).Issue("a@example.com", false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	_, err = svc.CurrentUser(context.Background(), token)
	if !errors.Is(err, apierr.ErrTokenRevoked) {
		t.Errorf("err = %v, want ErrTokenRevoked", err)
	}
}

func TestCurrentUser_ReturnsAccountForValidToken(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")
	token, _, err := security.NewTokenProvider("test-secret", time.Hour).Issue("a@example.com", false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	u, err := svc.CurrentUser(context.Background(), token)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if u.Email != "a@example.com" {
		t.Errorf("Email = %s, want a@example.com", u.Email)
	}
}

func TestChangePassword_RejectsMismatchedConfirmation(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")

	err := svc.ChangePassword(context.Background(), ChangePasswordRequest{Email: "a@example.com", NewPassword: "new1", ConfirmPassword: "new2"})
	var ve *apierr.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("err = %v, want a ValidationError", err)
	}
}

func TestChangePassword_RewritesHashAndAllowsNewLogin(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(10, false)
	registerUser(t, svc, "a@example.com", "hunter2")

	if err := svc.ChangePassword(context.Background(), ChangePasswordRequest{Email: "a@example.com", NewPassword: "newpass", ConfirmPassword: "newpass"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "hunter2", DeviceID: "d1", ClientIP: "8.8.8.8"}); !errors.Is(err, apierr.ErrInvalidCredentials) {
		t.Errorf("old password should no longer work, err = %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "a@example.com", Password: "newpass", DeviceID: "d1", ClientIP: "8.8.8.8"}); err != nil {
		t.Errorf("new password should work, err = %v", err)
	}
}

func TestDeleteUser_CascadesToMFAArbiterThenDeletesLocalRows(t *testing.T) {
	svc, users, _, _, mfa, _ := newTestService(0, false)
	registerUser(t, svc, "a@example.com", "hunter2")
	u := users.byEmail["a@example.com"]

	result, err := svc.DeleteUser(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if result.UserRowsDeleted != 1 {
		t.Errorf("UserRowsDeleted = %d, want 1", result.UserRowsDeleted)
	}
	if mfa.deletedDevices != u.ID {
		t.Errorf("deletedDevices = %s, want %s", mfa.deletedDevices, u.ID)
	}
	if mfa.deletedLogs != "a@example.com" {
		t.Errorf("deletedLogs = %s, want a@example.com", mfa.deletedLogs)
	}
	if users.byEmail["a@example.com"] != nil {
		t.Error("user row should be gone")
	}
}

func TestDeleteUser_UnknownEmailIsInvalidCredentials(t *testing.T) {
	svc, _, _, _, _, _ := newTestService(0, false)
	_, err := svc.DeleteUser(context.Background(), "nobody@example.com")
	if !errors.Is(err, apierr.ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}
