// Package service implements the MFA Arbiter's challenge state machine: issuing,
// verifying, and revoking one-time codes, and tracking trusted devices.
package service

import (
	"context"
	"time"

	"adaptivemfa/internal/apierr"
	"adaptivemfa/internal/cache"
	"adaptivemfa/internal/eventbus"
	"adaptivemfa/internal/mfaarbiter/decision"
	"adaptivemfa/internal/mfaarbiter/otplog"
	"adaptivemfa/internal/mfaarbiter/trusteddevice"
	"adaptivemfa/internal/security"
)

// Cache is the subset of cache.Client the service depends on.
type Cache interface {
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v interface{}) error
	Del(ctx context.Context, key string) error
	ScanDelPrefix(ctx context.Context, prefix string) error
}

// TrustedDeviceRepo is the subset of trusteddevice.Repository the service depends on.
type TrustedDeviceRepo interface {
	Upsert(ctx context.Context, d *trusteddevice.TrustedDevice) error
	Get(ctx context.Context, userID, deviceID string) (*trusteddevice.TrustedDevice, error)
	DeleteDevice(ctx context.Context, userID, deviceID string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// OTPLogRepo is the subset of otplog.Repository the service depends on.
type OTPLogRepo interface {
	Append(ctx context.Context, e *otplog.Entry) error
	ByEventID(ctx context.Context, eventID string) ([]*otplog.Entry, error)
	DeleteByEmail(ctx context.Context, email string) (int64, error)
}

// Evaluator decides whether a login needs an MFA challenge.
type Evaluator interface {
	MFARequired(ctx context.Context, in decision.Input) (bool, error)
}

// Sender dispatches an OTP over email.
type Sender interface {
	SendOTP(ctx context.Context, to, otp string) error
}

// Publisher publishes mfa.completed events. May be nil.
type Publisher interface {
	PublishAsync(routingKey string, event interface{})
}

// challenge is the payload stored at cache.OTPChallengeKey(email).
type challenge struct {
	OTPHash  string `json:"otp_hash"`
	EventID  string `json:"event_id"`
	DeviceID string `json:"device_id"`
}

// Service implements the MFA Arbiter's operations.
type Service struct {
	cache         Cache
	trustedRepo   TrustedDeviceRepo
	otpLogRepo    OTPLogRepo
	evaluator     Evaluator
	sender        Sender
	publisher     Publisher
	riskThreshold int
	trustTTL      time.Duration
	now           func() time.Time
}

// New returns a Service. publisher may be nil.
func New(c Cache, trustedRepo TrustedDeviceRepo, otpLogRepo OTPLogRepo, evaluator Evaluator, sender Sender, publisher Publisher, riskThreshold int, trustTTL time.Duration) *Service {
	return &Service{
		cache: c, trustedRepo: trustedRepo, otpLogRepo: otpLogRepo,
		evaluator: evaluator, sender: sender, publisher: publisher,
		riskThreshold: riskThreshold, trustTTL: trustTTL, now: time.Now,
	}
}

// CheckRequest is the /check envelope.
type CheckRequest struct {
	EventID   string
	UserID    string
	Email     string
	DeviceID  string
	RiskScore int
}

// CheckResult is the /check response.
type CheckResult struct {
	MFARequired bool
}

// Check decides whether a login needs an MFA challenge, consulting the trusted-device
// hint cache ahead of the table, and issues/dispatches an OTP when required.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	trusted, err := s.isTrusted(ctx, req.UserID, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if trusted {
		return &CheckResult{MFARequired: false}, nil
	}

	required, err := s.evaluator.MFARequired(ctx, decision.Input{
		RiskScore: req.RiskScore, RiskThreshold: s.riskThreshold, DeviceTrusted: false,
	})
	if err != nil {
		return nil, err
	}
	if !required {
		return &CheckResult{MFARequired: false}, nil
	}

	otp, err := security.GenerateOTP()
	if err != nil {
		return nil, err
	}
	c := challenge{OTPHash: security.HashOTP(otp), EventID: req.EventID, DeviceID: req.DeviceID}
	if err := s.cache.SetJSON(ctx, cache.OTPChallengeKey(req.Email), c, cache.OTPChallengeTTL); err != nil {
		return nil, err
	}

	if err := s.sender.SendOTP(ctx, req.Email, otp); err != nil {
		_ = s.otpLogRepo.Append(ctx, &otplog.Entry{
			EventID: req.EventID, Email: req.Email, Status: otplog.StatusFailedSend, Error: err.Error(), Timestamp: s.now(),
		})
		return nil, apierr.ErrOTPDispatchFailed
	}
	if err := s.otpLogRepo.Append(ctx, &otplog.Entry{
		EventID: req.EventID, Email: req.Email, Status: otplog.StatusSent, Timestamp: s.now(),
	}); err != nil {
		return nil, err
	}

	return &CheckResult{MFARequired: true}, nil
}

// ResendOTP re-issues a code for the email's already-outstanding challenge, on the same
// device_id and event_id, overwriting otp:{email} (most-recent-wins). Fails with
// NoPendingChallenge if no challenge is outstanding.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	var c challenge
	if err := s.cache.GetJSON(ctx, cache.OTPChallengeKey(email), &c); err != nil {
		if err == cache.ErrNotFound {
			return apierr.ErrNoPendingChallenge
		}
		return err
	}

	otp, err := security.GenerateOTP()
	if err != nil {
		return err
	}
	c.OTPHash = security.HashOTP(otp)
	if err := s.cache.SetJSON(ctx, cache.OTPChallengeKey(email), c, cache.OTPChallengeTTL); err != nil {
		return err
	}

	if err := s.sender.SendOTP(ctx, email, otp); err != nil {
		_ = s.otpLogRepo.Append(ctx, &otplog.Entry{
			EventID: c.EventID, Email: email, Status: otplog.StatusFailedSend, Error: err.Error(), Timestamp: s.now(),
		})
		return apierr.ErrOTPDispatchFailed
	}
	return s.otpLogRepo.Append(ctx, &otplog.Entry{
		EventID: c.EventID, Email: email, Status: otplog.StatusSent, Timestamp: s.now(),
	})
}

// VerifyRequest is the /verify envelope.
type VerifyRequest struct {
	EventID   string
	UserID    string
	Email     string
	DeviceID  string
	UserAgent string
	IPAddress string
	OTP       string
}

// VerifyResult is the /verify response.
type VerifyResult struct {
	DeviceSaved bool
}

// Verify classifies a submitted OTP against the cached challenge for email, logs the
// classification, and on success trusts the device and primes the trust-hint cache.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var c challenge
	err := s.cache.GetJSON(ctx, cache.OTPChallengeKey(req.Email), &c)
	if err == cache.ErrNotFound {
		return nil, s.failVerify(ctx, req, otplog.StatusNotFound, apierr.ErrNoPendingChallenge)
	}
	if err != nil {
		return nil, err
	}

	if c.EventID != req.EventID {
		return nil, s.failVerify(ctx, req, otplog.StatusNotFound, apierr.ErrNoPendingChallenge)
	}
	if c.DeviceID != req.DeviceID {
		return nil, s.failVerify(ctx, req, otplog.StatusDeviceMismatch, apierr.ErrDeviceMismatch)
	}
	if !security.OTPEqual(req.OTP, c.OTPHash) {
		return nil, s.failVerify(ctx, req, otplog.StatusInvalid, apierr.ErrOTPInvalid)
	}

	if err := s.otpLogRepo.Append(ctx, &otplog.Entry{
		EventID: req.EventID, Email: req.Email, Status: otplog.StatusVerified, Timestamp: s.now(),
	}); err != nil {
		return nil, err
	}
	if err := s.cache.Del(ctx, cache.OTPChallengeKey(req.Email)); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.trustedRepo.Upsert(ctx, &trusteddevice.TrustedDevice{
		UserID: req.UserID, DeviceID: req.DeviceID, UserAgent: req.UserAgent, IPAddress: req.IPAddress,
		CreatedAt: now, ExpiresAt: now.Add(s.trustTTL),
	}); err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, cache.TrustedDeviceHintKey(req.UserID, req.DeviceID), true, s.trustTTL); err != nil {
		return nil, err
	}

	s.publishCompleted(req, true)
	return &VerifyResult{DeviceSaved: true}, nil
}

// failVerify logs the classification and burns the cached challenge so a single wrong
// attempt can't be retried, then returns sentinel for the handler to map to a status code.
func (s *Service) failVerify(ctx context.Context, req VerifyRequest, status otplog.Status, sentinel error) error {
	_ = s.otpLogRepo.Append(ctx, &otplog.Entry{
		EventID: req.EventID, Email: req.Email, Status: status, Timestamp: s.now(),
	})
	if status != otplog.StatusNotFound {
		_ = s.cache.Del(ctx, cache.OTPChallengeKey(req.Email))
	}
	s.publishCompleted(req, false)
	return sentinel
}

func (s *Service) publishCompleted(req VerifyRequest, wasSuccessful bool) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishAsync(eventbus.RoutingKeyMFACompleted, eventbus.MFACompleted{
		EventID: req.EventID, UserID: req.UserID, Email: req.Email, DeviceID: req.DeviceID,
		WasSuccessful: wasSuccessful, Timestamp: s.now(),
	})
}

// OTPLogSummary is the /otp-logs/{event_id} response body when logs exist.
type OTPLogSummary struct {
	SentLogsCount     int             `json:"sent_logs_count"`
	VerifiedLogsCount int             `json:"verified_logs_count"`
	Logs              []*otplog.Entry `json:"logs"`
}

// OTPLogs returns the log summary for eventID, or nil if no logs exist (the Risk
// Scorer's verification client treats that as a 204/trivially-verified response).
func (s *Service) OTPLogs(ctx context.Context, eventID string) (*OTPLogSummary, error) {
	logs, err := s.otpLogRepo.ByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	summary := &OTPLogSummary{Logs: logs}
	for _, l := range logs {
		switch l.Status {
		case otplog.StatusSent:
			summary.SentLogsCount++
		case otplog.StatusVerified:
			summary.VerifiedLogsCount++
		}
	}
	return summary, nil
}

// DeleteTrustedDevice revokes a single device for userID, part of the supplemented
// per-device revocation endpoint.
func (s *Service) DeleteTrustedDevice(ctx context.Context, userID, deviceID string) error {
	if _, err := s.trustedRepo.DeleteDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	return s.cache.Del(ctx, cache.TrustedDeviceHintKey(userID, deviceID))
}

// DeleteAllTrustedDevices revokes every trusted device for userID and invalidates every
// cached trust hint for that user, maintaining trust-cache coherence.
func (s *Service) DeleteAllTrustedDevices(ctx context.Context, userID string) error {
	if _, err := s.trustedRepo.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	return s.cache.ScanDelPrefix(ctx, "trusted:"+userID+":")
}

// DeleteOTPLogsByEmail removes every OTP log row for email, cascade support for account deletion.
func (s *Service) DeleteOTPLogsByEmail(ctx context.Context, email string) error {
	_, err := s.otpLogRepo.DeleteByEmail(ctx, email)
	return err
}

func (s *Service) isTrusted(ctx context.Context, userID, deviceID string) (bool, error) {
	var hint bool
	err := s.cache.GetJSON(ctx, cache.TrustedDeviceHintKey(userID, deviceID), &hint)
	if err == nil {
		return hint, nil
	}
	if err != cache.ErrNotFound {
		return false, err
	}

	d, err := s.trustedRepo.Get(ctx, userID, deviceID)
	if err != nil {
		return false, err
	}
	trusted := d.IsTrusted(s.now())
	if trusted {
		_ = s.cache.SetJSON(ctx, cache.TrustedDeviceHintKey(userID, deviceID), true, s.trustTTL)
	}
	return trusted, nil
}
