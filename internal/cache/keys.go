package cache

import (
	"fmt"
	"time"
)

// TTLs for each cache namespace, per the cache-layer contract.
const (
	OTPChallengeTTL  = 300 * time.Second
	GeolocationTTL   = 30 * 24 * time.Hour
	TrustedDeviceTTL = 30 * 24 * time.Hour
	EventCorrelationTTL = 300 * time.Second
)

// OTPChallengeKey is the cache key for a pending OTP challenge, keyed by the account email.
func OTPChallengeKey(email string) string { return fmt.Sprintf("otp:%s", email) }

// TrustedDeviceHintKey is the cache key for the fast-path trusted-device check, ahead of
// the TrustedDevice table lookup.
func TrustedDeviceHintKey(userID, deviceID string) string {
	return fmt.Sprintf("trusted:%s:%s", userID, deviceID)
}

// GeolocationKey is the cache key for a resolved IP-to-country/region lookup.
func GeolocationKey(ip string) string { return fmt.Sprintf("geoloc:%s", ip) }

// BlacklistKey is the cache key marking a bearer credential revoked before its natural expiry.
func BlacklistKey(token string) string { return fmt.Sprintf("bl:%s", token) }

// EventCorrelationKey is the cache key correlating an in-flight login to its event_id,
// consulted by the Authenticator while an MFA challenge is outstanding.
func EventCorrelationKey(email string) string { return fmt.Sprintf("mfa:%s", email) }
