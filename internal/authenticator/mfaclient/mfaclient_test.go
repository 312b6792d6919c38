package mfaclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"context"

	"adaptivemfa/internal/apierr"
)

func TestCheck_NotRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(checkResponse{Message: "ok", Data: CheckResult{EventID: "e1", MFARequired: false}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.Check(context.Background(), CheckRequest{EventID: "e1"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.MFARequired {
		t.Error("expected mfa_required = false")
	}
}

func TestCheck_ChallengeIssued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(checkResponse{Message: "issued", Data: CheckResult{EventID: "e1", MFARequired: true}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.Check(context.Background(), CheckRequest{EventID: "e1"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !result.MFARequired {
		t.Error("expected mfa_required = true")
	}
}

func TestVerify_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(verifyResponse{Message: "verified", DeviceSaved: true})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.Verify(context.Background(), VerifyRequest{EventID: "e1", OTP: "123456"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.DeviceSaved {
		t.Error("expected device_saved = true")
	}
}

func TestVerify_NoPendingChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apierr.Detail{Detail: "no pending mfa challenge"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Verify(context.Background(), VerifyRequest{EventID: "e1", OTP: "123456"})
	if err != apierr.ErrNoPendingChallenge {
		t.Errorf("err = %v, want ErrNoPendingChallenge", err)
	}
}

func TestVerify_DeviceMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(apierr.Detail{Detail: apierr.ErrDeviceMismatch.Error()})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Verify(context.Background(), VerifyRequest{EventID: "e1", OTP: "123456"})
	if err != apierr.ErrDeviceMismatch {
		t.Errorf("err = %v, want ErrDeviceMismatch", err)
	}
}

func TestVerify_InvalidOTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(apierr.Detail{Detail: apierr.ErrOTPInvalid.Error()})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Verify(context.Background(), VerifyRequest{EventID: "e1", OTP: "123456"})
	if err != apierr.ErrOTPInvalid {
		t.Errorf("err = %v, want ErrOTPInvalid", err)
	}
}
