package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"adaptivemfa/internal/riskscorer/engine"
	"adaptivemfa/internal/riskscorer/loginattempt"
	"adaptivemfa/internal/riskscorer/service"
)

type fakeRepo struct {
	byEventID map[string]*loginattempt.LoginAttempt
	byEmail   map[string][]*loginattempt.LoginAttempt
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byEventID: make(map[string]*loginattempt.LoginAttempt), byEmail: make(map[string][]*loginattempt.LoginAttempt)}
}

func (r *fakeRepo) Insert(ctx context.Context, a *loginattempt.LoginAttempt) (bool, error) {
	if _, ok := r.byEventID[a.EventID]; ok {
		return false, nil
	}
	r.byEventID[a.EventID] = a
	r.byEmail[a.Email] = append(r.byEmail[a.Email], a)
	return true, nil
}

func (r *fakeRepo) GetByEventID(ctx context.Context, eventID string) (*loginattempt.LoginAttempt, error) {
	return r.byEventID[eventID], nil
}

func (r *fakeRepo) RecentByEmail(ctx context.Context, email string, limit int) ([]*loginattempt.LoginAttempt, error) {
	return r.byEmail[email], nil
}

type fixedScorer struct{ score int }

func (s *fixedScorer) Score(ctx context.Context, in engine.Input, history []*loginattempt.LoginAttempt) (int, error) {
	return s.score, nil
}

func newTestRouter(svc *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(svc).Register(r)
	return r
}

func TestPredict_ReturnsScore(t *testing.T) {
	svc := service.New(newFakeRepo(), &fixedScorer{score: 30}, nil)
	r := newTestRouter(svc)

	body := `{"event_id":"3fa85f64-5717-4562-b3fc-2c963f66afa6","email":"alice@example.com","timestamp":"2026-01-15T14:00:00Z","was_successful":true}`
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var envelope struct {
		Message string               `json:"message"`
		Data    service.PredictResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Data.RiskScore != 30 || !envelope.Data.Persisted {
		t.Errorf("data = %+v", envelope.Data)
	}
}

func TestPredict_RejectsMissingEmail(t *testing.T) {
	svc := service.New(newFakeRepo(), &fixedScorer{score: 0}, nil)
	r := newTestRouter(svc)

	body := `{"event_id":"3fa85f64-5717-4562-b3fc-2c963f66afa6","timestamp":"2026-01-15T14:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPredict_RejectsNonUUIDEventID(t *testing.T) {
	svc := service.New(newFakeRepo(), &fixedScorer{score: 0}, nil)
	r := newTestRouter(svc)

	body := `{"event_id":"not-a-uuid","email":"alice@example.com","timestamp":"2026-01-15T14:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHistory_ReturnsAttempts(t *testing.T) {
	repo := newFakeRepo()
	svc := service.New(repo, &fixedScorer{score: 0}, nil)
	r := newTestRouter(svc)

	body := `{"event_id":"3fa85f64-5717-4562-b3fc-2c963f66afa6","email":"bob@example.com","timestamp":"2026-01-15T14:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	histReq := httptest.NewRequest(http.MethodGet, "/history/bob@example.com", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, histReq)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
