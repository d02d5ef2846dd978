package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/geodrop-system/internal/geo"
	"github.com/mmeshcher/geodrop-system/internal/middleware"
	"github.com/mmeshcher/geodrop-system/internal/model"
	"github.com/mmeshcher/geodrop-system/internal/repository"
	"github.com/mmeshcher/geodrop-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	submitRes *model.PlacementResult
	submitErr error

	deleteErr error
	likeErr   error

	getDropResp *model.Drop
	getDropErr  error

	dropsResp []model.Drop
	dropsErr  error

	progResp *model.Progression
	progErr  error

	anchorUpdates int
}

func (s *stubService) RegisterUser(ctx context.Context, login, password, crew string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) UpdateAnchor(userID int64, point model.Point, accuracy, radius float64) {
	s.anchorUpdates++
}

func (s *stubService) SubmitPlacement(ctx context.Context, req model.PlacementRequest) (*model.PlacementResult, error) {
	return s.submitRes, s.submitErr
}

func (s *stubService) DeletePlacement(ctx context.Context, userID int64, dropID string) error {
	return s.deleteErr
}

func (s *stubService) GetDrop(ctx context.Context, dropID string) (*model.Drop, error) {
	return s.getDropResp, s.getDropErr
}

func (s *stubService) LikeDrop(ctx context.Context, dropID string, userID int64) error {
	return s.likeErr
}

func (s *stubService) ListDrops(ctx context.Context, userID int64, before time.Time, limit int) ([]model.Drop, error) {
	return s.dropsResp, s.dropsErr
}

func (s *stubService) GetProgression(ctx context.Context, userID int64) (*model.Progression, error) {
	return s.progResp, s.progErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authedRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	req.AddCookie(rec.Result().Cookies()[0])

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUserID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
		Crew:     "night-owls",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("expected auth cookie to be set")
	}
}

func TestLogin_UnauthorizedOnBadCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestUpdateAnchor(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(anchorRequest{Lat: 55.75, Lon: 37.62, Accuracy: 5, Radius: 60})

	req := authedRequest(t, h, http.MethodPost, "/api/user/anchor", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.UpdateAnchor)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if svc.anchorUpdates != 1 {
		t.Fatalf("anchor updates = %d, want 1", svc.anchorUpdates)
	}
}

func TestSubmitDrop_Accepted(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		submitRes: &model.PlacementResult{
			Accepted: true,
			Drop: &model.Drop{
				ID:        "d1",
				Point:     model.Point{Lat: 1, Lon: 1},
				Surface:   model.SurfaceRoof,
				Kind:      model.DropKindSticker,
				Reward:    55,
				CreatedAt: now,
			},
			Reward: &model.RewardResult{Total: 55},
			Unlock: &model.UnlockOutcome{Item: "marker-ember"},
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placementPayload{Lat: 1, Lon: 1, Surface: "roof", Kind: "sticker"})

	req := authedRequest(t, h, http.MethodPost, "/api/user/drops", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitDrop)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp placementResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted || resp.Drop == nil || resp.Drop.Reward != 55 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitDrop_ReplayReturnsExistingDrop(t *testing.T) {
	svc := &stubService{
		submitRes: &model.PlacementResult{
			Accepted: true,
			Replayed: true,
			Drop: &model.Drop{
				ID:        "d1",
				Point:     model.Point{Lat: 1, Lon: 1},
				Surface:   model.SurfaceRoof,
				Kind:      model.DropKindSticker,
				Reward:    55,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placementPayload{
		Lat: 1, Lon: 1, Surface: "roof", Kind: "sticker",
		IdempotencyKey: "retry-key",
	})

	req := authedRequest(t, h, http.MethodPost, "/api/user/drops", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitDrop)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp placementResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Replayed || resp.Drop == nil || resp.Drop.ID != "d1" {
		t.Fatalf("unexpected replay response: %+v", resp)
	}
	if resp.Reward != nil || resp.Unlock != nil {
		t.Fatalf("replay response must not carry reward or unlock: %+v", resp)
	}
}

func TestSubmitDrop_OutOfRadiusSilent(t *testing.T) {
	svc := &stubService{
		submitRes: &model.PlacementResult{Accepted: false},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placementPayload{Lat: 1, Lon: 1, Surface: "wall", Kind: "tag"})

	req := authedRequest(t, h, http.MethodPost, "/api/user/drops", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitDrop)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp placementResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted {
		t.Fatalf("out-of-radius response must not be accepted")
	}
}

func TestSubmitDrop_NoAnchor(t *testing.T) {
	svc := &stubService{
		submitErr: geo.ErrNoAnchor,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placementPayload{Lat: 1, Lon: 1, Surface: "wall", Kind: "tag"})

	req := authedRequest(t, h, http.MethodPost, "/api/user/drops", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitDrop)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestSubmitDrop_SubmissionInFlight(t *testing.T) {
	svc := &stubService{
		submitErr: service.ErrSubmissionInFlight,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placementPayload{Lat: 1, Lon: 1, Surface: "wall", Kind: "tag"})

	req := authedRequest(t, h, http.MethodPost, "/api/user/drops", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitDrop)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestSubmitDrop_PersistFailureReportsOutcome(t *testing.T) {
	svc := &stubService{
		submitErr: &service.PersistError{
			Outcome: service.PersistOutcome{DropWritten: true},
			Step:    "progression",
			Err:     context.DeadlineExceeded,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placementPayload{Lat: 1, Lon: 1, Surface: "wall", Kind: "tag"})

	req := authedRequest(t, h, http.MethodPost, "/api/user/drops", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitDrop)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}

	var resp struct {
		Accepted bool                   `json:"accepted"`
		Persist  service.PersistOutcome `json:"persist"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Persist.DropWritten || resp.Persist.ProgressionWritten {
		t.Fatalf("unexpected persist outcome: %+v", resp.Persist)
	}
}

func TestSubmitDrop_InvalidKind(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placementPayload{Lat: 1, Lon: 1, Surface: "wall", Kind: "balloon"})

	req := authedRequest(t, h, http.MethodPost, "/api/user/drops", body)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitDrop)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetDrop_ReturnsLikesCount(t *testing.T) {
	svc := &stubService{
		getDropResp: &model.Drop{
			ID:        "d1",
			UserID:    2,
			Point:     model.Point{Lat: 1, Lon: 1},
			Surface:   model.SurfaceWall,
			Kind:      model.DropKindTag,
			Reward:    20,
			Likes:     []int64{3, 4},
			CreatedAt: time.Now().UTC(),
		},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/drops/d1", nil)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp dropResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "d1" || resp.Likes != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetDrop_NotFound(t *testing.T) {
	svc := &stubService{
		getDropErr: repository.ErrDropNotFound,
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/drops/unknown", nil)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestListDrops_NoContent(t *testing.T) {
	svc := &stubService{
		dropsResp: []model.Drop{},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/user/drops", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.ListDrops)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestGetProgression_JSONResponse(t *testing.T) {
	svc := &stubService{
		progResp: &model.Progression{
			UserID:            1,
			RewardTotal:       155,
			Rank:              "tagger",
			Level:             2,
			TotalDrops:        4,
			UnlockedItems:     []string{"marker-ember"},
			CompletedMissions: []string{"first-steps"},
		},
	}
	h := newTestHandler(t, svc)

	req := authedRequest(t, h, http.MethodGet, "/api/user/progression", nil)
	rec := httptest.NewRecorder()

	h.authMiddleware.Middleware(http.HandlerFunc(h.GetProgression)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp progressionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RewardTotal != 155 || resp.Rank != "tagger" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
