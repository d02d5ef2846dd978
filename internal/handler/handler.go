// Package handler содержит HTTP-обработчики API сервиса геодроп.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/geodrop-system/internal/geo"
	"github.com/mmeshcher/geodrop-system/internal/media"
	"github.com/mmeshcher/geodrop-system/internal/middleware"
	"github.com/mmeshcher/geodrop-system/internal/model"
	"github.com/mmeshcher/geodrop-system/internal/repository"
	"github.com/mmeshcher/geodrop-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, crew string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	UpdateAnchor(userID int64, point model.Point, accuracy, radius float64)
	SubmitPlacement(ctx context.Context, req model.PlacementRequest) (*model.PlacementResult, error)
	DeletePlacement(ctx context.Context, userID int64, dropID string) error
	GetDrop(ctx context.Context, dropID string) (*model.Drop, error)
	LikeDrop(ctx context.Context, dropID string, userID int64) error
	ListDrops(ctx context.Context, userID int64, before time.Time, limit int) ([]model.Drop, error)
	GetProgression(ctx context.Context, userID int64) (*model.Progression, error)
}

// Handler реализует HTTP-обработчики API сервиса геодроп.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Crew     string `json:"crew,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.Crew)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type anchorRequest struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy"`
	Radius   float64 `json:"radius"`
}

// UpdateAnchor принимает свежий фикс местоположения текущего пользователя.
func (h *Handler) UpdateAnchor(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req anchorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validPoint(req.Lat, req.Lon) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.service.UpdateAnchor(userID, model.Point{Lat: req.Lat, Lon: req.Lon}, req.Accuracy, req.Radius)
	w.WriteHeader(http.StatusOK)
}

type placementPayload struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Surface        string  `json:"surface"`
	Kind           string  `json:"kind"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

type dropResponse struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Surface   string  `json:"surface"`
	Kind      string  `json:"kind"`
	MediaURL  string  `json:"media_url,omitempty"`
	Reward    int64   `json:"reward"`
	Likes     int     `json:"likes"`
	CreatedAt string  `json:"created_at"`
}

type placementResponse struct {
	Accepted          bool                 `json:"accepted"`
	Replayed          bool                 `json:"replayed,omitempty"`
	Drop              *dropResponse        `json:"drop,omitempty"`
	Reward            *model.RewardResult  `json:"reward,omitempty"`
	Unlock            *model.UnlockOutcome `json:"unlock,omitempty"`
	CompletedMissions []string             `json:"completed_missions,omitempty"`
}

// SubmitDrop проводит запрос на размещение дропа через конвейер.
// Принимает application/json без медиа либо multipart/form-data с частью
// placement (JSON) и файлом media.
func (h *Handler) SubmitDrop(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	req, ok := h.parsePlacement(w, r, userID)
	if !ok {
		return
	}

	res, err := h.service.SubmitPlacement(r.Context(), *req)
	if err != nil {
		h.writePlacementError(w, r, err)
		return
	}

	if !res.Accepted {
		// Молчаливый отказ: за радиусом размещение просто не происходит.
		writeJSON(w, http.StatusOK, placementResponse{Accepted: false})
		return
	}

	// Повтор по ключу идемпотентности не создаёт новой записи.
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}

	writeJSON(w, status, placementResponse{
		Accepted:          true,
		Replayed:          res.Replayed,
		Drop:              toDropResponse(res.Drop),
		Reward:            res.Reward,
		Unlock:            res.Unlock,
		CompletedMissions: res.CompletedMissions,
	})
}

func (h *Handler) parsePlacement(w http.ResponseWriter, r *http.Request, userID int64) (*model.PlacementRequest, bool) {
	var payload placementPayload
	var mediaData []byte
	var mediaType string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return nil, false
		}

		if err := json.Unmarshal([]byte(r.FormValue("placement")), &payload); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return nil, false
		}

		file, fh, err := r.FormFile("media")
		if err == nil {
			defer file.Close()
			mediaData, err = io.ReadAll(file)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return nil, false
			}
			mediaType = fh.Header.Get("Content-Type")
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return nil, false
		}
	}

	if !validPoint(payload.Lat, payload.Lon) || !validKind(payload.Kind) || payload.Surface == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}

	return &model.PlacementRequest{
		UserID:         userID,
		Point:          model.Point{Lat: payload.Lat, Lon: payload.Lon},
		Surface:        model.Surface(payload.Surface),
		Kind:           model.DropKind(payload.Kind),
		Media:          mediaData,
		MediaType:      mediaType,
		IdempotencyKey: payload.IdempotencyKey,
	}, true
}

func (h *Handler) writePlacementError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geo.ErrNoAnchor):
		http.Error(w, "no location anchor", http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrSubmissionInFlight):
		http.Error(w, "submission already in flight", http.StatusConflict)
	case errors.Is(err, service.ErrMediaRequired):
		http.Error(w, "media required", http.StatusBadRequest)
	case errors.Is(err, media.ErrMediaRejected), errors.Is(err, service.ErrMediaNotConfigured):
		http.Error(w, "media rejected", http.StatusUnsupportedMediaType)
	default:
		var pErr *service.PersistError
		if errors.As(err, &pErr) {
			h.logger.Error("persist error", zap.Error(err), zap.String("step", pErr.Step))
			writeJSON(w, http.StatusInternalServerError, struct {
				Accepted bool                   `json:"accepted"`
				Persist  service.PersistOutcome `json:"persist"`
			}{false, pErr.Outcome})
			return
		}
		h.logger.Error("submit placement error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// DeleteDrop удаляет дроп текущего пользователя.
func (h *Handler) DeleteDrop(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	dropID := chi.URLParam(r, "dropID")

	err := h.service.DeletePlacement(r.Context(), userID, dropID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDropNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrNotDropOwner):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("delete drop error", zap.Error(err), zap.String("drop", dropID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetDrop возвращает дроп по идентификатору. Дропы видны любому
// аутентифицированному пользователю.
func (h *Handler) GetDrop(w http.ResponseWriter, r *http.Request) {
	dropID := chi.URLParam(r, "dropID")

	d, err := h.service.GetDrop(r.Context(), dropID)
	if err != nil {
		if errors.Is(err, repository.ErrDropNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get drop error", zap.Error(err), zap.String("drop", dropID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toDropResponse(d))
}

// LikeDrop добавляет лайк текущего пользователя к дропу.
func (h *Handler) LikeDrop(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	dropID := chi.URLParam(r, "dropID")

	if err := h.service.LikeDrop(r.Context(), dropID, userID); err != nil {
		if errors.Is(err, repository.ErrDropNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("like drop error", zap.Error(err), zap.String("drop", dropID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListDrops возвращает страницу дропов текущего пользователя.
func (h *Handler) ListDrops(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		before = parsed
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	drops, err := h.service.ListDrops(r.Context(), userID, before, limit)
	if err != nil {
		h.logger.Error("list drops error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(drops) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]dropResponse, 0, len(drops))
	for i := range drops {
		resp = append(resp, *toDropResponse(&drops[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type progressionResponse struct {
	RewardTotal       int64    `json:"reward_total"`
	Rank              string   `json:"rank"`
	Level             int      `json:"level"`
	TotalDrops        int64    `json:"total_drops"`
	UnlockedItems     []string `json:"unlocked_items"`
	ActiveMissions    []string `json:"active_missions"`
	CompletedMissions []string `json:"completed_missions"`
}

// GetProgression возвращает прогресс текущего пользователя.
func (h *Handler) GetProgression(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	p, err := h.service.GetProgression(r.Context(), userID)
	if err != nil {
		h.logger.Error("get progression error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, progressionResponse{
		RewardTotal:       p.RewardTotal,
		Rank:              p.Rank,
		Level:             p.Level,
		TotalDrops:        p.TotalDrops,
		UnlockedItems:     p.UnlockedItems,
		ActiveMissions:    p.ActiveMissions,
		CompletedMissions: p.CompletedMissions,
	})
}

func toDropResponse(d *model.Drop) *dropResponse {
	return &dropResponse{
		ID:        d.ID,
		Lat:       d.Point.Lat,
		Lon:       d.Point.Lon,
		Surface:   string(d.Surface),
		Kind:      string(d.Kind),
		MediaURL:  d.MediaURL,
		Reward:    d.Reward,
		Likes:     len(d.Likes),
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func validPoint(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func validKind(kind string) bool {
	switch model.DropKind(kind) {
	case model.DropKindSticker, model.DropKindPoster, model.DropKindTag,
		model.DropKindPhoto, model.DropKindClip:
		return true
	}
	return false
}
