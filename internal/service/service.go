// Package service реализует бизнес-логику сервиса геодроп.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/geodrop-system/internal/anchor"
	"github.com/mmeshcher/geodrop-system/internal/catalog"
	"github.com/mmeshcher/geodrop-system/internal/gate"
	"github.com/mmeshcher/geodrop-system/internal/model"
	"github.com/mmeshcher/geodrop-system/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte, crew string, startMissions []string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetProgression(ctx context.Context, userID int64) (*model.Progression, error)
	CreateDrop(ctx context.Context, d *model.Drop, idempotencyKey string) (bool, error)
	UpdateProgression(ctx context.Context, p *model.Progression) error
	RecordMissionCompletions(ctx context.Context, userID int64, missionIDs []string, at time.Time) error
	GetDrop(ctx context.Context, dropID string) (*model.Drop, error)
	DeleteDrop(ctx context.Context, dropID string, userID int64) error
	DecrementDropCount(ctx context.Context, userID int64) error
	AddLike(ctx context.Context, dropID string, userID int64) error
	ListDropsByUser(ctx context.Context, userID int64, before time.Time, limit int) ([]model.Drop, error)
}

// MediaUploader описывает контракт загрузки медиафайлов.
type MediaUploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Notifier описывает контракт доставки событий прогресса.
type Notifier interface {
	MissionCompleted(ctx context.Context, userID int64, missionID string) error
	CrewGreeting(ctx context.Context, userID int64, crew string) error
}

// AnchorSource описывает источник актуального местоположения пользователя.
type AnchorSource interface {
	Update(userID int64, fix anchor.Fix)
	Latest(userID int64) (anchor.Fix, bool)
}

// ErrSubmissionInFlight возвращается при попытке второй отправки, пока первая не завершена.
var (
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrMediaRequired возвращается, если дроп этого типа требует медиафайл, а его нет.
	ErrMediaRequired = errors.New("media required for this drop kind")
	// ErrMediaNotConfigured возвращается, если хранилище медиафайлов не настроено.
	ErrMediaNotConfigured = errors.New("media storage is not configured")
	// ErrInvalidCredentials возвращается при неверной паре логин-пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service содержит бизнес-логику сервиса геодроп.
type Service struct {
	repo     Repository
	anchors  AnchorSource
	catalog  *catalog.Catalog
	gate     *gate.Gate
	media    MediaUploader
	notifier Notifier
	logger   *zap.Logger

	now func() time.Time
}

// NewService создаёт сервис с указанными зависимостями. Загрузчик медиафайлов
// и нотификатор необязательны.
func NewService(repo Repository, anchors AnchorSource, cat *catalog.Catalog, g *gate.Gate, media MediaUploader, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		anchors:  anchors,
		catalog:  cat,
		gate:     g,
		media:    media,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с начальным набором миссий.
func (s *Service) RegisterUser(ctx context.Context, login, password, crew string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, crew, StartMissionIDs())
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// UpdateAnchor сохраняет свежий фикс местоположения пользователя. Момент
// получения фикса проставляет сам источник.
func (s *Service) UpdateAnchor(userID int64, point model.Point, accuracy, radius float64) {
	s.anchors.Update(userID, anchor.Fix{
		Point:    point,
		Accuracy: accuracy,
		Radius:   radius,
	})
}

// GetProgression возвращает запись прогресса пользователя.
func (s *Service) GetProgression(ctx context.Context, userID int64) (*model.Progression, error) {
	return s.repo.GetProgression(ctx, userID)
}

// ListDrops возвращает страницу дропов пользователя по курсору.
func (s *Service) ListDrops(ctx context.Context, userID int64, before time.Time, limit int) ([]model.Drop, error) {
	if before.IsZero() {
		before = s.now().Add(time.Second)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListDropsByUser(ctx, userID, before, limit)
}

// GetDrop возвращает дроп по идентификатору вместе со списком лайков.
func (s *Service) GetDrop(ctx context.Context, dropID string) (*model.Drop, error) {
	return s.repo.GetDrop(ctx, dropID)
}

// LikeDrop добавляет лайк пользователя к дропу. Повторный лайк — no-op.
func (s *Service) LikeDrop(ctx context.Context, dropID string, userID int64) error {
	return s.repo.AddLike(ctx, dropID, userID)
}

// DeletePlacement удаляет дроп его создателя и уменьшает счётчик размещений.
func (s *Service) DeletePlacement(ctx context.Context, userID int64, dropID string) error {
	if err := s.repo.DeleteDrop(ctx, dropID, userID); err != nil {
		return err
	}
	return s.repo.DecrementDropCount(ctx, userID)
}
