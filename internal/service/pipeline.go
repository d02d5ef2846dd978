package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/geodrop-system/internal/catalog"
	"github.com/mmeshcher/geodrop-system/internal/geo"
	"github.com/mmeshcher/geodrop-system/internal/model"
	"github.com/mmeshcher/geodrop-system/internal/reward"
)

// PersistOutcome сообщает, какие из трёх независимых записей успели
// зафиксироваться. Координатор не откатывает частично выполненную
// последовательность: дроп может остаться записанным при несписанной награде.
type PersistOutcome struct {
	DropWritten        bool `json:"drop_written"`
	ProgressionWritten bool `json:"progression_written"`
	MissionWritten     bool `json:"mission_written"`
}

// PersistError описывает сбой координатора записи с указанием шага и
// зафиксированных к этому моменту записей.
type PersistError struct {
	Outcome PersistOutcome
	Step    string
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist step %s: %v", e.Step, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// SubmitPlacement проводит запрос на размещение через конвейер: проверка
// якоря и радиуса, шлюз одиночной отправки, чистый расчёт награды и выбор
// открытия, загрузка медиа, три независимые записи и триггер достижений.
func (s *Service) SubmitPlacement(ctx context.Context, req model.PlacementRequest) (*model.PlacementResult, error) {
	fix, ok := s.anchors.Latest(req.UserID)
	if !ok {
		return nil, geo.ErrNoAnchor
	}

	dist, within, err := geo.Check(&fix.Point, fix.Radius, req.Point)
	if err != nil {
		return nil, err
	}
	if !within {
		// Выход за радиус — штатное состояние, не ошибка. Записей нет,
		// расчёт награды не выполняется.
		return &model.PlacementResult{Accepted: false}, nil
	}

	if req.Kind.RequiresMedia() && len(req.Media) == 0 {
		return nil, ErrMediaRequired
	}

	if !s.gate.TryAcquire(req.UserID) {
		if heldBy, since, held := s.gate.Holder(req.UserID); held {
			s.logger.Info("submission rejected while lease is held",
				zap.Int64("heldBy", heldBy), zap.Time("acquiredAt", since))
		}
		return nil, ErrSubmissionInFlight
	}
	defer s.gate.Release(req.UserID)

	prog, err := s.repo.GetProgression(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load progression: %w", err)
	}

	now := s.now()

	// Расчёт награды и выбор открытия чисты и не зависят друг от друга.
	var res model.RewardResult
	var sel catalog.Selection

	unlocked := prog.UnlockedSet()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		res = reward.Calculate(req.Surface, dist, now, prog.LastStreakDate)
		return nil
	})
	g.Go(func() error {
		sel = s.catalog.Pick(catalog.AffinityFor(req.Kind), unlocked)
		return nil
	})
	_ = g.Wait()

	var mediaURL string
	if len(req.Media) > 0 {
		if s.media == nil {
			return nil, ErrMediaNotConfigured
		}
		mediaURL, err = s.media.Upload(ctx, req.Media, req.MediaType)
		if err != nil {
			return nil, fmt.Errorf("upload media: %w", err)
		}
	}

	drop := &model.Drop{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Point:     req.Point,
		Surface:   req.Surface,
		Kind:      req.Kind,
		MediaURL:  mediaURL,
		Reward:    res.Total,
		CreatedAt: now,
	}

	// Намеченное следующее состояние прогресса считается до записи и
	// фиксируется одной операцией.
	next := nextProgression(prog, &res, sel, now)
	completed := completeMissions(next)
	next.Rank = reward.RankFor(next.RewardTotal)
	next.Level = reward.LevelFor(next.RewardTotal)

	greet := len(completed) > 0 && next.Crew != "" && !next.Greeted
	if greet {
		next.Greeted = true
	}

	replayed, err := s.persist(ctx, drop, next, completed, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	if replayed {
		// Повтор по ключу идемпотентности: отдаём ранее созданный дроп как
		// есть, без заявлений о награде и открытии. Перезаписывать прогресс
		// нельзя: координатор не различает полностью зачтённую первую попытку
		// и частичный сбой, а повторная запись при зачтённой попытке
		// начислила бы награду дважды.
		existing, err := s.repo.GetDrop(ctx, drop.ID)
		if err != nil {
			return nil, fmt.Errorf("load replayed drop: %w", err)
		}
		return &model.PlacementResult{Accepted: true, Replayed: true, Drop: existing}, nil
	}

	// Доставка событий не держит аренду шлюза и не задерживает ответ.
	go s.emitEvents(context.WithoutCancel(ctx), next, completed, greet)

	result := &model.PlacementResult{
		Accepted:          true,
		Drop:              drop,
		Reward:            &res,
		Unlock:            &model.UnlockOutcome{Item: sel.Item, Exhausted: sel.Exhausted},
		CompletedMissions: completed,
	}

	return result, nil
}

// nextProgression применяет награду и открытие к копии текущего прогресса.
func nextProgression(prog *model.Progression, res *model.RewardResult, sel catalog.Selection, now time.Time) *model.Progression {
	next := *prog

	next.RewardTotal += res.Total
	next.TotalDrops++

	if sel.Item != "" {
		items := make([]string, 0, len(prog.UnlockedItems)+1)
		items = append(items, prog.UnlockedItems...)
		next.UnlockedItems = append(items, sel.Item)
	}

	if res.GrantStreak {
		day := now.UTC()
		next.LastStreakDate = &day
	}

	return &next
}

// persist выполняет три упорядоченные независимые записи. Общей транзакции
// нет: при сбое после первого шага дроп остаётся записанным, а возвращаемая
// ошибка указывает, какие записи зафиксированы. Признак replayed означает, что
// дроп с этим ключом идемпотентности уже существовал и новых записей не было.
func (s *Service) persist(ctx context.Context, drop *model.Drop, next *model.Progression, completed []string, idempotencyKey string) (bool, error) {
	var outcome PersistOutcome

	created, err := s.repo.CreateDrop(ctx, drop, idempotencyKey)
	if err != nil {
		return false, &PersistError{Outcome: outcome, Step: "drop", Err: err}
	}
	outcome.DropWritten = true

	if !created {
		return true, nil
	}

	if err := s.repo.UpdateProgression(ctx, next); err != nil {
		return false, &PersistError{Outcome: outcome, Step: "progression", Err: err}
	}
	outcome.ProgressionWritten = true

	if len(completed) > 0 {
		if err := s.repo.RecordMissionCompletions(ctx, next.UserID, completed, drop.CreatedAt); err != nil {
			return false, &PersistError{Outcome: outcome, Step: "missions", Err: err}
		}
		outcome.MissionWritten = true
	}

	return false, nil
}

func (s *Service) emitEvents(ctx context.Context, next *model.Progression, completed []string, greet bool) {
	if s.notifier == nil {
		return
	}

	for _, id := range completed {
		if err := s.notifier.MissionCompleted(ctx, next.UserID, id); err != nil {
			s.logger.Warn("mission notification failed",
				zap.Int64("userID", next.UserID), zap.String("mission", id), zap.Error(err))
		}
	}

	if greet {
		if err := s.notifier.CrewGreeting(ctx, next.UserID, next.Crew); err != nil {
			s.logger.Warn("crew greeting failed",
				zap.Int64("userID", next.UserID), zap.String("crew", next.Crew), zap.Error(err))
		}
	}
}
