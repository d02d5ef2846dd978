// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/geodrop-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProgressionNotFound возвращается, если у пользователя нет записи прогресса.
	ErrProgressionNotFound = errors.New("progression not found")
	// ErrDropNotFound возвращается, если дроп не найден.
	ErrDropNotFound = errors.New("drop not found")
	// ErrNotDropOwner возвращается при попытке удалить чужой дроп.
	ErrNotDropOwner = errors.New("drop belongs to another user")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
// Коллекции drops, progression и mission_log пишутся независимыми коммитами:
// координатор записи сознательно не оборачивает их в общую транзакцию.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных сбоях: сериализационных ошибках,
// дедлоках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя вместе с начальной записью прогресса.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, crew string, startMissions []string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, crew) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, crew,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO progression (user_id, active_missions, crew) VALUES ($1, $2, $3)`,
		id, startMissions, crew,
	)
	if err != nil {
		return 0, fmt.Errorf("create progression: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, crew, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.Crew, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetProgression возвращает запись прогресса пользователя.
func (r *PostgresRepository) GetProgression(ctx context.Context, userID int64) (*model.Progression, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, reward_total, rank, level, total_drops, unlocked_items,
		        last_streak_date, active_missions, completed_missions, crew, greeted
		 FROM progression
		 WHERE user_id = $1`,
		userID,
	)

	var p model.Progression
	err := row.Scan(
		&p.UserID, &p.RewardTotal, &p.Rank, &p.Level, &p.TotalDrops, &p.UnlockedItems,
		&p.LastStreakDate, &p.ActiveMissions, &p.CompletedMissions, &p.Crew, &p.Greeted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProgressionNotFound
		}
		return nil, fmt.Errorf("get progression: %w", err)
	}

	return &p, nil
}

// CreateDrop сохраняет новый дроп. Если передан ключ идемпотентности и дроп с
// таким ключом уже существует, возвращается существующая запись и признак
// created=false вместо создания дубликата.
func (r *PostgresRepository) CreateDrop(ctx context.Context, d *model.Drop, idempotencyKey string) (bool, error) {
	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}

	var inserted bool
	err := r.withRetry(ctx, func(ctx context.Context) error {
		cmdTag, err := r.pool.Exec(ctx,
			`INSERT INTO drops (id, user_id, lat, lon, surface, kind, media_url, reward, idempotency_key, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (idempotency_key) DO NOTHING`,
			d.ID, d.UserID, d.Point.Lat, d.Point.Lon, string(d.Surface), string(d.Kind),
			d.MediaURL, d.Reward, key, d.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert drop: %w", err)
		}
		inserted = cmdTag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}

	if inserted || key == nil {
		return inserted, nil
	}

	// Повтор по ключу идемпотентности: отдаём ранее созданный дроп.
	row := r.pool.QueryRow(ctx,
		`SELECT id, created_at FROM drops WHERE idempotency_key = $1`,
		idempotencyKey,
	)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return false, fmt.Errorf("select existing drop: %w", err)
	}

	return false, nil
}

// UpdateProgression перезаписывает запись прогресса целиком. Запись работает по
// принципу «последний победил»: оптимистических токенов у коллекции нет.
func (r *PostgresRepository) UpdateProgression(ctx context.Context, p *model.Progression) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE progression
			 SET reward_total = $2, rank = $3, level = $4, total_drops = $5,
			     unlocked_items = $6, last_streak_date = $7,
			     active_missions = $8, completed_missions = $9, greeted = $10
			 WHERE user_id = $1`,
			p.UserID, p.RewardTotal, p.Rank, p.Level, p.TotalDrops,
			p.UnlockedItems, p.LastStreakDate,
			p.ActiveMissions, p.CompletedMissions, p.Greeted,
		)
		if err != nil {
			return fmt.Errorf("update progression: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrProgressionNotFound
		}
		return nil
	})
}

// RecordMissionCompletions добавляет завершённые миссии в журнал. Повторная
// запись той же пары (пользователь, миссия) игнорируется.
func (r *PostgresRepository) RecordMissionCompletions(ctx context.Context, userID int64, missionIDs []string, at time.Time) error {
	for _, id := range missionIDs {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO mission_log (user_id, mission_id, completed_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, mission_id) DO NOTHING`,
			userID, id, at,
		)
		if err != nil {
			return fmt.Errorf("record mission %s: %w", id, err)
		}
	}
	return nil
}

// GetDrop возвращает дроп по идентификатору вместе со списком лайков.
func (r *PostgresRepository) GetDrop(ctx context.Context, dropID string) (*model.Drop, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT d.id, d.user_id, d.lat, d.lon, d.surface, d.kind, d.media_url, d.reward, d.created_at,
		        ARRAY(SELECT dl.user_id FROM drop_likes dl WHERE dl.drop_id = d.id ORDER BY dl.created_at)
		 FROM drops d
		 WHERE d.id = $1`,
		dropID,
	)

	var d model.Drop
	var surface, kind string
	err := row.Scan(&d.ID, &d.UserID, &d.Point.Lat, &d.Point.Lon, &surface, &kind,
		&d.MediaURL, &d.Reward, &d.CreatedAt, &d.Likes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDropNotFound
		}
		return nil, fmt.Errorf("get drop: %w", err)
	}

	d.Surface = model.Surface(surface)
	d.Kind = model.DropKind(kind)

	return &d, nil
}

// DeleteDrop удаляет дроп, если он принадлежит указанному пользователю.
func (r *PostgresRepository) DeleteDrop(ctx context.Context, dropID string, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM drops WHERE id = $1 AND user_id = $2`,
		dropID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete drop: %w", err)
	}

	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM drops WHERE id = $1)`,
		dropID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check drop: %w", err)
	}

	if exists {
		return ErrNotDropOwner
	}
	return ErrDropNotFound
}

// DecrementDropCount уменьшает счётчик размещённых дропов пользователя на единицу.
func (r *PostgresRepository) DecrementDropCount(ctx context.Context, userID int64) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`UPDATE progression SET total_drops = GREATEST(total_drops - 1, 0) WHERE user_id = $1`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("decrement drop count: %w", err)
		}
		return nil
	})
}

// AddLike добавляет лайк к дропу. Повторный лайк того же пользователя игнорируется.
func (r *PostgresRepository) AddLike(ctx context.Context, dropID string, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO drop_likes (drop_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (drop_id, user_id) DO NOTHING`,
		dropID, userID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrDropNotFound
		}
		return fmt.Errorf("add like: %w", err)
	}
	return nil
}

// ListDropsByUser возвращает страницу дропов пользователя, упорядоченную по
// времени создания. Курсор before задаёт верхнюю границу страницы.
func (r *PostgresRepository) ListDropsByUser(ctx context.Context, userID int64, before time.Time, limit int) ([]model.Drop, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT d.id, d.user_id, d.lat, d.lon, d.surface, d.kind, d.media_url, d.reward, d.created_at,
		        ARRAY(SELECT dl.user_id FROM drop_likes dl WHERE dl.drop_id = d.id ORDER BY dl.created_at)
		 FROM drops d
		 WHERE d.user_id = $1 AND d.created_at < $2
		 ORDER BY d.created_at DESC
		 LIMIT $3`,
		userID, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select drops: %w", err)
	}
	defer rows.Close()

	var res []model.Drop
	for rows.Next() {
		var d model.Drop
		var surface, kind string
		if err := rows.Scan(&d.ID, &d.UserID, &d.Point.Lat, &d.Point.Lon, &surface, &kind,
			&d.MediaURL, &d.Reward, &d.CreatedAt, &d.Likes); err != nil {
			return nil, fmt.Errorf("scan drop: %w", err)
		}
		d.Surface = model.Surface(surface)
		d.Kind = model.DropKind(kind)
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
