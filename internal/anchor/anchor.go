// Package anchor хранит последние известные координаты пользователей.
package anchor

import (
	"sync"
	"time"

	"github.com/mmeshcher/geodrop-system/internal/model"
)

// DefaultRadius используется, если источник координат не сообщил допустимый радиус.
const DefaultRadius = 50.0

// Fix описывает одно обновление местоположения пользователя.
type Fix struct {
	Point    model.Point
	Accuracy float64
	Radius   float64
	At       time.Time
}

// Source принимает обновления местоположения и отдаёт последний актуальный фикс.
// Фикс старше ttl считается отсутствующим: конвейер размещения в этом случае
// работает как при полном отсутствии якоря.
type Source struct {
	mu    sync.RWMutex
	fixes map[int64]Fix
	ttl   time.Duration
	now   func() time.Time
}

// NewSource создаёт хранилище фиксов с указанным сроком актуальности.
func NewSource(ttl time.Duration) *Source {
	return &Source{
		fixes: make(map[int64]Fix),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Update сохраняет свежий фикс пользователя.
func (s *Source) Update(userID int64, fix Fix) {
	if fix.At.IsZero() {
		fix.At = s.now()
	}
	if fix.Radius <= 0 {
		fix.Radius = DefaultRadius
	}

	s.mu.Lock()
	s.fixes[userID] = fix
	s.mu.Unlock()
}

// Latest возвращает последний фикс пользователя, если он ещё актуален.
func (s *Source) Latest(userID int64) (Fix, bool) {
	s.mu.RLock()
	fix, ok := s.fixes[userID]
	s.mu.RUnlock()

	if !ok {
		return Fix{}, false
	}
	if s.now().Sub(fix.At) > s.ttl {
		return Fix{}, false
	}
	return fix, true
}
