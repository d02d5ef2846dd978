// Package gate реализует шлюз одиночной отправки для конвейера размещения.
package gate

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL — предохранительный срок аренды. Если конвейер завис и не дошёл
// до освобождения, по истечении срока аренда снимается принудительно:
// доступность важнее строгой взаимоисключаемости.
const DefaultTTL = 10 * time.Second

type lease struct {
	heldBy     int64
	acquiredAt time.Time
	expiresAt  time.Time
}

// Gate хранит по одной аренде на сессию и не пропускает вторую отправку,
// пока первая не завершилась или не истёк предохранительный срок.
type Gate struct {
	mu     sync.Mutex
	leases map[int64]lease
	ttl    time.Duration
	now    func() time.Time
}

// New создаёт шлюз с указанным сроком аренды.
func New(ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		leases: make(map[int64]lease),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TryAcquire пытается занять аренду для сессии. Возвращает false, если аренда
// уже занята и её срок ещё не истёк.
func (g *Gate) TryAcquire(sessionID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if l, ok := g.leases[sessionID]; ok && now.Before(l.expiresAt) {
		return false
	}

	g.leases[sessionID] = lease{
		heldBy:     sessionID,
		acquiredAt: now,
		expiresAt:  now.Add(g.ttl),
	}
	return true
}

// Holder возвращает владельца и момент захвата действующей аренды сессии.
// Для свободной или просроченной аренды возвращает held=false.
func (g *Gate) Holder(sessionID int64) (heldBy int64, acquiredAt time.Time, held bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.leases[sessionID]
	if !ok || !g.now().Before(l.expiresAt) {
		return 0, time.Time{}, false
	}
	return l.heldBy, l.acquiredAt, true
}

// Release освобождает аренду сессии. Вызывается через defer на каждом пути
// выхода из конвейера.
func (g *Gate) Release(sessionID int64) {
	g.mu.Lock()
	delete(g.leases, sessionID)
	g.mu.Unlock()
}

// StartSweeper запускает фоновую уборку просроченных аренд, чтобы карта не
// росла от сессий, так и не освободивших аренду.
func (g *Gate) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(g.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.sweep()
			}
		}
	}()
}

func (g *Gate) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, l := range g.leases {
		if !now.Before(l.expiresAt) {
			delete(g.leases, id)
		}
	}
}
