// Package model содержит доменные сущности сервиса геодроп.
package model

import "time"

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Crew         string
	CreatedAt    time.Time
}

// Point задаёт географическую точку в градусах.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Surface описывает поверхность, на которую помещается дроп.
type Surface string

// Поверхности размещения. Труднодоступные поверхности дают повышенный тариф.
const (
	SurfaceRoof      Surface = "roof"
	SurfaceBillboard Surface = "billboard"
	SurfaceBridge    Surface = "bridge"
	SurfaceWall      Surface = "wall"
	SurfaceStreet    Surface = "street"
	SurfaceGround    Surface = "ground"
)

// DropKind описывает тип дропа.
type DropKind string

const (
	DropKindSticker DropKind = "sticker"
	DropKindPoster  DropKind = "poster"
	DropKindTag     DropKind = "tag"
	DropKindPhoto   DropKind = "photo"
	DropKindClip    DropKind = "clip"
)

// RequiresMedia сообщает, обязан ли дроп данного типа содержать медиафайл.
func (k DropKind) RequiresMedia() bool {
	return k == DropKindPhoto || k == DropKindClip
}

// Drop описывает сохранённый дроп пользователя.
type Drop struct {
	ID        string
	UserID    int64
	Point     Point
	Surface   Surface
	Kind      DropKind
	MediaURL  string
	Reward    int64
	Likes     []int64
	CreatedAt time.Time
}

// Progression содержит состояние прогресса пользователя.
type Progression struct {
	UserID            int64
	RewardTotal       int64
	Rank              string
	Level             int
	TotalDrops        int64
	UnlockedItems     []string
	LastStreakDate    *time.Time
	ActiveMissions    []string
	CompletedMissions []string
	Crew              string
	Greeted           bool
}

// UnlockedSet возвращает множество открытых элементов каталога.
func (p *Progression) UnlockedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.UnlockedItems))
	for _, item := range p.UnlockedItems {
		set[item] = struct{}{}
	}
	return set
}

// HasActiveMission сообщает, активна ли миссия у пользователя.
func (p *Progression) HasActiveMission(id string) bool {
	for _, m := range p.ActiveMissions {
		if m == id {
			return true
		}
	}
	return false
}

// HasCompletedMission сообщает, завершена ли миссия пользователем.
func (p *Progression) HasCompletedMission(id string) bool {
	for _, m := range p.CompletedMissions {
		if m == id {
			return true
		}
	}
	return false
}

// PlacementRequest описывает запрос на размещение дропа. Не сохраняется как есть.
type PlacementRequest struct {
	UserID         int64
	Point          Point
	Surface        Surface
	Kind           DropKind
	Media          []byte
	MediaType      string
	IdempotencyKey string
}

// RewardLine описывает одну строку расшифровки награды.
type RewardLine struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// RewardResult содержит итог расчёта награды за размещение.
type RewardResult struct {
	Total       int64        `json:"total"`
	Breakdown   []RewardLine `json:"breakdown"`
	GrantStreak bool         `json:"-"`
}

// UnlockOutcome описывает результат выбора элемента каталога.
type UnlockOutcome struct {
	Item      string `json:"item,omitempty"`
	Exhausted bool   `json:"exhausted"`
}

// PlacementResult возвращается вызывающей стороне после прохождения конвейера.
// Replayed означает повтор по ключу идемпотентности: Drop указывает на ранее
// созданную запись, награда и открытие заново не заявляются.
type PlacementResult struct {
	Accepted          bool
	Replayed          bool
	Drop              *Drop
	Reward            *RewardResult
	Unlock            *UnlockOutcome
	CompletedMissions []string
}
