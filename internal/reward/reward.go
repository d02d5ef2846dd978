// Package reward содержит чистый расчёт награды за размещение дропа.
package reward

import (
	"time"

	"github.com/mmeshcher/geodrop-system/internal/model"
)

// Константы тарифа. Базовая ставка начисляется всегда, бонус за близость — при
// размещении рядом с якорем, серийный бонус — не чаще раза в календарные сутки.
const (
	BaseAmount         int64 = 10
	ProximityBonus     int64 = 5
	ElevatedBonus      int64 = 15
	CommonBonus        int64 = 5
	StreakBonus        int64 = 25
	ProximityThreshold       = 30.0 // метров
)

// surfaceTiers сопоставляет поверхность с бонусом категории. Неизвестная
// поверхность получает обычный тариф, а не ошибку.
var surfaceTiers = map[model.Surface]int64{
	model.SurfaceRoof:      ElevatedBonus,
	model.SurfaceBillboard: ElevatedBonus,
	model.SurfaceBridge:    ElevatedBonus,
	model.SurfaceWall:      CommonBonus,
	model.SurfaceStreet:    CommonBonus,
	model.SurfaceGround:    CommonBonus,
}

// Calculate вычисляет награду за размещение. Функция не имеет побочных
// эффектов: если серийный бонус начислен, она возвращает GrantStreak, а само
// продвижение даты выполняет вызывающая сторона при записи прогресса.
func Calculate(surface model.Surface, distanceToAnchor float64, today time.Time, lastStreakDate *time.Time) model.RewardResult {
	res := model.RewardResult{
		Breakdown: []model.RewardLine{
			{Label: "base", Amount: BaseAmount},
		},
	}

	if distanceToAnchor <= ProximityThreshold {
		res.Breakdown = append(res.Breakdown, model.RewardLine{Label: "proximity", Amount: ProximityBonus})
	}

	tier, ok := surfaceTiers[surface]
	if !ok {
		tier = CommonBonus
	}
	res.Breakdown = append(res.Breakdown, model.RewardLine{Label: "category", Amount: tier})

	if lastStreakDate == nil || !sameDay(today, *lastStreakDate) {
		res.Breakdown = append(res.Breakdown, model.RewardLine{Label: "streak", Amount: StreakBonus})
		res.GrantStreak = true
	}

	for _, line := range res.Breakdown {
		res.Total += line.Amount
	}

	return res
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// LevelFor возвращает уровень пользователя для суммарной награды.
func LevelFor(total int64) int {
	level := int(total/100) + 1
	if level > 99 {
		level = 99
	}
	return level
}

// RankFor возвращает звание пользователя для суммарной награды.
func RankFor(total int64) string {
	switch {
	case total >= 2000:
		return "legend"
	case total >= 500:
		return "artist"
	case total >= 100:
		return "tagger"
	default:
		return "rookie"
	}
}
