package service

import "github.com/mmeshcher/geodrop-system/internal/model"

// missionRule описывает миссию: пороговое условие и награду за завершение.
type missionRule struct {
	ID     string
	Reward int64
	Met    func(p *model.Progression) bool
}

// missionRules — статическая таблица порогов. Условия проверяются по уже
// обновлённым счётчикам прогресса.
var missionRules = []missionRule{
	{
		ID:     "first-steps",
		Reward: 50,
		Met:    func(p *model.Progression) bool { return p.TotalDrops >= 3 },
	},
	{
		ID:     "collector",
		Reward: 150,
		Met:    func(p *model.Progression) bool { return p.TotalDrops >= 10 },
	},
	{
		ID:     "veteran",
		Reward: 500,
		Met:    func(p *model.Progression) bool { return p.TotalDrops >= 50 },
	},
	{
		ID:     "high-roller",
		Reward: 200,
		Met:    func(p *model.Progression) bool { return p.RewardTotal >= 500 },
	},
}

// StartMissionIDs возвращает набор миссий, активных у нового пользователя.
func StartMissionIDs() []string {
	ids := make([]string, 0, len(missionRules))
	for _, r := range missionRules {
		ids = append(ids, r.ID)
	}
	return ids
}

// completeMissions переводит выполненные миссии из активных в завершённые и
// начисляет их награды. Перенос между множествами идемпотентен: миссия,
// уже находящаяся в завершённых, второй раз не переносится и не награждается.
func completeMissions(p *model.Progression) []string {
	var completed []string

	for _, rule := range missionRules {
		if !p.HasActiveMission(rule.ID) || p.HasCompletedMission(rule.ID) {
			continue
		}
		if !rule.Met(p) {
			continue
		}

		active := make([]string, 0, len(p.ActiveMissions))
		for _, id := range p.ActiveMissions {
			if id != rule.ID {
				active = append(active, id)
			}
		}
		p.ActiveMissions = active

		done := make([]string, 0, len(p.CompletedMissions)+1)
		done = append(done, p.CompletedMissions...)
		p.CompletedMissions = append(done, rule.ID)

		p.RewardTotal += rule.Reward
		completed = append(completed, rule.ID)
	}

	return completed
}
