package reward

import (
	"testing"
	"time"

	"github.com/mmeshcher/geodrop-system/internal/model"
)

func TestCalculate_FirstPlacementOfDayElevated(t *testing.T) {
	today := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	res := Calculate(model.SurfaceRoof, 30, today, nil)

	// база 10 + близость 5 + категория 15 + серия 25
	if res.Total != 55 {
		t.Fatalf("total = %d, want 55", res.Total)
	}
	if !res.GrantStreak {
		t.Fatalf("expected streak grant on first placement of the day")
	}
	if len(res.Breakdown) != 4 {
		t.Fatalf("breakdown lines = %d, want 4", len(res.Breakdown))
	}
}

func TestCalculate_SecondPlacementSameDayCommon(t *testing.T) {
	today := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)
	last := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	res := Calculate(model.SurfaceStreet, 12, today, &last)

	// база 10 + близость 5 + категория 5, серия уже выдана сегодня
	if res.Total != 20 {
		t.Fatalf("total = %d, want 20", res.Total)
	}
	if res.GrantStreak {
		t.Fatalf("streak must not be granted twice per day")
	}
}

func TestCalculate_NextDayGrantsStreakAgain(t *testing.T) {
	last := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	today := time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)

	res := Calculate(model.SurfaceWall, 100, today, &last)

	if !res.GrantStreak {
		t.Fatalf("expected streak grant on a new calendar day")
	}
	// база 10 + категория 5 + серия 25, без бонуса за близость
	if res.Total != 40 {
		t.Fatalf("total = %d, want 40", res.Total)
	}
}

func TestCalculate_UnknownSurfaceFallsBackToCommon(t *testing.T) {
	today := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := today

	res := Calculate(model.Surface("fence"), 100, today, &last)

	if res.Total != BaseAmount+CommonBonus {
		t.Fatalf("total = %d, want %d", res.Total, BaseAmount+CommonBonus)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		total int64
		want  int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{950, 10},
		{100000, 99},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.total); got != tt.want {
			t.Fatalf("LevelFor(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestRankFor(t *testing.T) {
	tests := []struct {
		total int64
		want  string
	}{
		{0, "rookie"},
		{150, "tagger"},
		{600, "artist"},
		{2500, "legend"},
	}

	for _, tt := range tests {
		if got := RankFor(tt.total); got != tt.want {
			t.Fatalf("RankFor(%d) = %q, want %q", tt.total, got, tt.want)
		}
	}
}
