package domain

import (
	"testing"
	"time"
)

func TestDisplayRating(t *testing.T) {
	cases := []struct {
		name string
		p    PlayerProfile
		want int
	}{
		{"no games", PlayerProfile{}, 0},
		{"all wins", PlayerProfile{Wins: 4}, 3000},
		{"all losses", PlayerProfile{Losses: 5}, 900},
		{"even split", PlayerProfile{Wins: 1, Losses: 1}, 1950},
		{"draws only", PlayerProfile{Draws: 3}, 900},
	}
	for _, tc := range cases {
		if got := tc.p.DisplayRating(); got != tc.want {
			t.Errorf("%s: rating = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestProfileApply(t *testing.T) {
	now := time.Now()
	var p PlayerProfile

	p.Apply(MatchWin, now)
	p.Apply(MatchLose, now)
	p.Apply(MatchDraw, now)

	if p.Wins != 1 || p.Losses != 1 || p.Draws != 1 {
		t.Fatalf("counters: %+v", p)
	}
	if p.GamesPlayed() != 3 {
		t.Fatalf("games = %d, want 3", p.GamesPlayed())
	}
	if p.CreatedAt.IsZero() || !p.LastMatchAt.Equal(now) {
		t.Fatalf("timestamps not set: %+v", p)
	}
}

func TestColorOther(t *testing.T) {
	if White.Other() != Black || Black.Other() != White {
		t.Fatalf("color inversion broken")
	}
}
