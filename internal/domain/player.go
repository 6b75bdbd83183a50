package domain

import (
	"math"
	"time"
)

// PlayerIdentity is the opaque identity a connection authenticates as.
// Immutable for the lifetime of a session.
type PlayerIdentity struct {
	ID   string
	Name string
}

// MatchStatus is the per-participant view of a finished match.
type MatchStatus string

const (
	MatchWin  MatchStatus = "win"
	MatchLose MatchStatus = "lose"
	MatchDraw MatchStatus = "draw"
)

// MatchRecord is one row of the append-only match history, keyed by player.
type MatchRecord struct {
	SessionID  string
	PlayerID   string
	PlayerName string
	OpponentID string
	Status     MatchStatus
	Method     string
	PlayedAt   time.Time
}

// PlayerProfile carries the win/loss/draw counters updated after each
// recorded match. Counters are only ever mutated by the result recorder.
type PlayerProfile struct {
	PlayerID    string
	Name        string
	Wins        int
	Losses      int
	Draws       int
	LastMatchAt time.Time
	UpdatedAt   time.Time
	CreatedAt   time.Time
}

func (p *PlayerProfile) GamesPlayed() int {
	if p == nil {
		return 0
	}
	return p.Wins + p.Losses + p.Draws
}

// DisplayRating derives the rating shown to clients from the counters.
// Players with no recorded games rate 0.
func (p *PlayerProfile) DisplayRating() int {
	games := p.GamesPlayed()
	if games == 0 {
		return 0
	}
	ratio := float64(p.Wins) / float64(games)
	return 900 + int(math.Round(2100*ratio))
}

// Apply folds one match status into the counters.
func (p *PlayerProfile) Apply(status MatchStatus, playedAt time.Time) {
	switch status {
	case MatchWin:
		p.Wins++
	case MatchLose:
		p.Losses++
	default:
		p.Draws++
	}
	p.LastMatchAt = playedAt
	p.UpdatedAt = playedAt
	if p.CreatedAt.IsZero() {
		p.CreatedAt = playedAt
	}
}
