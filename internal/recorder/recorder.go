package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/obslog"
)

// Result is the session-level verdict being recorded.
type Result string

const (
	WhiteWins Result = "white"
	BlackWins Result = "black"
	Draw      Result = "draw"
)

// Outcome is the single terminal fact of one session, recorded exactly
// once. The recorder fans it out into one match row per participant.
type Outcome struct {
	SessionID string
	White     domain.PlayerIdentity
	Black     domain.PlayerIdentity
	Result    Result
	Method    string
	EndedAt   time.Time
}

// Recorder persists session outcomes. Record is fire-and-forget from
// the session's point of view: failures must never resurrect or block
// the session.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// New wraps a store with bounded retries and backoff. A persistent
// failure is logged and dropped, never surfaced to the players.
func New(store Store, retries int, backoff time.Duration) Recorder {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return &retrying{store: store, retries: retries, backoff: backoff}
}

type retrying struct {
	store   Store
	retries int
	backoff time.Duration
}

func (r *retrying) Record(ctx context.Context, o Outcome) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff * time.Duration(attempt)):
			}
		}
		if err = r.saveOnce(ctx, o); err == nil {
			obslog.L().Info("result_recorded",
				zap.String("session_id", o.SessionID),
				zap.String("result", string(o.Result)),
				zap.String("method", o.Method),
			)
			return nil
		}
	}
	obslog.L().Error("result_record_failed",
		zap.String("session_id", o.SessionID),
		zap.String("result", string(o.Result)),
		zap.Error(err),
	)
	return err
}

func (r *retrying) saveOnce(ctx context.Context, o Outcome) error {
	for _, rec := range split(o) {
		inserted, err := r.store.InsertMatch(ctx, rec)
		if err != nil {
			return err
		}
		// A replayed record means this participant's counters were
		// already folded in; skip them.
		if !inserted {
			continue
		}
		if err := r.applyProfile(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *retrying) applyProfile(ctx context.Context, rec *domain.MatchRecord) error {
	profile, err := r.store.GetProfile(ctx, rec.PlayerID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &domain.PlayerProfile{PlayerID: rec.PlayerID, Name: rec.PlayerName}
	}
	if rec.PlayerName != "" {
		profile.Name = rec.PlayerName
	}
	profile.Apply(rec.Status, rec.PlayedAt)
	return r.store.UpsertProfile(ctx, profile)
}

// split translates the session outcome into the two per-participant
// records.
func split(o Outcome) []*domain.MatchRecord {
	whiteStatus, blackStatus := domain.MatchDraw, domain.MatchDraw
	switch o.Result {
	case WhiteWins:
		whiteStatus, blackStatus = domain.MatchWin, domain.MatchLose
	case BlackWins:
		whiteStatus, blackStatus = domain.MatchLose, domain.MatchWin
	}
	return []*domain.MatchRecord{
		{
			SessionID:  o.SessionID,
			PlayerID:   o.White.ID,
			PlayerName: o.White.Name,
			OpponentID: o.Black.ID,
			Status:     whiteStatus,
			Method:     o.Method,
			PlayedAt:   o.EndedAt,
		},
		{
			SessionID:  o.SessionID,
			PlayerID:   o.Black.ID,
			PlayerName: o.Black.Name,
			OpponentID: o.White.ID,
			Status:     blackStatus,
			Method:     o.Method,
			PlayedAt:   o.EndedAt,
		},
	}
}
