package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/chess-arena/internal/domain"
)

// Store is the persistence collaborator behind the recorder.
// InsertMatch reports whether the row was actually new; a duplicate is
// not an error, it just must not be counted twice.
type Store interface {
	InsertMatch(ctx context.Context, rec *domain.MatchRecord) (bool, error)
	GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.PlayerProfile) error
	Close() error
}

type pgStore struct {
	db *sql.DB
}

// NewPostgresStore opens the match-history database.
func NewPostgresStore(databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &pgStore{db: db}, nil
}

func (s *pgStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertMatch appends one participant's view of a finished match. The
// (session_id, player_id) conflict clause makes retries idempotent.
func (s *pgStore) InsertMatch(ctx context.Context, rec *domain.MatchRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("nil match record")
	}
	const q = `INSERT INTO match_results (
	    session_id, player_id, player_name, opponent_id, status, method, played_at
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7)
	  ON CONFLICT (session_id, player_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, q,
		rec.SessionID, rec.PlayerID, rec.PlayerName, rec.OpponentID,
		string(rec.Status), rec.Method, rec.PlayedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert match result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert match result: %w", err)
	}
	return n > 0, nil
}

func (s *pgStore) GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	const q = `SELECT
	    player_id, name, wins, losses, draws, last_match_at, updated_at, created_at
	  FROM player_profiles
	  WHERE player_id = $1
	  LIMIT 1`

	var p domain.PlayerProfile
	err := s.db.QueryRowContext(ctx, q, playerID).Scan(
		&p.PlayerID, &p.Name, &p.Wins, &p.Losses, &p.Draws,
		&p.LastMatchAt, &p.UpdatedAt, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player profile: %w", err)
	}
	return &p, nil
}

func (s *pgStore) UpsertProfile(ctx context.Context, profile *domain.PlayerProfile) error {
	if profile == nil {
		return fmt.Errorf("nil player profile")
	}
	const q = `INSERT INTO player_profiles (
	    player_id, name, wins, losses, draws, last_match_at, updated_at, created_at
	  ) VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
	  ON CONFLICT (player_id) DO UPDATE SET
	    name = EXCLUDED.name,
	    wins = EXCLUDED.wins,
	    losses = EXCLUDED.losses,
	    draws = EXCLUDED.draws,
	    last_match_at = EXCLUDED.last_match_at,
	    updated_at = NOW()`
	_, err := s.db.ExecContext(ctx, q,
		profile.PlayerID, profile.Name,
		profile.Wins, profile.Losses, profile.Draws,
		profile.LastMatchAt,
	)
	if err != nil {
		return fmt.Errorf("upsert player profile: %w", err)
	}
	return nil
}
