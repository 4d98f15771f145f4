package persist

import (
	"context"
	"encoding/json"
	"fmt"

	uuid "github.com/satori/go.uuid"

	"github.com/playtable/engine/game"
)

// MatchRow is the stored identity of one match.
type MatchRow struct {
	ID      uuid.UUID
	Game    string
	Seed    string
	Players []string
	Phase   string
}

// MatchRepo stores match identities and full-state snapshots.
type MatchRepo struct {
	db *DB
}

func NewMatchRepo(db *DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// Create registers a new match and returns its id.
func (r *MatchRepo) Create(ctx context.Context, gameName, seed string, players []string) (uuid.UUID, error) {
	id := uuid.NewV4()
	playersJSON, err := json.Marshal(players)
	if err != nil {
		return uuid.Nil, fmt.Errorf("match create: %w", err)
	}
	if _, err := r.db.Pool.Exec(ctx,
		`INSERT INTO matches (id, game, seed, players) VALUES ($1, $2, $3, $4)`,
		id, gameName, seed, playersJSON,
	); err != nil {
		return uuid.Nil, fmt.Errorf("match create: %w", err)
	}
	return id, nil
}

// SaveState overwrites the match's full-state snapshot. Called after each
// completed action, so a crashed server resumes from the latest state.
func (r *MatchRepo) SaveState(ctx context.Context, id uuid.UUID, doc *game.Document) error {
	state, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("match save: %w", err)
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE matches SET state = $2, phase = $3, updated_at = now() WHERE id = $1`,
		id, state, doc.Phase,
	)
	if err != nil {
		return fmt.Errorf("match save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match save: match %s not found", id)
	}
	return nil
}

// LoadState fetches the latest snapshot, nil when none was saved yet.
func (r *MatchRepo) LoadState(ctx context.Context, id uuid.UUID) (*game.Document, error) {
	var state []byte
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT state FROM matches WHERE id = $1`, id,
	).Scan(&state); err != nil {
		return nil, fmt.Errorf("match load %s: %w", id, err)
	}
	if len(state) == 0 {
		return nil, nil
	}
	var doc game.Document
	if err := json.Unmarshal(state, &doc); err != nil {
		return nil, fmt.Errorf("match load %s: %w", id, err)
	}
	return &doc, nil
}

// ListOpen returns every match that has not finished.
func (r *MatchRepo) ListOpen(ctx context.Context) ([]MatchRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, game, seed, players, phase FROM matches
		 WHERE phase != 'finished' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("match list: %w", err)
	}
	defer rows.Close()

	var out []MatchRow
	for rows.Next() {
		var m MatchRow
		var playersJSON []byte
		if err := rows.Scan(&m.ID, &m.Game, &m.Seed, &playersJSON, &m.Phase); err != nil {
			return nil, fmt.Errorf("match list: %w", err)
		}
		if err := json.Unmarshal(playersJSON, &m.Players); err != nil {
			return nil, fmt.Errorf("match list: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
