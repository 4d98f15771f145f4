package persist

import (
	"context"
	"encoding/json"
	"fmt"

	uuid "github.com/satori/go.uuid"

	"github.com/playtable/engine/command"
)

// JournalRepo appends a match's command history. The journal plus the seed
// reproduces the exact tree via replay, independent of snapshots.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append atomically writes a batch of commands in a single transaction,
// numbered from the given sequence. Returns the next free sequence. On
// error nothing is written and the original sequence comes back unchanged,
// so the caller retries the whole batch from the same number.
func (r *JournalRepo) Append(ctx context.Context, matchID uuid.UUID, seq int64, cmds []command.Command) (int64, error) {
	if len(cmds) == 0 {
		return seq, nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return seq, fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	next := seq
	for _, cmd := range cmds {
		raw, err := json.Marshal(cmd)
		if err != nil {
			return seq, fmt.Errorf("journal encode: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO match_journal (match_id, seq, command) VALUES ($1, $2, $3)`,
			matchID, next, raw,
		); err != nil {
			return seq, fmt.Errorf("journal insert: %w", err)
		}
		next++
	}
	if err := tx.Commit(ctx); err != nil {
		return seq, fmt.Errorf("journal commit: %w", err)
	}
	return next, nil
}

// Load returns the full recorded history in sequence order.
func (r *JournalRepo) Load(ctx context.Context, matchID uuid.UUID) ([]command.Command, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT command FROM match_journal WHERE match_id = $1 ORDER BY seq`, matchID)
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	defer rows.Close()

	var out []command.Command
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("journal load: %w", err)
		}
		var cmd command.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("journal decode: %w", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}
