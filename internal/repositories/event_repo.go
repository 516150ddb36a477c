package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prudhvinik1/whatsnote/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostgresEventRepository struct {
	pool PgxPool
}

func NewPostgresEventRepository(pool PgxPool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

const insertEventSQL = `INSERT INTO events (id, account_id, item_id, type, emitted_at, data, received_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Append persists the event and assigns its server ingestion timestamp.
//
// For editNote events it performs log compaction: older edits of the same
// (account, item) pair are deleted in the same transaction, so at most one
// editNote row exists per note at any time. An edit that is older than the
// stored one (by emitted_at) is dropped entirely; the stored row already won.
// All other event types accumulate as plain inserts.
func (r *PostgresEventRepository) Append(ctx context.Context, event *models.Event) (err error) {
	event.ReceivedAt = time.Now().UnixMilli()

	if event.Type != models.EventEditNote {
		_, err = r.pool.Exec(ctx, insertEventSQL,
			event.ID,
			event.AccountID,
			event.ItemID,
			event.Type,
			event.EmittedAt,
			event.Data,
			event.ReceivedAt,
		)
		if isUniqueViolation(err) {
			// Resubmission after a lost acknowledgment; already stored.
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin compaction tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	// A later edit of the same note may already be stored; keep it.
	var newerExists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM events
	          WHERE account_id = $1 AND item_id = $2 AND type = 'editNote' AND emitted_at > $3)`,
		event.AccountID, event.ItemID, event.EmittedAt,
	).Scan(&newerExists)
	if err != nil {
		return fmt.Errorf("failed to check newer edit: %w", err)
	}
	if newerExists {
		return nil
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM events WHERE account_id = $1 AND item_id = $2 AND type = 'editNote'`,
		event.AccountID, event.ItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to compact note edits: %w", err)
	}

	_, err = tx.Exec(ctx, insertEventSQL,
		event.ID,
		event.AccountID,
		event.ItemID,
		event.Type,
		event.EmittedAt,
		event.Data,
		event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return err
}

// QueryChangesSince returns all events the account has received at or after
// the watermark, ordered by emitted_at. The filter runs on received_at (a
// server-monotonic cursor, safe across device clock skew) while the order
// follows emitted_at (the author's intended edit order).
func (r *PostgresEventRepository) QueryChangesSince(ctx context.Context, accountID uuid.UUID, watermark int64) ([]models.Event, error) {
	query := `SELECT id, item_id, type, emitted_at, data, received_at
	          FROM events
	          WHERE account_id = $1 AND received_at >= $2
	          ORDER BY emitted_at ASC`

	rows, err := r.pool.Query(ctx, query, accountID, watermark)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event := models.Event{AccountID: accountID}
		err := rows.Scan(
			&event.ID,
			&event.ItemID,
			&event.Type,
			&event.EmittedAt,
			&event.Data,
			&event.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func (r *PostgresEventRepository) DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM events WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}
