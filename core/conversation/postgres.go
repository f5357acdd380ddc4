package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/dialogbot/core/locator"
	"github.com/m3rciful/dialogbot/core/logger"
	"log/slog"
)

// PostgresStore persists conversations in the conversations table.
// Per-chat serialization relies on SELECT ... FOR UPDATE: two transactions
// touching the same chat queue up on the row lock, while different chats
// proceed in parallel.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Within runs fn inside one database transaction.
func (s *PostgresStore) Within(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error(ctx, "db", "tx.rollback",
				slog.String("err", rbErr.Error()),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

const selectForUpdate = `
SELECT tg_chat_id, tg_user_id, tg_username, state_locator, state_params, started_at
FROM conversations
WHERE tg_chat_id = $1
FOR UPDATE`

// GetOrCreateLocked inserts the row when missing, then locks and returns it.
func (t *pgTx) GetOrCreateLocked(ctx context.Context, id Identity) (*Conversation, bool, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO conversations (tg_chat_id, tg_user_id, tg_username, started_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tg_chat_id) DO NOTHING`,
		id.ChatID, id.UserID, id.Username, time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert conversation tg_chat_id=%d: %w", id.ChatID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	var conv Conversation
	if err := t.tx.GetContext(ctx, &conv, selectForUpdate, id.ChatID); err != nil {
		return nil, false, fmt.Errorf("lock conversation tg_chat_id=%d: %w", id.ChatID, err)
	}
	return &conv, inserted > 0, nil
}

// UpdateIdentity rewrites identity fields for the row.
func (t *pgTx) UpdateIdentity(ctx context.Context, chatID, userID int64, username string) error {
	_, err := t.tx.ExecContext(ctx, `
UPDATE conversations SET tg_user_id = $2, tg_username = $3 WHERE tg_chat_id = $1`,
		chatID, userID, username,
	)
	if err != nil {
		return fmt.Errorf("update identity tg_chat_id=%d: %w", chatID, err)
	}
	return nil
}

// UpdateState validates the locator grammar and rewrites the state fields.
func (t *pgTx) UpdateState(ctx context.Context, chatID int64, stateLocator string, params ParamsDump) error {
	if err := locator.Validate(stateLocator); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
UPDATE conversations SET state_locator = $2, state_params = $3 WHERE tg_chat_id = $1`,
		chatID, stateLocator, params,
	)
	if err != nil {
		return fmt.Errorf("update state tg_chat_id=%d: %w", chatID, err)
	}
	return nil
}
