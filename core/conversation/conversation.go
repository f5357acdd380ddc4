// Package conversation owns the durable record of one ongoing dialog with
// one Telegram chat. There is exactly one row per chat id; the row is
// created on first contact and rewritten on every processed update, but
// never deleted here.
package conversation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Identity is the last-observed identity of the human behind a chat.
type Identity struct {
	ChatID   int64
	UserID   int64
	Username string
}

// Conversation is one row of the conversations table.
//
// StateLocator is empty for a fresh conversation that has not completed a
// single state-machine step yet. StateParams carries the active state's
// serialized fields; its semantics belong to the state variant, not to the
// store, so it is kept as raw JSON here.
type Conversation struct {
	TgChatID     int64      `db:"tg_chat_id"`
	TgUserID     int64      `db:"tg_user_id"`
	TgUsername   string     `db:"tg_username"`
	StateLocator string     `db:"state_locator"`
	StateParams  ParamsDump `db:"state_params"`
	StartedAt    time.Time  `db:"started_at"`
}

// ParamsDump is the raw JSON payload of a state's parameters as persisted.
// It deliberately survives the read path even when the stored value is not
// an object: corruption is detected by restoration, not by the driver.
type ParamsDump []byte

// DumpParams serializes a parameter map. A nil or empty map dumps to nil
// (stored as SQL NULL).
func DumpParams(params map[string]any) (ParamsDump, error) {
	if len(params) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("dump state params: %w", err)
	}
	return ParamsDump(data), nil
}

// Object decodes the dump into a parameter map. An empty dump yields an
// empty map. A dump holding anything but a JSON object is an error; callers
// treat that as a corruption signal.
func (d ParamsDump) Object() (map[string]any, error) {
	if len(d) == 0 {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(d, &params); err != nil {
		return nil, fmt.Errorf("state params are not a keyed structure: %w", err)
	}
	if params == nil {
		return map[string]any{}, nil
	}
	return params, nil
}

// IsEmpty reports whether the dump holds no payload.
func (d ParamsDump) IsEmpty() bool {
	return len(d) == 0
}

// Value implements driver.Valuer.
func (d ParamsDump) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return []byte(d), nil
}

// Scan implements sql.Scanner.
func (d *ParamsDump) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		buf := make([]byte, len(v))
		copy(buf, v)
		*d = buf
		return nil
	case string:
		*d = ParamsDump(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ParamsDump", src)
	}
}
