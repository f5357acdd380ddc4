package conversation

import "context"

// Tx exposes row operations inside one durable transaction. The row
// returned by GetOrCreateLocked stays exclusively locked until the
// surrounding Within call returns.
type Tx interface {
	// GetOrCreateLocked fetches the row for id.ChatID with an exclusive
	// row lock, creating it first when the chat was never seen. The bool
	// reports creation.
	GetOrCreateLocked(ctx context.Context, id Identity) (*Conversation, bool, error)

	// UpdateIdentity rewrites the identity fields of an existing row.
	UpdateIdentity(ctx context.Context, chatID, userID int64, username string) error

	// UpdateState rewrites the persisted state pointer and params of an
	// existing row. The locator must satisfy the locator grammar.
	UpdateState(ctx context.Context, chatID int64, stateLocator string, params ParamsDump) error
}

// Store runs work inside a durable transaction. If fn returns an error the
// transaction is rolled back and nothing is persisted; locks taken by the
// transaction are released on every exit path.
type Store interface {
	Within(ctx context.Context, fn func(tx Tx) error) error
}
