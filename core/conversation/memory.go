package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m3rciful/dialogbot/core/locator"
)

// MemoryStore is an in-memory Store for tests and local development. It
// mirrors the Postgres locking contract with one mutex per chat held for
// the transaction's duration, and commits working copies only when the
// transaction function succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[int64]*Conversation
	locks map[int64]*sync.Mutex

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:  make(map[int64]*Conversation),
		locks: make(map[int64]*sync.Mutex),
	}
}

// Within runs fn with transactional semantics: chat locks are held until fn
// returns and working copies are discarded when fn fails.
func (s *MemoryStore) Within(_ context.Context, fn func(tx Tx) error) error {
	tx := &memTx{store: s, pending: make(map[int64]*Conversation)}
	defer tx.unlockAll()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Snapshot returns a copy of the stored row, if any. Test helper.
func (s *MemoryStore) Snapshot(chatID int64) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[chatID]
	if !ok {
		return nil, false
	}
	return copyRow(row), true
}

// Seed stores a row directly, bypassing transactions. Test helper.
func (s *MemoryStore) Seed(row Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.TgChatID] = copyRow(&row)
}

func (s *MemoryStore) chatLock(chatID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[chatID] = lock
	}
	return lock
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type memTx struct {
	store   *MemoryStore
	locked  []*sync.Mutex
	held    map[int64]bool
	pending map[int64]*Conversation
}

// GetOrCreateLocked blocks on the per-chat mutex until any concurrent
// transaction for the same chat finishes, then returns a working copy.
func (t *memTx) GetOrCreateLocked(_ context.Context, id Identity) (*Conversation, bool, error) {
	if t.held == nil {
		t.held = make(map[int64]bool)
	}
	if !t.held[id.ChatID] {
		lock := t.store.chatLock(id.ChatID)
		lock.Lock()
		t.locked = append(t.locked, lock)
		t.held[id.ChatID] = true
	}

	t.store.mu.Lock()
	row, ok := t.store.rows[id.ChatID]
	t.store.mu.Unlock()

	if ok {
		work := copyRow(row)
		t.pending[id.ChatID] = work
		return work, false, nil
	}

	work := &Conversation{
		TgChatID:   id.ChatID,
		TgUserID:   id.UserID,
		TgUsername: id.Username,
		StartedAt:  t.store.now(),
	}
	t.pending[id.ChatID] = work
	return work, true, nil
}

// UpdateIdentity rewrites identity fields on the working copy.
func (t *memTx) UpdateIdentity(_ context.Context, chatID, userID int64, username string) error {
	row, ok := t.pending[chatID]
	if !ok {
		return errNotLocked(chatID)
	}
	row.TgUserID = userID
	row.TgUsername = username
	return nil
}

// UpdateState rewrites state fields on the working copy after validating
// the locator grammar, mirroring the Postgres store.
func (t *memTx) UpdateState(_ context.Context, chatID int64, stateLocator string, params ParamsDump) error {
	row, ok := t.pending[chatID]
	if !ok {
		return errNotLocked(chatID)
	}
	if err := locator.Validate(stateLocator); err != nil {
		return err
	}
	row.StateLocator = stateLocator
	row.StateParams = params
	return nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for chatID, row := range t.pending {
		t.store.rows[chatID] = copyRow(row)
	}
}

func (t *memTx) unlockAll() {
	for _, lock := range t.locked {
		lock.Unlock()
	}
	t.locked = nil
}

func copyRow(row *Conversation) *Conversation {
	clone := *row
	if row.StateParams != nil {
		clone.StateParams = append(ParamsDump(nil), row.StateParams...)
	}
	return &clone
}

func errNotLocked(chatID int64) error {
	return fmt.Errorf("conversation: row not fetched in this transaction: tg_chat_id=%d", chatID)
}
