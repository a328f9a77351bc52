package memory

import (
	"context" // request-scoped cancellation
	"fmt"
	"sort"
	"sync" // concurrency primitives

	"github.com/sheikh-saqib/shadow-ledger/internal/interfaces"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// It is safe for concurrent use and serializes units of work per account.
type MemoryLedgerStore struct {
	mu      sync.RWMutex         // protects entries and byEvent
	entries []models.LedgerEntry // append-only log of every entry
	byEvent map[string]struct{}  // event id index, the uniqueness backstop

	locksMu sync.Mutex             // protects locks
	locks   map[string]*sync.Mutex // one mutex per account
}

// NewMemoryLedgerStore creates and returns an empty MemoryLedgerStore
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries: make([]models.LedgerEntry, 0),
		byEvent: make(map[string]struct{}),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (m *MemoryLedgerStore) accountLock(accountID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if _, exists := m.locks[accountID]; !exists {
		m.locks[accountID] = &sync.Mutex{}
	}
	return m.locks[accountID]
}

// WithinAccount holds the account's mutex while fn runs. Inserts are staged
// and only become visible once fn returns nil.
func (m *MemoryLedgerStore) WithinAccount(ctx context.Context, accountID string, fn func(tx interfaces.AccountTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{store: m, accountID: accountID}
	if err := fn(tx); err != nil {
		return err // staged entries are dropped with tx
	}
	return m.commit(tx.staged)
}

func (m *MemoryLedgerStore) commit(staged []models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// entries for other accounts may have claimed the same id meanwhile
	for _, e := range staged {
		if _, exists := m.byEvent[e.EventID]; exists {
			return fmt.Errorf("%w: %s", interfaces.ErrDuplicateEvent, e.EventID)
		}
	}
	for _, e := range staged {
		m.byEvent[e.EventID] = struct{}{}
		m.entries = append(m.entries, e)
	}
	return nil
}

func (m *MemoryLedgerStore) EventExists(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.byEvent[eventID]
	return exists, nil
}

func (m *MemoryLedgerStore) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(accountID), nil
}

func (m *MemoryLedgerStore) balanceLocked(accountID string) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range m.entries {
		if e.AccountID == accountID {
			balance = balance.Add(e.SignedAmount())
		}
	}
	return balance
}

func (m *MemoryLedgerStore) LatestEntry(ctx context.Context, accountID string) (*models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.LedgerEntry
	for i := range m.entries {
		e := m.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if latest == nil || latest.Before(e) {
			latest = &e
		}
	}
	return latest, nil
}

// EntriesByAccount returns a copy so callers can't modify internal state.
func (m *MemoryLedgerStore) EntriesByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var result []models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			result = append(result, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// memoryTx is the AccountTx handed to WithinAccount callbacks.
type memoryTx struct {
	store     *MemoryLedgerStore
	accountID string
	staged    []models.LedgerEntry
}

func (t *memoryTx) EventExists(ctx context.Context, eventID string) (bool, error) {
	for _, e := range t.staged {
		if e.EventID == eventID {
			return true, nil
		}
	}
	return t.store.EventExists(ctx, eventID)
}

func (t *memoryTx) Balance(ctx context.Context) (decimal.Decimal, error) {
	balance, err := t.store.Balance(ctx, t.accountID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, e := range t.staged {
		balance = balance.Add(e.SignedAmount())
	}
	return balance, nil
}

func (t *memoryTx) Insert(ctx context.Context, entry models.LedgerEntry) error {
	if entry.AccountID != t.accountID {
		return fmt.Errorf("entry for account %s inserted in unit of work for %s", entry.AccountID, t.accountID)
	}
	exists, err := t.EventExists(ctx, entry.EventID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", interfaces.ErrDuplicateEvent, entry.EventID)
	}
	t.staged = append(t.staged, entry)
	return nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
