package state

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"qstake/native/accrual"
	"qstake/native/sidepool"
	"qstake/storage"
)

// Manager persists ledger records over a key-value Database. Writes accumulate
// in an in-memory overlay until Commit, so a public operation that fails can
// Discard every partial write and leave the store untouched. It implements the
// state surfaces of the accrual engine, the side-pool distributor and the bank
// collaborators.
type Manager struct {
	mu    sync.RWMutex
	db    storage.Database
	dirty map[string][]byte
}

// NewManager constructs a manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string][]byte)}
}

// Commit flushes the overlay to the database.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range m.dirty {
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	m.dirty = make(map[string][]byte)
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = make(map[string][]byte)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if value, ok := m.dirty[string(key)]; ok {
		return value, true, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty[string(key)] = value
	return nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(key, encoded)
}

// Epoch returns the stored aggregate record for an epoch, zero-valued when the
// epoch has never been touched.
func (m *Manager) Epoch(index uint64) (*accrual.EpochRecord, error) {
	raw, ok, err := m.get(epochKey(index))
	if err != nil {
		return nil, err
	}
	rec := accrual.NewEpochRecord()
	if !ok {
		return rec, nil
	}
	if err := rlp.DecodeBytes(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutEpoch stores the aggregate record for an epoch.
func (m *Manager) PutEpoch(index uint64, rec *accrual.EpochRecord) error {
	return m.putRLP(epochKey(index), rec)
}

// AccountEpoch returns the account's record for an epoch, zero-valued when the
// pair has never been touched.
func (m *Manager) AccountEpoch(addr common.Address, index uint64) (*accrual.AccountEpochRecord, error) {
	raw, ok, err := m.get(accountEpochKey(addr, index))
	if err != nil {
		return nil, err
	}
	rec := accrual.NewAccountEpochRecord()
	if !ok {
		return rec, nil
	}
	if err := rlp.DecodeBytes(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutAccountEpoch stores the account's record for an epoch.
func (m *Manager) PutAccountEpoch(addr common.Address, index uint64, rec *accrual.AccountEpochRecord) error {
	return m.putRLP(accountEpochKey(addr, index), rec)
}

// GlobalCursor returns the last globally processed epoch index, zero before
// any settlement.
func (m *Manager) GlobalCursor() (uint64, error) {
	return m.getUint64(keyGlobalCursor)
}

// SetGlobalCursor stores the global settlement cursor.
func (m *Manager) SetGlobalCursor(index uint64) error {
	return m.putRLP(keyGlobalCursor, index)
}

// AccountCursor returns an account's private cursor and whether the account
// has ever interacted with the ledger.
func (m *Manager) AccountCursor(addr common.Address) (uint64, bool, error) {
	raw, ok, err := m.get(accountCursorKey(addr))
	if err != nil || !ok {
		return 0, false, err
	}
	var cursor uint64
	if err := rlp.DecodeBytes(raw, &cursor); err != nil {
		return 0, false, err
	}
	return cursor, true, nil
}

// SetAccountCursor stores an account's private cursor.
func (m *Manager) SetAccountCursor(addr common.Address, index uint64) error {
	return m.putRLP(accountCursorKey(addr), index)
}

// Distribution returns the side-pool slot, an empty settled one when no round
// has ever opened.
func (m *Manager) Distribution() (*sidepool.Distribution, error) {
	raw, ok, err := m.get(keyDistribution)
	if err != nil {
		return nil, err
	}
	dist := sidepool.NewDistribution()
	if !ok {
		return dist, nil
	}
	if err := rlp.DecodeBytes(raw, dist); err != nil {
		return nil, err
	}
	return dist, nil
}

// PutDistribution stores the side-pool slot.
func (m *Manager) PutDistribution(dist *sidepool.Distribution) error {
	return m.putRLP(keyDistribution, dist)
}

// LastClaimed returns the timestamp of the account's most recent side-pool
// claim, zero when it never claimed.
func (m *Manager) LastClaimed(addr common.Address) (uint64, error) {
	return m.getUint64(lastClaimedKey(addr))
}

// SetLastClaimed stores the account's most recent claim timestamp.
func (m *Manager) SetLastClaimed(addr common.Address, ts uint64) error {
	return m.putRLP(lastClaimedKey(addr), ts)
}

// Balance returns the account's asset balance.
func (m *Manager) Balance(addr common.Address) (*big.Int, error) {
	return m.getBig(balanceKey(addr))
}

// SetBalance stores the account's asset balance.
func (m *Manager) SetBalance(addr common.Address, amount *big.Int) error {
	return m.putRLP(balanceKey(addr), normalizeBig(amount))
}

// ShareBalance returns the account's share balance.
func (m *Manager) ShareBalance(addr common.Address) (*big.Int, error) {
	return m.getBig(shareBalanceKey(addr))
}

// SetShareBalance stores the account's share balance.
func (m *Manager) SetShareBalance(addr common.Address, amount *big.Int) error {
	return m.putRLP(shareBalanceKey(addr), normalizeBig(amount))
}

func (m *Manager) getUint64(key []byte) (uint64, error) {
	raw, ok, err := m.get(key)
	if err != nil || !ok {
		return 0, err
	}
	var value uint64
	if err := rlp.DecodeBytes(raw, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func (m *Manager) getBig(key []byte) (*big.Int, error) {
	raw, ok, err := m.get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(raw, value); err != nil {
		return nil, err
	}
	return value, nil
}

func normalizeBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
