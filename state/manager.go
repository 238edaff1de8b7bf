package state

import (
	"bytes"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nftmarket/native/fees"
	"nftmarket/native/market"
	"nftmarket/storage"
	"nftmarket/storage/trie"
)

// Manager persists the long-lived marketplace state: listing records, the
// per-(token, account) balance ledger, the protocol fee configuration, the
// payment-token whitelist, role assignments, and module pause flags. All
// records are RLP-encoded under keccak-prefixed keys in the state trie, so
// the trie root commits to the entire marketplace and must come out unchanged
// across an engine upgrade.
type Manager struct {
	trie *trie.Trie
}

var (
	balancePrefix   = []byte("balance:")
	rolePrefix      = []byte("role:")
	pausePrefix     = []byte("pause:")
	listingPrefix   = []byte("listing:")
	tokenPrefix     = []byte("payment-token:")
	tokenListKey    = ethcrypto.Keccak256([]byte("payment-token-list"))
	listingIndexKey = ethcrypto.Keccak256([]byte("listing-index"))
	feeConfigKey    = ethcrypto.Keccak256([]byte("fee-config"))

	// stateRootKey lives in the raw backing store, outside the trie, so a
	// restarted process can find the last committed root.
	stateRootKey = []byte("market-state-root")
)

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// OpenManager restores a manager from the backing store's last committed
// root, or starts from the empty trie when none was committed yet.
func OpenManager(db storage.Database) (*Manager, error) {
	root, err := db.Get(stateRootKey)
	if err != nil {
		root = nil
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, err
	}
	return &Manager{trie: tr}, nil
}

// Commit records the current trie root in the backing store so the state can
// be reopened after a restart.
func (m *Manager) Commit() error {
	return m.trie.Store().Put(stateRootKey, m.trie.Root())
}

// Root returns the trie root hash committing to the full marketplace state.
func (m *Manager) Root() []byte {
	return m.trie.Root()
}

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

// --- payment-token whitelist ---

// AddPaymentToken adds a settlement token to the whitelist.
func (m *Manager) AddPaymentToken(token [20]byte) error {
	if token == ([20]byte{}) {
		return fmt.Errorf("market state: zero payment token address")
	}
	if m.IsPaymentToken(token) {
		return fmt.Errorf("market state: payment token already whitelisted")
	}
	list, err := m.PaymentTokens()
	if err != nil {
		return err
	}
	list = append(list, token)
	if err := m.writeTokenList(list); err != nil {
		return err
	}
	return m.trie.Update(prefixedKey(tokenPrefix, token[:]), []byte{1})
}

// RemovePaymentToken removes a settlement token from the whitelist.
func (m *Manager) RemovePaymentToken(token [20]byte) error {
	if !m.IsPaymentToken(token) {
		return fmt.Errorf("market state: payment token not whitelisted")
	}
	list, err := m.PaymentTokens()
	if err != nil {
		return err
	}
	filtered := make([][20]byte, 0, len(list))
	for _, entry := range list {
		if entry != token {
			filtered = append(filtered, entry)
		}
	}
	if err := m.writeTokenList(filtered); err != nil {
		return err
	}
	return m.trie.Delete(prefixedKey(tokenPrefix, token[:]))
}

// IsPaymentToken reports whether the token is whitelisted for settlement.
func (m *Manager) IsPaymentToken(token [20]byte) bool {
	data, err := m.trie.Get(prefixedKey(tokenPrefix, token[:]))
	if err != nil {
		return false
	}
	return len(data) > 0
}

// PaymentTokens returns the whitelist in registration order.
func (m *Manager) PaymentTokens() ([][20]byte, error) {
	data, err := m.trie.Get(tokenListKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][20]byte{}, nil
	}
	var list [][20]byte
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) writeTokenList(list [][20]byte) error {
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.trie.Update(tokenListKey, encoded)
}

// --- fee configuration ---

type feeConfigRecord struct {
	Numerator   *big.Int
	Denominator *big.Int
	Wallet      [20]byte
}

// SetFeeConfig persists the protocol fee configuration.
func (m *Manager) SetFeeConfig(cfg fees.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(&feeConfigRecord{
		Numerator:   cfg.Numerator,
		Denominator: cfg.Denominator,
		Wallet:      cfg.Wallet,
	})
	if err != nil {
		return err
	}
	return m.trie.Update(feeConfigKey, encoded)
}

// FeeConfig loads the protocol fee configuration.
func (m *Manager) FeeConfig() (fees.Config, error) {
	data, err := m.trie.Get(feeConfigKey)
	if err != nil {
		return fees.Config{}, err
	}
	if len(data) == 0 {
		return fees.Config{}, fmt.Errorf("market state: fee configuration not initialised")
	}
	var record feeConfigRecord
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return fees.Config{}, err
	}
	return fees.Config{
		Numerator:   record.Numerator,
		Denominator: record.Denominator,
		Wallet:      record.Wallet,
	}, nil
}

// --- balance ledger ---

// BalanceSet stores the credited balance for (token, account).
func (m *Manager) BalanceSet(token, account [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("market state: balance must be non-negative")
	}
	key := prefixedKey(balancePrefix, token[:], account[:])
	if amount.Sign() == 0 {
		return m.trie.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// BalanceAdd increments the credited balance for (token, account).
func (m *Manager) BalanceAdd(token, account [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("market state: credit must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	current, err := m.Balance(token, account)
	if err != nil {
		return err
	}
	return m.BalanceSet(token, account, new(big.Int).Add(current, amount))
}

// Balance returns the credited balance for (token, account), zero when none.
func (m *Manager) Balance(token, account [20]byte) (*big.Int, error) {
	data, err := m.trie.Get(prefixedKey(balancePrefix, token[:], account[:]))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// --- roles ---

// SetRole associates an address with the specified role. Duplicate
// assignments are no-ops.
func (m *Manager) SetRole(role string, addr [20]byte) error {
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == addr {
			return nil
		}
	}
	members = append(members, addr)
	return m.writeRoleMembers(role, members)
}

// UnsetRole removes an address from the specified role.
func (m *Manager) UnsetRole(role string, addr [20]byte) error {
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	filtered := make([][20]byte, 0, len(members))
	for _, member := range members {
		if member != addr {
			filtered = append(filtered, member)
		}
	}
	return m.writeRoleMembers(role, filtered)
}

// RoleMembers returns all addresses associated with the role.
func (m *Manager) RoleMembers(role string) ([][20]byte, error) {
	data, err := m.trie.Get(prefixedKey(rolePrefix, []byte(role)))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][20]byte{}, nil
	}
	var members [][20]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// HasRole reports whether the address is associated with the role.
func (m *Manager) HasRole(role string, addr [20]byte) bool {
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if member == addr {
			return true
		}
	}
	return false
}

func (m *Manager) writeRoleMembers(role string, members [][20]byte) error {
	key := prefixedKey(rolePrefix, []byte(role))
	if len(members) == 0 {
		return m.trie.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// --- pause flags ---

// SetPaused toggles the administrative pause flag for a module.
func (m *Manager) SetPaused(module string, paused bool) error {
	key := prefixedKey(pausePrefix, []byte(module))
	if !paused {
		return m.trie.Delete(key)
	}
	return m.trie.Update(key, []byte{1})
}

// IsPaused implements nativecommon.PauseView.
func (m *Manager) IsPaused(module string) bool {
	data, err := m.trie.Get(prefixedKey(pausePrefix, []byte(module)))
	if err != nil {
		return false
	}
	return len(data) > 0
}

// --- listing persistence (market.Store) ---

type listingRecord struct {
	ListPointer     uint64
	PairPointer     uint64
	Seller          [20]byte
	AssetContract   [20]byte
	AssetID         *big.Int
	UnitPrice       *big.Int
	Amount          *big.Int
	PaymentToken    [20]byte
	Kind            uint8
	RoyaltyReceiver [20]byte
	UnitRoyalty     *big.Int
	ReservedUntil   uint64
	ReservedFor     [20]byte
	CreatedAt       uint64
}

// ListingPut stores a listing record and tracks its id in the listing index.
func (m *Manager) ListingPut(l *market.Listing) error {
	sanitized, err := market.SanitizeListing(l)
	if err != nil {
		return err
	}
	record := listingRecord{
		ListPointer:     uint64(sanitized.ListPointer),
		PairPointer:     uint64(sanitized.PairPointer),
		Seller:          sanitized.Seller,
		AssetContract:   sanitized.AssetContract,
		AssetID:         sanitized.AssetID,
		UnitPrice:       sanitized.UnitPrice,
		Amount:          sanitized.Amount,
		PaymentToken:    sanitized.PaymentToken,
		Kind:            uint8(sanitized.Kind),
		RoyaltyReceiver: sanitized.RoyaltyReceiver,
		UnitRoyalty:     sanitized.UnitRoyalty,
		ReservedUntil:   uint64(sanitized.ReservedUntil),
		ReservedFor:     sanitized.ReservedFor,
		CreatedAt:       uint64(sanitized.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return err
	}
	id := sanitized.ID()
	if err := m.trie.Update(prefixedKey(listingPrefix, id[:]), encoded); err != nil {
		return err
	}
	return m.indexListing(id, true)
}

// ListingDelete removes a listing record and drops it from the index.
func (m *Manager) ListingDelete(id [32]byte) error {
	if err := m.trie.Delete(prefixedKey(listingPrefix, id[:])); err != nil {
		return err
	}
	return m.indexListing(id, false)
}

// Listings loads every persisted listing. Order is not meaningful; the
// registry rebuilds both indices from the stored pointers.
func (m *Manager) Listings() ([]*market.Listing, error) {
	ids, err := m.listingIndex()
	if err != nil {
		return nil, err
	}
	out := make([]*market.Listing, 0, len(ids))
	for _, id := range ids {
		data, err := m.trie.Get(prefixedKey(listingPrefix, id[:]))
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("market state: listing index references missing record %x", id)
		}
		var record listingRecord
		if err := rlp.DecodeBytes(data, &record); err != nil {
			return nil, err
		}
		out = append(out, &market.Listing{
			ListPointer:     int(record.ListPointer),
			PairPointer:     int(record.PairPointer),
			Seller:          record.Seller,
			AssetContract:   record.AssetContract,
			AssetID:         record.AssetID,
			UnitPrice:       record.UnitPrice,
			Amount:          record.Amount,
			PaymentToken:    record.PaymentToken,
			Kind:            market.AssetKind(record.Kind),
			RoyaltyReceiver: record.RoyaltyReceiver,
			UnitRoyalty:     record.UnitRoyalty,
			ReservedUntil:   int64(record.ReservedUntil),
			ReservedFor:     record.ReservedFor,
			CreatedAt:       int64(record.CreatedAt),
		})
	}
	return out, nil
}

func (m *Manager) listingIndex() ([][32]byte, error) {
	data, err := m.trie.Get(listingIndexKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][32]byte{}, nil
	}
	var ids [][32]byte
	if err := rlp.DecodeBytes(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) indexListing(id [32]byte, present bool) error {
	ids, err := m.listingIndex()
	if err != nil {
		return err
	}
	found := -1
	for i, entry := range ids {
		if bytes.Equal(entry[:], id[:]) {
			found = i
			break
		}
	}
	switch {
	case present && found < 0:
		ids = append(ids, id)
	case !present && found >= 0:
		ids = append(ids[:found], ids[found+1:]...)
	default:
		return nil
	}
	if len(ids) == 0 {
		return m.trie.Delete(listingIndexKey)
	}
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return m.trie.Update(listingIndexKey, encoded)
}

// --- generic KV ---

// KVPut RLP-encodes a value under the keccak of the caller's key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(ethcrypto.Keccak256(key), encoded)
}

// KVGet decodes a value previously stored with KVPut. The boolean reports
// whether the key was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, err := m.trie.Get(ethcrypto.Keccak256(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
