// Package tokenhost provides in-process token contracts for running the
// marketplace without a chain client. The ledgers satisfy the collaborator
// boundaries in native/market and back both the development daemon and the
// engine tests.
package tokenhost

import (
	"errors"
	"math/big"
	"sync"

	"nftmarket/native/market"
)

var (
	ErrInsufficientBalance  = errors.New("tokenhost: insufficient balance")
	ErrInsufficientApproval = errors.New("tokenhost: insufficient approval")
	ErrUnknownAsset         = errors.New("tokenhost: unknown asset")
	ErrNotTokenOwner        = errors.New("tokenhost: not token owner")
)

// Ledger maps contract addresses to hosted token instances.
type Ledger struct {
	mu     sync.RWMutex
	erc20  map[[20]byte]*ERC20
	assets map[[20]byte]market.AssetContract
}

func NewLedger() *Ledger {
	return &Ledger{
		erc20:  make(map[[20]byte]*ERC20),
		assets: make(map[[20]byte]market.AssetContract),
	}
}

// RegisterERC20 hosts a fungible settlement token at addr.
func (l *Ledger) RegisterERC20(addr [20]byte) *ERC20 {
	l.mu.Lock()
	defer l.mu.Unlock()
	token := NewERC20()
	l.erc20[addr] = token
	return token
}

// RegisterAsset hosts an asset contract at addr.
func (l *Ledger) RegisterAsset(addr [20]byte, asset market.AssetContract) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assets[addr] = asset
}

// Asset implements market.ContractResolver.
func (l *Ledger) Asset(addr [20]byte) (market.AssetContract, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	asset, ok := l.assets[addr]
	return asset, ok
}

// PaymentToken implements market.ContractResolver.
func (l *Ledger) PaymentToken(addr [20]byte) (market.ERC20Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	token, ok := l.erc20[addr]
	return token, ok
}

// ERC20 is a hosted fungible token. The market engine moves funds with the
// vault as counterparty, so the ledger tracks balances only; allowance
// bookkeeping stays with the real on-chain contract.
type ERC20 struct {
	mu       sync.RWMutex
	balances map[[20]byte]*big.Int
}

func NewERC20() *ERC20 {
	return &ERC20{
		balances: make(map[[20]byte]*big.Int),
	}
}

// Mint credits amount to owner.
func (t *ERC20) Mint(owner [20]byte, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.balances[owner]
	if current == nil {
		current = big.NewInt(0)
	}
	t.balances[owner] = new(big.Int).Add(current, amount)
}

func (t *ERC20) BalanceOf(owner [20]byte) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TransferFrom moves amount from `from` to `to`.
func (t *ERC20) TransferFrom(from, to [20]byte, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.balances[from] = new(big.Int).Sub(bal, amount)
	toBal := t.balances[to]
	if toBal == nil {
		toBal = big.NewInt(0)
	}
	t.balances[to] = new(big.Int).Add(toBal, amount)
	return nil
}

type royaltyFn func(assetID, salePrice *big.Int) ([20]byte, *big.Int, error)

// ERC721 is a hosted single-unit non-fungible contract.
type ERC721 struct {
	mu        sync.RWMutex
	owners    map[string][20]byte
	operators map[[20]byte]map[[20]byte]bool

	royalty      royaltyFn
	legacyOwner  *[20]byte
	interfaceIDs map[[4]byte]bool
}

// NewERC721 creates a contract answering the 165 and 721 capability queries.
func NewERC721() *ERC721 {
	return &ERC721{
		owners:    make(map[string][20]byte),
		operators: make(map[[20]byte]map[[20]byte]bool),
		interfaceIDs: map[[4]byte]bool{
			market.InterfaceIDERC165: true,
			market.InterfaceIDERC721: true,
		},
	}
}

// WithRoyalty enables the 2981 capability backed by fn.
func (t *ERC721) WithRoyalty(fn func(assetID, salePrice *big.Int) ([20]byte, *big.Int, error)) *ERC721 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.royalty = fn
	t.interfaceIDs[market.InterfaceIDERC2981] = true
	return t
}

// WithLegacyOwner answers Owner() queries with addr.
func (t *ERC721) WithLegacyOwner(addr [20]byte) *ERC721 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.legacyOwner = &addr
	return t
}

func (t *ERC721) Mint(assetID *big.Int, owner [20]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owners[assetID.String()] = owner
}

func (t *ERC721) SetApprovalForAll(owner, operator [20]byte, approved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.operators[owner] == nil {
		t.operators[owner] = make(map[[20]byte]bool)
	}
	t.operators[owner][operator] = approved
}

func (t *ERC721) SupportsInterface(id [4]byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.interfaceIDs[id]
}

func (t *ERC721) OwnerOf(assetID *big.Int) ([20]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	owner, ok := t.owners[assetID.String()]
	if !ok {
		return [20]byte{}, ErrUnknownAsset
	}
	return owner, nil
}

func (t *ERC721) IsApprovedForAll(owner, operator [20]byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.operators[owner][operator]
}

func (t *ERC721) SafeTransferFrom(from, to [20]byte, assetID *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := assetID.String()
	owner, ok := t.owners[key]
	if !ok || owner != from {
		return ErrNotTokenOwner
	}
	t.owners[key] = to
	return nil
}

func (t *ERC721) RoyaltyInfo(assetID, salePrice *big.Int) ([20]byte, *big.Int, error) {
	t.mu.RLock()
	fn := t.royalty
	t.mu.RUnlock()
	if fn == nil {
		return [20]byte{}, nil, ErrUnknownAsset
	}
	return fn(assetID, salePrice)
}

func (t *ERC721) Owner() ([20]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.legacyOwner == nil {
		return [20]byte{}, ErrUnknownAsset
	}
	return *t.legacyOwner, nil
}

// ERC1155 is a hosted multi-unit semi-fungible contract.
type ERC1155 struct {
	mu        sync.RWMutex
	balances  map[string]map[[20]byte]*big.Int
	operators map[[20]byte]map[[20]byte]bool

	royalty      royaltyFn
	interfaceIDs map[[4]byte]bool
}

func NewERC1155() *ERC1155 {
	return &ERC1155{
		balances:  make(map[string]map[[20]byte]*big.Int),
		operators: make(map[[20]byte]map[[20]byte]bool),
		interfaceIDs: map[[4]byte]bool{
			market.InterfaceIDERC165:  true,
			market.InterfaceIDERC1155: true,
		},
	}
}

// WithRoyalty enables the 2981 capability backed by fn.
func (t *ERC1155) WithRoyalty(fn func(assetID, salePrice *big.Int) ([20]byte, *big.Int, error)) *ERC1155 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.royalty = fn
	t.interfaceIDs[market.InterfaceIDERC2981] = true
	return t
}

func (t *ERC1155) Mint(assetID *big.Int, owner [20]byte, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := assetID.String()
	if t.balances[key] == nil {
		t.balances[key] = make(map[[20]byte]*big.Int)
	}
	current := t.balances[key][owner]
	if current == nil {
		current = big.NewInt(0)
	}
	t.balances[key][owner] = new(big.Int).Add(current, amount)
}

func (t *ERC1155) SetApprovalForAll(owner, operator [20]byte, approved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.operators[owner] == nil {
		t.operators[owner] = make(map[[20]byte]bool)
	}
	t.operators[owner][operator] = approved
}

func (t *ERC1155) SupportsInterface(id [4]byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.interfaceIDs[id]
}

func (t *ERC1155) BalanceOf(owner [20]byte, assetID *big.Int) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	holders := t.balances[assetID.String()]
	if holders == nil {
		return big.NewInt(0)
	}
	if bal, ok := holders[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (t *ERC1155) IsApprovedForAll(owner, operator [20]byte) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.operators[owner][operator]
}

func (t *ERC1155) SafeTransferFrom(from, to [20]byte, assetID, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := assetID.String()
	holders := t.balances[key]
	if holders == nil {
		return ErrInsufficientBalance
	}
	bal := holders[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	holders[from] = new(big.Int).Sub(bal, amount)
	toBal := holders[to]
	if toBal == nil {
		toBal = big.NewInt(0)
	}
	holders[to] = new(big.Int).Add(toBal, amount)
	return nil
}

func (t *ERC1155) RoyaltyInfo(assetID, salePrice *big.Int) ([20]byte, *big.Int, error) {
	t.mu.RLock()
	fn := t.royalty
	t.mu.RUnlock()
	if fn == nil {
		return [20]byte{}, nil, ErrUnknownAsset
	}
	return fn(assetID, salePrice)
}
