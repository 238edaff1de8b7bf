package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/native/fees"

	nativecommon "nftmarket/native/common"
)

var (
	errNilState     = errors.New("market engine: state not configured")
	errNilRegistry  = errors.New("market engine: registry not configured")
	errNilContracts = errors.New("market engine: contract resolver not configured")
)

const (
	moduleName = "market"

	// Reservations are capped to keep a reserver role from freezing a listing
	// indefinitely.
	defaultMaxReserveSecs int64 = 7 * 24 * 60 * 60
)

type engineState interface {
	IsPaymentToken(token [20]byte) bool
	AddPaymentToken(token [20]byte) error
	RemovePaymentToken(token [20]byte) error
	FeeConfig() (fees.Config, error)
	SetFeeConfig(cfg fees.Config) error
	Balance(token, account [20]byte) (*big.Int, error)
	BalanceAdd(token, account [20]byte, amount *big.Int) error
	BalanceSet(token, account [20]byte, amount *big.Int) error
	HasRole(role string, addr [20]byte) bool
	SetPaused(module string, paused bool) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine orchestrates listing creation and removal, purchase settlement,
// reservations, and pull-based withdrawals. It owns no listing or balance
// state itself: listings live in the registry, balances and configuration in
// the state backend, so a replacement engine picks up exactly where the
// previous one stopped.
type Engine struct {
	state      engineState
	registry   *Registry
	contracts  ContractResolver
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	vault      [20]byte
	maxReserve int64
	nowFn      func() int64
}

// NewEngine creates a marketplace engine with a no-op emitter. Callers
// configure collaborators via the setters before first use.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		maxReserve: defaultMaxReserveSecs,
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the listing registry used by the engine.
func (e *Engine) SetRegistry(registry *Registry) { e.registry = registry }

// SetContracts configures the resolver mapping addresses to token contracts.
func (e *Engine) SetContracts(resolver ContractResolver) { e.contracts = resolver }

// SetVault configures the marketplace address that custodians settlement
// tokens between purchase and withdrawal. Sellers grant blanket transfer
// approval to this address.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault returns the marketplace custody address.
func (e *Engine) Vault() [20]byte { return e.vault }

// SetMaxReservePeriod overrides the reservation cap in seconds. Non-positive
// values restore the default.
func (e *Engine) SetMaxReservePeriod(secs int64) {
	if secs <= 0 {
		e.maxReserve = defaultMaxReserveSecs
		return
	}
	e.maxReserve = secs
}

// SetPauses configures the pause view guarding mutating operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.registry == nil {
		return errNilRegistry
	}
	if e.contracts == nil {
		return errNilContracts
	}
	return nil
}

// List validates and records a new listing. Validation order: payment token
// whitelist, capability probe, asset kind, ownership/holdings, blanket
// approval, price, then royalty resolution and registry insertion.
func (e *Engine) List(caller, assetContract [20]byte, assetID, amount, unitPrice *big.Int, paymentToken [20]byte) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.IsPaymentToken(paymentToken) {
		return nil, ErrInvalidPaymentToken
	}
	asset, ok := e.contracts.Asset(assetContract)
	if !ok {
		return nil, ErrNotERC165
	}
	kind, err := ProbeAssetKind(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	switch {
	case kind.SemiFungible():
		token, ok := asset.(ERC1155Token)
		if !ok {
			return nil, ErrUnknownAssetType
		}
		held := token.BalanceOf(caller, assetID)
		if held == nil || held.Cmp(amount) < 0 {
			return nil, ErrNotOwner
		}
		if !token.IsApprovedForAll(caller, e.vault) {
			return nil, ErrNotApproved
		}
	default:
		token, ok := asset.(ERC721Token)
		if !ok {
			return nil, ErrUnknownAssetType
		}
		owner, err := token.OwnerOf(assetID)
		if err != nil || owner != caller {
			return nil, ErrNotOwner
		}
		if !token.IsApprovedForAll(caller, e.vault) {
			return nil, ErrNotApproved
		}
		if amount.Cmp(big.NewInt(1)) != 0 {
			return nil, ErrInvalidAmount
		}
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	receiver, unitRoyalty, err := ResolveRoyalty(asset, kind, assetID, unitPrice)
	if err != nil {
		return nil, err
	}
	listing := &Listing{
		Seller:          caller,
		AssetContract:   assetContract,
		AssetID:         new(big.Int).Set(assetID),
		UnitPrice:       new(big.Int).Set(unitPrice),
		Amount:          new(big.Int).Set(amount),
		PaymentToken:    paymentToken,
		Kind:            kind,
		RoyaltyReceiver: receiver,
		UnitRoyalty:     unitRoyalty,
		CreatedAt:       e.now(),
	}
	if err := e.registry.Insert(listing); err != nil {
		return nil, err
	}
	stored, err := e.registry.Get(caller, assetContract, assetID)
	if err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(stored))
	return stored, nil
}

// Buy settles a full or partial purchase: the buyer pays amount*unitPrice in
// the listing's payment token, the asset moves to the buyer, and the proceeds
// are credited to the internal balance ledger split between seller, royalty
// receiver, and protocol wallet. Funds are never pushed to third parties
// here; they are withdrawn via Withdraw.
func (e *Engine) Buy(caller, seller, assetContract [20]byte, assetID, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.registry.Get(seller, assetContract, assetID)
	if err != nil {
		return err
	}
	if listing.ReservedAgainst(caller, e.now()) {
		return ErrReserved
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(listing.Amount) > 0 {
		return ErrInsufficientAmount
	}
	cfg, err := e.state.FeeConfig()
	if err != nil {
		return err
	}
	split, err := fees.Split(cfg, listing.UnitPrice, listing.UnitRoyalty, amount)
	if err != nil {
		return err
	}
	erc20, ok := e.contracts.PaymentToken(listing.PaymentToken)
	if !ok {
		return fmt.Errorf("market: payment token %x is not resolvable", listing.PaymentToken)
	}
	if err := erc20.TransferFrom(caller, e.vault, split.Total); err != nil {
		return fmt.Errorf("market: payment transfer failed: %w", err)
	}
	if err := e.transferAsset(listing, seller, caller, amount); err != nil {
		// The payment is already in the vault; it must not stay there without
		// a matching asset transfer. Refund directly, falling back to a
		// pull-balance credit when the refund transfer itself fails.
		if refundErr := erc20.TransferFrom(e.vault, caller, split.Total); refundErr != nil {
			if creditErr := e.state.BalanceAdd(listing.PaymentToken, caller, split.Total); creditErr != nil {
				return fmt.Errorf("market: asset transfer failed (%v), refund failed (%v), credit failed: %w", err, refundErr, creditErr)
			}
			return fmt.Errorf("market: asset transfer failed, payment credited for withdrawal: %w", err)
		}
		return fmt.Errorf("market: asset transfer failed: %w", err)
	}
	if _, err := e.registry.ReduceAmount(seller, assetContract, assetID, amount); err != nil {
		return err
	}
	if err := e.state.BalanceAdd(listing.PaymentToken, seller, split.SellerNet); err != nil {
		return err
	}
	if split.Fee.Sign() > 0 {
		if err := e.state.BalanceAdd(listing.PaymentToken, cfg.Wallet, split.Fee); err != nil {
			return err
		}
	}
	if split.Royalty.Sign() > 0 && listing.RoyaltyReceiver != ([20]byte{}) {
		if err := e.state.BalanceAdd(listing.PaymentToken, listing.RoyaltyReceiver, split.Royalty); err != nil {
			return err
		}
	}
	e.emit(NewPurchasedEvent(listing, caller, amount, split.Total, split.Fee, split.Royalty))
	return nil
}

func (e *Engine) transferAsset(listing *Listing, from, to [20]byte, amount *big.Int) error {
	asset, ok := e.contracts.Asset(listing.AssetContract)
	if !ok {
		return fmt.Errorf("asset contract %x is not resolvable", listing.AssetContract)
	}
	if listing.Kind.SemiFungible() {
		token, ok := asset.(ERC1155Token)
		if !ok {
			return ErrUnknownAssetType
		}
		return token.SafeTransferFrom(from, to, listing.AssetID, amount)
	}
	token, ok := asset.(ERC721Token)
	if !ok {
		return ErrUnknownAssetType
	}
	return token.SafeTransferFrom(from, to, listing.AssetID)
}

// Unlist removes the caller's own listing.
func (e *Engine) Unlist(caller, assetContract [20]byte, assetID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.registry.Get(caller, assetContract, assetID)
	if err != nil {
		return ErrNotListedForSender
	}
	if err := e.registry.Remove(caller, assetContract, assetID); err != nil {
		return err
	}
	e.emit(NewUnlistedEvent(listing))
	return nil
}

// UnlistStale purges a listing the seller can no longer honour. Anyone may
// call it; it succeeds only when the seller no longer owns enough of the
// asset or has revoked the marketplace approval.
func (e *Engine) UnlistStale(caller, seller, assetContract [20]byte, assetID *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	listing, err := e.registry.Get(seller, assetContract, assetID)
	if err != nil {
		return err
	}
	if e.listingBacked(listing) {
		return ErrStillValid
	}
	if err := e.registry.Remove(seller, assetContract, assetID); err != nil {
		return err
	}
	e.emit(NewStaleUnlistedEvent(listing, caller))
	return nil
}

func (e *Engine) listingBacked(listing *Listing) bool {
	asset, ok := e.contracts.Asset(listing.AssetContract)
	if !ok {
		return false
	}
	if listing.Kind.SemiFungible() {
		token, ok := asset.(ERC1155Token)
		if !ok {
			return false
		}
		held := token.BalanceOf(listing.Seller, listing.AssetID)
		if held == nil || held.Cmp(listing.Amount) < 0 {
			return false
		}
		return token.IsApprovedForAll(listing.Seller, e.vault)
	}
	token, ok := asset.(ERC721Token)
	if !ok {
		return false
	}
	owner, err := token.OwnerOf(listing.AssetID)
	if err != nil || owner != listing.Seller {
		return false
	}
	return token.IsApprovedForAll(listing.Seller, e.vault)
}

// Reserve grants a time-boxed exclusivity window on a listing to one
// designated buyer. Restricted to the reserver role and capped at the maximum
// reserve period.
func (e *Engine) Reserve(caller, seller, assetContract [20]byte, assetID *big.Int, reservedFor [20]byte, durationSecs int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.state.HasRole(RoleReserver, caller) {
		return ErrNotReserver
	}
	if durationSecs <= 0 || durationSecs > e.maxReserve {
		return ErrDurationTooLong
	}
	listing, err := e.registry.Get(seller, assetContract, assetID)
	if err != nil {
		return err
	}
	reservedUntil := e.now() + durationSecs
	if err := e.registry.SetReservation(seller, assetContract, assetID, reservedFor, reservedUntil); err != nil {
		return err
	}
	e.emit(NewReservedEvent(listing, reservedFor, reservedUntil))
	return nil
}

// Withdraw pays out the caller's entire credited balance for the given token.
// The balance is zeroed before the transfer so a reentrant call observes
// nothing left to withdraw; a failing transfer restores the credit and aborts.
// Withdrawals stay available while the module is paused so funds are never
// trapped.
func (e *Engine) Withdraw(caller, paymentToken [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	balance, err := e.state.Balance(paymentToken, caller)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() <= 0 {
		return nil, ErrNoBalance
	}
	erc20, ok := e.contracts.PaymentToken(paymentToken)
	if !ok {
		return nil, fmt.Errorf("market: payment token %x is not resolvable", paymentToken)
	}
	if err := e.state.BalanceSet(paymentToken, caller, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := erc20.TransferFrom(e.vault, caller, balance); err != nil {
		if restoreErr := e.state.BalanceSet(paymentToken, caller, balance); restoreErr != nil {
			return nil, fmt.Errorf("market: withdrawal transfer failed (%v) and credit restore failed: %w", err, restoreErr)
		}
		return nil, fmt.Errorf("market: withdrawal transfer failed: %w", err)
	}
	e.emit(NewWithdrawnEvent(paymentToken, caller, balance))
	return balance, nil
}

// AddPaymentToken whitelists a settlement token. Owner-gated.
func (e *Engine) AddPaymentToken(caller, token [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if token == ([20]byte{}) {
		return fees.ErrInvalidWallet
	}
	if err := e.state.AddPaymentToken(token); err != nil {
		return err
	}
	e.emit(NewPaymentTokenAddedEvent(token))
	return nil
}

// RemovePaymentToken removes a settlement token from the whitelist. Existing
// listings keep settling in their recorded token.
func (e *Engine) RemovePaymentToken(caller, token [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.RemovePaymentToken(token); err != nil {
		return err
	}
	e.emit(NewPaymentTokenRemovedEvent(token))
	return nil
}

// ChangeProtocolFee updates the fee fraction. Owner-gated; a zero denominator
// is rejected and the previous configuration stays in force.
func (e *Engine) ChangeProtocolFee(caller [20]byte, numerator, denominator *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.state.FeeConfig()
	if err != nil {
		return err
	}
	next := fees.Config{Numerator: numerator, Denominator: denominator, Wallet: cfg.Wallet}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := e.state.SetFeeConfig(next); err != nil {
		return err
	}
	e.emit(NewFeeUpdatedEvent(numerator, denominator))
	return nil
}

// ChangeProtocolWallet updates the protocol fee receiver. Owner-gated; the
// zero address is rejected.
func (e *Engine) ChangeProtocolWallet(caller, wallet [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if wallet == ([20]byte{}) {
		return fees.ErrInvalidWallet
	}
	cfg, err := e.state.FeeConfig()
	if err != nil {
		return err
	}
	cfg.Wallet = wallet
	if err := e.state.SetFeeConfig(cfg); err != nil {
		return err
	}
	e.emit(NewWalletUpdatedEvent(wallet))
	return nil
}

// SetPaused toggles the module pause flag. Owner-gated; it is never blocked by
// the guard itself so a paused module can always be resumed.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.SetPaused(moduleName, paused); err != nil {
		return err
	}
	e.emit(NewPauseChangedEvent(paused))
	return nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(RoleMarketAdmin, caller) {
		return ErrNotAdmin
	}
	return nil
}

// GetListing returns the listing for the given key.
func (e *Engine) GetListing(seller, assetContract [20]byte, assetID *big.Int) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.registry.Get(seller, assetContract, assetID)
}

// AllListings returns the active-listing ledger in ledger order.
func (e *Engine) AllListings() ([]*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.registry.All(), nil
}

// Sellers returns the addresses currently listing the pair, in index order.
func (e *Engine) Sellers(assetContract [20]byte, assetID *big.Int) ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.registry.SellersFor(assetContract, assetID), nil
}

// UnitRoyalties returns the royalty receiver and per-unit amount cached on
// the listing.
func (e *Engine) UnitRoyalties(seller, assetContract [20]byte, assetID *big.Int) ([20]byte, *big.Int, error) {
	if err := e.ready(); err != nil {
		return [20]byte{}, nil, err
	}
	listing, err := e.registry.Get(seller, assetContract, assetID)
	if err != nil {
		return [20]byte{}, nil, err
	}
	return listing.RoyaltyReceiver, listing.UnitRoyalty, nil
}

// Balance returns the credited withdrawable balance for (token, account).
func (e *Engine) Balance(paymentToken, account [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Balance(paymentToken, account)
}
