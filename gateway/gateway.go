package gateway

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/native/market"
	"nftmarket/observability"
	"nftmarket/state"
)

var (
	ErrNotAdmin  = errors.New("gateway: caller is not an administrator")
	ErrNilEngine = errors.New("gateway: nil settlement engine")
)

// Marketplace is the settlement surface an engine must provide. The gateway
// forwards every marketplace call to the current engine, so from the caller's
// view the gateway is the marketplace.
type Marketplace interface {
	List(caller, assetContract [20]byte, assetID, amount, unitPrice *big.Int, paymentToken [20]byte) (*market.Listing, error)
	Buy(caller, seller, assetContract [20]byte, assetID, amount *big.Int) error
	Unlist(caller, assetContract [20]byte, assetID *big.Int) error
	UnlistStale(caller, seller, assetContract [20]byte, assetID *big.Int) error
	Reserve(caller, seller, assetContract [20]byte, assetID *big.Int, reservedFor [20]byte, durationSecs int64) error
	Withdraw(caller, paymentToken [20]byte) (*big.Int, error)
	AddPaymentToken(caller, token [20]byte) error
	RemovePaymentToken(caller, token [20]byte) error
	ChangeProtocolFee(caller [20]byte, numerator, denominator *big.Int) error
	ChangeProtocolWallet(caller, wallet [20]byte) error
	SetPaused(caller [20]byte, paused bool) error
	GetListing(seller, assetContract [20]byte, assetID *big.Int) (*market.Listing, error)
	AllListings() ([]*market.Listing, error)
	Sellers(assetContract [20]byte, assetID *big.Int) ([][20]byte, error)
	UnitRoyalties(seller, assetContract [20]byte, assetID *big.Int) ([20]byte, *big.Int, error)
	Balance(paymentToken, account [20]byte) (*big.Int, error)
}

// Gateway is the stable front door of the marketplace. It owns the long-lived
// state manager and listing registry, keeps the administrator set, and holds a
// replaceable pointer to the current settlement engine. Upgrading swaps the
// engine pointer only; registry contents, balances, fee configuration, and the
// state root are untouched.
//
// The gateway also serialises calls, mirroring the one-at-a-time execution
// model of a host ledger: per-listing races resolve by whichever call acquires
// the lock first.
type Gateway struct {
	mu       sync.RWMutex
	engine   Marketplace
	admins   map[[20]byte]struct{}
	state    *state.Manager
	registry *market.Registry
	logger   *slog.Logger
	emitter  events.Emitter
}

// EventTypeUpgraded is emitted when the settlement engine is swapped.
const EventTypeUpgraded = "gateway.upgraded"

type gatewayEvent struct {
	evt *types.Event
}

func (e gatewayEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e gatewayEvent) Event() *types.Event { return e.evt }

// New creates a gateway owning the provided state and registry, fronted by the
// initial engine. The admin set controls future upgrades.
func New(st *state.Manager, registry *market.Registry, engine Marketplace, admins [][20]byte) (*Gateway, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	adminSet := make(map[[20]byte]struct{}, len(admins))
	for _, admin := range admins {
		if admin != ([20]byte{}) {
			adminSet[admin] = struct{}{}
		}
	}
	return &Gateway{
		engine:   engine,
		admins:   adminSet,
		state:    st,
		registry: registry,
		logger:   slog.Default(),
		emitter:  events.NoopEmitter{},
	}, nil
}

// SetEmitter routes gateway events to the provided sink.
func (g *Gateway) SetEmitter(emitter events.Emitter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	g.emitter = emitter
}

// SetLogger overrides the logger used for upgrade and failure reporting.
func (g *Gateway) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	g.logger = logger
}

// State returns the gateway-owned state manager for engine construction.
func (g *Gateway) State() *state.Manager { return g.state }

// Registry returns the gateway-owned listing registry for engine construction.
func (g *Gateway) Registry() *market.Registry { return g.registry }

// StateRoot returns the current state trie root.
func (g *Gateway) StateRoot() []byte {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state == nil {
		return nil
	}
	return g.state.Root()
}

// IsAdmin reports whether the address belongs to the administrator set.
func (g *Gateway) IsAdmin(addr [20]byte) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.admins[addr]
	return ok
}

// Upgrade repoints the gateway at a replacement settlement engine. Restricted
// to administrators. The engine must already be wired to the gateway-owned
// state and registry; no data migrates.
func (g *Gateway) Upgrade(caller [20]byte, next Marketplace) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.admins[caller]; !ok {
		return ErrNotAdmin
	}
	if next == nil {
		return ErrNilEngine
	}
	g.engine = next
	observability.MarketMetrics().ObserveUpgrade()
	g.emitter.Emit(gatewayEvent{evt: &types.Event{Type: EventTypeUpgraded, Attributes: map[string]string{
		"admin": hex.EncodeToString(caller[:]),
	}}})
	g.logger.Info("settlement engine upgraded")
	return nil
}

// commit persists the state root after a successful mutating call. A commit
// failure surfaces to the caller since the mutation would not survive a
// restart.
func (g *Gateway) commit(err error) error {
	if err != nil {
		return err
	}
	if g.state == nil {
		return nil
	}
	return g.state.Commit()
}

func (g *Gateway) observe(operation string, err error, started time.Time) {
	observability.MarketMetrics().ObserveOperation(operation, err, started)
	if err != nil {
		g.logger.Debug("marketplace operation rejected", "operation", operation, "reason", err.Error())
	}
}

// List forwards to the current engine.
func (g *Gateway) List(caller, assetContract [20]byte, assetID, amount, unitPrice *big.Int, paymentToken [20]byte) (*market.Listing, error) {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	listing, err := g.engine.List(caller, assetContract, assetID, amount, unitPrice, paymentToken)
	err = g.commit(err)
	g.observe("list", err, started)
	return listing, err
}

// Buy forwards to the current engine.
func (g *Gateway) Buy(caller, seller, assetContract [20]byte, assetID, amount *big.Int) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.Buy(caller, seller, assetContract, assetID, amount))
	g.observe("buy", err, started)
	return err
}

// Unlist forwards to the current engine.
func (g *Gateway) Unlist(caller, assetContract [20]byte, assetID *big.Int) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.Unlist(caller, assetContract, assetID))
	g.observe("unlist", err, started)
	return err
}

// UnlistStale forwards to the current engine.
func (g *Gateway) UnlistStale(caller, seller, assetContract [20]byte, assetID *big.Int) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.UnlistStale(caller, seller, assetContract, assetID))
	g.observe("unlist_stale", err, started)
	return err
}

// Reserve forwards to the current engine.
func (g *Gateway) Reserve(caller, seller, assetContract [20]byte, assetID *big.Int, reservedFor [20]byte, durationSecs int64) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.Reserve(caller, seller, assetContract, assetID, reservedFor, durationSecs))
	g.observe("reserve", err, started)
	return err
}

// Withdraw forwards to the current engine.
func (g *Gateway) Withdraw(caller, paymentToken [20]byte) (*big.Int, error) {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, err := g.engine.Withdraw(caller, paymentToken)
	err = g.commit(err)
	g.observe("withdraw", err, started)
	return amount, err
}

// AddPaymentToken forwards to the current engine.
func (g *Gateway) AddPaymentToken(caller, token [20]byte) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.AddPaymentToken(caller, token))
	g.observe("add_payment_token", err, started)
	return err
}

// RemovePaymentToken forwards to the current engine.
func (g *Gateway) RemovePaymentToken(caller, token [20]byte) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.RemovePaymentToken(caller, token))
	g.observe("remove_payment_token", err, started)
	return err
}

// ChangeProtocolFee forwards to the current engine.
func (g *Gateway) ChangeProtocolFee(caller [20]byte, numerator, denominator *big.Int) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.ChangeProtocolFee(caller, numerator, denominator))
	g.observe("change_protocol_fee", err, started)
	return err
}

// ChangeProtocolWallet forwards to the current engine.
func (g *Gateway) ChangeProtocolWallet(caller, wallet [20]byte) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.ChangeProtocolWallet(caller, wallet))
	g.observe("change_protocol_wallet", err, started)
	return err
}

// SetPaused forwards to the current engine.
func (g *Gateway) SetPaused(caller [20]byte, paused bool) error {
	started := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.commit(g.engine.SetPaused(caller, paused))
	g.observe("set_paused", err, started)
	return err
}

// GetListing forwards to the current engine.
func (g *Gateway) GetListing(seller, assetContract [20]byte, assetID *big.Int) (*market.Listing, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.engine.GetListing(seller, assetContract, assetID)
}

// AllListings forwards to the current engine.
func (g *Gateway) AllListings() ([]*market.Listing, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.engine.AllListings()
}

// Sellers forwards to the current engine.
func (g *Gateway) Sellers(assetContract [20]byte, assetID *big.Int) ([][20]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.engine.Sellers(assetContract, assetID)
}

// UnitRoyalties forwards to the current engine.
func (g *Gateway) UnitRoyalties(seller, assetContract [20]byte, assetID *big.Int) ([20]byte, *big.Int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.engine.UnitRoyalties(seller, assetContract, assetID)
}

// Balance forwards to the current engine.
func (g *Gateway) Balance(paymentToken, account [20]byte) (*big.Int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.engine.Balance(paymentToken, account)
}
