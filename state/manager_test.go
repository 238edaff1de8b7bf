package state

import (
	"math/big"
	"testing"

	"nftmarket/native/fees"
	"nftmarket/native/market"
	"nftmarket/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	m, err := OpenManager(db)
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	return m, db
}

func TestPaymentTokenWhitelist(t *testing.T) {
	m, _ := newTestManager(t)
	token := testAddr(0x01)

	if m.IsPaymentToken(token) {
		t.Fatal("token whitelisted on fresh state")
	}
	if err := m.AddPaymentToken(token); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !m.IsPaymentToken(token) {
		t.Fatal("token not whitelisted after add")
	}
	tokens, err := m.PaymentTokens()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != token {
		t.Fatalf("token list: %x", tokens)
	}
	if err := m.RemovePaymentToken(token); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.IsPaymentToken(token) {
		t.Fatal("token still whitelisted after removal")
	}
}

func TestFeeConfigRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.FeeConfig(); err == nil {
		t.Fatal("expected error on uninitialised fee config")
	}
	cfg := fees.Config{
		Numerator:   big.NewInt(250),
		Denominator: big.NewInt(10000),
		Wallet:      testAddr(0x02),
	}
	if err := m.SetFeeConfig(cfg); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := m.FeeConfig()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Numerator.Cmp(cfg.Numerator) != 0 || got.Denominator.Cmp(cfg.Denominator) != 0 || got.Wallet != cfg.Wallet {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	invalid := fees.Config{Numerator: big.NewInt(1), Denominator: big.NewInt(0), Wallet: testAddr(0x02)}
	if err := m.SetFeeConfig(invalid); err == nil {
		t.Fatal("expected rejection of zero denominator")
	}
}

func TestBalances(t *testing.T) {
	m, _ := newTestManager(t)
	token := testAddr(0x01)
	account := testAddr(0x03)

	bal, err := m.Balance(token, account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("fresh balance %s, want 0", bal)
	}
	if err := m.BalanceAdd(token, account, big.NewInt(40)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.BalanceAdd(token, account, big.NewInt(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	bal, _ = m.Balance(token, account)
	if bal.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("balance %s, want 42", bal)
	}
	if err := m.BalanceSet(token, account, big.NewInt(0)); err != nil {
		t.Fatalf("zero: %v", err)
	}
	bal, _ = m.Balance(token, account)
	if bal.Sign() != 0 {
		t.Fatalf("balance after zeroing: %s", bal)
	}
}

func TestRoles(t *testing.T) {
	m, _ := newTestManager(t)
	admin := testAddr(0x04)
	other := testAddr(0x05)

	if m.HasRole(market.RoleMarketAdmin, admin) {
		t.Fatal("role present on fresh state")
	}
	if err := m.SetRole(market.RoleMarketAdmin, admin); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.SetRole(market.RoleMarketAdmin, other); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !m.HasRole(market.RoleMarketAdmin, admin) || !m.HasRole(market.RoleMarketAdmin, other) {
		t.Fatal("granted roles not visible")
	}
	members, err := m.RoleMembers(market.RoleMarketAdmin)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("member count %d, want 2", len(members))
	}
	if err := m.UnsetRole(market.RoleMarketAdmin, admin); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if m.HasRole(market.RoleMarketAdmin, admin) {
		t.Fatal("revoked role still visible")
	}
	if !m.HasRole(market.RoleMarketAdmin, other) {
		t.Fatal("unrelated grant lost")
	}
}

func TestPauseFlags(t *testing.T) {
	m, _ := newTestManager(t)
	if m.IsPaused("market") {
		t.Fatal("paused on fresh state")
	}
	if err := m.SetPaused("market", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !m.IsPaused("market") {
		t.Fatal("pause flag not visible")
	}
	if err := m.SetPaused("market", false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if m.IsPaused("market") {
		t.Fatal("pause flag not cleared")
	}
}

func testListing(seller [20]byte, assetID int64) *market.Listing {
	return &market.Listing{
		Seller:        seller,
		AssetContract: testAddr(0x06),
		AssetID:       big.NewInt(assetID),
		UnitPrice:     big.NewInt(11),
		Amount:        big.NewInt(4),
		PaymentToken:  testAddr(0x07),
		Kind:          market.AssetERC1155,
		UnitRoyalty:   big.NewInt(1),
		ReservedUntil: 900,
		ReservedFor:   testAddr(0x08),
		CreatedAt:     800,
	}
}

func TestListingPersistenceRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	first := testListing(testAddr(0x09), 1)
	second := testListing(testAddr(0x0A), 2)
	second.ListPointer = 1

	if err := m.ListingPut(first); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.ListingPut(second); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, err := m.Listings()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d listings, want 2", len(loaded))
	}
	byID := make(map[[32]byte]*market.Listing, len(loaded))
	for _, l := range loaded {
		byID[l.ID()] = l
	}
	got, ok := byID[first.ID()]
	if !ok {
		t.Fatal("first listing missing")
	}
	if got.Amount.Cmp(first.Amount) != 0 || got.UnitPrice.Cmp(first.UnitPrice) != 0 ||
		got.ReservedUntil != first.ReservedUntil || got.ReservedFor != first.ReservedFor ||
		got.Kind != first.Kind || got.CreatedAt != first.CreatedAt {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if err := m.ListingDelete(first.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	loaded, err = m.Listings()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID() != second.ID() {
		t.Fatalf("unexpected listings after delete: %d", len(loaded))
	}
}

func TestCommitSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	m, err := OpenManager(db)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	token := testAddr(0x01)
	if err := m.AddPaymentToken(token); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.ListingPut(testListing(testAddr(0x09), 1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	root := m.Root()

	reopened, err := OpenManager(db)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if string(reopened.Root()) != string(root) {
		t.Fatalf("root changed across reopen")
	}
	if !reopened.IsPaymentToken(token) {
		t.Fatal("whitelist lost across reopen")
	}
	listings, err := reopened.Listings()
	if err != nil {
		t.Fatalf("listings: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("loaded %d listings after reopen, want 1", len(listings))
	}
}
