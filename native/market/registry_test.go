package market

import (
	"bytes"
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

type mapStore struct {
	listings map[[32]byte]*Listing
}

func newMapStore() *mapStore {
	return &mapStore{listings: make(map[[32]byte]*Listing)}
}

func (s *mapStore) ListingPut(l *Listing) error {
	s.listings[l.ID()] = l
	return nil
}

func (s *mapStore) ListingDelete(id [32]byte) error {
	delete(s.listings, id)
	return nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestListing(seller, contract [20]byte, assetID, amount, price int64) *Listing {
	return &Listing{
		Seller:        seller,
		AssetContract: contract,
		AssetID:       big.NewInt(assetID),
		UnitPrice:     big.NewInt(price),
		Amount:        big.NewInt(amount),
		PaymentToken:  newTestAddress(0xEC),
		Kind:          AssetERC1155,
		UnitRoyalty:   big.NewInt(0),
	}
}

// checkPointers asserts that every listing's stored indices match its true
// position in both collections.
func checkPointers(t *testing.T, r *Registry) {
	t.Helper()
	for i, l := range r.ledger {
		if l.ListPointer != i {
			t.Fatalf("ledger[%d] stores pointer %d", i, l.ListPointer)
		}
	}
	for pair, list := range r.sellers {
		if len(list) == 0 {
			t.Fatalf("empty seller list retained for pair %x", pair)
		}
		for i, seller := range list {
			found := false
			for _, l := range r.ledger {
				if l.Seller == seller && l.Pair() == pair {
					if l.PairPointer != i {
						t.Fatalf("pair %x seller %x stores pointer %d, true index %d",
							pair, seller, l.PairPointer, i)
					}
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("pair %x index entry %x has no backing listing", pair, seller)
			}
		}
	}
	if len(r.byID) != len(r.ledger) {
		t.Fatalf("id index has %d entries, ledger has %d", len(r.byID), len(r.ledger))
	}
}

func TestInsertAndGet(t *testing.T) {
	r := NewRegistry(nil)
	seller := newTestAddress(0x01)
	contract := newTestAddress(0x02)
	if err := r.Insert(newTestListing(seller, contract, 7, 5, 100)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.Get(seller, contract, big.NewInt(7))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount.Cmp(big.NewInt(5)) != 0 || got.UnitPrice.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected listing %+v", got)
	}
	if _, err := r.Get(seller, contract, big.NewInt(8)); !errors.Is(err, ErrNotListed) {
		t.Fatalf("expected ErrNotListed, got %v", err)
	}
}

func TestInsertDuplicateFails(t *testing.T) {
	r := NewRegistry(nil)
	seller := newTestAddress(0x01)
	contract := newTestAddress(0x02)
	if err := r.Insert(newTestListing(seller, contract, 7, 5, 100)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := r.Insert(newTestListing(seller, contract, 7, 3, 50))
	if !errors.Is(err, ErrAlreadyListed) {
		t.Fatalf("expected ErrAlreadyListed, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("duplicate insert changed ledger size to %d", r.Len())
	}
}

func TestRemoveSwapAndPop(t *testing.T) {
	r := NewRegistry(nil)
	contract := newTestAddress(0x02)
	sellerA := newTestAddress(0xA0)
	sellerB := newTestAddress(0xB0)
	for _, seller := range [][20]byte{sellerA, sellerB} {
		if err := r.Insert(newTestListing(seller, contract, 1, 1, 10)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := r.Remove(sellerA, contract, big.NewInt(1)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	checkPointers(t, r)

	sellers := r.SellersFor(contract, big.NewInt(1))
	if len(sellers) != 1 || sellers[0] != sellerB {
		t.Fatalf("sellers after removal: %x", sellers)
	}
	if _, err := r.Get(sellerA, contract, big.NewInt(1)); !errors.Is(err, ErrNotListed) {
		t.Fatalf("removed listing still resolvable: %v", err)
	}
	if err := r.Remove(sellerA, contract, big.NewInt(1)); !errors.Is(err, ErrNotListed) {
		t.Fatalf("second removal: expected ErrNotListed, got %v", err)
	}
}

func TestRemoveLastSellerDropsPairIndex(t *testing.T) {
	r := NewRegistry(nil)
	contract := newTestAddress(0x02)
	seller := newTestAddress(0xA0)
	if err := r.Insert(newTestListing(seller, contract, 1, 1, 10)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.Remove(seller, contract, big.NewInt(1)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := r.SellersFor(contract, big.NewInt(1)); len(got) != 0 {
		t.Fatalf("expected empty seller list, got %x", got)
	}
	if len(r.sellers) != 0 {
		t.Fatalf("pair index retained %d entries", len(r.sellers))
	}
}

func TestPointerInvariantUnderRandomChurn(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry(newMapStore())

	sellers := make([][20]byte, 8)
	for i := range sellers {
		sellers[i] = newTestAddress(byte(0x10 + i))
	}
	contracts := [][20]byte{newTestAddress(0xC1), newTestAddress(0xC2)}
	assetIDs := []int64{1, 2, 3}

	type key struct {
		seller   [20]byte
		contract [20]byte
		assetID  int64
	}
	active := make(map[key]bool)
	var activeKeys []key

	for step := 0; step < 2000; step++ {
		k := key{
			seller:   sellers[rng.Intn(len(sellers))],
			contract: contracts[rng.Intn(len(contracts))],
			assetID:  assetIDs[rng.Intn(len(assetIDs))],
		}
		if !active[k] && (len(activeKeys) == 0 || rng.Intn(2) == 0) {
			listing := newTestListing(k.seller, k.contract, k.assetID, int64(1+rng.Intn(9)), int64(1+rng.Intn(99)))
			if err := r.Insert(listing); err != nil {
				t.Fatalf("step %d insert: %v", step, err)
			}
			active[k] = true
			activeKeys = append(activeKeys, k)
		} else if len(activeKeys) > 0 {
			idx := rng.Intn(len(activeKeys))
			victim := activeKeys[idx]
			if err := r.Remove(victim.seller, victim.contract, big.NewInt(victim.assetID)); err != nil {
				t.Fatalf("step %d remove: %v", step, err)
			}
			delete(active, victim)
			activeKeys[idx] = activeKeys[len(activeKeys)-1]
			activeKeys = activeKeys[:len(activeKeys)-1]
		}
		checkPointers(t, r)
		if r.Len() != len(activeKeys) {
			t.Fatalf("step %d: ledger has %d listings, expected %d", step, r.Len(), len(activeKeys))
		}
	}
}

func TestReduceAmount(t *testing.T) {
	r := NewRegistry(nil)
	seller := newTestAddress(0x01)
	contract := newTestAddress(0x02)
	if err := r.Insert(newTestListing(seller, contract, 2, 15, 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	remaining, err := r.ReduceAmount(seller, contract, big.NewInt(2), big.NewInt(14))
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if remaining == nil || remaining.Amount.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected 1 unit remaining, got %+v", remaining)
	}

	if _, err := r.ReduceAmount(seller, contract, big.NewInt(2), big.NewInt(2)); !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("expected ErrInsufficientAmount, got %v", err)
	}

	remaining, err = r.ReduceAmount(seller, contract, big.NewInt(2), big.NewInt(1))
	if err != nil {
		t.Fatalf("final reduce: %v", err)
	}
	if remaining != nil {
		t.Fatalf("expected listing removal, got %+v", remaining)
	}
	if _, err := r.Get(seller, contract, big.NewInt(2)); !errors.Is(err, ErrNotListed) {
		t.Fatalf("exhausted listing still resolvable: %v", err)
	}
}

func TestSetReservation(t *testing.T) {
	r := NewRegistry(nil)
	seller := newTestAddress(0x01)
	contract := newTestAddress(0x02)
	buyer := newTestAddress(0x03)
	if err := r.Insert(newTestListing(seller, contract, 1, 1, 10)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.SetReservation(seller, contract, big.NewInt(1), buyer, 5000); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	got, err := r.Get(seller, contract, big.NewInt(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReservedFor != buyer || got.ReservedUntil != 5000 {
		t.Fatalf("reservation not recorded: %+v", got)
	}
}

func TestRebuildRegistryRoundTrip(t *testing.T) {
	store := newMapStore()
	r := NewRegistry(store)
	contract := newTestAddress(0x02)
	for i := 0; i < 6; i++ {
		seller := newTestAddress(byte(0x30 + i))
		if err := r.Insert(newTestListing(seller, contract, int64(i%2), 3, 10)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := r.Remove(newTestAddress(0x31), contract, big.NewInt(1)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	persisted := make([]*Listing, 0, len(store.listings))
	for _, l := range store.listings {
		persisted = append(persisted, l)
	}
	rebuilt, err := RebuildRegistry(persisted, nil)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	checkPointers(t, rebuilt)
	if rebuilt.Len() != r.Len() {
		t.Fatalf("rebuilt %d listings, expected %d", rebuilt.Len(), r.Len())
	}
	for _, l := range r.All() {
		got, err := rebuilt.Get(l.Seller, l.AssetContract, l.AssetID)
		if err != nil {
			t.Fatalf("rebuilt registry missing %x: %v", l.Seller, err)
		}
		if got.Amount.Cmp(l.Amount) != 0 || got.UnitPrice.Cmp(l.UnitPrice) != 0 {
			t.Fatalf("rebuilt listing diverged: %+v vs %+v", got, l)
		}
	}
}

func TestRebuildRegistryRejectsCorruptPointers(t *testing.T) {
	l := newTestListing(newTestAddress(0x01), newTestAddress(0x02), 1, 1, 10)
	l.ListPointer = 3
	if _, err := RebuildRegistry([]*Listing{l}, nil); err == nil {
		t.Fatal("expected rebuild failure for out-of-range pointer")
	}
	a := newTestListing(newTestAddress(0x01), newTestAddress(0x02), 1, 1, 10)
	b := newTestListing(newTestAddress(0x03), newTestAddress(0x02), 1, 1, 10)
	a.ListPointer, a.PairPointer = 0, 0
	b.ListPointer, b.PairPointer = 1, 2
	if _, err := RebuildRegistry([]*Listing{a, b}, nil); err == nil {
		t.Fatal("expected rebuild failure for a gap in the seller index")
	}
}
