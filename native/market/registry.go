package market

import (
	"fmt"
	"math/big"
)

// Store is the optional write-through persistence consulted by the registry.
// state.Manager implements it; a nil store keeps the registry memory-only,
// which the tests rely on.
type Store interface {
	ListingPut(l *Listing) error
	ListingDelete(id [32]byte) error
}

// Registry is the dual-indexed ledger of active listings: a dense global
// array ordered by insertion, plus a per-(assetContract, assetId) list of the
// sellers currently competing on that pair. Every listing stores its index in
// both collections, so insertion, lookup, and removal are O(1).
//
// Removal uses swap-and-pop on both collections and patches the moved entry's
// stored pointer. The invariant after any operation: each listing's
// ListPointer equals its true ledger index and each listing's PairPointer
// equals its seller's true index in the pair's seller list.
//
// The registry is the sole writer of listing fields; the settlement engine
// only goes through registry operations.
type Registry struct {
	ledger  []*Listing
	byID    map[[32]byte]*Listing
	sellers map[[32]byte][][20]byte
	store   Store
}

// NewRegistry creates an empty registry with optional write-through
// persistence.
func NewRegistry(store Store) *Registry {
	return &Registry{
		byID:    make(map[[32]byte]*Listing),
		sellers: make(map[[32]byte][][20]byte),
		store:   store,
	}
}

// RebuildRegistry reconstructs a registry from persisted listings using their
// stored pointers. Both index collections must come out dense; a gap means
// the persisted set is corrupt.
func RebuildRegistry(listings []*Listing, store Store) (*Registry, error) {
	r := NewRegistry(store)
	r.ledger = make([]*Listing, len(listings))
	pairSizes := make(map[[32]byte]int, len(listings))
	for _, l := range listings {
		sanitized, err := SanitizeListing(l)
		if err != nil {
			return nil, err
		}
		if sanitized.ListPointer < 0 || sanitized.ListPointer >= len(listings) {
			return nil, fmt.Errorf("market: ledger pointer %d out of range", sanitized.ListPointer)
		}
		if r.ledger[sanitized.ListPointer] != nil {
			return nil, fmt.Errorf("market: duplicate ledger pointer %d", sanitized.ListPointer)
		}
		r.ledger[sanitized.ListPointer] = sanitized
		r.byID[sanitized.ID()] = sanitized
		pair := sanitized.Pair()
		if sanitized.PairPointer+1 > pairSizes[pair] {
			pairSizes[pair] = sanitized.PairPointer + 1
		}
	}
	for pair, size := range pairSizes {
		r.sellers[pair] = make([][20]byte, size)
	}
	for _, l := range r.ledger {
		r.sellers[l.Pair()][l.PairPointer] = l.Seller
	}
	for pair, list := range r.sellers {
		seen := make(map[[20]byte]bool, len(list))
		for _, seller := range list {
			if seller == ([20]byte{}) || seen[seller] {
				return nil, fmt.Errorf("market: seller list for pair %x is not dense", pair)
			}
			seen[seller] = true
		}
	}
	return r, nil
}

// Len returns the number of active listings.
func (r *Registry) Len() int {
	return len(r.ledger)
}

// Insert records a new listing, appending it to the global ledger and its
// pair's seller list. A second listing for the same (seller, assetContract,
// assetId) key fails with ErrAlreadyListed rather than overwriting.
func (r *Registry) Insert(l *Listing) error {
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return err
	}
	id := sanitized.ID()
	if _, exists := r.byID[id]; exists {
		return ErrAlreadyListed
	}
	pair := sanitized.Pair()
	sanitized.ListPointer = len(r.ledger)
	sanitized.PairPointer = len(r.sellers[pair])
	r.ledger = append(r.ledger, sanitized)
	r.sellers[pair] = append(r.sellers[pair], sanitized.Seller)
	r.byID[id] = sanitized
	return r.persist(sanitized)
}

// Get returns a copy of the listing for the given key.
func (r *Registry) Get(seller, assetContract [20]byte, assetID *big.Int) (*Listing, error) {
	l, ok := r.byID[ListingID(seller, assetContract, assetID)]
	if !ok {
		return nil, ErrNotListed
	}
	return l.Clone(), nil
}

// Remove deletes the listing for the given key from both indices via
// swap-and-pop, patching the moved entries' stored pointers.
func (r *Registry) Remove(seller, assetContract [20]byte, assetID *big.Int) error {
	id := ListingID(seller, assetContract, assetID)
	l, ok := r.byID[id]
	if !ok {
		return ErrNotListed
	}

	// Global ledger: move the tail into the vacated slot unless the removed
	// listing is the tail itself.
	lastIdx := len(r.ledger) - 1
	moved := r.ledger[lastIdx]
	r.ledger[l.ListPointer] = moved
	moved.ListPointer = l.ListPointer
	r.ledger = r.ledger[:lastIdx]

	// Per-pair seller list: same discipline, patching the pointer of the
	// listing that owns the moved seller entry.
	pair := l.Pair()
	list := r.sellers[pair]
	lastIdx = len(list) - 1
	movedSeller := list[lastIdx]
	list[l.PairPointer] = movedSeller
	movedListing, ok := r.byID[ListingID(movedSeller, assetContract, assetID)]
	if !ok {
		return fmt.Errorf("market: seller index references unknown listing for pair %x", pair)
	}
	movedListing.PairPointer = l.PairPointer
	list = list[:lastIdx]
	if len(list) == 0 {
		delete(r.sellers, pair)
	} else {
		r.sellers[pair] = list
	}

	delete(r.byID, id)
	if r.store != nil {
		if err := r.store.ListingDelete(id); err != nil {
			return err
		}
		if moved != l {
			if err := r.persist(moved); err != nil {
				return err
			}
		}
		if movedListing != l && movedListing != moved {
			if err := r.persist(movedListing); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReduceAmount decrements the listing's remaining amount by `by`, removing the
// listing entirely when it reaches zero. The remaining listing (nil when
// removed) is returned as a copy.
func (r *Registry) ReduceAmount(seller, assetContract [20]byte, assetID, by *big.Int) (*Listing, error) {
	l, ok := r.byID[ListingID(seller, assetContract, assetID)]
	if !ok {
		return nil, ErrNotListed
	}
	if by == nil || by.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	switch by.Cmp(l.Amount) {
	case 1:
		return nil, ErrInsufficientAmount
	case 0:
		if err := r.Remove(seller, assetContract, assetID); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		l.Amount = new(big.Int).Sub(l.Amount, by)
		if err := r.persist(l); err != nil {
			return nil, err
		}
		return l.Clone(), nil
	}
}

// SetReservation stamps a reservation window on the listing. A zero deadline
// clears the reservation.
func (r *Registry) SetReservation(seller, assetContract [20]byte, assetID *big.Int, reservedFor [20]byte, reservedUntil int64) error {
	l, ok := r.byID[ListingID(seller, assetContract, assetID)]
	if !ok {
		return ErrNotListed
	}
	l.ReservedFor = reservedFor
	l.ReservedUntil = reservedUntil
	return r.persist(l)
}

// SellersFor returns the sellers currently listing the pair. The order
// reflects insertion and removal history, not price.
func (r *Registry) SellersFor(assetContract [20]byte, assetID *big.Int) [][20]byte {
	list := r.sellers[PairID(assetContract, assetID)]
	out := make([][20]byte, len(list))
	copy(out, list)
	return out
}

// All returns a snapshot of the active-listing ledger in ledger order.
func (r *Registry) All() []*Listing {
	out := make([]*Listing, len(r.ledger))
	for i, l := range r.ledger {
		out[i] = l.Clone()
	}
	return out
}

func (r *Registry) persist(l *Listing) error {
	if r.store == nil {
		return nil
	}
	return r.store.ListingPut(l.Clone())
}
