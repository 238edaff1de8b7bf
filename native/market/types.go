package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Role names consulted through the state backend.
const (
	RoleMarketAdmin = "ROLE_MARKET_ADMIN"
	RoleReserver    = "ROLE_RESERVER"
)

// AssetKind classifies a listed token contract. The kind is probed once at
// listing time via ERC165 capability queries and cached on the listing;
// re-probing on every purchase would be wasteful and could change mid-sale.
type AssetKind uint8

const (
	AssetUnknown AssetKind = iota
	AssetERC721
	AssetERC721Royalty
	AssetERC1155
	AssetERC1155Royalty
)

// Valid reports whether the kind is one of the listable classifications.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetERC721, AssetERC721Royalty, AssetERC1155, AssetERC1155Royalty:
		return true
	default:
		return false
	}
}

// SemiFungible reports whether the asset supports multi-unit listings.
func (k AssetKind) SemiFungible() bool {
	return k == AssetERC1155 || k == AssetERC1155Royalty
}

// HasRoyalty reports whether the contract advertised the royalty extension at
// listing time.
func (k AssetKind) HasRoyalty() bool {
	return k == AssetERC721Royalty || k == AssetERC1155Royalty
}

func (k AssetKind) String() string {
	switch k {
	case AssetERC721:
		return "erc721"
	case AssetERC721Royalty:
		return "erc721-royalty"
	case AssetERC1155:
		return "erc1155"
	case AssetERC1155Royalty:
		return "erc1155-royalty"
	default:
		return "unknown"
	}
}

// Listing represents one seller's offer of a quantity of one asset at a fixed
// unit price. A seller holds at most one listing per (assetContract, assetId)
// pair; the triple forms the natural key.
type Listing struct {
	// ListPointer is the listing's index in the global ledger; PairPointer is
	// the seller's index in the per-pair seller list. Both are stable until
	// removal and are patched when a swap-and-pop moves the entry.
	ListPointer int
	PairPointer int

	Seller        [20]byte
	AssetContract [20]byte
	AssetID       *big.Int
	UnitPrice     *big.Int
	Amount        *big.Int
	PaymentToken  [20]byte
	Kind          AssetKind

	RoyaltyReceiver [20]byte
	UnitRoyalty     *big.Int

	ReservedUntil int64
	ReservedFor   [20]byte

	CreatedAt int64
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.AssetID = cloneBigInt(l.AssetID)
	clone.UnitPrice = cloneBigInt(l.UnitPrice)
	clone.Amount = cloneBigInt(l.Amount)
	clone.UnitRoyalty = cloneBigInt(l.UnitRoyalty)
	return &clone
}

// ID returns the listing's natural key hash.
func (l *Listing) ID() [32]byte {
	return ListingID(l.Seller, l.AssetContract, l.AssetID)
}

// Pair returns the (assetContract, assetId) pair hash.
func (l *Listing) Pair() [32]byte {
	return PairID(l.AssetContract, l.AssetID)
}

// ReservedAgainst reports whether an active reservation blocks the given buyer
// at the provided time.
func (l *Listing) ReservedAgainst(buyer [20]byte, now int64) bool {
	if l.ReservedUntil <= now {
		return false
	}
	return buyer != l.ReservedFor
}

// ListingID derives the natural key hash for a (seller, assetContract,
// assetId) triple.
func ListingID(seller, assetContract [20]byte, assetID *big.Int) [32]byte {
	id := assetIDBytes(assetID)
	return ethcrypto.Keccak256Hash(seller[:], assetContract[:], id[:])
}

// PairID derives the hash identifying an (assetContract, assetId) pair.
func PairID(assetContract [20]byte, assetID *big.Int) [32]byte {
	id := assetIDBytes(assetID)
	return ethcrypto.Keccak256Hash(assetContract[:], id[:])
}

func assetIDBytes(assetID *big.Int) [32]byte {
	var out [32]byte
	if assetID == nil {
		return out
	}
	assetID.FillBytes(out[:])
	return out
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil big.Int fields. The original is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	clone := l.Clone()
	if clone.AssetID == nil {
		clone.AssetID = big.NewInt(0)
	}
	if clone.AssetID.Sign() < 0 {
		return nil, fmt.Errorf("market: asset id must be non-negative")
	}
	if clone.UnitPrice == nil || clone.UnitPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if clone.Amount == nil || clone.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !clone.Kind.Valid() {
		return nil, fmt.Errorf("market: invalid asset kind: %d", clone.Kind)
	}
	if !clone.Kind.SemiFungible() && clone.Amount.Cmp(big.NewInt(1)) != 0 {
		return nil, fmt.Errorf("market: ERC721 listings carry exactly one unit")
	}
	if clone.UnitRoyalty == nil {
		clone.UnitRoyalty = big.NewInt(0)
	}
	if clone.UnitRoyalty.Sign() < 0 {
		return nil, fmt.Errorf("market: unit royalty must be non-negative")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
