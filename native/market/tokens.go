package market

import "math/big"

// ERC165-style interface identifiers used by the capability probe.
var (
	InterfaceIDERC165  = [4]byte{0x01, 0xff, 0xc9, 0xa7}
	InterfaceIDERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceIDERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
	InterfaceIDERC2981 = [4]byte{0x2a, 0x55, 0x20, 0x5a}
)

// ERC165 answers a capability query for a given interface identifier.
type ERC165 interface {
	SupportsInterface(id [4]byte) bool
}

// AssetContract is the boundary the engine sees for any listable token
// contract. Concrete transfer operations are reached by asserting to
// ERC721Token or ERC1155Token according to the probed kind.
type AssetContract interface {
	ERC165
}

// ERC721Token is the single-unit non-fungible collaborator boundary.
type ERC721Token interface {
	AssetContract
	OwnerOf(assetID *big.Int) ([20]byte, error)
	IsApprovedForAll(owner, operator [20]byte) bool
	SafeTransferFrom(from, to [20]byte, assetID *big.Int) error
}

// ERC1155Token is the multi-unit semi-fungible collaborator boundary.
type ERC1155Token interface {
	AssetContract
	BalanceOf(owner [20]byte, assetID *big.Int) *big.Int
	IsApprovedForAll(owner, operator [20]byte) bool
	SafeTransferFrom(from, to [20]byte, assetID, amount *big.Int) error
}

// RoyaltyToken is the royalty-extension boundary (ERC2981 shape). RoyaltyInfo
// reports the receiver and royalty amount owed for a sale at the given price.
type RoyaltyToken interface {
	RoyaltyInfo(assetID, salePrice *big.Int) ([20]byte, *big.Int, error)
}

// OwnedToken is the legacy single-owner accessor consulted when a contract
// lacks the royalty extension.
type OwnedToken interface {
	Owner() ([20]byte, error)
}

// ERC20Token is the settlement-token boundary. Transfers out of the
// marketplace vault use the vault address as `from`.
type ERC20Token interface {
	TransferFrom(from, to [20]byte, amount *big.Int) error
	BalanceOf(owner [20]byte) *big.Int
}

// ContractResolver maps on-chain addresses to token collaborator instances.
type ContractResolver interface {
	Asset(addr [20]byte) (AssetContract, bool)
	PaymentToken(addr [20]byte) (ERC20Token, bool)
}

// ProbeAssetKind classifies an asset contract via ERC165 capability queries.
// The probe is evaluated once at listing time and the result cached on the
// listing.
func ProbeAssetKind(asset AssetContract) (AssetKind, error) {
	if asset == nil || !asset.SupportsInterface(InterfaceIDERC165) {
		return AssetUnknown, ErrNotERC165
	}
	royalty := asset.SupportsInterface(InterfaceIDERC2981)
	switch {
	case asset.SupportsInterface(InterfaceIDERC721):
		if royalty {
			return AssetERC721Royalty, nil
		}
		return AssetERC721, nil
	case asset.SupportsInterface(InterfaceIDERC1155):
		if royalty {
			return AssetERC1155Royalty, nil
		}
		return AssetERC1155, nil
	default:
		return AssetUnknown, ErrUnknownAssetType
	}
}
