package market

import (
	"fmt"
	"math/big"
)

// ResolveRoyalty determines the royalty receiver and per-unit royalty amount
// for an asset at the given unit price. The decision order is:
//
//  1. The contract advertises the royalty extension: query it at the unit
//     price and use the answer verbatim.
//  2. The contract exposes a legacy single-owner accessor: record that owner
//     as receiver with a zero amount, so no fee is charged but the receiver
//     is known for potential future configuration.
//  3. Neither: zero receiver, zero amount.
//
// A contract satisfying tier 1 never falls through to tier 2; a failing
// royalty query aborts the listing instead. The resolution is side-effect
// free and evaluated once at listing time.
func ResolveRoyalty(asset AssetContract, kind AssetKind, assetID, unitPrice *big.Int) ([20]byte, *big.Int, error) {
	if kind.HasRoyalty() {
		royaltyToken, ok := asset.(RoyaltyToken)
		if !ok {
			return [20]byte{}, nil, fmt.Errorf("market: contract advertises royalty support but exposes no royalty query")
		}
		receiver, amount, err := royaltyToken.RoyaltyInfo(assetID, unitPrice)
		if err != nil {
			return [20]byte{}, nil, fmt.Errorf("market: royalty query failed: %w", err)
		}
		if amount == nil {
			amount = big.NewInt(0)
		}
		if amount.Sign() < 0 {
			return [20]byte{}, nil, fmt.Errorf("market: negative royalty amount")
		}
		return receiver, new(big.Int).Set(amount), nil
	}
	if owned, ok := asset.(OwnedToken); ok {
		owner, err := owned.Owner()
		if err == nil {
			return owner, big.NewInt(0), nil
		}
		// The accessor exists but does not answer; treat it as absent.
	}
	return [20]byte{}, big.NewInt(0), nil
}
