package fees

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidDenominator = errors.New("fees: denominator must be positive")
	ErrInvalidWallet      = errors.New("fees: protocol wallet must not be the zero address")
)

// Config captures the protocol fee charged on every settlement. The fee is a
// numerator/denominator fraction of the gross sale total, with the proceeds
// routed to the protocol wallet.
type Config struct {
	Numerator   *big.Int
	Denominator *big.Int
	Wallet      [20]byte
}

// Clone returns a deep copy of the config with duplicated big.Int values.
func (c Config) Clone() Config {
	clone := Config{Wallet: c.Wallet}
	if c.Numerator != nil {
		clone.Numerator = new(big.Int).Set(c.Numerator)
	} else {
		clone.Numerator = big.NewInt(0)
	}
	if c.Denominator != nil {
		clone.Denominator = new(big.Int).Set(c.Denominator)
	} else {
		clone.Denominator = big.NewInt(0)
	}
	return clone
}

// Validate reports whether the config can be applied to settlements. The
// numerator may be zero (fee-free marketplace) but must not exceed the
// denominator, and the wallet must be a real address.
func (c Config) Validate() error {
	if c.Denominator == nil || c.Denominator.Sign() <= 0 {
		return ErrInvalidDenominator
	}
	if c.Numerator == nil || c.Numerator.Sign() < 0 {
		return fmt.Errorf("fees: numerator must be non-negative")
	}
	if c.Numerator.Cmp(c.Denominator) > 0 {
		return fmt.Errorf("fees: numerator exceeds denominator")
	}
	if c.Wallet == ([20]byte{}) {
		return ErrInvalidWallet
	}
	return nil
}

// Fee computes floor(total * numerator / denominator). Integer division
// truncates toward zero, so rounding always favours the payer.
func (c Config) Fee(total *big.Int) *big.Int {
	if total == nil || total.Sign() <= 0 {
		return big.NewInt(0)
	}
	if c.Numerator == nil || c.Numerator.Sign() <= 0 || c.Denominator == nil || c.Denominator.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(total, c.Numerator)
	return fee.Div(fee, c.Denominator)
}

// Breakdown summarises how one settlement's gross total is distributed.
// Total == Fee + Royalty + SellerNet holds exactly.
type Breakdown struct {
	Total     *big.Int
	Fee       *big.Int
	Royalty   *big.Int
	SellerNet *big.Int
}

// Split distributes a sale of `amount` units at `unitPrice` between the
// protocol wallet, the royalty receiver (`unitRoyalty` per unit) and the
// seller.
func Split(cfg Config, unitPrice, unitRoyalty, amount *big.Int) (Breakdown, error) {
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return Breakdown{}, fmt.Errorf("fees: unit price must be positive")
	}
	if amount == nil || amount.Sign() <= 0 {
		return Breakdown{}, fmt.Errorf("fees: amount must be positive")
	}
	total := new(big.Int).Mul(amount, unitPrice)
	fee := cfg.Fee(total)
	royalty := big.NewInt(0)
	if unitRoyalty != nil && unitRoyalty.Sign() > 0 {
		royalty = new(big.Int).Mul(amount, unitRoyalty)
	}
	sellerNet := new(big.Int).Sub(total, fee)
	sellerNet.Sub(sellerNet, royalty)
	if sellerNet.Sign() < 0 {
		return Breakdown{}, fmt.Errorf("fees: fee and royalty exceed sale total")
	}
	return Breakdown{Total: total, Fee: fee, Royalty: royalty, SellerNet: sellerNet}, nil
}
