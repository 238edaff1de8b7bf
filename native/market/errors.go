package market

import "errors"

var (
	// Listing validation.
	ErrInvalidPaymentToken = errors.New("market: payment token not whitelisted")
	ErrNotERC165           = errors.New("market: asset contract does not answer capability queries")
	ErrUnknownAssetType    = errors.New("market: asset contract is neither ERC721 nor ERC1155")
	ErrNotOwner            = errors.New("market: seller does not own the asset")
	ErrNotApproved         = errors.New("market: seller has not approved the marketplace")
	ErrInvalidPrice        = errors.New("market: unit price must be positive")
	ErrInvalidAmount       = errors.New("market: amount must be positive")

	// Registry state conflicts.
	ErrAlreadyListed      = errors.New("market: seller already lists this asset")
	ErrNotListed          = errors.New("market: listing not found")
	ErrNotListedForSender = errors.New("market: caller has no listing for this asset")
	ErrInsufficientAmount = errors.New("market: purchase exceeds remaining amount")
	ErrReserved           = errors.New("market: listing is reserved for another buyer")
	ErrStillValid         = errors.New("market: listing is still backed by the seller")

	// Authorization.
	ErrNotAdmin    = errors.New("market: caller lacks the market admin role")
	ErrNotReserver = errors.New("market: caller lacks the reserver role")

	// Reservation and withdrawal.
	ErrDurationTooLong = errors.New("market: reservation exceeds the maximum period")
	ErrNoBalance       = errors.New("market: no credited balance to withdraw")
)
