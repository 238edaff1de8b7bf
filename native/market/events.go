package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nftmarket/core/types"
)

const (
	EventTypeListed              = "market.listed"
	EventTypeUnlisted            = "market.unlisted"
	EventTypeStaleUnlisted       = "market.stale_unlisted"
	EventTypePurchased           = "market.purchased"
	EventTypeReserved            = "market.reserved"
	EventTypeWithdrawn           = "market.withdrawn"
	EventTypeFeeUpdated          = "market.fee_updated"
	EventTypeWalletUpdated       = "market.wallet_updated"
	EventTypePaymentTokenAdded   = "market.payment_token_added"
	EventTypePaymentTokenRemoved = "market.payment_token_removed"
	EventTypePauseChanged        = "market.pause_changed"
)

// NewListedEvent returns the canonical payload for a freshly created listing.
func NewListedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListed, l, nil)
}

// NewUnlistedEvent returns the payload emitted on a seller-initiated removal.
func NewUnlistedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeUnlisted, l, nil)
}

// NewStaleUnlistedEvent returns the payload emitted when a third party sweeps
// a listing the seller can no longer honour.
func NewStaleUnlistedEvent(l *Listing, caller [20]byte) *types.Event {
	return newListingEvent(EventTypeStaleUnlisted, l, map[string]string{
		"sweeper": hex.EncodeToString(caller[:]),
	})
}

// NewPurchasedEvent returns the payload for a full or partial purchase.
func NewPurchasedEvent(l *Listing, buyer [20]byte, amount, total, fee, royalty *big.Int) *types.Event {
	return newListingEvent(EventTypePurchased, l, map[string]string{
		"buyer":       hex.EncodeToString(buyer[:]),
		"amountSold":  bigString(amount),
		"total":       bigString(total),
		"protocolFee": bigString(fee),
		"royaltyPaid": bigString(royalty),
	})
}

// NewReservedEvent returns the payload emitted when a reservation window is
// stamped on a listing.
func NewReservedEvent(l *Listing, reservedFor [20]byte, reservedUntil int64) *types.Event {
	return newListingEvent(EventTypeReserved, l, map[string]string{
		"reservedFor":   hex.EncodeToString(reservedFor[:]),
		"reservedUntil": strconv.FormatInt(reservedUntil, 10),
	})
}

// NewWithdrawnEvent returns the payload for a pull-payment withdrawal.
func NewWithdrawnEvent(token, account [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeWithdrawn, Attributes: map[string]string{
		"token":   hex.EncodeToString(token[:]),
		"account": hex.EncodeToString(account[:]),
		"amount":  bigString(amount),
	}}
}

// NewFeeUpdatedEvent returns the payload emitted when the protocol fee
// fraction changes.
func NewFeeUpdatedEvent(numerator, denominator *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"numerator":   bigString(numerator),
		"denominator": bigString(denominator),
	}}
}

// NewWalletUpdatedEvent returns the payload emitted when the protocol wallet
// changes.
func NewWalletUpdatedEvent(wallet [20]byte) *types.Event {
	return &types.Event{Type: EventTypeWalletUpdated, Attributes: map[string]string{
		"wallet": hex.EncodeToString(wallet[:]),
	}}
}

// NewPaymentTokenAddedEvent returns the payload emitted when a settlement
// token joins the whitelist.
func NewPaymentTokenAddedEvent(token [20]byte) *types.Event {
	return &types.Event{Type: EventTypePaymentTokenAdded, Attributes: map[string]string{
		"token": hex.EncodeToString(token[:]),
	}}
}

// NewPaymentTokenRemovedEvent returns the payload emitted when a settlement
// token leaves the whitelist.
func NewPaymentTokenRemovedEvent(token [20]byte) *types.Event {
	return &types.Event{Type: EventTypePaymentTokenRemoved, Attributes: map[string]string{
		"token": hex.EncodeToString(token[:]),
	}}
}

// NewPauseChangedEvent returns the payload emitted when the module pause flag
// is toggled.
func NewPauseChangedEvent(paused bool) *types.Event {
	return &types.Event{Type: EventTypePauseChanged, Attributes: map[string]string{
		"paused": strconv.FormatBool(paused),
	}}
}

func newListingEvent(eventType string, l *Listing, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if l != nil {
		id := l.ID()
		attrs["listingId"] = hex.EncodeToString(id[:])
		attrs["seller"] = hex.EncodeToString(l.Seller[:])
		attrs["assetContract"] = hex.EncodeToString(l.AssetContract[:])
		attrs["assetId"] = bigString(l.AssetID)
		attrs["unitPrice"] = bigString(l.UnitPrice)
		attrs["amount"] = bigString(l.Amount)
		attrs["paymentToken"] = hex.EncodeToString(l.PaymentToken[:])
		attrs["assetKind"] = l.Kind.String()
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
