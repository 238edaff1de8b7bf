package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "nftmarket/native/common"
	"nftmarket/native/fees"
	"nftmarket/native/market"
)

type listParams struct {
	Caller        string `json:"caller"`
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
	Amount        string `json:"amount"`
	UnitPrice     string `json:"unitPrice"`
	PaymentToken  string `json:"paymentToken"`
}

type buyParams struct {
	Caller        string `json:"caller"`
	Seller        string `json:"seller"`
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
	Amount        string `json:"amount"`
}

type listingKeyParams struct {
	Seller        string `json:"seller"`
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
}

type unlistParams struct {
	Caller        string `json:"caller"`
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
}

type unlistStaleParams struct {
	Caller        string `json:"caller"`
	Seller        string `json:"seller"`
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
}

type reserveParams struct {
	Caller        string `json:"caller"`
	Seller        string `json:"seller"`
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
	ReservedFor   string `json:"reservedFor"`
	DurationSecs  int64  `json:"durationSecs"`
}

type withdrawParams struct {
	Caller       string `json:"caller"`
	PaymentToken string `json:"paymentToken"`
}

type paymentTokenParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
}

type feeParams struct {
	Caller      string `json:"caller"`
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
}

type walletParams struct {
	Caller string `json:"caller"`
	Wallet string `json:"wallet"`
}

type pauseParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type pairParams struct {
	AssetContract string `json:"assetContract"`
	AssetID       string `json:"assetId"`
}

type balanceParams struct {
	PaymentToken string `json:"paymentToken"`
	Account      string `json:"account"`
}

type listingJSON struct {
	Seller          string `json:"seller"`
	AssetContract   string `json:"assetContract"`
	AssetID         string `json:"assetId"`
	UnitPrice       string `json:"unitPrice"`
	Amount          string `json:"amount"`
	PaymentToken    string `json:"paymentToken"`
	AssetKind       string `json:"assetKind"`
	RoyaltyReceiver string `json:"royaltyReceiver,omitempty"`
	UnitRoyalty     string `json:"unitRoyalty"`
	ReservedUntil   int64  `json:"reservedUntil,omitempty"`
	ReservedFor     string `json:"reservedFor,omitempty"`
	CreatedAt       int64  `json:"createdAt"`
}

type royaltyJSON struct {
	Receiver   string `json:"receiver"`
	UnitAmount string `json:"unitAmount"`
}

type balanceJSON struct {
	PaymentToken string `json:"paymentToken"`
	Account      string `json:"account"`
	Amount       string `json:"amount"`
}

type withdrawResult struct {
	Amount string `json:"amount"`
}

type statusJSON struct {
	StateRoot string `json:"stateRoot"`
}

func listingToJSON(l *market.Listing) *listingJSON {
	if l == nil {
		return nil
	}
	out := &listingJSON{
		Seller:        addressHex(l.Seller),
		AssetContract: addressHex(l.AssetContract),
		AssetID:       l.AssetID.String(),
		UnitPrice:     l.UnitPrice.String(),
		Amount:        l.Amount.String(),
		PaymentToken:  addressHex(l.PaymentToken),
		AssetKind:     l.Kind.String(),
		UnitRoyalty:   l.UnitRoyalty.String(),
		ReservedUntil: l.ReservedUntil,
		CreatedAt:     l.CreatedAt,
	}
	if l.RoyaltyReceiver != ([20]byte{}) {
		out.RoyaltyReceiver = addressHex(l.RoyaltyReceiver)
	}
	if l.ReservedFor != ([20]byte{}) {
		out.ReservedFor = addressHex(l.ReservedFor)
	}
	return out
}

func addressHex(addr [20]byte) string {
	return ethcommon.Address(addr).Hex()
}

func parseAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", value)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("missing integer value")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return parsed, nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// marketError maps engine failures onto stable RPC error codes so callers can
// branch on the category.
func marketError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, market.ErrNotListed), errors.Is(err, market.ErrNotListedForSender):
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, "not_found", err.Error())
	case errors.Is(err, market.ErrNotAdmin),
		errors.Is(err, market.ErrNotReserver),
		errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusForbidden, id, codeMarketForbidden, "forbidden", err.Error())
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrInsufficientAmount),
		errors.Is(err, market.ErrReserved),
		errors.Is(err, market.ErrStillValid),
		errors.Is(err, market.ErrNoBalance):
		writeError(w, http.StatusConflict, id, codeMarketConflict, "conflict", err.Error())
	case errors.Is(err, market.ErrInvalidPaymentToken),
		errors.Is(err, market.ErrNotERC165),
		errors.Is(err, market.ErrUnknownAssetType),
		errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotApproved),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrDurationTooLong),
		errors.Is(err, fees.ErrInvalidDenominator),
		errors.Is(err, fees.ErrInvalidWallet):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "server_error", err.Error())
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params listParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	paymentToken, err := parseAddress(params.PaymentToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	unitPrice, err := parseBigInt(params.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.node.List(caller, assetContract, assetID, amount, unitPrice, paymentToken)
	if err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params buyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Buy(caller, seller, assetContract, assetID, amount); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleUnlist(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params unlistParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Unlist(caller, assetContract, assetID); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleUnlistStale(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params unlistStaleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.UnlistStale(caller, seller, assetContract, assetID); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params reserveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	reservedFor, err := parseAddress(params.ReservedFor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Reserve(caller, seller, assetContract, assetID, reservedFor, params.DurationSecs); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	paymentToken, err := parseAddress(params.PaymentToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.node.Withdraw(caller, paymentToken)
	if err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawResult{Amount: amount.String()})
}

func (s *Server) handleAddPaymentToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params paymentTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	token, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AddPaymentToken(caller, token); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleRemovePaymentToken(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params paymentTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	token, err := parseAddress(params.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RemovePaymentToken(caller, token); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleChangeProtocolFee(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params feeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	numerator, err := parseBigInt(params.Numerator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	denominator, err := parseBigInt(params.Denominator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ChangeProtocolFee(caller, numerator, denominator); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleChangeProtocolWallet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params walletParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	wallet, err := parseAddress(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ChangeProtocolWallet(caller, wallet); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params pauseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SetPaused(caller, params.Paused); err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetListing(w http.ResponseWriter, req *RPCRequest) {
	var params listingKeyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.node.GetListing(seller, assetContract, assetID)
	if err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
}

func (s *Server) handleGetAllListings(w http.ResponseWriter, req *RPCRequest) {
	listings, err := s.node.AllListings()
	if err != nil {
		marketError(w, req.ID, err)
		return
	}
	out := make([]*listingJSON, len(listings))
	for i, l := range listings {
		out[i] = listingToJSON(l)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetSellers(w http.ResponseWriter, req *RPCRequest) {
	var params pairParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sellers, err := s.node.Sellers(assetContract, assetID)
	if err != nil {
		marketError(w, req.ID, err)
		return
	}
	out := make([]string, len(sellers))
	for i, seller := range sellers {
		out[i] = addressHex(seller)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetUnitRoyalties(w http.ResponseWriter, req *RPCRequest) {
	var params listingKeyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetContract, err := parseAddress(params.AssetContract)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseBigInt(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	receiver, unitAmount, err := s.node.UnitRoyalties(seller, assetContract, assetID)
	if err != nil {
		marketError(w, req.ID, err)
		return
	}
	result := royaltyJSON{Receiver: addressHex(receiver), UnitAmount: "0"}
	if unitAmount != nil {
		result.UnitAmount = unitAmount.String()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	paymentToken, err := parseAddress(params.PaymentToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.Balance(paymentToken, account)
	if err != nil {
		marketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceJSON{
		PaymentToken: params.PaymentToken,
		Account:      params.Account,
		Amount:       balance.String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, statusJSON{StateRoot: hex.EncodeToString(s.node.StateRoot())})
}
