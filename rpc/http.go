package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftmarket/native/market"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeMarketNotFound  = -32031
	codeMarketForbidden = -32032
	codeMarketConflict  = -32033
)

// Node is the marketplace surface the RPC server exposes. gateway.Gateway
// satisfies it.
type Node interface {
	List(caller, assetContract [20]byte, assetID, amount, unitPrice *big.Int, paymentToken [20]byte) (*market.Listing, error)
	Buy(caller, seller, assetContract [20]byte, assetID, amount *big.Int) error
	Unlist(caller, assetContract [20]byte, assetID *big.Int) error
	UnlistStale(caller, seller, assetContract [20]byte, assetID *big.Int) error
	Reserve(caller, seller, assetContract [20]byte, assetID *big.Int, reservedFor [20]byte, durationSecs int64) error
	Withdraw(caller, paymentToken [20]byte) (*big.Int, error)
	AddPaymentToken(caller, token [20]byte) error
	RemovePaymentToken(caller, token [20]byte) error
	ChangeProtocolFee(caller [20]byte, numerator, denominator *big.Int) error
	ChangeProtocolWallet(caller, wallet [20]byte) error
	SetPaused(caller [20]byte, paused bool) error
	GetListing(seller, assetContract [20]byte, assetID *big.Int) (*market.Listing, error)
	AllListings() ([]*market.Listing, error)
	Sellers(assetContract [20]byte, assetID *big.Int) ([][20]byte, error)
	UnitRoyalties(seller, assetContract [20]byte, assetID *big.Int) ([20]byte, *big.Int, error)
	Balance(paymentToken, account [20]byte) (*big.Int, error)
	StateRoot() []byte
}

// Server exposes the marketplace over JSON-RPC 2.0. Mutating methods require
// the bearer token from NFTMARKET_RPC_TOKEN when one is configured.
type Server struct {
	node      Node
	authToken string
	limiter   *RateLimiter
}

// NewServer creates an RPC server fronting the provided node.
func NewServer(node Node, limit RateLimit) *Server {
	token := strings.TrimSpace(os.Getenv("NFTMARKET_RPC_TOKEN"))
	return &Server{
		node:      node,
		authToken: token,
		limiter:   NewRateLimiter(limit),
	}
}

// Start serves JSON-RPC on addr until the listener fails. Prometheus metrics
// are exposed on /metrics.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	if !s.limiter.Allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}

	switch req.Method {
	case "market_list":
		s.handleList(w, r, &req)
	case "market_buy":
		s.handleBuy(w, r, &req)
	case "market_unlist":
		s.handleUnlist(w, r, &req)
	case "market_unlistStale":
		s.handleUnlistStale(w, r, &req)
	case "market_reserve":
		s.handleReserve(w, r, &req)
	case "market_withdraw":
		s.handleWithdraw(w, r, &req)
	case "market_addPaymentToken":
		s.handleAddPaymentToken(w, r, &req)
	case "market_removePaymentToken":
		s.handleRemovePaymentToken(w, r, &req)
	case "market_changeProtocolFee":
		s.handleChangeProtocolFee(w, r, &req)
	case "market_changeProtocolWallet":
		s.handleChangeProtocolWallet(w, r, &req)
	case "market_setPaused":
		s.handleSetPaused(w, r, &req)
	case "market_getListing":
		s.handleGetListing(w, &req)
	case "market_getAllListings":
		s.handleGetAllListings(w, &req)
	case "market_getSellers":
		s.handleGetSellers(w, &req)
	case "market_getUnitRoyalties":
		s.handleGetUnitRoyalties(w, &req)
	case "market_getBalance":
		s.handleGetBalance(w, &req)
	case "market_status":
		s.handleStatus(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
	}
}

type authError struct {
	Code    int
	Message string
	Data    interface{}
}

func (s *Server) requireAuth(r *http.Request) *authError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &authError{Code: codeUnauthorized, Message: "unauthorized", Data: "bearer token required"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &authError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}
