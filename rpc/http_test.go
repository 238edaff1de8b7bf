package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"nftmarket/native/market"
)

type stubNode struct {
	listing  *market.Listing
	listErr  error
	balances map[[20]byte]*big.Int
}

func newStubNode() *stubNode {
	return &stubNode{balances: make(map[[20]byte]*big.Int)}
}

func (n *stubNode) List(caller, assetContract [20]byte, assetID, amount, unitPrice *big.Int, paymentToken [20]byte) (*market.Listing, error) {
	if n.listErr != nil {
		return nil, n.listErr
	}
	n.listing = &market.Listing{
		Seller:        caller,
		AssetContract: assetContract,
		AssetID:       assetID,
		UnitPrice:     unitPrice,
		Amount:        amount,
		PaymentToken:  paymentToken,
		Kind:          market.AssetERC1155,
		UnitRoyalty:   big.NewInt(0),
	}
	return n.listing, nil
}

func (n *stubNode) Buy(caller, seller, assetContract [20]byte, assetID, amount *big.Int) error {
	return nil
}

func (n *stubNode) Unlist(caller, assetContract [20]byte, assetID *big.Int) error { return nil }

func (n *stubNode) UnlistStale(caller, seller, assetContract [20]byte, assetID *big.Int) error {
	return nil
}

func (n *stubNode) Reserve(caller, seller, assetContract [20]byte, assetID *big.Int, reservedFor [20]byte, durationSecs int64) error {
	return nil
}

func (n *stubNode) Withdraw(caller, paymentToken [20]byte) (*big.Int, error) {
	return big.NewInt(5), nil
}

func (n *stubNode) AddPaymentToken(caller, token [20]byte) error    { return nil }
func (n *stubNode) RemovePaymentToken(caller, token [20]byte) error { return nil }

func (n *stubNode) ChangeProtocolFee(caller [20]byte, numerator, denominator *big.Int) error {
	return nil
}

func (n *stubNode) ChangeProtocolWallet(caller, wallet [20]byte) error { return nil }

func (n *stubNode) SetPaused(caller [20]byte, paused bool) error { return nil }

func (n *stubNode) GetListing(seller, assetContract [20]byte, assetID *big.Int) (*market.Listing, error) {
	if n.listing == nil {
		return nil, market.ErrNotListed
	}
	return n.listing, nil
}

func (n *stubNode) AllListings() ([]*market.Listing, error) {
	if n.listing == nil {
		return []*market.Listing{}, nil
	}
	return []*market.Listing{n.listing}, nil
}

func (n *stubNode) Sellers(assetContract [20]byte, assetID *big.Int) ([][20]byte, error) {
	return [][20]byte{}, nil
}

func (n *stubNode) UnitRoyalties(seller, assetContract [20]byte, assetID *big.Int) ([20]byte, *big.Int, error) {
	return [20]byte{}, big.NewInt(0), nil
}

func (n *stubNode) Balance(paymentToken, account [20]byte) (*big.Int, error) {
	if bal, ok := n.balances[account]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

func (n *stubNode) StateRoot() []byte { return []byte{0xAB, 0xCD} }

func newTestServer(node Node, token string) *Server {
	return &Server{
		node:      node,
		authToken: token,
		limiter:   NewRateLimiter(RateLimit{RequestsPerMinute: 6000, Burst: 100}),
	}
}

func post(t *testing.T, s *Server, body string, headers map[string]string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	s.handle(rec, req)
	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHandleRejectsNonPost(t *testing.T) {
	s := newTestServer(newStubNode(), "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handle(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", rec.Code)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	s := newTestServer(newStubNode(), "")
	_, resp := post(t, s, `{"jsonrpc":"2.0","id":1,"method":"market_unknown","params":[]}`, nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method_not_found, got %+v", resp.Error)
	}
}

func TestHandleParseError(t *testing.T) {
	s := newTestServer(newStubNode(), "")
	_, resp := post(t, s, `{not json`, nil)
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse_error, got %+v", resp.Error)
	}
}

func TestMutatingMethodRequiresToken(t *testing.T) {
	s := newTestServer(newStubNode(), "secret")
	body := `{"jsonrpc":"2.0","id":1,"method":"market_list","params":[{"caller":"0x0000000000000000000000000000000000000001","assetContract":"0x0000000000000000000000000000000000000002","assetId":"1","amount":"1","unitPrice":"1","paymentToken":"0x0000000000000000000000000000000000000003"}]}`

	rec, resp := post(t, s, body, nil)
	if rec.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %d %+v", rec.Code, resp.Error)
	}

	_, resp = post(t, s, body, map[string]string{"Authorization": "Bearer secret"})
	if resp.Error != nil {
		t.Fatalf("authorised request failed: %+v", resp.Error)
	}
	var result listingJSON
	raw, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Amount != "1" || result.AssetKind != "erc1155" {
		t.Fatalf("unexpected listing payload: %+v", result)
	}
}

func TestReadMethodSkipsAuth(t *testing.T) {
	s := newTestServer(newStubNode(), "secret")
	_, resp := post(t, s, `{"jsonrpc":"2.0","id":1,"method":"market_status","params":[]}`, nil)
	if resp.Error != nil {
		t.Fatalf("status call failed: %+v", resp.Error)
	}
}

func TestMarketErrorMapping(t *testing.T) {
	node := newStubNode()
	s := newTestServer(node, "")
	_, resp := post(t, s, `{"jsonrpc":"2.0","id":1,"method":"market_getListing","params":[{"seller":"0x0000000000000000000000000000000000000001","assetContract":"0x0000000000000000000000000000000000000002","assetId":"1"}]}`, nil)
	if resp.Error == nil || resp.Error.Code != codeMarketNotFound {
		t.Fatalf("expected market not-found code, got %+v", resp.Error)
	}

	node.listErr = market.ErrNotApproved
	_, resp = post(t, s, `{"jsonrpc":"2.0","id":2,"method":"market_list","params":[{"caller":"0x0000000000000000000000000000000000000001","assetContract":"0x0000000000000000000000000000000000000002","assetId":"1","amount":"1","unitPrice":"1","paymentToken":"0x0000000000000000000000000000000000000003"}]}`, nil)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params mapping for ErrNotApproved, got %+v", resp.Error)
	}
}

func TestInvalidAddressRejected(t *testing.T) {
	s := newTestServer(newStubNode(), "")
	_, resp := post(t, s, `{"jsonrpc":"2.0","id":1,"method":"market_getBalance","params":[{"paymentToken":"nope","account":"0x0000000000000000000000000000000000000001"}]}`, nil)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid_params, got %+v", resp.Error)
	}
}
