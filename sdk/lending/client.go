package lending

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config controls how the Client connects to the ledger RPC endpoint.
type Config struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
}

// Client provides typed helpers over the lending JSON-RPC API.
type Client struct {
	baseURL string
	http    *http.Client
	bearer  string
}

// NewClient constructs a Client from the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		bearer:  strings.TrimSpace(cfg.BearerToken),
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is the error object returned by the ledger RPC endpoint.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call performs a JSON-RPC request to the configured endpoint. Params carries
// at most one positional parameter object.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqBody := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: []any{}}
	if params != nil {
		reqBody.Params = []any{params}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call rpc: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc call failed with status %s", resp.Status)
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

type positionParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type userAssetParams struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
}

type assetParams struct {
	Asset string `json:"asset"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

// HealthFactor is the scaled position health reported by the ledger.
type HealthFactor struct {
	Value    *big.Int
	Infinite bool
}

// Rates is the current borrow and supply rate pair in basis points.
type Rates struct {
	BorrowRateBps uint64 `json:"borrowRateBps"`
	SupplyRateBps uint64 `json:"supplyRateBps"`
}

// Pool mirrors the aggregate market state for one asset.
type Pool struct {
	Asset                    string `json:"asset"`
	TotalLiquidity           string `json:"totalLiquidity"`
	TotalBorrowed            string `json:"totalBorrowed"`
	TotalAccumulatedInterest string `json:"totalAccumulatedInterest"`
	LastInterestUpdate       uint64 `json:"lastInterestUpdate"`
}

// Asset mirrors one configured market.
type Asset struct {
	Asset                string `json:"asset"`
	CollateralFactorBps  uint64 `json:"collateralFactorBps"`
	LiquidationThreshold uint64 `json:"liquidationThresholdBps"`
	LiquidationBonusBps  uint64 `json:"liquidationBonusBps"`
	ReserveFactorBps     uint64 `json:"reserveFactorBps"`
	Decimals             uint8  `json:"decimals"`
	Enabled              bool   `json:"enabled"`
}

func parseAmount(field, value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q in response", field, value)
	}
	return parsed, nil
}

// Supply deposits liquidity on behalf of a user.
func (c *Client) Supply(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	return c.Call(ctx, "lend_supply", positionParams{
		User: user.Hex(), Asset: asset.Hex(), Amount: amount.String(),
	}, nil)
}

// Withdraw redeems supplied liquidity, returning the amount released.
func (c *Client) Withdraw(ctx context.Context, user, asset common.Address, amount *big.Int) (*big.Int, error) {
	var result struct {
		Released string `json:"released"`
	}
	if err := c.Call(ctx, "lend_withdraw", positionParams{
		User: user.Hex(), Asset: asset.Hex(), Amount: amount.String(),
	}, &result); err != nil {
		return nil, err
	}
	return parseAmount("released", result.Released)
}

// Borrow draws liquidity against the user's collateral.
func (c *Client) Borrow(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	return c.Call(ctx, "lend_borrow", positionParams{
		User: user.Hex(), Asset: asset.Hex(), Amount: amount.String(),
	}, nil)
}

// Repay pays down debt, returning the amount actually applied.
func (c *Client) Repay(ctx context.Context, user, asset common.Address, amount *big.Int) (*big.Int, error) {
	var result struct {
		Paid string `json:"paid"`
	}
	if err := c.Call(ctx, "lend_repay", positionParams{
		User: user.Hex(), Asset: asset.Hex(), Amount: amount.String(),
	}, &result); err != nil {
		return nil, err
	}
	return parseAmount("paid", result.Paid)
}

// Liquidate repays part of an unhealthy borrower's debt in exchange for
// collateral. Returns the repaid and seized amounts.
func (c *Client) Liquidate(ctx context.Context, liquidator, borrower, debtAsset, collateralAsset common.Address, debtToCover *big.Int) (*big.Int, *big.Int, error) {
	var result struct {
		Repaid string `json:"repaid"`
		Seized string `json:"seized"`
	}
	if err := c.Call(ctx, "lend_liquidate", map[string]string{
		"liquidator":      liquidator.Hex(),
		"borrower":        borrower.Hex(),
		"debtAsset":       debtAsset.Hex(),
		"collateralAsset": collateralAsset.Hex(),
		"debtToCover":     debtToCover.String(),
	}, &result); err != nil {
		return nil, nil, err
	}
	repaid, err := parseAmount("repaid", result.Repaid)
	if err != nil {
		return nil, nil, err
	}
	seized, err := parseAmount("seized", result.Seized)
	if err != nil {
		return nil, nil, err
	}
	return repaid, seized, nil
}

// GetHealthFactor fetches the current health factor for a user.
func (c *Client) GetHealthFactor(ctx context.Context, user common.Address) (HealthFactor, error) {
	var result struct {
		HealthFactor string `json:"healthFactor"`
		Infinite     bool   `json:"infinite"`
	}
	if err := c.Call(ctx, "lend_getHealthFactor", map[string]string{"user": user.Hex()}, &result); err != nil {
		return HealthFactor{}, err
	}
	value, err := parseAmount("healthFactor", result.HealthFactor)
	if err != nil {
		return HealthFactor{}, err
	}
	return HealthFactor{Value: value, Infinite: result.Infinite}, nil
}

// GetUserSupply fetches the user's supplied balance for an asset.
func (c *Client) GetUserSupply(ctx context.Context, user, asset common.Address) (*big.Int, error) {
	var result amountResult
	if err := c.Call(ctx, "lend_getUserSupply", userAssetParams{User: user.Hex(), Asset: asset.Hex()}, &result); err != nil {
		return nil, err
	}
	return parseAmount("amount", result.Amount)
}

// GetUserDebt fetches the user's interest-inclusive debt for an asset.
func (c *Client) GetUserDebt(ctx context.Context, user, asset common.Address) (*big.Int, error) {
	var result amountResult
	if err := c.Call(ctx, "lend_getUserDebt", userAssetParams{User: user.Hex(), Asset: asset.Hex()}, &result); err != nil {
		return nil, err
	}
	return parseAmount("amount", result.Amount)
}

// GetInterestRates fetches the current rate pair for an asset.
func (c *Client) GetInterestRates(ctx context.Context, asset common.Address) (Rates, error) {
	var result Rates
	err := c.Call(ctx, "lend_calculateInterestRate", assetParams{Asset: asset.Hex()}, &result)
	return result, err
}

// GetAvailableLiquidity fetches the undrawn liquidity for an asset.
func (c *Client) GetAvailableLiquidity(ctx context.Context, asset common.Address) (*big.Int, error) {
	var result amountResult
	if err := c.Call(ctx, "lend_getAvailableLiquidity", assetParams{Asset: asset.Hex()}, &result); err != nil {
		return nil, err
	}
	return parseAmount("amount", result.Amount)
}

// GetPool fetches the aggregate market state for an asset.
func (c *Client) GetPool(ctx context.Context, asset common.Address) (Pool, error) {
	var result Pool
	err := c.Call(ctx, "lend_getPool", assetParams{Asset: asset.Hex()}, &result)
	return result, err
}

// ListAssets fetches every configured market.
func (c *Client) ListAssets(ctx context.Context) ([]Asset, error) {
	var result []Asset
	err := c.Call(ctx, "lend_listAssets", nil, &result)
	return result, err
}
