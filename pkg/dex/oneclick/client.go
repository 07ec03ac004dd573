package oneclick

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/rs/zerolog"

	"flashtrade/pkg/dex"
)

// Asset is a token the 1Click service can route.
type Asset struct {
	AssetID         string
	Symbol          string
	Blockchain      string
	ContractAddress string
	Decimals        int32
}

// QuoteRequest asks for an EXACT_INPUT quote. Amount is in base units.
type QuoteRequest struct {
	OriginAsset      string
	DestinationAsset string
	Amount           string
	Recipient        string
	RefundTo         string
	Deadline         time.Time
	Dry              bool
}

// QuoteResult is the service's answer. Live quotes carry a deposit address.
type QuoteResult struct {
	AmountIn       string
	AmountOut      string
	DepositAddress string
	TimeEstimate   time.Duration
}

// ExecutionStatus reports the progress of an intent.
type ExecutionStatus struct {
	Status            string
	UpdatedAt         time.Time
	AmountIn          string
	AmountOut         string
	OriginTxHashes    []string
	DestinationHashes []string
}

// Terminal reports whether the intent can no longer change state.
func (s *ExecutionStatus) Terminal() bool {
	switch s.Status {
	case "SUCCESS", "COMPLETED", "FAILED", "REFUNDED":
		return true
	}
	return false
}

// API is the subset of the 1Click service the adapter uses.
type API interface {
	Tokens(ctx context.Context) ([]Asset, error)
	Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error)
	Status(ctx context.Context, depositAddress string) (*ExecutionStatus, error)
	SubmitDeposit(ctx context.Context, depositAddress, txHash string) error
}

// Client wraps the 1Click SDK.
type Client struct {
	api   *oneclick.APIClient
	token string
	log   zerolog.Logger
}

var _ API = (*Client)(nil)

// NewClient creates a 1Click client. An empty baseURL keeps the SDK default.
func NewClient(baseURL, jwtToken string, timeout time.Duration, log zerolog.Logger) *Client {
	config := oneclick.NewConfiguration()
	if baseURL != "" {
		config.Servers = oneclick.ServerConfigurations{{URL: strings.TrimSuffix(baseURL, "/")}}
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		api:   oneclick.NewAPIClient(config),
		token: jwtToken,
		log:   log.With().Str("component", "oneclick").Logger(),
	}
}

func (c *Client) auth(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return context.WithValue(ctx, oneclick.ContextAccessToken, c.token)
}

// Tokens lists every supported asset.
func (c *Client) Tokens(ctx context.Context) ([]Asset, error) {
	resp, httpResp, err := c.api.OneClickAPI.GetTokens(c.auth(ctx)).Execute()
	if err != nil {
		return nil, c.fail("GetTokens", httpResp, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError("GetTokens", httpResp.StatusCode)
	}

	assets := make([]Asset, 0, len(resp))
	for _, t := range resp {
		assets = append(assets, Asset{
			AssetID:         t.GetAssetId(),
			Symbol:          t.GetSymbol(),
			Blockchain:      strings.ToLower(t.GetBlockchain()),
			ContractAddress: t.GetContractAddress(),
			Decimals:        int32(t.GetDecimals()),
		})
	}
	return assets, nil
}

// Quote requests an EXACT_INPUT quote.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	refundTo := req.RefundTo
	if refundTo == "" {
		refundTo = req.Recipient
	}

	quoteReq := oneclick.NewQuoteRequest(
		req.Dry,
		"EXACT_INPUT",
		100, // slippage tolerance, bps
		req.OriginAsset,
		"ORIGIN_CHAIN",
		req.DestinationAsset,
		req.Amount,
		refundTo,
		"ORIGIN_CHAIN",
		req.Recipient,
		"DESTINATION_CHAIN",
		req.Deadline,
	)

	resp, httpResp, err := c.api.OneClickAPI.GetQuote(c.auth(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		return nil, c.fail("GetQuote", httpResp, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, statusError("GetQuote", httpResp.StatusCode)
	}
	if resp == nil {
		return nil, dex.Errorf(venueID, "GetQuote", dex.ErrQuoteUnavailable, "empty quote response")
	}

	quote := resp.GetQuote()
	return &QuoteResult{
		AmountIn:       quote.GetAmountInFormatted(),
		AmountOut:      quote.GetAmountOutFormatted(),
		DepositAddress: quote.GetDepositAddress(),
		TimeEstimate:   time.Duration(float64(quote.GetTimeEstimate()) * float64(time.Second)),
	}, nil
}

// Status returns the execution status of the intent behind depositAddress.
func (c *Client) Status(ctx context.Context, depositAddress string) (*ExecutionStatus, error) {
	resp, httpResp, err := c.api.OneClickAPI.GetExecutionStatus(c.auth(ctx)).DepositAddress(depositAddress).Execute()
	if err != nil {
		return nil, c.fail("GetExecutionStatus", httpResp, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError("GetExecutionStatus", httpResp.StatusCode)
	}

	details := resp.GetSwapDetails()
	status := &ExecutionStatus{
		Status:    string(resp.GetStatus()),
		UpdatedAt: resp.GetUpdatedAt(),
	}
	if details.HasAmountInFormatted() {
		status.AmountIn = details.GetAmountInFormatted()
	}
	if details.HasAmountOutFormatted() {
		status.AmountOut = details.GetAmountOutFormatted()
	}
	for _, tx := range details.GetOriginChainTxHashes() {
		if h := tx.GetHash(); h != "" {
			status.OriginTxHashes = append(status.OriginTxHashes, h)
		}
	}
	for _, tx := range details.GetDestinationChainTxHashes() {
		if h := tx.GetHash(); h != "" {
			status.DestinationHashes = append(status.DestinationHashes, h)
		}
	}
	return status, nil
}

// SubmitDeposit tells the service which transaction funded depositAddress.
func (c *Client) SubmitDeposit(ctx context.Context, depositAddress, txHash string) error {
	req := oneclick.NewSubmitDepositTxRequest(depositAddress, txHash)

	_, httpResp, err := c.api.OneClickAPI.SubmitDepositTx(c.auth(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return c.fail("SubmitDepositTx", httpResp, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return statusError("SubmitDepositTx", httpResp.StatusCode)
	}
	return nil
}

// fail extracts the service's error message when the response carries one.
func (c *Client) fail(op string, httpResp *http.Response, err error) error {
	if httpResp == nil {
		kind := dex.ErrProviderUnavailable
		if isTimeout(err) {
			kind = dex.ErrProviderTimeout
		}
		return dex.NewError(venueID, op, kind, err)
	}
	defer httpResp.Body.Close()

	msg := err.Error()
	if body, readErr := io.ReadAll(httpResp.Body); readErr == nil && len(body) > 0 {
		var errorResp map[string]interface{}
		if jsonErr := json.Unmarshal(body, &errorResp); jsonErr == nil {
			if message, ok := errorResp["message"].(string); ok {
				msg = message
			} else if errs, ok := errorResp["errors"]; ok {
				msg = fmt.Sprint(errs)
			}
		} else {
			msg = string(body)
		}
	}

	c.log.Debug().Str("op", op).Int("status", httpResp.StatusCode).Str("message", msg).Msg("1click request failed")
	return dex.Errorf(venueID, op, kindForStatus(httpResp.StatusCode), "API error (status %d): %s", httpResp.StatusCode, msg)
}

func statusError(op string, code int) error {
	return dex.Errorf(venueID, op, kindForStatus(code), "API returned status code %d", code)
}

// kindForStatus maps client errors to an unavailable quote and everything
// else to an unavailable provider.
func kindForStatus(code int) error {
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return dex.ErrProviderTimeout
	case code >= 400 && code < 500 && code != http.StatusUnauthorized && code != http.StatusTooManyRequests:
		return dex.ErrQuoteUnavailable
	default:
		return dex.ErrProviderUnavailable
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}
