package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const krxProviderName = "krx"

// KRXClient pulls current quotes from the KRX market data gateway
type KRXClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewKRXClient creates a new market data client
func NewKRXClient(baseURL, apiKey string, timeoutSeconds int) *KRXClient {
	return &KRXClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(timeoutSeconds),
	}
}

// krxQuoteResponse is the gateway's wire format for a single quote
type krxQuoteResponse struct {
	Code      string  `json:"code"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	Timestamp string  `json:"timestamp"`
}

// Pull fetches the latest price/volume observation for a symbol
func (c *KRXClient) Pull(ctx context.Context, symbol string) (*Quote, error) {
	endpoint := fmt.Sprintf("%s/quotes/%s", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("krx: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(krxProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(krxProviderName, resp.StatusCode)
	}

	var body krxQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, Transient(krxProviderName, fmt.Errorf("decode quote: %w", err))
	}

	ts := time.Now()
	if body.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, body.Timestamp); err == nil {
			ts = parsed
		}
	}

	return &Quote{
		Symbol:    symbol,
		Price:     body.Price,
		ChangePct: body.ChangePct,
		Volume:    body.Volume,
		Timestamp: ts,
	}, nil
}
