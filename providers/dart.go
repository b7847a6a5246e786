package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const dartProviderName = "dart"

// DARTClient fetches corporate disclosure filings from the DART open API
type DARTClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewDARTClient creates a new disclosure provider client
func NewDARTClient(baseURL, apiKey string, timeoutSeconds int) *DARTClient {
	return &DARTClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(timeoutSeconds),
	}
}

// Name identifies the provider in logs and stage results
func (c *DARTClient) Name() string {
	return dartProviderName
}

type dartFiling struct {
	Title       string `json:"report_nm"`
	URL         string `json:"report_url"`
	PublishedAt string `json:"rcept_dt"` // YYYYMMDD
}

type dartListResponse struct {
	Status  string       `json:"status"`
	Filings []dartFiling `json:"list"`
}

// Fetch returns recent disclosure filings for a stock code
func (c *DARTClient) Fetch(ctx context.Context, symbol string, window time.Duration) ([]ContextItem, error) {
	since := time.Now().Add(-window)

	params := url.Values{}
	params.Set("crtfc_key", c.apiKey)
	params.Set("stock_code", symbol)
	params.Set("bgn_de", since.Format("20060102"))
	endpoint := fmt.Sprintf("%s/list.json?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dart: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(dartProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(dartProviderName, resp.StatusCode)
	}

	var body dartListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, Transient(dartProviderName, fmt.Errorf("decode filings: %w", err))
	}

	// DART signals "no results" with status 013; that is a valid empty set.
	if body.Status != "" && body.Status != "000" && body.Status != "013" {
		return nil, Permanent(dartProviderName, 0, fmt.Errorf("API status %s", body.Status))
	}

	items := make([]ContextItem, 0, len(body.Filings))
	for _, f := range body.Filings {
		item := ContextItem{
			SourceType: "disclosure",
			Title:      f.Title,
			URL:        f.URL,
		}
		if f.PublishedAt != "" {
			if parsed, err := time.Parse("20060102", f.PublishedAt); err == nil {
				item.PublishedAt = &parsed
			}
		}
		items = append(items, item)
	}
	return items, nil
}
