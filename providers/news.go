package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const newsProviderName = "news"

// NewsClient fetches recent news articles mentioning a stock
type NewsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewNewsClient creates a new news provider client
func NewNewsClient(baseURL, apiKey string, timeoutSeconds int) *NewsClient {
	return &NewsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(timeoutSeconds),
	}
}

// Name identifies the provider in logs and stage results
func (c *NewsClient) Name() string {
	return newsProviderName
}

type newsArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
}

type newsListResponse struct {
	Articles []newsArticle `json:"articles"`
}

// Fetch returns recent news articles for a symbol within the window
func (c *NewsClient) Fetch(ctx context.Context, symbol string, window time.Duration) ([]ContextItem, error) {
	since := time.Now().Add(-window)

	params := url.Values{}
	params.Set("query", symbol)
	params.Set("since", since.Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/articles?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("news: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(newsProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(newsProviderName, resp.StatusCode)
	}

	var body newsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, Transient(newsProviderName, fmt.Errorf("decode articles: %w", err))
	}

	items := make([]ContextItem, 0, len(body.Articles))
	for _, a := range body.Articles {
		item := ContextItem{
			SourceType: "news",
			Title:      a.Title,
			URL:        a.URL,
		}
		if a.PublishedAt != "" {
			if parsed, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
				item.PublishedAt = &parsed
			}
		}
		items = append(items, item)
	}
	return items, nil
}
