package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ohmystock/cache"
	"ohmystock/database"
	"ohmystock/database/webhooks"
	"ohmystock/helpers"
)

// HookStore is the registry surface the manager reads hooks from and writes
// delivery logs to
type HookStore interface {
	Active() ([]database.ReportWebhook, error)
	SaveLog(entry *database.ReportWebhookLog) error
}

// WebhookManager delivers report completion/failure events to registered
// webhooks
type WebhookManager struct {
	repo   HookStore
	redis  *cache.RedisClient
	client *http.Client
}

// ReportEventPayload represents the JSON payload sent to webhooks
type ReportEventPayload struct {
	ReportID         uuid.UUID  `json:"ReportID"`
	StockSymbol      string     `json:"StockSymbol"`
	StockName        string     `json:"StockName"`
	Status           string     `json:"Status"`
	FailReason       string     `json:"FailReason,omitempty"`
	TriggerPrice     float64    `json:"TriggerPrice"`
	TriggerChangePct float64    `json:"TriggerChangePct"`
	TriggerDate      string     `json:"TriggerDate"`
	Summary          string     `json:"Summary,omitempty"`
	CompletedAt      *time.Time `json:"CompletedAt,omitempty"`
	Message          string     `json:"Message"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(repo *webhooks.Repository, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendReportEvent delivers a report terminal-state event to matching webhooks.
// Superseded reports are expected churn and are not sent.
func (wm *WebhookManager) SendReportEvent(report *database.Report, stock *database.Stock) {
	if report.FailReason == database.FailReasonSuperseded {
		return
	}

	hooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}

	if len(hooks) == 0 {
		return
	}

	payload := wm.CreatePayload(report, stock)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range hooks {
		if wm.shouldSend(hook, report, stock) {
			go wm.deliverWebhook(hook, report.ID, payloadBytes)
		}
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]database.ReportWebhook, error) {
	// Try cache first
	cacheKey := "active_webhooks"
	if wm.redis != nil {
		var cached []database.ReportWebhook
		if err := wm.redis.Get(context.Background(), cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	hooks, err := wm.repo.Active()
	if err != nil {
		return nil, err
	}

	// Update cache (expire 1 hour)
	if wm.redis != nil {
		_ = wm.redis.Set(context.Background(), cacheKey, hooks, 1*time.Hour)
	}

	return hooks, nil
}

// CreatePayload generates the webhook payload for a report event
func (wm *WebhookManager) CreatePayload(report *database.Report, stock *database.Stock) ReportEventPayload {
	symbol := ""
	name := ""
	if stock != nil {
		symbol = stock.Code
		name = stock.Name
	}

	var message string
	switch report.Status {
	case database.ReportStatusCompleted:
		message = fmt.Sprintf("📈 SPIKE REPORT READY: %s (%s) moved %s at %s - %s",
			name, symbol,
			helpers.FormatSignedPct(report.TriggerChangePct),
			helpers.FormatKRW(report.TriggerPrice),
			report.Summary,
		)
	default:
		message = fmt.Sprintf("⚠️ SPIKE ANALYSIS FAILED: %s (%s) moved %s - could not complete analysis",
			name, symbol,
			helpers.FormatSignedPct(report.TriggerChangePct),
		)
	}

	return ReportEventPayload{
		ReportID:         report.ID,
		StockSymbol:      symbol,
		StockName:        name,
		Status:           report.Status,
		FailReason:       report.FailReason,
		TriggerPrice:     report.TriggerPrice,
		TriggerChangePct: report.TriggerChangePct,
		TriggerDate:      report.TriggerDate,
		Summary:          report.Summary,
		CompletedAt:      report.CompletedAt,
		Message:          message,
	}
}

func (wm *WebhookManager) shouldSend(hook database.ReportWebhook, report *database.Report, stock *database.Stock) bool {
	// Check stock symbol filter
	if hook.StockSymbols != "" && hook.StockSymbols != "null" && stock != nil {
		// Lenient check: matches if the symbol is present in the string (JSON or CSV)
		if !strings.Contains(hook.StockSymbols, stock.Code) {
			return false
		}
	}

	// Check minimum absolute change filter
	if hook.MinChangePct != nil {
		change := report.TriggerChangePct
		if change < 0 {
			change = -change
		}
		if change < *hook.MinChangePct {
			return false
		}
	}

	return true
}

func (wm *WebhookManager) deliverWebhook(hook database.ReportWebhook, reportID uuid.UUID, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, _ := http.NewRequest(hook.Method, hook.URL, bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "OhMyStock-Report-Alert/1.0")

		log.Printf("🔹 Sending webhook to %s (Attempt %d/%d)", hook.URL, attempt, maxRetries)

		// Auth headers
		if hook.AuthType == "BEARER" {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		resp, err = wm.client.Do(req)
		if err == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				wm.logDelivery(hook.ID, reportID, "SUCCESS", resp.StatusCode, "", attempt)
				resp.Body.Close()
				return
			}
			if attempt < maxRetries {
				// Release the rejected response before retrying; only the
				// final one is kept for the failure log.
				resp.Body.Close()
			}
		}

		if attempt < maxRetries {
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	// Failed
	errMsg := ""
	statusCode := 0
	if err != nil {
		errMsg = err.Error()
	} else if resp != nil {
		statusCode = resp.StatusCode
		resp.Body.Close()
	}

	wm.logDelivery(hook.ID, reportID, "FAILED", statusCode, errMsg, maxRetries)
}

func (wm *WebhookManager) logDelivery(webhookID int, reportID uuid.UUID, status string, code int, errMsg string, attempt int) {
	logEntry := &database.ReportWebhookLog{
		WebhookID:    webhookID,
		ReportID:     &reportID,
		TriggeredAt:  time.Now(),
		Status:       status,
		RetryAttempt: attempt,
	}

	if code != 0 {
		logEntry.HTTPStatusCode = &code
	}
	if errMsg != "" {
		logEntry.ErrorMessage = errMsg
	}

	if dbErr := wm.repo.SaveLog(logEntry); dbErr != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", dbErr)
	}
}

// RefreshCache reloads webhook configurations
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), "active_webhooks")
		log.Println("🔄 Webhook cache invalidated")
	}
}
