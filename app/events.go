package app

import (
	"context"
	"log"
	"time"

	"ohmystock/cache"
	models "ohmystock/database/models_pkg"
	"ohmystock/notifications"
	"ohmystock/realtime"
)

const reportEventsChannel = "reports:events"

// EventDispatcher fans terminal report events out to webhooks, the websocket
// broker, and the Redis pub/sub channel. Every sink is optional and best
// effort; dispatch never blocks the pipeline.
type EventDispatcher struct {
	webhooks *notifications.WebhookManager
	broker   *realtime.Broker
	redis    *cache.RedisClient
}

// NewEventDispatcher creates the report event fan-out
func NewEventDispatcher(webhooks *notifications.WebhookManager, broker *realtime.Broker, redis *cache.RedisClient) *EventDispatcher {
	return &EventDispatcher{webhooks: webhooks, broker: broker, redis: redis}
}

// ReportCompleted dispatches a completed-report event to all sinks
func (d *EventDispatcher) ReportCompleted(report *models.Report, stock *models.Stock) {
	d.dispatch("report_completed", report, stock)
}

// ReportFailed dispatches a failed-report event to all sinks
func (d *EventDispatcher) ReportFailed(report *models.Report, stock *models.Stock) {
	d.dispatch("report_failed", report, stock)
}

func (d *EventDispatcher) dispatch(event string, report *models.Report, stock *models.Stock) {
	if d.webhooks != nil {
		d.webhooks.SendReportEvent(report, stock)
	}

	payload := map[string]interface{}{
		"report_id":          report.ID,
		"stock_code":         stock.Code,
		"stock_name":         stock.Name,
		"trigger_date":       report.TriggerDate,
		"trigger_change_pct": report.TriggerChangePct,
		"status":             report.Status,
		"fail_reason":        report.FailReason,
		"summary":            report.Summary,
	}

	if d.broker != nil {
		d.broker.Broadcast(event, payload)
	}

	if d.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		envelope := map[string]interface{}{"event": event, "payload": payload}
		if err := d.redis.Publish(ctx, reportEventsChannel, envelope); err != nil {
			log.Printf("⚠️  Redis publish failed: %v", err)
		}
	}
}
