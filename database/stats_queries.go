package database

import (
	"time"
)

// PipelineStats is an operator-facing summary of pipeline activity
type PipelineStats struct {
	ReportsPending       int64      `json:"reports_pending"`
	ReportsGenerating    int64      `json:"reports_generating"`
	ReportsCompletedQty  int64      `json:"reports_completed_24h"`
	ReportsFailedQty     int64      `json:"reports_failed_24h"`
	ReportsSuperseded    int64      `json:"reports_superseded_24h"`
	SnapshotsToday       int64      `json:"snapshots_today"`
	TrackedStocks        int64      `json:"tracked_stocks"`
	AvgCompletionSeconds float64    `json:"avg_completion_seconds"`
	LastSnapshotAt       *time.Time `json:"last_snapshot_at,omitempty"`
}

// GetPipelineStats aggregates report and snapshot counters for the ops API
func (s *StatsDB) GetPipelineStats() (*PipelineStats, error) {
	stats := &PipelineStats{}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'generating'),
			COUNT(*) FILTER (WHERE status = 'completed' AND created_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE status = 'failed' AND fail_reason <> 'superseded' AND created_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE status = 'failed' AND fail_reason = 'superseded' AND created_at > NOW() - INTERVAL '24 hours'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - created_at))) FILTER (WHERE completed_at IS NOT NULL), 0)
		FROM reports`

	err := s.conn.QueryRow(query).Scan(
		&stats.ReportsPending,
		&stats.ReportsGenerating,
		&stats.ReportsCompletedQty,
		&stats.ReportsFailedQty,
		&stats.ReportsSuperseded,
		&stats.AvgCompletionSeconds,
	)
	if err != nil {
		return nil, WrapDBError("GetPipelineStats.reports", err)
	}

	snapQuery := `
		SELECT
			COUNT(*) FILTER (WHERE captured_at > DATE_TRUNC('day', NOW())),
			MAX(captured_at)
		FROM price_snapshots`

	var lastSnap *time.Time
	if err := s.conn.QueryRow(snapQuery).Scan(&stats.SnapshotsToday, &lastSnap); err != nil {
		return nil, WrapDBError("GetPipelineStats.snapshots", err)
	}
	stats.LastSnapshotAt = lastSnap

	trackedQuery := `
		SELECT COUNT(DISTINCT stock_id)
		FROM tracking_thresholds
		WHERE alert_enabled = TRUE`
	if err := s.conn.QueryRow(trackedQuery).Scan(&stats.TrackedStocks); err != nil {
		return nil, WrapDBError("GetPipelineStats.tracked", err)
	}

	return stats, nil
}

// DailyReportCount is a per-day completed report count for the ops API
type DailyReportCount struct {
	Day       time.Time `json:"day"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
}

// GetDailyReportCounts returns per-day report outcomes over the last n days
func (s *StatsDB) GetDailyReportCounts(days int) ([]DailyReportCount, error) {
	if days <= 0 {
		days = 7
	}

	query := `
		SELECT
			DATE_TRUNC('day', created_at) AS day,
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM reports
		WHERE created_at > NOW() - ($1 || ' days')::interval
		GROUP BY day
		ORDER BY day DESC`

	rows, err := s.conn.Query(query, days)
	if err != nil {
		return nil, WrapDBError("GetDailyReportCounts", err)
	}
	defer rows.Close()

	var counts []DailyReportCount
	for rows.Next() {
		var c DailyReportCount
		if err := rows.Scan(&c.Day, &c.Completed, &c.Failed); err != nil {
			return nil, WrapDBError("GetDailyReportCounts.scan", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
