package models

import "testing"

func TestClampThreshold(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"exact step unchanged", 3.0, 3.0},
		{"snaps up to step", 1.3, 1.5},
		{"snaps down to step", 2.2, 2.0},
		{"midpoint rounds up", 2.25, 2.5},
		{"above max clamps", 12.0, 10.0},
		{"below min clamps", 0.2, 1.0},
		{"min boundary", 1.0, 1.0},
		{"max boundary", 10.0, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampThreshold(tt.in); got != tt.want {
				t.Errorf("ClampThreshold(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecideTrigger(t *testing.T) {
	inflight := func(status string, changePct float64) *Report {
		return &Report{Status: status, TriggerChangePct: changePct}
	}

	tests := []struct {
		name     string
		existing *Report
		newPct   float64
		want     TriggerDecision
	}{
		{"no report for the day creates", nil, 4.0, TriggerCreate},
		{"failed report does not block a retry", inflight(ReportStatusFailed, 4.0), 4.0, TriggerCreate},
		{"completed report closes the day", inflight(ReportStatusCompleted, 4.0), 9.0, TriggerReject},
		{"larger move supersedes pending", inflight(ReportStatusPending, 4.0), 6.0, TriggerSupersede},
		{"larger move supersedes generating", inflight(ReportStatusGenerating, 4.0), 6.0, TriggerSupersede},
		{"equal magnitude keeps the earlier trigger", inflight(ReportStatusPending, 4.0), 4.0, TriggerReject},
		{"smaller move is rejected", inflight(ReportStatusGenerating, 6.0), 4.0, TriggerReject},
		{"magnitude is compared on absolute value", inflight(ReportStatusPending, 4.0), -6.0, TriggerSupersede},
		{"negative in-flight compared on absolute value", inflight(ReportStatusPending, -6.0), 5.0, TriggerReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecideTrigger(tt.existing, tt.newPct); got != tt.want {
				t.Errorf("DecideTrigger = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReportTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{ReportStatusPending, false},
		{ReportStatusGenerating, false},
		{ReportStatusCompleted, true},
		{ReportStatusFailed, true},
	}

	for _, tt := range tests {
		r := &Report{Status: tt.status}
		if got := r.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
