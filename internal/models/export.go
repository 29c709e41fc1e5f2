package models

import "time"

const ExportVersion = 1

type ExportEnvelope struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Source     string    `json:"source"`
	MCQs       []MCQ     `json:"mcqs"`
}

type ImportResult struct {
	TotalInPayload int      `json:"total_in_payload"`
	Imported       int      `json:"imported"`
	Skipped        int      `json:"skipped"`
	Invalid        int      `json:"invalid"`
	Errors         []string `json:"errors,omitempty"`
}

// MaintenanceReport summarises a cleanup run.
type MaintenanceReport struct {
	DryRun   bool           `json:"dry_run"`
	Counts   map[string]int `json:"counts"`
	Affected []int64        `json:"affected,omitempty"`
}

func NewMaintenanceReport(dryRun bool) *MaintenanceReport {
	return &MaintenanceReport{DryRun: dryRun, Counts: make(map[string]int)}
}
