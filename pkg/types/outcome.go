// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for paperfetch: run
// configuration, per-title retrieval outcomes, and batch statistics.
package types

import (
	"strings"
	"time"
)

// Status is the final state of one title in a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// RetrievalOutcome records what happened to one title. It is created once
// per title per run and never changed after the planner finishes.
type RetrievalOutcome struct {
	// Title is the normalized identifier.
	Title string `json:"title" yaml:"title"`

	// Status is success, failure, or skipped.
	Status Status `json:"status" yaml:"status"`

	// Method names the source that produced the artifact (success only).
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// Error is the last error seen (failure) or the skip reason.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// SavePath is the artifact path, whether or not it was written.
	SavePath string `json:"save_path" yaml:"save_path"`
}

// Stats counts outcomes by status.
type Stats struct {
	Success int `json:"success" yaml:"success"`
	Fail    int `json:"fail" yaml:"fail"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Add counts one outcome.
func (s *Stats) Add(o RetrievalOutcome) {
	switch o.Status {
	case StatusSuccess:
		s.Success++
	case StatusSkipped:
		s.Skipped++
	default:
		s.Fail++
	}
}

// Total returns the number of titles accounted for.
func (s Stats) Total() int {
	return s.Success + s.Fail + s.Skipped
}

// RunSummary is written as YAML at the end of every run.
type RunSummary struct {
	RunID       string        `yaml:"run_id"`
	Stats       Stats         `yaml:"stats"`
	StartedAt   time.Time     `yaml:"started_at"`
	FinishedAt  time.Time     `yaml:"finished_at"`
	Duration    time.Duration `yaml:"duration"`
	Interrupted bool          `yaml:"interrupted"`
	Input       string        `yaml:"input"`
	SaveDir     string        `yaml:"save_dir"`
	Ledger      string        `yaml:"ledger"`

	// KnownGoodMirrors lists mirrors that served at least one artifact,
	// in discovery order. Mirror health is not carried into the next run.
	KnownGoodMirrors []string `yaml:"known_good_mirrors,omitempty"`
}

// NormalizeTitle collapses runs of whitespace and trims the ends.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
