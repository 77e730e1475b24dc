// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// ImageTensor is an RGB image flattened row-major with interleaved
// channels (R,G,B,R,G,B,...). Values are raw 0-255 intensities.
type ImageTensor struct {
	Width  int
	Height int
	Data   []float32
}

// Validate reports an error when Data does not hold exactly
// Width*Height*3 values.
func (t ImageTensor) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("invalid tensor dimensions %dx%d", t.Width, t.Height)
	}
	if want := t.Width * t.Height * 3; len(t.Data) != want {
		return fmt.Errorf("tensor has %d values, want %d (%dx%dx3)", len(t.Data), want, t.Width, t.Height)
	}
	return nil
}

// ClassificationResult is the top class of one forward pass.
type ClassificationResult struct {
	// Index is the position of the winning score in the output vector.
	Index int `json:"index" yaml:"index"`

	// RawLabel is the label table entry at Index.
	RawLabel string `json:"raw_label" yaml:"raw_label"`

	// Confidence is the winning score, in [0, 1].
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Severity grades a completed scan.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Health summarizes the plant state of a completed scan.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDiseased  Health = "diseased"
	HealthUncertain Health = "uncertain"
)

// ScanRecord is one completed prediction in the local history ledger.
type ScanRecord struct {
	// ID is an opaque unique identifier; re-inserting the same ID updates the row.
	ID string `json:"id" yaml:"id"`

	// UserID is empty for scans captured without an authenticated session.
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`

	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	ImageURI        string    `json:"image_uri" yaml:"image_uri"`
	CropType        string    `json:"crop_type" yaml:"crop_type"`
	DiseaseName     string    `json:"disease_name" yaml:"disease_name"`
	ConfidenceScore float64   `json:"confidence_score" yaml:"confidence_score"`
	Severity        Severity  `json:"severity" yaml:"severity"`
	Health          Health    `json:"health" yaml:"health"`

	// Synced is set once the remote endpoint accepted the record. It is
	// never cleared.
	Synced bool `json:"synced" yaml:"synced"`
}

// Anonymous reports whether the record has no owner yet.
func (r ScanRecord) Anonymous() bool {
	return r.UserID == ""
}

// CacheEntry is a cached response keyed by request fingerprint.
type CacheEntry struct {
	Key       string
	JSON      string
	UpdatedAt time.Time

	// TTLSeconds is nil for entries that only expire by explicit invalidation.
	TTLSeconds *int64
}

// IsExpired reports whether the entry is older than its TTL at now.
func (e CacheEntry) IsExpired(now time.Time) bool {
	if e.TTLSeconds == nil {
		return false
	}
	return now.UnixMilli()-e.UpdatedAt.UnixMilli() > *e.TTLSeconds*1000
}
