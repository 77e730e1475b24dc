// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/leafscan/internal/inference"
	"github.com/pdiddy/leafscan/internal/preprocess"
	"github.com/pdiddy/leafscan/internal/store"
)

func TestDescribeScanError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"model unavailable", fmt.Errorf("%w: no model", inference.ErrModelUnavailable), "rebuilt"},
		{"label mismatch", inference.ErrLabelMismatch, "rebuilt"},
		{"decode", fmt.Errorf("%w: eof", preprocess.ErrDecode), "retake"},
		{"encoding", preprocess.ErrEncoding, "retake"},
		{"inference", inference.ErrInference, "retake"},
		{"invalid tensor", inference.ErrInvalidTensor, "retake"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeScanError(tt.err)
			assert.Contains(t, got.Error(), tt.contains)
			assert.True(t, errors.Is(got, tt.err))
		})
	}

	other := fmt.Errorf("%w: disk full", store.ErrPersistence)
	assert.Equal(t, other, describeScanError(other))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Tomato", truncate("Tomato", 12))
	assert.Equal(t, "Corn (ma...", truncate("Corn (maize) leaf", 11))
	assert.Equal(t, "टमा...", truncate("टमाटर अगेती", 6))
}

func TestAppConfigDefaults(t *testing.T) {
	cfg := appConfig()
	assert.Equal(t, inference.DefaultInputSize, cfg.Model.InputWidth)
	assert.Equal(t, "en", cfg.Catalog.Language)
	assert.Equal(t, "auto", string(cfg.Store.Backend))
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, "24h0m0s", cfg.Sync.HistoryTTL.String())
}

func TestProbeURL(t *testing.T) {
	cfg := appConfig()
	cfg.Sync.BaseURL = "https://api.example.org"
	assert.Equal(t, "https://api.example.org", probeURL(cfg.Sync))
	cfg.Sync.ProbeURL = "https://api.example.org/health"
	assert.Equal(t, "https://api.example.org/health", probeURL(cfg.Sync))
}
