// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one scan record in a history export.
type ExportEntry struct {
	ID          string  `json:"id" yaml:"id"`
	UserID      string  `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	CreatedAt   string  `json:"created_at" yaml:"created_at"`
	ImageURI    string  `json:"image_uri" yaml:"image_uri"`
	CropType    string  `json:"crop_type" yaml:"crop_type"`
	DiseaseName string  `json:"disease_name" yaml:"disease_name"`
	Confidence  float64 `json:"confidence_score" yaml:"confidence_score"`
	Severity    string  `json:"severity" yaml:"severity"`
	Health      string  `json:"health" yaml:"health"`
	Synced      bool    `json:"synced" yaml:"synced"`
}

// ExportYAML writes up to limit scan records to w as YAML, newest first.
func ExportYAML(ctx context.Context, s Store, w io.Writer, limit int) error {
	entries, err := exportEntries(ctx, s, limit)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes up to limit scan records to w as indented JSON,
// newest first.
func ExportJSON(ctx context.Context, s Store, w io.Writer, limit int) error {
	entries, err := exportEntries(ctx, s, limit)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func exportEntries(ctx context.Context, s Store, limit int) ([]ExportEntry, error) {
	records, err := s.ListScans(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(records))
	for i, r := range records {
		entries[i] = ExportEntry{
			ID:          r.ID,
			UserID:      r.UserID,
			CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
			ImageURI:    r.ImageURI,
			CropType:    r.CropType,
			DiseaseName: r.DiseaseName,
			Confidence:  r.ConfidenceScore,
			Severity:    string(r.Severity),
			Health:      string(r.Health),
			Synced:      r.Synced,
		}
	}
	return entries, nil
}
