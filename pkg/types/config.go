package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "leafscan/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ModelConfig holds settings for the classifier and its input format.
type ModelConfig struct {
	// Path is the ONNX model file.
	Path string `json:"path" yaml:"path"`

	// LabelsPath is an optional one-label-per-line file. Empty uses the
	// built-in label table.
	LabelsPath string `json:"labels" yaml:"labels"`

	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string `json:"library" yaml:"library"`

	// InputWidth and InputHeight are the model's declared input size (default 224).
	InputWidth  int `json:"width" yaml:"width"`
	InputHeight int `json:"height" yaml:"height"`

	// MinConfidence marks results below this score as uncertain.
	// Zero disables the floor.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
}

// CatalogConfig holds settings for the disease knowledge catalog.
type CatalogConfig struct {
	// Dir overrides the embedded catalogs with <Dir>/<lang>.json files.
	Dir string `json:"dir" yaml:"dir"`

	// Language is the preferred catalog language: en, hi, or mr.
	Language string `json:"language" yaml:"language"`
}

// StoreBackend selects the local persistence implementation.
type StoreBackend string

const (
	StoreAuto   StoreBackend = "auto"
	StoreSQLite StoreBackend = "sqlite"
	StoreMemory StoreBackend = "memory"
)

// StoreConfig holds settings for the local persistence layer.
type StoreConfig struct {
	// Backend selects sqlite, memory, or auto (sqlite with memory fallback).
	Backend StoreBackend `json:"backend" yaml:"backend"`

	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path"`
}

// SyncConfig holds settings for the remote history endpoint and
// connectivity probing.
type SyncConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the remote API root (e.g. "https://api.example.com").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// ProbeURL is requested to decide whether the device is online.
	// Empty probes BaseURL.
	ProbeURL string `json:"probe_url" yaml:"probe_url"`

	// MaxRetries is the number of retries on throttled responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// HistoryTTL is how long a fetched remote history stays fresh (default 24h).
	HistoryTTL time.Duration `json:"history_ttl" yaml:"history_ttl"`

	// PollInterval is how often watch mode probes connectivity (default 30s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// AppConfig groups all component configurations.
type AppConfig struct {
	Model   ModelConfig   `json:"model" yaml:"model"`
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Sync    SyncConfig    `json:"sync" yaml:"sync"`
}
