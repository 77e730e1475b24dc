package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/leafscan/internal/catalog"
	"github.com/pdiddy/leafscan/internal/inference"
	"github.com/pdiddy/leafscan/internal/preprocess"
	"github.com/pdiddy/leafscan/internal/remote"
	"github.com/pdiddy/leafscan/internal/store"
	"github.com/pdiddy/leafscan/pkg/types"
)

func setDefaults() {
	viper.SetDefault("model.path", "model/plant_disease.onnx")
	viper.SetDefault("model.width", inference.DefaultInputSize)
	viper.SetDefault("model.height", inference.DefaultInputSize)
	viper.SetDefault("model.min_confidence", 0.0)
	viper.SetDefault("catalog.language", catalog.DefaultLanguage)
	viper.SetDefault("store.backend", string(types.StoreAuto))
	viper.SetDefault("sync.timeout", 15*time.Second)
	viper.SetDefault("sync.user_agent", "leafscan/"+version)
	viper.SetDefault("sync.max_retries", 3)
	viper.SetDefault("sync.history_ttl", 24*time.Hour)
	viper.SetDefault("sync.poll_interval", 30*time.Second)
}

// appConfig assembles the typed configuration from viper.
func appConfig() types.AppConfig {
	return types.AppConfig{
		Model: types.ModelConfig{
			Path:          viper.GetString("model.path"),
			LabelsPath:    viper.GetString("model.labels"),
			LibraryPath:   viper.GetString("model.library"),
			InputWidth:    viper.GetInt("model.width"),
			InputHeight:   viper.GetInt("model.height"),
			MinConfidence: viper.GetFloat64("model.min_confidence"),
		},
		Catalog: types.CatalogConfig{
			Dir:      viper.GetString("catalog.dir"),
			Language: viper.GetString("catalog.language"),
		},
		Store: types.StoreConfig{
			Backend: types.StoreBackend(viper.GetString("store.backend")),
			Path:    viper.GetString("store.path"),
		},
		Sync: types.SyncConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("sync.timeout"),
				UserAgent: viper.GetString("sync.user_agent"),
			},
			BaseURL:      viper.GetString("sync.base_url"),
			ProbeURL:     viper.GetString("sync.probe_url"),
			MaxRetries:   viper.GetInt("sync.max_retries"),
			HistoryTTL:   viper.GetDuration("sync.history_ttl"),
			PollInterval: viper.GetDuration("sync.poll_interval"),
		},
	}
}

func newEngine(cfg types.ModelConfig) (*inference.Engine, error) {
	labelTable := inference.DefaultLabels()
	if cfg.LabelsPath != "" {
		l, err := inference.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", inference.ErrLabelMismatch, err)
		}
		labelTable = l
	}
	loader := inference.ONNXLoader(inference.ONNXConfig{
		ModelPath:   cfg.Path,
		LibraryPath: cfg.LibraryPath,
		Width:       cfg.InputWidth,
		Height:      cfg.InputHeight,
	})
	return inference.NewEngine(loader, labelTable,
		inference.WithInputSize(cfg.InputWidth, cfg.InputHeight),
		inference.WithLogger(log.WithField("component", "inference")),
	), nil
}

func newResolver(cfg types.CatalogConfig) (*catalog.Resolver, error) {
	src := catalog.Embedded()
	if cfg.Dir != "" {
		src = catalog.NewSource(cfg.Dir)
	}
	return catalog.NewResolver(src, cfg.Language, log.WithField("component", "catalog"))
}

func openStore(ctx context.Context, cfg types.StoreConfig) (store.Store, error) {
	return store.Open(ctx, cfg, log.WithField("component", "store"))
}

func newClient(cfg types.SyncConfig, cache store.Store) *remote.Client {
	opts := []remote.Option{
		remote.WithToken(session.Token),
		remote.WithLogger(log.WithField("component", "remote")),
	}
	if cache != nil {
		opts = append(opts, remote.WithCache(cache))
	}
	return remote.New(cfg, opts...)
}

func probeURL(cfg types.SyncConfig) string {
	if cfg.ProbeURL != "" {
		return cfg.ProbeURL
	}
	return cfg.BaseURL
}

// describeScanError rewrites pipeline errors into what the user should do
// next. The sentinel stays in the chain.
func describeScanError(err error) error {
	switch {
	case errors.Is(err, inference.ErrModelUnavailable), errors.Is(err, inference.ErrLabelMismatch):
		return fmt.Errorf("the disease model could not be loaded; this build of leafscan needs to be rebuilt or its model and onnxruntime library reinstalled (check model.path and model.library): %w", err)
	case errors.Is(err, preprocess.ErrDecode), errors.Is(err, preprocess.ErrEncoding):
		return fmt.Errorf("the photo could not be read; retake it as a JPEG or PNG and try again: %w", err)
	case errors.Is(err, inference.ErrInference), errors.Is(err, inference.ErrInvalidTensor):
		return fmt.Errorf("the photo could not be analysed; retake it and try again: %w", err)
	}
	return err
}
