// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperfetch/internal/batch"
	"github.com/pdiddy/paperfetch/internal/fetch"
	"github.com/pdiddy/paperfetch/internal/httputil"
	"github.com/pdiddy/paperfetch/internal/retrieve"
	"github.com/pdiddy/paperfetch/pkg/types"
)

const defaultUserAgent = "paperfetch/0.1 (+https://github.com/pdiddy/paperfetch)"

// defaultSources is the fallback chain when none is configured.
var defaultSources = []string{methodMetadataResolver, methodOpenRepository, methodOpenAccess, methodMirroredHost}

// setDefaults registers every configuration key so environment variables
// and config files can override any of them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("retrieval.timeout", httputil.DefaultRequestTimeout)
	v.SetDefault("retrieval.user_agent", defaultUserAgent)
	v.SetDefault("retrieval.mailto", "")
	v.SetDefault("retrieval.scholar_api_key", "")
	v.SetDefault("retrieval.rate_per_host", 2.0)
	v.SetDefault("retrieval.transport_retries", 2)
	v.SetDefault("retrieval.sources", defaultSources)
	v.SetDefault("retrieval.retries", retrieve.DefaultAttempts)
	v.SetDefault("retrieval.backoff_cap", retrieve.DefaultBackoffCap)
	v.SetDefault("retrieval.download_timeout", fetch.DefaultTimeout)
	v.SetDefault("retrieval.min_pdf_size", fetch.DefaultMinSize)
	v.SetDefault("retrieval.max_pdf_size", fetch.DefaultMaxSize)
	v.SetDefault("retrieval.mirrors", []string{})
	v.SetDefault("retrieval.shuffle_mirrors", false)
	v.SetDefault("retrieval.mirror_pause", 1500*time.Millisecond)
	v.SetDefault("retrieval.endpoints.crossref", "")
	v.SetDefault("retrieval.endpoints.arxiv", "")
	v.SetDefault("retrieval.endpoints.openalex", "")
	v.SetDefault("retrieval.endpoints.semantic_scholar", "")

	v.SetDefault("cache.path", ".paperfetch/cache.db")
	v.SetDefault("cache.flush_every", 10)
	v.SetDefault("cache.flush_interval", 30*time.Second)
	v.SetDefault("cache.disabled", false)

	v.SetDefault("batch.input", "")
	v.SetDefault("batch.save_dir", "papers")
	v.SetDefault("batch.ledger", "download_results.csv")
	v.SetDefault("batch.summary", "")
	v.SetDefault("batch.workers", batch.DefaultConcurrency)

	v.SetDefault("log_file", "paper_download.log")
	v.SetDefault("metrics_addr", "")
}

// loadConfig decodes the merged flags, environment, config file, and
// defaults into a Config.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.Batch.Concurrency <= 0 {
		return cfg, fmt.Errorf("workers must be positive, got %d", cfg.Batch.Concurrency)
	}
	if cfg.Retrieval.Retries <= 0 {
		return cfg, fmt.Errorf("retries must be positive, got %d", cfg.Retrieval.Retries)
	}
	return cfg, nil
}

// bindFlags binds the named flags of cmd to configuration keys. Binding
// happens when the command runs so commands sharing a key do not override
// each other.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}
