// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by every component that makes
// network requests.
type HTTPConfig struct {
	// Timeout bounds a single request to a source, transport retries
	// included (default 20s). A mirror walk gives each mirror this budget.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperfetch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// Mailto is the contact address sent to CrossRef and OpenAlex so
	// requests land in their polite pools.
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty" mapstructure:"mailto"`

	// ScholarAPIKey is sent to Semantic Scholar as x-api-key. Requests
	// without one share the anonymous rate limit.
	ScholarAPIKey string `json:"-" yaml:"-" mapstructure:"scholar_api_key"`

	// RatePerHost caps requests per second to any single host. Zero
	// disables limiting.
	RatePerHost float64 `json:"rate_per_host" yaml:"rate_per_host" mapstructure:"rate_per_host"`

	// TransportRetries is the number of transparent retries on HTTP 429 and
	// 502-504 below the planner's own retry loop (default 2).
	TransportRetries int `json:"transport_retries" yaml:"transport_retries" mapstructure:"transport_retries"`
}

// RetrievalConfig holds settings for the retrieval planner, the source
// adapters, and the artifact fetcher.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Sources lists source methods in priority order. Known methods:
	// metadata-resolver, open-repository, open-access, citation-index,
	// mirrored-host.
	Sources []string `json:"sources" yaml:"sources" mapstructure:"sources"`

	// Retries is the number of attempts per source (default 3).
	Retries int `json:"retries" yaml:"retries" mapstructure:"retries"`

	// BackoffCap bounds the delay between attempts of one source (default 10s).
	BackoffCap time.Duration `json:"backoff_cap" yaml:"backoff_cap" mapstructure:"backoff_cap"`

	// DownloadTimeout bounds a single artifact download (default 60s).
	DownloadTimeout time.Duration `json:"download_timeout" yaml:"download_timeout" mapstructure:"download_timeout"`

	// MinPDFSize is the smallest plausible artifact in bytes (default 10000).
	MinPDFSize int64 `json:"min_pdf_size" yaml:"min_pdf_size" mapstructure:"min_pdf_size"`

	// MaxPDFSize rejects downloads larger than this many bytes (default 200 MiB).
	MaxPDFSize int64 `json:"max_pdf_size" yaml:"max_pdf_size" mapstructure:"max_pdf_size"`

	// Mirrors lists base URLs of the mirrored document host, in preference order.
	Mirrors []string `json:"mirrors" yaml:"mirrors" mapstructure:"mirrors"`

	// ShuffleMirrors randomizes the mirror order once at startup.
	ShuffleMirrors bool `json:"shuffle_mirrors" yaml:"shuffle_mirrors" mapstructure:"shuffle_mirrors"`

	// Endpoints replaces public API addresses, e.g. for a caching proxy.
	Endpoints EndpointConfig `json:"endpoints" yaml:"endpoints" mapstructure:"endpoints"`

	// MirrorPause is the upper bound of a random pause between two mirrors
	// in one attempt sequence. Zero disables the pause.
	MirrorPause time.Duration `json:"mirror_pause" yaml:"mirror_pause" mapstructure:"mirror_pause"`
}

// EndpointConfig overrides the API address of a source. Empty fields keep
// the public service.
type EndpointConfig struct {
	CrossRef        string `json:"crossref,omitempty" yaml:"crossref,omitempty" mapstructure:"crossref"`
	Arxiv           string `json:"arxiv,omitempty" yaml:"arxiv,omitempty" mapstructure:"arxiv"`
	OpenAlex        string `json:"openalex,omitempty" yaml:"openalex,omitempty" mapstructure:"openalex"`
	SemanticScholar string `json:"semantic_scholar,omitempty" yaml:"semantic_scholar,omitempty" mapstructure:"semantic_scholar"`
}

// CacheConfig holds settings for the request cache.
type CacheConfig struct {
	// Path is the SQLite database file (default ".paperfetch/cache.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// FlushEvery triggers a background flush after this many dirty puts (default 10).
	FlushEvery int `json:"flush_every" yaml:"flush_every" mapstructure:"flush_every"`

	// FlushInterval is the period of the background flush (default 30s).
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval" mapstructure:"flush_interval"`

	// Disabled turns the cache into a permanent miss.
	Disabled bool `json:"disabled" yaml:"disabled" mapstructure:"disabled"`
}

// BatchConfig holds settings for one batch run.
type BatchConfig struct {
	// InputPath is the delimited-text file with a Title column.
	InputPath string `json:"input" yaml:"input" mapstructure:"input"`

	// SaveDir is the directory artifacts are written to.
	SaveDir string `json:"save_dir" yaml:"save_dir" mapstructure:"save_dir"`

	// LedgerPath is the results CSV, recreated at the start of each run.
	LedgerPath string `json:"ledger" yaml:"ledger" mapstructure:"ledger"`

	// SummaryPath is the YAML run summary written at the end of each run.
	SummaryPath string `json:"summary" yaml:"summary" mapstructure:"summary"`

	// Concurrency is the worker pool size (default 5).
	Concurrency int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// Config groups every setting a run needs.
type Config struct {
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Cache     CacheConfig     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Batch     BatchConfig     `json:"batch" yaml:"batch" mapstructure:"batch"`

	// LogFile is the run log, truncated at the start of each run.
	LogFile string `json:"log_file" yaml:"log_file" mapstructure:"log_file"`

	// MetricsAddr serves Prometheus metrics when non-empty (e.g. ":9090").
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty" mapstructure:"metrics_addr"`
}
