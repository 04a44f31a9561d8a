package model

import "time"

// Config is the full application configuration. Values are assembled from
// defaults, the config file, NORMBENCH_* environment variables, and CLI
// flags, in increasing priority.
type Config struct {
	Dataset     DatasetConfig     `yaml:"dataset" json:"dataset" mapstructure:"dataset"`
	LLM         LLMConfig         `yaml:"llm" json:"llm" mapstructure:"llm"`
	Eval        EvalConfig        `yaml:"eval" json:"eval" mapstructure:"eval"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" json:"cache" mapstructure:"cache"`
	Output      OutputConfig      `yaml:"output" json:"output" mapstructure:"output"`
}

// DatasetConfig locates the gold dataset
type DatasetConfig struct {
	Path string `yaml:"path" json:"path" mapstructure:"path"`
}

// LLMConfig configures the inference stage client
type LLMConfig struct {
	Alias          string        `yaml:"alias" json:"alias" mapstructure:"alias"`                         // model registry alias
	RegistryPath   string        `yaml:"registry_path" json:"registry_path" mapstructure:"registry_path"` // JSON model registry (NORMBENCH_MODEL_CONFIG)
	Timeout        time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`                   // per-request timeout
	Retries        int           `yaml:"retries" json:"retries" mapstructure:"retries"`                   // application-layer retries
	RetryBackoff   time.Duration `yaml:"retry_backoff" json:"retry_backoff" mapstructure:"retry_backoff"` // initial backoff, doubled per attempt
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float32       `yaml:"temperature" json:"temperature" mapstructure:"temperature"`
	RequestsPerSec float64       `yaml:"requests_per_sec" json:"requests_per_sec" mapstructure:"requests_per_sec"` // rate limit toward the API
	Burst          int           `yaml:"burst" json:"burst" mapstructure:"burst"`

	HTTPProxy  string `yaml:"http_proxy" json:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy" json:"https_proxy" mapstructure:"https_proxy"`
}

// EvalConfig carries the tunable similarity thresholds. The defaults are
// validated against gold-vs-gold sanity checks rather than fixed forever.
type EvalConfig struct {
	UnitOverlapThreshold float64 `yaml:"unit_overlap_threshold" json:"unit_overlap_threshold" mapstructure:"unit_overlap_threshold"`
	LeafTextThreshold    float64 `yaml:"leaf_text_threshold" json:"leaf_text_threshold" mapstructure:"leaf_text_threshold"`
	OpMismatchPenalty    float64 `yaml:"op_mismatch_penalty" json:"op_mismatch_penalty" mapstructure:"op_mismatch_penalty"`
	BranchPruneThreshold float64 `yaml:"branch_prune_threshold" json:"branch_prune_threshold" mapstructure:"branch_prune_threshold"`
}

// ConcurrencyConfig caps parallel work
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"` // evaluation / inference workers
}

// CacheConfig controls response caching and checkpoint resume
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" json:"dir" mapstructure:"dir"` // checkpoint directory
	TTL     time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`
}

// OutputConfig controls run artifacts
type OutputConfig struct {
	Dir     string `yaml:"dir" json:"dir" mapstructure:"dir"`
	Verbose bool   `yaml:"verbose" json:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the standard configuration
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Path: "dataset/normbench_v1.json",
		},
		LLM: LLMConfig{
			Alias:          "",
			Timeout:        120 * time.Second,
			Retries:        3,
			RetryBackoff:   800 * time.Millisecond,
			MaxTokens:      4096,
			Temperature:    0,
			RequestsPerSec: 2,
			Burst:          5,
		},
		Eval: EvalConfig{
			UnitOverlapThreshold: 0.5,
			LeafTextThreshold:    0.8,
			OpMismatchPenalty:    0.5,
			BranchPruneThreshold: 0.15,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 8,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "",
			TTL:     24 * time.Hour,
		},
		Output: OutputConfig{
			Dir:     "./normbench-runs",
			Verbose: false,
		},
	}
}
