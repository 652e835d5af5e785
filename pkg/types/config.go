// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PathsConfig holds the filesystem locations the pipeline operates on.
type PathsConfig struct {
	// AudioDir is the directory watched for incoming voice memos.
	AudioDir string `json:"audio_dir" yaml:"audio_dir"`

	// NotesDir is the root of the note collection (the vault).
	NotesDir string `json:"notes_dir" yaml:"notes_dir"`

	// InboxSubdir is the subdirectory of NotesDir where new notes land
	// (default "00 Inbox").
	InboxSubdir string `json:"inbox_subdir" yaml:"inbox_subdir"`

	// CatalogDB is the path of the SQLite catalog database.
	CatalogDB string `json:"catalog_db" yaml:"catalog_db"`
}

// TranscriberConfig holds settings for the speech-recognition backend.
type TranscriberConfig struct {
	// Binary is the whisper CLI executable invoked for transcription.
	Binary string `json:"binary" yaml:"binary"`

	// Model is the model identifier or path passed to the backend.
	Model string `json:"model" yaml:"model"`

	// Timeout bounds a single transcription invocation. Zero means no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// RateLimitConfig holds the ceilings enforced on remote analysis calls.
// The defaults sit safely under Groq's free-tier limits.
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum calls within the rolling 60s window.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`

	// TokensPerMinute is the maximum cumulative token cost within the window.
	TokensPerMinute int `json:"tokens_per_minute" yaml:"tokens_per_minute"`

	// RequestsPerDay is the maximum calls per calendar day.
	RequestsPerDay int `json:"requests_per_day" yaml:"requests_per_day"`
}

// AnalysisConfig holds settings for the remote analysis backend.
type AnalysisConfig struct {
	// Model is the chat model identifier (e.g. "llama-3.3-70b-versatile").
	Model string `json:"model" yaml:"model"`

	// APIKey authenticates against the analysis API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL is the chat-completions endpoint. Empty selects the Groq API.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// MaxRetries is the number of retry attempts for 429 responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// ChunkTokenLimit is the per-call token ceiling above which a transcript
	// is split into chunks (default 6000).
	ChunkTokenLimit int `json:"chunk_token_limit" yaml:"chunk_token_limit"`

	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `json:"level" yaml:"level"`

	// Format selects the handler: "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// Config groups all settings for the memo pipeline.
type Config struct {
	Paths       PathsConfig       `json:"paths" yaml:"paths"`
	Transcriber TranscriberConfig `json:"transcriber" yaml:"transcriber"`
	Analysis    AnalysisConfig    `json:"analysis" yaml:"analysis"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Paths.InboxSubdir == "" {
		c.Paths.InboxSubdir = "00 Inbox"
	}
	if c.Paths.CatalogDB == "" {
		c.Paths.CatalogDB = "data/memo-engine.db"
	}
	if c.Transcriber.Binary == "" {
		c.Transcriber.Binary = "whisper-cli"
	}
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = "large-v3"
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = "llama-3.3-70b-versatile"
	}
	if c.Analysis.MaxRetries <= 0 {
		c.Analysis.MaxRetries = 3
	}
	if c.Analysis.ChunkTokenLimit <= 0 {
		c.Analysis.ChunkTokenLimit = 6000
	}
	if c.Analysis.RateLimit.RequestsPerMinute <= 0 {
		c.Analysis.RateLimit.RequestsPerMinute = 28
	}
	if c.Analysis.RateLimit.TokensPerMinute <= 0 {
		c.Analysis.RateLimit.TokensPerMinute = 11000
	}
	if c.Analysis.RateLimit.RequestsPerDay <= 0 {
		c.Analysis.RateLimit.RequestsPerDay = 950
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
