package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-agent/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds settings for the literature search provider.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MaxResults is the number of papers fetched when the caller gives none (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// RequestsPerSecond throttles calls to the arXiv API. arXiv asks for
	// no more than one request every three seconds.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxRetries bounds retries on HTTP 429/503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// StoreConfig holds settings for the paper store.
type StoreConfig struct {
	// PapersDir is the root directory holding one subdirectory per topic.
	PapersDir string `json:"papers_dir" yaml:"papers_dir" mapstructure:"papers_dir"`

	// Index enables the SQLite paper-id index under PapersDir/.index.
	Index bool `json:"index" yaml:"index" mapstructure:"index"`
}

// ServerConfig holds settings for the capability server.
type ServerConfig struct {
	// HTTPAddr serves streamable HTTP on this address instead of stdio when set.
	HTTPAddr string `json:"http_addr" yaml:"http_addr" mapstructure:"http_addr"`

	// ToolTimeout bounds a single tool handler. Zero disables the limit.
	ToolTimeout time.Duration `json:"tool_timeout" yaml:"tool_timeout" mapstructure:"tool_timeout"`
}

// HistoryPolicy selects whether conversation history survives between
// top-level queries of an interactive session.
type HistoryPolicy string

const (
	HistoryReset  HistoryPolicy = "reset"
	HistoryRetain HistoryPolicy = "retain"
)

// AIConfig holds settings for calls to the Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-3-7-sonnet-20250219").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens caps output tokens per model call.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of SDK retry attempts for failed API calls (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// AgentConfig holds settings for the conversation orchestrator.
type AgentConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// MaxTurns caps model calls per query (default 20).
	MaxTurns int `json:"max_turns" yaml:"max_turns" mapstructure:"max_turns"`

	// CallTimeout bounds one model call. Zero disables the limit.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout"`

	// ToolTimeout bounds one tool call made through the session. Zero disables the limit.
	ToolTimeout time.Duration `json:"tool_timeout" yaml:"tool_timeout" mapstructure:"tool_timeout"`

	// History is the history policy between top-level queries (default reset).
	History HistoryPolicy `json:"history" yaml:"history" mapstructure:"history"`

	// ServerCommand is the command line spawned as the capability server.
	// Empty means this executable with the "serve" subcommand.
	ServerCommand []string `json:"server_command" yaml:"server_command" mapstructure:"server_command"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// File is a JSON log file rotated by size. Empty disables file logging.
	File string `json:"file" yaml:"file" mapstructure:"file"`

	// Level is the minimum console level: debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`
}

// Config groups all component configurations.
type Config struct {
	Store  StoreConfig  `json:"store" yaml:"store" mapstructure:",squash"`
	Search SearchConfig `json:"search" yaml:"search" mapstructure:"search"`
	Server ServerConfig `json:"server" yaml:"server" mapstructure:"server"`
	Agent  AgentConfig  `json:"agent" yaml:"agent" mapstructure:"agent"`
	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`
}
