// Package config holds the Archon runtime configuration, loaded via Viper
// from TOML files and ARCHON_* environment variables.
package config

// Config represents the core Archon configuration
type Config struct {
	Database Database `mapstructure:"database"`
	Server   Server   `mapstructure:"server"`
	Chain    Chain    `mapstructure:"chain"`
	Worker   Worker   `mapstructure:"worker"`
	AI       AI       `mapstructure:"ai"`
	Auth     Auth     `mapstructure:"auth"`
	Storage  Storage  `mapstructure:"storage"`
	Notify   Notify   `mapstructure:"notify"`
}

// Database configures the SQLite database
type Database struct {
	Path string `mapstructure:"path"`
}

// Server configures the Archon HTTP server
type Server struct {
	Addr           string   `mapstructure:"addr"`            // listen address (default ":8710")
	AllowedOrigins []string `mapstructure:"allowed_origins"` // CORS origins
	RequestTimeout int      `mapstructure:"request_timeout"` // whole-request wall clock for interactive chains, seconds
}

// Chain configures chain-execution bounds and retrieval defaults
type Chain struct {
	MaxSteps           int     `mapstructure:"max_steps"`            // hard cap on steps per chain (default: 20)
	MaxContextTurns    int     `mapstructure:"max_context_turns"`    // newest user/assistant turn pairs kept as conversation memory (default: 10)
	MaxInputFields     int     `mapstructure:"max_input_fields"`     // input bag field-count bound (default: 50)
	MaxInputBytes      int     `mapstructure:"max_input_bytes"`      // input bag size bound (default: 65536)
	DefaultStepTimeout int     `mapstructure:"default_step_timeout"` // per-step timeout in seconds for worker/scheduled runs; 0 = none
	RetrievalMaxChunks int     `mapstructure:"retrieval_max_chunks"` // knowledge chunks per step (default: 10)
	RetrievalMaxTokens int     `mapstructure:"retrieval_max_tokens"` // token budget for knowledge context (default: 4000)
	SimilarityFloor    float64 `mapstructure:"similarity_floor"`     // minimum chunk similarity (default: 0.4)
	VectorWeight       float64 `mapstructure:"vector_weight"`        // hybrid search vector bias (default: 0.7)
}

// Worker configures the queue worker pool
type Worker struct {
	Workers             int     `mapstructure:"workers"`               // concurrent workers (default: 1)
	PollIntervalSeconds int     `mapstructure:"poll_interval_seconds"` // queue poll interval (default: 5)
	RequestsPerMinute   float64 `mapstructure:"requests_per_minute"`   // model-call rate gate; 0 = unlimited
	MaxRecoveredJobs    int     `mapstructure:"max_recovered_jobs"`    // orphaned jobs re-queued on start (default: 100)
}

// AI configures the external model-streaming service connection
type AI struct {
	StreamingURL   string `mapstructure:"streaming_url"`   // base URL of the streaming service
	APIKey         string `mapstructure:"api_key"`         // bearer token for the streaming service
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // whole-stream wall clock (default: 600)
}

// Auth configures token verification
type Auth struct {
	JWTSecret        string `mapstructure:"jwt_secret"`        // HMAC secret for session and internal tokens
	InternalIssuer   string `mapstructure:"internal_issuer"`   // required iss claim on internal tokens (default: "archon-scheduler")
	InternalAudience string `mapstructure:"internal_audience"` // required aud claim on internal tokens (default: "archon-internal")
}

// Storage configures the object store used to rehydrate large job payloads
type Storage struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Notify configures the completion notification webhook
type Notify struct {
	WebhookURL     string `mapstructure:"webhook_url"` // empty = notifications disabled
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}
