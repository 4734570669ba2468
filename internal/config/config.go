package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"debug"`
	APIBaseURL  string `envconfig:"API_BASE_URL" default:"http://localhost:8080/v1"`

	// Store settings. STORE_DRIVER=memory keeps everything in process, for local runs only.
	StoreDriver        string `envconfig:"STORE_DRIVER" default:"postgres"`
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING"`
	DBMaxConns         int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	TxMaxRetries       int    `envconfig:"TX_MAX_RETRIES" default:"5"`

	// Auth
	JWTSecret  string `envconfig:"JWT_SECRET" required:"true"`
	AdminEmail string `envconfig:"ADMIN_EMAIL"`

	// Blob storage (S3 compatible)
	S3URL             string        `envconfig:"S3_URL"`
	S3Bucket          string        `envconfig:"S3_BUCKET"`
	S3Region          string        `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey       string        `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey       string        `envconfig:"S3_SECRET_KEY"`
	SignedURLLifetime time.Duration `envconfig:"SIGNED_URL_LIFETIME" default:"168h"`

	// Scraping actor (Apify)
	ApifyBaseURL string `envconfig:"APIFY_BASE_URL" default:"https://api.apify.com/v2"`
	ApifyToken   string `envconfig:"APIFY_TOKEN"`
	ApifyActorID string `envconfig:"APIFY_ACTOR_ID"`

	// Avatar video provider (HeyGen)
	HeyGenBaseURL  string `envconfig:"HEYGEN_BASE_URL" default:"https://api.heygen.com"`
	HeyGenAPIKey   string `envconfig:"HEYGEN_API_KEY"`
	HeyGenAvatarID string `envconfig:"HEYGEN_AVATAR_ID"`
	HeyGenVoiceID  string `envconfig:"HEYGEN_VOICE_ID"`

	// Intro script writer (Anthropic). Script endpoints are disabled without a key.
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL" default:"https://api.anthropic.com/v1"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `envconfig:"ANTHROPIC_MODEL" default:"claude-haiku-4-5"`

	// Polling budgets
	PollInterval           time.Duration `envconfig:"POLL_INTERVAL" default:"10s"`
	ScrapingPollAttempts   int           `envconfig:"SCRAPING_POLL_ATTEMPTS" default:"30"`
	VideoPollAttempts      int           `envconfig:"VIDEO_POLL_ATTEMPTS" default:"60"`
	ProviderRequestTimeout time.Duration `envconfig:"PROVIDER_REQUEST_TIMEOUT" default:"30s"`
	ArtifactFetchTimeout   time.Duration `envconfig:"ARTIFACT_FETCH_TIMEOUT" default:"5m"`

	// Credit policy
	VideoWordsPerMinute    int   `envconfig:"VIDEO_WORDS_PER_MINUTE" default:"150"`
	MonthlyScrapingCredits int64 `envconfig:"MONTHLY_SCRAPING_CREDITS" default:"0"`
	MonthlyVideoSeconds    int64 `envconfig:"MONTHLY_VIDEO_SECONDS" default:"0"`

	// Job event notifications (Pub/Sub)
	GCPProjectID         string `envconfig:"GCP_PROJECT_ID"`
	PubSubEmulatorHost   string `envconfig:"PUBSUB_EMULATOR_HOST"`
	PubSubJobEventsTopic string `envconfig:"PUBSUB_JOB_EVENTS_TOPIC" default:"job-events"`

	// Provider keys may live in Secret Manager instead of the environment.
	SecretsFromGCP bool `envconfig:"SECRETS_FROM_GCP" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PubSubEnabled reports whether job events should be published.
func (c *Config) PubSubEnabled() bool {
	return c.GCPProjectID != ""
}

// ResumeBudget is the longest a synchronous resume may take: the whole video poll
// budget plus the artifact download.
func (c *Config) ResumeBudget() time.Duration {
	return time.Duration(c.VideoPollAttempts)*c.PollInterval + c.ArtifactFetchTimeout
}

// BlobStoreEnabled reports whether enough S3 settings are present to build a client.
func (c *Config) BlobStoreEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
