package app

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	dbpkg "github.com/yungbote/talentgraph-backend/internal/data/db"
	"github.com/yungbote/talentgraph-backend/internal/jobs/worker"
	"github.com/yungbote/talentgraph-backend/internal/observability"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/pointers"
	"github.com/yungbote/talentgraph-backend/internal/platform/apify"
	"github.com/yungbote/talentgraph-backend/internal/platform/gcp"
	"github.com/yungbote/talentgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/talentgraph-backend/internal/platform/openai"
	"github.com/yungbote/talentgraph-backend/internal/platform/redislock"
)

type LogConfig struct {
	Mode             string
	DisableRedaction bool
	HashSalt         string
}

type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
}

type FlowsConfig struct {
	// DefinitionsFile overrides the embedded flow catalogue when set.
	DefinitionsFile string
	LockTTL         time.Duration
	LockWait        time.Duration
}

type Config struct {
	Log      LogConfig
	Postgres dbpkg.Config
	Worker   worker.Config
	HTTP     HTTPConfig
	OpenAI   openai.Config
	Apify    apify.Config
	Redis    redislock.Config
	Neo4j    neo4jdb.Config
	GCS      gcp.ArchiveConfig
	OTel     observability.OtelConfig
	Flows    FlowsConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.mode", "development")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "talentgraph")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("db.slow_threshold", time.Second)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.retry_delay", 30*time.Second)
	v.SetDefault("worker.stale_running", 30*time.Minute)
	v.SetDefault("worker.heartbeat_interval", 30*time.Second)

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 120*time.Second)
	v.SetDefault("openai.max_retries", 3)

	v.SetDefault("apify.base_url", "https://api.apify.com")
	v.SetDefault("apify.actor_people_search", "")
	v.SetDefault("apify.actor_linkedin_posts", "")
	v.SetDefault("apify.actor_linkedin_profile", "")
	v.SetDefault("apify.max_poll_attempts", 120)
	v.SetDefault("apify.max_retries", 2)

	v.SetDefault("redis.prefix", "talentgraph:lock:")

	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.timeout", 10*time.Second)

	v.SetDefault("gcs.prefix", "documents")

	v.SetDefault("otel.service_name", "talentgraph")
	v.SetDefault("otel.sample_ratio", 1.0)

	v.SetDefault("flows.lock_ttl", 2*time.Minute)
	v.SetDefault("flows.lock_wait", 30*time.Second)
}

// LoadConfig reads the optional config file, then lets the environment
// override every key ("db.host" <- DB_HOST).
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Config {
	var temperature *float64
	if v.IsSet("openai.temperature") {
		temperature = pointers.Ptr(v.GetFloat64("openai.temperature"))
	}
	return Config{
		Log: LogConfig{
			Mode:             v.GetString("log.mode"),
			DisableRedaction: v.GetBool("log.disable_redaction"),
			HashSalt:         v.GetString("log.hash_salt"),
		},
		Postgres: dbpkg.Config{
			Driver:          v.GetString("db.driver"),
			DSN:             v.GetString("db.dsn"),
			Host:            v.GetString("db.host"),
			Port:            v.GetString("db.port"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			Name:            v.GetString("db.name"),
			SSLMode:         v.GetString("db.sslmode"),
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db.conn_max_lifetime"),
			SlowThreshold:   v.GetDuration("db.slow_threshold"),
		},
		Worker: worker.Config{
			Concurrency:       v.GetInt("worker.concurrency"),
			PollInterval:      v.GetDuration("worker.poll_interval"),
			MaxAttempts:       v.GetInt("worker.max_attempts"),
			RetryDelay:        v.GetDuration("worker.retry_delay"),
			StaleRunning:      v.GetDuration("worker.stale_running"),
			HeartbeatInterval: v.GetDuration("worker.heartbeat_interval"),
		},
		HTTP: HTTPConfig{
			Addr:        v.GetString("http.addr"),
			CORSOrigins: splitList(v.GetString("http.cors_origins")),
		},
		OpenAI: openai.Config{
			APIKey:              v.GetString("openai.api_key"),
			BaseURL:             v.GetString("openai.base_url"),
			Model:               v.GetString("openai.model"),
			Timeout:             v.GetDuration("openai.timeout"),
			MaxRetries:          v.GetInt("openai.max_retries"),
			Temperature:         temperature,
			NoTemperatureModels: v.GetString("openai.no_temperature_models"),
		},
		Apify: apify.Config{
			Token:   v.GetString("apify.token"),
			BaseURL: v.GetString("apify.base_url"),
			Actors: map[string]string{
				apify.ProviderPeopleSearch: v.GetString("apify.actor_people_search"),
				apify.ProviderLinkedinPost: v.GetString("apify.actor_linkedin_posts"),
				apify.ProviderProfile:      v.GetString("apify.actor_linkedin_profile"),
			},
			PollInterval:    v.GetDuration("apify.poll_interval"),
			MaxPollInterval: v.GetDuration("apify.max_poll_interval"),
			MaxPollAttempts: v.GetInt("apify.max_poll_attempts"),
			RunTimeout:      v.GetDuration("apify.run_timeout"),
			MaxRetries:      v.GetInt("apify.max_retries"),
		},
		Redis: redislock.Config{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		Neo4j: neo4jdb.Config{
			URI:         v.GetString("neo4j.uri"),
			User:        v.GetString("neo4j.user"),
			Password:    v.GetString("neo4j.password"),
			Database:    v.GetString("neo4j.database"),
			Timeout:     v.GetDuration("neo4j.timeout"),
			MaxPoolSize: v.GetInt("neo4j.max_pool_size"),
		},
		GCS: gcp.ArchiveConfig{
			Bucket:          v.GetString("gcs.bucket"),
			Prefix:          v.GetString("gcs.prefix"),
			Mode:            gcp.ObjectStorageMode(v.GetString("gcs.mode")),
			EmulatorHost:    v.GetString("gcs.emulator_host"),
			CredentialsJSON: v.GetString("gcs.credentials_json"),
			CredentialsFile: v.GetString("gcs.credentials_file"),
		},
		OTel: observability.OtelConfig{
			Enabled:     v.GetBool("otel.enabled"),
			ServiceName: v.GetString("otel.service_name"),
			Environment: v.GetString("otel.environment"),
			Version:     v.GetString("otel.version"),
			Endpoint:    v.GetString("otel.endpoint"),
			Headers:     observability.ParseHeaders(v.GetString("otel.headers")),
			Insecure:    v.GetBool("otel.insecure"),
			SampleRatio: v.GetFloat64("otel.sample_ratio"),
		},
		Flows: FlowsConfig{
			DefinitionsFile: v.GetString("flows.definitions_file"),
			LockTTL:         v.GetDuration("flows.lock_ttl"),
			LockWait:        v.GetDuration("flows.lock_wait"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
