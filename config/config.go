package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize int
}

type NatsConfig struct {
	Servers []string
	Name    string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type LLMConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

type AppConfig struct {
	Addr      string // HTTP listen address hosting /ws
	GatewayID string
	NodeID    int64 // snowflake node

	Redis RedisConfig
	Mongo MongoConfig
	Nats  NatsConfig
	Kafka KafkaConfig
	LLM   LLMConfig

	JWTSecret string

	MaxConnsPerUser  int
	HistoryWindow    int // messages handed to the generator
	MaxMessageRunes  int
	LongMessageRunes int // above this the long-message throttle class applies
	AuthTimeout      time.Duration
	PresenceTTL      time.Duration
}

// Load reads configuration from the environment with single-node defaults.
func Load() *AppConfig {
	return &AppConfig{
		Addr:      getEnv("GATEWAY_ADDR", ":8080"),
		GatewayID: getEnv("GATEWAY_ID", "gateway_1"),
		NodeID:    int64(getEnvInt("GATEWAY_NODE_ID", 1)),

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Mongo: MongoConfig{
			URI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:    getEnv("MONGO_DATABASE", "chatbot"),
			MaxPoolSize: getEnvInt("MONGO_MAX_POOL_SIZE", 20),
		},
		Nats: NatsConfig{
			Servers: getEnvList("NATS_SERVERS", "nats://127.0.0.1:4222"),
			Name:    getEnv("NATS_NAME", "chat-gateway"),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getEnv("KAFKA_TOPIC", "chat-messages"),
		},
		LLM: LLMConfig{
			Endpoint: getEnv("LLM_ENDPOINT", "http://localhost:11434/v1/chat/completions"),
			APIKey:   getEnv("LLM_API_KEY", ""),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-do-not-use"),

		MaxConnsPerUser:  getEnvInt("MAX_CONNS_PER_USER", 5),
		HistoryWindow:    getEnvInt("HISTORY_WINDOW", 20),
		MaxMessageRunes:  getEnvInt("MAX_MESSAGE_RUNES", 4000),
		LongMessageRunes: getEnvInt("LONG_MESSAGE_RUNES", 1000),
		AuthTimeout:      getEnvDur("AUTH_TIMEOUT", 10*time.Second),
		PresenceTTL:      getEnvDur("PRESENCE_TTL", 2*time.Minute),
	}
}

func (c *AppConfig) JWTSecretBytes() []byte { return []byte(c.JWTSecret) }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key, def string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
