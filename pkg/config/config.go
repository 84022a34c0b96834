package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Operator      OperatorConfig
	CORS          CORSConfig
	Log           LogConfig
	Sheets        SheetsConfig
	Kafka         KafkaConfig
	Sync          SyncConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// URL renders the connection string in URL form, as golang-migrate expects it.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OperatorConfig secures the operator surface. Tokens are HS256 JWTs carrying
// an operator role; static keys are stored as bcrypt hashes.
type OperatorConfig struct {
	JWTSecret    string
	JWTIssuer    string
	KeyHashes    []string
	SystemUserID string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SheetsConfig points at the availability layout and the record-keeping spreadsheet.
type SheetsConfig struct {
	CredentialsFile   string
	LayoutFile        string
	ExportSpreadsheet string
	ExportLogSheet    string
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
}

// KafkaConfig configures the booking events producer.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// SyncConfig governs periodic availability reconciliation.
type SyncConfig struct {
	Cron    string
	Tracks  []string
	LockTTL time.Duration
	QueueDB int
}

// NotificationConfig sizes the post-commit delivery queue.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Operator = OperatorConfig{
		JWTSecret:    v.GetString("OPERATOR_JWT_SECRET"),
		JWTIssuer:    v.GetString("OPERATOR_JWT_ISSUER"),
		KeyHashes:    splitAndTrim(v.GetString("OPERATOR_KEY_HASHES")),
		SystemUserID: v.GetString("OPERATOR_SYSTEM_ID"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sheets = SheetsConfig{
		CredentialsFile:   v.GetString("SHEETS_CREDENTIALS_FILE"),
		LayoutFile:        v.GetString("SHEETS_LAYOUT_FILE"),
		ExportSpreadsheet: v.GetString("SHEETS_EXPORT_SPREADSHEET_ID"),
		ExportLogSheet:    v.GetString("SHEETS_EXPORT_LOG_SHEET"),
		RequestTimeout:    parseDuration(v.GetString("SHEETS_REQUEST_TIMEOUT"), 30*time.Second),
		MaxRetries:        v.GetInt("SHEETS_MAX_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("SHEETS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Kafka = KafkaConfig{
		Enabled: v.GetBool("KAFKA_ENABLED"),
		Brokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		Topic:   v.GetString("KAFKA_BOOKING_TOPIC"),
	}

	cfg.Sync = SyncConfig{
		Cron:    v.GetString("SYNC_CRON"),
		Tracks:  splitAndTrim(v.GetString("SYNC_TRACKS")),
		LockTTL: parseDuration(v.GetString("SYNC_LOCK_TTL"), 10*time.Minute),
		QueueDB: v.GetInt("SYNC_QUEUE_REDIS_DB"),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 3*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "shend")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("OPERATOR_JWT_SECRET", "dev_secret")
	v.SetDefault("OPERATOR_JWT_ISSUER", "shend")
	v.SetDefault("OPERATOR_KEY_HASHES", "")
	v.SetDefault("OPERATOR_SYSTEM_ID", "system:scheduler")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SHEETS_CREDENTIALS_FILE", "credentials.json")
	v.SetDefault("SHEETS_LAYOUT_FILE", "availability.yaml")
	v.SetDefault("SHEETS_EXPORT_SPREADSHEET_ID", "")
	v.SetDefault("SHEETS_EXPORT_LOG_SHEET", "Все записи")
	v.SetDefault("SHEETS_REQUEST_TIMEOUT", "30s")
	v.SetDefault("SHEETS_MAX_RETRIES", 3)
	v.SetDefault("SHEETS_RETRY_DELAY", "2s")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_BOOKING_TOPIC", "interview-bookings")

	v.SetDefault("SYNC_CRON", "*/30 * * * *")
	v.SetDefault("SYNC_TRACKS", "")
	v.SetDefault("SYNC_LOCK_TTL", "10m")
	v.SetDefault("SYNC_QUEUE_REDIS_DB", 1)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "3s")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
