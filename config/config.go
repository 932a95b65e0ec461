package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort    string
	AppMode    string
	LogMode    string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	JWTSecret  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	RemoteChat  RemoteChatConfig
	S3          S3Config
	SMTP        SMTPConfig
	Cache       CacheConfig
	Attachments AttachmentConfig

	// DirectoryURL serves the tenant user directory (JSON array of profiles).
	DirectoryURL string
	// AppURL is linked from notification emails.
	AppURL string
}

type RemoteChatConfig struct {
	BaseURL    string
	AdminToken string
	TeamID     string
	MailDomain string
	Timeout    time.Duration
}

type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	From        string
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

type CacheConfig struct {
	RoomsTTL     time.Duration
	DirectoryTTL time.Duration
}

type AttachmentConfig struct {
	MaxSizeBytes      int64
	AllowedExtensions []string
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		AppMode:    getEnv("APP_MODE", "debug"),
		LogMode:    getEnv("LOG_MODE", "development"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "situation_room"),
		DBPort:     getEnv("DB_PORT", "5432"),
		JWTSecret:  getEnv("JWT_SECRET", "change-me"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		RemoteChat: RemoteChatConfig{
			BaseURL:    getEnv("REMOTE_CHAT_URL", "http://localhost:8065/api/v4"),
			AdminToken: getEnv("REMOTE_CHAT_ADMIN_TOKEN", ""),
			TeamID:     getEnv("REMOTE_CHAT_TEAM_ID", ""),
			MailDomain: getEnv("REMOTE_CHAT_MAIL_DOMAIN", "situation-room.local"),
			Timeout:    getEnvAsDuration("REMOTE_CHAT_TIMEOUT", 30*time.Second),
		},
		S3: S3Config{
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    getEnv("S3_BUCKET", "situation-room"),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", "localhost"),
			Port:        getEnvAsInt("SMTP_PORT", 25),
			User:        getEnv("SMTP_USER", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			From:        getEnv("SMTP_FROM", "no-reply@situation-room.local"),
			Workers:     getEnvAsInt("EMAIL_WORKERS", 3),
			QueueSize:   getEnvAsInt("EMAIL_QUEUE_SIZE", 500),
			SendTimeout: getEnvAsDuration("EMAIL_SEND_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			RoomsTTL:     getEnvAsDuration("CACHE_ROOMS_TTL", time.Minute),
			DirectoryTTL: getEnvAsDuration("CACHE_DIRECTORY_TTL", 10*time.Minute),
		},
		Attachments: AttachmentConfig{
			MaxSizeBytes: int64(getEnvAsInt("ATTACHMENT_MAX_BYTES", 10<<20)),
			AllowedExtensions: getEnvAsList("ATTACHMENT_EXTENSIONS",
				[]string{"pdf", "csv", "txt", "png", "jpg", "jpeg", "gif", "xlsx", "docx", "pptx", "zip"}),
		},
		DirectoryURL: getEnv("DIRECTORY_URL", ""),
		AppURL:       getEnv("APP_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
