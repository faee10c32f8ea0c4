package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Gameplay timing/limits are configuration rather than hard constants, since
// they have drifted between historical versions of the game.
type Config struct {
	ListenAddr string

	// 游戏规则配置
	RoundsLimit    int           // 每局游戏的回合数上限
	TracksLimit    int           // 每回合的曲目数上限
	ChoicesTimeout time.Duration // 单首曲目的作答窗口
	ChoicesStartup time.Duration // 计分前的起步宽限期
	ResultsTimeout time.Duration // 曲目结束后的结果展示时长
	GuessAttempts  int           // 每人每曲允许的作答次数（1 = 不允许改选）

	// 曲库API配置
	CatalogAPIURL  string
	CatalogCountry string
	CatalogToken   string

	// MySQL配置（对局归档）
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置（共享文档存储）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 会话令牌配置
	JWTSecret string

	// 日志配置
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as a duration in milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		RoundsLimit:    getEnvInt("ROUNDS_LIMIT", 5),
		TracksLimit:    getEnvInt("TRACKS_LIMIT", 10),
		ChoicesTimeout: getEnvDuration("CHOICES_TIMEOUT_MS", 10*time.Second),
		ChoicesStartup: getEnvDuration("CHOICES_STARTUP_MS", 1*time.Second),
		ResultsTimeout: getEnvDuration("RESULTS_TIMEOUT_MS", 3*time.Second),
		GuessAttempts:  getEnvInt("GUESS_ATTEMPTS", 1),

		CatalogAPIURL:  getEnv("CATALOG_API_URL", "https://api.spotify.com/v1"),
		CatalogCountry: getEnv("CATALOG_COUNTRY", "CA"),
		CatalogToken:   os.Getenv("CATALOG_TOKEN"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "squizfm"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		JWTSecret: getEnv("JWT_SECRET", "squizfm-dev-secret"),

		LogLevel: getEnv("LOG_LEVEL", "debug"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
