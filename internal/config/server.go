package config

import "time"

// DevJWTSecret is only accepted outside production.
const DevJWTSecret = "dev-secret-change-me-please-32-chars!"

// Server holds the settings of cmd/server.
type Server struct {
	Port       string
	Production bool

	DBUser       string
	DBPass       string
	DBHost       string
	DBPort       string
	DBName       string
	DBSkipSchema bool

	JWTSecret string
	JWTTTL    time.Duration

	// RedisURL enables the shared presence store when set.
	RedisURL      string
	RedisPassword string
	PresenceTTL   time.Duration
}

// LoadServer reads the server settings.
func LoadServer() Server {
	env := GetEnv("ENV", GetEnv("ENVIRONMENT", "development"))
	return Server{
		Port:          GetEnv("PORT", "8080"),
		Production:    env == "production",
		DBUser:        GetEnv("DB_USER", "root"),
		DBPass:        GetEnv("DB_PASS", ""),
		DBHost:        GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:        GetEnv("DB_PORT", "3306"),
		DBName:        GetEnv("DB_NAME", "together"),
		DBSkipSchema:  GetEnvAsBool("DB_SKIP_SCHEMA", false),
		JWTSecret:     GetEnv("JWT_SECRET", ""),
		JWTTTL:        GetEnvAsDuration("JWT_TTL", 24*time.Hour),
		RedisURL:      GetEnv("REDIS_URL", ""),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		PresenceTTL:   GetEnvAsDuration("PRESENCE_TTL", 5*time.Minute),
	}
}
