package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the application settings.
type Config struct {
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	ServerAddress  string
	JWTSecret      string
	TokenExpiry    time.Duration
	GatewayURL     string // external payment gateway endpoint (SOAP)
	GatewayStoreID string
	GatewaySecret  string
}

// LoadConfig loads the configuration from the environment, with a .env file
// as an optional source.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn(".env file not found")
	}

	expiry, err := time.ParseDuration(os.Getenv("TOKEN_EXPIRY"))
	if err != nil {
		expiry = 24 * time.Hour
	}

	config := &Config{
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "traffic_finance"),
		ServerAddress:  getEnv("SERVER_ADDRESS", ":8080"),
		JWTSecret:      getEnv("JWT_SECRET", "default-secret-key"),
		TokenExpiry:    expiry,
		GatewayURL:     getEnv("PAYMENT_GATEWAY_URL", "https://gateway.example.com/checkout.asmx"),
		GatewayStoreID: getEnv("PAYMENT_GATEWAY_STORE_ID", ""),
		GatewaySecret:  getEnv("PAYMENT_GATEWAY_SECRET", ""),
	}

	return config, nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
