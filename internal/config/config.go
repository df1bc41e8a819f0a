package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	Storage       string
	DBDSN         string
	JWTIssuer     string
	JWTSecret     string
	InternalToken string
	WSOrigin      string
	CashTicker    string
	AdminName     string
	AdminPassword string
	KafkaBrokers  []string
	KafkaTopic    string
	LogLevel      string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.Storage = strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE")))
	if c.Storage == "" {
		c.Storage = "postgres"
	}
	if c.Storage != "postgres" && c.Storage != "memory" {
		return c, errors.New("invalid STORAGE: use postgres or memory")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" && c.Storage == "postgres" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WSOrigin = os.Getenv("WS_ORIGIN")
	if c.WSOrigin == "" {
		c.WSOrigin = "*"
	}
	c.CashTicker = strings.ToUpper(strings.TrimSpace(os.Getenv("CASH_TICKER")))
	if c.CashTicker == "" {
		c.CashTicker = "RUB"
	}
	c.AdminName = os.Getenv("ADMIN_NAME")
	c.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.KafkaBrokers = append(c.KafkaBrokers, b)
			}
		}
		c.KafkaTopic = os.Getenv("KAFKA_TOPIC")
		if c.KafkaTopic == "" {
			missing = append(missing, "KAFKA_TOPIC")
		}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
