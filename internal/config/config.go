package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// MinPasswordSecretLength acota el secreto usado al derivar passwords.
const MinPasswordSecretLength = 30

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort             string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL          string `env:"DATABASE_URL"`
	RunMigrations        bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	PasswordSecret       string `env:"PASSWORD_SECRET,required"`
	ArgonTime            uint32 `env:"ARGON_TIME" envDefault:"1"`
	ArgonMemoryKB        uint32 `env:"ARGON_MEMORY_KB" envDefault:"65536"`
	ArgonThreads         uint8  `env:"ARGON_THREADS" envDefault:"4"`
	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`
	RedisAddr            string `env:"REDIS_ADDR"`
	RedisPassword        string `env:"REDIS_PASSWORD"`
	RedisDB              int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.PasswordSecret) < MinPasswordSecretLength {
		return fmt.Errorf("PASSWORD_SECRET must be at least %d characters", MinPasswordSecretLength)
	}
	if c.ArgonTime == 0 || c.ArgonMemoryKB == 0 || c.ArgonThreads == 0 {
		return fmt.Errorf("argon2 parameters must be positive")
	}
	return nil
}
