// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

type Config struct {
	App           AppConfig                   `mapstructure:"app"`
	Server        ServerConfig                `mapstructure:"server"`
	Database      DatabaseConfig              `mapstructure:"database"`
	Camunda       CamundaConfig               `mapstructure:"camunda"`
	Auth          AuthConfig                  `mapstructure:"auth"`
	NLU           NLUConfig                   `mapstructure:"nlu"`
	Engine        EngineConfig                `mapstructure:"engine"`
	Capabilities  map[string]CapabilityConfig `mapstructure:"capabilities"`
	Notifications NotificationConfig          `mapstructure:"notifications"`
	Logging       LoggingConfig               `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	ReadTimeout    int    `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	OrdersIndex string   `mapstructure:"orders_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type CamundaConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BrokerAddress string `mapstructure:"broker_address"`
	Plaintext     bool   `mapstructure:"plaintext"`
	MaxJobsActive int    `mapstructure:"max_jobs_active"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
}

type AuthConfig struct {
	Keycloak struct {
		Enabled      bool   `mapstructure:"enabled"`
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`
}

// NLUConfig holds the tunable thresholds of the rule-based classifier.
type NLUConfig struct {
	Strategy          string  `mapstructure:"strategy"`
	SpecificThreshold float64 `mapstructure:"specific_threshold"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	AmbiguityPenalty  float64 `mapstructure:"ambiguity_penalty"`
}

type EngineConfig struct {
	ExecuteTimeout int `mapstructure:"execute_timeout_ms"`
	RecordTimeout  int `mapstructure:"record_timeout_ms"`
	SessionHistory int `mapstructure:"session_history"`
	SessionTTL     int `mapstructure:"session_ttl_minutes"`
}

type CapabilityConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds
}

type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (e EngineConfig) ExecuteTimeoutDuration() time.Duration {
	return GetDuration(e.ExecuteTimeout)
}

func (e EngineConfig) RecordTimeoutDuration() time.Duration {
	return GetDuration(e.RecordTimeout)
}

func (e EngineConfig) SessionTTLDuration() time.Duration {
	return time.Duration(e.SessionTTL) * time.Minute
}
