package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Airtable AirtableConfig `yaml:"airtable"`
	OpsBoard OpsBoardConfig `yaml:"opsboard"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	RecordUpdatedTopicName string `yaml:"record_updated_topic_name"`
	CitaAlertTopicName     string `yaml:"cita_alert_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AirtableConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	BaseID         string `yaml:"base_id"`
	EnviosTable    string `yaml:"envios_table"`
	RegistrosTable string `yaml:"registros_table"`
	// "http" | "fake". The fake mode serves deterministic records for local demos.
	Mode string `yaml:"mode"`

	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type OpsBoardConfig struct {
	HTTPAddr            string `yaml:"http_addr"`
	KafkaConsumerGroup  string `yaml:"kafka_consumer_group"`
	ListCacheTTLSeconds int    `yaml:"list_cache_ttl_seconds"`

	// SLA settings shared by envios and registros. Zero means the package
	// defaults (48h threshold, "Email enviado" ack).
	SLAActionThresholdHours int `yaml:"sla_action_threshold_hours"`

	AlerterHTTPAddr            string `yaml:"alerter_http_addr"`
	AlerterPollIntervalSeconds int    `yaml:"alerter_poll_interval_seconds"`
	AlerterLeadMinutes         int    `yaml:"alerter_lead_minutes"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
