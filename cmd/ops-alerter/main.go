package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsboard/opsboard/config"
	"github.com/opsboard/opsboard/internal/broker/kafka"
	"github.com/opsboard/opsboard/internal/cache/rediscache"
	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/integrations/airtable/airtablehttp"
	"github.com/opsboard/opsboard/internal/integrations/airtable/fake"
	"github.com/opsboard/opsboard/internal/integrations/airtable/ratelimited"
	"github.com/opsboard/opsboard/internal/services/alerts"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	topic := cfg.Kafka.CitaAlertTopicName
	if topic == "" {
		topic = "registro.cita-alert"
	}
	pollInterval := time.Duration(cfg.OpsBoard.AlerterPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 60 * time.Second
	}
	lead := time.Duration(cfg.OpsBoard.AlerterLeadMinutes) * time.Minute
	if lead <= 0 {
		lead = 60 * time.Minute
	}
	httpAddr := cfg.OpsBoard.AlerterHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	var at airtable.Client
	if cfg.Airtable.BaseURL == "" || cfg.Airtable.Mode == "fake" {
		at = fake.New()
	} else {
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		rl := rediscache.NewRateLimiter(redisAddr)
		at = ratelimited.New(airtablehttp.New(
			cfg.Airtable.BaseURL,
			cfg.Airtable.APIKey,
			cfg.Airtable.BaseID,
			cfg.Airtable.EnviosTable,
			cfg.Airtable.RegistrosTable,
		), rl, cfg.Airtable.RateLimitPerMinute)
	}

	a := alerts.New(at, producer, topic).WithSettings(pollInterval, lead)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runAlerterHTTPServer(ctx, alerterHTTPOpts{
			httpAddr:    httpAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			alerter:     a,
			cfg:         cfg,
		})
	}()

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
	<-httpErr
}
