package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsboard/opsboard/config"
	"github.com/opsboard/opsboard/internal/api/opsapi"
	"github.com/opsboard/opsboard/internal/broker/kafka"
	"github.com/opsboard/opsboard/internal/cache"
	"github.com/opsboard/opsboard/internal/cache/rediscache"
	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/integrations/airtable/airtablehttp"
	"github.com/opsboard/opsboard/internal/integrations/airtable/fake"
	"github.com/opsboard/opsboard/internal/integrations/airtable/ratelimited"
	"github.com/opsboard/opsboard/internal/models"
	"github.com/opsboard/opsboard/internal/services/envios"
	"github.com/opsboard/opsboard/internal/services/registros"
	"github.com/opsboard/opsboard/internal/sla"
	"github.com/opsboard/opsboard/internal/storage/pgrecogidas"
)

type apiFactories struct {
	newSideStore      func(cfg *config.Config) (*pgrecogidas.Storage, error)
	newCache          func(cfg *config.Config) cache.BytesCache
	newProducer       func(cfg *config.Config) envios.Producer
	newRateLimiter    func(cfg *config.Config) ratelimited.Limiter
	newAirtableClient func(cfg *config.Config, rl ratelimited.Limiter) airtable.Client
}

func defaultAPIFactories() apiFactories {
	return apiFactories{
		newSideStore: func(cfg *config.Config) (*pgrecogidas.Storage, error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			return pgrecogidas.New(connString)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newProducer: func(cfg *config.Config) envios.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) ratelimited.Limiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newAirtableClient: newAirtableClient,
	}
}

// По умолчанию для демо поднимаем fake с предзасеянными записями, если base_url
// не задан. Иначе — живой Airtable за лимитером.
func newAirtableClient(cfg *config.Config, rl ratelimited.Limiter) airtable.Client {
	if cfg.Airtable.BaseURL == "" || cfg.Airtable.Mode == "fake" {
		return seededFake()
	}
	inner := airtablehttp.New(
		cfg.Airtable.BaseURL,
		cfg.Airtable.APIKey,
		cfg.Airtable.BaseID,
		cfg.Airtable.EnviosTable,
		cfg.Airtable.RegistrosTable,
	)
	return ratelimited.New(inner, rl, cfg.Airtable.RateLimitPerMinute)
}

func seededFake() *fake.FakeClient {
	now := time.Now().UTC()
	old := now.Add(-5 * 24 * time.Hour)
	cita := now.Add(45 * time.Minute)
	return fake.New().Seed(
		[]*models.Envio{
			{ID: "recDemo1", Numero: "1001", Producto: "Colchón", Destinatario: "María", Estado: models.EstadoPendienteRecogida, FechaEnvio: &old, CreatedAt: old},
			{ID: "recDemo2", Numero: "1002", Producto: "Almohada", Destinatario: "Jorge", Estado: models.EstadoRecogidaEnviada, FechaEnvio: &now, CreatedAt: now},
		},
		[]*models.Registro{
			{ID: "recDemo3", Numero: "2001", Cliente: "ACME", Asunto: "Cambio de talla", Cita: &cita, CreatedAt: now},
		},
	)
}

type opsAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     opsAPIOpts
	api      *opsapi.OpsAPI
	envios   *envios.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapOpsAPI() *opsAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.OpsBoard.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.OpsBoard.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ops-api"
	}
	topic := cfg.Kafka.RecordUpdatedTopicName
	if topic == "" {
		topic = "record.updated"
	}
	cacheTTL := time.Duration(cfg.OpsBoard.ListCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	enviosTable := cfg.Airtable.EnviosTable
	if enviosTable == "" {
		enviosTable = "Envios"
	}
	registrosTable := cfg.Airtable.RegistrosTable
	if registrosTable == "" {
		registrosTable = "Registros"
	}

	f := defaultAPIFactories()
	st := mustOpenPostgresWithRetry(cfg, f, 60*time.Second)
	rc := f.newCache(cfg)
	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	at := f.newAirtableClient(cfg, rl)

	b := sla.NewBucketer(sla.BucketerConfig{
		ActionThresholdHours: cfg.OpsBoard.SLAActionThresholdHours,
	})

	enviosSvc := envios.New(at, st, rc, producer, b).
		WithSettings(enviosTable, topic, cacheTTL)
	registrosSvc := registros.New(at, st, producer, b).
		WithSettings(registrosTable, topic)
	api := opsapi.New(enviosSvc, registrosSvc, st)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &opsAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: opsAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		envios:   enviosSvc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(cfg *config.Config, f apiFactories, wait time.Duration) *pgrecogidas.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := f.newSideStore(cfg)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *opsAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *opsAPIApp) Run() error {
	return runOpsAPI(a.ctx, a.opts, a.api, a.envios, a.consumer)
}
