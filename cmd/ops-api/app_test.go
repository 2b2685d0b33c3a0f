package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/config"
	"github.com/opsboard/opsboard/internal/api/opsapi"
	"github.com/opsboard/opsboard/internal/integrations/airtable/fake"
	"github.com/opsboard/opsboard/internal/integrations/airtable/ratelimited"
	"github.com/opsboard/opsboard/internal/models"
	"github.com/opsboard/opsboard/internal/services/envios"
	"github.com/opsboard/opsboard/internal/services/registros"
	"github.com/opsboard/opsboard/internal/sla"
)

type fakeSideStore struct{}

func (fakeSideStore) EnsureRecogidas(_ context.Context, _ []string) error { return nil }
func (fakeSideStore) CompleteRecogida(_ context.Context, _ string) error  { return nil }
func (fakeSideStore) CompleteTracking(_ context.Context, _ string) error  { return nil }
func (fakeSideStore) CasosGestionados24h(_ context.Context, _ int) ([]*models.CasosSemana, error) {
	return nil, nil
}

type fakeConsumer struct{}

func (fakeConsumer) Consume(ctx context.Context, _ func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunOpsAPI_Serves(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	b := sla.NewBucketer(sla.BucketerConfig{})
	at := seededFake()
	e := envios.New(at, fakeSideStore{}, nil, nil, b)
	r := registros.New(at, fakeSideStore{}, nil, b)
	api := opsapi.New(e, r, fakeSideStore{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := opsAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "record.updated",
		consumerGroup: "ops-api",
		onListen:      func(addr string) { addrCh <- addr },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- runOpsAPI(ctx, opts, api, e, fakeConsumer{}) }()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/v1/envios")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "requiresAction")

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestRunOpsAPI_MissingSwagger(t *testing.T) {
	err := runOpsAPI(context.Background(), opsAPIOpts{httpAddr: "127.0.0.1:0"}, nil, nil, nil)
	require.Error(t, err)
}

func TestNewAirtableClient_ModeSelection(t *testing.T) {
	cfgFake := &config.Config{}
	cfgFake.Airtable.Mode = "fake"
	c := newAirtableClient(cfgFake, nil)
	_, ok := c.(*fake.FakeClient)
	require.True(t, ok)

	// base_url не задан — тоже fake, чтобы демо поднималось без ключей.
	c = newAirtableClient(&config.Config{}, nil)
	_, ok = c.(*fake.FakeClient)
	require.True(t, ok)

	cfgHTTP := &config.Config{}
	cfgHTTP.Airtable.BaseURL = "https://api.airtable.com"
	cfgHTTP.Airtable.APIKey = "k"
	cfgHTTP.Airtable.BaseID = "app123"
	c = newAirtableClient(cfgHTTP, nil)
	_, ok = c.(*ratelimited.Client)
	require.True(t, ok)
}

func TestSeededFake_HasActionableEnvio(t *testing.T) {
	at := seededFake()
	envios, err := at.ListEnvios(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, envios)

	b := sla.NewBucketer(sla.BucketerConfig{})
	found := false
	for _, e := range envios {
		if b.BucketEnvio(e, time.Now().UTC()) == models.BucketRequiresAction {
			found = true
		}
	}
	require.True(t, found, "seed должен содержать хотя бы одну просроченную запись")
}
