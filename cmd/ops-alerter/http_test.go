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
	"github.com/opsboard/opsboard/internal/integrations/airtable/fake"
	"github.com/opsboard/opsboard/internal/services/alerts"
)

type noopProducer struct{}

func (noopProducer) Publish(_ context.Context, _ string, _, _ []byte) error { return nil }

func TestRunAlerterHTTPServer_Serves(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	a := alerts.New(fake.New(), noopProducer{}, "registro.cita-alert")
	cfg := &config.Config{}
	cfg.OpsBoard.AlerterPollIntervalSeconds = 60
	cfg.OpsBoard.AlerterLeadMinutes = 60

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runAlerterHTTPServer(ctx, alerterHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(addr string) { addrCh <- addr },
			alerter:     a,
			cfg:         cfg,
		})
	}()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "totalCycles")

	resp, err = http.Post("http://"+addr+"/trigger", "application/json", nil)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "triggered")

	resp, err = http.Get("http://" + addr + "/config")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "leadMinutes")

	resp, err = http.Get("http://" + addr + "/swagger.json")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "\"swagger\"")

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case <-errCh:
	}
}

func TestRunAlerterHTTPServer_MissingSwagger(t *testing.T) {
	err := runAlerterHTTPServer(context.Background(), alerterHTTPOpts{httpAddr: "127.0.0.1:0"})
	require.Error(t, err)
}
