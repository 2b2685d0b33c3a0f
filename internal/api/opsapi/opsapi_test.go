package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/internal/integrations/airtable/fake"
	"github.com/opsboard/opsboard/internal/models"
	"github.com/opsboard/opsboard/internal/services/envios"
	"github.com/opsboard/opsboard/internal/services/registros"
	"github.com/opsboard/opsboard/internal/sla"
)

type fakeStore struct {
	completeRecogidaErr error
	completed           []string
	tracked             []string
}

func (s *fakeStore) EnsureRecogidas(_ context.Context, _ []string) error { return nil }
func (s *fakeStore) CompleteRecogida(_ context.Context, numero string) error {
	if s.completeRecogidaErr != nil {
		return s.completeRecogidaErr
	}
	s.completed = append(s.completed, numero)
	return nil
}
func (s *fakeStore) CompleteTracking(_ context.Context, numero string) error {
	s.tracked = append(s.tracked, numero)
	return nil
}

type fakeMetrics struct {
	semanas []*models.CasosSemana
	err     error
}

func (m *fakeMetrics) CasosGestionados24h(_ context.Context, _ int) ([]*models.CasosSemana, error) {
	return m.semanas, m.err
}

func newTestServer(t *testing.T, at *fake.FakeClient, store *fakeStore, metrics *fakeMetrics) *httptest.Server {
	t.Helper()
	b := sla.NewBucketer(sla.BucketerConfig{})
	e := envios.New(at, store, nil, nil, b)
	r := registros.New(at, store, nil, b)
	api := New(e, r, metrics)

	router := chi.NewRouter()
	api.Routes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func overdue() *time.Time {
	t := time.Now().UTC().Add(-5 * 24 * time.Hour)
	return &t
}

func TestListEnvios_Buckets(t *testing.T) {
	at := fake.New()
	at.Seed([]*models.Envio{
		{ID: "recA", Numero: "100", Estado: models.EstadoPendienteRecogida, FechaEnvio: overdue()},
		{ID: "recB", Numero: "200", Estado: models.EstadoEntregado},
	}, nil)
	srv := newTestServer(t, at, &fakeStore{}, &fakeMetrics{})

	resp, err := http.Get(srv.URL + "/v1/envios")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var out struct {
		RequiresAction []*models.Envio `json:"requiresAction"`
		Waiting        []*models.Envio `json:"waiting"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.RequiresAction, 1)
	require.Equal(t, "100", out.RequiresAction[0].Numero)
	// Entregado — терминальное, ни в одной корзине.
	require.Empty(t, out.Waiting)
}

func TestListEnvios_SearchFilter(t *testing.T) {
	at := fake.New()
	at.Seed([]*models.Envio{
		{ID: "recA", Numero: "100", Producto: "Libro", Estado: models.EstadoPendienteRecogida, FechaEnvio: overdue()},
		{ID: "recB", Numero: "200", Producto: "Mesa", Estado: models.EstadoPendienteRecogida, FechaEnvio: overdue()},
	}, nil)
	srv := newTestServer(t, at, &fakeStore{}, &fakeMetrics{})

	resp, err := http.Get(srv.URL + "/v1/envios?search=libro")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		RequiresAction []*models.Envio `json:"requiresAction"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.RequiresAction, 1)
	require.Equal(t, "100", out.RequiresAction[0].Numero)
}

func TestListEnvios_AirtableDown(t *testing.T) {
	at := fake.New()
	at.ListErr = errors.New("airtable down")
	srv := newTestServer(t, at, &fakeStore{}, &fakeMetrics{})

	resp, err := http.Get(srv.URL + "/v1/envios")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func patch(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUpdateEnvio_OK(t *testing.T) {
	at := fake.New()
	at.Seed([]*models.Envio{{ID: "recA", Numero: "100", Estado: models.EstadoPendienteRecogida}}, nil)
	store := &fakeStore{}
	srv := newTestServer(t, at, store, &fakeMetrics{})

	// Прогреваем список, чтобы запись была в памяти сервиса.
	_, err := http.Get(srv.URL + "/v1/envios")
	require.NoError(t, err)

	resp := patch(t, srv.URL+"/v1/envios/recA", `{"Estado":"Recogida hecha"}`)
	require.Equal(t, 200, resp.StatusCode)

	var out updateEnvioResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, models.EstadoRecogidaHecha, out.Envio.Estado)
	require.Equal(t, []string{"100"}, store.completed)
}

func TestUpdateEnvio_SideStoreFailureKeeps200(t *testing.T) {
	at := fake.New()
	at.Seed([]*models.Envio{{ID: "recA", Numero: "100", Estado: models.EstadoPendienteRecogida}}, nil)
	store := &fakeStore{completeRecogidaErr: errors.New("supabase down")}
	srv := newTestServer(t, at, store, &fakeMetrics{})

	_, err := http.Get(srv.URL + "/v1/envios")
	require.NoError(t, err)

	resp := patch(t, srv.URL+"/v1/envios/recA", `{"Estado":"Recogida hecha"}`)
	require.Equal(t, 200, resp.StatusCode)

	var out updateEnvioResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.SideEffects, 1)
	require.Contains(t, out.SideEffects[0].Error, "supabase down")
}

func TestUpdateEnvio_PrimaryFailure502(t *testing.T) {
	at := fake.New()
	at.Seed([]*models.Envio{{ID: "recA", Numero: "100", Estado: models.EstadoPendienteRecogida}}, nil)
	at.UpdateErr = errors.New("airtable 503")
	srv := newTestServer(t, at, &fakeStore{}, &fakeMetrics{})

	resp := patch(t, srv.URL+"/v1/envios/recA", `{"Estado":"Recogida hecha"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestUpdateEnvio_BadBody400(t *testing.T) {
	srv := newTestServer(t, fake.New(), &fakeStore{}, &fakeMetrics{})

	resp := patch(t, srv.URL+"/v1/envios/recA", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = patch(t, srv.URL+"/v1/envios/recA", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateRegistro_InvalidCita422(t *testing.T) {
	at := fake.New()
	at.Seed(nil, []*models.Registro{{ID: "recR", Numero: "300", Cliente: "ACME"}})
	srv := newTestServer(t, at, &fakeStore{}, &fakeMetrics{})

	resp := patch(t, srv.URL+"/v1/registros/recR", `{"Cita":"mañana por la tarde"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateRegistro_OK(t *testing.T) {
	at := fake.New()
	srv := newTestServer(t, at, &fakeStore{}, &fakeMetrics{})

	resp, err := http.Post(srv.URL+"/v1/registros",
		"application/json", strings.NewReader(`{"Cliente":"ACME","Cita":"2026-09-01T10:00"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["id"])
}

func TestCasosGestionados(t *testing.T) {
	metrics := &fakeMetrics{semanas: []*models.CasosSemana{
		{WeekStart: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), TotalCompletados: 7, Dentro24h: 5},
	}}
	srv := newTestServer(t, fake.New(), &fakeStore{}, metrics)

	resp, err := http.Get(srv.URL + "/v1/metrics/casos-gestionados?weeks=4")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var out struct {
		Semanas []*models.CasosSemana `json:"semanas"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Semanas, 1)
	require.Equal(t, 7, out.Semanas[0].TotalCompletados)
}

func TestCasosGestionados_BadWeeks(t *testing.T) {
	srv := newTestServer(t, fake.New(), &fakeStore{}, &fakeMetrics{})

	resp, err := http.Get(srv.URL + "/v1/metrics/casos-gestionados?weeks=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	srv := newTestServer(t, fake.New(), &fakeStore{}, &fakeMetrics{})

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Contains(t, out, "envios")
	require.Contains(t, out, "registros")
}
