package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsboard/opsboard/internal/models"
	"github.com/opsboard/opsboard/internal/services/envios"
	"github.com/opsboard/opsboard/internal/services/registros"
)

// MetricsStore — недельный отчёт по завершённым recogidas.
type MetricsStore interface {
	CasosGestionados24h(ctx context.Context, weeks int) ([]*models.CasosSemana, error)
}

// OpsAPI — JSON-роуты дашборда поверх двух сервисов и side-store.
// Коды статусов: 502 — Airtable (primary) недоступен, 422 — невалидная cita,
// side-store-ошибки код НЕ меняют, они видны только в теле ответа и в /stats.
type OpsAPI struct {
	envios    *envios.Service
	registros *registros.Service
	metrics   MetricsStore
}

func New(e *envios.Service, r *registros.Service, m MetricsStore) *OpsAPI {
	return &OpsAPI{envios: e, registros: r, metrics: m}
}

func (a *OpsAPI) Routes(r chi.Router) {
	r.Get("/v1/envios", a.listEnvios)
	r.Patch("/v1/envios/{id}", a.updateEnvio)
	r.Get("/v1/registros", a.listRegistros)
	r.Post("/v1/registros", a.createRegistro)
	r.Patch("/v1/registros/{id}", a.updateRegistro)
	r.Get("/v1/metrics/casos-gestionados", a.casosGestionados)
	r.Get("/stats", a.stats)
}

func (a *OpsAPI) listEnvios(w http.ResponseWriter, r *http.Request) {
	buckets, err := a.envios.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

type updateEnvioResponse struct {
	Envio       *models.Envio `json:"envio"`
	SideEffects []sideEffect  `json:"sideEffects,omitempty"`
}

type sideEffect struct {
	Op     string `json:"op"`
	Numero string `json:"numero"`
	Error  string `json:"error,omitempty"`
}

func (a *OpsAPI) updateEnvio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	e, effects, err := a.envios.Update(r.Context(), id, fields)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	resp := updateEnvioResponse{Envio: e}
	for _, se := range effects {
		out := sideEffect{Op: se.Op, Numero: se.Numero}
		if se.Err != nil {
			out.Error = se.Err.Error()
		}
		resp.SideEffects = append(resp.SideEffects, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *OpsAPI) listRegistros(w http.ResponseWriter, r *http.Request) {
	buckets, err := a.registros.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (a *OpsAPI) createRegistro(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	id, err := a.registros.Create(r.Context(), fields)
	if err != nil {
		if errors.Is(err, registros.ErrCitaInvalida) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *OpsAPI) updateRegistro(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	reg, err := a.registros.Update(r.Context(), id, fields)
	if err != nil {
		if errors.Is(err, registros.ErrCitaInvalida) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registro": reg})
}

func (a *OpsAPI) casosGestionados(w http.ResponseWriter, r *http.Request) {
	weeks := 12
	if q := r.URL.Query().Get("weeks"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 104 {
			writeError(w, http.StatusBadRequest, errors.New("weeks must be 1..104"))
			return
		}
		weeks = n
	}
	semanas, err := a.metrics.CasosGestionados24h(r.Context(), weeks)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"semanas": semanas})
}

func (a *OpsAPI) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"envios":    a.envios.Stats(),
		"registros": a.registros.Stats(),
	})
}

// decodeFields читает тело PATCH/POST: плоский JSON-объект поле→значение.
func decodeFields(w http.ResponseWriter, r *http.Request) (models.FieldPatch, bool) {
	var fields models.FieldPatch
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return nil, false
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty field patch"))
		return nil, false
	}
	return fields, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
