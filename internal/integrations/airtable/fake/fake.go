package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/opsboard/opsboard/internal/integrations/airtable"
	"github.com/opsboard/opsboard/internal/models"
)

// FakeClient — заглушка Airtable для тестов и локального demo-режима.
// Держит записи в памяти; UpdateRecord реально мутирует их, чтобы сквозные
// сценарии (патч -> повторный fetch) вели себя как настоящая база.
type FakeClient struct {
	mu        sync.Mutex
	envios    []*models.Envio
	registros []*models.Registro
	nextID    int

	// Необязательные ручки для тестов отказов.
	ListErr   error
	UpdateErr error
}

func New() *FakeClient {
	now := time.Now().UTC()
	threeDays := now.AddDate(0, 0, -3)
	oneHour := now.Add(-time.Hour)
	return &FakeClient{
		nextID: 100,
		envios: []*models.Envio{
			{ID: "recDemo1", Numero: "123", Producto: "Router", Estado: models.EstadoPendienteRecogida, FechaEnvio: &threeDays, CreatedAt: threeDays},
			{ID: "recDemo2", Numero: "456", Producto: "Decodificador", Estado: models.EstadoPendienteRecogida, FechaEnvio: &oneHour, CreatedAt: oneHour},
			{ID: "recDemo3", Numero: "789", Producto: "Mando", Estado: models.EstadoEntregado, FechaEnvio: &threeDays, CreatedAt: threeDays},
		},
		registros: []*models.Registro{
			{ID: "recDemo4", Numero: "123", Cliente: "ACME", Asunto: "Consulta envío", Estado: "Llamada pendiente", CreatedAt: oneHour},
		},
	}
}

func (f *FakeClient) Seed(envios []*models.Envio, registros []*models.Registro) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envios = envios
	f.registros = registros
	return f
}

func (f *FakeClient) ListEnvios(ctx context.Context) ([]*models.Envio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]*models.Envio, len(f.envios))
	for i, e := range f.envios {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (f *FakeClient) ListRegistros(ctx context.Context) ([]*models.Registro, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]*models.Registro, len(f.registros))
	for i, r := range f.registros {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

func (f *FakeClient) UpdateRecord(ctx context.Context, table, id string, fields models.FieldPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	for _, e := range f.envios {
		if e.ID == id {
			applyEnvio(e, fields)
			return nil
		}
	}
	for _, r := range f.registros {
		if r.ID == id {
			applyRegistro(r, fields)
			return nil
		}
	}
	return errors.Errorf("record %s not found", id)
}

func (f *FakeClient) CreateRecord(ctx context.Context, table string, fields models.FieldPatch) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("recFake%d", f.nextID)
	r := &models.Registro{ID: id, CreatedAt: time.Now().UTC()}
	if v, ok := fields[airtable.FieldCliente].(string); ok {
		r.Cliente = v
	}
	if v, ok := fields[airtable.FieldAsunto].(string); ok {
		r.Asunto = v
	}
	if v, ok := fields[airtable.FieldNumero].(string); ok {
		r.Numero = v
	}
	applyRegistro(r, fields)
	f.registros = append(f.registros, r)
	return id, nil
}

func applyEnvio(e *models.Envio, fields models.FieldPatch) {
	if v, ok := fields[airtable.FieldEstado].(string); ok {
		e.Estado = v
	}
	if v, ok := fields[airtable.FieldSeguimiento].(string); ok {
		e.Seguimiento = v
	}
	if v, ok := fields[airtable.FieldProducto].(string); ok {
		e.Producto = v
	}
}

func applyRegistro(r *models.Registro, fields models.FieldPatch) {
	if v, ok := fields[airtable.FieldEstado].(string); ok {
		r.Estado = v
	}
	if v, ok := fields[airtable.FieldSeguimiento].(string); ok {
		r.Seguimiento = v
	}
	if v, ok := fields[airtable.FieldCita].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			t = t.UTC()
			r.Cita = &t
		}
	}
}

func (f *FakeClient) AddRegistro(r *models.Registro) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = fmt.Sprintf("recFake%d", f.nextID)
	f.registros = append(f.registros, r)
	return r.ID
}
