package airtable

import (
	"context"

	"github.com/opsboard/opsboard/internal/models"
)

// Имена полей в базе — свободный текст, как их завели в Airtable.
const (
	FieldNumero       = "Número"
	FieldProducto     = "Producto"
	FieldDestinatario = "Destinatario"
	FieldCliente      = "Cliente"
	FieldAsunto       = "Asunto"
	FieldEstado       = "Estado"
	FieldSeguimiento  = "Seguimiento"
	FieldFechaEnvio   = "Fecha de envío"
	FieldCita         = "Cita"
)

// Client — то, что ядру нужно от Airtable: прочитать таблицу целиком
// (пагинация внутри), пропатчить поля записи, создать запись. Схема и
// маппинг остаются заботой реализации.
type Client interface {
	ListEnvios(ctx context.Context) ([]*models.Envio, error)
	ListRegistros(ctx context.Context) ([]*models.Registro, error)
	UpdateRecord(ctx context.Context, table, id string, fields models.FieldPatch) error
	CreateRecord(ctx context.Context, table string, fields models.FieldPatch) (string, error)
}
