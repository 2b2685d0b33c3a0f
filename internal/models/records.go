package models

import "time"

// Состояния, как они приходят из Airtable (свободный текст, набор открытый).
const (
	EstadoEntregado         = "Entregado"
	EstadoDevuelto          = "Devuelto"
	EstadoRecogidaHecha     = "Recogida hecha"
	EstadoRecogidaEnviada   = "Recogida enviada"
	EstadoPendienteRecogida = "Pendiente recogida"
)

// SeguimientoEmailEnviado — единственное "известное" значение поля seguimiento:
// уведомление об отслеживании уже отправлено получателю.
const SeguimientoEmailEnviado = "Email enviado"

type Bucket string

const (
	BucketNone           Bucket = ""
	BucketRequiresAction Bucket = "requires-action"
	BucketWaiting        Bucket = "waiting"
)

// Envio — запись отправления из Airtable. ID принадлежит Airtable и неизменен.
// Numero — человекочитаемый номер отслеживания; ключ в side-store, валиден
// только если состоит из цифр.
type Envio struct {
	ID           string     `json:"id"`
	Numero       string     `json:"numero"`
	Producto     string     `json:"producto"`
	Destinatario string     `json:"destinatario"`
	Estado       string     `json:"estado"`
	Seguimiento  string     `json:"seguimiento"`
	FechaEnvio   *time.Time `json:"fechaEnvio,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Registro — запись консультации/звонка. Частично разделяет SLA-логику с Envio:
// тот же bucketer, но FechaEnvio часто отсутствует и сортировка идёт по CreatedAt.
type Registro struct {
	ID          string     `json:"id"`
	Numero      string     `json:"numero"`
	Cliente     string     `json:"cliente"`
	Asunto      string     `json:"asunto"`
	Estado      string     `json:"estado"`
	Seguimiento string     `json:"seguimiento"`
	FechaEnvio  *time.Time `json:"fechaEnvio,omitempty"`
	Cita        *time.Time `json:"cita,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Recogida — строка side-store (Supabase/Postgres), таймстемпит SLA-переходы.
// Строки не удаляются; завершение монотонно и идемпотентно.
type Recogida struct {
	Numero               string     `json:"numero"`
	CreatedAt            time.Time  `json:"createdAt"`
	RecogidaCompletadaAt *time.Time `json:"recogidaCompletadaAt,omitempty"`
	TrackingCompletadoAt *time.Time `json:"trackingCompletadoAt,omitempty"`
}

// CasosSemana — недельный агрегат для метрики "casos gestionados en 24h".
type CasosSemana struct {
	WeekStart        time.Time `json:"weekStart"`
	TotalCompletados int       `json:"totalCompletados"`
	Dentro24h        int       `json:"dentro24h"`
}

// FieldPatch — частичное обновление полей записи (shallow merge после успеха).
type FieldPatch map[string]any
