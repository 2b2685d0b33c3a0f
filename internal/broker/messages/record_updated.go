package messages

import "time"

// RecordUpdated публикуется после успешного патча записи в Airtable.
// Консьюмеры (другие инстансы ops-api) сбрасывают по нему кэш списка.
// Доставка best-effort: событие — побочный эффект, не источник истины.
type RecordUpdated struct {
	Table     string    `json:"table"`
	RecordID  string    `json:"record_id"`
	Numero    string    `json:"numero,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	// Новые значения полей, от которых зависят side-эффекты.
	Estado      string `json:"estado,omitempty"`
	Seguimiento string `json:"seguimiento,omitempty"`
}

// CitaAlert публикуется алертером, когда приближается время встречи.
type CitaAlert struct {
	RegistroID string    `json:"registro_id"`
	Cliente    string    `json:"cliente,omitempty"`
	Cita       time.Time `json:"cita"`
	FiredAt    time.Time `json:"fired_at"`
}
