package sla

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/opsboard/opsboard/internal/models"
)

var numericNumero = regexp.MustCompile(`^[0-9]+$`)

// IsSyncKey проверяет, что numero годится как ключ side-store: только цифры.
// Нечисловые номера из синхронизации исключаются — это инвариант, а не
// косметика отображения.
func IsSyncKey(numero string) bool {
	return numericNumero.MatchString(numero)
}

// MatchEnvio — поиск подстрокой без учёта регистра по фиксированному набору
// полей (seguimiento, numero, producto). Отсутствующее поле — пустая строка,
// пустой запрос матчит всё.
func MatchEnvio(e *models.Envio, term string) bool {
	return matchFields(term, e.Seguimiento, e.Numero, e.Producto)
}

func MatchRegistro(r *models.Registro, term string) bool {
	return matchFields(term, r.Seguimiento, r.Numero, r.Cliente)
}

func matchFields(term string, fields ...string) bool {
	t := strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), t) {
			return true
		}
	}
	return false
}

// SortEnviosByNumero сравнивает номера как локаль-зависимые числовые строки
// ("9" < "10"), без учёта регистра — так же сортировал исходный список envios.
// Collator не потокобезопасен, поэтому создаётся на каждый вызов.
func SortEnviosByNumero(envios []*models.Envio) {
	c := collate.New(language.Spanish, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(envios, func(i, j int) bool {
		return c.CompareString(envios[i].Numero, envios[j].Numero) < 0
	})
}

// SortRegistrosByCreated — registros без даты отправки упорядочиваются по
// времени создания (новые сверху).
func SortRegistrosByCreated(registros []*models.Registro) {
	sort.SliceStable(registros, func(i, j int) bool {
		return registros[i].CreatedAt.After(registros[j].CreatedAt)
	})
}
