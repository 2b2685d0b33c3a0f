package sla

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsboard/opsboard/internal/models"
)

func TestIsSyncKey(t *testing.T) {
	require.True(t, IsSyncKey("123"))
	require.True(t, IsSyncKey("0007"))
	require.False(t, IsSyncKey(""))
	require.False(t, IsSyncKey("AB123"))
	require.False(t, IsSyncKey("12 3"))
	require.False(t, IsSyncKey("12.3"))
}

func TestMatchEnvio(t *testing.T) {
	e := &models.Envio{Numero: "TRK100", Producto: "Router Fibra", Seguimiento: "Email enviado"}

	require.True(t, MatchEnvio(e, ""))
	require.True(t, MatchEnvio(e, "trk1"))
	require.True(t, MatchEnvio(e, "FIBRA"))
	require.True(t, MatchEnvio(e, "email"))
	require.False(t, MatchEnvio(e, "decodificador"))

	// Отсутствующие поля нормализуются в пустую строку и матчат пустой запрос.
	empty := &models.Envio{}
	require.True(t, MatchEnvio(empty, ""))
	require.False(t, MatchEnvio(empty, "x"))
}

func TestSortEnviosByNumero_NumericAware(t *testing.T) {
	envios := []*models.Envio{
		{Numero: "10"},
		{Numero: "9"},
		{Numero: "100"},
		{Numero: "2"},
	}
	SortEnviosByNumero(envios)

	got := make([]string, 0, len(envios))
	for _, e := range envios {
		got = append(got, e.Numero)
	}
	require.Equal(t, []string{"2", "9", "10", "100"}, got)
}
