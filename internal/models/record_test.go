package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSearchText(t *testing.T) {
	tests := []struct {
		name        string
		contextPath string
		description string
		code        string
		unit        string
		want        string
	}{
		{
			name:        "full context",
			contextPath: "Demoliciones > Tabiques",
			description: "Demolición de tabique de ladrillo hueco sencillo",
			code:        "0101005",
			unit:        "m²",
			want:        "Demoliciones > Tabiques > Demolición de tabique de ladrillo hueco sencillo (0101005 m²)",
		},
		{
			name:        "no context",
			description: "Carga manual de escombros",
			code:        "0102010",
			unit:        "m³",
			want:        "Carga manual de escombros (0102010 m³)",
		},
		{
			name:        "no code or unit",
			contextPath: "Albañilería",
			description: "Ayudas de albañilería",
			want:        "Albañilería > Ayudas de albañilería",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSearchText(tt.contextPath, tt.description, tt.code, tt.unit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalogRecordKey(t *testing.T) {
	r := CatalogRecord{Code: "0101005", Year: 2024}
	assert.Equal(t, "2024_0101005", r.Key())
}

func TestContextPath(t *testing.T) {
	r := CatalogRecord{Chapter: "Demoliciones", Section: "Tabiques"}
	assert.Equal(t, "Demoliciones > Tabiques", r.ContextPath())

	r.Section = ""
	assert.Equal(t, "Demoliciones", r.ContextPath())

	r.Chapter = ""
	assert.Equal(t, "", r.ContextPath())
}

func TestRecordSearchTextUsesContext(t *testing.T) {
	r := CatalogRecord{
		Code:        "0301020",
		Year:        2024,
		Description: "Hormigón armado HA-25 en zapatas",
		Unit:        "m³",
		Chapter:     "Cimentaciones",
	}
	assert.Equal(t,
		"Cimentaciones > Hormigón armado HA-25 en zapatas (0301020 m³)",
		r.BuildSearchText())
}
