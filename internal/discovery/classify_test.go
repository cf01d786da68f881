package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

func TestClassifyTenderSize(t *testing.T) {
	tests := []struct {
		value float64
		want  TenderSize
	}{
		{0, SizeSmall},
		{49_999, SizeSmall},
		{50_000, SizeMedium},
		{499_999, SizeMedium},
		{500_000, SizeLarge},
		{4_999_999, SizeLarge},
		{5_000_000, SizeMega},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyTenderSize(tt.value), "value %.0f", tt.value)
	}
}

func TestClassifyGovernmentLevel(t *testing.T) {
	tests := []struct {
		name string
		org  pncp.Organization
		want GovernmentLevel
	}{
		{"federal sphere", pncp.Organization{SphereID: "F"}, LevelFederal},
		{"district counts as federal", pncp.Organization{SphereID: "D"}, LevelFederal},
		{"state sphere", pncp.Organization{SphereID: "E"}, LevelState},
		{"municipal sphere", pncp.Organization{SphereID: "M"}, LevelMunicipal},
		{"prefeitura by name", pncp.Organization{Name: "Prefeitura Municipal de Campinas"}, LevelMunicipal},
		{"state secretariat by name", pncp.Organization{Name: "Secretaria de Estado da Saúde"}, LevelState},
		{"ministry by name", pncp.Organization{Name: "Ministério da Economia"}, LevelFederal},
		{"unknown", pncp.Organization{Name: "Fundação Qualquer"}, LevelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyGovernmentLevel(tt.org))
		})
	}
}

func TestCandidateKey(t *testing.T) {
	c := Candidate{Tender: pncp.Tender{
		Year:         2026,
		Sequential:   3,
		Organization: pncp.Organization{CNPJ: "11.222.333/0001-44"},
		Unit:         pncp.OrgUnit{UF: "MG"},
	}}
	assert.Equal(t, RecordKey{CNPJ: "11222333000144", Year: 2026, Sequential: 3, UF: "MG"}, c.Key())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	assert.NoError(t, err)
	assert.Equal(t, StrategySampling, s)

	s, err = ParseStrategy("exhaustive")
	assert.NoError(t, err)
	assert.Equal(t, StrategyExhaustive, s)

	_, err = ParseStrategy("yolo")
	assert.Error(t, err)
}
