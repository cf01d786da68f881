package scorer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Segurança", "seguranca"},
		{"LACRE INVIOLÁVEL", "lacre inviolavel"},
		{"hidrômetro", "hidrometro"},
		{"  plain  ", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in))
	}
}

func TestScoreRequiresCoreTerm(t *testing.T) {
	s := NewKeywordScorer(DefaultVocabulary())

	score, matched := s.Score("aquisição de material de escritório e proteção")
	assert.Zero(t, score)
	assert.Empty(t, matched)
}

func TestScoreAccentInsensitive(t *testing.T) {
	s := NewKeywordScorer(DefaultVocabulary())

	withAccents, _ := s.Score("Aquisição de lacre de segurança numerado")
	folded, _ := s.Score("aquisicao de lacre de seguranca numerado")
	assert.Equal(t, withAccents, folded)
	assert.Greater(t, withAccents, 0.0)
}

func TestScoreStrongKeywordsWeighMore(t *testing.T) {
	s := NewKeywordScorer(DefaultVocabulary())

	weak, _ := s.Score("fornecimento de lacre")
	strong, matched := s.Score("fornecimento de lacre de segurança inviolável numerado")
	assert.Greater(t, strong, weak)
	assert.Contains(t, matched, "lacre de seguranca")
}

func TestScoreCapsAtHundred(t *testing.T) {
	s := NewKeywordScorer(DefaultVocabulary())

	text := "lacre de segurança lacre inviolável lacre antifraude lacre numerado " +
		"lacre sequencial etiqueta void selo-lacre lacre personalizado " +
		"lacre para hidrômetro pulseira inviolável envelope de segurança"
	score, _ := s.Score(text)
	assert.Equal(t, 100.0, score)
}

func TestScoreDeterministic(t *testing.T) {
	s := NewKeywordScorer(DefaultVocabulary())
	text := "registro de preços para lacre numerado e selo de segurança"

	s1, m1 := s.Score(text)
	s2, m2 := s.Score(text)
	assert.Equal(t, s1, s2)
	assert.Equal(t, m1, m2)
}

func TestRelevant(t *testing.T) {
	s := NewKeywordScorer(DefaultVocabulary())

	assert.True(t, s.Relevant("lacre plástico para hidrômetro"))
	assert.False(t, s.Relevant("aquisição de veículos"))
	assert.False(t, s.Relevant(""))
}

func TestStrongMatchCount(t *testing.T) {
	s := NewKeywordScorer(DefaultVocabulary())

	assert.Equal(t, 0, s.StrongMatchCount("lacre plástico comum"))
	assert.Equal(t, 2, s.StrongMatchCount("lacre de segurança numerado e etiqueta void"))
}

func TestLoadVocabularyFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	content := []byte(`
core_terms: [parafuso]
keywords: [parafuso, porca, arruela]
strong_keywords: [parafuso sextavado]
strong_weight: 40
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"parafuso"}, v.CoreTerms)
	assert.Equal(t, 40.0, v.StrongWeight)

	s := NewKeywordScorer(v)
	score, matched := s.Score("parafuso sextavado galvanizado")
	assert.Equal(t, 50.0, score)
	assert.Len(t, matched, 2)
}

func TestLoadVocabularyEmptyPathUsesDefault(t *testing.T) {
	v, err := LoadVocabulary("")
	require.NoError(t, err)
	assert.NotEmpty(t, v.CoreTerms)
	assert.NotEmpty(t, v.StrongKeywords)
}

func TestLoadVocabularyRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("keywords: [a]"), 0o644))

	_, err := LoadVocabulary(path)
	assert.Error(t, err)
}

func TestLoadVocabularyMissingFile(t *testing.T) {
	_, err := LoadVocabulary(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
