package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const (
	defaultKeywordWeight = 10
	defaultStrongWeight  = 25
)

// Vocabulary is the term list a KeywordScorer matches against. CoreTerms
// gate scoring, Keywords accumulate the base score and StrongKeywords are
// the high-signal product terms.
type Vocabulary struct {
	CoreTerms      []string `yaml:"core_terms"`
	Keywords       []string `yaml:"keywords"`
	StrongKeywords []string `yaml:"strong_keywords"`
	KeywordWeight  float64  `yaml:"keyword_weight"`
	StrongWeight   float64  `yaml:"strong_weight"`
}

func (v *Vocabulary) applyDefaults() {
	if v.KeywordWeight <= 0 {
		v.KeywordWeight = defaultKeywordWeight
	}
	if v.StrongWeight <= 0 {
		v.StrongWeight = defaultStrongWeight
	}
}

// LoadVocabulary reads a vocabulary from a YAML file. An empty path
// returns the built-in security-seal vocabulary.
func LoadVocabulary(path string) (Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, eris.Wrapf(err, "scorer: read vocabulary %s", path)
	}
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, eris.Wrapf(err, "scorer: parse vocabulary %s", path)
	}
	if len(v.CoreTerms) == 0 || len(v.Keywords) == 0 {
		return Vocabulary{}, eris.Errorf("scorer: vocabulary %s needs core_terms and keywords", path)
	}
	return v, nil
}

// DefaultVocabulary is the built-in vocabulary for security-seal (lacre)
// procurement. Terms are Portuguese with the English forms that show up in
// mixed-language tender text.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		CoreTerms: []string{
			"lacre", "selo", "seal", "inviolavel", "tamper",
		},
		Keywords: []string{
			"lacre", "lacres", "selo", "selos", "seal", "seals",
			"lacre plastico", "lacre metalico", "lacre de aco",
			"lacre de nylon", "lacre de polipropileno", "lacre pp",
			"lacre pead", "lacre com numeracao", "lacre identificado",
			"lacre rastreavel", "lacre hidrometria", "lacre eletrico",
			"inviolavel", "tamper evident", "tamper proof",
			"anti-violacao", "antiviolacao", "dispositivo de seguranca",
			"trava", "travamento", "fechamento",
			"rastreabilidade", "gravacao a laser",
			"envelope com lacre", "envelope lacrado",
			"pulseira com lacre",
		},
		StrongKeywords: []string{
			"lacre de seguranca", "lacre inviolavel", "lacre antifraude",
			"lacre numerado", "lacre sequencial", "etiqueta void",
			"void label", "selo-lacre", "lacre personalizado",
			"lacre para hidrometro", "lacre medidor",
			"pulseira inviolavel", "envelope de seguranca",
			"security seal",
		},
	}
}
