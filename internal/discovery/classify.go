package discovery

import (
	"strings"

	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

// GovernmentLevel is the sphere of government a tender belongs to.
type GovernmentLevel string

const (
	LevelFederal   GovernmentLevel = "federal"
	LevelState     GovernmentLevel = "state"
	LevelMunicipal GovernmentLevel = "municipal"
	LevelUnknown   GovernmentLevel = "unknown"
)

// TenderSize buckets tenders by monetary value (BRL).
type TenderSize string

const (
	SizeSmall  TenderSize = "small"  // < 50k
	SizeMedium TenderSize = "medium" // 50k .. 500k
	SizeLarge  TenderSize = "large"  // 500k .. 5M
	SizeMega   TenderSize = "mega"   // > 5M
)

const (
	smallMax  = 50_000.0
	mediumMax = 500_000.0
	largeMax  = 5_000_000.0
)

// ClassifyTenderSize buckets a tender value.
func ClassifyTenderSize(value float64) TenderSize {
	switch {
	case value < smallMax:
		return SizeSmall
	case value < mediumMax:
		return SizeMedium
	case value < largeMax:
		return SizeLarge
	default:
		return SizeMega
	}
}

var (
	federalNameHints = []string{
		"ministério", "governo federal", "união", "agência nacional",
		"instituto nacional", "universidade federal", "presidência",
	}
	stateNameHints = []string{
		"governo do estado", "secretaria de estado", "estado de",
		"governo estadual", "secretaria estadual", "universidade estadual",
	}
	municipalNameHints = []string{
		"município", "prefeitura", "câmara municipal", "governo municipal",
		"secretaria municipal", "companhia municipal", "empresa municipal",
	}
)

// ClassifyGovernmentLevel determines the sphere of the contracting body.
// The structured esferaId field wins when present; otherwise the
// organization name is matched against level-specific vocabulary.
func ClassifyGovernmentLevel(org pncp.Organization) GovernmentLevel {
	switch strings.ToUpper(org.SphereID) {
	case "F", "D": // district counts as federal
		return LevelFederal
	case "E":
		return LevelState
	case "M":
		return LevelMunicipal
	}

	name := strings.ToLower(org.Name)
	for _, h := range municipalNameHints {
		if strings.Contains(name, h) {
			return LevelMunicipal
		}
	}
	for _, h := range stateNameHints {
		if strings.Contains(name, h) {
			return LevelState
		}
	}
	for _, h := range federalNameHints {
		if strings.Contains(name, h) {
			return LevelFederal
		}
	}
	return LevelUnknown
}
