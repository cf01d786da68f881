package pncp

import (
	"strings"
	"time"
)

// Organization is the contracting body that owns a tender.
type Organization struct {
	CNPJ     string `json:"cnpj"`
	Name     string `json:"razaoSocial"`
	PowerID  string `json:"poderId,omitempty"`
	SphereID string `json:"esferaId,omitempty"`
}

// OrgUnit is the administrative unit a tender was published under.
type OrgUnit struct {
	UF               string `json:"ufSigla"`
	MunicipalityName string `json:"municipioNome,omitempty"`
	IBGECode         string `json:"codigoIbge,omitempty"`
	Name             string `json:"nomeUnidade,omitempty"`
}

// Tender is one procurement notice as returned by the publication listing
// endpoint. Field names follow the PNCP wire format.
type Tender struct {
	ControlNumber  string       `json:"numeroControlePNCP"`
	Year           int          `json:"anoCompra"`
	Sequential     int          `json:"sequencialCompra"`
	Title          string       `json:"objetoCompra"`
	Description    string       `json:"informacaoComplementar,omitempty"`
	ModalityID     int          `json:"modalidadeId"`
	ModalityName   string       `json:"modalidadeNome,omitempty"`
	Status         string       `json:"situacaoCompraNome,omitempty"`
	EstimatedValue float64      `json:"valorTotalEstimado"`
	SettledValue   float64      `json:"valorTotalHomologado"`
	PublishedAt    string       `json:"dataPublicacaoPncp,omitempty"`
	Organization   Organization `json:"orgaoEntidade"`
	Unit           OrgUnit      `json:"unidadeOrgao"`
}

// CNPJ returns the owning organization's CNPJ, digits only.
func (t Tender) CNPJ() string {
	return NormalizeCNPJ(t.Organization.CNPJ)
}

// Value returns the tender's monetary value: the settled (homologated) value
// once awarded, the estimate otherwise.
func (t Tender) Value() float64 {
	if t.SettledValue > t.EstimatedValue {
		return t.SettledValue
	}
	return t.EstimatedValue
}

// Ref returns the key triple the detail endpoints are addressed by.
func (t Tender) Ref() TenderRef {
	return TenderRef{CNPJ: t.CNPJ(), Year: t.Year, Sequential: t.Sequential}
}

// TenderRef addresses one tender on the detail endpoints.
type TenderRef struct {
	CNPJ       string
	Year       int
	Sequential int
}

// Item is one line item belonging to a tender.
type Item struct {
	Number      int     `json:"numeroItem"`
	Description string  `json:"descricao"`
	Quantity    float64 `json:"quantidade"`
	Unit        string  `json:"unidadeMedida,omitempty"`
	UnitValue   float64 `json:"valorUnitarioEstimado"`
	TotalValue  float64 `json:"valorTotalEstimado"`
}

// Window is a publication-date window, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

const windowDateLayout = "20060102"

// StartParam and EndParam format the bounds the way the listing endpoint
// expects (YYYYMMDD).
func (w Window) StartParam() string { return w.Start.Format(windowDateLayout) }

// EndParam formats the window end bound (YYYYMMDD).
func (w Window) EndParam() string { return w.End.Format(windowDateLayout) }

// SearchQuery scopes one listing call. Modality is required by the upstream
// API; UF, MunicipalityCode and CNPJ are optional narrowing filters.
type SearchQuery struct {
	Window           Window
	Modality         int
	UF               string
	MunicipalityCode string
	CNPJ             string
	PageSize         int
	OnlyOngoing      bool
}

// page is the envelope every paginated PNCP endpoint wraps its results in.
type page[T any] struct {
	Data           []T `json:"data"`
	TotalRecords   int `json:"totalRegistros"`
	TotalPages     int `json:"totalPaginas"`
	PageNumber     int `json:"numeroPagina"`
	PagesRemaining int `json:"paginasRestantes"`
}

// NormalizeCNPJ strips formatting from a CNPJ, keeping digits only.
func NormalizeCNPJ(cnpj string) string {
	var b strings.Builder
	b.Grow(len(cnpj))
	for _, r := range cnpj {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var ongoingStatusKeywords = []string{
	"aberta", "em andamento", "publicada", "vigente",
	"aguardando propostas", "recebendo propostas", "divulgada",
}

var completedStatusKeywords = []string{
	"homologada", "homologado", "concluída", "concluido",
	"adjudicada", "adjudicado", "finalizada", "finalizado",
	"cancelada", "cancelado", "deserta", "fracassada", "revogada",
}

// FilterOngoing keeps tenders still open for bidding. A tender with no
// status text counts as ongoing when it has a publication date, since the
// listing endpoint omits the status on some records.
func FilterOngoing(tenders []Tender) []Tender {
	var out []Tender
	for _, t := range tenders {
		status := strings.ToLower(t.Status)

		completed := false
		for _, kw := range completedStatusKeywords {
			if strings.Contains(status, kw) {
				completed = true
				break
			}
		}
		if completed {
			continue
		}

		ongoing := false
		for _, kw := range ongoingStatusKeywords {
			if strings.Contains(status, kw) {
				ongoing = true
				break
			}
		}
		if !ongoing && status == "" && t.PublishedAt != "" {
			ongoing = true
		}

		if ongoing {
			out = append(out, t)
		}
	}
	return out
}
