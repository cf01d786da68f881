package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sealtrack/pncp-radar/internal/db"
)

// OrganizationRow is the persisted shape of a contracting body.
type OrganizationRow struct {
	CNPJ            string
	Name            string
	GovernmentLevel GovernmentLevel
	SphereID        string
	PowerID         string
	UF              string
	Municipality    string
}

// ItemRow is the persisted shape of one tender line item.
type ItemRow struct {
	Number      int
	Description string
	Quantity    float64
	Unit        string
	UnitValue   float64
	TotalValue  float64
	Relevant    bool
}

// Summary is what the status command reports.
type Summary struct {
	Organizations int64
	Tenders       int64
	Items         int64
	RelevantItems int64
	LastRun       time.Time
}

// RecordStore persists discovered tenders. Implementations must be safe
// for concurrent use across partitions.
type RecordStore interface {
	Migrate(ctx context.Context) error
	// ExistingKeys reports which of the keys are already persisted.
	ExistingKeys(ctx context.Context, keys []RecordKey) (map[RecordKey]bool, error)
	UpsertOrganization(ctx context.Context, org OrganizationRow) error
	UpsertTender(ctx context.Context, c Candidate, runID string) error
	UpsertItemsBatch(ctx context.Context, key RecordKey, items []ItemRow) error
	Summarize(ctx context.Context) (Summary, error)
	Close() error
}

// PostgresStore implements RecordStore on PostgreSQL.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		cnpj             TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		government_level TEXT NOT NULL DEFAULT 'unknown',
		sphere_id        TEXT NOT NULL DEFAULT '',
		power_id         TEXT NOT NULL DEFAULT '',
		uf               TEXT NOT NULL DEFAULT '',
		municipality     TEXT NOT NULL DEFAULT '',
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tenders (
		cnpj            TEXT NOT NULL REFERENCES organizations(cnpj),
		year            INT NOT NULL,
		sequential      INT NOT NULL,
		uf              TEXT NOT NULL DEFAULT '',
		control_number  TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		description     TEXT NOT NULL DEFAULT '',
		modality_id     INT NOT NULL DEFAULT 0,
		modality_name   TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT '',
		value           DOUBLE PRECISION NOT NULL DEFAULT 0,
		size            TEXT NOT NULL DEFAULT '',
		quick_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		approval_reason TEXT NOT NULL DEFAULT '',
		published_at    TEXT NOT NULL DEFAULT '',
		run_id          TEXT NOT NULL DEFAULT '',
		discovered_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (cnpj, year, sequential)
	)`,
	`CREATE TABLE IF NOT EXISTS tender_items (
		cnpj        TEXT NOT NULL,
		year        INT NOT NULL,
		sequential  INT NOT NULL,
		item_number INT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		quantity    DOUBLE PRECISION NOT NULL DEFAULT 0,
		unit        TEXT NOT NULL DEFAULT '',
		unit_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		relevant    BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (cnpj, year, sequential, item_number),
		FOREIGN KEY (cnpj, year, sequential) REFERENCES tenders(cnpj, year, sequential)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tenders_uf ON tenders(uf)`,
	`CREATE INDEX IF NOT EXISTS idx_tenders_run ON tenders(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_items_relevant ON tender_items(relevant) WHERE relevant`,
}

// Migrate creates the schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "store: migrate")
		}
	}
	return nil
}

const existingKeysSQL = `
	SELECT t.cnpj, t.year, t.sequential, t.uf
	FROM tenders t
	JOIN unnest($1::text[], $2::int[], $3::int[]) AS k(cnpj, year, sequential)
	  ON t.cnpj = k.cnpj AND t.year = k.year AND t.sequential = k.sequential`

func (s *PostgresStore) ExistingKeys(ctx context.Context, keys []RecordKey) (map[RecordKey]bool, error) {
	if len(keys) == 0 {
		return map[RecordKey]bool{}, nil
	}

	cnpjs := make([]string, len(keys))
	years := make([]int, len(keys))
	seqs := make([]int, len(keys))
	for i, k := range keys {
		cnpjs[i] = k.CNPJ
		years[i] = k.Year
		seqs[i] = k.Sequential
	}

	rows, err := s.pool.Query(ctx, existingKeysSQL, cnpjs, years, seqs)
	if err != nil {
		return nil, eris.Wrap(err, "store: query existing keys")
	}
	defer rows.Close()

	existing := map[RecordKey]bool{}
	for rows.Next() {
		var k RecordKey
		if err := rows.Scan(&k.CNPJ, &k.Year, &k.Sequential, &k.UF); err != nil {
			return nil, eris.Wrap(err, "store: scan existing key")
		}
		existing[k] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate existing keys")
	}
	return existing, nil
}

const upsertOrgSQL = `
	INSERT INTO organizations (cnpj, name, government_level, sphere_id, power_id, uf, municipality, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	ON CONFLICT (cnpj) DO UPDATE SET
		name = EXCLUDED.name,
		government_level = EXCLUDED.government_level,
		sphere_id = EXCLUDED.sphere_id,
		power_id = EXCLUDED.power_id,
		uf = EXCLUDED.uf,
		municipality = EXCLUDED.municipality,
		updated_at = now()`

func (s *PostgresStore) UpsertOrganization(ctx context.Context, org OrganizationRow) error {
	_, err := s.pool.Exec(ctx, upsertOrgSQL,
		org.CNPJ, org.Name, string(org.GovernmentLevel),
		org.SphereID, org.PowerID, org.UF, org.Municipality)
	if err != nil {
		return eris.Wrapf(err, "store: upsert organization %s", org.CNPJ)
	}
	return nil
}

const upsertTenderSQL = `
	INSERT INTO tenders (cnpj, year, sequential, uf, control_number, title, description,
		modality_id, modality_name, status, value, size, quick_score, confidence,
		approval_reason, published_at, run_id, discovered_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now())
	ON CONFLICT (cnpj, year, sequential) DO UPDATE SET
		status = EXCLUDED.status,
		value = EXCLUDED.value,
		size = EXCLUDED.size,
		quick_score = EXCLUDED.quick_score,
		confidence = EXCLUDED.confidence,
		approval_reason = EXCLUDED.approval_reason,
		run_id = EXCLUDED.run_id,
		discovered_at = now()`

func (s *PostgresStore) UpsertTender(ctx context.Context, c Candidate, runID string) error {
	_, err := s.pool.Exec(ctx, upsertTenderSQL,
		c.CNPJ(), c.Year, c.Sequential, c.Unit.UF, c.ControlNumber,
		c.Title, c.Description, c.ModalityID, c.ModalityName, c.Status,
		c.Value(), string(c.Size), c.QuickScore, c.Confidence,
		string(c.ApprovalReason), c.PublishedAt, runID)
	if err != nil {
		return eris.Wrapf(err, "store: upsert tender %s/%d/%d", c.CNPJ(), c.Year, c.Sequential)
	}
	return nil
}

var itemColumns = []string{
	"cnpj", "year", "sequential", "item_number",
	"description", "quantity", "unit", "unit_value", "total_value", "relevant",
}

func (s *PostgresStore) UpsertItemsBatch(ctx context.Context, key RecordKey, items []ItemRow) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{
			key.CNPJ, key.Year, key.Sequential, it.Number,
			it.Description, it.Quantity, it.Unit, it.UnitValue, it.TotalValue, it.Relevant,
		}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "tender_items",
		Columns:      itemColumns,
		ConflictKeys: []string{"cnpj", "year", "sequential", "item_number"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "store: upsert items for %s/%d/%d", key.CNPJ, key.Year, key.Sequential)
	}
	return nil
}

const summarySQL = `
	SELECT
		(SELECT count(*) FROM organizations),
		(SELECT count(*) FROM tenders),
		(SELECT count(*) FROM tender_items),
		(SELECT count(*) FROM tender_items WHERE relevant),
		(SELECT coalesce(max(discovered_at), 'epoch'::timestamptz) FROM tenders)`

func (s *PostgresStore) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	row := s.pool.QueryRow(ctx, summarySQL)
	if err := row.Scan(&sum.Organizations, &sum.Tenders, &sum.Items, &sum.RelevantItems, &sum.LastRun); err != nil {
		return Summary{}, eris.Wrap(err, "store: summarize")
	}
	return sum, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// itemRowsFromCandidate maps a verified candidate's items to store rows,
// preserving the per-item relevance flags.
func itemRowsFromCandidate(c Candidate) []ItemRow {
	rows := make([]ItemRow, len(c.Items))
	for i, it := range c.Items {
		rows[i] = ItemRow{
			Number:      it.Number,
			Description: it.Description,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			UnitValue:   it.UnitValue,
			TotalValue:  it.TotalValue,
			Relevant:    c.RelevantItems[it.Number],
		}
	}
	return rows
}

// orgRowFromCandidate maps a candidate's organization to its store row.
func orgRowFromCandidate(c Candidate) OrganizationRow {
	return OrganizationRow{
		CNPJ:            c.CNPJ(),
		Name:            c.Organization.Name,
		GovernmentLevel: ClassifyGovernmentLevel(c.Organization),
		SphereID:        c.Organization.SphereID,
		PowerID:         c.Organization.PowerID,
		UF:              c.Unit.UF,
		Municipality:    c.Unit.MunicipalityName,
	}
}
