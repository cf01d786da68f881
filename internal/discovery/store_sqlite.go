package discovery

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements RecordStore on a local SQLite file. Used for
// single-machine runs where standing up PostgreSQL is not worth it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS organizations (
	cnpj             TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	government_level TEXT NOT NULL DEFAULT 'unknown',
	sphere_id        TEXT NOT NULL DEFAULT '',
	power_id         TEXT NOT NULL DEFAULT '',
	uf               TEXT NOT NULL DEFAULT '',
	municipality     TEXT NOT NULL DEFAULT '',
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tenders (
	cnpj            TEXT NOT NULL REFERENCES organizations(cnpj),
	year            INTEGER NOT NULL,
	sequential      INTEGER NOT NULL,
	uf              TEXT NOT NULL DEFAULT '',
	control_number  TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	modality_id     INTEGER NOT NULL DEFAULT 0,
	modality_name   TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	value           REAL NOT NULL DEFAULT 0,
	size            TEXT NOT NULL DEFAULT '',
	quick_score     REAL NOT NULL DEFAULT 0,
	confidence      REAL NOT NULL DEFAULT 0,
	approval_reason TEXT NOT NULL DEFAULT '',
	published_at    TEXT NOT NULL DEFAULT '',
	run_id          TEXT NOT NULL DEFAULT '',
	discovered_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (cnpj, year, sequential)
);

CREATE TABLE IF NOT EXISTS tender_items (
	cnpj        TEXT NOT NULL,
	year        INTEGER NOT NULL,
	sequential  INTEGER NOT NULL,
	item_number INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	quantity    REAL NOT NULL DEFAULT 0,
	unit        TEXT NOT NULL DEFAULT '',
	unit_value  REAL NOT NULL DEFAULT 0,
	total_value REAL NOT NULL DEFAULT 0,
	relevant    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (cnpj, year, sequential, item_number),
	FOREIGN KEY (cnpj, year, sequential) REFERENCES tenders(cnpj, year, sequential)
);

CREATE INDEX IF NOT EXISTS idx_tenders_uf ON tenders(uf);
CREATE INDEX IF NOT EXISTS idx_tenders_run ON tenders(run_id);
CREATE INDEX IF NOT EXISTS idx_items_relevant ON tender_items(relevant);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "store: sqlite migrate")
}

func (s *SQLiteStore) ExistingKeys(ctx context.Context, keys []RecordKey) (map[RecordKey]bool, error) {
	existing := map[RecordKey]bool{}
	if len(keys) == 0 {
		return existing, nil
	}

	// SQLite caps bound parameters, so probe in chunks.
	const chunk = 300
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*3)
		for i, k := range batch {
			placeholders[i] = "(?, ?, ?)"
			args = append(args, k.CNPJ, k.Year, k.Sequential)
		}
		query := `SELECT cnpj, year, sequential, uf FROM tenders WHERE (cnpj, year, sequential) IN (VALUES ` +
			strings.Join(placeholders, ", ") + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, eris.Wrap(err, "store: sqlite query existing keys")
		}
		for rows.Next() {
			var k RecordKey
			if err := rows.Scan(&k.CNPJ, &k.Year, &k.Sequential, &k.UF); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "store: sqlite scan existing key")
			}
			existing[k] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "store: sqlite iterate existing keys")
		}
		rows.Close()
	}
	return existing, nil
}

const sqliteUpsertOrg = `
	INSERT INTO organizations (cnpj, name, government_level, sphere_id, power_id, uf, municipality, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
	ON CONFLICT (cnpj) DO UPDATE SET
		name = excluded.name,
		government_level = excluded.government_level,
		sphere_id = excluded.sphere_id,
		power_id = excluded.power_id,
		uf = excluded.uf,
		municipality = excluded.municipality,
		updated_at = datetime('now')`

func (s *SQLiteStore) UpsertOrganization(ctx context.Context, org OrganizationRow) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsertOrg,
		org.CNPJ, org.Name, string(org.GovernmentLevel),
		org.SphereID, org.PowerID, org.UF, org.Municipality)
	if err != nil {
		return eris.Wrapf(err, "store: sqlite upsert organization %s", org.CNPJ)
	}
	return nil
}

const sqliteUpsertTender = `
	INSERT INTO tenders (cnpj, year, sequential, uf, control_number, title, description,
		modality_id, modality_name, status, value, size, quick_score, confidence,
		approval_reason, published_at, run_id, discovered_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
	ON CONFLICT (cnpj, year, sequential) DO UPDATE SET
		status = excluded.status,
		value = excluded.value,
		size = excluded.size,
		quick_score = excluded.quick_score,
		confidence = excluded.confidence,
		approval_reason = excluded.approval_reason,
		run_id = excluded.run_id,
		discovered_at = datetime('now')`

func (s *SQLiteStore) UpsertTender(ctx context.Context, c Candidate, runID string) error {
	_, err := s.db.ExecContext(ctx, sqliteUpsertTender,
		c.CNPJ(), c.Year, c.Sequential, c.Unit.UF, c.ControlNumber,
		c.Title, c.Description, c.ModalityID, c.ModalityName, c.Status,
		c.Value(), string(c.Size), c.QuickScore, c.Confidence,
		string(c.ApprovalReason), c.PublishedAt, runID)
	if err != nil {
		return eris.Wrapf(err, "store: sqlite upsert tender %s/%d/%d", c.CNPJ(), c.Year, c.Sequential)
	}
	return nil
}

const sqliteUpsertItem = `
	INSERT INTO tender_items (cnpj, year, sequential, item_number,
		description, quantity, unit, unit_value, total_value, relevant)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (cnpj, year, sequential, item_number) DO UPDATE SET
		description = excluded.description,
		quantity = excluded.quantity,
		unit = excluded.unit,
		unit_value = excluded.unit_value,
		total_value = excluded.total_value,
		relevant = excluded.relevant`

func (s *SQLiteStore) UpsertItemsBatch(ctx context.Context, key RecordKey, items []ItemRow) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: sqlite begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertItem)
	if err != nil {
		return eris.Wrap(err, "store: sqlite prepare item upsert")
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx,
			key.CNPJ, key.Year, key.Sequential, it.Number,
			it.Description, it.Quantity, it.Unit, it.UnitValue, it.TotalValue, it.Relevant,
		); err != nil {
			return eris.Wrapf(err, "store: sqlite upsert item %d for %s/%d/%d",
				it.Number, key.CNPJ, key.Year, key.Sequential)
		}
	}
	return eris.Wrap(tx.Commit(), "store: sqlite commit items")
}

const sqliteSummary = `
	SELECT
		(SELECT count(*) FROM organizations),
		(SELECT count(*) FROM tenders),
		(SELECT count(*) FROM tender_items),
		(SELECT count(*) FROM tender_items WHERE relevant),
		(SELECT coalesce(max(discovered_at), '1970-01-01 00:00:00') FROM tenders)`

func (s *SQLiteStore) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	var lastRun string
	row := s.db.QueryRowContext(ctx, sqliteSummary)
	if err := row.Scan(&sum.Organizations, &sum.Tenders, &sum.Items, &sum.RelevantItems, &lastRun); err != nil {
		return Summary{}, eris.Wrap(err, "store: sqlite summarize")
	}
	if t, err := time.Parse("2006-01-02 15:04:05", lastRun); err == nil {
		sum.LastRun = t
	}
	return sum, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
