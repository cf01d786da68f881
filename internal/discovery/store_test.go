package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

func newPGStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestPostgresMigrate(t *testing.T) {
	store, mock := newPGStore(t)

	for range postgresSchema {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExistingKeys(t *testing.T) {
	store, mock := newPGStore(t)

	keys := []RecordKey{
		{CNPJ: "111", Year: 2026, Sequential: 1, UF: "SP"},
		{CNPJ: "222", Year: 2026, Sequential: 2, UF: "SP"},
	}
	mock.ExpectQuery("SELECT t.cnpj, t.year, t.sequential, t.uf").
		WithArgs([]string{"111", "222"}, []int{2026, 2026}, []int{1, 2}).
		WillReturnRows(pgxmock.NewRows([]string{"cnpj", "year", "sequential", "uf"}).
			AddRow("111", 2026, 1, "SP"))

	existing, err := store.ExistingKeys(context.Background(), keys)
	require.NoError(t, err)
	assert.True(t, existing[keys[0]])
	assert.False(t, existing[keys[1]])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExistingKeysEmpty(t *testing.T) {
	store, _ := newPGStore(t)
	existing, err := store.ExistingKeys(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestPostgresUpsertOrganization(t *testing.T) {
	store, mock := newPGStore(t)

	org := OrganizationRow{
		CNPJ: "11222333000144", Name: "Prefeitura de Teste",
		GovernmentLevel: LevelMunicipal, SphereID: "M", UF: "SP",
	}
	mock.ExpectExec("INSERT INTO organizations").
		WithArgs(org.CNPJ, org.Name, "municipal", "M", "", "SP", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertOrganization(context.Background(), org))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertTender(t *testing.T) {
	store, mock := newPGStore(t)

	c := Candidate{
		Tender: pncp.Tender{
			ControlNumber:  "ctl-1",
			Year:           2026,
			Sequential:     7,
			Title:          "lacre de segurança",
			ModalityID:     6,
			EstimatedValue: 42_000,
			Organization:   pncp.Organization{CNPJ: "11222333000144"},
			Unit:           pncp.OrgUnit{UF: "SP"},
		},
		QuickScore:     35,
		Confidence:     80,
		ApprovalReason: ReasonTitleMatch,
		Size:           SizeSmall,
	}
	mock.ExpectExec("INSERT INTO tenders").
		WithArgs("11222333000144", 2026, 7, "SP", "ctl-1",
			"lacre de segurança", "", 6, "", "",
			42_000.0, "small", 35.0, 80.0, "title_strong_match", "", "run-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertTender(context.Background(), c, "run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertItemsBatch(t *testing.T) {
	store, mock := newPGStore(t)

	key := RecordKey{CNPJ: "111", Year: 2026, Sequential: 1, UF: "SP"}
	items := []ItemRow{
		{Number: 1, Description: "lacre", Relevant: true},
		{Number: 2, Description: "papel"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_tender_items"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_tender_items"}, itemColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "tender_items"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertItemsBatch(context.Background(), key, items))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertItemsBatchEmpty(t *testing.T) {
	store, _ := newPGStore(t)
	require.NoError(t, store.UpsertItemsBatch(context.Background(), RecordKey{}, nil))
}

func TestPostgresSummarize(t *testing.T) {
	store, mock := newPGStore(t)

	last := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows([]string{"orgs", "tenders", "items", "relevant", "last"}).
			AddRow(int64(3), int64(12), int64(140), int64(22), last))

	sum, err := store.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), sum.Tenders)
	assert.Equal(t, int64(22), sum.RelevantItems)
	assert.Equal(t, last, sum.LastRun)
	assert.NoError(t, mock.ExpectationsWereMet())
}
