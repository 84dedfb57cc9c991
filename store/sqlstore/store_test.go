package sqlstore

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/sample"
	"github.com/ByLCY/sampletag/store"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "db", "sampletag.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDescriptor(text string) *layout.Descriptor {
	return &layout.Descriptor{
		LabelSize: layout.LabelSize{Length: 50.8, Width: 25.4},
		Entities: []layout.Entity{
			layout.QR{Position: layout.Position{X: 8, Y: 8}, Size: 80},
			layout.Text{Position: layout.Position{X: 96, Y: 8}, FontSizePx: 24, Text: text},
		},
	}
}

func TestSQLiteSampleRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	smp := sample.New(
		sample.Field{Name: "experiment_id", Value: "EXP-1"},
		sample.Field{Name: "contents", Value: "Buffer A"},
		sample.Field{Name: "quantity", Value: 3.0},
		sample.Field{Name: sample.KeyField, Value: "f1b7d82e"},
	)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := store.SampleRecord{Key: "f1b7d82e", AuditID: "a-1", AuditNumber: 314400000, Team: "ARND", Sample: smp, CreatedAt: created}
	require.NoError(t, s.InsertSample(ctx, rec))

	got, err := s.GetSample(ctx, "f1b7d82e")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.AuditID)
	assert.Equal(t, int64(314400000), got.AuditNumber)
	assert.Equal(t, "ARND", got.Team)
	assert.True(t, created.Equal(got.CreatedAt))

	// field order survives storage
	fields := got.Sample.Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, "experiment_id", fields[0].Name)
	assert.Equal(t, sample.KeyField, fields[3].Name)
	assert.Equal(t, "f1b7d82e", got.Sample.Key())

	err = s.InsertSample(ctx, rec)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.GetSample(ctx, "00000000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteListSamplesByTeam(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	for i, team := range []string{"ARND", "PSCS", "ARND"} {
		key := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}[i]
		require.NoError(t, s.InsertSample(ctx, store.SampleRecord{
			Key: key, AuditID: key, AuditNumber: int64(100 - i), Team: team,
			Sample: sample.New(sample.Field{Name: "n", Value: float64(i)}),
		}))
	}
	arnd, err := s.ListSamples(ctx, "ARND")
	require.NoError(t, err)
	require.Len(t, arnd, 2)
	assert.Equal(t, "cccccccc", arnd[0].Key)
	assert.Equal(t, "aaaaaaaa", arnd[1].Key)

	all, err := s.ListSamples(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteLatestLayout(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	_, err := s.LatestLayout(ctx, "ARND")
	assert.ErrorIs(t, err, store.ErrNotFound)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.InsertLayout(ctx, store.LayoutRecord{Team: "ARND", Descriptor: testDescriptor("v1 {lot}"), CreatedAt: base})
	require.NoError(t, err)
	second, err := s.InsertLayout(ctx, store.LayoutRecord{Team: "ARND", Descriptor: testDescriptor("v2 {lot}"), CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)
	_, err = s.InsertLayout(ctx, store.LayoutRecord{Team: "PSCS", Descriptor: testDescriptor("other"), CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	latest, err := s.LatestLayout(ctx, "ARND")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	require.Len(t, latest.Descriptor.Entities, 2)
	assert.Equal(t, layout.Text{Position: layout.Position{X: 96, Y: 8}, FontSizePx: 24, Text: "v2 {lot}"}, latest.Descriptor.Entities[1])

	_, err = s.InsertLayout(ctx, store.LayoutRecord{Team: "ARND", Descriptor: &layout.Descriptor{}})
	var cfg *layout.ConfigurationError
	assert.ErrorAs(t, err, &cfg)
}

func TestSQLiteDeleted(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	for _, key := range []string{"aaaaaaaa", "bbbbbbbb"} {
		require.NoError(t, s.InsertSample(ctx, store.SampleRecord{
			Key: key, AuditID: key, Team: "ARND", Sample: sample.New(sample.Field{Name: "k", Value: key}),
		}))
	}
	require.NoError(t, s.InsertDeleted(ctx, store.DeletedRecord{Key: "bbbbbbbb", Team: "ARND", Reason: "spilled"}))
	assert.ErrorIs(t, s.InsertDeleted(ctx, store.DeletedRecord{Key: "bbbbbbbb", Team: "ARND"}), store.ErrConflict)

	deleted, err := s.ListDeleted(ctx, "ARND")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "spilled", deleted[0].Reason)

	samples, err := s.ListDeletedSamples(ctx, "ARND")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "bbbbbbbb", samples[0].Key)

	// soft delete keeps the sample row
	_, err = s.GetSample(ctx, "bbbbbbbb")
	assert.NoError(t, err)

	none, err := s.ListDeletedSamples(ctx, "PSCS")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPostgresDialectQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db, Postgres, nil)
	ctx := context.Background()
	created := time.UnixMilli(1714564800000).UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO layouts (team, payload, created_at) VALUES ($1, $2, $3) RETURNING id`)).
		WithArgs("ARND", sqlmock.AnyArg(), created.UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	rec, err := s.InsertLayout(ctx, store.LayoutRecord{Team: "ARND", Descriptor: testDescriptor("{lot}"), CreatedAt: created})
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.ID)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM samples WHERE qr_code_key = $1`)).
		WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"qr_code_key", "audit_id", "audit_number", "team", "payload", "created_at"}))
	_, err = s.GetSample(ctx, "deadbeef")
	assert.ErrorIs(t, err, store.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO deleted (qr_code_key, team, reason, deleted_at) VALUES ($1, $2, $3, $4) ON CONFLICT (qr_code_key) DO NOTHING`)).
		WithArgs("deadbeef", "ARND", "", created.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = s.InsertDeleted(ctx, store.DeletedRecord{Key: "deadbeef", Team: "ARND", DeletedAt: created})
	assert.ErrorIs(t, err, store.ErrConflict)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM samples WHERE team = $1 ORDER BY audit_number, qr_code_key`)).
		WithArgs("ARND").
		WillReturnRows(sqlmock.NewRows([]string{"qr_code_key", "audit_id", "audit_number", "team", "payload", "created_at"}).
			AddRow("59095431", "a-1", int64(1), "ARND", `{"lot":"42"}`, created.UnixMilli()))
	list, err := s.ListSamples(ctx, "ARND")
	require.NoError(t, err)
	require.Len(t, list, 1)
	v, ok := list[0].Sample.Lookup("lot")
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, Postgres.Name, d.Name)
	assert.Equal(t, "SELECT $1, $2", d.rebind("SELECT ?, ?"))
	d, err = DialectFor("")
	require.NoError(t, err)
	assert.Equal(t, "SELECT ?", d.rebind("SELECT ?"))
	_, err = DialectFor("mysql")
	assert.Error(t, err)
}
