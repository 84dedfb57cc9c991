package service

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ByLCY/sampletag/binding"
	"github.com/ByLCY/sampletag/blob"
	"github.com/ByLCY/sampletag/cache"
	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/metrics"
	"github.com/ByLCY/sampletag/renderer"
	"github.com/ByLCY/sampletag/renderer/raster"
	"github.com/ByLCY/sampletag/sample"
	"github.com/ByLCY/sampletag/store"
	"github.com/ByLCY/sampletag/store/sqlstore"
)

type fixture struct {
	svc     *Service
	blob    *blob.Memory
	redis   *miniredis.Miniredis
	metrics *metrics.Recorder
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlstore.Open(ctx, sqlstore.SQLite, filepath.Join(t.TempDir(), "sampletag.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	comp, err := raster.New(raster.Options{})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(cache.RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		blob:    blob.NewMemory(),
		redis:   mr,
		metrics: metrics.New(),
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	ids := 0
	f.svc, err = New(Deps{
		Store:      st,
		Compositor: comp,
		Cache:      cache.NewRedisLabelCache(client, time.Hour),
		Blob:       f.blob,
		Metrics:    f.metrics,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return f.now },
		NewAuditID: func() string { ids++; return fmt.Sprintf("audit-%d", ids) },
	})
	require.NoError(t, err)
	return f
}

func labelLayout(text string) *layout.Descriptor {
	return &layout.Descriptor{
		LabelSize: layout.LabelSize{Length: 50.8, Width: 25.4},
		Entities: []layout.Entity{
			layout.QR{Position: layout.Position{X: 8, Y: 8}, Size: 80},
			layout.Text{Position: layout.Position{X: 96, Y: 8}, FontSizePx: 24, Text: text},
		},
	}
}

func TestNewRequiresStoreAndCompositor(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestAuditNumber(t *testing.T) {
	assert.Equal(t, int64(0), AuditNumber(time.Unix(KSUIDEpoch, 0)))
	assert.Equal(t, int64(314564800), AuditNumber(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestCreateSampleComputesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.CreateSample(ctx, "ARND", sample.New(sample.Field{Name: "lot", Value: "42"}))
	require.NoError(t, err)
	assert.Equal(t, "59095431", rec.Key)
	assert.Equal(t, "59095431", rec.Sample.Key())
	assert.Equal(t, "audit-1", rec.AuditID)
	assert.Equal(t, AuditNumber(f.now), rec.AuditNumber)

	got, err := f.svc.GetSample(ctx, "59095431")
	require.NoError(t, err)
	assert.Equal(t, "ARND", got.Team)

	// an explicit key wins over the content hash
	rec, err = f.svc.CreateSample(ctx, "ARND", sample.New(
		sample.Field{Name: "lot", Value: "43"},
		sample.Field{Name: sample.KeyField, Value: "deadbeef"},
	))
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", rec.Key)

	_, err = f.svc.CreateSample(ctx, "ARND", sample.New(sample.Field{Name: "lot", Value: "42"}))
	assert.ErrorIs(t, err, store.ErrConflict)

	count, err := testutil.GatherAndCount(f.metrics.Registry(), "sampletag_samples_written_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateSampleKeepsAuditID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig, err := f.svc.CreateSample(ctx, "ARND", sample.New(sample.Field{Name: "lot", Value: "42"}))
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	// the stale key in the payload is ignored
	updated, err := f.svc.UpdateSample(ctx, "ARND", orig.AuditID, orig.Sample.With("lot", "43"))
	require.NoError(t, err)
	assert.Equal(t, orig.AuditID, updated.AuditID)
	assert.NotEqual(t, orig.Key, updated.Key)
	assert.Equal(t, sample.Hash(sample.New(sample.Field{Name: "lot", Value: "43"})), updated.Key)
	assert.Equal(t, orig.AuditNumber+3600, updated.AuditNumber)

	list, err := f.svc.ListSamples(ctx, "ARND")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, orig.Key, list[0].Key)

	_, err = f.svc.UpdateSample(ctx, "ARND", "", orig.Sample)
	assert.Error(t, err)
}

func TestDeleteSampleIsSoft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreateSample(ctx, "ARND", sample.New(sample.Field{Name: "lot", Value: "42"}))
	require.NoError(t, err)
	_, err = f.svc.SaveLayout(ctx, "ARND", labelLayout("Lot {lot}"))
	require.NoError(t, err)
	_, err = f.svc.RenderLabel(ctx, "ARND", rec.Key, renderer.FormatPNG)
	require.NoError(t, err)
	require.Len(t, f.redis.Keys(), 1)

	require.NoError(t, f.svc.DeleteSample(ctx, "ARND", rec.Key, "spilled"))
	assert.Empty(t, f.redis.Keys(), "cached labels are dropped on delete")

	deleted, err := f.svc.ListDeleted(ctx, "ARND")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, rec.Key, deleted[0].Key)

	_, err = f.svc.GetSample(ctx, rec.Key)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteSample(ctx, "ARND", rec.Key, "again"), store.ErrConflict)
	assert.ErrorIs(t, f.svc.DeleteSample(ctx, "PSCS", rec.Key, ""), store.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteSample(ctx, "ARND", "00000000", ""), store.ErrNotFound)
}

func TestSaveLayoutValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SaveLayout(ctx, "ARND", &layout.Descriptor{LabelSize: layout.LabelSize{Length: 50.8, Width: 25.4}})
	var cfg *layout.ConfigurationError
	assert.ErrorAs(t, err, &cfg)

	_, err = f.svc.LatestLayout(ctx, "ARND")
	assert.ErrorIs(t, err, store.ErrNotFound)

	first, err := f.svc.SaveLayout(ctx, "ARND", labelLayout("v1 {lot}"))
	require.NoError(t, err)
	f.now = f.now.Add(time.Second)
	second, err := f.svc.SaveLayout(ctx, "ARND", labelLayout("v2 {lot}"))
	require.NoError(t, err)
	latest, err := f.svc.LatestLayout(ctx, "ARND")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.NotEqual(t, first.ID, latest.ID)
}

func TestRenderLabelCachesAndArchives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreateSample(ctx, "ARND", sample.New(sample.Field{Name: "lot", Value: "42"}))
	require.NoError(t, err)
	lay, err := f.svc.SaveLayout(ctx, "ARND", labelLayout("Lot {lot}"))
	require.NoError(t, err)

	first, err := f.svc.RenderLabel(ctx, "ARND", rec.Key, renderer.FormatPNG)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "image/png", first.ContentType)
	assert.Equal(t, lay.ID, first.LayoutID)
	assert.Equal(t, blob.LabelKey("ARND", rec.Key, lay.ID, "png"), first.BlobKey)

	img, err := png.Decode(bytes.NewReader(first.Data))
	require.NoError(t, err)
	assert.Equal(t, 192, img.Bounds().Dx())
	assert.Equal(t, 96, img.Bounds().Dy())

	archived, err := f.blob.Head(ctx, first.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len(first.Data)), archived.Size)

	second, err := f.svc.RenderLabel(ctx, "ARND", rec.Key, renderer.FormatPNG)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)

	pdf, err := f.svc.RenderLabel(ctx, "ARND", rec.Key, renderer.FormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf.Data, []byte("%PDF")))
	assert.Equal(t, "application/pdf", pdf.ContentType)

	expected := `
# HELP sampletag_label_cache_lookups_total Rendered label cache lookups by result (hit, miss, error).
# TYPE sampletag_label_cache_lookups_total counter
sampletag_label_cache_lookups_total{result="hit"} 1
sampletag_label_cache_lookups_total{result="miss"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "sampletag_label_cache_lookups_total"))
}

func TestRenderLabelReportsErrorKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := f.svc.CreateSample(ctx, "ARND", sample.New(sample.Field{Name: "lot", Value: "42"}))
	require.NoError(t, err)

	_, err = f.svc.RenderLabel(ctx, "ARND", rec.Key, renderer.FormatPNG)
	assert.ErrorIs(t, err, store.ErrNotFound, "no layout saved yet")

	_, err = f.svc.SaveLayout(ctx, "ARND", labelLayout("{missingField}"))
	require.NoError(t, err)
	_, err = f.svc.RenderLabel(ctx, "ARND", rec.Key, renderer.FormatPNG)
	var missing *binding.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "missingField", missing.Field)
	assert.Equal(t, renderer.KindMissingField, renderer.Kind(err))

	list, err := f.blob.List(ctx, "labels/")
	require.NoError(t, err)
	assert.Empty(t, list, "failed renders are not archived")

	_, err = f.svc.RenderLabel(ctx, "PSCS", rec.Key, renderer.FormatPNG)
	assert.ErrorIs(t, err, store.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.svc.RenderLabel(cancelled, "ARND", rec.Key, renderer.FormatPDF)
	assert.Error(t, err)
}

func TestRenderSheet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var keys []string
	for _, lot := range []string{"1", "2", "3"} {
		rec, err := f.svc.CreateSample(ctx, "ARND", sample.New(sample.Field{Name: "lot", Value: lot}))
		require.NoError(t, err)
		keys = append(keys, rec.Key)
	}
	_, err := f.svc.SaveLayout(ctx, "ARND", labelLayout("Lot {lot}"))
	require.NoError(t, err)

	data, err := f.svc.RenderSheet(ctx, "ARND", keys...)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, err = f.svc.RenderSheet(ctx, "ARND")
	assert.Error(t, err)
	_, err = f.svc.RenderSheet(ctx, "ARND", "00000000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
