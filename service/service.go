// Package service 实现样本台账与标签打印的业务流程：样本版本化写入、软删除、
// 布局保存，以及带缓存与归档的标签渲染。
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ByLCY/sampletag/blob"
	"github.com/ByLCY/sampletag/cache"
	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/metrics"
	"github.com/ByLCY/sampletag/renderer"
	canvasrenderer "github.com/ByLCY/sampletag/renderer/canvas"
	"github.com/ByLCY/sampletag/renderer/raster"
	"github.com/ByLCY/sampletag/sample"
	"github.com/ByLCY/sampletag/store"
)

// KSUIDEpoch 是审计序号的起点（秒）。审计序号 = 写入时刻的 Unix 秒 - KSUIDEpoch。
const KSUIDEpoch = 1400000000

// AuditNumber 返回 t 对应的审计序号。
func AuditNumber(t time.Time) int64 { return t.Unix() - KSUIDEpoch }

// Deps 是 Service 的依赖。Store 与 Compositor 必填，其余可为空。
type Deps struct {
	Store      store.Store
	Compositor *raster.Compositor
	PDF        *canvasrenderer.Renderer
	Cache      cache.LabelCache
	Blob       blob.Store
	Metrics    *metrics.Recorder
	Logger     *zap.Logger
	Now        func() time.Time
	NewAuditID func() string
}

// Service 组合持久化、渲染与缓存。并发安全性取决于各依赖，默认实现均可并发使用。
type Service struct {
	store      store.Store
	compositor *raster.Compositor
	pdf        *canvasrenderer.Renderer
	cache      cache.LabelCache
	blob       blob.Store
	metrics    *metrics.Recorder
	logger     *zap.Logger
	now        func() time.Time
	newAuditID func() string
}

// Rendered 是一次标签渲染的结果。
type Rendered struct {
	Data        []byte
	ContentType string
	Key         string
	LayoutID    int64
	BlobKey     string
	Cached      bool
}

type invalidator interface {
	Invalidate(ctx context.Context, team, contentKey string) (int, error)
}

// New 校验依赖并填充默认值。
func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("service: store 不能为空")
	}
	if deps.Compositor == nil {
		return nil, fmt.Errorf("service: compositor 不能为空")
	}
	s := &Service{
		store:      deps.Store,
		compositor: deps.Compositor,
		pdf:        deps.PDF,
		cache:      deps.Cache,
		blob:       deps.Blob,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
		newAuditID: deps.NewAuditID,
	}
	if s.pdf == nil {
		s.pdf = canvasrenderer.NewRenderer(deps.Compositor)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newAuditID == nil {
		s.newAuditID = uuid.NewString
	}
	return s, nil
}

// CreateSample 写入新样本。样本没有 qr_code_key 时按内容计算；分配新的审计 ID。
func (s *Service) CreateSample(ctx context.Context, team string, smp sample.Sample) (store.SampleRecord, error) {
	key, computed := sample.ResolveKey(smp, nil)
	if computed {
		smp = smp.With(sample.KeyField, key)
	}
	return s.insert(ctx, "create", store.SampleRecord{
		Key:     key,
		AuditID: s.newAuditID(),
		Team:    team,
		Sample:  smp,
	})
}

// UpdateSample 以新记录的方式写入样本的新版本：审计 ID 保留，审计序号更新，
// 内容键忽略传入的 qr_code_key，按新内容重新计算。
func (s *Service) UpdateSample(ctx context.Context, team, auditID string, smp sample.Sample) (store.SampleRecord, error) {
	if auditID == "" {
		return store.SampleRecord{}, fmt.Errorf("update sample: 缺少 audit id")
	}
	content := smp.Without(sample.KeyField)
	key := sample.Hash(content)
	return s.insert(ctx, "update", store.SampleRecord{
		Key:     key,
		AuditID: auditID,
		Team:    team,
		Sample:  content.With(sample.KeyField, key),
	})
}

func (s *Service) insert(ctx context.Context, op string, rec store.SampleRecord) (store.SampleRecord, error) {
	now := s.now().UTC()
	rec.AuditNumber = AuditNumber(now)
	rec.CreatedAt = now.Truncate(time.Millisecond)
	if err := s.store.InsertSample(ctx, rec); err != nil {
		return store.SampleRecord{}, fmt.Errorf("%s sample: %w", op, err)
	}
	s.metrics.SampleWritten(rec.Team, op)
	s.logger.Info("sample written",
		zap.String("op", op),
		zap.String("team", rec.Team),
		zap.String("key", rec.Key),
		zap.String("audit_id", rec.AuditID),
		zap.Int64("audit_number", rec.AuditNumber),
	)
	return rec, nil
}

func (s *Service) GetSample(ctx context.Context, key string) (store.SampleRecord, error) {
	return s.store.GetSample(ctx, key)
}

func (s *Service) ListSamples(ctx context.Context, team string) ([]store.SampleRecord, error) {
	return s.store.ListSamples(ctx, team)
}

// DeleteSample 软删除：写入删除记录，样本本身保留，并清除该样本的标签缓存。
func (s *Service) DeleteSample(ctx context.Context, team, key, reason string) error {
	rec, err := s.store.GetSample(ctx, key)
	if err != nil {
		return err
	}
	if rec.Team != team {
		return fmt.Errorf("sample %s not in team %s: %w", key, team, store.ErrNotFound)
	}
	if err := s.store.InsertDeleted(ctx, store.DeletedRecord{
		Key:       key,
		Team:      team,
		Reason:    reason,
		DeletedAt: s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("delete sample: %w", err)
	}
	if inv, ok := s.cache.(invalidator); ok {
		if _, err := inv.Invalidate(ctx, team, key); err != nil {
			s.logger.Warn("label cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.metrics.SampleWritten(team, "delete")
	s.logger.Info("sample deleted", zap.String("team", team), zap.String("key", key), zap.String("reason", reason))
	return nil
}

// ListDeleted 返回团队已软删除的样本。
func (s *Service) ListDeleted(ctx context.Context, team string) ([]store.SampleRecord, error) {
	return s.store.ListDeletedSamples(ctx, team)
}

// SaveLayout 校验并保存团队布局，之后的渲染使用最新保存的布局。
func (s *Service) SaveLayout(ctx context.Context, team string, d *layout.Descriptor) (store.LayoutRecord, error) {
	if err := d.Validate(); err != nil {
		return store.LayoutRecord{}, err
	}
	rec, err := s.store.InsertLayout(ctx, store.LayoutRecord{Team: team, Descriptor: d, CreatedAt: s.now().UTC()})
	if err != nil {
		return store.LayoutRecord{}, fmt.Errorf("save layout: %w", err)
	}
	s.logger.Info("layout saved", zap.String("team", team), zap.Int64("layout_id", rec.ID), zap.Int("entities", len(d.Entities)))
	return rec, nil
}

func (s *Service) LatestLayout(ctx context.Context, team string) (store.LayoutRecord, error) {
	return s.store.LatestLayout(ctx, team)
}

// RenderLabel 按团队最新布局渲染样本标签。顺序：缓存 → 渲染 → 回填缓存 → 归档。
// 缓存与归档失败只记录日志，不影响返回结果。
func (s *Service) RenderLabel(ctx context.Context, team, key string, format renderer.Format) (*Rendered, error) {
	rec, err := s.store.GetSample(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Team != team {
		return nil, fmt.Errorf("sample %s not in team %s: %w", key, team, store.ErrNotFound)
	}
	lay, err := s.store.LatestLayout(ctx, team)
	if err != nil {
		return nil, err
	}
	out := &Rendered{ContentType: format.ContentType(), Key: rec.Key, LayoutID: lay.ID}
	log := s.logger.With(zap.String("team", team), zap.String("key", key), zap.Int64("layout_id", lay.ID), zap.String("format", string(format)))

	cacheKey := cache.Key(team, rec.Key, lay.ID, format.Ext())
	if s.cache != nil {
		data, err := s.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			s.metrics.CacheLookup("hit")
			out.Data, out.Cached = data, true
			log.Debug("label served from cache")
			return out, nil
		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.CacheLookup("miss")
		default:
			s.metrics.CacheLookup("error")
			log.Warn("label cache lookup failed", zap.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.rendererFor(format)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := r.Render(rec.Sample, lay.Descriptor)
	elapsed := time.Since(start)
	if err != nil {
		kind := renderer.Kind(err)
		s.metrics.ObserveRender(string(format), kind, elapsed)
		log.Warn("label render failed", zap.String("kind", kind), zap.Error(err))
		return nil, err
	}
	s.metrics.ObserveRender(string(format), "ok", elapsed)
	out.Data = data

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, data); err != nil {
			log.Warn("label cache fill failed", zap.Error(err))
		}
	}
	if s.blob != nil {
		blobKey := blob.LabelKey(team, rec.Key, lay.ID, format.Ext())
		_, err := s.blob.Put(ctx, blobKey, bytes.NewReader(data), blob.PutOptions{
			ContentType: format.ContentType(),
			Metadata:    map[string]string{"team": team, "audit_id": rec.AuditID},
		})
		switch {
		case err == nil, errors.Is(err, blob.ErrExists):
			out.BlobKey = blobKey
		default:
			log.Warn("label archive failed", zap.String("blob_key", blobKey), zap.Error(err))
		}
	}
	log.Info("label rendered", zap.Int("bytes", len(data)), zap.Duration("elapsed", elapsed))
	return out, nil
}

// RenderSheet 将多个样本按团队最新布局输出为多页 PDF，每页一个标签。
func (s *Service) RenderSheet(ctx context.Context, team string, keys ...string) ([]byte, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("render sheet: 缺少样本")
	}
	lay, err := s.store.LatestLayout(ctx, team)
	if err != nil {
		return nil, err
	}
	samples := make([]sample.Sample, 0, len(keys))
	for _, key := range keys {
		rec, err := s.store.GetSample(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec.Team != team {
			return nil, fmt.Errorf("sample %s not in team %s: %w", key, team, store.ErrNotFound)
		}
		samples = append(samples, rec.Sample)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := s.pdf.RenderSheet(lay.Descriptor, samples...)
	if err != nil {
		s.metrics.ObserveRender(string(renderer.FormatPDF), renderer.Kind(err), time.Since(start))
		return nil, err
	}
	s.metrics.ObserveRender(string(renderer.FormatPDF), "ok", time.Since(start))
	return data, nil
}

func (s *Service) rendererFor(format renderer.Format) (renderer.Renderer, error) {
	switch format {
	case renderer.FormatPNG:
		return s.compositor, nil
	case renderer.FormatPDF:
		return s.pdf, nil
	}
	return nil, fmt.Errorf("不支持的输出格式 %q", format)
}
