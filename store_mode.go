package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ByLCY/sampletag/blob"
	"github.com/ByLCY/sampletag/cache"
	"github.com/ByLCY/sampletag/config"
	"github.com/ByLCY/sampletag/metrics"
	"github.com/ByLCY/sampletag/renderer"
	"github.com/ByLCY/sampletag/renderer/raster"
	"github.com/ByLCY/sampletag/service"
	"github.com/ByLCY/sampletag/store/sqlstore"
)

// runStore 通过存储完成操作：保存布局、写入样本、按内容键渲染标签。
func runStore(ctx context.Context, cfg config.Config, opts options, comp *raster.Compositor, log *zap.Logger) error {
	svc, closeFn, err := openService(ctx, cfg, comp, log)
	if err != nil {
		return err
	}
	defer closeFn()

	if opts.saveLayout {
		d, err := loadLayout(opts.layoutPath)
		if err != nil {
			return err
		}
		rec, err := svc.SaveLayout(ctx, opts.team, d)
		if err != nil {
			return err
		}
		fmt.Printf("已保存布局 %d（团队 %s）\n", rec.ID, opts.team)
	}

	key := opts.key
	if opts.create {
		smp, err := loadSample(opts.samplePath, opts.dataJSON)
		if err != nil {
			return err
		}
		rec, err := svc.CreateSample(ctx, opts.team, smp)
		if err != nil {
			return err
		}
		fmt.Println(rec.Key)
		if key == "" {
			key = rec.Key
		}
	}
	if key == "" {
		return nil
	}

	format, ok := renderer.ParseFormat(filepath.Ext(opts.outputPath))
	if !ok {
		return fmt.Errorf("无法识别输出格式 %s（支持 .png、.pdf）", opts.outputPath)
	}
	if keys := splitKeys(key); len(keys) > 1 {
		if format != renderer.FormatPDF {
			return fmt.Errorf("多个内容键只能输出 PDF 打印页")
		}
		data, err := svc.RenderSheet(ctx, opts.team, keys...)
		if err != nil {
			return err
		}
		if err := writeOutput(opts.outputPath, data); err != nil {
			return err
		}
		log.Info("已生成打印页", zap.String("out", opts.outputPath), zap.Int("labels", len(keys)))
		return nil
	}

	out, err := svc.RenderLabel(ctx, opts.team, key, format)
	if err != nil {
		return err
	}
	if err := writeOutput(opts.outputPath, out.Data); err != nil {
		return err
	}
	log.Info("已生成标签",
		zap.String("out", opts.outputPath),
		zap.String("key", out.Key),
		zap.Bool("cached", out.Cached),
		zap.String("blob_key", out.BlobKey),
	)
	return nil
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// openService 按配置组装存储、归档、缓存与指标。
func openService(ctx context.Context, cfg config.Config, comp *raster.Compositor, log *zap.Logger) (*service.Service, func(), error) {
	dialect, err := sqlstore.DialectFor(cfg.Store.Driver)
	if err != nil {
		return nil, nil, err
	}
	st, err := sqlstore.Open(ctx, dialect, cfg.Store.DSN, log)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { _ = st.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	archive, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}

	deps := service.Deps{
		Store:      st,
		Compositor: comp,
		Blob:       archive,
		Metrics:    metrics.New(),
		Logger:     log,
	}
	if cfg.Redis.Addr != "" {
		client := cache.NewRedisClient(cfg.Redis)
		closers = append(closers, func() { _ = client.Close() })
		if err := cache.Ping(ctx, client); err != nil {
			log.Warn("redis 不可用，跳过标签缓存", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			deps.Cache = cache.NewRedisLabelCache(client, cfg.CacheTTL)
		}
	}

	svc, err := service.New(deps)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return svc, closeAll, nil
}
