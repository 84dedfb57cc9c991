package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/ByLCY/sampletag/config"
	"github.com/ByLCY/sampletag/dsl"
	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/logger"
	"github.com/ByLCY/sampletag/renderer"
	canvasrenderer "github.com/ByLCY/sampletag/renderer/canvas"
	"github.com/ByLCY/sampletag/renderer/raster"
	"github.com/ByLCY/sampletag/sample"
)

// options 是命令行参数。
type options struct {
	samplePath string
	dataJSON   string
	layoutPath string
	outputPath string
	debugPath  string
	background string

	team       string
	key        string
	create     bool
	saveLayout bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取配置失败: %v\n", err)
		os.Exit(1)
	}

	var opts options
	flag.StringVar(&opts.samplePath, "sample", "", "样本 JSON 文件路径")
	flag.StringVar(&opts.dataJSON, "data", "", "内联样本 JSON（与 -sample 二选一）")
	flag.StringVar(&opts.layoutPath, "layout", "", "布局文件路径：.json 为存储格式，其余按 DSL 解析")
	flag.StringVar(&opts.outputPath, "out", "output/label.png", "输出路径，扩展名决定格式（.png 或 .pdf）")
	flag.StringVar(&opts.debugPath, "debug", "", "布局调试 JSON 输出路径")
	flag.StringVar(&opts.background, "background", cfg.Background, "标签底图路径")
	flag.StringVar(&opts.team, "team", "", "团队名（使用存储时必填）")
	flag.StringVar(&opts.key, "key", "", "按内容键从存储中渲染样本，逗号分隔多个键时输出 PDF 打印页")
	flag.BoolVar(&opts.create, "create", false, "将 -sample/-data 写入存储并输出内容键")
	flag.BoolVar(&opts.saveLayout, "save-layout", false, "将 -layout 保存为团队的最新布局")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "日志级别：debug/info/warn/error")
	flag.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "日志格式：json/console")
	flag.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "存储类型：sqlite/postgres")
	flag.StringVar(&cfg.Store.DSN, "dsn", cfg.Store.DSN, "数据库连接串（SQLite 为文件路径）")
	flag.Parse()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "sampletag")
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(context.Background(), cfg, opts, log); err != nil {
		log.Fatal("执行失败", zap.String("kind", renderer.Kind(err)), zap.Error(err))
	}
}

// run 根据参数选择模式：仅使用存储（-team）或直接由文件渲染。
func run(ctx context.Context, cfg config.Config, opts options, log *zap.Logger) error {
	comp, err := newCompositor(opts.background)
	if err != nil {
		return err
	}
	if opts.team != "" {
		return runStore(ctx, cfg, opts, comp, log)
	}
	return runFiles(opts, comp, log)
}

// runFiles 串联读取样本、解析布局与渲染，不访问存储。
func runFiles(opts options, comp *raster.Compositor, log *zap.Logger) error {
	smp, err := loadSample(opts.samplePath, opts.dataJSON)
	if err != nil {
		return err
	}
	d, err := loadLayout(opts.layoutPath)
	if err != nil {
		return err
	}
	if opts.debugPath != "" {
		if err := writeDebug(d, opts.debugPath); err != nil {
			return err
		}
	}

	format, ok := renderer.ParseFormat(filepath.Ext(opts.outputPath))
	if !ok {
		return fmt.Errorf("无法识别输出格式 %s（支持 .png、.pdf）", opts.outputPath)
	}
	var r renderer.Renderer = comp
	if format == renderer.FormatPDF {
		r = canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{
			Compositor: comp,
			Meta:       canvasrenderer.Meta{Subject: d.Name},
		})
	}
	data, err := r.Render(smp, d)
	if err != nil {
		return fmt.Errorf("渲染标签失败: %w", err)
	}
	if err := writeOutput(opts.outputPath, data); err != nil {
		return err
	}
	log.Info("已生成标签", zap.String("out", opts.outputPath), zap.String("format", string(format)), zap.Int("bytes", len(data)))
	return nil
}

func newCompositor(background string) (*raster.Compositor, error) {
	var bg image.Image
	if background != "" {
		img, err := imaging.Open(background)
		if err != nil {
			return nil, fmt.Errorf("读取底图 %s 失败: %w", background, err)
		}
		bg = img
	}
	return raster.New(raster.Options{Background: bg})
}

// loadSample 读取样本，字段顺序与 JSON 文档一致。
func loadSample(path, inline string) (sample.Sample, error) {
	var raw []byte
	switch {
	case path != "" && inline != "":
		return sample.Sample{}, fmt.Errorf("-sample 与 -data 只能指定一个")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return sample.Sample{}, fmt.Errorf("无法读取样本文件 %s: %w", path, err)
		}
		raw = data
	case inline != "":
		raw = []byte(inline)
	default:
		return sample.Sample{}, fmt.Errorf("缺少样本：请使用 -sample 或 -data")
	}
	var smp sample.Sample
	if err := json.Unmarshal(raw, &smp); err != nil {
		return sample.Sample{}, fmt.Errorf("解析样本 JSON 失败: %w", err)
	}
	return smp, nil
}

// loadLayout 读取布局：.json 按存储格式解码，其余按 DSL 解析。
func loadLayout(path string) (*layout.Descriptor, error) {
	if path == "" {
		return nil, fmt.Errorf("缺少布局：请使用 -layout")
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("无法读取布局文件 %s: %w", path, err)
		}
		return layout.Decode(data)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("无法打开 DSL 文件 %s: %w", path, err)
	}
	defer file.Close()

	doc, err := dsl.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("解析 DSL 失败: %w", err)
	}
	d, err := layout.Build(doc, layout.BuildOptions{})
	if err != nil {
		return nil, fmt.Errorf("布局计算失败: %w", err)
	}
	return d, nil
}

func writeOutput(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	return nil
}

func writeDebug(d *layout.Descriptor, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(d, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}
