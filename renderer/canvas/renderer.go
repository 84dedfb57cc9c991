package canvasrenderer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/renderer"
	"github.com/ByLCY/sampletag/renderer/raster"
	"github.com/ByLCY/sampletag/sample"
)

// Renderer wraps composited labels into print-ready PDF pages via
// github.com/tdewolff/canvas. Each page has the label's physical size.
type Renderer struct {
	compositor *raster.Compositor
	meta       Meta
}

var _ renderer.Renderer = (*Renderer)(nil)

// Meta is written into the PDF document info dictionary.
type Meta struct {
	Title    string
	Subject  string
	Keywords []string
	Author   string
	Creator  string
}

// Options configures the canvas renderer.
type Options struct {
	Compositor *raster.Compositor
	Meta       Meta
}

// NewRenderer creates a PDF renderer drawing through c.
func NewRenderer(c *raster.Compositor) *Renderer {
	return NewRendererWithOptions(Options{Compositor: c})
}

// NewRendererWithOptions creates a renderer with document metadata.
func NewRendererWithOptions(opts Options) *Renderer {
	meta := opts.Meta
	if meta.Creator == "" {
		meta.Creator = "sampletag"
	}
	return &Renderer{compositor: opts.Compositor, meta: meta}
}

// Render renders a single label into a one-page PDF.
func (r *Renderer) Render(s sample.Sample, d *layout.Descriptor) ([]byte, error) {
	return r.RenderSheet(d, s)
}

// RenderSheet renders one page per sample, all with the same layout.
// Compositing errors are returned unwrapped so callers can classify them.
func (r *Renderer) RenderSheet(d *layout.Descriptor, samples ...sample.Sample) ([]byte, error) {
	if r.compositor == nil {
		return nil, fmt.Errorf("未配置合成器")
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("缺少可渲染的样本")
	}
	labels := make([]*raster.Label, 0, len(samples))
	for _, s := range samples {
		label, err := r.compositor.Compose(s, d)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}

	width, height := d.LabelSize.Length, d.LabelSize.Width
	var buf bytes.Buffer
	writer := pdf.New(&buf, width, height, nil)
	r.applyMeta(writer, labels)
	for i, label := range labels {
		if i > 0 {
			writer.NewPage(width, height)
		}
		c := canvas.New(width, height)
		ctx := canvas.NewContext(c)
		// 96 DPI raster stretched over the page width
		dpmm := float64(label.Image.Bounds().Dx()) / width
		ctx.DrawImage(0, 0, label.Image, canvas.DPMM(dpmm))
		c.RenderTo(writer)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) applyMeta(writer *pdf.PDF, labels []*raster.Label) {
	meta := r.meta
	if meta.Title == "" {
		keys := make([]string, len(labels))
		for i, l := range labels {
			keys[i] = l.Key
		}
		meta.Title = strings.Join(keys, " ")
	}
	writer.SetInfo(meta.Title, meta.Subject, strings.Join(meta.Keywords, ", "), meta.Author, meta.Creator)
}
