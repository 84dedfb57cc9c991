package layout

import (
	"fmt"
	"math"

	"github.com/ByLCY/sampletag/dsl"
)

// Build 将 DSL AST 转换为经过校验的布局描述。
// 标签尺寸未写单位时按 opts.SizeUnit（默认 mm）；坐标、二维码边长与字号未写单位时按像素。
func Build(doc *dsl.Document, opts BuildOptions) (*Descriptor, error) {
	if doc == nil {
		return nil, fmt.Errorf("文档为空")
	}
	if doc.Size == nil {
		return nil, configErr(-1, "缺少 size 声明")
	}
	length, err := parseMM(doc.Size.Length, opts.sizeUnit())
	if err != nil {
		return nil, configErr(-1, "标签长度: %v", err)
	}
	width, err := parseMM(doc.Size.Width, opts.sizeUnit())
	if err != nil {
		return nil, configErr(-1, "标签宽度: %v", err)
	}

	name := string(doc.Name)
	if opts.Name != "" {
		name = opts.Name
	}
	d := &Descriptor{
		Name:      name,
		Entities:  make([]Entity, 0, len(doc.Entities)),
		LabelSize: LabelSize{Length: length, Width: width},
	}
	for i, st := range doc.Entities {
		ent, err := buildEntity(i, st)
		if err != nil {
			return nil, err
		}
		d.Entities = append(d.Entities, ent)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func buildEntity(i int, st *dsl.Statement) (Entity, error) {
	switch st.Kind() {
	case "qr":
		pos, err := buildPosition(st.QR.At)
		if err != nil {
			return nil, configErr(i, "%v (%s)", err, st.Pos)
		}
		size, err := parsePixels(st.QR.Size)
		if err != nil {
			return nil, configErr(i, "二维码边长: %v (%s)", err, st.Pos)
		}
		return QR{Position: pos, Size: size}, nil
	case "text":
		pos, err := buildPosition(st.Text.At)
		if err != nil {
			return nil, configErr(i, "%v (%s)", err, st.Pos)
		}
		font, err := parsePixels(st.Text.Font)
		if err != nil {
			return nil, configErr(i, "字号: %v (%s)", err, st.Pos)
		}
		return Text{Position: pos, FontSizePx: font, Text: string(st.Text.Content)}, nil
	default:
		return nil, configErr(i, "未知语句")
	}
}

func buildPosition(p dsl.Point) (Position, error) {
	x, ok := ParseRawLengthStr(p.X)
	if !ok {
		return Position{}, fmt.Errorf("无效坐标 %q", p.X)
	}
	y, ok := ParseRawLengthStr(p.Y)
	if !ok {
		return Position{}, fmt.Errorf("无效坐标 %q", p.Y)
	}
	return Position{X: x.ToPX(), Y: y.ToPX()}, nil
}

func parseMM(raw string, def Unit) (float64, error) {
	l, ok := ParseRawLengthStr(raw)
	if !ok {
		return 0, fmt.Errorf("无效长度 %q", raw)
	}
	return l.WithDefault(def).ToMM(), nil
}

// parsePixels 解析像素值并四舍五入为整数，例如 12pt -> 16px。
func parsePixels(raw string) (int, error) {
	l, ok := ParseRawLengthStr(raw)
	if !ok {
		return 0, fmt.Errorf("无效长度 %q", raw)
	}
	return int(math.Round(l.ToPX())), nil
}
