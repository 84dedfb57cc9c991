package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// 该文件实现布局的存储格式（仪表盘保存的 JSON）：
//
//	{"entities":[{"position":{"x":10,"y":10},"size":80},
//	             {"position":{"x":100,"y":10},"fontSizePX":24,"text":"Lot: {lot}"}],
//	 "labelSize":{"length":50.8,"width":25.4}}
//
// 带 size 且没有 fontSizePX 的元素是二维码（允许空的 text 键）；
// 带 fontSizePX 与 text 且没有 size 的元素是文本；其余形状均为 ConfigurationError。

type descriptorJSON struct {
	Name      string       `json:"name,omitempty"`
	Entities  []entityJSON `json:"entities"`
	LabelSize *LabelSize   `json:"labelSize"`
}

type entityJSON struct {
	Position   *Position `json:"position"`
	Size       *float64  `json:"size,omitempty"`
	FontSizePX *float64  `json:"fontSizePX,omitempty"`
	FontSizePx *float64  `json:"fontSizePx,omitempty"`
	Text       *string   `json:"text,omitempty"`
}

// Decode 解析存储格式并校验，返回可直接渲染的布局。
func Decode(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		var cfg *ConfigurationError
		if errors.As(err, &cfg) {
			return nil, err
		}
		return nil, &ConfigurationError{Entity: -1, Reason: fmt.Sprintf("无法解析布局 JSON: %v", err)}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// MarshalJSON 输出存储格式。
func (d Descriptor) MarshalJSON() ([]byte, error) {
	out := descriptorJSON{
		Name:      d.Name,
		Entities:  make([]entityJSON, 0, len(d.Entities)),
		LabelSize: &d.LabelSize,
	}
	for i, ent := range d.Entities {
		switch e := ent.(type) {
		case QR:
			pos, size := e.Position, float64(e.Size)
			out.Entities = append(out.Entities, entityJSON{Position: &pos, Size: &size})
		case Text:
			pos, font, text := e.Position, float64(e.FontSizePx), e.Text
			out.Entities = append(out.Entities, entityJSON{Position: &pos, FontSizePX: &font, Text: &text})
		default:
			return nil, configErr(i, "未知元素类型 %T", ent)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON 解析存储格式，并把每个元素判定为 QR 或 Text。
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw descriptorJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return &ConfigurationError{Entity: -1, Reason: fmt.Sprintf("无法解析布局 JSON: %v", err)}
	}
	if raw.LabelSize == nil {
		return configErr(-1, "缺少 labelSize")
	}
	entities := make([]Entity, 0, len(raw.Entities))
	for i, ej := range raw.Entities {
		ent, err := ej.entity(i)
		if err != nil {
			return err
		}
		entities = append(entities, ent)
	}
	*d = Descriptor{Name: raw.Name, Entities: entities, LabelSize: *raw.LabelSize}
	return nil
}

func (ej entityJSON) entity(i int) (Entity, error) {
	if ej.Position == nil {
		return nil, configErr(i, "缺少 position")
	}
	font := ej.FontSizePX
	if font == nil {
		font = ej.FontSizePx
	}
	switch {
	case ej.Size != nil && font == nil:
		if ej.Text != nil && *ej.Text != "" {
			return nil, configErr(i, "二维码元素不能带文本 %q", *ej.Text)
		}
		size, ok := wholeNumber(*ej.Size)
		if !ok {
			return nil, configErr(i, "二维码边长必须为整数, got %g", *ej.Size)
		}
		return QR{Position: *ej.Position, Size: size}, nil
	case font != nil && ej.Size == nil:
		if ej.Text == nil {
			return nil, configErr(i, "文本元素缺少 text")
		}
		px, ok := wholeNumber(*font)
		if !ok {
			return nil, configErr(i, "字号必须为整数, got %g", *font)
		}
		return Text{Position: *ej.Position, FontSizePx: px, Text: *ej.Text}, nil
	case ej.Size != nil && font != nil:
		return nil, configErr(i, "元素同时声明了 size 与 fontSizePX")
	default:
		return nil, configErr(i, "元素既不是二维码也不是文本")
	}
}

func wholeNumber(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}
