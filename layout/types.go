package layout

import (
	"image"
	"math"
)

// 该文件定义标签布局描述：物理尺寸加上按绘制顺序排列的放置元素。

// Descriptor 是一个标签布局。Entities 的顺序即绘制顺序，后面的元素覆盖前面的元素。
type Descriptor struct {
	Name      string
	Entities  []Entity
	LabelSize LabelSize
}

// LabelSize 是标签的物理尺寸（毫米）。Length 对应画布宽度，Width 对应画布高度。
type LabelSize struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
}

// Pixels 按 96 DPI 换算画布像素尺寸。
func (s LabelSize) Pixels() (width, height int) {
	return MMToPixels(s.Length), MMToPixels(s.Width)
}

// Position 是元素左上角的像素坐标。
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Point 返回四舍五入后的整数坐标。
func (p Position) Point() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// EntityKind 区分两种放置元素。
type EntityKind string

const (
	KindQR   EntityKind = "qr"
	KindText EntityKind = "text"
)

// Entity 是一个可绘制单元，只有 QR 与 Text 两种实现。
type Entity interface {
	Kind() EntityKind
	At() Position
	sealed()
}

// QR 在 Position 处放置边长为 Size 像素的二维码。
type QR struct {
	Position Position
	Size     int
}

// Text 在 Position 处以 FontSizePx 字号绘制解析后的模板文本。
type Text struct {
	Position   Position
	FontSizePx int
	Text       string
}

func (QR) Kind() EntityKind { return KindQR }
func (q QR) At() Position   { return q.Position }
func (QR) sealed()          {}

func (Text) Kind() EntityKind { return KindText }
func (t Text) At() Position   { return t.Position }
func (Text) sealed()          {}

var (
	_ Entity = QR{}
	_ Entity = Text{}
)
