package layout

import (
	"fmt"
	"math"
)

// ConfigurationError 表示布局描述的结构不合法，在任何绘制开始之前返回。
// Entity 为出错元素的下标，与具体元素无关时为 -1。
type ConfigurationError struct {
	Entity int
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Entity >= 0 {
		return fmt.Sprintf("layout: 元素 #%d: %s", e.Entity, e.Reason)
	}
	return "layout: " + e.Reason
}

func configErr(entity int, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// MaxPixels 是画布边长、二维码边长与坐标绝对值的上限（像素）。
const MaxPixels = 16384

// Validate 检查布局结构：至少一个元素、标签尺寸为正且不超过 MaxPixels、每个元素都是合法的 QR 或 Text。
// 字号是否受支持由渲染阶段的字体集判断。
func (d *Descriptor) Validate() error {
	if d == nil {
		return configErr(-1, "布局为空")
	}
	if !positive(d.LabelSize.Length) || !positive(d.LabelSize.Width) {
		return configErr(-1, "标签尺寸必须为正数: length=%g width=%g", d.LabelSize.Length, d.LabelSize.Width)
	}
	if d.LabelSize.Length*PxPerMM > MaxPixels || d.LabelSize.Width*PxPerMM > MaxPixels {
		return configErr(-1, "标签尺寸 %gmm x %gmm 超过 %d 像素上限", d.LabelSize.Length, d.LabelSize.Width, MaxPixels)
	}
	if w, h := d.LabelSize.Pixels(); w < 1 || h < 1 {
		return configErr(-1, "标签尺寸 %gmm x %gmm 不足一个像素", d.LabelSize.Length, d.LabelSize.Width)
	}
	if len(d.Entities) == 0 {
		return configErr(-1, "布局没有任何元素")
	}
	for i, ent := range d.Entities {
		if ent == nil {
			return configErr(i, "元素为空")
		}
		pos := ent.At()
		if !finite(pos.X) || !finite(pos.Y) {
			return configErr(i, "坐标不是有限数值")
		}
		if math.Abs(pos.X) > MaxPixels || math.Abs(pos.Y) > MaxPixels {
			return configErr(i, "坐标 (%g, %g) 超出 ±%d 像素", pos.X, pos.Y, MaxPixels)
		}
		switch e := ent.(type) {
		case QR:
			if e.Size <= 0 {
				return configErr(i, "二维码边长必须为正整数, got %d", e.Size)
			}
			if e.Size > MaxPixels {
				return configErr(i, "二维码边长 %d 超过 %d 像素上限", e.Size, MaxPixels)
			}
		case Text:
			if e.FontSizePx <= 0 {
				return configErr(i, "字号必须为正整数, got %d", e.FontSizePx)
			}
		default:
			return configErr(i, "未知元素类型 %T", ent)
		}
	}
	return nil
}

func positive(v float64) bool { return finite(v) && v > 0 }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
