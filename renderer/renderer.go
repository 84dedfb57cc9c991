package renderer

import (
	"errors"
	"strings"

	"github.com/ByLCY/sampletag/binding"
	"github.com/ByLCY/sampletag/fonts"
	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/qr"
	"github.com/ByLCY/sampletag/sample"
)

// Renderer 将样本按布局输出为最终文件，例如 PNG 或 PDF。
// Render 返回生成的二进制数据以及可能的错误。
type Renderer interface {
	Render(s sample.Sample, d *layout.Descriptor) ([]byte, error)
}

// Format 是标签的输出格式。
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

// ParseFormat 解析格式名或文件扩展名（可带点，不区分大小写）。
func ParseFormat(name string) (Format, bool) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(name, "."))); f {
	case FormatPNG, FormatPDF:
		return f, true
	}
	return "", false
}

// ContentType 返回格式对应的 MIME 类型。
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

// Ext 返回不带点的文件扩展名。
func (f Format) Ext() string { return string(f) }

// 错误类别，供调用方映射到传输层状态码。
const (
	KindEncoding        = "encoding"
	KindMissingField    = "missing_field"
	KindUnsupportedFont = "unsupported_font"
	KindConfiguration   = "configuration"
	KindOther           = "other"
)

// Kind 返回渲染错误的类别；err 为 nil 时返回空串。
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		encErr     *qr.EncodingError
		missingErr *binding.MissingFieldError
		fontErr    *fonts.UnsupportedFontSizeError
		cfgErr     *layout.ConfigurationError
	)
	switch {
	case errors.As(err, &encErr):
		return KindEncoding
	case errors.As(err, &missingErr):
		return KindMissingField
	case errors.As(err, &fontErr):
		return KindUnsupportedFont
	case errors.As(err, &cfgErr):
		return KindConfiguration
	}
	return KindOther
}
