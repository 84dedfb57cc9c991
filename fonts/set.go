// Package fonts 提供标签文字使用的固定字号字体集。
//
// 字体在首次使用时解析一次，之后作为不可变数据在并发渲染之间共享；
// 每次渲染通过 Face 取得自己的 font.Face（Face 本身不能并发使用）。
package fonts

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// Binding 将一个像素字号绑定到一款字体。
type Binding struct {
	SizePx int
	Src    string
}

// DefaultBindings 是标签支持的字号集合：16/24/32 像素，分别对应常规、中粗、粗体。
var DefaultBindings = []Binding{
	{SizePx: 16, Src: "embed:goregular"},
	{SizePx: 24, Src: "embed:gomedium"},
	{SizePx: 32, Src: "embed:gobold"},
}

// UnsupportedFontSizeError 表示文本元素请求了字体集之外的字号。
type UnsupportedFontSizeError struct {
	Size      int
	Supported []int
}

func (e *UnsupportedFontSizeError) Error() string {
	return fmt.Sprintf("fonts: 不支持的字号 %dpx（支持 %v）", e.Size, e.Supported)
}

// Set 是解析后的字体集，创建后只读。
type Set struct {
	fonts map[int]*opentype.Font
	sizes []int
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default 返回按 DefaultBindings 构建的进程级字体集，只初始化一次。
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = NewSet(DefaultBindings...)
	})
	return defaultSet, defaultErr
}

// NewSet 加载并解析给定绑定。同一字号重复绑定时后者生效。
func NewSet(bindings ...Binding) (*Set, error) {
	if len(bindings) == 0 {
		return nil, fmt.Errorf("fonts: 字体集为空")
	}
	s := &Set{fonts: make(map[int]*opentype.Font, len(bindings))}
	parsed := map[string]*opentype.Font{}
	for _, b := range bindings {
		if b.SizePx <= 0 {
			return nil, fmt.Errorf("fonts: 字号必须为正数, got %d", b.SizePx)
		}
		f, ok := parsed[b.Src]
		if !ok {
			data, err := Load(b.Src)
			if err != nil {
				return nil, err
			}
			f, err = opentype.Parse(data)
			if err != nil {
				return nil, fmt.Errorf("fonts: 解析字体 %s 失败: %w", b.Src, err)
			}
			parsed[b.Src] = f
		}
		s.fonts[b.SizePx] = f
	}
	for size := range s.fonts {
		s.sizes = append(s.sizes, size)
	}
	sort.Ints(s.sizes)
	return s, nil
}

// Supported 返回升序排列的受支持字号。
func (s *Set) Supported() []int {
	out := make([]int, len(s.sizes))
	copy(out, s.sizes)
	return out
}

// Face 创建指定像素字号的字体面，调用方负责 Close。
func (s *Set) Face(sizePx int) (font.Face, error) {
	f, ok := s.fonts[sizePx]
	if !ok {
		return nil, &UnsupportedFontSizeError{Size: sizePx, Supported: s.Supported()}
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(sizePx),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("fonts: 创建 %dpx 字体面失败: %w", sizePx, err)
	}
	return face, nil
}
