package fonts

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

var embedded = map[string][]byte{
	"goregular": goregular.TTF,
	"gomedium":  gomedium.TTF,
	"gobold":    gobold.TTF,
	"gomono":    gomono.TTF,
}

// Load 返回字体的字节数据。path 可写为 "embed:goregular"（内置 Go 字体：goregular、gomedium、gobold、gomono）
// 或 TrueType 文件路径。
func Load(path string) ([]byte, error) {
	if name, ok := strings.CutPrefix(path, "embed:"); ok {
		data, found := embedded[name]
		if !found {
			return nil, fmt.Errorf("找不到内置字体 %s", path)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体 %s 失败: %w", path, err)
	}
	return data, nil
}
