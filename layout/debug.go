package layout

import (
	"encoding/json"
	"os"
)

// WriteDebugJSON 将布局描述以存储格式（带缩进）写入文件，便于调试或导入仪表盘。
func WriteDebugJSON(d *Descriptor, path string) error {
	if d == nil {
		return nil
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
