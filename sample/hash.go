package sample

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

// KeyLength 是内容键的十六进制字符数。
const KeyLength = 8

// Hasher 由样本内容派生内容键。
type Hasher func(Sample) string

// Canonical 返回参与哈希的规范字符串：除 qr_code_key 外的全部字段，
// 按样本字段顺序输出为紧凑 JSON（不转义 HTML 字符）。
func Canonical(s Sample) []byte {
	var buf bytes.Buffer
	if err := writeObject(&buf, s.fields, KeyField); err != nil {
		// 不支持的值类型退化为其文本形式，保证 Hash 不会失败。
		buf.Reset()
		fallback := make([]Field, len(s.fields))
		for i, f := range s.fields {
			fallback[i] = Field{Name: f.Name, Value: textOrScalar(f.Value)}
		}
		_ = writeObject(&buf, fallback, KeyField)
	}
	return buf.Bytes()
}

// Hash 计算内容键：sha256(Canonical(s)) 的十六进制前 8 位。
func Hash(s Sample) string {
	sum := sha256.Sum256(Canonical(s))
	return hex.EncodeToString(sum[:])[:KeyLength]
}

// ResolveKey 返回样本的内容键。已有非空 qr_code_key 时直接采用且不调用 hasher；
// computed 表示是否为本次计算所得。hasher 为 nil 时使用 Hash。
func ResolveKey(s Sample, hasher Hasher) (key string, computed bool) {
	if k := s.Key(); k != "" {
		return k, false
	}
	if hasher == nil {
		hasher = Hash
	}
	return hasher(s), true
}

func textOrScalar(v any) any {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return Text(v)
	}
	return v
}
