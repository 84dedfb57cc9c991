// Package sample 定义样本记录：按字段顺序保存的标量字段集合。
package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// KeyField 是派生字段：内容哈希得到的二维码内容，同时作为样本的主查找键。
const KeyField = "qr_code_key"

// isoLayout 与 JSON.stringify(Date) 的输出一致（UTC，毫秒精度）。
const isoLayout = "2006-01-02T15:04:05.000Z"

// Field 是一个字段名与标量值的组合。
// 值可以是 string、数值、time.Time、bool 或 nil。
type Field struct {
	Name  string
	Value any
}

// Sample 是一个样本的字段映射，保留字段的声明顺序（顺序参与哈希计算）。
// Sample 按值传递；With/Without 返回修改后的副本，不改动原值。
type Sample struct {
	fields []Field
}

// New 按给定顺序构造样本，同名字段后者覆盖前者的值但保留首次出现的位置。
func New(fields ...Field) Sample {
	var s Sample
	for _, f := range fields {
		s.set(f.Name, f.Value)
	}
	return s
}

// FromMap 从无序映射构造样本，字段按名称字典序排列。
func FromMap(m map[string]any) Sample {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, Field{Name: name, Value: m[name]})
	}
	return Sample{fields: fields}
}

// Len 返回字段数量。
func (s Sample) Len() int { return len(s.fields) }

// Fields 返回字段副本。
func (s Sample) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Get 返回字段原始值。
func (s Sample) Get(name string) (any, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Lookup 返回字段的文本形式，字段不存在时 ok 为 false。
func (s Sample) Lookup(name string) (string, bool) {
	v, ok := s.Get(name)
	if !ok {
		return "", false
	}
	return Text(v), true
}

// Key 返回已分配的 qr_code_key；未分配或为空时返回空串。
func (s Sample) Key() string {
	v, ok := s.Get(KeyField)
	if !ok || v == nil {
		return ""
	}
	return Text(v)
}

// With 返回设置了 name=value 的副本。
func (s Sample) With(name string, value any) Sample {
	out := Sample{fields: s.Fields()}
	out.set(name, value)
	return out
}

// Without 返回去掉 name 字段的副本。
func (s Sample) Without(name string) Sample {
	out := Sample{fields: make([]Field, 0, len(s.fields))}
	for _, f := range s.fields {
		if f.Name != name {
			out.fields = append(out.fields, f)
		}
	}
	return out
}

func (s *Sample) set(name string, value any) {
	for i := range s.fields {
		if s.fields[i].Name == name {
			s.fields[i].Value = value
			return
		}
	}
	s.fields = append(s.fields, Field{Name: name, Value: value})
}

// MarshalJSON 按字段顺序输出紧凑 JSON 对象。
func (s Sample) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeObject(&buf, s.fields, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON 解析 JSON 对象并保留字段在文档中的顺序。
// 只接受标量值；数值统一解析为 float64。
func (s *Sample) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sample: 期望 JSON 对象")
	}
	var out Sample
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("sample: %w", err)
		}
		name, _ := keyTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("sample: 字段 %s: %w", name, err)
		}
		switch v := valTok.(type) {
		case json.Delim:
			return fmt.Errorf("sample: 字段 %s 不是标量值", name)
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return fmt.Errorf("sample: 字段 %s: %w", name, err)
			}
			out.set(name, f)
		default:
			out.set(name, v)
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	*s = out
	return nil
}

// Text 返回值的自然文本形式：数值为十进制，日期为 ISO 字符串，nil 为空串。
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(isoLayout)
	case json.Number:
		return val.String()
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// formatFloat 采用 ECMAScript 的数值转字符串规则，与 encoding/json 相同。
func formatFloat(f float64) string {
	if f == 0 {
		// -0 -> 0
		return "0"
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if format == 'e' {
		// e-09 -> e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return string(b)
}

func writeObject(buf *bytes.Buffer, fields []Field, skip string) error {
	buf.WriteByte('{')
	first := true
	for _, f := range fields {
		if skip != "" && f.Name == skip {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeString(buf, f.Name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, f.Value); err != nil {
			return fmt.Errorf("sample: 字段 %s: %w", f.Name, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return writeString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case time.Time:
		return writeString(buf, val.UTC().Format(isoLayout))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(formatFloat(val))
	case float32:
		return writeValue(buf, float64(val))
	case json.Number, int, int32, int64, uint, uint32, uint64:
		buf.WriteString(Text(val))
	default:
		return fmt.Errorf("不支持的值类型 %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	unescapeLineSeparators(buf, bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// unescapeLineSeparators 将 \u2028、\u2029 还原为原字符，与 JSON.stringify 一致。
func unescapeLineSeparators(buf *bytes.Buffer, enc []byte) {
	for i := 0; i < len(enc); i++ {
		if enc[i] != '\\' || i+1 >= len(enc) {
			buf.WriteByte(enc[i])
			continue
		}
		if enc[i+1] == 'u' && i+6 <= len(enc) {
			switch string(enc[i+2 : i+6]) {
			case "2028":
				buf.WriteRune('\u2028')
				i += 5
				continue
			case "2029":
				buf.WriteRune('\u2029')
				i += 5
				continue
			}
		}
		// 其余转义原样保留，跳过被转义的字符
		buf.Write(enc[i : i+2])
		i++
	}
}
