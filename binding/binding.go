// Package binding 将布局文本模板中的 {field} 占位符替换为样本字段值。
package binding

import (
	"fmt"
	"regexp"

	"github.com/ByLCY/sampletag/sample"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// MissingFieldError 表示模板引用了样本中不存在的字段。
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("binding: 样本缺少模板字段 %q", e.Field)
}

// Resolve 替换模板中第一个 {identifier} 占位符。
// 每个文本模板只解析第一个占位符，其余占位符按原文输出；
// 没有占位符时原样返回。字段不存在时返回 *MissingFieldError。
func Resolve(template string, s sample.Sample) (string, error) {
	loc := placeholderPattern.FindStringSubmatchIndex(template)
	if loc == nil {
		return template, nil
	}
	name := template[loc[2]:loc[3]]
	value, ok := s.Lookup(name)
	if !ok {
		return "", &MissingFieldError{Field: name}
	}
	return template[:loc[0]] + value + template[loc[1]:], nil
}

// Placeholders 列出模板中出现的全部字段名（按出现顺序），供布局编辑时检查。
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}
