package sample

import (
	"encoding/json"
	"math"
	"regexp"
	"testing"
	"time"
)

var keyPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestHashKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		s    Sample
		want string
	}{
		{"single", New(Field{"lot", "42"}), "59095431"},
		{"empty", New(), "44136fa3"},
		{"ordered", New(
			Field{"experiment_id", "EXP-1"},
			Field{"contents", "Buffer A"},
			Field{"analyst", "kim"},
			Field{"quantity", 3},
		), "f1b7d82e"},
	}
	for _, tc := range cases {
		if got := Hash(tc.s); got != tc.want {
			t.Fatalf("%s: Hash=%s want %s (canonical %s)", tc.name, got, tc.want, Canonical(tc.s))
		}
	}
}

func TestHashIgnoresDerivedKey(t *testing.T) {
	base := New(Field{"lot", "42"})
	withKey := base.With(KeyField, "deadbeef")
	if Hash(base) != Hash(withKey) {
		t.Fatalf("qr_code_key 不应参与哈希: %s vs %s", Canonical(base), Canonical(withKey))
	}
}

func TestHashDeterministicAndFormatted(t *testing.T) {
	s := New(
		Field{"contents", "PBS <1x> & buffer"},
		Field{"date_entered", time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)},
		Field{"volume", 12.5},
		Field{"sterile", true},
		Field{"notes", nil},
	)
	first := Hash(s)
	for i := 0; i < 10; i++ {
		if got := Hash(s); got != first {
			t.Fatalf("哈希不稳定: %s vs %s", got, first)
		}
	}
	if !keyPattern.MatchString(first) {
		t.Fatalf("键格式错误: %q", first)
	}
	want := `{"contents":"PBS <1x> & buffer","date_entered":"2024-03-09T14:05:00.000Z","volume":12.5,"sterile":true,"notes":null}`
	if got := string(Canonical(s)); got != want {
		t.Fatalf("canonical=%s\nwant      %s", got, want)
	}
}

func TestCanonicalMatchesStringify(t *testing.T) {
	s := New(
		Field{"a", "x\u2028y\u2029z"},
		Field{"b", `q"\u2028`},
		Field{"c", "tab\there"},
		Field{"zero", math.Copysign(0, -1)},
	)
	want := "{\"a\":\"x\u2028y\u2029z\",\"b\":\"q\\\"\\\\u2028\",\"c\":\"tab\\there\",\"zero\":0}"
	if got := string(Canonical(s)); got != want {
		t.Fatalf("canonical=%s\nwant      %s", got, want)
	}
	if got := Text(math.Copysign(0, -1)); got != "0" {
		t.Fatalf("Text(-0)=%q", got)
	}
}

func TestHashSensitiveToValuesAndOrder(t *testing.T) {
	a := New(Field{"lot", "42"}, Field{"analyst", "kim"})
	b := New(Field{"lot", "43"}, Field{"analyst", "kim"})
	c := New(Field{"analyst", "kim"}, Field{"lot", "42"})
	if Hash(a) == Hash(b) {
		t.Fatalf("不同取值应得到不同的键")
	}
	if Hash(a) == Hash(c) {
		t.Fatalf("字段顺序参与规范化，应得到不同的键")
	}
}

func TestResolveKeyShortCircuit(t *testing.T) {
	s := New(Field{"lot", "42"}, Field{KeyField, "deadbeef"})
	called := false
	key, computed := ResolveKey(s, func(Sample) string {
		called = true
		return "00000000"
	})
	if key != "deadbeef" || computed || called {
		t.Fatalf("已有键应直接采用: key=%s computed=%v called=%v", key, computed, called)
	}

	empty := s.With(KeyField, "")
	key, computed = ResolveKey(empty, nil)
	if !computed || key != Hash(empty) {
		t.Fatalf("空键应重新计算: key=%s computed=%v", key, computed)
	}
}

func TestUnmarshalPreservesOrder(t *testing.T) {
	var s Sample
	raw := `{"lot":"42","quantity":3,"qr_code_key":null,"analyst":"kim","lot":"43"}`
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	names := []string{}
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	if len(names) != 4 || names[0] != "lot" || names[1] != "quantity" || names[3] != "analyst" {
		t.Fatalf("字段顺序错误: %v", names)
	}
	if v, _ := s.Lookup("lot"); v != "43" {
		t.Fatalf("重复字段应取后者的值, got %q", v)
	}
	if s.Key() != "" {
		t.Fatalf("null 键应视为未分配")
	}
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	if string(out) != `{"lot":"43","quantity":3,"qr_code_key":null,"analyst":"kim"}` {
		t.Fatalf("序列化结果错误: %s", out)
	}
}

func TestUnmarshalRejectsNested(t *testing.T) {
	var s Sample
	if err := json.Unmarshal([]byte(`{"lot":{"a":1}}`), &s); err == nil {
		t.Fatalf("嵌套值应报错")
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &s); err == nil {
		t.Fatalf("非对象应报错")
	}
}

func TestText(t *testing.T) {
	cases := map[string]any{
		"42":                       42,
		"0.1":                      0.1,
		"1e+21":                    1e21,
		"1e-7":                     1e-7,
		"true":                     true,
		"":                         nil,
		"2024-01-02T03:04:05.006Z": time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC),
	}
	for want, v := range cases {
		if got := Text(v); got != want {
			t.Fatalf("Text(%v)=%q want %q", v, got, want)
		}
	}
}

func TestFromMapSortsFields(t *testing.T) {
	s := FromMap(map[string]any{"b": "2", "a": "1"})
	if got := string(Canonical(s)); got != `{"a":"1","b":"2"}` {
		t.Fatalf("FromMap 顺序错误: %s", got)
	}
	if s.Without("a").Len() != 1 || s.Len() != 2 {
		t.Fatalf("Without 不应修改原样本")
	}
}
