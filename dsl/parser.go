package dsl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// 标签布局 DSL 示例：
//
//	label "ARND" size 50.8mm x 25.4mm {
//	  qr at 10, 10 size 80
//	  text "Lot: {lot}" at 100, 10 font 24
//	}

var (
	dslLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r]+`},
		{Name: "Newline", Pattern: `\n+`},
		{Name: "BlockComment", Pattern: `/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
		{Name: "LineComment", Pattern: `//[^\n]*`},
		{Name: "HashComment", Pattern: `#[^\n]*`},
		{Name: "Number", Pattern: `(?:\d+\.\d+|\d+)(?:mm|cm|in|pt|px)?`},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
		{Name: "Symbol", Pattern: `[,;:\-]`},
		{Name: "LBrace", Pattern: `{`},
		{Name: "RBrace", Pattern: `}`},
	})

	documentParser = participle.MustBuild[Document](
		participle.Lexer(dslLexer),
		participle.Elide("Whitespace", "LineComment", "BlockComment", "HashComment"),
	)
)

// Document is the root AST node of a label layout file.
type Document struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Name     StringLiteral  `parser:"Newline* 'label' @String?"`
	Size     *Size          `parser:"'size' @@"`
	Entities []*Statement   `parser:"'{' Newline* ( @@ ( ';' | Newline )* )* '}' Newline*"`
}

// Size holds the physical label size, `<length> x <width>`.
type Size struct {
	Length string `parser:"@Number"`
	Width  string `parser:"'x' @Number"`
}

// Statement is one placement, in draw order.
type Statement struct {
	Pos  lexer.Position `parser:"" json:"-"`
	QR   *QRCommand     `parser:"  @@"`
	Text *TextCommand   `parser:"| @@"`
}

// Kind returns the human-readable statement type.
func (s *Statement) Kind() string {
	switch {
	case s == nil:
		return "unknown"
	case s.QR != nil:
		return "qr"
	case s.Text != nil:
		return "text"
	default:
		return "unknown"
	}
}

// QRCommand places the sample's QR code: `qr at X, Y size N`.
type QRCommand struct {
	At   Point  `parser:"'qr' 'at' @@"`
	Size string `parser:"'size' @Number"`
}

// TextCommand places a template string: `text "..." at X, Y font N`.
type TextCommand struct {
	Content StringLiteral `parser:"'text' @String"`
	At      Point         `parser:"'at' @@"`
	Font    string        `parser:"'font' @Number"`
}

// Point is an `X, Y` coordinate pair; the comma is optional.
type Point struct {
	X string `parser:"@('-'? Number)"`
	Y string `parser:"','? @('-'? Number)"`
}

// StringLiteral unquotes Go-style strings on capture.
type StringLiteral string

// Capture implements participle.Capture.
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("string literal capture requires value")
	}
	val, err := strconv.Unquote(values[0])
	if err != nil {
		return err
	}
	*s = StringLiteral(val)
	return nil
}

// Parse parses DSL content from an io.Reader.
func Parse(r io.Reader) (*Document, error) {
	return documentParser.Parse("", r)
}

// ParseString parses DSL content from a string.
func ParseString(input string) (*Document, error) {
	return documentParser.ParseString("", input)
}
