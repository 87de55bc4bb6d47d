package markdown

import (
	"bytes"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const (
	wordsPerMinute = 200
	excerptLength  = 140
)

// Heading is one heading of a rendered document.
type Heading struct {
	Depth int
	Value string
	ID    string
}

// Rendered is the result of rendering a markdown body.
type Rendered struct {
	HTML       string
	Headings   []Heading
	Excerpt    string
	WordCount  int
	TimeToRead int
}

func newRenderer() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}

// render parses body once and derives HTML and document statistics from the
// same tree.
func render(md goldmark.Markdown, body []byte) (Rendered, error) {
	root := md.Parser().Parse(text.NewReader(body))

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, body, root); err != nil {
		return Rendered{}, err
	}

	out := Rendered{HTML: buf.String()}
	var words []string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *gmast.Heading:
			h := Heading{Depth: t.Level, Value: plainText(t, body)}
			if id, ok := t.AttributeString("id"); ok {
				if b, ok := id.([]byte); ok {
					h.ID = string(b)
				}
			}
			out.Headings = append(out.Headings, h)
		case *gmast.Paragraph:
			if out.Excerpt == "" {
				out.Excerpt = excerpt(plainText(t, body))
			}
		case *gmast.Text:
			words = append(words, strings.Fields(string(t.Segment.Value(body)))...)
		case *gmast.CodeBlock, *gmast.FencedCodeBlock:
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})

	out.WordCount = len(words)
	out.TimeToRead = int(math.Max(1, math.Ceil(float64(out.WordCount)/wordsPerMinute)))
	return out, nil
}

func plainText(n gmast.Node, source []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gmast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *gmast.String:
			b.Write(t.Value)
		case *gmast.CodeSpan:
			for cc := t.FirstChild(); cc != nil; cc = cc.NextSibling() {
				if seg, ok := cc.(*gmast.Text); ok {
					b.Write(seg.Segment.Value(source))
				}
			}
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLength {
		return s
	}
	cut := string(r[:excerptLength])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
