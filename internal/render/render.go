// Package render maps trace and message content to display primitives: a
// line-numbered JSON view for structured content, rendered markdown for
// everything else.
package render

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Kind selects the display primitive for a Node.
type Kind string

const (
	KindJSON     Kind = "json"
	KindMarkdown Kind = "markdown"
)

// Node is display-ready content. JSON nodes carry the pretty-printed document
// in Content; markdown nodes carry the source in Content and the rendered
// HTML in HTML.
type Node struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

// Renderer converts raw content strings into display nodes.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a Renderer. signer may be nil, in which case s3:// image links
// render as plain text.
func New(signer Signer) *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				parser.WithASTTransformers(
					util.Prioritized(&s3ImageTransformer{signer: signer}, 500),
				),
			),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Render interprets content through three stages: strict JSON parse,
// sanitized re-parse, then markdown. It never fails; content that survives no
// parse renders as markdown text.
func (r *Renderer) Render(content string) Node {
	if v, ok := tryParseJSON(content); ok {
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err == nil {
			return Node{Kind: KindJSON, Content: string(pretty)}
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return Node{Kind: KindMarkdown, Content: content}
	}
	return Node{Kind: KindMarkdown, Content: content, HTML: buf.String()}
}

// tryParseJSON parses content when it looks like a JSON document. A failed
// strict parse gets one more attempt after escape-sequence sanitization,
// covering model output with unescaped backslashes or control characters.
func tryParseJSON(content string) (any, bool) {
	trimmed := strings.TrimSpace(content)
	looksLikeJSON := (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
	if !looksLikeJSON {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, true
	}
	if err := json.Unmarshal([]byte(sanitizeJSON(trimmed)), &v); err == nil {
		return v, true
	}
	return nil, false
}

// sanitizeJSON repairs the common defects in embedded JSON strings: invalid
// escape sequences and raw control characters inside string values.
func sanitizeJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 < len(s) && strings.IndexByte(`"\/bfnrtu`, s[i+1]) >= 0 {
				b.WriteByte(c)
			} else {
				b.WriteString(`\\`)
			}
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\f':
			b.WriteString(`\f`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
