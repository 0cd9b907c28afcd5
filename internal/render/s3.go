package render

import (
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Signer produces an authenticated GET URL for an object.
type Signer interface {
	SignGet(bucket, key string) (string, error)
}

// S3Signer presigns S3 GET requests.
type S3Signer struct {
	api *s3.S3
	ttl time.Duration
}

// NewS3Signer creates a signer from an AWS session. ttl bounds how long the
// returned URLs stay valid.
func NewS3Signer(p client.ConfigProvider, ttl time.Duration) *S3Signer {
	return &S3Signer{api: s3.New(p), ttl: ttl}
}

// SignGet returns a presigned GET URL for s3://bucket/key.
func (s *S3Signer) SignGet(bucket, key string) (string, error) {
	req, _ := s.api.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return req.Presign(s.ttl)
}

var s3URLPattern = regexp.MustCompile(`^s3://([\w-]+)/(.+)$`)

// s3ImageTransformer rewrites paragraphs whose sole content is an s3:// URL
// into an inline image pointing at a presigned URL. Anything else, including
// sign failures, is left as the literal link text.
type s3ImageTransformer struct {
	signer Signer
}

func (t *s3ImageTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	if t.signer == nil {
		return
	}
	source := reader.Source()

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		p, ok := n.(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}

		target := paragraphTarget(p, source)
		if target == "" {
			return ast.WalkContinue, nil
		}

		m := s3URLPattern.FindStringSubmatch(strings.TrimSpace(target))
		if m == nil {
			return ast.WalkContinue, nil
		}
		signed, err := t.signer.SignGet(m[1], m[2])
		if err != nil {
			return ast.WalkContinue, nil
		}

		img := ast.NewImage(ast.NewLink())
		img.Destination = []byte(signed)
		img.AppendChild(img, ast.NewString([]byte(target)))
		p.RemoveChildren(p)
		p.AppendChild(p, img)
		return ast.WalkSkipChildren, nil
	})
}

// paragraphTarget returns the paragraph's content when it holds nothing but a
// single candidate URL: either one link node, or text segments with no other
// inline markup. The parser splits plain text into several Text nodes, so
// adjacent segments are joined before matching.
func paragraphTarget(p *ast.Paragraph, source []byte) string {
	if p.ChildCount() == 1 {
		switch c := p.FirstChild().(type) {
		case *ast.AutoLink:
			return string(c.URL(source))
		case *ast.Link:
			return string(c.Destination)
		}
	}
	var sb strings.Builder
	for c := p.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*ast.Text)
		if !ok {
			return ""
		}
		sb.Write(t.Segment.Value(source))
		if t.SoftLineBreak() || t.HardLineBreak() {
			return ""
		}
	}
	return sb.String()
}
