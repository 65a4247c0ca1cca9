package envelope

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/stackdump/cim/pkg/cimerr"
)

// Document wraps one of the four document formats named in base §4.C.
type Document struct {
	Kind     ContentType // TypePDF, TypeDOCX, TypeMarkdown, or TypeText
	Payload  []byte
	Metadata DocumentMetadata
}

// DocumentMetadata carries title/author fields that survive into the
// canonical payload; transient fields (e.g. local modification time)
// are deliberately excluded.
type DocumentMetadata struct {
	Title    string
	Author   string
	Language string
}

var _ Envelope = Document{}

func (d Document) ContentType() ContentType { return d.Kind }

func (d Document) CodecCode() uint64 {
	switch d.Kind {
	case TypePDF:
		return 0x600001
	case TypeDOCX:
		return 0x600002
	case TypeMarkdown:
		return 0x600003
	case TypeText:
		return 0x600004
	default:
		return 0
	}
}

// CanonicalBytes verifies the magic bytes where the format requires
// them and returns the raw payload: documents have no derived fields
// to exclude from the hashed form, so the canonical bytes are the
// content itself.
func (d Document) CanonicalBytes() ([]byte, error) {
	if err := VerifyMagic(d.Payload, d.Kind); err != nil {
		return nil, err
	}
	return d.Payload, nil
}

// NewDocument detects the document's kind from its bytes/name hint,
// verifies magic bytes where applicable, and wraps it.
func NewDocument(data []byte, nameHint string) (Document, error) {
	kind := Detect(data, nameHint)
	switch kind {
	case TypePDF, TypeDOCX, TypeMarkdown, TypeText:
	default:
		return Document{}, &cimerr.InvalidContentError{Detail: "not a recognized document format"}
	}
	if err := VerifyMagic(data, kind); err != nil {
		return Document{}, err
	}
	d := Document{Kind: kind, Payload: data}
	if kind == TypeMarkdown {
		if fm, _, err := ExtractFrontmatter(data); err == nil {
			d.Metadata = DocumentMetadata{Title: fm.Title, Author: fm.Author, Language: fm.Lang}
		}
	}
	return d, nil
}

// Frontmatter is the YAML header of a Markdown document, adapted from
// the teacher's blog-post frontmatter shape down to the fields a
// content envelope cares about.
type Frontmatter struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	Lang   string `yaml:"lang"`
	Tags   []string `yaml:"tags"`
}

var frontmatterRegex = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)

// ExtractFrontmatter splits a Markdown document into its YAML
// frontmatter and body. A document with no frontmatter block returns
// a zero-value Frontmatter and the full input as body, not an error.
func ExtractFrontmatter(data []byte) (Frontmatter, []byte, error) {
	matches := frontmatterRegex.FindSubmatch(data)
	if matches == nil {
		return Frontmatter{}, data, nil
	}
	var fm Frontmatter
	if err := yaml.Unmarshal(matches[1], &fm); err != nil {
		return Frontmatter{}, nil, fmt.Errorf("envelope: parse frontmatter: %w", err)
	}
	return fm, matches[2], nil
}

// RenderMarkdown renders a Markdown document body to HTML using the
// same extension set the teacher's blog renderer configures. Callers
// that need to sanitize the output for untrusted display should run it
// through an HTML policy themselves; this function only renders.
func RenderMarkdown(body []byte) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Table, extension.Strikethrough))
	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("envelope: render markdown: %w", err)
	}
	return buf.Bytes(), nil
}
