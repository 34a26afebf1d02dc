package markdown

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/pagemill/pagemill/pages"
)

// FrontMatter carries the page facts written at the top of every exported
// document. SourceID and Checksum let a later run recognize unchanged output
// without consulting the upstream API.
type FrontMatter struct {
	Title    string         `yaml:"title"`
	Slug     string         `yaml:"slug"`
	Date     *time.Time     `yaml:"date,omitempty"`
	Tags     []string       `yaml:"tags,omitempty"`
	Status   string         `yaml:"status,omitempty"`
	SourceID string         `yaml:"source_id"`
	Checksum string         `yaml:"checksum,omitempty"`
	Custom   map[string]any `yaml:",inline"`
}

// ForPage derives the frontmatter of a rendered page body.
func ForPage(page *pages.Page, body []byte) FrontMatter {
	fm := FrontMatter{
		Title:    page.Title,
		Slug:     page.Slug,
		Tags:     page.Tags,
		Status:   string(page.Status),
		SourceID: page.ID,
		Checksum: Checksum(body),
	}
	if !page.Date.IsZero() {
		date := page.Date
		fm.Date = &date
	}
	return fm
}

// Compose assembles a full document: YAML frontmatter between delimiters,
// then the body.
func Compose(fm FrontMatter, body []byte) ([]byte, error) {
	encoded, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("markdown: encode frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(encoded)
	buf.WriteString("---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// Parse splits an existing document into frontmatter and body. Documents
// without frontmatter return a zero FrontMatter and the full source as body.
func Parse(src []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter
	body, err := frontmatter.Parse(bytes.NewReader(src), &fm)
	if err != nil {
		return FrontMatter{}, nil, fmt.Errorf("markdown: parse frontmatter: %w", err)
	}
	return fm, bytes.TrimLeft(body, "\r\n"), nil
}

// Checksum fingerprints a rendered body for change detection.
func Checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
