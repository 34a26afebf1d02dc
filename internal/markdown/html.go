package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmrenderer "github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

// HTMLOptions configures the goldmark engine used for optional HTML output.
type HTMLOptions struct {
	// HardWraps renders single newlines as <br>.
	HardWraps bool
	// Unsafe passes raw HTML through. Exported toggle blocks rely on it.
	Unsafe bool
}

// RenderHTML converts markdown to HTML with GFM defaults. The engine is
// rebuilt per call; rendering is not on any hot path.
func RenderHTML(markdown []byte, opts HTMLOptions) ([]byte, error) {
	engine := newEngine(opts)
	var buf bytes.Buffer
	if err := engine.Convert(markdown, &buf); err != nil {
		return nil, fmt.Errorf("markdown: render html: %w", err)
	}
	return buf.Bytes(), nil
}

func newEngine(opts HTMLOptions) goldmark.Markdown {
	rendererOptions := []gmrenderer.Option{}
	if opts.HardWraps {
		rendererOptions = append(rendererOptions, html.WithHardWraps())
	}
	if opts.Unsafe {
		rendererOptions = append(rendererOptions, html.WithUnsafe())
	}

	engineOptions := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	}
	if len(rendererOptions) > 0 {
		engineOptions = append(engineOptions, goldmark.WithRendererOptions(rendererOptions...))
	}
	return goldmark.New(engineOptions...)
}
