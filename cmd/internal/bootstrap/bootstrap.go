package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/pagemill/pagemill"
	"github.com/pagemill/pagemill/source"
)

// Options captures the flag surface shared by the pagemill CLIs.
type Options struct {
	BaseURL          string
	Token            string
	CollectionID     string
	RelationProperty string
	Mode             string
	OutputDir        string
	CacheStore       string
	CacheDir         string
	Force            bool
	HTML             bool
	HardWraps        bool
	Unsafe           bool
	LogLevel         string
	LogFormat        string
	LogProvider      string

	// Upstream overrides the HTTP client built from BaseURL/Token. Tests use
	// it to run the CLIs against a fake API.
	Upstream source.API
}

// BuildModule turns CLI options into a wired pagemill module.
func BuildModule(ctx context.Context, opts Options) (*pagemill.Module, error) {
	cfg := pagemill.DefaultConfig()
	cfg.Source.CollectionID = strings.TrimSpace(opts.CollectionID)
	cfg.Source.RelationProperty = strings.TrimSpace(opts.RelationProperty)

	if mode := strings.TrimSpace(opts.Mode); mode != "" {
		cfg.Hierarchy.Mode = mode
	}
	if out := strings.TrimSpace(opts.OutputDir); out != "" {
		cfg.Export.OutputDir = out
	}
	cfg.Export.Force = opts.Force
	cfg.Markdown.HTML = opts.HTML
	cfg.Markdown.HardWraps = opts.HardWraps
	cfg.Markdown.Unsafe = opts.Unsafe

	if store := strings.TrimSpace(opts.CacheStore); store != "" {
		cfg.Cache.Store = store
	}
	if dir := strings.TrimSpace(opts.CacheDir); dir != "" {
		cfg.Cache.Dir = dir
	}

	if provider := strings.TrimSpace(opts.LogProvider); provider != "" {
		cfg.Logging.Provider = provider
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if format := strings.TrimSpace(opts.LogFormat); format != "" {
		cfg.Logging.Format = format
	}

	upstream := opts.Upstream
	if upstream == nil {
		client, err := source.NewHTTPClient(source.HTTPClientConfig{
			BaseURL: opts.BaseURL,
			Token:   opts.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("build upstream client: %w", err)
		}
		upstream = client
	}

	module, err := pagemill.New(ctx, cfg, pagemill.WithUpstream(upstream))
	if err != nil {
		return nil, fmt.Errorf("initialise pagemill module: %w", err)
	}
	return module, nil
}
