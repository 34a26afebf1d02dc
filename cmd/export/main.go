package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pagemill/pagemill"
	"github.com/pagemill/pagemill/cmd/internal/bootstrap"
	"github.com/pagemill/pagemill/internal/commands"
	exportcmd "github.com/pagemill/pagemill/internal/commands/export"
	"github.com/pagemill/pagemill/internal/exporter"
)

var moduleBuilder = bootstrap.BuildModule

func main() {
	if err := runExport(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("pagemill export: %v", err)
	}
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pagemill-export", flag.ExitOnError)
	baseURL := fs.String("base-url", "", "Content API endpoint, e.g. https://content.example.com/v1")
	token := fs.String("token", os.Getenv("PAGEMILL_TOKEN"), "Bearer token for the content API (defaults to PAGEMILL_TOKEN)")
	collection := fs.String("collection", "", "Collection ID to export")
	outputDir := fs.String("output", "content", "Directory generated files are written to")
	mode := fs.String("mode", pagemill.ModeFlat, "Hierarchy mode: flat, relation, subpages, combined")
	relationProp := fs.String("relation-property", "", "Property holding parent references (relation and combined modes)")
	cacheStore := fs.String("cache-store", "", "Cache store: memory, sqlite, badger (defaults to sqlite)")
	cacheDir := fs.String("cache-dir", "", "Directory for the durable cache (defaults to the user cache dir)")
	force := fs.Bool("force", false, "Rewrite files even when their content is unchanged")
	html := fs.Bool("html", false, "Also render each document to HTML")
	hardWraps := fs.Bool("hard-wraps", false, "Treat single newlines as line breaks in HTML output")
	unsafeHTML := fs.Bool("unsafe", false, "Pass raw HTML through in HTML output")
	logLevel := fs.String("log-level", "info", "Minimum log level")
	logProvider := fs.String("log-provider", "console", "Logging provider: console, gologger, noop")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()

	module, err := moduleBuilder(ctx, bootstrap.Options{
		BaseURL:          *baseURL,
		Token:            *token,
		CollectionID:     *collection,
		RelationProperty: *relationProp,
		Mode:             *mode,
		OutputDir:        *outputDir,
		CacheStore:       *cacheStore,
		CacheDir:         *cacheDir,
		Force:            *force,
		HTML:             *html,
		HardWraps:        *hardWraps,
		Unsafe:           *unsafeHTML,
		LogLevel:         *logLevel,
		LogProvider:      *logProvider,
	})
	if err != nil {
		return err
	}
	defer module.Close()

	var report *exporter.Report
	logger := commands.CommandLogger(module.LoggerProvider(), "export")
	handler := exportcmd.NewRunExportHandler(module.Exporter(), logger, func(r *exporter.Report) { report = r })

	err = handler.Execute(ctx, exportcmd.RunExportCommand{
		CollectionID:     *collection,
		OutputDir:        *outputDir,
		Mode:             *mode,
		RelationProperty: *relationProp,
		Force:            *force,
		HTML:             *html,
		HardWraps:        *hardWraps,
		Unsafe:           *unsafeHTML,
	})
	if err != nil {
		return fmt.Errorf("execute export command: %w", err)
	}

	printReport(out, report)
	return nil
}

func printReport(out io.Writer, report *exporter.Report) {
	if report == nil {
		return
	}
	fmt.Fprintf(out, "exported %d, skipped %d, failed %d\n", report.Exported, report.Skipped, report.Failed)
	for _, failure := range report.Failures {
		fmt.Fprintf(out, "failed %s: %v\n", failure.PageID, failure.Err)
	}
	for _, diag := range report.Diagnostics {
		fmt.Fprintf(out, "note [%s] %s: %s\n", diag.Kind, diag.NodeID, diag.Message)
	}
}
