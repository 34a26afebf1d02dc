package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pagemill/pagemill/cmd/internal/bootstrap"
	"github.com/pagemill/pagemill/internal/commands"
	exportcmd "github.com/pagemill/pagemill/internal/commands/export"
)

var moduleBuilder = bootstrap.BuildModule

func main() {
	if err := runPurge(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("pagemill purge: %v", err)
	}
}

func runPurge(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pagemill-purge", flag.ExitOnError)
	baseURL := fs.String("base-url", "", "Content API endpoint, e.g. https://content.example.com/v1")
	token := fs.String("token", os.Getenv("PAGEMILL_TOKEN"), "Bearer token for the content API (defaults to PAGEMILL_TOKEN)")
	collection := fs.String("collection", "", "Collection the cache was populated for")
	cacheStore := fs.String("cache-store", "", "Cache store: memory, sqlite, badger (defaults to sqlite)")
	cacheDir := fs.String("cache-dir", "", "Directory holding the durable cache")
	nodeID := fs.String("node", "", "Purge only this node's subtree instead of the whole cache")
	logLevel := fs.String("log-level", "info", "Minimum log level")
	logProvider := fs.String("log-provider", "console", "Logging provider: console, gologger, noop")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()

	module, err := moduleBuilder(ctx, bootstrap.Options{
		BaseURL:      *baseURL,
		Token:        *token,
		CollectionID: *collection,
		CacheStore:   *cacheStore,
		CacheDir:     *cacheDir,
		LogLevel:     *logLevel,
		LogProvider:  *logProvider,
	})
	if err != nil {
		return err
	}
	defer module.Close()

	logger := commands.CommandLogger(module.LoggerProvider(), "cache")
	if *nodeID != "" {
		handler := exportcmd.NewPurgeSubtreeHandler(module.Exporter(), logger)
		if err := handler.Execute(ctx, exportcmd.PurgeSubtreeCommand{NodeID: *nodeID}); err != nil {
			return fmt.Errorf("execute purge subtree command: %w", err)
		}
		fmt.Fprintf(out, "purged cached subtree of %s\n", *nodeID)
		return nil
	}

	handler := exportcmd.NewPurgeCacheHandler(module.Exporter(), logger)
	if err := handler.Execute(ctx, exportcmd.PurgeCacheCommand{}); err != nil {
		return fmt.Errorf("execute purge command: %w", err)
	}
	fmt.Fprintln(out, "purged fetch cache")
	return nil
}
