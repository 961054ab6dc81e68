// Command indexer builds, inspects and queries indices from the command
// line.
//
//	indexer [-config file] build  -index ID -source jsonl|dir|postgres [-path P] [-ext .txt] [-sql QUERY]
//	indexer [-config file] update -index ID -source ... [-remove id,id]
//	indexer [-config file] delete -index ID
//	indexer [-config file] list
//	indexer [-config file] docs   -index ID
//	indexer [-config file] query  -index ID -q TEXT [-limit N]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/selfindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/selfindex/pkg/postgres"
)

var errUsage = errors.New("usage: indexer [-config file] build|update|delete|list|docs|query [flags]")

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "indexer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, errUsage)
			os.Exit(2)
		}
		slog.Error("indexer command failed", "error", err)
		os.Exit(1)
	}
}

// cli bundles what every subcommand needs.
type cli struct {
	cfg       *config.Config
	engine    *indexer.Engine
	publisher *events.Publisher
	out       io.Writer
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled && (args[0] == "build" || args[0] == "update") {
		m = metrics.New(nil)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}
	engine, err := indexer.NewEngine(cfg.Index, m)
	if err != nil {
		return err
	}
	defer engine.Close()

	c := &cli{cfg: cfg, engine: engine, out: out}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer producer.Close()
		c.publisher = events.NewPublisher(producer)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "build":
		return c.build(ctx, rest)
	case "update":
		return c.update(ctx, rest)
	case "delete":
		return c.delete(ctx, rest)
	case "list":
		return c.list()
	case "docs":
		return c.docs(rest)
	case "query":
		return c.query(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

// sourceFlags registers the document source flags shared by build and
// update.
type sourceFlags struct {
	index  *string
	source *string
	path   *string
	ext    *string
	sql    *string
}

func newSourceFlags(fs *flag.FlagSet) sourceFlags {
	return sourceFlags{
		index:  fs.String("index", "", "index id (defaults to index.defaultIndex)"),
		source: fs.String("source", "jsonl", "document source: jsonl, dir or postgres"),
		path:   fs.String("path", "", "JSONL file or directory to read"),
		ext:    fs.String("ext", ".txt", "file extension for -source dir (empty for all files)"),
		sql:    fs.String("sql", "", "query returning (id, text) rows for -source postgres"),
	}
}

func (c *cli) indexID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return c.cfg.Index.DefaultIndex
}

func (c *cli) load(ctx context.Context, sf sourceFlags) ([]corpus.Document, error) {
	var (
		docs []corpus.Document
		err  error
	)
	switch *sf.source {
	case "jsonl":
		if *sf.path == "" {
			return nil, fmt.Errorf("-path is required for -source jsonl")
		}
		docs, err = corpus.LoadJSONL(*sf.path)
	case "dir":
		if *sf.path == "" {
			return nil, fmt.Errorf("-path is required for -source dir")
		}
		docs, err = corpus.LoadDir(*sf.path, *sf.ext)
	case "postgres":
		client, cerr := postgres.New(ctx, c.cfg.Postgres, 5*time.Second)
		if cerr != nil {
			return nil, cerr
		}
		defer client.Close()
		docs, err = corpus.NewPostgresSource(client, *sf.sql).Load(ctx)
	default:
		return nil, fmt.Errorf("unknown source %q", *sf.source)
	}
	if err != nil {
		return nil, err
	}
	if err := corpus.Validate(docs); err != nil {
		return nil, err
	}
	slog.Info("corpus loaded", "source", *sf.source, "documents", len(docs))
	return docs, nil
}

func (c *cli) build(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	sf := newSourceFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := c.load(ctx, sf)
	if err != nil {
		return err
	}
	id := c.indexID(*sf.index)
	stats, err := c.engine.Build(ctx, id, docs)
	if err != nil {
		return err
	}
	c.announceBuilt(ctx, id)
	return c.print(map[string]any{
		"index":         id,
		"documents":     stats.Documents,
		"terms":         stats.Terms,
		"postings":      stats.Postings,
		"postings_size": stats.PostingsSize,
		"duration":      stats.Duration.String(),
	})
}

func (c *cli) update(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	sf := newSourceFlags(fs)
	remove := fs.String("remove", "", "comma-separated document ids to remove")
	if err := fs.Parse(args); err != nil {
		return err
	}
	docs, err := c.load(ctx, sf)
	if err != nil {
		return err
	}
	var removed []string
	if *remove != "" {
		removed = strings.Split(*remove, ",")
	}
	id := c.indexID(*sf.index)
	stats, err := c.engine.Update(ctx, id, removed, docs)
	if err != nil {
		return err
	}
	c.announceBuilt(ctx, id)
	return c.print(map[string]any{
		"index":     id,
		"documents": stats.Documents,
		"terms":     stats.Terms,
		"duration":  stats.Duration.String(),
	})
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	idx := fs.String("index", "", "index id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := c.indexID(*idx)
	if err := c.engine.Delete(id); err != nil {
		return err
	}
	if c.publisher != nil {
		if err := c.publisher.Deleted(ctx, id); err != nil {
			slog.Warn("publishing delete event failed", "index", id, "error", err)
		}
	}
	return c.print(map[string]string{"deleted": id})
}

func (c *cli) list() error {
	infos, err := c.engine.ListIndices()
	if err != nil {
		return err
	}
	return c.print(infos)
}

func (c *cli) docs(args []string) error {
	fs := flag.NewFlagSet("docs", flag.ContinueOnError)
	idx := fs.String("index", "", "index id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := c.engine.ListDocuments(c.indexID(*idx))
	if err != nil {
		return err
	}
	return c.print(ids)
}

func (c *cli) query(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	idx := fs.String("index", "", "index id")
	q := fs.String("q", "", "query text")
	limit := fs.Int("limit", c.cfg.Search.DefaultLimit, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.engine.Load(c.indexID(*idx)); err != nil {
		return err
	}
	res, err := c.engine.Query(ctx, *q, min(*limit, c.cfg.Search.MaxResults))
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *cli) announceBuilt(ctx context.Context, id string) {
	if c.publisher == nil {
		return
	}
	meta, err := c.engine.Meta(id)
	if err != nil {
		slog.Warn("reading metadata for build event", "index", id, "error", err)
		return
	}
	if err := c.publisher.Built(ctx, id, meta); err != nil {
		slog.Warn("publishing build event failed", "index", id, "error", err)
	}
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
