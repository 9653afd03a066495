// Package cli wires the Store Adapter, Catalog Operations, and Import
// Batch Engine together behind a flag-based subcommand dispatcher —
// the CLI composition root.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jetsonsystems/mediamanager/pkg/batch"
	"github.com/jetsonsystems/mediamanager/pkg/catalog"
	"github.com/jetsonsystems/mediamanager/pkg/common"
	"github.com/jetsonsystems/mediamanager/pkg/config"
	clog "github.com/jetsonsystems/mediamanager/pkg/log"
	"github.com/jetsonsystems/mediamanager/pkg/mime"
	"github.com/jetsonsystems/mediamanager/pkg/probe"
	"github.com/jetsonsystems/mediamanager/pkg/progress"
	"github.com/jetsonsystems/mediamanager/pkg/scanner"
	"github.com/jetsonsystems/mediamanager/pkg/store"
)

// Execute parses os.Args and runs the requested subcommand.
func Execute() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: mmcat <%s> [flags]", strings.Join([]string{
			importCmd, showCmd, findTagsCmd, trashCmd, restoreCmd, deleteCmd, emptyTrashCmd, tagsCmd,
		}, "|"))
	}

	var configPath string
	globalFlags := flag.NewFlagSet("mmcat", flag.ContinueOnError)
	globalFlags.StringVar(&configPath, "config", "mmcat.yaml", "path to service configuration file")

	subCommand := os.Args[1]
	rest := os.Args[2:]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := clog.New(cfg.LogLevel)

	adapter := store.New(cfg.Store.BaseURL, cfg.Store.Database, cfg.Store.Username, cfg.Store.Password)
	cat := catalog.New(adapter)

	ctx := context.Background()

	switch subCommand {
	case importCmd:
		return runImport(ctx, log, cfg, adapter, cat, rest)
	case showCmd:
		return runShow(ctx, cat, rest)
	case findTagsCmd:
		return runFindByTags(ctx, cat, rest)
	case trashCmd:
		return runTrash(ctx, cat, rest)
	case restoreCmd:
		return runRestore(ctx, cat, rest)
	case deleteCmd:
		return runDelete(ctx, cat, rest)
	case emptyTrashCmd:
		return runEmptyTrash(ctx, cat)
	case tagsCmd:
		return runTags(ctx, cat, rest)
	default:
		return fmt.Errorf("unknown subcommand %q", subCommand)
	}
}

func runImport(ctx context.Context, log clog.PluggableLoggerInterface, cfg *config.Config, adapter store.Adapter, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet(importCmd, flag.ExitOnError)
	recursionDepth := fs.Int("recursion-depth", 0, "0 = full recursion, 1 = single level")
	numJobs := fs.Int("jobs", cfg.Import.NumJobs, "concurrent probe/resize workers")
	checksums := fs.Bool("checksums", false, "generate content checksums")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mmcat import [flags] <directory>")
	}
	root := fs.Arg(0)

	opts := common.NewImportOptions()
	opts.RecursionDepth = *recursionDepth
	opts.NumJobs = *numJobs
	opts.GenerateChecksums = *checksums
	opts.DesiredVariants = cfg.Import.DesiredVariants
	if cfg.Import.ToProcessBatchSize > 0 {
		opts.ToProcessBatchSize = cfg.Import.ToProcessBatchSize
	}
	opts.ApplyDefaults()

	var allow []common.MimeTag
	for _, s := range cfg.Import.AllowedMimeTypes {
		if top, sub, ok := strings.Cut(s, "/"); ok {
			allow = append(allow, common.MimeTag{Top: top, Sub: sub})
		}
	}
	classifier := mime.New(allow)
	sc := scanner.New(classifier, common.DefaultScannerConcurrency)
	probeAdapter := probe.New(cfg.Probe.Binary)

	if err := os.MkdirAll(cfg.Probe.WorkDir, 0o755); err != nil {
		return common.Wrap(common.KindUnknown, err, "create probe work dir")
	}
	if err := os.MkdirAll(defaultLogsDir, 0o755); err != nil {
		return common.Wrap(common.KindUnknown, err, "create logs dir")
	}

	engine := batch.New(sc, probeAdapter, adapter, log, cfg.Probe.WorkDir, defaultLogsDir)

	start := time.Now()
	b, events, err := engine.CreateFromFS(ctx, root, opts)
	if err != nil {
		return err
	}

	renderer := progress.NewRenderer(os.Stdout)
	final := renderer.Track(b.NumToImport, events)
	progress.Summarize(os.Stdout, final)
	log.Info("import time: %v", time.Since(start))
	return nil
}
