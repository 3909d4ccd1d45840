package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/olehluchkiv/classweave/internal/advice"
	"github.com/olehluchkiv/classweave/internal/archive"
	"github.com/olehluchkiv/classweave/internal/mixin"
	"github.com/olehluchkiv/classweave/internal/resolver"
	"github.com/olehluchkiv/classweave/internal/rules"
	"github.com/olehluchkiv/classweave/internal/scanner"
	"github.com/olehluchkiv/classweave/internal/weaving"
)

type scanOptions struct {
	Path        string
	Rules       []string
	Plugin      string
	Workers     int
	UnusedLimit int
	All         bool
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:   "scan <path-or-url>",
	Short: "Decide which classes in a directory, jar or class file need weaving",
	Long: `Scan every class under <path-or-url> and report, per class, the advice whose
pointcuts match its methods and the mixins that target it or one of its
supertypes. Rules that matched nothing are listed at the end.

<path-or-url> and --plugin may name an http(s) URL to a jar; downloads are
cached. Mixin implementations are loaded from --plugin when given, otherwise
from the scanned classes themselves.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := scanOpts
		opts.Path = args[0]
		report, err := runScan(cmd.Context(), opts, logger)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), report, opts.All)
	},
}

func init() {
	scanCmd.Flags().StringSliceVar(&scanOpts.Rules, "rules", nil, "rule file (repeatable)")
	scanCmd.Flags().StringVar(&scanOpts.Plugin, "plugin", "", "directory or jar holding mixin implementations")
	scanCmd.Flags().IntVar(&scanOpts.Workers, "workers", runtime.GOMAXPROCS(0), "classes scanned concurrently")
	scanCmd.Flags().IntVar(&scanOpts.UnusedLimit, "unused-limit", 100, "maximum unused rules listed (0 for all)")
	scanCmd.Flags().BoolVar(&scanOpts.All, "all", false, "list classes that need no weaving too")
	rootCmd.AddCommand(scanCmd)
}

type scanReport struct {
	// Decisions are in source order.
	Decisions []weaving.Decision
	Unused    []*advice.Definition
	// Failed counts classes that could not be read or parsed.
	Failed int
}

// classEntry holds the single scan of one class; the raw bytes are dropped
// once it is read.
type classEntry struct {
	res scanner.Result
	ok  bool
}

func runScan(ctx context.Context, opts scanOptions, logger *slog.Logger) (*scanReport, error) {
	logger = logger.With("component", "scan", "path", opts.Path)

	loaded, err := loadRules(opts.Rules)
	if err != nil {
		return nil, err
	}

	path, err := resolver.Resolve(ctx, opts.Path, logger)
	if err != nil {
		return nil, err
	}
	src, err := archive.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	mixinLoader := src.Loader
	if opts.Plugin != "" {
		pluginPath, err := resolver.Resolve(ctx, opts.Plugin, logger)
		if err != nil {
			return nil, fmt.Errorf("resolving plugin: %w", err)
		}
		plugin, err := archive.Open(ctx, pluginPath)
		if err != nil {
			return nil, fmt.Errorf("opening plugin: %w", err)
		}
		defer plugin.Close()
		mixinLoader = plugin.Loader
	}
	var mixins []*mixin.Definition
	for _, decl := range loaded.Mixins {
		m, err := mixin.Create(ctx, decl, mixinLoader, logger)
		if err != nil {
			return nil, err
		}
		mixins = append(mixins, m)
	}

	entries, err := readClasses(ctx, src, opts.Workers, logger)
	if err != nil {
		return nil, err
	}
	supertypes := make(map[string][]string, len(entries))
	for _, e := range entries {
		if e.ok {
			supertypes[e.res.Summary.Name] = e.res.Summary.Supertypes()
		}
	}
	hierarchy := scanner.HierarchyFunc(func(name string) []string {
		return supertypes[name]
	})

	decider := &weaving.Decider{
		Advice: advice.NewRegistry(logger, hierarchy, loaded.Advice...),
		Mixins: mixin.NewRegistry(hierarchy, mixins...),
		Logger: logger,
	}

	decisions := make([]*weaving.Decision, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for i, e := range entries {
		if !e.ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dec := decider.DecideScanned(e.res)
			decisions[i] = &dec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &scanReport{Unused: decider.Advice.Unused(opts.UnusedLimit)}
	for i, d := range decisions {
		if d == nil {
			if !entries[i].ok {
				report.Failed++
			}
			continue
		}
		report.Decisions = append(report.Decisions, *d)
	}
	logger.Info("scan complete",
		"classes", len(report.Decisions),
		"failed", report.Failed,
		"unused_rules", len(report.Unused))
	return report, nil
}

// readClasses loads and scans every class in src. A class that cannot be
// parsed is logged and skipped; only context cancellation aborts the read.
func readClasses(ctx context.Context, src *archive.Source, workers int, logger *slog.Logger) ([]classEntry, error) {
	entries := make([]classEntry, len(src.Classes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, name := range src.Classes {
		g.Go(func() error {
			raw, err := src.Loader.Resource(gctx, name)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("skipping unreadable class", "class", name, "error", err)
				return nil
			}
			res, err := scanner.Scan(raw)
			if err != nil {
				logger.Warn("skipping malformed class", "class", name, "error", err)
				return nil
			}
			entries[i] = classEntry{res: res, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func loadRules(paths []string) (*rules.Rules, error) {
	merged := &rules.Rules{}
	for _, p := range paths {
		r, err := rules.LoadFile(p)
		if err != nil {
			return nil, err
		}
		merged.Advice = append(merged.Advice, r.Advice...)
		merged.Mixins = append(merged.Mixins, r.Mixins...)
	}
	return merged, nil
}

// writeReport renders r into a buffer and writes it to w in one call.
func writeReport(w io.Writer, r *scanReport, all bool) error {
	var b bytes.Buffer
	woven := 0
	for _, d := range r.Decisions {
		if d.NeedsWeaving {
			woven++
		}
		if !d.NeedsWeaving && !all {
			continue
		}
		fmt.Fprintf(&b, "%s (class version %d)\n", d.ClassName, d.MajorVersion)
		if d.PointcutAnnotated {
			b.WriteString("  advice class, not woven\n")
			continue
		}
		for _, m := range d.Advice {
			fmt.Fprintf(&b, "  advice %s [%s]\n", m.Advice.AdviceType(), m.Advice.MetricName())
			for _, ms := range m.NonBridge {
				fmt.Fprintf(&b, "    %s%s\n", ms.Name, ms.Desc)
			}
			for _, ms := range m.Bridge {
				fmt.Fprintf(&b, "    %s%s (bridge)\n", ms.Name, ms.Desc)
			}
		}
		for _, m := range d.Mixins {
			fmt.Fprintf(&b, "  mixin %s\n", m.Implementation())
		}
	}
	fmt.Fprintf(&b, "\n%d of %d classes need weaving", woven, len(r.Decisions))
	if r.Failed > 0 {
		fmt.Fprintf(&b, ", %d skipped", r.Failed)
	}
	b.WriteByte('\n')
	if len(r.Unused) > 0 {
		fmt.Fprintf(&b, "unused rules (%d):\n", len(r.Unused))
		for _, d := range r.Unused {
			fmt.Fprintf(&b, "  %s [%s]\n", d.AdviceType(), d.MetricName())
		}
	}
	_, err := w.Write(b.Bytes())
	return err
}
