package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/threat"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultMaxFileSize = 100 << 20

var (
	showDiagnostics bool
	maxFileSize     int64
	parallel        int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.csv> [file.csv...]",
	Short: "Summarize one or more CSV threat logs",
	Long: `Parse each file and print its threat summary.

Files are analyzed independently and reported in argument order. A file that
fails to load stops the command with an error.

Examples:
  threatctl analyze threats.csv
  threatctl analyze jan.csv feb.csv --format text --diagnostics`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&showDiagnostics, "diagnostics", false,
		"Include unknown severities, unknown attack types and invalid confidence rows")
	analyzeCmd.Flags().Int64Var(&maxFileSize, "max-size", defaultMaxFileSize,
		"Maximum file size in bytes")
	analyzeCmd.Flags().IntVar(&parallel, "parallel", 4,
		"Number of files parsed at once")
}

// fileReport is one analyzed file as printed by the analyze command.
type fileReport struct {
	Path        string                 `json:"path"`
	Size        int64                  `json:"size"`
	Summary     threat.Summary         `json:"summary"`
	Confidence  threat.ConfidenceStats `json:"confidence"`
	Diagnostics *threat.Diagnostics    `json:"diagnostics,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	svc, err := core.NewService(core.ServiceConfig{
		MaxFileSize:          maxFileSize,
		MaxConcurrentUploads: parallel,
	}, nil, nil)
	if err != nil {
		return err
	}

	reports := make([]fileReport, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, path := range args {
		g.Go(func() error {
			r, err := analyzeFile(ctx, svc, path)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !showDiagnostics {
		for i := range reports {
			reports[i].Diagnostics = nil
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "text" {
		return writeReportsText(out, reports, svc.Catalog())
	}
	return writeJSON(out, reports)
}

// analyzeFile loads path into its own session and aggregates it.
func analyzeFile(ctx context.Context, svc *core.Service, path string) (fileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileReport{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fileReport{}, fmt.Errorf("stat %s: %w", path, err)
	}

	sid := svc.EnsureSession("")
	if _, err := svc.LoadFile(ctx, sid, filepath.Base(path), f); err != nil {
		if core.IsUserFacing(err) {
			return fileReport{}, fmt.Errorf("%s: %s: %w", path, core.FormatUserError(err), err)
		}
		return fileReport{}, fmt.Errorf("%s: %w", path, err)
	}
	res, err := svc.Analyze(ctx, sid)
	if err != nil {
		return fileReport{}, fmt.Errorf("%s: %w", path, err)
	}

	diag := res.Diagnostics
	return fileReport{
		Path:        path,
		Size:        info.Size(),
		Summary:     res.Summary,
		Confidence:  res.Confidence,
		Diagnostics: &diag,
	}, nil
}

func writeReportsText(w io.Writer, reports []fileReport, catalog *threat.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s (%s)\n", r.Path, humanize.Bytes(uint64(r.Size)))
		fmt.Fprintf(tw, "Total threats:\t%s\n", humanize.Comma(int64(r.Summary.TotalThreats)))
		fmt.Fprintf(tw, "Successful attacks:\t%s\n", humanize.Comma(int64(r.Summary.SuccessfulAttacks())))
		if r.Confidence.Count > 0 {
			fmt.Fprintf(tw, "Confidence:\tmean %.2f, min %.2f, max %.2f over %d rows\n",
				r.Confidence.Mean, r.Confidence.Min, r.Confidence.Max, r.Confidence.Count)
		}

		fmt.Fprintln(tw, "\nSeverity\tCount")
		for _, sc := range r.Summary.SortedSeverities() {
			fmt.Fprintf(tw, "%s\t%d\n", sc.Severity, sc.Count)
		}

		fmt.Fprintln(tw, "\nAttack type\tCount\tSuccessful")
		for _, at := range threat.KnownAttackTypes {
			c := r.Summary.AttackTypes[at]
			title := string(at)
			if e, ok := catalog.Lookup(at); ok {
				title = e.Title
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\n", title, c.Count, c.Successful)
		}

		if r.Diagnostics != nil && !r.Diagnostics.Empty() {
			writeDiagnosticsText(tw, *r.Diagnostics)
		}
	}
	return tw.Flush()
}

func writeDiagnosticsText(w io.Writer, d threat.Diagnostics) {
	fmt.Fprintln(w, "\nDiagnostics")
	for v, n := range sortedCounts(d.UnknownSeverities) {
		fmt.Fprintf(w, "unknown severity %q:\t%d rows\n", v, n)
	}
	for v, n := range sortedCounts(d.UnknownAttackTypes) {
		fmt.Fprintf(w, "unknown attack type %q:\t%d rows\n", v, n)
	}
	if len(d.InvalidConfidence) > 0 {
		fmt.Fprintf(w, "invalid confidence:\trows %v\n", d.InvalidConfidence)
	}
}

// sortedCounts yields m in key order.
func sortedCounts(m map[string]int) iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
