// Command tablesift loads a table, optionally searches, sorts and tags
// duplicates, and prints the result or exports it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/JonMunkholm/tablesift/internal/config"
	"github.com/JonMunkholm/tablesift/internal/core"
	"github.com/JonMunkholm/tablesift/internal/export"
	"github.com/JonMunkholm/tablesift/internal/ingest"
	"github.com/JonMunkholm/tablesift/internal/logging"
	"github.com/JonMunkholm/tablesift/internal/query"
	"github.com/JonMunkholm/tablesift/internal/render"
)

type options struct {
	sheet       string
	term1       string
	term2       string
	logic       string
	matchCase   bool
	entireField bool
	dup         string
	sortBy      string
	desc        bool
	columns     string
	offset      int
	limit       int
	format      string
	output      string
	allRows     bool
	pgTable     string
	stats       bool
	progress    bool
	dumpConfig  bool
	envHelp     bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", core.FormatUserError(err))
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	var o options
	fs := flag.NewFlagSet("tablesift", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.sheet, "sheet", "", "Workbook sheet to load (default: first sheet)")
	fs.StringVar(&o.term1, "t1", "", "First search term")
	fs.StringVar(&o.term2, "t2", "", "Second search term")
	fs.StringVar(&o.logic, "logic", "AND", "How to combine terms: AND, OR, NOT")
	fs.BoolVar(&o.matchCase, "case", false, "Match case")
	fs.BoolVar(&o.entireField, "entire", false, "Terms must match the entire cell")
	fs.StringVar(&o.dup, "dup", "", "Comma-separated columns to check for duplicates")
	fs.StringVar(&o.sortBy, "sort", "", "Column to sort by")
	fs.BoolVar(&o.desc, "desc", false, "Sort descending")
	fs.StringVar(&o.columns, "columns", "", "Comma-separated columns to export (default: all)")
	fs.IntVar(&o.offset, "offset", 0, "First row to print")
	fs.IntVar(&o.limit, "limit", 20, "Rows to print (0 = page size)")
	fs.StringVar(&o.format, "f", "table", "Output format: table, csv, json, xlsx, postgres")
	fs.StringVar(&o.output, "o", "", "Write the export to this file instead of stdout")
	fs.BoolVar(&o.allRows, "all", false, "Export every row instead of the current view")
	fs.StringVar(&o.pgTable, "pg-table", "", "Target table for -f postgres (requires EXPORT_DATABASE_URL)")
	fs.BoolVar(&o.stats, "stats", false, "Print statistics after the rows")
	fs.BoolVar(&o.progress, "progress", false, "Report load progress on stderr")
	fs.BoolVar(&o.dumpConfig, "dump-config", false, "Print the effective configuration as YAML and exit")
	fs.BoolVar(&o.envHelp, "env-help", false, "Describe the configuration environment variables and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tablesift [options] <file>\n\n")
		fmt.Fprintf(stderr, "Loads a CSV, TSV, TXT, Excel or Parquet file and prints or exports it.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  tablesift -t1 alice people.csv\n")
		fmt.Fprintf(stderr, "  tablesift -t1 smith -t2 2023 -logic OR -dup email -stats crm.xlsx\n")
		fmt.Fprintf(stderr, "  tablesift -t1 x -f csv -columns id,name -o out.csv data.parquet\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &o, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if o.envHelp {
		return config.Usage(stdout)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.dumpConfig {
		return cfg.WriteYAML(stdout)
	}

	if len(rest) != 1 {
		return fmt.Errorf("expected exactly one file argument, got %d", len(rest))
	}

	logger := logging.New(stderr, cfg.Logging.Level, cfg.Logging.Format)

	var sink *export.Postgres
	if o.format == string(export.FormatPostgres) && cfg.Export.ExportEnabled() {
		sink, err = export.NewPostgres(ctx, cfg.Export.DatabaseURL, cfg.Export.Schema)
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	session := core.NewSession(core.Options{
		Logger: logger,
		Loader: ingest.NewLoader(ingest.Options{
			MaxFileSize: cfg.Load.MaxFileSize,
			ChunkSize:   cfg.Load.ChunkSize,
			Timeout:     cfg.Load.Timeout,
			Logger:      logger,
		}),
		Engine:          query.NewEngine(cfg.Search.ShardSize),
		Render:          render.Options{MaxCellWidth: cfg.Render.MaxCellWidth, MemoLimit: cfg.Render.MemoLimit},
		Postgres:        sink,
		DefaultPageSize: cfg.Render.PageSize,
		MaxPageSize:     cfg.Render.MaxPageSize,
	})
	defer session.Shutdown(context.Background())

	if err := load(ctx, session, rest[0], o, stderr); err != nil {
		return err
	}
	if err := apply(ctx, session, o); err != nil {
		return err
	}
	return emit(ctx, session, o, stdout)
}

// load runs the load to completion, reporting progress if asked.
func load(ctx context.Context, s *core.Session, path string, o *options, stderr io.Writer) error {
	if _, err := s.StartLoad(ctx, path, o.sheet); err != nil {
		return err
	}

	ch, unsubscribe, err := s.SubscribeLoad()
	if err != nil {
		return err
	}
	defer unsubscribe()

	var last core.LoadStatus
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				if o.progress {
					fmt.Fprintln(stderr)
				}
				return finish(last)
			}
			if o.progress && st.Phase == core.PhaseReading {
				fmt.Fprintf(stderr, "\rloading %s: %3d%%", path, st.Percent)
			}
			last = st
		case <-ctx.Done():
			_ = s.CancelLoad()
			st, _ := s.WaitLoad(context.Background())
			return finish(st)
		}
	}
}

func finish(st core.LoadStatus) error {
	switch st.Phase {
	case core.PhaseComplete:
		return nil
	case core.PhaseCancelled:
		return &ingest.Error{Kind: ingest.KindCancelled, Path: st.Path, Err: context.Canceled}
	case core.PhaseFailed:
		if st.Err != nil {
			return st.Err
		}
		return errors.New(st.Error)
	default:
		return fmt.Errorf("load of %s ended in phase %q", st.Path, st.Phase)
	}
}

// apply runs the requested search, sort and duplicate check, in that order.
func apply(ctx context.Context, s *core.Session, o *options) error {
	if o.term1 != "" || o.term2 != "" {
		logic, err := query.ParseLogic(o.logic)
		if err != nil {
			return err
		}
		_, err = s.Search(ctx, query.Spec{
			Term1:       o.term1,
			Term2:       o.term2,
			Logic:       logic,
			MatchCase:   o.matchCase,
			EntireField: o.entireField,
		})
		if err != nil {
			return err
		}
	}
	if o.sortBy != "" {
		if err := s.Sort(o.sortBy, o.desc); err != nil {
			return err
		}
	}
	if o.dup != "" {
		if _, err := s.FindDuplicates(splitList(o.dup)); err != nil {
			return err
		}
	}
	return nil
}

func emit(ctx context.Context, s *core.Session, o *options, stdout io.Writer) error {
	if o.format == "table" {
		page, err := s.Grid(o.offset, o.limit)
		if err != nil {
			return err
		}
		printGrid(stdout, page)
		if o.stats {
			st, err := s.Stats()
			if err != nil {
				return err
			}
			printStats(stdout, st)
		}
		return nil
	}

	format, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}

	w := stdout
	if o.output != "" && format.Streams() {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	res, err := s.Export(ctx, w, core.ExportRequest{
		Format:  format,
		Columns: splitList(o.columns),
		AllRows: o.allRows,
		Table:   o.pgTable,
	})
	if err != nil {
		return err
	}
	if !format.Streams() {
		fmt.Fprintf(stdout, "copied %d rows into %s\n", res.Rows, res.Table)
	}
	return nil
}

// printGrid renders one page. Highlighted cells are wrapped in *...*, and
// duplicate cells are prefixed with =.
func printGrid(w io.Writer, page core.Page) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)

	header := make([]string, 0, len(page.Columns)+1)
	header = append(header, "")
	for _, c := range page.Columns {
		label := c.Label
		if c.Duplicate {
			label = "=" + label
		}
		header = append(header, label)
	}
	tw.SetHeader(header)

	for _, r := range page.Rows {
		line := make([]string, 0, len(r.Cells)+1)
		line = append(line, r.Label)
		for _, c := range r.Cells {
			line = append(line, markCell(c))
		}
		tw.Append(line)
	}

	end := page.Offset + len(page.Rows)
	tw.SetCaption(true, fmt.Sprintf("rows %d-%d of %d", min(page.Offset+1, end), end, page.Total))
	tw.Render()
}

func markCell(c core.Cell) string {
	switch c.Tag {
	case render.TagHighlighted:
		return "*" + c.Text + "*"
	case render.TagDuplicate:
		return "=" + c.Text
	case render.TagBoth:
		return "=*" + c.Text + "*"
	default:
		return c.Text
	}
}

func printStats(w io.Writer, st core.Stats) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Statistic", "Value"})
	tw.SetAutoFormatHeaders(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)

	tw.Append([]string{"Total rows", strconv.Itoa(st.Rows)})
	tw.Append([]string{"Total columns", strconv.Itoa(st.Columns)})
	tw.Append([]string{"Rows shown", strconv.Itoa(st.ViewRows)})
	if st.Search != nil {
		tw.Append([]string{"Matching rows", fmt.Sprintf("%d (%.1f%%)", st.Search.Matched, st.Search.Percent)})
		tw.Append([]string{"Matching cells", strconv.Itoa(st.Search.MatchCells())})
	}
	if st.Duplicates != nil {
		tw.Append([]string{"Duplicate columns", strings.Join(st.Duplicates.Columns, ", ")})
		tw.Append([]string{"Duplicate rows", strconv.Itoa(st.Duplicates.DuplicateRows)})
		tw.Append([]string{"Unique values", strconv.Itoa(st.Duplicates.UniqueValues)})
	}
	tw.Render()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
