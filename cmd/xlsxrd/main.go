package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yamitzky/xlsxrd-go/reconcile"
	"github.com/yamitzky/xlsxrd-go/xlsxrd"
)

const defaultSheetDelimiter = "--------"

var version = "dev"

// errDifferences marks a completed diff that found disagreements; run
// turns it into exit code 1 without printing it, the summary already did.
var errDifferences = errors.New("differences found")

var (
	redSprint    = color.New(color.FgRed).SprintFunc()
	greenSprint  = color.New(color.FgGreen).SprintFunc()
	yellowSprint = color.New(color.FgYellow).SprintFunc()
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if errors.Is(err, errDifferences) {
			return 1
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "xlsxrd",
		Short:         "Read tabular records out of spreadsheet archives",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	logger := func() *zap.Logger { return newLogger(verbose, stderr) }
	root.AddCommand(
		newSheetsCmd(logger, &verbose),
		newCSVCmd(logger),
		newJSONCmd(logger),
		newDiffCmd(logger),
		newTZCmd(logger),
	)
	return root
}

func newLogger(verbose bool, w io.Writer) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

func newSheetsCmd(logger func() *zap.Logger, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets <file>",
		Short: "List the sheets in a workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := logger()
			defer lg.Sync()
			wb, err := xlsxrd.OpenWorkbook(args[0], &xlsxrd.OpenWorkbookOptions{Logger: lg})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, meta := range wb.Sheets() {
				if !*verbose {
					fmt.Fprintln(out, meta.Name)
					continue
				}
				part, err := wb.SheetPartPath(meta.Name)
				if err != nil {
					fmt.Fprintf(out, "%s\t(unresolved: %v)\n", meta.Name, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", meta.Name, part, partSize(wb, part))
			}
			return nil
		},
	}
}

func partSize(wb *xlsxrd.Workbook, part string) string {
	for _, entry := range wb.Archive().Entries() {
		if entry.Name == part {
			return units.HumanSize(float64(entry.UncompressedSize))
		}
	}
	return "?"
}

func newCSVCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		sheetName      string
		sheetID        int
		allSheets      bool
		delimiterFlag  string
		ignoreEmpty    bool
		sheetDelimiter string
		output         string
	)
	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Dump sheet cells as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := logger()
			defer lg.Sync()

			delimiter, err := parseDelimiter(delimiterFlag)
			if err != nil {
				return errors.Wrap(err, "invalid delimiter")
			}
			wb, err := xlsxrd.OpenWorkbook(args[0], &xlsxrd.OpenWorkbookOptions{Logger: lg})
			if err != nil {
				return err
			}
			names, err := selectSheets(wb, sheetName, sheetID, allSheets)
			if err != nil {
				return err
			}

			out, closer, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			defer closer()

			w := bufio.NewWriter(out)
			for i, name := range names {
				if i > 0 && sheetDelimiter != "" {
					fmt.Fprintln(w, sheetDelimiter)
				}
				rows, err := wb.Rows(name)
				if err != nil {
					return err
				}
				if err := writeGrid(w, rows, delimiter, ignoreEmpty); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&sheetName, "sheetname", "n", "", "sheet name to convert")
	cmd.Flags().IntVarP(&sheetID, "sheet", "s", 0, "sheet number to convert (1-based)")
	cmd.Flags().BoolVarP(&allSheets, "all", "a", false, "export all sheets")
	cmd.Flags().StringVarP(&delimiterFlag, "delimiter", "d", ",", "column delimiter, 'tab' or 'x09' for a tab")
	cmd.Flags().BoolVarP(&ignoreEmpty, "ignoreempty", "i", false, "skip empty lines")
	cmd.Flags().StringVarP(&sheetDelimiter, "sheetdelimiter", "p", defaultSheetDelimiter, "separator line between sheets with --all")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default stdout)")
	return cmd
}

func newJSONCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		sheetName string
		sheetID   int
		pretty    bool
		output    string
	)
	cmd := &cobra.Command{
		Use:   "json <file>",
		Short: "Dump one sheet's records as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := logger()
			defer lg.Sync()
			wb, err := xlsxrd.OpenWorkbook(args[0], &xlsxrd.OpenWorkbookOptions{Logger: lg})
			if err != nil {
				return err
			}
			names, err := selectSheets(wb, sheetName, sheetID, false)
			if err != nil {
				return err
			}
			records, err := wb.Records(names[0])
			if err != nil {
				return err
			}
			if records == nil {
				records = []xlsxrd.Record{}
			}

			out, closer, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			defer closer()

			enc := json.NewEncoder(out)
			if pretty {
				enc.SetIndent("", "  ")
			}
			return errors.WithStack(enc.Encode(records))
		},
	}
	cmd.Flags().StringVarP(&sheetName, "sheetname", "n", "", "sheet name to convert")
	cmd.Flags().IntVarP(&sheetID, "sheet", "s", 0, "sheet number to convert (1-based)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default stdout)")
	return cmd
}

func newDiffCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		keyField   string
		orderField string
		compare    []string
		copyPairs  []string
		zones      []string
		sheetName  string
		format     string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "diff <model> <rendered>",
		Short: "Reconcile a model workbook against a rendered export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := logger()
			defer lg.Sync()

			copyColumns, err := parseCopyColumns(copyPairs)
			if err != nil {
				return err
			}
			if format != "csv" && format != "json" {
				return errors.Errorf("unsupported report format: %s", format)
			}

			model, _, err := loadRecords(args[0], sheetName, lg)
			if err != nil {
				return err
			}
			rendered, headers, err := loadRecords(args[1], sheetName, lg)
			if err != nil {
				return err
			}

			result, err := reconcile.Reconcile(model, rendered, reconcile.Config{
				KeyField:       keyField,
				OrderField:     orderField,
				CompareColumns: compare,
				CopyColumns:    copyColumns,
				Zones:          zones,
				Headers:        headers,
				Logger:         lg,
			})
			if err != nil {
				return err
			}

			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrap(err, "create report")
				}
				defer f.Close()
				if format == "json" {
					err = reconcile.WriteJSON(f, result, true)
				} else {
					err = reconcile.WriteCSV(f, result)
				}
				if err != nil {
					return err
				}
			}

			printDiffSummary(cmd.OutOrStdout(), args[0], args[1], result)
			if len(result.Mismatches) > 0 {
				return errDifferences
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyField, "key", "", "column joining rows across the two files (required)")
	cmd.Flags().StringVar(&orderField, "order-by", "", "date column picking the latest row per key")
	cmd.Flags().StringArrayVar(&compare, "compare", nil, "column to compare (repeatable)")
	cmd.Flags().StringArrayVar(&copyPairs, "copy", nil, "model column to copy into the report, as from=to (repeatable)")
	cmd.Flags().StringArrayVar(&zones, "zones", nil, "candidate display zones; enables date-aware comparison (repeatable)")
	cmd.Flags().StringVarP(&sheetName, "sheetname", "n", "", "sheet name in both files (default first sheet)")
	cmd.Flags().StringVar(&format, "format", "csv", "report format: csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "report file path")
	cobra.CheckErr(cmd.MarkFlagRequired("key"))
	return cmd
}

func printDiffSummary(out io.Writer, modelPath, renderedPath string, result *reconcile.Result) {
	if result.Zone != "" {
		fmt.Fprintf(out, "display zone: %s\n", result.Zone)
	}
	for _, key := range result.MissingInRendered {
		fmt.Fprintln(out, yellowSprint(fmt.Sprintf("missing in %s: %s", renderedPath, key)))
	}
	for _, key := range result.MissingInModel {
		fmt.Fprintln(out, yellowSprint(fmt.Sprintf("missing in %s: %s", modelPath, key)))
	}
	for _, m := range result.Mismatches {
		fmt.Fprintln(out, redSprint(fmt.Sprintf("%s %s: want %q, got %q", m.Key, m.Field, m.Want, m.Got)))
	}
	missing := len(result.MissingInModel) + len(result.MissingInRendered)
	if len(result.Mismatches) == 0 && missing == 0 {
		fmt.Fprintln(out, greenSprint(fmt.Sprintf("%d rows reconciled, no differences", len(result.Rows))))
		return
	}
	fmt.Fprintf(out, "%d rows, %d mismatches, %d missing\n", len(result.Rows), len(result.Mismatches), missing)
}

func newTZCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		keyField   string
		dateFields []string
		zones      []string
		sheetName  string
		maxSamples int
	)
	cmd := &cobra.Command{
		Use:   "tz <model> <rendered>",
		Short: "Infer the display zone of a rendered export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := logger()
			defer lg.Sync()

			model, _, err := loadRecords(args[0], sheetName, lg)
			if err != nil {
				return err
			}
			rendered, _, err := loadRecords(args[1], sheetName, lg)
			if err != nil {
				return err
			}

			resolver := &xlsxrd.ZoneResolver{
				KeyField:   keyField,
				DateFields: dateFields,
				Zones:      zones,
				MaxSamples: maxSamples,
				Logger:     lg,
			}
			zone, ok := resolver.Infer(model, rendered)
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, yellowSprint("no date evidence; display zone undetermined"))
				return nil
			}
			fmt.Fprintln(out, zone)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyField, "key", "", "column joining rows across the two files (default pairwise order)")
	cmd.Flags().StringArrayVar(&dateFields, "date-field", nil, "date column to sample (repeatable, required)")
	cmd.Flags().StringArrayVar(&zones, "zones", nil, "candidate zone names (default the US zones plus UTC)")
	cmd.Flags().StringVarP(&sheetName, "sheetname", "n", "", "sheet name in both files (default first sheet)")
	cmd.Flags().IntVar(&maxSamples, "max-samples", 0, "cap on sampled rows (default 25)")
	cobra.CheckErr(cmd.MarkFlagRequired("date-field"))
	return cmd
}

// loadRecords opens one workbook and decodes one sheet, defaulting to
// the first sheet of the manifest. Returns the records and the sheet's
// header labels in column order.
func loadRecords(path, sheetName string, lg *zap.Logger) ([]xlsxrd.Record, []string, error) {
	wb, err := xlsxrd.OpenWorkbook(path, &xlsxrd.OpenWorkbookOptions{Logger: lg})
	if err != nil {
		return nil, nil, err
	}
	if sheetName == "" {
		sheetName = wb.SheetNames()[0]
	}
	rows, err := wb.Rows(sheetName)
	if err != nil {
		return nil, nil, err
	}
	return xlsxrd.RecordsFromRows(rows), xlsxrd.HeadersFromRows(rows), nil
}

func selectSheets(wb *xlsxrd.Workbook, sheetName string, sheetID int, allSheets bool) ([]string, error) {
	if sheetName != "" && (allSheets || sheetID > 0) {
		return nil, errors.New("cannot combine --sheetname with --sheet or --all")
	}
	names := wb.SheetNames()
	switch {
	case sheetName != "":
		for _, name := range names {
			if name == sheetName {
				return []string{name}, nil
			}
		}
		return nil, errors.Errorf("sheet %s not found", sheetName)
	case allSheets:
		return names, nil
	case sheetID > 0:
		if sheetID > len(names) {
			return nil, errors.Errorf("sheet index %d out of range", sheetID)
		}
		return []string{names[sheetID-1]}, nil
	default:
		return names[:1], nil
	}
}

// openOutput returns the writer for -o style flags: the named file, or
// the command's stdout when the path is empty.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create output")
	}
	return f, func() { f.Close() }, nil
}

func writeGrid(w io.Writer, rows []xlsxrd.Row, delimiter rune, ignoreEmpty bool) error {
	width := 0
	for _, row := range rows {
		for col := range row.Cells {
			if col > width {
				width = col
			}
		}
	}
	if width == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	fields := make([]string, width)
	blank := make([]string, width)
	next := 1
	for _, row := range rows {
		if !ignoreEmpty {
			for ; next < row.Num; next++ {
				if err := cw.Write(blank); err != nil {
					return errors.WithStack(err)
				}
			}
		}
		next = row.Num + 1
		for i := range fields {
			fields[i] = ""
		}
		empty := true
		for col, v := range row.Cells {
			if col < 1 || col > width {
				continue
			}
			text := v.String()
			fields[col-1] = text
			if text != "" {
				empty = false
			}
		}
		if ignoreEmpty && empty {
			continue
		}
		if err := cw.Write(fields); err != nil {
			return errors.WithStack(err)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// parseDelimiter accepts a literal rune, 'tab', or an xNN hex byte form.
func parseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", "x09":
		return '\t', nil
	}
	if value == "" {
		return 0, errors.New("delimiter cannot be empty")
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		return rune(decoded), nil
	}
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError && size == 1 {
		return rune(value[0]), nil
	}
	return r, nil
}

// parseCopyColumns reads repeated from=to pairs; a bare name copies the
// column under its own label.
func parseCopyColumns(values []string) ([]reconcile.ColumnPair, error) {
	if len(values) == 0 {
		return nil, nil
	}
	pairs := make([]reconcile.ColumnPair, 0, len(values))
	for _, value := range values {
		from, to := value, value
		if i := strings.Index(value, "="); i >= 0 {
			from, to = value[:i], value[i+1:]
		}
		if from == "" || to == "" {
			return nil, errors.Errorf("invalid copy column %q, want from=to", value)
		}
		pairs = append(pairs, reconcile.ColumnPair{From: from, To: to})
	}
	return pairs, nil
}
