package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/tb-calibration/internal/config"
	"github.com/couchcryptid/tb-calibration/internal/domain"
	"github.com/couchcryptid/tb-calibration/internal/ingest"
	"github.com/couchcryptid/tb-calibration/internal/observability"
)

// options holds the flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string

	tbMin, tbMax, tbStep float64
	pooling, criterion   string
	start, workers       int
	maxCandidates        int

	columns ingest.Columns
	comma   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	def := domain.DefaultScanConfig()

	root := &cobra.Command{
		Use:          "tbcalib",
		Short:        "Calibrate crop base temperature from leaf counts",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML calibration settings file")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	pf.Float64Var(&opts.tbMin, "tb-min", def.TbMin, "lowest Tb candidate (°C)")
	pf.Float64Var(&opts.tbMax, "tb-max", def.TbMax, "highest Tb candidate (°C)")
	pf.Float64Var(&opts.tbStep, "tb-step", def.TbStep, "Tb grid step (°C)")
	pf.StringVar(&opts.pooling, "pooling", string(def.Pooling), "group combination (pooled|per-group)")
	pf.StringVar(&opts.criterion, "criterion", string(def.Criterion), "selection criterion (r2|mse)")
	pf.IntVar(&opts.start, "start", def.StartIndex, "records per group excluded from the fit (pre-emergence)")
	pf.IntVar(&opts.workers, "workers", def.Workers, "concurrent candidate evaluations")
	pf.IntVar(&opts.maxCandidates, "max-candidates", def.MaxCandidates, "largest accepted Tb grid")
	pf.StringVar(&opts.columns.Date, "col-date", "", "date column name (default: detected)")
	pf.StringVar(&opts.columns.Tmin, "col-tmin", "", "minimum temperature column name (default: detected)")
	pf.StringVar(&opts.columns.Tmax, "col-tmax", "", "maximum temperature column name (default: detected)")
	pf.StringVar(&opts.columns.NF, "col-nf", "", "leaf number column name (default: detected)")
	pf.StringVar(&opts.columns.Group, "col-group", "", "group column name (default: detected)")
	pf.StringVar(&opts.comma, "separator", "", "field separator (default: detected from the header)")

	root.AddCommand(newRunCmd(opts), newValidateCmd(opts))
	return root
}

// resolve merges defaults, the settings file, and explicitly set flags, in
// increasing precedence.
func (o *options) resolve(cmd *cobra.Command) (domain.ScanConfig, ingest.Options, error) {
	cfg := domain.DefaultScanConfig()
	var cols ingest.Columns

	if o.configPath != "" {
		file, err := config.LoadFile(o.configPath)
		if err != nil {
			return cfg, ingest.Options{}, err
		}
		cfg = file.Apply(cfg)
		cols = ingest.Columns(file.Columns)
	}

	flags := cmd.Flags()
	if flags.Changed("tb-min") {
		cfg.TbMin = o.tbMin
	}
	if flags.Changed("tb-max") {
		cfg.TbMax = o.tbMax
	}
	if flags.Changed("tb-step") {
		cfg.TbStep = o.tbStep
	}
	if flags.Changed("pooling") {
		cfg.Pooling = domain.PoolingMode(o.pooling)
	}
	if flags.Changed("criterion") {
		cfg.Criterion = domain.Criterion(o.criterion)
	}
	if flags.Changed("start") {
		cfg.StartIndex = o.start
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("max-candidates") {
		cfg.MaxCandidates = o.maxCandidates
	}
	overrideString(&cols.Date, o.columns.Date)
	overrideString(&cols.Tmin, o.columns.Tmin)
	overrideString(&cols.Tmax, o.columns.Tmax)
	overrideString(&cols.NF, o.columns.NF)
	overrideString(&cols.Group, o.columns.Group)

	in := ingest.Options{Columns: cols}
	switch len([]rune(o.comma)) {
	case 0:
	case 1:
		in.Comma = []rune(o.comma)[0]
	default:
		if o.comma != `\t` {
			return cfg, in, fmt.Errorf("--separator must be a single character, got %q", o.comma)
		}
		in.Comma = '\t'
	}
	return cfg, in, nil
}

func (o *options) logger(w io.Writer) *slog.Logger {
	return observability.NewLogger(w, o.logLevel, "text")
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// readDataset parses the observation table at path.
func readDataset(path string, opts ingest.Options) (*ingest.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	ds, err := ingest.ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ds, nil
}
