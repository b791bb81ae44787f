// Package tool wires the command line to the pool operations: it parses the
// queued actions, connects to the store and runs each action in turn.
package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/umegbewe/ippool/internal/batch"
	"github.com/umegbewe/ippool/internal/config"
	"github.com/umegbewe/ippool/internal/iprange"
	"github.com/umegbewe/ippool/internal/lease"
	"github.com/umegbewe/ippool/internal/logging"
	"github.com/umegbewe/ippool/internal/metrics"
	"github.com/umegbewe/ippool/internal/storage"
)

// TimeFormat is how lease expiry times are printed.
const TimeFormat = "Jan _2 2006 15:04:05 MST"

var errNothingToDo = errors.New("nothing to do")

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 64
)

// Job is an action with its range parsed.
type Job struct {
	Action
	Interval iprange.Interval
}

// Plan parses the range of every queued action. Nothing is sent to the store
// if any of them is invalid.
func Plan(actions []Action) ([]Job, error) {
	jobs := make([]Job, 0, len(actions))
	for _, a := range actions {
		iv, err := iprange.Parse(a.Range, a.Prefix)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", a.Kind, a.Range, err)
		}
		jobs = append(jobs, Job{Action: a, Interval: iv})
	}
	return jobs, nil
}

type Tool struct {
	exec   *batch.Executor
	logger log.FieldLogger
	out    io.Writer
	now    func() time.Time
}

// New returns a Tool running operations against store. Show output is written
// to out.
func New(store storage.Store, cfg *config.Config, logger log.FieldLogger, out io.Writer) *Tool {
	exec := batch.NewExecutor(store, batch.Config{
		PipelineLimit:   cfg.Batch.PipelineLimit,
		MaxRedirects:    cfg.Batch.MaxRedirects,
		RedirectBackoff: cfg.RedirectBackoff(),
	}, logger)
	return &Tool{exec: exec, logger: logger, out: out, now: time.Now}
}

// Run executes the jobs in order against pool, stopping at the first failure.
func (t *Tool) Run(ctx context.Context, pool, rangeTag string, jobs []Job) error {
	for _, job := range jobs {
		if err := t.runJob(ctx, pool, rangeTag, job); err != nil {
			metrics.OperationFailures.WithLabelValues(job.Kind.String()).Inc()
			return fmt.Errorf("%s %s: %w", job.Kind, job.Range, err)
		}
	}
	return nil
}

func (t *Tool) runJob(ctx context.Context, pool, rangeTag string, job Job) error {
	switch job.Kind {
	case ActionAdd:
		op := &lease.Add{Pool: pool, Range: rangeTag}
		if err := t.exec.Run(ctx, pool, job.Interval, op); err != nil {
			return err
		}
		metrics.Changed.WithLabelValues(op.Name()).Add(float64(op.Count))
		t.logger.Infof("Added %d addresses/prefixes", op.Count)

	case ActionRemove:
		op := &lease.Remove{Pool: pool}
		if err := t.exec.Run(ctx, pool, job.Interval, op); err != nil {
			return err
		}
		metrics.Changed.WithLabelValues(op.Name()).Add(float64(op.Count))
		t.logger.Infof("Removed %d addresses/prefixes", op.Count)

	case ActionRelease:
		op := &lease.Release{Pool: pool}
		if err := t.exec.Run(ctx, pool, job.Interval, op); err != nil {
			return err
		}
		metrics.Changed.WithLabelValues(op.Name()).Add(float64(op.Count))
		t.logger.Infof("Released %d addresses/prefixes", op.Count)

	case ActionShow:
		op := &lease.Show{Pool: pool}
		if err := t.exec.Run(ctx, pool, job.Interval, op); err != nil {
			return err
		}
		PrintLeases(t.out, op.Leases, t.now())

	default:
		return fmt.Errorf("unknown action %d", job.Kind)
	}
	return nil
}

// PrintLeases writes one record per lease. Fields without a value are left
// out.
func PrintLeases(w io.Writer, leases []*lease.Lease, now time.Time) {
	fmt.Fprintf(w, "Retrieved information for %d addresses/prefixes\n", len(leases))
	for _, l := range leases {
		active := l.Active(now)

		var expiry string
		if next := l.NextEvent(); !next.IsZero() {
			expiry = next.Format(TimeFormat)
		}

		fmt.Fprintln(w, "--")
		if l.Range != "" {
			fmt.Fprintf(w, "range           : %s\n", l.Range)
		}
		fmt.Fprintf(w, "address/prefix  : %s\n", l.Block)
		if active {
			fmt.Fprintln(w, "active          : yes")
			printField(w, "lease expires   : ", expiry)
			printField(w, "device id       : ", l.Device)
			printField(w, "gateway id      : ", l.Gateway)
		} else {
			fmt.Fprintln(w, "active          : no")
			printField(w, "lease expired   : ", expiry)
			printField(w, "last device id  : ", l.Device)
			printField(w, "last gateway id : ", l.Gateway)
		}
	}
}

func printField(w io.Writer, label, value string) {
	if value != "" {
		fmt.Fprintf(w, "%s%s\n", label, value)
	}
}

// Main runs the tool with args, excluding the program name, and returns the
// process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}

	cmd := NewCommand(func(cmd *cobra.Command, opts *Options) error {
		return Execute(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(context.Background())
	code := exitCode(err)
	if code == ExitUsage {
		fmt.Fprintln(stderr, err)
		cmd.SetOut(stderr)
		cmd.Usage()
	}
	return code
}

// Execute runs the parsed command line. Failures other than usage errors are
// logged before being returned.
func Execute(ctx context.Context, opts *Options, stdout, stderr io.Writer) error {
	if len(opts.Actions) == 0 {
		fmt.Fprintln(stderr, "Nothing to do!")
		return errNothingToDo
	}

	var err error
	cfg := config.Default()
	if opts.ConfigFile != "" {
		cfg, err = config.LoadConfig(opts.ConfigFile)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
			return err
		}
	}
	cfg.SetServer(opts.Server)

	logger, err := logging.New(stderr, cfg.Logging.Level, opts.Verbosity)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to set up logging: %v\n", err)
		return err
	}

	jobs, err := Plan(opts.Actions)
	if err != nil {
		return err
	}

	if cfg.Metrics.ListenAddress != "" {
		if err := metrics.StartMetricsServer(cfg.Metrics.ListenAddress); err != nil {
			logger.Warnf("Failed to start metrics server: %v", err)
		}
	}
	if cfg.Metrics.Textfile != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Warnf("Failed to write metrics to %s: %v", cfg.Metrics.Textfile, err)
			}
		}()
	}

	store, err := storage.New(ctx, cfg.Redis.Mode, storage.Options{
		Addrs:        cfg.Redis.Addrs,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.DialTimeout(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		Logger:       logger,
	})
	if err != nil {
		logger.Errorf("Driver initialisation failed: %v", err)
		return err
	}
	defer store.Close()

	t := New(store, cfg, logger.WithField("pool", opts.Pool), stdout)
	if err := t.Run(ctx, opts.Pool, opts.Range, jobs); err != nil {
		logger.Error(err)
		return err
	}

	return unimplemented(opts, logger)
}

// unimplemented reports the requested features that do nothing yet.
func unimplemented(opts *Options, logger log.FieldLogger) error {
	var missing []string
	if opts.Import != "" {
		missing = append(missing, "import")
	}
	if opts.Export {
		missing = append(missing, "export")
	}
	if opts.Stats {
		missing = append(missing, "statistics")
	}
	if len(missing) == 0 {
		return nil
	}
	for _, m := range missing {
		logger.Errorf("%s: NOT YET IMPLEMENTED", m)
	}
	return fmt.Errorf("%w: %v", ErrUnimplemented, missing)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage), errors.Is(err, iprange.ErrParse):
		return ExitUsage
	default:
		return ExitFailure
	}
}
