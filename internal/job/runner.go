package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quill/internal/checkpoint"
	"quill/internal/completion"
	"quill/internal/logging"
	"quill/internal/records"
	"quill/internal/runstore"
	"quill/internal/services"
	"quill/internal/stage"
)

// State is the phase a run is in.
type State string

const (
	StateIdle       State = "idle"
	StateMergingIn  State = "merging_in"
	StateIterating  State = "iterating"
	StateMergingOut State = "merging_out"
	StateFinished   State = "finished"
)

// Options configures a Runner.
type Options struct {
	StorePath string
	KeyField  string
	// CallTimeout bounds each Process call; zero disables the bound.
	CallTimeout time.Duration
	// Limit caps how many records are dispatched in one run; zero means no cap.
	Limit int
}

// History persists run summaries. *runstore.Store satisfies it.
type History interface {
	Begin(ctx context.Context, run runstore.Run) error
	Finish(ctx context.Context, run runstore.Run) error
}

// Summary reports what a run did.
type Summary struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	StorePath string    `json:"store_path"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Total     int `json:"total"`
	Skipped   int `json:"skipped"`
	Deferred  int `json:"deferred"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Dropped   int `json:"dropped"`

	MergeIn     checkpoint.MergeResult `json:"-"`
	MergeOut    checkpoint.MergeResult `json:"-"`
	Interrupted bool                   `json:"interrupted"`
}

// Runner drives one stage over a record store: merge any pending checkpoint
// log, walk the records dispatching incomplete ones, append every record to
// the log, then merge again.
type Runner struct {
	opts      Options
	processor stage.Processor
	predicate completion.Predicate
	pacer     *Pacer
	history   History
	logger    *slog.Logger
	newRunID  func() string
	now       func() time.Time

	mu    sync.Mutex
	state State
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPacer sets the pacer used after each dispatched record.
func WithPacer(p *Pacer) Option {
	return func(r *Runner) {
		if p != nil {
			r.pacer = p
		}
	}
}

// WithHistory records each run in h.
func WithHistory(h History) Option {
	return func(r *Runner) {
		r.history = h
	}
}

// WithRunIDFunc overrides run id generation.
func WithRunIDFunc(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newRunID = fn
		}
	}
}

// WithClock overrides the time source used for summaries.
func WithClock(fn func() time.Time) Option {
	return func(r *Runner) {
		if fn != nil {
			r.now = fn
		}
	}
}

// New constructs a Runner for processor over the store in opts.
func New(processor stage.Processor, opts Options, options ...Option) (*Runner, error) {
	if processor == nil {
		return nil, errors.New("job: processor is required")
	}
	if strings.TrimSpace(opts.StorePath) == "" {
		return nil, errors.New("job: store path is required")
	}
	if strings.TrimSpace(opts.KeyField) == "" {
		return nil, errors.New("job: key field is required")
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("job: negative limit %d", opts.Limit)
	}
	predicate := processor.Completion()
	if err := predicate.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, processor.Name(), "completion", "invalid stage outputs", err)
	}
	for _, field := range predicate.Required {
		if field == opts.KeyField {
			return nil, fmt.Errorf("job: stage %s cannot write the key field %q", processor.Name(), field)
		}
	}

	r := &Runner{
		opts:      opts,
		processor: processor,
		predicate: predicate,
		pacer:     NewPacer(0, 0),
		logger:    logging.NewNop(),
		newRunID:  uuid.NewString,
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// State returns the current phase.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

// Run executes one pass. Per-record failures are recorded as sentinel values
// and never returned. The returned error is non-nil for fatal problems (bad
// store, lock held, log or merge I/O) and for cancellation, in which case the
// summary is still complete and Interrupted is set.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{
		RunID:     r.newRunID(),
		Stage:     r.processor.Name(),
		StorePath: r.opts.StorePath,
		StartedAt: r.now(),
	}
	ctx = services.WithRunID(ctx, summary.RunID)
	ctx = services.WithStage(ctx, summary.Stage)
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldComponent, "job"))
	if aware, ok := r.processor.(stage.LoggerAware); ok {
		aware.SetLogger(logger)
	}

	lock, err := acquireStoreLock(r.opts.StorePath)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := lock.release(); err != nil {
			logger.Warn("release store lock failed", logging.Error(err))
		}
	}()

	r.beginHistory(ctx, logger, summary)
	runErr := r.run(ctx, logger, &summary)
	summary.EndedAt = r.now()
	r.finishHistory(ctx, logger, summary, runErr)
	r.setState(StateFinished)

	attrs := []logging.Attr{
		logging.Event("run_finished"),
		logging.Int("total", summary.Total),
		logging.Int("skipped", summary.Skipped),
		logging.Int("processed", summary.Processed),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("retried", summary.Retried),
		logging.Duration("elapsed", summary.EndedAt.Sub(summary.StartedAt)),
	}
	if summary.Deferred > 0 {
		attrs = append(attrs, logging.Int("deferred", summary.Deferred))
	}
	switch {
	case summary.Interrupted:
		logger.Warn("run interrupted; progress was merged", logging.Args(attrs...)...)
	case runErr != nil:
		logging.ErrorWithContext(logger, "run failed", "run_failed", append(attrs, logging.Error(runErr))...)
	default:
		logger.Info("run finished", logging.Args(attrs...)...)
	}
	return summary, runErr
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, summary *Summary) error {
	storePath := r.opts.StorePath
	logPath := checkpoint.Path(storePath)

	r.setState(StateMergingIn)
	in, err := checkpoint.Merge(ctx, storePath, logPath, r.opts.KeyField, logger)
	summary.MergeIn = in
	summary.Dropped += in.Dropped
	if err != nil {
		return fmt.Errorf("merge pending checkpoint: %w", err)
	}

	store, err := records.Load(storePath, r.opts.KeyField)
	if err != nil {
		return err
	}
	store.EnsureFields(r.predicate.Required...)

	log, err := checkpoint.OpenForRun(logPath, store.Schema())
	if err != nil {
		return err
	}

	r.setState(StateIterating)
	iterErr := r.iterate(ctx, logger, store, log, summary)
	closeErr := log.Close()

	// Progress is merged even when the run was cancelled or the log failed.
	r.setState(StateMergingOut)
	out, mergeErr := checkpoint.Merge(context.WithoutCancel(ctx), storePath, logPath, r.opts.KeyField, logger)
	summary.MergeOut = out
	summary.Dropped += out.Dropped
	if mergeErr != nil {
		mergeErr = fmt.Errorf("merge checkpoint: %w", mergeErr)
	}

	if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
		summary.Interrupted = true
	}
	return errors.Join(iterErr, closeErr, mergeErr)
}

func (r *Runner) iterate(ctx context.Context, logger *slog.Logger, store *records.RecordSet, log *checkpoint.Log, summary *Summary) error {
	recs := store.Records()
	summary.Total = len(recs)
	keyField := r.opts.KeyField

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := rec.Get(keyField)
		status := r.predicate.Classify(rec)

		if !status.NeedsWork() || (r.opts.Limit > 0 && summary.Processed >= r.opts.Limit) {
			if status.NeedsWork() {
				summary.Deferred++
			} else {
				summary.Skipped++
			}
			if err := log.Append(rec); err != nil {
				return err
			}
			continue
		}

		summary.Processed++
		if status == completion.Retry {
			summary.Retried++
		}
		recCtx := services.WithRecordKey(ctx, key)
		recLogger := logger.With(logging.String(logging.FieldRecordKey, key))
		recLogger.Debug("dispatching record",
			logging.Event("record_dispatch"),
			logging.String("status", status.String()),
		)

		outputs, procErr := r.invoke(recCtx, rec)
		if ctx.Err() != nil {
			// The in-flight record is left for the next run.
			summary.Processed--
			if status == completion.Retry {
				summary.Retried--
			}
			return ctx.Err()
		}
		if procErr == nil && !r.predicate.Satisfied(outputs) {
			procErr = stage.Failure(r.processor.Name(), "validate outputs",
				"missing "+strings.Join(r.predicate.Missing(outputs), ", "), nil)
		}

		if procErr != nil {
			r.predicate.MarkFailed(rec)
			summary.Failed++
			logging.WarnWithContext(recLogger, "record processing failed", "record_failed",
				logging.Error(procErr),
				logging.Hint("the record keeps its failure markers and is retried on the next run"),
				logging.String(logging.FieldImpact, "record marked failed"),
			)
		} else {
			names := make([]string, 0, len(outputs))
			for field, value := range outputs {
				if field == keyField {
					continue
				}
				rec[field] = value
				names = append(names, field)
			}
			slices.Sort(names)
			added, err := log.Extend(names...)
			if err != nil {
				return err
			}
			if len(added) > 0 {
				store.EnsureFields(added...)
				recLogger.Debug("schema extended", logging.Any("added_fields", added))
			}
			summary.Succeeded++
			recLogger.Info("record processed",
				logging.Event("record_processed"),
			)
		}

		if err := log.Append(rec); err != nil {
			return err
		}

		if delay, err := r.pacer.Wait(ctx); err != nil {
			return err
		} else if delay > 0 {
			recLogger.Debug("paced", logging.Duration("delay", delay))
		}
	}
	return nil
}

// invoke runs the processor under the per-call timeout. A deadline hit
// inside the call is reported as a timeout failure for that record only.
func (r *Runner) invoke(ctx context.Context, rec records.Record) (map[string]string, error) {
	callCtx := ctx
	if r.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
	}
	outputs, err := r.processor.Process(callCtx, rec.Clone())
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, services.Wrap(services.ErrTimeout, r.processor.Name(), "process",
			fmt.Sprintf("no result within %s", r.opts.CallTimeout), err)
	}
	return outputs, err
}

func (r *Runner) beginHistory(ctx context.Context, logger *slog.Logger, summary Summary) {
	if r.history == nil {
		return
	}
	err := r.history.Begin(ctx, runstore.Run{
		ID:        summary.RunID,
		Stage:     summary.Stage,
		StorePath: summary.StorePath,
		StartedAt: summary.StartedAt,
	})
	if err != nil {
		logging.WarnWithContext(logger, "record run start failed", "history_write_failed",
			logging.Error(err),
			logging.Hint("check the state directory; processing continues"),
		)
	}
}

func (r *Runner) finishHistory(ctx context.Context, logger *slog.Logger, summary Summary, runErr error) {
	if r.history == nil {
		return
	}
	state := runstore.StateCompleted
	switch {
	case summary.Interrupted:
		state = runstore.StateInterrupted
	case runErr != nil:
		state = runstore.StateFailed
	}
	run := runstore.Run{
		ID:         summary.RunID,
		State:      state,
		FinishedAt: &summary.EndedAt,
		Total:      summary.Total,
		Skipped:    summary.Skipped,
		Deferred:   summary.Deferred,
		Processed:  summary.Processed,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Retried:    summary.Retried,
		Dropped:    summary.Dropped,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := r.history.Finish(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logger, "record run result failed", "history_write_failed",
			logging.Error(err),
			logging.Hint("check the state directory"),
		)
	}
}
