package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"bananagen/internal/catalog"
	"bananagen/internal/logger"
	"bananagen/internal/notify"
	"bananagen/internal/state"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Processor handles one SKU end to end. A nil return means the SKU is fully
// done and durable; context cancellation must propagate unchanged.
type Processor interface {
	ProcessSKU(ctx context.Context, item catalog.WorkItem) error
}

type Options struct {
	CatalogFile  string
	StopAfter    int
	PauseOnError bool

	// Out receives the summary table; defaults to stdout.
	Out io.Writer
}

// Summary is the outcome of one run.
type Summary struct {
	RunID     string
	Pending   int
	Succeeded int
	Failed    int
	Paused    bool
}

// ExitCode maps the run outcome to the process exit status: nonzero
// whenever the run ended with outstanding failures.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// Controller drives a single run: discover pending work, process each SKU
// in catalog order, isolate per-SKU failures, and stop cleanly on
// interruption.
type Controller struct {
	store     *state.Store
	processor Processor
	notifier  notify.Service
	opts      Options
	log       *logger.Logger
}

func NewController(store *state.Store, processor Processor, notifier notify.Service, opts Options) *Controller {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Controller{
		store:     store,
		processor: processor,
		notifier:  notifier,
		opts:      opts,
		log:       logger.New("RunController"),
	}
}

// Run executes the state machine Start -> Discovering -> Processing ->
// Paused|Done. The returned error is non-nil only for fatal startup
// conditions; per-SKU failures are reflected in the Summary instead.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	c.log.LogInfof("=== Run %s starting ===", summary.RunID)

	items, err := catalog.Load(c.opts.CatalogFile)
	if err != nil {
		c.journal(state.NewErrorEntry("n/a", "startup", "catalog_missing", err))
		_ = c.notifier.NotifyError(ctx, "Startup error - catalog missing/empty", err.Error())
		return summary, err
	}

	completed := c.store.CompletedSKUs()
	pending := catalog.Pending(items, completed, c.opts.StopAfter)
	summary.Pending = len(pending)
	c.log.LogInfof("Pending SKUs: %d (completed already: %d)", len(pending), len(completed))

	if len(pending) == 0 {
		c.log.LogInfo("Nothing to do. All catalog SKUs are marked complete.")
		c.render(summary)
		return summary, nil
	}

	for idx, item := range pending {
		if ctx.Err() != nil {
			summary.Paused = true
			break
		}
		c.log.LogInfof("--- [%d/%d] Begin %s ---", idx+1, len(pending), item.ProductCode)

		err := c.processor.ProcessSKU(ctx, item)
		c.log.LogInfof("--- [%d/%d] End %s ---", idx+1, len(pending), item.ProductCode)

		switch {
		case err == nil:
			summary.Succeeded++
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			summary.Paused = true
		default:
			summary.Failed++
			c.log.LogError(fmt.Sprintf("SKU %s failed", item.ProductCode), err)
			if c.opts.PauseOnError {
				c.log.LogWarn("pause-on-error set; stopping the run")
				c.renderAndNotify(ctx, summary)
				return summary, nil
			}
		}
		if summary.Paused {
			break
		}
	}

	if summary.Paused {
		c.log.LogInfo("Paused by user; exiting gracefully. Progress saved for completed SKUs only.")
		c.render(summary)
		return summary, nil
	}

	c.renderAndNotify(ctx, summary)
	c.log.LogInfof("=== Run %s finished ===", summary.RunID)
	return summary, nil
}

func (c *Controller) renderAndNotify(ctx context.Context, summary Summary) {
	c.render(summary)
	_ = c.notifier.NotifyRunCompleted(ctx, summary.RunID, summary.Succeeded, summary.Failed)
}

func (c *Controller) render(summary Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(c.opts.Out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Pending", "Succeeded", "Failed", "Paused"})
	t.AppendRow(table.Row{summary.RunID, summary.Pending, summary.Succeeded, summary.Failed, summary.Paused})
	t.Render()
}

func (c *Controller) journal(entry state.ErrorEntry) {
	if err := c.store.AppendError(entry); err != nil {
		c.log.LogError("failed to append journal entry", err)
	}
}
