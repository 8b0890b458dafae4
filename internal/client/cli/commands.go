package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/poleshift/internal/client/services"
	"github.com/dmitrijs2005/poleshift/internal/common"
)

// status is the prompt decoration: connectivity plus a sync marker.
func (app *App) status() string {
	s := string(app.monitor.Mode())
	if s == "" {
		s = "unknown"
	}
	if app.monitor.IsSyncing() {
		s += " syncing"
	}
	return "(" + s + ")"
}

func (app *App) Status(ctx context.Context) error {
	pending, err := app.repos.Crud.Pending(ctx)
	if err != nil {
		return err
	}
	queued, err := app.repos.Uploads.Count(ctx)
	if err != nil {
		return err
	}
	lastSync, err := app.repos.Metadata.GetTime(ctx, metadata.KeyLastSyncAt)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "network:          %s\n", app.status())
	fmt.Fprintf(app.out, "pending changes:  %d\n", pending)
	fmt.Fprintf(app.out, "queued uploads:   %d\n", queued)
	fmt.Fprintf(app.out, "last sync:        %s\n", formatTime(lastSync))
	if inflight := app.processing.InFlight(); len(inflight) > 0 {
		fmt.Fprintf(app.out, "in flight:        %s\n", strings.Join(inflight, ", "))
	}
	return nil
}

func (app *App) ProcessCTD(ctx context.Context, sampleID string, files []string) error {
	return app.process(ctx, services.Request{DataType: models.DataTypeCTD, SampleID: sampleID, Files: files})
}

func (app *App) ProcessSequence(ctx context.Context, sampleID string, files []string) error {
	return app.process(ctx, services.Request{DataType: models.DataTypeSequence, SampleID: sampleID, Files: files})
}

// Ammonia stores a manual reading; an empty value is asked for.
func (app *App) Ammonia(ctx context.Context, sampleID string, value string) error {
	if value == "" {
		var err error
		value, err = GetSimpleText(app.reader, "Ammonia value", app.out)
		if err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("%w: ammonia value %q", common.ErrInvalidInput, value)
	}
	return app.process(ctx, services.Request{DataType: models.DataTypeNutrientAmmonia, SampleID: sampleID, Value: &v})
}

func (app *App) process(ctx context.Context, req services.Request) error {
	id, err := app.identity(ctx)
	if err != nil {
		return err
	}
	req.Identity = id

	bar := newProgressBar(app.out, app.bus, req.SampleID, req.DataType)
	out, err := app.processing.Process(ctx, req)
	bar.Close()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "%s processing complete for %s (record %s)\n", req.DataType, req.SampleID, out.RecordID)
	for table, n := range out.Rows {
		fmt.Fprintf(app.out, "  %-32s %d rows\n", table, n)
	}
	for _, u := range out.Uploads {
		switch {
		case u.Err != nil:
			fmt.Fprintf(app.out, "  %s: not uploaded: %v\n", u.Path, u.Err)
		case u.Status == services.StatusQueued:
			fmt.Fprintf(app.out, "  %s: queued, it will be uploaded when the connection is back\n", u.Path)
		default:
			fmt.Fprintf(app.out, "  %s: uploaded to %s\n", u.Path, u.Key)
		}
	}
	app.syncer.Trigger()
	return nil
}

func (app *App) Record(ctx context.Context, sampleID, dataType string) error {
	dt, err := models.ParseDataType(dataType)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	rec, err := app.processing.Status(ctx, sampleID, dt)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "%s %s: %s %d%% %s\n", rec.SampleID, rec.DataType, rec.ProcessingState, rec.ProgressPercentage, rec.StatusMessage)
	if rec.ErrorMessage != "" {
		fmt.Fprintf(app.out, "  error: %s\n", rec.ErrorMessage)
	}
	return nil
}

func (app *App) Queue(ctx context.Context) error {
	tasks, err := app.uploads.Queue(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(app.out, "Upload queue is empty")
		return nil
	}
	for _, t := range tasks {
		fmt.Fprintf(app.out, "%s  %s -> %s/%s  (%s)\n", t.ID, t.Path, t.DestinationBucket, t.ObjectKey, formatTime(t.CreatedAt))
	}
	return nil
}

func (app *App) Reconcile(ctx context.Context) error {
	rep, err := app.uploads.Reconcile(ctx)
	fmt.Fprintf(app.out, "checked %d, removed %d, remaining %d\n", rep.Checked, rep.Removed, rep.Remaining)
	return err
}

func (app *App) Retry(ctx context.Context) error {
	rep, err := app.uploads.RetryQueued(ctx)
	fmt.Fprintf(app.out, "uploaded %d, remaining %d\n", rep.Removed, rep.Remaining)
	return err
}

func (app *App) Sync(ctx context.Context) error {
	n, res, err := app.syncer.Drain(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "uploaded %d transaction(s), stopped: %s\n", n, res.Outcome)
	if res.Err != nil {
		fmt.Fprintf(app.out, "  last error after %d attempt(s): %v\n", res.Attempts, res.Err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
