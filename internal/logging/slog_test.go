package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "progress", "pct", 20)
	log.Info(ctx, "saving", "table", "raw_ctd_data")
	log.Warn(ctx, "retrying", "attempt", 3)
	log.Error(ctx, "bulk insert failed", "table", "raw_sequences")

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=progress", "pct=20",
		"level=INFO", "table=raw_ctd_data",
		"level=WARN", "attempt=3",
		"level=ERROR", "table=raw_sequences",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	log.With("module", "syncer").Info(context.Background(), "drained", "tx", 7)

	out := buf.String()
	assert.Contains(t, out, "module=syncer")
	assert.Contains(t, out, "tx=7")
}

func TestSlogLogger_Slog(t *testing.T) {
	log, buf := newTestLogger(t)
	log.Slog().Info("direct")
	assert.Contains(t, buf.String(), "msg=direct")
}
