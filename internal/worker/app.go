// Package worker wires and runs the processing worker: config, logging,
// the CTD and Sequence processors and the gRPC server.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/filex"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"github.com/dmitrijs2005/poleshift/internal/worker/config"
	"github.com/dmitrijs2005/poleshift/internal/worker/ctd"
	"github.com/dmitrijs2005/poleshift/internal/worker/kraken"
	"github.com/dmitrijs2005/poleshift/internal/worker/sequence"

	gs "github.com/dmitrijs2005/poleshift/internal/worker/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	server    *gs.GRPCServer
}

func NewApp(c *config.Config) (*App, error) {
	logger, closer, err := logging.New(logging.Options{Level: c.LogLevel, File: c.LogFile})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	tempDir := c.TempDir
	if tempDir != "" {
		if tempDir, err = filex.EnsureDir(tempDir); err != nil {
			return nil, fmt.Errorf("temp dir init error: %w", err)
		}
	}

	classifier := &kraken.ExecClassifier{Binary: c.KrakenBinary, DB: c.KrakenDB, Threads: c.KrakenThreads}

	processors := map[models.DataType]gs.Processor{
		models.DataTypeCTD:      gs.ProcessorFunc(ctd.Process),
		models.DataTypeSequence: sequence.NewProcessor(classifier, tempDir),
	}

	server := gs.NewGRPCServer(c.ListenAddr, logger, c.Secret, processors, gs.Options{
		MaxMessageSize: c.MaxMessageSize,
		RequestTimeout: c.RequestTimeout,
	})

	return &App{config: c, logger: logger, logCloser: closer, server: server}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.logCloser.Close()

	app.logger.Info(ctx, "Starting worker...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
}
