package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/blob"
	"github.com/dmitrijs2005/poleshift/internal/client/bulk"
	"github.com/dmitrijs2005/poleshift/internal/client/config"
	"github.com/dmitrijs2005/poleshift/internal/client/netstatus"
	"github.com/dmitrijs2005/poleshift/internal/client/progress"
	"github.com/dmitrijs2005/poleshift/internal/client/remote"
	"github.com/dmitrijs2005/poleshift/internal/client/remote/postgres"
	"github.com/dmitrijs2005/poleshift/internal/client/remote/postgrest"
	"github.com/dmitrijs2005/poleshift/internal/client/services"
	"github.com/dmitrijs2005/poleshift/internal/client/session"
	"github.com/dmitrijs2005/poleshift/internal/client/store"
	"github.com/dmitrijs2005/poleshift/internal/client/syncer"
	"github.com/dmitrijs2005/poleshift/internal/client/workerclient"
	"github.com/dmitrijs2005/poleshift/internal/events"
	"github.com/dmitrijs2005/poleshift/internal/filex"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"github.com/dmitrijs2005/poleshift/internal/netx"
)

const (
	healthPath    = "/auth/v1/health"
	remoteTimeout = 30 * time.Second
	workerSubject = "poleshift-agent"
)

// Syncer is the part of the sync uploader the REPL drives.
type Syncer interface {
	Drain(ctx context.Context) (int, syncer.Result, error)
	Run(ctx context.Context, interval time.Duration)
	Trigger()
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	closers    []io.Closer
	bus        *events.Bus
	repos      *store.Repositories
	monitor    *netstatus.Monitor
	processing services.ProcessingService
	uploads    services.UploadService
	syncer     Syncer
	identity   func(ctx context.Context) (session.Identity, error)
	reader     *bufio.Reader
	out        io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Options{Level: c.LogLevel, File: c.LogFile})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	app := &App{config: c, logger: logger, closers: []io.Closer{logCloser}, bus: events.NewBus(),
		reader: bufio.NewReader(os.Stdin), out: os.Stdout}

	if err := app.wire(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) wire(ctx context.Context) error {
	c := app.config

	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return fmt.Errorf("data dir init error: %w", err)
	}

	repos, err := store.InitDatabase(ctx, store.FileDSN(c.DatabaseFile()), app.bus)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	app.repos = repos
	app.closers = append(app.closers, repos)

	sess := session.NewFileSource(c.SessionFile, []byte(c.SupabaseJWTSecret))
	var tokens session.TokenSource = sess
	if c.AccessToken != "" {
		tokens = session.StaticToken(c.AccessToken)
	}
	app.identity = func(ctx context.Context) (session.Identity, error) {
		if c.UserID != "" && c.OrgID != "" {
			return session.Identity{UserID: c.UserID, OrgID: c.OrgID}, nil
		}
		return sess.Identity(ctx, c.OrgID)
	}

	pinger := netx.NewHTTPPinger(c.SupabaseURL, healthPath, c.SupabaseAnonKey, 3*time.Second)
	app.monitor = netstatus.NewMonitor(pinger, app.bus, app.logger)

	blobs, err := blob.New(ctx, blob.Options{
		Endpoint:     c.S3Endpoint,
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		UsePathStyle: c.S3UsePathStyle,
	})
	if err != nil {
		return err
	}
	app.uploads = services.NewUploadService(blobs, repos.Uploads, repos.Metadata, app.monitor, app.logger)

	worker, err := workerclient.New(c.WorkerAddr, []byte(c.WorkerSecret), workerSubject,
		workerclient.WithMaxMessageSize(c.WorkerMaxMessageSize))
	if err != nil {
		return fmt.Errorf("worker client init error: %w", err)
	}
	app.closers = append(app.closers, worker)

	policy := services.MarkFailed
	if c.FailurePolicy == config.FailureLeave {
		policy = services.LeaveAsIs
	}
	app.processing = services.NewProcessingService(
		worker,
		repos.Processed,
		repos.RawData,
		bulk.NewInserter(repos.DB, app.logger, app.bus),
		progress.NewRelay(app.bus, repos.Processed, app.logger),
		app.uploads,
		app.logger,
		services.ProcessingOptions{Policy: policy, RawBucket: c.RawDataBucket},
	)

	conn, err := app.connector(ctx, tokens)
	if err != nil {
		return err
	}
	app.syncer = syncer.NewUploader(app.logger, repos.Crud, conn, repos.Metadata, app.monitor, syncer.Options{
		MaxBatchSize:    c.MaxBatchSize,
		MaxAttempts:     c.MaxAttempts,
		BaseDelay:       c.RetryBaseDelay,
		BatchedPatch:    c.PatchMode == config.PatchBatched,
		DiscardRejected: c.DiscardRejected,
	})
	return nil
}

func (app *App) connector(ctx context.Context, tokens session.TokenSource) (remote.Connector, error) {
	c := app.config
	if c.RemoteBackend == config.BackendPostgres {
		pg, err := postgres.Open(ctx, c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, pg)
		return pg, nil
	}
	return postgrest.New(c.SupabaseURL, c.SupabaseAnonKey, tokens, remoteTimeout), nil
}

// Close releases everything NewApp opened, newest first.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		_ = app.closers[i].Close()
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// onNetworkChange retries queued uploads and kicks the uploader whenever
// connectivity comes back.
func (app *App) onNetworkChange(ctx context.Context) func(netstatus.Change) {
	var mu sync.Mutex
	last := netstatus.ModeUnknown

	return func(ch netstatus.Change) {
		mu.Lock()
		changed := ch.Mode != last
		last = ch.Mode
		mu.Unlock()

		// Syncing toggles publish too; only mode transitions matter here.
		if !changed || !ch.Online() {
			return
		}
		app.syncer.Trigger()
		go func() {
			if _, err := app.uploads.RetryQueued(ctx); err != nil {
				app.logger.Warn(ctx, "retry of queued uploads incomplete", "error", err)
			}
		}()
	}
}

func (app *App) reconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !app.monitor.IsOnline() {
				continue
			}
			if _, err := app.uploads.Reconcile(ctx); err != nil {
				app.logger.Warn(ctx, "reconcile incomplete", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Run starts the background loops and blocks in the REPL until the user
// exits, stdin closes or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.initSignalHandler(cancelFunc)

	sub := app.monitor.OnChange(app.onNetworkChange(ctx))
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	loops := []func(){
		func() { app.monitor.Run(ctx, app.config.OnlineCheckInterval) },
		func() { app.syncer.Run(ctx, app.config.SyncInterval) },
		func() { app.reconcileLoop(ctx, app.config.ReconcileInterval) },
	}
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop()
		}()
	}

	fmt.Fprintln(app.out, "Welcome to Poleshift agent (type 'help' for commands)")

	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, app, app.status, app.reader)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	cancelFunc()
	wg.Wait()
}
