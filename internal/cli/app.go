package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/scrollkeeper/internal/backup"
	"github.com/dmitrijs2005/scrollkeeper/internal/badgerx"
	"github.com/dmitrijs2005/scrollkeeper/internal/config"
	"github.com/dmitrijs2005/scrollkeeper/internal/cryptox"
	"github.com/dmitrijs2005/scrollkeeper/internal/filex"
	"github.com/dmitrijs2005/scrollkeeper/internal/logging"
	"github.com/dmitrijs2005/scrollkeeper/internal/metrics"
	"github.com/dmitrijs2005/scrollkeeper/internal/reading"
	"github.com/dmitrijs2005/scrollkeeper/internal/securestore"
	"github.com/dmitrijs2005/scrollkeeper/internal/shared"
	"github.com/dmitrijs2005/scrollkeeper/internal/store"
	"github.com/dmitrijs2005/scrollkeeper/internal/timestamp"
	"github.com/dmitrijs2005/scrollkeeper/internal/timex"
)

// App owns the process-wide resources behind the command tree.
type App struct {
	config  *config.Config
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	logger  *logging.SlogLogger
	metrics *metrics.Metrics
	clock   timex.Clock

	store   store.Store
	keys    *cryptox.Keys
	service *reading.Service
}

// NewApp prepares an App; nothing is opened until a command needs it.
// Logs go to errOut as JSON at the configured level.
func NewApp(c *config.Config, in io.Reader, out, errOut io.Writer) *App {
	level, _ := logging.ParseLevel(c.LogLevel)
	logger := logging.NewJSONLogger(errOut, level)

	return &App{
		config:  c,
		in:      in,
		out:     out,
		errOut:  errOut,
		logger:  logger,
		metrics: metrics.New(),
		clock:   timex.SystemClock{},
	}
}

// Run executes the command line args and releases resources afterwards.
func (a *App) Run(ctx context.Context, args []string) error {
	root := NewRootCommand(a.Service)
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	err := root.ExecuteContext(ctx)
	if cerr := a.Close(); cerr != nil {
		a.logger.Error(ctx, "shutdown failed", "error", cerr)
	}
	return err
}

// Service opens the store, unlocks it with the secret and builds the
// reading service. Later calls return the same service.
func (a *App) Service(ctx context.Context) (Service, error) {
	if a.service != nil {
		return a.service, nil
	}

	loc, err := a.config.TimeLocation()
	if err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}

	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := a.unlock(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	var sink backup.Sink
	if a.config.S3Bucket != "" {
		s3, err := backup.NewS3Sink(ctx, backup.S3Config{
			Bucket:       a.config.S3Bucket,
			Region:       a.config.S3Region,
			BaseEndpoint: a.config.S3BaseEndpoint,
			AccessKey:    a.config.S3AccessKey,
			SecretKey:    a.config.S3SecretKey,
		})
		if err != nil {
			keys.Wipe()
			s.Close()
			return nil, err
		}
		sink = s3
	}

	p := a.config.Policy
	a.store = s
	a.keys = keys
	a.service = reading.NewService(reading.Deps{
		Store:          s,
		Keys:           keys,
		Clock:          a.clock,
		Location:       loc,
		Policy:         &p,
		Profile:        timestamp.DetectProfile(),
		Sink:           sink,
		Logger:         a.logger,
		Metrics:        a.metrics,
		AllowReset:     a.config.AllowReset,
		AttestationTTL: a.config.AttestationTTL,
	})
	a.logger.Debug(ctx, "store opened", "backend", a.config.Backend)
	return a.service, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	switch a.config.Backend {
	case config.BackendSQLite:
		if filex.IsSQLiteFile(a.config.DatabaseDSN) {
			if _, err := filex.EnsureParentDir(a.config.DatabaseDSN); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return store.OpenSQLite(ctx, a.config.DatabaseDSN)
	case config.BackendPostgres:
		return store.OpenPostgres(ctx, a.config.DatabaseDSN)
	case config.BackendBadger:
		return store.OpenBadger(badgerx.Config{
			Path:       a.config.BadgerPath,
			SyncWrites: true,
			Logger:     a.logger.Slog(),
		})
	}
	return nil, fmt.Errorf("unknown backend %q", a.config.Backend)
}

// unlock derives the keys from the configured or prompted secret and
// checks them against the verifier kept in the store.
func (a *App) unlock(ctx context.Context, s store.Store) (*cryptox.Keys, error) {
	var secret []byte
	if a.config.SecretKey != "" {
		secret = []byte(a.config.SecretKey)
	} else {
		var err error
		secret, err = GetSecret(a.errOut)
		if err != nil {
			return nil, fmt.Errorf("read secret: %w", err)
		}
	}
	defer shared.WipeByteArray(secret)

	keys, verifier, err := cryptox.DeriveKeys(secret)
	if err != nil {
		return nil, err
	}
	err = s.Atomic(ctx, func(ctx context.Context, tx store.Store) error {
		return securestore.New(tx.Metadata()).CheckVerifier(ctx, verifier)
	})
	if err != nil {
		keys.Wipe()
		if errors.Is(err, securestore.ErrSecretMismatch) {
			return nil, fmt.Errorf("wrong secret for this store: %w", err)
		}
		return nil, err
	}
	return keys, nil
}

// Close writes the metrics textfile, closes the store and wipes the keys.
func (a *App) Close() error {
	var errs []error
	if a.config.MetricsTextfile != "" {
		if err := a.metrics.WriteTextfile(a.config.MetricsTextfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
		a.store = nil
	}
	if a.keys != nil {
		a.keys.Wipe()
		a.keys = nil
	}
	a.service = nil
	return errors.Join(errs...)
}

// Main is the process entry point: it loads configuration from os.Args,
// runs the command and returns the exit code.
func Main(ctx context.Context) int {
	cfg, rest, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := NewApp(cfg, os.Stdin, os.Stdout, os.Stderr).Run(ctx, rest); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
