package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"duckflow/internal/config"
	"duckflow/internal/credentials"
	internaldb "duckflow/internal/db"
	"duckflow/internal/db/crypto"
	"duckflow/internal/db/repository"
	"duckflow/internal/declarative"
	"duckflow/internal/domain"
	"duckflow/internal/metrics"
	"duckflow/internal/operator"
	"duckflow/internal/service/pipeline"
	"duckflow/internal/source"
	"duckflow/internal/sqltemplate"
	"duckflow/internal/store"
	_ "duckflow/internal/store/all" // registers duckdb, postgres and redshift
)

// app holds the wired collaborators of one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	writeDB *sql.DB
	readDB  *sql.DB
	runs    *repository.PipelineRunRepo
	creds   *repository.StorageCredentialRepo

	// Set by withEngine.
	store   domain.Store
	metrics *metrics.Collector
	svc     *pipeline.Service
	defs    []pipeline.Definition
}

// loadConfig reads the env file named by --env-file and then the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Root().PersistentFlags().GetString("env-file")
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	return config.LoadFromEnv()
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// openApp loads configuration and opens the metastore. Callers must Close.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	for _, w := range cfg.Warnings {
		logger.Warn("config", "warning", w)
	}

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, writeDB: writeDB, readDB: readDB}

	if err := internaldb.RunMigrations(cmd.Context(), writeDB); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate metastore: %w", err)
	}
	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	a.runs = repository.NewPipelineRunRepo(writeDB, readDB)
	a.creds = repository.NewStorageCredentialRepo(writeDB, enc)
	return a, nil
}

// withEngine opens the target store, loads pipeline definitions and wires
// the run service. Without it the service can only read and cancel runs.
func (a *app) withEngine(ctx context.Context, runtimeMetrics bool) error {
	catalog := sqltemplate.Sparkify()
	defs, declared, err := loadPipelines(a.cfg.PipelinesDir, catalog)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	a.store = st

	static := credentials.NewStatic(declared...)
	if a.cfg.AWS.Configured() {
		static.Set(a.cfg.AWS.Credential())
	}
	resolver := credentials.Chain{static, credentials.NewRepositoryResolver(a.creds)}

	factory := operator.NewFactory(operator.Deps{
		Store:       st,
		Templates:   catalog,
		Credentials: resolver,
		Prober:      source.NewProber(a.logger),
		Logger:      a.logger,
	})

	collector, err := metrics.New(runtimeMetrics)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	a.metrics = collector

	a.svc = pipeline.NewService(a.runs, pipeline.NewExecutor(factory, a.logger), a.logger,
		pipeline.NewLogObserver(a.logger), collector)

	for _, def := range defs {
		if def.Options.MaxParallel == 0 {
			def.Options.MaxParallel = a.cfg.MaxParallel
		}
		if err := a.svc.Register(ctx, def); err != nil {
			return err
		}
	}
	a.defs = defs
	a.logger.Info("engine ready",
		"store", a.cfg.Store.Kind, "pipelines", len(defs), "credentials", static.Names())
	return nil
}

// service returns the run service, creating a read-only one when the engine
// is not wired.
func (a *app) service() *pipeline.Service {
	if a.svc == nil {
		a.svc = pipeline.NewService(a.runs, nil, a.logger)
	}
	return a.svc
}

// Close releases the store and the metastore.
func (a *app) Close() error {
	var errs []error
	if a.svc != nil {
		errs = append(errs, a.svc.Shutdown(context.Background()))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.writeDB != nil {
		errs = append(errs, a.writeDB.Close())
	}
	if a.readDB != nil {
		errs = append(errs, a.readDB.Close())
	}
	return errors.Join(errs...)
}

// loadPipelines reads, validates and compiles every document in dir.
func loadPipelines(dir string, catalog *sqltemplate.Catalog) ([]pipeline.Definition, []domain.StorageCredential, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, fmt.Errorf("pipelines directory: %w", err)
	}
	state, err := declarative.LoadDirectory(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("load pipelines: %w", err)
	}
	defs, err := declarative.Compile(state, declarative.CompileOptions{Templates: catalog})
	if err != nil {
		return nil, nil, err
	}
	creds, err := declarative.CompileCredentials(state.Credentials, nil)
	if err != nil {
		return nil, nil, err
	}
	return defs, creds, nil
}
