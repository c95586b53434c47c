package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"qubeless/internal/bootstrap/config"
	"qubeless/internal/bootstrap/database"
	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/infrastructure/notify"
	sqlitequeue "qubeless/internal/infrastructure/persistence/sqlite/queue"
	sqliterepo "qubeless/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "qubeless/internal/infrastructure/persistence/sqlite/uow"
	"qubeless/internal/infrastructure/sandbox"
	"qubeless/internal/infrastructure/storage"
	"qubeless/internal/ports"
	"qubeless/internal/usecase/pipeline"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewAnalysisRepository,
			fx.As(new(ports.Store)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideQueue,
			fx.As(new(ports.Queue)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideExecutor,
			fx.As(new(ports.Executor)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideStorage,
			fx.As(new(ports.ObjectStorage)),
		),
	),
	fx.Provide(provideNotifier),
	fx.Provide(providePipelineService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideQueue(db *gorm.DB, cfg config.Config) *sqlitequeue.JobQueue {
	return sqlitequeue.NewJobQueue(db, cfg.Queue.MaxAttempts, cfg.Queue.BaseDelay)
}

func provideExecutor(cfg config.Config) (*sandbox.DockerExecutor, error) {
	return sandbox.NewDockerExecutor(cfg.Executor.DockerHost)
}

func provideStorage(ctx context.Context, cfg config.Config) (*storage.MinioStorage, error) {
	return storage.NewMinioStorage(ctx, cfg.Storage)
}

func provideNotifier(ctx context.Context, cfg config.Config) (ports.Notifier, error) {
	if !cfg.SCM.Enabled {
		return notify.NewNoopNotifier(), nil
	}
	return notify.NewGitHubNotifier(ctx, cfg.SCM)
}

func providePipelineService(
	store ports.Store,
	uow ports.UnitOfWork,
	queue ports.Queue,
	executor ports.Executor,
	objectStorage ports.ObjectStorage,
	notifier ports.Notifier,
	cfg config.Config,
) *pipeline.Service {
	return pipeline.NewService(store, uow, queue, executor, objectStorage, notifier, pipeline.ExecutorDefaults{
		Timeout:          cfg.Executor.DefaultTimeout,
		MemoryLimitBytes: cfg.Executor.MemoryLimitBytes,
		CPULimit:         cfg.Executor.CPULimit,
		WorkDir:          cfg.Executor.WorkDir,
	})
}
