package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/WrongMoves/roop/internal/cancel"
	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/WrongMoves/roop/internal/execution"
	"github.com/WrongMoves/roop/internal/governor"
	"github.com/WrongMoves/roop/internal/infra/command"
	"github.com/WrongMoves/roop/internal/infra/config"
	"github.com/WrongMoves/roop/internal/infra/email"
	"github.com/WrongMoves/roop/internal/infra/ffmpeg"
	"github.com/WrongMoves/roop/internal/infra/media"
	"github.com/WrongMoves/roop/internal/infra/metrics"
	miniostorage "github.com/WrongMoves/roop/internal/infra/minio"
	"github.com/WrongMoves/roop/internal/infra/postgres"
	"github.com/WrongMoves/roop/internal/infra/rabbitmq"
	"github.com/WrongMoves/roop/internal/infra/tracing"
	"github.com/WrongMoves/roop/internal/processor"
	"github.com/WrongMoves/roop/internal/usecase"
	"github.com/WrongMoves/roop/internal/workspace"
	"github.com/WrongMoves/roop/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting roop worker")

	var ready atomic.Bool
	metricsSrv := metrics.StartMetricsServer(context.Background(), cfg.MetricsPort, ready.Load, log)

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(context.Background(), cfg.JaegerEndpoint, "worker")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(context.Background(), pool); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		InputBucket:  cfg.MinIOInputBucket,
		OutputBucket: cfg.MinIOOutputBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(context.Background()), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Orchestrator
	tool := ffmpeg.NewTool(cfg.FFmpegPath, cfg.FFprobePath, &command.ExecRunner{}, log)
	workspaces := workspace.NewManager(cfg.WorkspaceRoot, tool, tool, log)

	// Interrupts discard in-flight workspaces and cancel running jobs; the
	// consumer then requeues them and the process exits normally.
	ctl := cancel.New(func(target string) error {
		return workspaces.Discard(target, false)
	}, log)
	ctx := ctl.Start(context.Background())
	defer ctl.Stop()

	var query port.ProviderQuery = execution.StaticProviders{execution.CPUProvider}
	if cfg.ProvidersCommand != "" {
		query = execution.NewCommandProviders(cfg.ProvidersCommand)
	}

	orchestrator := usecase.NewProcessMediaUseCase(usecase.ProcessMediaConfig{
		Resolver:   execution.NewResolver(query, log),
		Governor:   governor.New(nil, log),
		Registry:   processor.DefaultRegistry(),
		StageOpts:  processor.Options{ToolPath: cfg.StageTool, ModelsDir: cfg.ModelsDir},
		Workspaces: workspaces,
		Tool:       tool,
		Inspector:  media.NewInspector(),
		Tracker:    ctl,
		CoreCheck:  usecase.FFmpegCheck(cfg.FFmpegPath),
	}, log)

	spec := cfg.Spec()
	repo := postgres.NewJobRepository(pool)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	uc := usecase.NewProcessMessageUseCase(
		repo, storage, orchestrator,
		statusPub, dlqPub, notifier,
		log,
		usecase.ProcessMessageConfig{
			TempDir:    cfg.TempDir,
			MaxRetries: cfg.MaxRetries,
			Defaults: usecase.JobDefaults{
				Processors: spec.Processors,
				Tuning:     spec.Tuning,
				Frames:     spec.Frames,
				Execution:  cfg.ExecutionRequest(),
			},
		},
	)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQProcessingQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	ready.Store(true)
	log.Info("roop worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}
	if ctx.Err() != nil {
		// teardown of interrupted workspaces finishes before Fired closes
		<-ctl.Fired()
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("roop worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
