package main

import (
	"context"
	"os"

	"github.com/WrongMoves/roop/internal/cancel"
	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/WrongMoves/roop/internal/execution"
	"github.com/WrongMoves/roop/internal/governor"
	"github.com/WrongMoves/roop/internal/infra/command"
	"github.com/WrongMoves/roop/internal/infra/config"
	"github.com/WrongMoves/roop/internal/infra/ffmpeg"
	"github.com/WrongMoves/roop/internal/infra/jobfile"
	"github.com/WrongMoves/roop/internal/infra/media"
	"github.com/WrongMoves/roop/internal/infra/tracing"
	"github.com/WrongMoves/roop/internal/processor"
	"github.com/WrongMoves/roop/internal/usecase"
	"github.com/WrongMoves/roop/internal/workspace"
	"github.com/WrongMoves/roop/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	if cfg.JobFile != "" {
		f, err := jobfile.Load(cfg.JobFile)
		fatalOnErr(err, "load job file")
		f.Apply(cfg)
	}

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	// Tracing only when a collector is configured explicitly
	if _, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		tp, err := tracing.InitTracer(context.Background(), cfg.JaegerEndpoint, "cli")
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	tool := ffmpeg.NewTool(cfg.FFmpegPath, cfg.FFprobePath, &command.ExecRunner{}, log)
	workspaces := workspace.NewManager(cfg.WorkspaceRoot, tool, tool, log)

	// Interrupts tear down the workspace and exit with 130
	ctl := cancel.New(func(target string) error {
		return workspaces.Discard(target, cfg.KeepTemp)
	}, log, cancel.WithExit(os.Exit))
	ctx := ctl.Start(context.Background())
	defer ctl.Stop()

	var query port.ProviderQuery = execution.StaticProviders{execution.CPUProvider}
	if cfg.ProvidersCommand != "" {
		query = execution.NewCommandProviders(cfg.ProvidersCommand)
	}

	uc := usecase.NewProcessMediaUseCase(usecase.ProcessMediaConfig{
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

	result := uc.Execute(ctx, usecase.MediaRequest{
		Spec:      cfg.Spec(),
		Execution: cfg.ExecutionRequest(),
	})
	if !result.Success {
		if ctx.Err() != nil {
			// the interrupt handler finishes teardown and exits with 130
			<-ctl.Fired()
			select {}
		}
		log.Error("job failed", zap.Error(result.Err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("job finished",
		zap.String("output", result.OutputPath),
		zap.String("media_kind", string(result.MediaKind)),
		zap.Int("warnings", len(result.Warnings)),
	)
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
