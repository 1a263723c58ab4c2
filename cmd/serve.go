package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samsaffron/tutor/internal/llm"
	"github.com/samsaffron/tutor/internal/logging"
	"github.com/samsaffron/tutor/internal/pprof"
	"github.com/samsaffron/tutor/internal/serve/chat"
	"github.com/samsaffron/tutor/internal/usage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr      string
	servePprofPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tutoring chat API",
	Long: `Run the HTTP chat API. Replies stream as server-sent events and can be
resumed over SSE or WebSocket after a dropped connection.

Examples:
  tutor serve
  tutor serve --addr :9000
  tutor serve --pprof 6060              # also expose runtime profiles`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().IntVar(&servePprofPort, "pprof", -1, "Serve pprof on 127.0.0.1:PORT (0 picks a free port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var usageLog *usage.Logger
	if cfg.Usage.LogEnabled {
		usageLog = usage.NewLogger(cfg.Usage.LogDir)
	}

	srv, err := chat.New(chat.Options{
		Config:   cfg,
		Store:    st,
		Models:   llm.NewModelRegistry(cfg, logger),
		Catalog:  usage.NewCatalogSource(cfg.Usage.CatalogURL, cfg.Usage.CacheDir, cfg.Usage.CacheTTL, logger),
		UsageLog: usageLog,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if servePprofPort >= 0 {
		profiler := pprof.NewServer(logger)
		port, err := profiler.Start(servePprofPort)
		if err != nil {
			return fmt.Errorf("failed to start pprof: %w", err)
		}
		pprof.PrintUsage(cmd.ErrOrStderr(), port)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := profiler.Stop(stopCtx); err != nil {
				logger.Warn("pprof shutdown failed", zap.Error(err))
			}
		}()
	}

	logger.Info("starting tutor",
		zap.String("version", Version),
		zap.String("database", cfg.Database.Path),
		zap.Strings("models", cfg.ChatModelIDs()))
	return srv.Serve(ctx, cfg.Server.Addr)
}
