package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tovian/tovian/internal/config"
	"github.com/tovian/tovian/internal/logging"
	intOtel "github.com/tovian/tovian/internal/otel"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const AppName = "tovian"

var (
	// ConfigDir holds tovian.cfg.json.
	ConfigDir        string
	SessionStartTime = time.Now()

	LogFilePath string
	LogFile     *os.File

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	// ZLogger is handed to the components that log through zerolog.
	ZLogger zerolog.Logger

	OTelProvider  *intOtel.Provider
	GraylogWriter io.WriteCloser
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Video annotation store with a buffered frame cache",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			teardown()
		},
	}

	root.PersistentFlags().StringVar(&ConfigDir, "config", ".", "directory containing "+config.FileName)
	root.PersistentFlags().String("log-level", "", "override logLevel (debug, info, warn, error)")
	_ = viper.BindPFlag("logLevel", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newMigrateCmd(),
		newVideoCmd(),
		newImportCmd(),
		newExportCmd(),
		newResolveCmd(),
		newPlayCmd(),
	)
	return root
}

// setup loads configuration and builds the logging stack. A missing config
// file is not an error; defaults apply.
func setup() error {
	// a previous command in this process may have failed before PostRun
	teardown()

	SlogManager = logging.NewSlogManager()
	Logger = SlogManager.Logger()

	err := config.Load(ConfigDir)
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return err
	}
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", LogFilePath, err)
	}

	level := config.GetString("logLevel")
	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	ZLogger = zerolog.New(LogFile).Level(zlevel).With().
		Timestamp().
		Str("session", SlogManager.SessionID()).
		Logger()

	var opts []logging.Option
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		GraylogWriter, err = logging.NewGraylogWriter(graylogCfg.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Graylog disabled: %v\n", err)
		} else {
			opts = append(opts, logging.WithGraylog(GraylogWriter))
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      LogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "OTel disabled: %v\n", err)
			OTelProvider = nil
		} else {
			OTelProvider.InstallGlobal()
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(LogFile, level, otelLogProvider, opts...)
	Logger = SlogManager.Logger()
	Logger.Debug("Logging to file", "path", LogFilePath, "config", ConfigDir)
	return nil
}

func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if SlogManager != nil {
		_ = SlogManager.Flush(ctx)
		SlogManager = nil
	}
	if OTelProvider != nil {
		_ = OTelProvider.Shutdown(ctx)
		OTelProvider = nil
	}
	if GraylogWriter != nil {
		_ = GraylogWriter.Close()
		GraylogWriter = nil
	}
	if LogFile != nil {
		_ = LogFile.Close()
		LogFile = nil
	}
}
