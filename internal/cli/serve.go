package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/infergate/infergate/internal/config"
	"github.com/infergate/infergate/internal/server"
)

// ServeCommand runs the management server in the foreground
func ServeCommand(appConfig *config.AppConfig) *cobra.Command {
	var host string
	var logToFile bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the management server",
		Long: `Run the management server in the foreground. The server exposes
readiness probing and functional testing of registered backends over an
authenticated HTTP API, and reloads the backend registry on change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(appConfig, logToFile)

			srv := server.NewServer(appConfig,
				server.WithVersion(appConfig.Version()),
				server.WithHost(host),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Management API: http://localhost:%d/api\n", appConfig.GetServerPort())
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default: all interfaces)")
	cmd.Flags().BoolVar(&logToFile, "log-file", true, "also write logs to the rotating log file")
	return cmd
}

// setupLogging directs logs to stdout and, optionally, a size-rotated file
func setupLogging(appConfig *config.AppConfig, logToFile bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if !logToFile {
		logrus.SetOutput(os.Stdout)
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   appConfig.LogFile(),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, rotated))
}
