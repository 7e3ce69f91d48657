package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/waycap/internal/api"
	"github.com/bryanchriswhite/waycap/internal/backend"
	"github.com/bryanchriswhite/waycap/internal/encode"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/overlay"
	"github.com/bryanchriswhite/waycap/internal/window"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve screenshots over HTTP",
	Long: `Start an HTTP server that takes screenshots on request.

Endpoints:
  GET /api/health
  GET /api/outputs
  GET /api/screenshot?output=&region=&cursor=&format=&quality=&label=
  GET /api/window/screenshot
  GET /api/ws  (websocket, JSON commands)

All requests share one compositor connection and run one at a time.`,
	Example: `  # Start server on the configured port (default 8080)
  waycap serve

  # Start server on a custom port
  waycap serve --port 9090

  # Listen on every interface (anyone on the network can take screenshots)
  waycap serve --host 0.0.0.0

  # Grab a screenshot
  curl -o shot.png localhost:8080/api/screenshot`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "address to listen on (default is 127.0.0.1)")
	serveCmd.Flags().Int("port", 0, "server port (default is 8080)")
	viper.BindPFlag("server_host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server_port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")

	format, err := encode.ParseFormat(settings.Format)
	if err != nil {
		return err
	}
	anchor, err := overlay.ParseAnchor(settings.LabelPosition)
	if err != nil {
		return err
	}

	// Window screenshots are optional for the server.
	var opts []backend.Option
	if wb, err := window.New(settings.WindowBackend); err != nil {
		log.Warn().Err(err).Msg("Window screenshots disabled")
	} else {
		opts = append(opts, backend.WithWindowBackend(wb))
	}

	worker := backend.Start(backend.Auto, opts...)
	defer worker.Close()

	server := api.NewServer(worker, api.Defaults{
		Format:        format,
		Quality:       settings.JPEGQuality,
		Dir:           settings.ScreenshotDir,
		Cursor:        settings.Cursor,
		LabelPosition: anchor,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := settings.ServerHost
	if host == "" {
		host = api.DefaultHost
	}
	fmt.Fprintf(os.Stderr, "waycap serving on http://%s/api (Ctrl+C to stop)\n", net.JoinHostPort(host, strconv.Itoa(settings.ServerPort)))
	return server.Start(ctx, host, settings.ServerPort)
}
