package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/waycap/internal/backend"
	"github.com/bryanchriswhite/waycap/internal/encode"
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/notify"
	"github.com/bryanchriswhite/waycap/internal/overlay"
	"github.com/bryanchriswhite/waycap/internal/window"
)

var (
	captureFilename string
	captureRegion   string
	captureWindow   bool
	captureOutput   string
	captureDelay    float64
	captureLabel    string
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&captureFilename, "filename", "f", "", `output file name, "-" for stdout (default "screenshot-<unix time>")`)
	flags.StringP("directory", "d", "", "screenshot directory (default is XDG_PICTURES_DIR)")
	flags.StringP("encoding", "e", "", "image encoding: png, jpg, ppm, bmp, tiff")
	flags.StringVarP(&captureRegion, "region", "r", "", `region to capture, "X,Y WxH" as printed by slurp`)
	flags.BoolVarP(&captureWindow, "window", "w", false, "capture the focused window")
	flags.StringVarP(&captureOutput, "output", "o", "", "output to capture (default is the first output)")
	flags.BoolP("cursor", "c", false, "include the cursor")
	flags.Float64Var(&captureDelay, "delay", 0, "seconds to wait before capturing")
	flags.StringVar(&captureLabel, "label", "", "text stamped onto the screenshot; {time} and {output} are expanded")
	flags.String("label-position", "", "label corner: top-left, top-right, bottom-left, bottom-right")
	flags.Bool("notify", false, "send a desktop notification when the screenshot is saved")
	flags.Int("quality", 0, "JPEG quality (1-100)")
	flags.String("window-backend", "", "window backend: auto, sway, hyprland, x11")

	rootCmd.MarkFlagsMutuallyExclusive("region", "window", "output")

	viper.BindPFlag("screenshot_dir", flags.Lookup("directory"))
	viper.BindPFlag("format", flags.Lookup("encoding"))
	viper.BindPFlag("cursor", flags.Lookup("cursor"))
	viper.BindPFlag("label_position", flags.Lookup("label-position"))
	viper.BindPFlag("notify", flags.Lookup("notify"))
	viper.BindPFlag("jpeg_quality", flags.Lookup("quality"))
	viper.BindPFlag("window_backend", flags.Lookup("window-backend"))
}

// captureCommand picks the backend command for the capture flags.
func captureCommand(output, region string, focused, cursor bool) (backend.Command, error) {
	switch {
	case focused:
		return backend.CaptureWindow{Cursor: cursor}, nil
	case region != "":
		r, err := geometry.ParseRegion(region)
		if err != nil {
			return nil, err
		}
		return backend.CaptureRegion{Region: r, Cursor: cursor}, nil
	}
	return backend.CaptureScreen{Output: output, Cursor: cursor}, nil
}

func newLabel(text, position string) (*overlay.Label, error) {
	if text == "" {
		return nil, nil
	}
	anchor, err := overlay.ParseAnchor(position)
	if err != nil {
		return nil, err
	}
	l := overlay.NewLabel(text)
	l.Anchor = anchor
	return l, nil
}

func workerOptions(needWindow bool) ([]backend.Option, error) {
	if !needWindow {
		return nil, nil
	}
	wb, err := window.New(settings.WindowBackend)
	if err != nil {
		return nil, err
	}
	return []backend.Option{backend.WithWindowBackend(wb)}, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cli")

	// Validate everything before touching the compositor.
	format, err := encode.ParseFormat(settings.Format)
	if err != nil {
		return err
	}
	command, err := captureCommand(captureOutput, captureRegion, captureWindow, settings.Cursor)
	if err != nil {
		return err
	}
	label, err := newLabel(captureLabel, settings.LabelPosition)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if captureDelay > 0 {
		log.Debug().Float64("seconds", captureDelay).Msg("Waiting before capture")
		select {
		case <-time.After(time.Duration(captureDelay * float64(time.Second))):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	opts, err := workerOptions(captureWindow)
	if err != nil {
		return err
	}
	worker := backend.Start(backend.Auto, opts...)
	defer worker.Close()

	res, err := worker.Do(ctx, command)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		return err
	}

	saved, err := worker.Do(ctx, backend.Save{
		Frame:    res.Frame,
		Dir:      settings.ScreenshotDir,
		Filename: captureFilename,
		Format:   format,
		Options:  encode.Options{Quality: settings.JPEGQuality},
		Label:    label,
	})
	if err != nil {
		res.Frame.Close()
		return err
	}
	if saved.Err != nil {
		return saved.Err
	}

	if saved.Path == encode.Stdout {
		return nil
	}
	fmt.Println(saved.Path)

	if settings.Notify {
		if err := notify.Send(ctx, notify.Notification{
			Summary: "Screenshot saved",
			Body:    saved.Path,
			Icon:    saved.Path,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to send notification")
		}
	}
	return nil
}
