package encode

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/subosito/gotenv"

	"github.com/bryanchriswhite/waycap/internal/logger"
)

// Stdout is the filename that sends the image to standard output.
const Stdout = "-"

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

// DefaultFilename names a screenshot after the capture time.
func DefaultFilename(now time.Time) string {
	return fmt.Sprintf("screenshot-%d", now.Unix())
}

// ScreenshotDir picks the directory screenshots are saved to: configured,
// then the XDG pictures directory, then the home directory, then the
// working directory.
func ScreenshotDir(configured string) string {
	if configured != "" {
		return expandHome(configured)
	}
	if dir := picturesDir(); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// picturesDir reads XDG_PICTURES_DIR from the environment or user-dirs.dirs.
func picturesDir() string {
	if dir := os.Getenv("XDG_PICTURES_DIR"); dir != "" {
		return expandHome(dir)
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}

	env, err := gotenv.Read(filepath.Join(configHome, "user-dirs.dirs"))
	if err != nil {
		return ""
	}
	if dir := env["XDG_PICTURES_DIR"]; dir != "" {
		return expandHome(os.ExpandEnv(dir))
	}
	return ""
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Path joins dir and name and appends the format extension when name does
// not already carry it.
func Path(dir, name string, f Format) string {
	if !strings.EqualFold(filepath.Ext(name), f.Extension()) {
		name += f.Extension()
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Save encodes img and writes it to dir/name. The file appears atomically:
// it is written to a temporary file in the same directory and renamed. A
// name of "-" writes to standard output and returns "-".
func Save(dir, name string, f Format, img image.Image, opts Options) (string, error) {
	log := logger.WithComponent("encode")

	if name == Stdout {
		if err := Encode(stdout, img, f, opts); err != nil {
			return "", err
		}
		return Stdout, nil
	}

	path := Path(dir, name, f)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".waycap-*"+f.Extension())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, img, f, opts); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}

	log.Info().
		Str("path", path).
		Str("format", string(f)).
		Msg("Saved screenshot")
	return path, nil
}
