//go:build unix

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const maxNameAttempts = 100

func shmDir() string {
	if runtime.GOOS == "linux" {
		return "/dev/shm"
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// openAnon creates a uniquely named object, unlinks it at once and returns
// the descriptor. Name collisions pick a new name.
func openAnon() (int, error) {
	dir := shmDir()
	for attempt := 0; attempt < maxNameAttempts; {
		name := filepath.Join(dir, "waycap-"+uuid.NewString())
		fd, err := unix.Open(name, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
		switch err {
		case nil:
			if err := unix.Unlink(name); err != nil {
				unix.Close(fd)
				return -1, fmt.Errorf("unlink %s: %w", name, err)
			}
			return fd, nil
		case unix.EINTR:
			continue
		case unix.EEXIST:
			attempt++
			continue
		default:
			return -1, fmt.Errorf("open %s: %w", name, err)
		}
	}
	return -1, fmt.Errorf("no unique shm name in %s after %d attempts", dir, maxNameAttempts)
}
