//go:build linux

package shm

import (
	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/waycap/internal/logger"
)

const memfdName = "waycap"

// createFile prefers an anonymous memfd and falls back to a POSIX shm object
// on kernels without memfd_create.
func createFile() (int, error) {
	for {
		fd, err := unix.MemfdCreate(memfdName, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
		switch err {
		case nil:
			seal(fd)
			return fd, nil
		case unix.EINTR:
			continue
		case unix.ENOSYS:
			logger.WithComponent("shm").Debug().Msg("memfd_create unavailable, using shm fallback")
			return openAnon()
		default:
			return -1, err
		}
	}
}

// seal forbids shrinking the object. Failure is harmless.
func seal(fd int) {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		logger.WithComponent("shm").Debug().Err(err).Int("fd", fd).Msg("Could not seal memfd")
	}
}
