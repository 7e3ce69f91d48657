//go:build unix && !linux

package shm

func createFile() (int, error) {
	return openAnon()
}
