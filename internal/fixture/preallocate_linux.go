//go:build linux

package fixture

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for file and sets its length, so writes
// through the mapping cannot fault on a full disk. Filesystems without
// fallocate support fall back to ftruncate.
func preallocate(file *os.File, size int64) error {
	fd := int(file.Fd())
	if err := unix.Fallocate(fd, 0, 0, size); err != nil {
		return unix.Ftruncate(fd, size)
	}
	return unix.Ftruncate(fd, size)
}
