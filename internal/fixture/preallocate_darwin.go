//go:build darwin

package fixture

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for file with F_PREALLOCATE and sets its
// length. F_PREALLOCATE only reserves space, so the ftruncate is required.
func preallocate(file *os.File, size int64) error {
	fst := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL,
		Posmode: unix.F_PEOFPOSMODE,
		Length:  size,
	}
	if err := unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &fst); err != nil {
		return unix.Ftruncate(int(file.Fd()), size)
	}
	return unix.Ftruncate(int(file.Fd()), size)
}
