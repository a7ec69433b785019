//go:build linux

package progress

import (
	"errors"

	"golang.org/x/sys/unix"
)

// zeroCopy moves bytes with sendfile(2). The source offset is passed
// explicitly so the source descriptor position is never touched.
func zeroCopy(dst, src FileDescriptor, offset int64, count int) (int, error) {
	off := offset
	for {
		n, err := unix.Sendfile(int(dst.Fd()), int(src.Fd()), &off, count)
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			if n > 0 {
				return n, nil
			}
			continue
		case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS):
			// descriptor pair not supported by sendfile
			return sectionCopy(dst, src, offset, count)
		}
		return n, err
	}
}
