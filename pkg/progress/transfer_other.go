//go:build !linux

package progress

func zeroCopy(dst, src FileDescriptor, offset int64, count int) (int, error) {
	return sectionCopy(dst, src, offset, count)
}
