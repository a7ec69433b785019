package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileDescriptor is the part of *os.File the zero-copy primitive needs
type FileDescriptor interface {
	io.ReaderAt
	io.Writer
	Fd() uintptr
}

// StreamCopy copies src into dst through a fixed buffer. total is the
// expected size, or a value <= 0 when unknown; in that case only an
// indeterminate marker is emitted.
func StreamCopy(ctx context.Context, dst io.Writer, src io.Reader, total int64, sink Sink, opts ...Option) (int64, error) {
	o := buildOptions(opts)

	step := total / 100
	if step < StreamMinStep {
		step = StreamMinStep
	}
	em := newEmitter(sink, o.now, total, step)
	em.start()

	buf := make([]byte, o.bufferSize)
	var copied int64
	for {
		if err := ctx.Err(); err != nil {
			return copied, fmt.Errorf("%w after %d bytes: %v", ErrCancelled, copied, err)
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			copied += int64(w)
			if werr != nil {
				return copied, werr
			}
			if w != n {
				return copied, io.ErrShortWrite
			}
			em.advance(copied)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return copied, rerr
		}
	}

	em.finish()
	return copied, nil
}

// Transfer moves total bytes starting at sourceOffset of src to the current
// position of dst in ChunkSize pieces. A chunk that moves nothing ends the
// transfer early without error. With total <= 0 it runs until such a chunk.
func Transfer(ctx context.Context, dst, src FileDescriptor, sourceOffset, total int64, sink Sink, opts ...Option) (int64, error) {
	o := buildOptions(opts)
	em := newEmitter(sink, o.now, total, ChunkStep)
	em.start()

	position := sourceOffset
	var moved int64
	for total <= 0 || moved < total {
		if err := ctx.Err(); err != nil {
			return moved, fmt.Errorf("%w after %d bytes: %v", ErrCancelled, moved, err)
		}

		count := int64(ChunkSize)
		if total > 0 && total-moved < count {
			count = total - moved
		}

		n, err := o.transfer(dst, src, position, int(count))
		if err != nil {
			return moved, fmt.Errorf("transfer at offset %d: %w", position, err)
		}
		if n <= 0 {
			break
		}
		position += int64(n)
		moved += int64(n)
		em.advance(moved)
	}

	em.finish()
	return moved, nil
}

// CopyFile copies a region of the file at srcPath into a new file at
// dstPath with Transfer. Both descriptors are closed on every path and a
// partial destination is removed on failure.
func CopyFile(ctx context.Context, dstPath, srcPath string, offset, size int64, sink Sink, opts ...Option) (n int64, err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dstPath)
		}
	}()

	return Transfer(ctx, dst, src, offset, size, sink, opts...)
}

// StreamFile copies src into a new file at dstPath with StreamCopy.
// The destination is removed on failure.
func StreamFile(ctx context.Context, dstPath string, src io.Reader, size int64, sink Sink, opts ...Option) (n int64, err error) {
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dstPath)
		}
	}()

	return StreamCopy(ctx, dst, src, size, sink, opts...)
}

// sectionCopy is the portable fallback for zeroCopy
func sectionCopy(dst, src FileDescriptor, offset int64, count int) (int, error) {
	n, err := io.Copy(dst, io.NewSectionReader(src, offset, int64(count)))
	return int(n), err
}
