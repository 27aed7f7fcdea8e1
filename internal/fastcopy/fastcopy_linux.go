//go:build linux

package fastcopy

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// hasCopyFileRange flips to false the first time the kernel rejects the
// syscall so subsequent copies skip straight to userspace.
var hasCopyFileRange atomic.Bool

func init() {
	hasCopyFileRange.Store(true)
}

// copyFile copies length bytes from in to out, preserving holes when the
// source is sparse.
func copyFile(in, out *os.File, length int64) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(in.Fd()), &st); err != nil {
		return 0, fmt.Errorf("fstat source: %w", err)
	}

	// st_blocks counts 512-byte units; fewer allocated bytes than the
	// file size implies holes.
	sparse := st.Blocks*512 < st.Size

	if sparse {
		return copySparse(in, out, length)
	}
	return copyRange(in, out, length)
}

// copyRange copies length bytes from the current offsets, preferring
// copy_file_range and degrading to userspace on ENOSYS/EPERM/EXDEV.
func copyRange(in, out *os.File, length int64) (int64, error) {
	var written int64
	for written < length {
		remaining := length - written

		if hasCopyFileRange.Load() {
			n, err := unix.CopyFileRange(int(in.Fd()), nil, int(out.Fd()), nil, int(remaining), 0)
			if err != nil {
				switch err {
				case unix.ENOSYS, unix.EPERM:
					hasCopyFileRange.Store(false)
					continue
				case unix.EXDEV, unix.EINVAL:
					// Cross-device or unsupported fs for this pair only.
					n2, uerr := copyUserspace(in, out, remaining)
					return written + n2, uerr
				default:
					return written, fmt.Errorf("copy_file_range: %w", err)
				}
			}
			if n == 0 {
				return written, fmt.Errorf("copy_file_range: source ended prematurely")
			}
			written += int64(n)
			continue
		}

		n, err := copyUserspace(in, out, remaining)
		return written + n, err
	}
	return written, nil
}

// copySparse walks the source's data segments with SEEK_DATA/SEEK_HOLE
// and copies only them; the destination is pre-truncated to the full
// length so the holes come for free.
func copySparse(in, out *os.File, length int64) (int64, error) {
	if err := unix.Ftruncate(int(out.Fd()), length); err != nil {
		return 0, fmt.Errorf("ftruncate destination: %w", err)
	}

	var pos int64
	for pos < length {
		nextData, err := seekOff(in, pos, unix.SEEK_DATA, length)
		if err != nil {
			return pos, err
		}
		if nextData >= length {
			break
		}
		nextHole, err := seekOff(in, nextData, unix.SEEK_HOLE, length)
		if err != nil {
			return pos, err
		}

		if _, err := in.Seek(nextData, 0); err != nil {
			return pos, fmt.Errorf("seek source: %w", err)
		}
		if _, err := out.Seek(nextData, 0); err != nil {
			return pos, fmt.Errorf("seek destination: %w", err)
		}
		if _, err := copyRange(in, out, nextHole-nextData); err != nil {
			return pos, err
		}
		pos = nextHole
	}

	return length, nil
}

// seekOff wraps lseek with SEEK_DATA/SEEK_HOLE semantics: ENXIO past the
// last data segment means end-of-file.
func seekOff(f *os.File, off int64, whence int, eof int64) (int64, error) {
	r, err := unix.Seek(int(f.Fd()), off, whence)
	if err != nil {
		if err == unix.ENXIO {
			return eof, nil
		}
		return 0, fmt.Errorf("lseek: %w", err)
	}
	return r, nil
}
