//go:build !linux

package fastcopy

import "os"

// copyFile is the portable implementation for non-Linux platforms.
func copyFile(in, out *os.File, length int64) (int64, error) {
	return copyUserspace(in, out, length)
}
