package db

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// TotalSize returns the on-disk size of the database at path, including its
// -wal and -shm files. Files that do not exist count as zero.
func TotalSize(path string) (int64, error) {
	var total int64

	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(path + suffix)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return 0, fmt.Errorf("failed to stat %s%s: %w", path, suffix, err)
		default:
			total += info.Size()
		}
	}

	return total, nil
}
