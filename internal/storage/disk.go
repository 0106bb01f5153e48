package storage

import (
	"errors"
	"io/fs"
	"os"
)

// IndexSize returns the bytes the index at location occupies on disk: the sum
// of the engine's data files. Files the engine has not created (an absent
// journal, say) count as zero.
func IndexSize(e Engine, location string) (int64, error) {
	return fileSizes(e.Files(location)...)
}

func fileSizes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}
