package storage

import (
	"os"
	"path/filepath"
	"sort"
)

// DiskUsage reports the on-disk size of the named data locations.
type DiskUsage struct {
	Paths map[string]int64 `json:"paths"`
	Total int64            `json:"total_bytes"`
}

// MeasureDiskUsage sizes each named path. A path may be a file or a directory
// (summed recursively). Missing and empty paths count as zero.
func MeasureDiskUsage(named map[string]string) (*DiskUsage, error) {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	usage := &DiskUsage{Paths: make(map[string]int64, len(named))}
	for _, name := range names {
		n, err := pathSize(named[name])
		if err != nil {
			return nil, err
		}
		usage.Paths[name] = n
		usage.Total += n
	}
	return usage, nil
}

func pathSize(p string) (int64, error) {
	if p == "" {
		return 0, nil
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.Walk(p, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi != nil && !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total, err
}
