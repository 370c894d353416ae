package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Footprint is the on-disk size in bytes of each persisted artifact group.
type Footprint struct {
	Database int64 `json:"database_bytes"`
	Keyword  int64 `json:"keyword_index_bytes"`
	Vector   int64 `json:"vector_index_bytes"`
}

// Total returns the summed size of all artifacts.
func (f Footprint) Total() int64 {
	return f.Database + f.Keyword + f.Vector
}

// MeasureFootprint sizes the database file, the keyword index directory, and the vector artifacts.
// Missing or empty paths count as zero.
func MeasureFootprint(dbPath, keywordPath string, vectorPaths ...string) (Footprint, error) {
	var (
		fp  Footprint
		err error
	)
	if fp.Database, err = pathSize(dbPath, dbPath+"-wal", dbPath+"-shm"); err != nil {
		return fp, err
	}
	if fp.Keyword, err = pathSize(keywordPath); err != nil {
		return fp, err
	}
	if fp.Vector, err = pathSize(vectorPaths...); err != nil {
		return fp, err
	}
	return fp, nil
}

func pathSize(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" || p == ":memory:" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
