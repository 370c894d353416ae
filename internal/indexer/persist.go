package indexer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/vector"
)

// mappingBlob is the on-disk position-to-id mapping written next to the index blob.
type mappingBlob struct {
	DocumentIDs []string  `json:"document_ids"`
	Dimension   int       `json:"dimension"`
	WrittenAt   time.Time `json:"written_at"`
}

// Persist writes the index blob and the mapping blob to their configured paths.
// Each file is replaced atomically; the pair is not.
func (s *Synchronizer) Persist(ctx context.Context) error {
	var indexBuf bytes.Buffer
	s.mu.RLock()
	err := vector.EncodeBlob(&indexBuf, s.index, s.compression)
	mapping := mappingBlob{
		DocumentIDs: append([]string{}, s.ids...),
		Dimension:   s.dimensions,
		WrittenAt:   s.now().UTC(),
	}
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: encode index: %w", models.ErrPersistenceIO, err)
	}
	mappingData, err := json.Marshal(&mapping)
	if err != nil {
		return fmt.Errorf("%w: encode mapping: %w", models.ErrPersistenceIO, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeFileAtomic(gctx, s.indexPath, indexBuf.Bytes())
	})
	g.Go(func() error {
		return writeFileAtomic(gctx, s.mappingPath, mappingData)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistenceIO, err)
	}

	s.logger.Info("vector index persisted",
		zap.Int("vectors", len(mapping.DocumentIDs)),
		zap.String("index_path", s.indexPath),
		zap.String("mapping_path", s.mappingPath),
		zap.Int("index_bytes", indexBuf.Len()))
	return nil
}

// Load replaces the in-memory state with the persisted artifacts. When neither artifact
// exists the index is reset to empty without error. On any failure the index is reset
// to empty and the error is returned; a stored dimension that differs from the
// configured one fails with models.ErrDimensionMismatch.
func (s *Synchronizer) Load(ctx context.Context) error {
	index, ids, err := s.readArtifacts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
	if err != nil {
		s.index.Reset()
		s.setIDsLocked(nil)
		return err
	}
	s.index = index
	s.setIDsLocked(ids)
	s.logger.Info("vector index loaded", zap.Int("vectors", len(ids)))
	return nil
}

func (s *Synchronizer) readArtifacts(ctx context.Context) (vector.VectorIndex, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	index, err := vector.NewVectorIndex(s.indexType, s.dimensions)
	if err != nil {
		return nil, nil, err
	}
	indexExists, err := fileExists(s.indexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", models.ErrPersistenceIO, err)
	}
	mappingExists, err := fileExists(s.mappingPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", models.ErrPersistenceIO, err)
	}
	switch {
	case !indexExists && !mappingExists:
		return index, nil, nil
	case !indexExists || !mappingExists:
		return nil, nil, fmt.Errorf("%w: incomplete artifacts (index %t, mapping %t)", models.ErrPersistenceIO, indexExists, mappingExists)
	}

	data, err := os.ReadFile(s.mappingPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read mapping: %w", models.ErrPersistenceIO, err)
	}
	var mapping mappingBlob
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, nil, fmt.Errorf("%w: decode mapping: %w", models.ErrPersistenceIO, err)
	}
	if mapping.Dimension != s.dimensions {
		return nil, nil, models.NewDimensionError(s.dimensions, mapping.Dimension)
	}

	f, err := os.Open(s.indexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open index: %w", models.ErrPersistenceIO, err)
	}
	defer f.Close()
	if err := vector.DecodeBlob(bufio.NewReader(f), index); err != nil {
		if errors.Is(err, models.ErrDimensionMismatch) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: decode index: %w", models.ErrPersistenceIO, err)
	}
	if index.Size() != len(mapping.DocumentIDs) {
		return nil, nil, fmt.Errorf("%w: index holds %d vectors but mapping lists %d ids",
			models.ErrPersistenceIO, index.Size(), len(mapping.DocumentIDs))
	}
	return index, mapping.DocumentIDs, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// writeFileAtomic writes data to a temp file in the target directory and renames it over path.
func writeFileAtomic(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
