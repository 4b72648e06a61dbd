package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dejo1307/cxxmodel/internal/model"
	"github.com/dejo1307/cxxmodel/internal/outline"
)

// OutputDir returns the absolute output directory.
func (e *Engine) OutputDir() string {
	if filepath.IsAbs(e.cfg.Output.Dir) {
		return e.cfg.Output.Dir
	}
	return filepath.Join(e.repo, e.cfg.Output.Dir)
}

// Meta describes the current model.
func (e *Engine) Meta() model.Meta {
	e.mu.Lock()
	hashes := make([]model.FileHash, 0, len(e.files)+len(e.prior))
	for f, rec := range e.files {
		hashes = append(hashes, model.FileHash{
			Project: f.Project.Name,
			Path:    f.Path,
			Hash:    hashString(rec.hash),
			State:   rec.state.String(),
		})
	}
	for _, fh := range e.prior {
		hashes = append(hashes, fh)
	}
	e.mu.Unlock()
	sort.Slice(hashes, func(i, j int) bool {
		if hashes[i].Project != hashes[j].Project {
			return hashes[i].Project < hashes[j].Project
		}
		return hashes[i].Path < hashes[j].Path
	})

	return model.Meta{
		SessionID:        e.sessionID,
		RepoPath:         e.repo,
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		Compressed:       e.cfg.Output.Compress,
		DeclarationCount: e.store.Count(),
		IncludeCount:     len(e.store.Includes()),
		FileHashes:       hashes,
	}
}

// Outline renders the markdown outline of the current model.
func (e *Engine) Outline() []byte {
	return outline.New(e.cfg.Output.MaxOutlineTokens).Render(e.store, e.Meta())
}

// Save writes the model, its meta file and the outline to the output
// directory.
func (e *Engine) Save() error {
	dir := e.OutputDir()
	meta := e.Meta()
	if err := e.store.Save(dir, meta, e.cfg.Output.Compress); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}
	path := filepath.Join(dir, outline.FileName)
	data := outline.New(e.cfg.Output.MaxOutlineTokens).Render(e.store, meta)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outline.FileName, err)
	}
	logger.Infof("saved %d declarations to %s", meta.DeclarationCount, dir)
	return nil
}

// Restore loads a previously saved model into the store. Its file hashes
// let the next parse of an unchanged file be skipped. A missing model is
// not an error; Restore then reports false.
func (e *Engine) Restore() (bool, error) {
	meta, err := e.store.Load(e.OutputDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("restoring model: %w", err)
	}

	e.mu.Lock()
	e.prior = make(map[string]model.FileHash, len(meta.FileHashes))
	for _, fh := range meta.FileHashes {
		e.prior[priorKey(fh.Project, fh.Path)] = fh
	}
	e.mu.Unlock()
	logger.Infof("restored %d declarations and %d file hashes from session %s",
		e.store.Count(), len(meta.FileHashes), meta.SessionID)
	return true, nil
}

func priorKey(project, path string) string {
	return project + "\x00" + path
}

func hashString(h uint64) string {
	return strconv.FormatUint(h, 16)
}
