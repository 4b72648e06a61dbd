package model

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// File names inside an output directory.
const (
	ModelFile           = "model.jsonl"
	CompressedModelFile = "model.jsonl.zst"
	MetaFile            = "model.meta.json"
)

// record is one JSONL line: either a declaration or an include.
type record struct {
	Decl    *Declaration `json:"decl,omitempty"`
	Include *Include     `json:"include,omitempty"`
}

// WriteJSONL writes all declarations, then all includes, one per line.
func (s *Store) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, d := range s.All() {
		if err := enc.Encode(record{Decl: &d}); err != nil {
			return fmt.Errorf("encoding declaration %q: %w", d.QualifiedName, err)
		}
	}
	for _, inc := range s.Includes() {
		if err := enc.Encode(record{Include: &inc}); err != nil {
			return fmt.Errorf("encoding include %q of %s: %w", inc.Path, inc.File, err)
		}
	}
	return nil
}

// ReadJSONL reads records written by WriteJSONL and adds them to the store.
func (s *Store) ReadJSONL(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	// Allow large lines
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	includes := make(map[fileKey][]Include)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decoding model record: %w", err)
		}
		switch {
		case rec.Decl != nil:
			s.Add(*rec.Decl)
		case rec.Include != nil:
			k := fileKey{rec.Include.Project, rec.Include.File}
			includes[k] = append(includes[k], *rec.Include)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	for k, incs := range includes {
		s.SetIncludes(k.project, k.path, incs)
	}
	return nil
}

// Save writes the model and its meta file into dir. With compress the model
// is written zstd-compressed and any stale uncompressed copy is removed (and
// vice versa).
func (s *Store) Save(dir string, meta Meta, compress bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	name, stale := ModelFile, CompressedModelFile
	if compress {
		name, stale = stale, name
	}
	if err := os.Remove(filepath.Join(dir, stale)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale %s: %w", stale, err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var zw *zstd.Encoder
	if compress {
		zw, err = zstd.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		w = zw
	}
	if err := s.WriteJSONL(w); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("closing zstd writer: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	meta.Compressed = compress
	meta.DeclarationCount = s.Count()
	meta.IncludeCount = len(s.Includes())
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), data, 0o644); err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}
	return nil
}

// Load replaces the store contents with the model saved in dir and returns
// its meta. A missing model yields fs.ErrNotExist.
func (s *Store) Load(dir string) (Meta, error) {
	var meta Meta
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return meta, fmt.Errorf("reading meta: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decoding meta: %w", err)
	}

	name := ModelFile
	if meta.Compressed {
		name = CompressedModelFile
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return meta, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	var r io.Reader = f
	if meta.Compressed {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return meta, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	s.Clear()
	if err := s.ReadJSONL(r); err != nil {
		return meta, err
	}
	return meta, nil
}
