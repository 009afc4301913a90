package source

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/agenthands/graphmerge/internal/core/model"
)

// FileSource reads a YAML (or JSON) list of records.
type FileSource struct {
	path    string
	records []model.RawRecord
	loaded  bool
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type recordFile struct {
	Records []model.RawRecord `yaml:"records"`
}

func (f *FileSource) load() error {
	if f.loaded {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read record file '%s': %w", f.path, err)
	}
	records, err := ParseRecords(data)
	if err != nil {
		return fmt.Errorf("failed to parse record file '%s': %w", f.path, err)
	}
	f.records = records
	f.loaded = true
	return nil
}

// ParseRecords accepts either a bare list or a document with a records key.
// JSON input parses as YAML.
func ParseRecords(data []byte) ([]model.RawRecord, error) {
	var list []model.RawRecord
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc recordFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Records, nil
}

func (f *FileSource) Records(ctx context.Context, entityType model.EntityType) ([]model.RawRecord, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	var out []model.RawRecord
	for _, r := range f.records {
		if r.EntityType == entityType {
			out = append(out, r)
		}
	}
	return out, nil
}
