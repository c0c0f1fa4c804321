package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fillScope/internal/model"
)

// WriteJSONFile writes v as indented JSON via a temp file and rename, so
// readers never observe a partial file.
func WriteJSONFile(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s tmp: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadJSONFile decodes path into v. ok is false when the file does not exist.
func ReadJSONFile(path string, v interface{}) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// SummaryFileName names the summary file after the window start date.
func SummaryFileName(window model.TimeWindow) string {
	return fmt.Sprintf("fills_%s_summary.json", window.StartDate())
}

// WriteHead persists the head snapshot.
func WriteHead(path string, head model.HeadSnapshot) error {
	return WriteJSONFile(path, head)
}

// ReadHead loads a head snapshot written by WriteHead.
func ReadHead(path string) (model.HeadSnapshot, error) {
	var head model.HeadSnapshot
	ok, err := ReadJSONFile(path, &head)
	if err != nil {
		return model.HeadSnapshot{}, err
	}
	if !ok {
		return model.HeadSnapshot{}, fmt.Errorf("head snapshot %s not found", path)
	}
	return head, nil
}

// WriteBlockRange persists the resolve phase output.
func WriteBlockRange(path string, file model.BlockRangeFile) error {
	return WriteJSONFile(path, file)
}

// ReadBlockRange loads and validates a block-range file.
func ReadBlockRange(path string) (model.BlockRangeFile, error) {
	var file model.BlockRangeFile
	ok, err := ReadJSONFile(path, &file)
	if err != nil {
		return model.BlockRangeFile{}, err
	}
	if !ok {
		return model.BlockRangeFile{}, fmt.Errorf("block range file %s not found", path)
	}
	if err := file.Range().Validate(); err != nil {
		return model.BlockRangeFile{}, fmt.Errorf("block range file %s: %w", path, err)
	}
	return file, nil
}

// FileSink writes the run summary as JSON. With Path empty the file is
// placed in Dir and named after the window start date.
type FileSink struct {
	Dir  string
	Path string
}

func (s *FileSink) Name() string {
	return "file"
}

// Target returns the summary path for result.
func (s *FileSink) Target(result model.AggregateResult) string {
	if s.Path != "" {
		return s.Path
	}
	return filepath.Join(s.Dir, SummaryFileName(result.Window))
}

func (s *FileSink) Write(ctx context.Context, result model.AggregateResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteJSONFile(s.Target(result), model.NewSummary(result))
}
