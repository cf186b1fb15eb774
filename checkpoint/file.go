package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/stategraph/core"
)

// FileStore persists checkpoints as JSON documents, one file per checkpoint,
// under a single directory. Saves write to a temp file first and rename into
// place so a crash never leaves a torn checkpoint behind.
//
// Channel values must round-trip through encoding/json; notably numeric
// values come back as float64 unless node code uses json-stable types.
type FileStore struct {
	dir string
}

// NewFileStore constructs a file-backed checkpoint store rooted at dir,
// creating the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &core.CheckpointIOError{Op: "save", Err: fmt.Errorf("create dir %s: %w", dir, err)}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the checkpoint to disk, assigning an id if absent.
func (s *FileStore) Save(_ context.Context, checkpoint *core.Checkpoint) (string, error) {
	if checkpoint == nil {
		return "", &core.CheckpointIOError{Op: "save", Err: fmt.Errorf("checkpoint is nil")}
	}
	clone := checkpoint.Clone()
	if clone.ID == "" {
		clone.ID = core.NewID()
	}

	data, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return "", &core.CheckpointIOError{Op: "save", Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return "", &core.CheckpointIOError{Op: "save", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &core.CheckpointIOError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &core.CheckpointIOError{Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, s.path(clone.ID)); err != nil {
		os.Remove(tmpName)
		return "", &core.CheckpointIOError{Op: "save", Err: err}
	}
	return clone.ID, nil
}

// Load reads the checkpoint stored under id.
func (s *FileStore) Load(_ context.Context, id string) (*core.Checkpoint, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint %s: %w", id, core.ErrCheckpointNotFound)
		}
		return nil, &core.CheckpointIOError{Op: "load", Err: err}
	}
	var cp core.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &core.CheckpointIOError{Op: "load", Err: fmt.Errorf("decode %s: %w", id, err)}
	}
	return &cp, nil
}

// Latest returns the checkpoint of a run with the highest step, breaking
// ties by save timestamp.
func (s *FileStore) Latest(ctx context.Context, runID string) (*core.Checkpoint, error) {
	all, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, core.ErrCheckpointNotFound)
	}
	return all[len(all)-1], nil
}

// List returns all checkpoints of a run ordered by step, then timestamp.
func (s *FileStore) List(_ context.Context, runID string) ([]*core.Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &core.CheckpointIOError{Op: "load", Err: err}
	}
	var out []*core.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, &core.CheckpointIOError{Op: "load", Err: err}
		}
		var cp core.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, &core.CheckpointIOError{Op: "load", Err: fmt.Errorf("decode %s: %w", entry.Name(), err)}
		}
		if cp.RunID == runID {
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
