package file

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/samueltorres/r8views/pkg/callers"
)

// StateStorage keeps every caller in one JSON document.
type StateStorage struct {
	path string
}

func NewStateStorage(path string) *StateStorage {
	return &StateStorage{path: path}
}

func (s *StateStorage) Load(ctx context.Context) (map[string]*callers.Caller, error) {
	data, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*callers.Caller{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading state file")
	}

	out := make(map[string]*callers.Caller)
	if len(data) == 0 {
		return out, nil
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "error decoding state file")
	}
	return out, nil
}

// Save writes to a temporary file next to the target and renames it, so a
// crash never leaves a truncated document behind.
func (s *StateStorage) Save(ctx context.Context, state map[string]*callers.Caller) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error encoding state")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating state directory")
	}

	tmp, err := ioutil.TempFile(dir, filepath.Base(s.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "error creating temporary state file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "error writing state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "error closing state file")
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, "error replacing state file")
	}
	return nil
}
