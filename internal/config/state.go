package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type yamlState struct {
	NowTask *int64 `yaml:"now_task,omitempty"`
}

// StateFile persists small pieces of UI state between runs.
type StateFile struct {
	path string
}

// NewStateFile returns a StateFile backed by path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the file location.
func (s *StateFile) Path() string {
	return s.path
}

// LoadNowTask returns the saved now task id. A missing file means none.
func (s *StateFile) LoadNowTask() (*int64, error) {
	state, err := s.read()
	if err != nil {
		return nil, err
	}
	return state.NowTask, nil
}

// SaveNowTask stores id as the now task. A nil id removes the key.
func (s *StateFile) SaveNowTask(id *int64) error {
	state, err := s.read()
	if err != nil {
		return err
	}
	state.NowTask = id
	return s.write(state)
}

func (s *StateFile) read() (yamlState, error) {
	var state yamlState
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &state); err != nil {
		return yamlState{}, fmt.Errorf("failed to parse state file: %w", err)
	}
	return state, nil
}

func (s *StateFile) write(state yamlState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	raw, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "state-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(raw); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
