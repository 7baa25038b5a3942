package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pactown/pactown/pkg/types"
)

// StateFileName is written inside each sandbox so a fresh pactown
// process can reconcile with services launched by an earlier one.
const StateFileName = ".state.json"

// StateFile is the persisted lifecycle record of one sandbox.
type StateFile struct {
	PID       int                `json:"pid,omitempty"`
	Port      int                `json:"port,omitempty"`
	StartedAt time.Time          `json:"started_at,omitempty"`
	State     types.SandboxState `json:"state"`
	EnvHash   string             `json:"env_hash,omitempty"`
}

func writeState(dir string, st StateFile) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StateFileName), append(data, '\n'), 0644)
}

// ReadState loads the state file of a sandbox directory. A missing
// file returns os.ErrNotExist.
func ReadState(dir string) (*StateFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err != nil {
		return nil, err
	}
	var st StateFile
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
