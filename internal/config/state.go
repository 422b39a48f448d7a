package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/vibeus/cros-session-deriver/internal/model"
)

// LoadProcessorState reads the --state JSON file. A missing path (the flag
// was omitted) yields the zero value: an empty bookmark, meaning "select
// every event" on the first run.
func LoadProcessorState(path string) (model.ProcessorState, error) {
	if path == "" {
		return model.ProcessorState{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.ProcessorState{}, fmt.Errorf("reading processor state %s: %w", path, err)
	}
	var st model.ProcessorState
	if err := json.Unmarshal(raw, &st); err != nil {
		return model.ProcessorState{}, fmt.Errorf("parsing processor state %s: %w", path, err)
	}
	return st, nil
}

// WriteProcessorState writes the new processor state as the single
// structured JSON record spec §6 mandates on stdout.
func WriteProcessorState(w io.Writer, st model.ProcessorState) error {
	enc := json.NewEncoder(w)
	return enc.Encode(st)
}
