package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/driftline/driftsync/internal/entity"
)

// LoadEntities reads an entity fixture file: a YAML or JSON list of
// records, as exported from the source system or produced by a migration
// unit. Format is chosen by extension (.yaml/.yml/.json).
func LoadEntities(path string) ([]entity.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("read entities file %s", path), Err: err}
	}

	var raw []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("parse %s", path), Err: err}
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("parse %s", path), Err: err}
		}
	default:
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("unsupported entities file extension %q", filepath.Ext(path))}
	}

	records := make([]entity.Record, len(raw))
	for i, m := range raw {
		records[i] = entity.Record(m)
	}
	return records, nil
}
