package workflow

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// runnerFileNames are skipped by the directory scan; they hold runner
// config, not a workflow document.
var runnerFileNames = map[string]bool{
	"runner.yaml": true,
	"runner.yml":  true,
}

// LoadDirectory scans dir for `*.yaml`/`*.yml` entries, skipping the runner
// config file and any subdirectories, and parses each as a Definition.
// Results are sorted by file name for deterministic downstream DAG builds.
func LoadDirectory(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, stageerr.Wrap(stageerr.KindConfiguration, stageerr.CodeParseError, "workflow.load_directory",
			"failed to read directory: "+dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isYAML(name) || runnerFileNames[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]*Definition, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, stageerr.Wrap(stageerr.KindConfiguration, stageerr.CodeParseError, "workflow.load_directory",
				"failed to read file: "+path, err)
		}
		def, err := ParseDefinition(data, path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, nil
}

func isYAML(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
