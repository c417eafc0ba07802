package config

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Target describes one artifact to fetch: which workflow of which
// repository, and where to unpack the result.
type Target struct {
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	Workflow string `yaml:"workflow"` // workflow display name, exact match
	Artifact string `yaml:"artifact"` // optional artifact name pin
	Dest     string `yaml:"dest"`     // defaults to "dist"
	Schedule string `yaml:"schedule"` // optional 5-field cron (watch mode)
}

// Key uniquely identifies a target for state tracking and status reporting.
func (t Target) Key() string {
	key := fmt.Sprintf("%s/%s/%s", t.Owner, t.Repo, t.Workflow)
	if t.Artifact != "" {
		key += "/" + t.Artifact
	}
	return key
}

type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads and validates the YAML targets file.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
	}

	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}

	// 5-field standard cron (no seconds)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	for i := range file.Targets {
		t := &file.Targets[i]
		if t.Owner == "" || t.Repo == "" {
			return nil, fmt.Errorf("target %d: owner and repo are required", i)
		}
		if t.Workflow == "" {
			return nil, fmt.Errorf("target %d (%s/%s): workflow is required", i, t.Owner, t.Repo)
		}
		if t.Dest == "" {
			t.Dest = "dist"
		}
		if t.Schedule != "" {
			if _, err := parser.Parse(t.Schedule); err != nil {
				return nil, fmt.Errorf("target %d (%s): invalid schedule %q: %w", i, t.Key(), t.Schedule, err)
			}
		}
	}

	return file.Targets, nil
}
