package decompose

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// strategyFile is the on-disk format for additional fixed pipelines:
//
//	strategies:
//	  archive_rotation:
//	    stages:
//	      - id: scan
//	        type: scan_archives
//	      - id: rotate
//	        depends_on: [scan]
//	        requirements:
//	          capability: storage
type strategyFile struct {
	Strategies map[string]pipelineSpec `yaml:"strategies"`
}

type pipelineSpec struct {
	Stages []stageSpec `yaml:"stages"`
}

type stageSpec struct {
	ID           string         `yaml:"id"`
	Type         string         `yaml:"type"`
	DependsOn    []string       `yaml:"depends_on"`
	Priority     int            `yaml:"priority"`
	EstDuration  float64        `yaml:"estimated_duration"`
	Requirements map[string]any `yaml:"requirements"`
}

// LoadStrategyFile reads fixed pipeline strategies from a YAML file and
// registers each under its name. Returns the number of strategies installed.
func (d *Decomposer) LoadStrategyFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading strategy file: %w", err)
	}

	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parsing strategy file %s: %w", path, err)
	}

	installed := 0
	for name, spec := range file.Strategies {
		stages, err := validateStages(name, spec.Stages)
		if err != nil {
			return installed, err
		}
		d.Register(name, fixedPipeline(stages))
		installed++
		d.logger.Info("strategy loaded from file",
			"task_type", name, "stages", len(stages), "path", path)
	}
	return installed, nil
}

// validateStages checks stage well-formedness and fills type defaults.
func validateStages(name string, stages []stageSpec) ([]stageSpec, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("strategy %q has no stages", name)
	}
	seen := make(map[string]struct{}, len(stages))
	for i, stage := range stages {
		if stage.ID == "" {
			return nil, fmt.Errorf("strategy %q: stage %d has no id", name, i)
		}
		if _, dup := seen[stage.ID]; dup {
			return nil, fmt.Errorf("strategy %q: duplicate stage id %q", name, stage.ID)
		}
		seen[stage.ID] = struct{}{}
		if stage.Type == "" {
			stages[i].Type = stage.ID
		}
	}
	return stages, nil
}

// fixedPipeline builds a Strategy producing the configured stages with the
// caller's input attached to each.
func fixedPipeline(stages []stageSpec) Strategy {
	return func(input map[string]any) []Subtask {
		subtasks := make([]Subtask, 0, len(stages))
		for _, stage := range stages {
			subtasks = append(subtasks, Subtask{
				ID:           stage.ID,
				Type:         stage.Type,
				Input:        input,
				Requirements: stage.Requirements,
				DependsOn:    append([]string(nil), stage.DependsOn...),
				Priority:     stage.Priority,
				EstDuration:  stage.EstDuration,
			})
		}
		return subtasks
	}
}

// WatchStrategyFile reloads the strategy file whenever it changes on disk.
// The parent directory is watched rather than the file itself so that
// editors replacing the file atomically still trigger a reload. Returns a
// cancel function that stops the watcher.
func (d *Decomposer) WatchStrategyFile(path string) (cancel func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating strategy watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching strategy directory: %w", err)
	}

	base := filepath.Base(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if _, err := d.LoadStrategyFile(path); err != nil {
					d.logger.Warn("strategy file reload failed",
						"path", path, "error", err.Error())
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("strategy watcher error", "error", watchErr.Error())
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
