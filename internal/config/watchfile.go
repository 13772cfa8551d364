package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/condition-oracle/internal/domain"
	"gopkg.in/yaml.v3"
)

// WatchFile declares the initial flags and the watched expressions.
//
//	flags:
//	  gallery_open: true
//	  maintenance: false
//	watches:
//	  - name: evening_show
//	    expr: gallery_open AND nighttime AND hour18_23
type WatchFile struct {
	Flags   map[string]bool `yaml:"flags"`
	Watches []domain.Watch  `yaml:"watches"`
}

// LoadWatchFile reads and validates a watch file.
func LoadWatchFile(path string) (*WatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watch file: %w", err)
	}
	return ParseWatchFile(data)
}

// ParseWatchFile decodes YAML watch definitions. Watch names must be unique
// and every watch needs an expression.
func ParseWatchFile(data []byte) (*WatchFile, error) {
	var wf WatchFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse watch file: %w", err)
	}

	seen := make(map[string]bool, len(wf.Watches))
	for i, w := range wf.Watches {
		if strings.TrimSpace(w.Name) == "" {
			return nil, fmt.Errorf("watch %d: name is required", i)
		}
		if strings.TrimSpace(w.Expression) == "" {
			return nil, fmt.Errorf("watch %q: expr is required", w.Name)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("watch %q: duplicate name", w.Name)
		}
		seen[w.Name] = true
	}
	if len(wf.Flags) == 0 && len(wf.Watches) == 0 {
		return nil, errors.New("watch file declares no flags and no watches")
	}
	return &wf, nil
}
