package classify

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleFile is the schema of an operator-supplied trigger rule file. Patterns
// are appended to the named built-in category; category evaluation order is
// fixed and cannot be changed from files.
type RuleFile struct {
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// LoadRules loads extra trigger patterns from YAML files in dir and returns a
// classifier carrying built-ins plus the extensions. A missing directory is
// not an error. Files naming an unknown category or carrying a bad pattern
// are skipped with a warning.
func LoadRules(dir string, logger *slog.Logger) (*IntentClassifier, error) {
	ic := NewIntentClassifier()
	if dir == "" {
		return ic, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("trigger rules directory does not exist, using built-ins", "dir", dir)
		return ic, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read rule file", "path", path, "err", err)
			continue
		}

		var rf RuleFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			logger.Warn("cannot parse rule file", "path", path, "err", err)
			continue
		}

		if !ic.extend(rf, logger) {
			logger.Warn("rule file names unknown category", "path", path, "category", rf.Category)
			continue
		}
		logger.Info("loaded trigger rules", "category", rf.Category, "patterns", len(rf.Patterns), "path", path)
	}

	return ic, nil
}

// extend appends compiled patterns to the matching category. Returns false
// when the category is not a built-in.
func (ic *IntentClassifier) extend(rf RuleFile, logger *slog.Logger) bool {
	for i := range ic.categories {
		if ic.categories[i].Name != rf.Category {
			continue
		}
		for _, expr := range rf.Patterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				logger.Warn("invalid trigger pattern", "category", rf.Category, "pattern", expr, "err", err)
				continue
			}
			ic.categories[i].Patterns = append(ic.categories[i].Patterns, re)
		}
		return true
	}
	return false
}
