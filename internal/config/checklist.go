package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultChecklist is the audit checklist used when no TODO file is configured
var DefaultChecklist = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/etc/group",
	"/etc/hosts",
	"/etc/sudoers*",
	"/etc/ssh",
	"/etc/login*",
	"/etc/default/*",
	"/etc/systemd*",
	"/etc/init.d/",
	"/etc/cron*",
	"/etc/profile*",
	"services: validate credentials",
	"services: check config",
	"services: check file perms",
	"services: check port bindings to public ips",
	"services: check service auth settings",
	"services: check for service accounts",
}

type checklistFile struct {
	Todos []string `yaml:"todos"`
}

// LoadChecklist reads the TODO checklist from a YAML file of the form
//
//	todos:
//	  - /etc/passwd
//	  - "services: check config"
//
// An empty path returns a copy of DefaultChecklist. Blank and duplicate
// items are dropped.
func LoadChecklist(path string) ([]string, error) {
	if path == "" {
		return append([]string(nil), DefaultChecklist...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist: %w", err)
	}

	var file checklistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse checklist: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Todos))
	todos := make([]string, 0, len(file.Todos))
	for _, item := range file.Todos {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		todos = append(todos, item)
	}

	return todos, nil
}
