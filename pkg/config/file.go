package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"settings-bridge/pkg/launcher"
)

// File is the optional YAML configuration file.
//
//	channel: com.example.app/system_settings
//	notifyFallback: true
//	commands:
//	  wifi:
//	    - name: gnome-control-center
//	      args: [wifi]
//	  general:
//	    - name: gnome-control-center
type File struct {
	Channel        string                        `yaml:"channel"`
	NotifyFallback *bool                         `yaml:"notifyFallback"`
	Commands       map[string][]launcher.Command `yaml:"commands"`
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if _, err := f.Overrides(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Overrides converts the commands section to launcher overrides.
func (f *File) Overrides() (map[launcher.Screen][]launcher.Command, error) {
	out := make(map[launcher.Screen][]launcher.Command, len(f.Commands))
	for key, cmds := range f.Commands {
		screen, err := launcher.ParseScreen(key)
		if err != nil {
			return nil, fmt.Errorf("config commands: %w", err)
		}
		for i, c := range cmds {
			if c.Name == "" {
				return nil, fmt.Errorf("config commands.%s[%d]: name is required", key, i)
			}
		}
		out[screen] = cmds
	}
	return out, nil
}
