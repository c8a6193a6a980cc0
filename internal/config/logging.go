package config

import "sort"

// LoggingConfig is the logging section of kwforward.yaml. kwforward is silent
// unless debug_mode is set, so decorating a script from the CLI or the
// watcher prints only the command's own output.
type LoggingConfig struct {
	// Level is the lowest zap level written once debug_mode is on.
	Level string `yaml:"level" json:"level,omitempty"`
	// Format selects zap's console encoder ("text") or its JSON encoder.
	Format string `yaml:"format" json:"format,omitempty"`
	// File receives log output instead of stderr.
	File string `yaml:"file" json:"file,omitempty"`
	// DebugMode turns logging on; -v on the command line sets it.
	DebugMode bool `yaml:"debug_mode" json:"debug_mode,omitempty"`
	// Categories switches single categories (boot, rewrite, script,
	// forward, watch, cli) off or back on.
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`
}

// IsCategoryEnabled reports whether entries for category are written. Nothing
// is written without debug_mode; with it, a category logs unless categories
// maps it to false.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	enabled, listed := c.Categories[category]
	return !listed || enabled
}

// DisabledCategories lists the categories switched off, sorted.
func (c *LoggingConfig) DisabledCategories() []string {
	var off []string
	for name, enabled := range c.Categories {
		if !enabled {
			off = append(off, name)
		}
	}
	sort.Strings(off)
	return off
}
