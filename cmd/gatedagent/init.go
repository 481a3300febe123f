package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vinayprograms/gatedagent/internal/config"
)

// Run writes the default config, creating the docs and trace directories it
// names relative to the config file.
func (c *InitCmd) Run(g *Globals) error {
	cfg := config.New()
	if c.Provider != "" {
		cfg.Search.Provider = c.Provider
		cfg.Search.APIKeyEnv = config.DefaultAPIKeyEnv(c.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.WriteFile(c.Path, c.Force); err != nil {
		return err
	}

	base := filepath.Dir(c.Path)
	for _, dir := range []string{cfg.Retrieval.DocsDir, cfg.Trace.Dir} {
		if dir == "" || filepath.IsAbs(dir) {
			continue
		}
		if err := os.MkdirAll(filepath.Join(base, dir), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	fmt.Printf("wrote %s\n", c.Path)
	if key := cfg.LLM.APIKeyEnv; os.Getenv(key) == "" {
		fmt.Printf("set %s (or add it to .env) before running queries\n", key)
	}
	return nil
}
