package main

import "fmt"

// Run prints version information.
func (c *VersionCmd) Run(g *Globals) error {
	fmt.Printf("gatedagent version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
