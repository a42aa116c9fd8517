// Package confkit holds the small amount of config plumbing the agent needs:
// path resolution relative to the main config file, and .env loading.
package confkit

import (
	"os"
	"path/filepath"
)

// ResolvePath resolves a companion config file named in the main config.
// Environment variables expand first; absolute paths win; anything else is
// taken relative to the main config's directory, so `LLMConfFile: llm.yaml`
// next to `etc/agent.yaml` resolves to `etc/llm.yaml` regardless of cwd.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
