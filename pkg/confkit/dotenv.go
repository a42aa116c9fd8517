package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads environment variables from the nearest .env, searching
// from the working directory up to the module root (go.mod or .git). The first
// call wins; later calls are no-ops. Existing environment variables are left
// untouched unless DOTENV_OVERLOAD=1. ENV_FILE pins an explicit file;
// NO_DOTENV=1 disables loading entirely.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}

	path := os.Getenv("ENV_FILE")
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return
		}
		path = findEnvFile(wd)
	}
	if path == "" {
		return
	}

	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		_ = godotenv.Overload(path)
		return
	}
	_ = godotenv.Load(path)
}

// findEnvFile returns the closest .env walking up from start, stopping at the
// module root (a directory holding go.mod or .git) or after a bounded number
// of levels.
func findEnvFile(start string) string {
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, ".env")
		if fileExists(candidate) {
			return candidate
		}
		if fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git")) {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return ""
}
