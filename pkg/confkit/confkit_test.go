package confkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		file     string
		expected string
	}{
		{"absolute path", "/base/dir", "/absolute/file.yaml", "/absolute/file.yaml"},
		{"relative path", "/base/dir", "llm.yaml", "/base/dir/llm.yaml"},
		{"nested relative", "/base", "etc/llm.yaml", "/base/etc/llm.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolvePath(tt.base, tt.file))
		})
	}
}

func TestResolvePathExpandsEnv(t *testing.T) {
	t.Setenv("CONF_DIR", "/conf")
	assert.Equal(t, "/conf/file.yaml", ResolvePath("/base", "$CONF_DIR/file.yaml"))
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
}

func TestFindEnvFileInStartDir(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, ".env"))

	assert.Equal(t, filepath.Join(dir, ".env"), findEnvFile(dir))
}

func TestFindEnvFileWalksUp(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, ".env"))
	nested := filepath.Join(root, "cmd", "agent")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, filepath.Join(root, ".env"), findEnvFile(nested))
}

func TestFindEnvFileStopsAtModuleRoot(t *testing.T) {
	parent := t.TempDir()
	touch(t, filepath.Join(parent, ".env"))
	root := filepath.Join(parent, "repo")
	touch(t, filepath.Join(root, "go.mod"))

	// The module root has no .env; the search must not escape past it.
	assert.Equal(t, "", findEnvFile(root))
}

func TestFindEnvFileNothingFound(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "go.mod"))
	assert.Equal(t, "", findEnvFile(dir))
}
