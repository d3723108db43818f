package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("valid roster", func(t *testing.T) {
		path := writeRoster(t, `
students:
  - id: "42"
    name: Emma Jensen
    folder_name: emma-jensen
  - id: "43"
    name: Oliver Nielsen
    folder_name: oliver-nielsen
`)

		r, err := Load(path)
		require.NoError(t, err)
		require.Len(t, r.Students, 2)
		assert.Equal(t, "42", r.Students[0].ID)
		assert.Equal(t, "Emma Jensen", r.Students[0].Name)
		assert.Equal(t, "emma-jensen", r.Students[0].FolderName)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("empty roster", func(t *testing.T) {
		_, err := Load(writeRoster(t, `students: []`))
		require.Error(t, err)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := Load(writeRoster(t, `
students:
  - id: "42"
    name: Emma Jensen
  - id: "42"
    name: Oliver Nielsen
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("id with separator", func(t *testing.T) {
		_, err := Load(writeRoster(t, `
students:
  - id: "4:2"
    name: Emma Jensen
`))
		require.Error(t, err)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := Load(writeRoster(t, `
students:
  - id: "42"
`))
		require.Error(t, err)
	})
}
