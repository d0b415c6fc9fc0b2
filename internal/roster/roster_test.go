package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
staff:
  - code: Staff-01
    name: Jane Doe
    aliases: ["Jane D", "+44 7700 900123"]
    email: jane@example.com
  - code: " Staff-02 "
`), 0o644))

	staff, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, staff, 2)

	assert.Equal(t, "Staff-01", staff[0].Code)
	assert.Equal(t, "Jane Doe", staff[0].Name)
	assert.Equal(t, []string{"Jane D", "+44 7700 900123"}, staff[0].Aliases)
	assert.Equal(t, "jane@example.com", staff[0].Email)
	assert.True(t, staff[0].Active)

	assert.Equal(t, "Staff-02", staff[1].Code)
	assert.Equal(t, "Staff-02", staff[1].Name, "name defaults to the code")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "staff: [", "decode yaml"},
		{"missing code", "staff:\n  - name: x\n", "no code"},
		{"duplicate", "staff:\n  - code: A\n  - code: A\n", "duplicate code"},
		{"comma alias", "staff:\n  - code: A\n    aliases: [\"x,y\"]\n", "contains a comma"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	staff, err := Parse([]byte("staff: []\n"))
	require.NoError(t, err)
	assert.Empty(t, staff)
}
