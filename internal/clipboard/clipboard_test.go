package clipboard

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolsPerPlatform(t *testing.T) {
	assert.Equal(t, "pbcopy", Tools("darwin")[0].Name)
	assert.Equal(t, "clip", Tools("windows")[0].Name)
	assert.Len(t, Tools("linux"), 3)
	assert.Empty(t, Tools("plan9"))
}

func TestCopyWithoutToolReportsUnavailable(t *testing.T) {
	c := &Copier{goos: "linux", lookPath: func(string) (string, error) { return "", exec.ErrNotFound }}
	assert.False(t, c.Available())

	err := c.Copy(context.Background(), "text")
	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Contains(t, err.Error(), "xclip")

	c.goos = "plan9"
	assert.Contains(t, c.Copy(context.Background(), "x").Error(), "plan9")
}

func TestToolOrder(t *testing.T) {
	installed := map[string]bool{"xsel": true, "xclip": true}
	c := &Copier{goos: "linux", lookPath: func(name string) (string, error) {
		if installed[name] {
			return "/usr/bin/" + name, nil
		}
		return "", exec.ErrNotFound
	}}

	tool, ok := c.tool()
	require.True(t, ok)
	assert.Equal(t, "xclip", tool.Name)
	assert.Equal(t, []string{"-selection", "clipboard"}, tool.Args)
}
