// Package clipboard copies rendered document text to the system clipboard
// through the platform's clipboard utility.
package clipboard

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Tool is one clipboard command line
type Tool struct {
	Name string
	Args []string
}

// UnavailableError reports that no clipboard tool could be found
type UnavailableError struct {
	OS string
}

func (e *UnavailableError) Error() string {
	if e.OS == "linux" {
		return "no clipboard utility found; install xclip, xsel or wl-clipboard"
	}
	return fmt.Sprintf("clipboard not supported on %s", e.OS)
}

// Tools lists the candidate commands for goos in the order they are tried
func Tools(goos string) []Tool {
	switch goos {
	case "darwin":
		return []Tool{{Name: "pbcopy"}}
	case "windows":
		return []Tool{{Name: "clip"}}
	case "linux", "freebsd", "openbsd":
		return []Tool{
			{Name: "wl-copy"},
			{Name: "xclip", Args: []string{"-selection", "clipboard"}},
			{Name: "xsel", Args: []string{"--clipboard", "--input"}},
		}
	}
	return nil
}

// Copier writes text to the clipboard
type Copier struct {
	goos     string
	lookPath func(string) (string, error)
}

// New returns a copier for the running platform
func New() *Copier {
	return &Copier{goos: runtime.GOOS, lookPath: exec.LookPath}
}

// Available reports whether any clipboard tool is installed
func (c *Copier) Available() bool {
	_, ok := c.tool()
	return ok
}

func (c *Copier) tool() (Tool, bool) {
	for _, t := range Tools(c.goos) {
		if _, err := c.lookPath(t.Name); err == nil {
			return t, true
		}
	}
	return Tool{}, false
}

// Copy pipes text into the first installed tool
func (c *Copier) Copy(ctx context.Context, text string) error {
	t, ok := c.tool()
	if !ok {
		return &UnavailableError{OS: c.goos}
	}
	cmd := exec.CommandContext(ctx, t.Name, t.Args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", t.Name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
