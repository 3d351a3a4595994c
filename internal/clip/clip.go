// Package clip copies generated stories to the user's clipboard.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the text copyable.
type Method string

const (
	MethodNative Method = "native" // OS clipboard
	MethodOSC52  Method = "osc52"  // terminal escape sequence
	MethodFile   Method = "file"   // written to a file instead
)

// Result reports how a copy was delivered.
type Result struct {
	Method Method
	Path   string // set for MethodFile
}

// osc52Limit is the largest payload sent through the terminal.
const osc52Limit = 100_000

// Copier tries the native clipboard, then OSC52, then a file in TempDir.
type Copier struct {
	Native   func(string) error
	Terminal io.Writer
	TempDir  string
}

// New returns a Copier writing OSC52 sequences to stderr when it is a
// terminal.
func New() *Copier {
	c := &Copier{Native: atotto.WriteAll}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		c.Terminal = os.Stderr
	}
	return c
}

// Copy makes text available for pasting.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if c.Native != nil && c.Native(text) == nil {
		return Result{Method: MethodNative}, nil
	}
	if err := c.osc52(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	f, err := os.CreateTemp(c.TempDir, "z88-story-*.md")
	if err != nil {
		return Result{}, fmt.Errorf("creating story file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return Result{}, fmt.Errorf("writing story file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, err
	}
	return Result{Method: MethodFile, Path: f.Name()}, nil
}

func (c *Copier) osc52(text string) error {
	if c.Terminal == nil {
		return errors.New("no terminal")
	}
	if len(text) > osc52Limit {
		return fmt.Errorf("story too large for OSC52 (%d bytes)", len(text))
	}
	seq := osc52.New(text)
	switch {
	case os.Getenv("TMUX") != "":
		seq = seq.Tmux()
	case os.Getenv("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.Terminal)
	return err
}
