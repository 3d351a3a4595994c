package clip

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noClipboard(string) error { return errors.New("no clipboard") }

func TestCopy_Native(t *testing.T) {
	var got string
	c := &Copier{Native: func(s string) error { got = s; return nil }}

	res, err := c.Copy("# Neon Requiem")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, res.Method)
	assert.Equal(t, "# Neon Requiem", got)
}

func TestCopy_OSC52(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("STY", "")
	var buf bytes.Buffer
	c := &Copier{Native: noClipboard, Terminal: &buf}

	res, err := c.Copy("kira")
	require.NoError(t, err)
	assert.Equal(t, MethodOSC52, res.Method)
	assert.Contains(t, buf.String(), base64.StdEncoding.EncodeToString([]byte("kira")))
}

func TestCopy_FileFallback(t *testing.T) {
	dir := t.TempDir()
	c := &Copier{Native: noClipboard, TempDir: dir}

	res, err := c.Copy("rain on the arcology")
	require.NoError(t, err)
	assert.Equal(t, MethodFile, res.Method)
	assert.True(t, strings.HasPrefix(res.Path, dir))

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "rain on the arcology", string(data))
}

func TestCopy_OversizedSkipsTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := &Copier{Native: noClipboard, Terminal: &buf, TempDir: t.TempDir()}

	res, err := c.Copy(strings.Repeat("x", osc52Limit+1))
	require.NoError(t, err)
	assert.Equal(t, MethodFile, res.Method)
	assert.Zero(t, buf.Len())
}

func TestCopy_Empty(t *testing.T) {
	_, err := (&Copier{}).Copy("")
	assert.Error(t, err)
}
