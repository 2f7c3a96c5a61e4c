package admin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailFileLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringsnap.log")
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("line ")
		b.WriteByte(byte('a' + i%26))
		b.WriteString("\r\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	lines, err := tailFileLines(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line v", "line w", "line x"}, lines)

	lines, err = tailFileLines(path, 500)
	require.NoError(t, err)
	assert.Len(t, lines, 50)

	_, err = tailFileLines(filepath.Join(t.TempDir(), "missing.log"), 10)
	assert.Error(t, err)
}

func TestLogFollower_AppendAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringsnap.log")
	require.NoError(t, os.WriteFile(path, []byte("old line\n"), 0o600))

	f := newLogFollower(path)
	assert.Empty(t, f.poll(), "existing content is not replayed")

	appendFile(t, path, "first\nsec")
	assert.Equal(t, []string{"first"}, f.poll())

	appendFile(t, path, "ond\n")
	assert.Equal(t, []string{"second"}, f.poll(), "partial lines are carried over")

	require.NoError(t, os.WriteFile(path, []byte("rotated\n"), 0o600))
	assert.Equal(t, []string{"rotated"}, f.poll())
}

func TestSplitCompleteLines(t *testing.T) {
	lines, carry := splitCompleteLines([]byte("a\nb\nc"))
	require.Len(t, lines, 2)
	assert.Equal(t, "c", string(carry))

	lines, carry = splitCompleteLines([]byte("a\n"))
	require.Len(t, lines, 1)
	assert.Empty(t, carry)
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
