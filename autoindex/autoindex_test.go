package autoindex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FilesAndDirectories(t *testing.T) {
	t.Parallel()

	body := []byte(`[
		{"name": "sub", "type": "directory", "mtime": "Mon, 02 Jan 2006 15:04:05 GMT", "size": 0},
		{"name": "readme.txt", "type": "file", "mtime": "Mon, 02 Jan 2006 15:04:05 GMT", "size": 42}
	]`)

	now := time.Unix(1000, 0)
	entry, err := Parse(body, now)
	require.NoError(t, err)

	require.Len(t, entry.Entries, 2)
	assert.True(t, entry.Entries["sub"].IsDir())
	assert.False(t, entry.Entries["readme.txt"].IsDir())
	assert.EqualValues(t, 42, entry.Entries["readme.txt"].Size)
	assert.Equal(t, now, entry.FetchTime)
}

func TestParse_DuplicateNamesLastWins(t *testing.T) {
	t.Parallel()

	body := []byte(`[
		{"name": "f", "type": "file", "mtime": "Mon, 02 Jan 2006 15:04:05 GMT", "size": 1},
		{"name": "f", "type": "file", "mtime": "Mon, 02 Jan 2006 15:04:05 GMT", "size": 2}
	]`)

	entry, err := Parse(body, time.Now())
	require.NoError(t, err)
	require.Len(t, entry.Entries, 1)
	assert.EqualValues(t, 2, entry.Entries["f"].Size)
}

func TestParse_MalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`not json`), time.Now())
	assert.Error(t, err)
}

func TestParse_NonArrayShape(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"name": "f"}`), time.Now())
	assert.Error(t, err)
}

func TestParse_StripsBasenamesContainingSlash(t *testing.T) {
	t.Parallel()

	body := []byte(`[
		{"name": "a/b", "type": "file", "mtime": "Mon, 02 Jan 2006 15:04:05 GMT", "size": 1},
		{"name": "ok", "type": "file", "mtime": "Mon, 02 Jan 2006 15:04:05 GMT", "size": 1}
	]`)

	entry, err := Parse(body, time.Now())
	require.NoError(t, err)
	assert.Len(t, entry.Entries, 1)
	_, ok := entry.Entries["ok"]
	assert.True(t, ok)
}

func TestParse_InvalidMtime(t *testing.T) {
	t.Parallel()

	body := []byte(`[{"name": "f", "type": "file", "mtime": "garbage", "size": 1}]`)
	_, err := Parse(body, time.Now())
	assert.Error(t, err)
}
