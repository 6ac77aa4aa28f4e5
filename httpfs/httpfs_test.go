package httpfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brettbedarf/httpdirfs-go/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(t *testing.T, baseURL string, ttl time.Duration) *Filesystem {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.URL = baseURL
	cfg.MetaCacheTTL = ttl
	fs, err := NewFilesystem(cfg)
	require.NoError(t, err)
	t.Cleanup(fs.Close)
	return fs
}

func TestPercentEncode(t *testing.T) {
	t.Parallel()

	// Every non-alphanumeric byte is encoded, '/' included.
	assert.Equal(t, "%2fa%2fb", percentEncode("/a/b"))
	assert.Equal(t, "abc123", percentEncode("abc123"))
	assert.Equal(t, "a%20b", percentEncode("a b"))
}

func TestReadDir_RootListing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"sub","type":"directory","mtime":"Mon, 02 Jan 2006 15:04:05 GMT","size":0}]`))
	}))
	defer srv.Close()

	fs := newTestFilesystem(t, srv.URL, time.Minute)

	entry, err := fs.ReadDir(context.Background(), "/")
	require.NoError(t, err)
	require.Contains(t, entry.Entries, "sub")
	assert.True(t, entry.Entries["sub"].IsDir())
}

func TestReadDir_CacheHitAvoidsSecondFetch(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[{"name":"f","type":"file","mtime":"Mon, 02 Jan 2006 15:04:05 GMT","size":1}]`))
	}))
	defer srv.Close()

	fs := newTestFilesystem(t, srv.URL, time.Minute)

	_, err := fs.ReadDir(context.Background(), "/dir")
	require.NoError(t, err)
	_, err = fs.ReadDir(context.Background(), "/dir")
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestReadDir_ExpiredEntryRefetches(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[{"name":"f","type":"file","mtime":"Mon, 02 Jan 2006 15:04:05 GMT","size":1}]`))
	}))
	defer srv.Close()

	fs := newTestFilesystem(t, srv.URL, 10*time.Millisecond)

	_, err := fs.ReadDir(context.Background(), "/dir")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = fs.ReadDir(context.Background(), "/dir")
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestReadDir_TransportFailure(t *testing.T) {
	t.Parallel()

	fs := newTestFilesystem(t, "http://127.0.0.1:0", time.Minute)

	_, err := fs.ReadDir(context.Background(), "/dir")
	assert.Error(t, err)
}

func TestReadDir_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	fs := newTestFilesystem(t, srv.URL, time.Minute)

	_, err := fs.ReadDir(context.Background(), "/dir")
	assert.Error(t, err)
}

func TestReadBlock_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=0-9", r.Header.Get("Range"))
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	fs := newTestFilesystem(t, srv.URL, time.Minute)

	body, err := fs.ReadBlock(context.Background(), "/file.txt", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
}

func TestReadBlock_ShortReadIsValid(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	fs := newTestFilesystem(t, srv.URL, time.Minute)

	body, err := fs.ReadBlock(context.Background(), "/file.txt", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "short", string(body))
}

func TestReadBlock_OversizeResponseFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("far too many bytes for the requested range"))
	}))
	defer srv.Close()

	fs := newTestFilesystem(t, srv.URL, time.Minute)

	_, err := fs.ReadBlock(context.Background(), "/file.txt", 0, 5)
	assert.Error(t, err)
}

func TestReadBlock_TransportFailure(t *testing.T) {
	t.Parallel()

	fs := newTestFilesystem(t, "http://127.0.0.1:0", time.Minute)

	_, err := fs.ReadBlock(context.Background(), "/file.txt", 0, 10)
	assert.Error(t, err)
}

func TestReadDir_NearExpiryTriggersBackgroundRefresh(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[{"name":"f","type":"file","mtime":"Mon, 02 Jan 2006 15:04:05 GMT","size":1}]`))
	}))
	defer srv.Close()

	ttl := 40 * time.Millisecond
	fs := newTestFilesystem(t, srv.URL, ttl)

	_, err := fs.ReadDir(context.Background(), "/dir")
	require.NoError(t, err)

	// Sleep past the half-TTL mark but stay within the TTL window; the
	// next ReadDir should return the still-valid cached entry while
	// firing a background refresh.
	time.Sleep(ttl/2 + 5*time.Millisecond)

	entry, err := fs.ReadDir(context.Background(), "/dir")
	require.NoError(t, err)
	assert.Contains(t, entry.Entries, "f")

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) >= 2
	}, time.Second, 10*time.Millisecond)
}
