// Package server wraps fusebridge.Bridge and httpfs.Filesystem behind a
// mount/serve/unmount lifecycle.
package server

import (
	"fmt"

	"github.com/brettbedarf/httpdirfs-go/config"
	"github.com/brettbedarf/httpdirfs-go/fusebridge"
	"github.com/brettbedarf/httpdirfs-go/httpfs"
	"github.com/brettbedarf/httpdirfs-go/internal/util"
	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fuse"
)

var log = util.GetLogger("server")

// WebFS owns the filesystem façade and the mounted fuse.Server.
type WebFS struct {
	fs        *httpfs.Filesystem
	cfg       *config.Config
	server    *fuse.Server
	sessionID string
}

// New constructs a WebFS from cfg. The filesystem façade is created but no
// mount happens until Serve. Each WebFS gets its own session ID, generated
// once here, so every log line for one mount's lifetime can be correlated
// even when several mounts run in the same process during testing.
func New(cfg *config.Config) (*WebFS, error) {
	fs, err := httpfs.NewFilesystem(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	return &WebFS{fs: fs, cfg: cfg, sessionID: uuid.NewString()}, nil
}

// Serve mounts and serves the filesystem at mountPoint, blocking until the
// mount completes (not until it's unmounted).
func (w *WebFS) Serve(mountPoint string) error {
	bridge := fusebridge.New(w.fs)
	opts := w.cfg.MountOptions

	slogger := util.NewLogLogger("FuseServer", w.cfg.LogLvl)

	srv, err := fuse.NewServer(bridge, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug,
		Logger: slogger,
	})
	if err != nil {
		return fmt.Errorf("server: mount %s: %w", mountPoint, err)
	}
	w.server = srv

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return err
	}
	log.Info().Str("session", w.sessionID).Str("mountpoint", mountPoint).Msg("mount ready")
	return nil
}

// ServeAsync runs Serve in a goroutine, returning a channel that receives
// its result.
func (w *WebFS) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- w.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount cleanly unmounts the filesystem and shuts down its HTTP client.
func (w *WebFS) Unmount() error {
	defer w.fs.Close()

	if w.server == nil {
		return nil
	}
	log.Info().Str("session", w.sessionID).Msg("unmounting")
	return w.server.Unmount()
}
