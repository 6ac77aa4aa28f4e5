// Package autoindex parses the JSON directory listing ("autoindex") emitted
// by the remote HTTP server into POSIX stat-shaped metadata.
package autoindex

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"
)

// Mode bits used for entries produced here: world-unreadable except owner
// and group (S_IRUSR|S_IRGRP), with the POSIX type bit for the entry kind,
// no write bits.
const (
	modeFile = uint32(syscall.S_IFREG) | 0o440
	modeDir  = uint32(syscall.S_IFDIR) | 0o440
)

// FileMeta is POSIX stat-shaped metadata for one directory entry.
type FileMeta struct {
	Mode  uint32
	Size  uint64
	Mtime int64
	Atime int64
	Ctime int64
	Nlink uint32
	Uid   uint32
	Gid   uint32
}

// IsDir reports whether m describes a directory.
func (m FileMeta) IsDir() bool {
	return m.Mode&uint32(syscall.S_IFDIR) != 0
}

// DirEntry is a cached directory listing: the set of entries as of
// FetchTime.
type DirEntry struct {
	Entries   map[string]FileMeta
	FetchTime time.Time
}

// rawEntry is the wire shape of one element in the autoindex JSON array.
type rawEntry struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Mtime string `json:"mtime"`
	Size  uint64 `json:"size"`
}

// mtimeLayout matches strptime("%a, %d %b %Y %H:%M:%S %Z")-formatted
// timestamps; RFC1123 is Go's closest built-in equivalent.
const mtimeLayout = time.RFC1123

// Parse decodes a raw autoindex JSON array response into a DirEntry, with
// FetchTime set to now. Malformed JSON or a non-array top-level shape is a
// parse error.
func Parse(body []byte, now time.Time) (DirEntry, error) {
	var raw []rawEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return DirEntry{}, fmt.Errorf("autoindex: parse response: %w", err)
	}

	entry := DirEntry{
		Entries:   make(map[string]FileMeta, len(raw)),
		FetchTime: now,
	}

	uid := uint32(os.Geteuid())
	gid := uint32(os.Getegid())

	for _, r := range raw {
		// A malicious or buggy origin is the one input this filesystem
		// cannot fully trust; strip any basename smuggling a path
		// separator rather than propagating it into the tree.
		if containsSlash(r.Name) {
			continue
		}

		isDir := r.Type == "directory"
		mtime, err := parseMtime(r.Mtime)
		if err != nil {
			return DirEntry{}, fmt.Errorf("autoindex: entry %q: %w", r.Name, err)
		}

		meta := FileMeta{
			Mtime: mtime,
			Atime: mtime,
			Ctime: mtime,
			Nlink: 1,
			Uid:   uid,
			Gid:   gid,
		}
		if isDir {
			meta.Mode = modeDir
		} else {
			meta.Mode = modeFile
			meta.Size = r.Size
		}

		// Last entry wins on duplicate names: plain map assignment in
		// array order already gives this.
		entry.Entries[r.Name] = meta
	}

	return entry, nil
}

func containsSlash(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return true
		}
	}
	return false
}

// parseMtime parses an RFC1123-formatted mtime string and reinterprets the
// parsed clock fields in local time, mirroring mktime()'s local-time
// semantics (Go's time.Parse otherwise treats an explicit zone abbreviation
// like "GMT" literally rather than as "local").
func parseMtime(s string) (int64, error) {
	t, err := time.Parse(mtimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid mtime %q: %w", s, err)
	}

	local := time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.Local,
	)
	return local.Unix(), nil
}
