package httpfs

import "strings"

// SplitPath decomposes an absolute path into (parentDirEndingInSlash,
// basename), matching the data model's path decomposition rule. The root
// path "/" decomposes to ("/", ""). A directory's own canonical path (which
// itself ends in "/") is treated as one path segment when decomposing, so
// SplitPath("/sub/sub2/") is ("/sub/", "sub2").
func SplitPath(p string) (dir, base string) {
	if p == "/" {
		return "/", ""
	}

	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	return trimmed[:idx+1], trimmed[idx+1:]
}
