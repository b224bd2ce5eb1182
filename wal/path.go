package wal

import (
	"strings"

	"github.com/stratadb/stratadb/errs"
)

const maxPathLen = 255

// ValidateRelativePath enforces the path hardening rules on a WAL
// directory-relative path component: reject empty, >255 chars, containing
// NUL, absolute (Unix or Windows drive form), or any ".." component
// (including after splitting on '\' as well as '/', since a hostile path
// might use either separator regardless of host OS).
func ValidateRelativePath(path string) error {
	if path == "" {
		return errs.New(errs.KindInvalidWalPath, "path must not be empty")
	}
	if len(path) > maxPathLen {
		return errs.New(errs.KindWalPathTooLong, "path exceeds %d bytes", maxPathLen)
	}
	if strings.ContainsRune(path, 0) {
		return errs.New(errs.KindInvalidWalPath, "path contains NUL byte")
	}
	if strings.HasPrefix(path, "/") {
		return errs.New(errs.KindAbsolutePathNotAllowed, "absolute paths are not allowed: %q", path)
	}
	if len(path) >= 2 && path[1] == ':' && isDriveLetter(path[0]) {
		return errs.New(errs.KindAbsolutePathNotAllowed, "absolute Windows paths are not allowed: %q", path)
	}

	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return errs.New(errs.KindPathTraversalNotAllowed, "path contains a .. component: %q", path)
		}
	}
	return nil
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
