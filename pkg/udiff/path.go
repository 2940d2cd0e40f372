package udiff

import (
	"os"
	"strings"
)

const (
	sourcePrefix = "a"
	targetPrefix = "b"
)

// StripPrefix removes one leading path segment equal to marker, so
// StripPrefix("a/src/x.go", "a") returns "src/x.go". Paths without that segment are
// returned unchanged.
func StripPrefix(path, marker string) string {
	if rest, ok := strings.CutPrefix(path, marker+"/"); ok {
		return rest
	}
	if os.PathSeparator != '/' {
		if rest, ok := strings.CutPrefix(path, marker+string(os.PathSeparator)); ok {
			return rest
		}
	}
	return path
}

// LocalSourcePath strips the conventional "a/" prefix from a source path.
func LocalSourcePath(path string) string {
	return StripPrefix(path, sourcePrefix)
}

// LocalTargetPath strips the conventional "b/" prefix from a target path.
func LocalTargetPath(path string) string {
	return StripPrefix(path, targetPrefix)
}
