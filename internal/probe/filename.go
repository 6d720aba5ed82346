package probe

import (
	"regexp"
	"strings"
)

// filenamePattern is the conservative printable-ASCII charset spec §4.5
// step 3 requires (it admits no path separators); ValidFilename adds the
// "no .." and length <= 255 checks on top of it.
var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9 _.\-()\[\]]+$`)

const maxFilenameLen = 255

// ValidFilename reports whether name is safe to interpolate into an
// argv element passed to an external process. Every caller that reaches
// exec.Command in this package runs the candidate through this check
// first; none of them ever build a shell string.
func ValidFilename(name string) bool {
	if len(name) == 0 || len(name) > maxFilenameLen {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return filenamePattern.MatchString(name)
}
