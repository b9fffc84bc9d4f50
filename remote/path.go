// remote/path.go
package remote

import (
	"fmt"
	"strings"
)

const forbidden = ".#$[]"

// Split validates path and returns its segments. The empty path is the root.
func Split(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if strings.ContainsAny(s, forbidden) {
			return nil, fmt.Errorf("%w: segment %q contains one of %q", ErrInvalidPath, s, forbidden)
		}
	}
	return segs, nil
}

// Clean returns the canonical form of path.
func Clean(path string) (string, error) {
	segs, err := Split(path)
	if err != nil {
		return "", err
	}
	return strings.Join(segs, "/"), nil
}

func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Within reports whether path equals root or lies below it. Both must be
// clean.
func Within(path, root string) bool {
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

// Overlaps reports whether a change at one path can alter the value at the
// other.
func Overlaps(a, b string) bool {
	return Within(a, b) || Within(b, a)
}
