// Package repopath implements slash-separated paths relative to the
// repository root.
package repopath

import (
	"fmt"
	"strings"
)

// Path is a normalized repository path. The root is the empty string.
type Path string

// Root is the repository root.
const Root Path = ""

// Parse validates s and returns it as a Path.
func Parse(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" || s == "." {
		return Root, nil
	}
	for _, c := range strings.Split(s, "/") {
		if c == "" || c == "." || c == ".." {
			return Root, fmt.Errorf("invalid path component %q in %q", c, s)
		}
	}
	return Path(s), nil
}

// MustParse is Parse for constant paths in tests and fixtures.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsRoot reports whether p is the root.
func (p Path) IsRoot() bool {
	return p == Root
}

// Components returns the path components.
func (p Path) Components() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(string(p), "/")
}

// Join appends a single component.
func (p Path) Join(name string) Path {
	if p.IsRoot() {
		return Path(name)
	}
	return p + "/" + Path(name)
}

// Split returns the parent directory and the base name. ok is false for
// the root.
func (p Path) Split() (dir Path, name string, ok bool) {
	if p.IsRoot() {
		return Root, "", false
	}
	i := strings.LastIndexByte(string(p), '/')
	if i < 0 {
		return Root, string(p), true
	}
	return p[:i], string(p[i+1:]), true
}

// Parent returns the parent directory; the root is its own parent.
func (p Path) Parent() Path {
	dir, _, _ := p.Split()
	return dir
}

// HasPrefix reports whether p equals dir or lies under it.
func (p Path) HasPrefix(dir Path) bool {
	if dir.IsRoot() || p == dir {
		return true
	}
	return strings.HasPrefix(string(p), string(dir)+"/")
}

func (p Path) String() string {
	return string(p)
}

// Compare orders paths component-wise, so "a/b" sorts before "a.txt" and
// every directory sorts before its contents.
func Compare(a, b Path) int {
	as, bs := string(a), string(b)
	for {
		if as == "" || bs == "" {
			switch {
			case as == bs:
				return 0
			case as == "":
				return -1
			default:
				return 1
			}
		}
		ac, arest, _ := strings.Cut(as, "/")
		bc, brest, _ := strings.Cut(bs, "/")
		if c := strings.Compare(ac, bc); c != 0 {
			return c
		}
		as, bs = arest, brest
	}
}

// Less is Compare(a, b) < 0.
func Less(a, b Path) bool {
	return Compare(a, b) < 0
}

// Comparator adapts Compare to the interface{}-based comparator used by
// ordered containers.
func Comparator(a, b interface{}) int {
	return Compare(a.(Path), b.(Path))
}
