package repopath

// Matcher selects paths for diffs, entry walks and restores.
type Matcher interface {
	// Matches reports whether the file at path is selected.
	Matches(path Path) bool
	// Visit reports whether anything under dir could be selected.
	Visit(dir Path) bool
	// MatchesAll reports whether every path is selected.
	MatchesAll() bool
}

// Everything matches every path.
type Everything struct{}

func (Everything) Matches(Path) bool { return true }
func (Everything) Visit(Path) bool   { return true }
func (Everything) MatchesAll() bool  { return true }

// Nothing matches no path.
type Nothing struct{}

func (Nothing) Matches(Path) bool { return false }
func (Nothing) Visit(Path) bool   { return false }
func (Nothing) MatchesAll() bool  { return false }

// FilesMatcher matches an explicit set of file paths.
type FilesMatcher struct {
	files map[Path]struct{}
	dirs  map[Path]struct{}
}

// Files returns a matcher selecting exactly the given files.
func Files(paths ...Path) *FilesMatcher {
	m := &FilesMatcher{files: make(map[Path]struct{}), dirs: make(map[Path]struct{})}
	for _, p := range paths {
		m.files[p] = struct{}{}
		for d := p.Parent(); ; d = d.Parent() {
			m.dirs[d] = struct{}{}
			if d.IsRoot() {
				break
			}
		}
	}
	return m
}

func (m *FilesMatcher) Matches(p Path) bool {
	_, ok := m.files[p]
	return ok
}

func (m *FilesMatcher) Visit(dir Path) bool {
	_, ok := m.dirs[dir]
	return ok
}

func (m *FilesMatcher) MatchesAll() bool { return false }

// PrefixMatcher matches everything at or under a set of paths.
type PrefixMatcher struct {
	prefixes []Path
}

// Prefixes returns a matcher selecting the given paths recursively.
func Prefixes(paths ...Path) *PrefixMatcher {
	return &PrefixMatcher{prefixes: paths}
}

func (m *PrefixMatcher) Matches(p Path) bool {
	for _, prefix := range m.prefixes {
		if p.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

func (m *PrefixMatcher) Visit(dir Path) bool {
	for _, prefix := range m.prefixes {
		if dir.HasPrefix(prefix) || prefix.HasPrefix(dir) {
			return true
		}
	}
	return false
}

func (m *PrefixMatcher) MatchesAll() bool {
	for _, prefix := range m.prefixes {
		if prefix.IsRoot() {
			return true
		}
	}
	return false
}
