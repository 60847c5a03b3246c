package tree

import (
	"context"
	"iter"

	"github.com/systemshift/splice/internal/repopath"
)

// CopyRecord says that Target was copied or renamed from Source.
type CopyRecord struct {
	Source repopath.Path
	Target repopath.Path
}

const ambiguous = -1

// CopyRecords indexes copy records by source and by target. A path that
// appears in more than one record is ambiguous and is not looked up.
type CopyRecords struct {
	records []CopyRecord
	sources map[repopath.Path]int
	targets map[repopath.Path]int
}

func NewCopyRecords(records ...CopyRecord) *CopyRecords {
	c := &CopyRecords{
		sources: make(map[repopath.Path]int),
		targets: make(map[repopath.Path]int),
	}
	c.Add(records...)
	return c
}

func (c *CopyRecords) Add(records ...CopyRecord) {
	for _, r := range records {
		i := len(c.records)
		if _, ok := c.sources[r.Source]; ok {
			c.sources[r.Source] = ambiguous
		} else {
			c.sources[r.Source] = i
		}
		if _, ok := c.targets[r.Target]; ok {
			c.targets[r.Target] = ambiguous
		} else {
			c.targets[r.Target] = i
		}
		c.records = append(c.records, r)
	}
}

// HasSource reports whether path is the source of any record, ambiguous or
// not.
func (c *CopyRecords) HasSource(path repopath.Path) bool {
	_, ok := c.sources[path]
	return ok
}

// ForSource returns the single record copying from path, or nil.
func (c *CopyRecords) ForSource(path repopath.Path) *CopyRecord {
	return c.lookup(c.sources, path)
}

// ForTarget returns the single record copying to path, or nil.
func (c *CopyRecords) ForTarget(path repopath.Path) *CopyRecord {
	return c.lookup(c.targets, path)
}

func (c *CopyRecords) lookup(index map[repopath.Path]int, path repopath.Path) *CopyRecord {
	i, ok := index[path]
	if !ok || i == ambiguous {
		return nil
	}
	r := c.records[i]
	return &r
}

func (c *CopyRecords) Records() []CopyRecord { return c.records }

type CopyOperation int

const (
	Copy CopyOperation = iota
	Rename
)

func (op CopyOperation) String() string {
	if op == Rename {
		return "rename"
	}
	return "copy"
}

// CopySource is where a copied or renamed path came from.
type CopySource struct {
	Path repopath.Path
	Op   CopyOperation
}

// CopiesDiffEntry is a DiffEntry with copy tracking. For a copy or rename,
// Before is the value at the source path in the old tree.
type CopiesDiffEntry struct {
	Source *CopySource
	Target repopath.Path
	Before Value
	After  Value
	Err    error
}

// SourcePath returns the source of a copy or rename, or the target path.
func (e CopiesDiffEntry) SourcePath() repopath.Path {
	if e.Source != nil {
		return e.Source.Path
	}
	return e.Target
}

// DiffStreamWithCopies is DiffStream with copies and renames from records
// folded into single entries. Deleting the source of a rename is not
// reported separately.
func (m *MergedTree) DiffStreamWithCopies(ctx context.Context, other *MergedTree, matcher repopath.Matcher, records *CopyRecords) iter.Seq[CopiesDiffEntry] {
	return func(yield func(CopiesDiffEntry) bool) {
		for e := range m.DiffStream(ctx, other, matcher) {
			out, ok := m.resolveCopySource(ctx, other, records, e)
			if !ok {
				continue
			}
			if !yield(out) {
				return
			}
		}
	}
}

func (m *MergedTree) resolveCopySource(ctx context.Context, other *MergedTree, records *CopyRecords, e DiffEntry) (CopiesDiffEntry, bool) {
	if e.Err != nil {
		return CopiesDiffEntry{Target: e.Path, Err: e.Err}, true
	}
	r := records.ForTarget(e.Path)
	if r == nil {
		if IsAbsent(e.After) && records.HasSource(e.Path) {
			return CopiesDiffEntry{}, false
		}
		return CopiesDiffEntry{Target: e.Path, Before: e.Before, After: e.After}, true
	}

	before, err := m.PathValue(ctx, r.Source)
	if err != nil {
		return CopiesDiffEntry{Target: e.Path, Err: err}, true
	}
	sourceAfter, err := other.PathValue(ctx, r.Source)
	if err != nil {
		return CopiesDiffEntry{Target: e.Path, Err: err}, true
	}
	op := Copy
	if !IsFileLike(sourceAfter) {
		op = Rename
	}
	return CopiesDiffEntry{
		Source: &CopySource{Path: r.Source, Op: op},
		Target: e.Path,
		Before: before,
		After:  e.After,
	}, true
}
