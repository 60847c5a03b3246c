package backend

import (
	"time"

	"github.com/systemshift/splice/internal/merge"
)

// Timestamp is a point in time with the author's zone offset.
type Timestamp struct {
	Millis    int64 `json:"millis"`
	TZMinutes int   `json:"tz_minutes"`
}

// TimestampFromTime converts t, keeping its zone offset.
func TimestampFromTime(t time.Time) Timestamp {
	_, offset := t.Zone()
	return Timestamp{Millis: t.UnixMilli(), TZMinutes: offset / 60}
}

// Time returns the timestamp in its recorded zone.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(ts.Millis).In(time.FixedZone("", ts.TZMinutes*60))
}

// Signature records who made a commit and when.
type Signature struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp Timestamp `json:"timestamp"`
}

// Commit is the stored form of a commit.
type Commit struct {
	Parents      []CommitID          `json:"parents"`
	Predecessors []CommitID          `json:"predecessors"`
	RootTree     merge.Merge[TreeID] `json:"root_tree"`
	ChangeID     ChangeID            `json:"change_id"`
	Description  string              `json:"description"`
	Author       Signature           `json:"author"`
	Committer    Signature           `json:"committer"`
}

// Clone returns a deep copy of c.
func (c *Commit) Clone() *Commit {
	out := *c
	out.Parents = append([]CommitID{}, c.Parents...)
	out.Predecessors = append([]CommitID{}, c.Predecessors...)
	return &out
}
