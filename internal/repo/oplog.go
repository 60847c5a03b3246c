package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/splice/internal/dag"
)

// opHeadRef names the ref holding the latest operation.
const opHeadRef = "op:head"

// ErrConcurrentOperation is returned when another process published an
// operation after the transaction started.
var ErrConcurrentOperation = errors.New("concurrent operation")

// Operation is one entry of the operation log. Each operation records the
// view it produced and the operation it was based on.
type Operation struct {
	V           int       `json:"v"`
	Parent      string    `json:"parent,omitempty"` // base32 CID of the previous operation
	View        string    `json:"view"`             // base32 CID of the view object
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// OpLogEntry pairs an operation with its id.
type OpLogEntry struct {
	ID gocid.Cid
	Operation
}

// OpLog stores operations and views in a blockstore and keeps the head
// operation in a ref.
type OpLog struct {
	blocks dag.Blockstore
	refs   *dag.RefStore
}

// NewOpLog returns an operation log over blocks and refs.
func NewOpLog(blocks dag.Blockstore, refs *dag.RefStore) *OpLog {
	return &OpLog{blocks: blocks, refs: refs}
}

// Head returns the id of the latest operation, or gocid.Undef if the log
// is empty.
func (l *OpLog) Head() (gocid.Cid, error) {
	c, err := l.refs.Get(opHeadRef)
	if errors.Is(err, dag.ErrNotFound) {
		return gocid.Undef, nil
	}
	if err != nil {
		return gocid.Undef, fmt.Errorf("read op head: %w", err)
	}
	return c, nil
}

func (l *OpLog) putJSON(ctx context.Context, v interface{}) (gocid.Cid, error) {
	data, err := dag.CanonicalJSON(v)
	if err != nil {
		return gocid.Undef, fmt.Errorf("serialize: %w", err)
	}
	return l.blocks.Put(ctx, dag.CodecDagJSON, data)
}

func (l *OpLog) getJSON(ctx context.Context, c gocid.Cid, v interface{}) error {
	data, err := l.blocks.Get(ctx, c)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Publish stores view and a new operation on top of parent, then moves the
// head to it. It fails with ErrConcurrentOperation if the head is no
// longer parent.
func (l *OpLog) Publish(ctx context.Context, parent gocid.Cid, view *View, description string, now time.Time) (gocid.Cid, error) {
	viewCID, err := l.putJSON(ctx, view.object())
	if err != nil {
		return gocid.Undef, fmt.Errorf("store view: %w", err)
	}
	op := &Operation{
		V:           1,
		View:        dag.CIDToFilename(viewCID),
		Timestamp:   now.UTC(),
		Description: description,
	}
	if parent.Defined() {
		op.Parent = dag.CIDToFilename(parent)
	}
	c, err := l.putJSON(ctx, op)
	if err != nil {
		return gocid.Undef, fmt.Errorf("store operation: %w", err)
	}
	if err := l.refs.CompareAndSwap(opHeadRef, parent, c); err != nil {
		if errors.Is(err, dag.ErrRefConflict) {
			return gocid.Undef, fmt.Errorf("publish operation: %w", ErrConcurrentOperation)
		}
		return gocid.Undef, err
	}
	return c, nil
}

// GetOperation reads an operation by id.
func (l *OpLog) GetOperation(ctx context.Context, c gocid.Cid) (*Operation, error) {
	var op Operation
	if err := l.getJSON(ctx, c, &op); err != nil {
		return nil, fmt.Errorf("read operation %s: %w", c, err)
	}
	return &op, nil
}

// GetView reads the view an operation produced.
func (l *OpLog) GetView(ctx context.Context, op *Operation) (*View, error) {
	c, err := dag.CIDFromString(op.View)
	if err != nil {
		return nil, err
	}
	var obj viewObject
	if err := l.getJSON(ctx, c, &obj); err != nil {
		return nil, fmt.Errorf("read view %s: %w", op.View, err)
	}
	return viewFromObject(&obj), nil
}

// Log walks the parent chain from the head, returning up to n operations
// (newest first).
func (l *OpLog) Log(ctx context.Context, n int) ([]OpLogEntry, error) {
	current, err := l.Head()
	if err != nil || !current.Defined() {
		return nil, err
	}
	var ops []OpLogEntry
	for i := 0; i < n && current.Defined(); i++ {
		op, err := l.GetOperation(ctx, current)
		if err != nil {
			return ops, err
		}
		ops = append(ops, OpLogEntry{ID: current, Operation: *op})
		if op.Parent == "" {
			break
		}
		current, err = dag.CIDFromString(op.Parent)
		if err != nil {
			return ops, err
		}
	}
	return ops, nil
}
