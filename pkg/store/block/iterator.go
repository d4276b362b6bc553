package block

import (
	"context"
	"io"
)

// FetchFunc opens the streams for a window of storage ids.
//
// The returned slice must be positionally aligned with sids. On error any
// stream already opened must be closed by the FetchFunc.
type FetchFunc func(ctx context.Context, sids []StorageID) ([]io.ReadCloser, error)

// BlockIterator yields block streams in request order.
//
// The sequence is lazy and finite: streams are opened window by window as
// Next is called, and the iterator cannot be rewound. Each stream returned
// by Block belongs to the caller and must be closed.
//
//	it := store.OpenBlocks(ctx, vaultID, sids)
//	defer it.Close()
//	for it.Next() {
//	    sid, r := it.Block()
//	    ...
//	    r.Close()
//	}
//	if err := it.Err(); err != nil { ... }
type BlockIterator struct {
	ctx    context.Context
	sids   []StorageID
	window int
	fetch  FetchFunc

	next    int // index into sids of the next window to fetch
	pending []io.ReadCloser
	base    int // index into sids of pending[0]

	cur    StorageID
	curR   io.ReadCloser
	err    error
	closed bool
}

// NewBlockIterator builds an iterator that fetches window ids at a time.
// A window <= 0 is treated as 1.
func NewBlockIterator(ctx context.Context, sids []StorageID, window int, fetch FetchFunc) *BlockIterator {
	if window <= 0 {
		window = 1
	}
	return &BlockIterator{
		ctx:    ctx,
		sids:   sids,
		window: window,
		fetch:  fetch,
	}
}

// ErrIterator returns an iterator that yields nothing and reports err.
func ErrIterator(err error) *BlockIterator {
	return &BlockIterator{err: err}
}

// Next advances to the next stream. It returns false at the end of the
// sequence or on the first error.
func (it *BlockIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}

	if len(it.pending) == 0 {
		if it.next >= len(it.sids) {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}

		end := it.next + it.window
		if end > len(it.sids) {
			end = len(it.sids)
		}

		streams, err := it.fetch(it.ctx, it.sids[it.next:end])
		if err != nil {
			it.err = err
			return false
		}
		it.pending = streams
		it.base = it.next
		it.next = end
	}

	it.cur = it.sids[it.base]
	it.curR = it.pending[0]
	it.pending = it.pending[1:]
	it.base++
	return true
}

// Block returns the current storage id and its stream.
func (it *BlockIterator) Block() (StorageID, io.ReadCloser) {
	return it.cur, it.curR
}

// Err returns the error that stopped iteration, if any.
func (it *BlockIterator) Err() error {
	return it.err
}

// Close releases streams that were fetched but never handed out.
func (it *BlockIterator) Close() error {
	it.closed = true
	var first error
	for _, r := range it.pending {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	it.pending = nil
	return first
}

// Concat returns a single reader over all remaining streams of it, in
// order. Closing the reader closes the iterator.
func Concat(it *BlockIterator) io.ReadCloser {
	return &concatReader{it: it}
}

type concatReader struct {
	it  *BlockIterator
	cur io.ReadCloser
}

func (c *concatReader) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			if !c.it.Next() {
				if err := c.it.Err(); err != nil {
					return 0, err
				}
				return 0, io.EOF
			}
			_, c.cur = c.it.Block()
		}

		n, err := c.cur.Read(p)
		if err == io.EOF {
			_ = c.cur.Close()
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *concatReader) Close() error {
	if c.cur != nil {
		_ = c.cur.Close()
		c.cur = nil
	}
	return c.it.Close()
}
