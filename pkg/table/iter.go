package table

import (
	"io"

	"github.com/veltab/veltab/pkg/types"
)

// RowIter is a lazy sequence of rows. Next returns io.EOF after the final
// row. Close releases any resource the producer holds and must be safe to
// call before exhaustion and more than once.
type RowIter interface {
	Next() (*types.Row, error)
	Close() error
}

// Ordered is an optional RowIter extension through which a backend asserts,
// before the first row is consumed, that its stream is already sorted.
type Ordered interface {
	OrderInfo() *types.OrderInfo
}

// orderHint extracts a backend order assertion, if any.
func orderHint(it RowIter) *types.OrderInfo {
	if o, ok := it.(Ordered); ok {
		return o.OrderInfo()
	}
	return nil
}

// sliceIter iterates an in-memory row slice.
type sliceIter struct {
	rows []*types.Row
	pos  int
	hint *types.OrderInfo
}

// NewSliceIter returns an iterator over an in-memory row slice.
func NewSliceIter(rows []*types.Row) RowIter {
	return &sliceIter{rows: rows}
}

// NewOrderedSliceIter returns a slice iterator carrying an order assertion.
func NewOrderedSliceIter(rows []*types.Row, hint *types.OrderInfo) RowIter {
	return &sliceIter{rows: rows, hint: hint}
}

func (s *sliceIter) Next() (*types.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceIter) Close() error {
	s.rows = nil
	return nil
}

func (s *sliceIter) OrderInfo() *types.OrderInfo {
	return s.hint
}

// funcIter adapts a pull function and a close function into a RowIter.
type funcIter struct {
	next   func() (*types.Row, error)
	close  func() error
	closed bool
}

// NewFuncIter builds a RowIter from a pull function and an optional close
// function. The pull function must return io.EOF at end of stream.
func NewFuncIter(next func() (*types.Row, error), close func() error) RowIter {
	return &funcIter{next: next, close: close}
}

func (f *funcIter) Next() (*types.Row, error) {
	if f.closed {
		return nil, io.EOF
	}
	return f.next()
}

func (f *funcIter) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.close != nil {
		return f.close()
	}
	return nil
}

// orderedFuncIter is a funcIter carrying an order assertion.
type orderedFuncIter struct {
	funcIter
	hint *types.OrderInfo
}

// NewOrderedFuncIter builds a pull iterator carrying an order assertion.
func NewOrderedFuncIter(next func() (*types.Row, error), close func() error, hint *types.OrderInfo) RowIter {
	return &orderedFuncIter{funcIter: funcIter{next: next, close: close}, hint: hint}
}

func (o *orderedFuncIter) OrderInfo() *types.OrderInfo {
	return o.hint
}

// Drain reads every remaining row, closing the iterator afterwards.
func Drain(it RowIter) ([]*types.Row, error) {
	defer it.Close()
	var rows []*types.Row
	for {
		row, err := it.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// filterIter yields only rows accepted by the keep function.
type filterIter struct {
	src  RowIter
	keep func(*types.Row) (bool, error)
}

func (f *filterIter) Next() (*types.Row, error) {
	for {
		row, err := f.src.Next()
		if err != nil {
			return nil, err
		}
		ok, err := f.keep(row)
		if err != nil {
			return nil, err
		}
		if ok {
			return row, nil
		}
	}
}

func (f *filterIter) Close() error { return f.src.Close() }

// mapIter transforms each row.
type mapIter struct {
	src RowIter
	fn  func(*types.Row) *types.Row
}

func (m *mapIter) Next() (*types.Row, error) {
	row, err := m.src.Next()
	if err != nil {
		return nil, err
	}
	return m.fn(row), nil
}

func (m *mapIter) Close() error { return m.src.Close() }

// pageIter applies offset and limit.
type pageIter struct {
	src     RowIter
	offset  int
	limit   *int
	skipped bool
	emitted int
}

func (p *pageIter) Next() (*types.Row, error) {
	if !p.skipped {
		p.skipped = true
		for i := 0; i < p.offset; i++ {
			if _, err := p.src.Next(); err != nil {
				return nil, err
			}
		}
	}
	if p.limit != nil && p.emitted >= *p.limit {
		return nil, io.EOF
	}
	row, err := p.src.Next()
	if err != nil {
		return nil, err
	}
	p.emitted++
	return row, nil
}

func (p *pageIter) Close() error { return p.src.Close() }

// concatIter chains iterators in sequence.
type concatIter struct {
	iters []RowIter
	pos   int
}

func (c *concatIter) Next() (*types.Row, error) {
	for c.pos < len(c.iters) {
		row, err := c.iters[c.pos].Next()
		if err == io.EOF {
			c.iters[c.pos].Close()
			c.pos++
			continue
		}
		return row, err
	}
	return nil, io.EOF
}

func (c *concatIter) Close() error {
	var firstErr error
	for ; c.pos < len(c.iters); c.pos++ {
		if err := c.iters[c.pos].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
