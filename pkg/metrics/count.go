// Package metrics has the counters behind cache accounting and a
// prometheus collector that exports them.
package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/ssargent/freyjadoc/pkg/logging"
)

// CountMetric is a lock-free unsigned counter. An update that would wrap
// resets the counter to zero and logs a warning instead.
type CountMetric struct {
	path     string
	sumOnAdd bool
	value    atomic.Uint64
}

// NewCountMetric returns a counter that sums when merged into another.
func NewCountMetric(path string) *CountMetric {
	return &CountMetric{path: path, sumOnAdd: true}
}

// NewAveragingCountMetric returns a counter that, when merged into another
// with AddToPart, sets the target to the average of both values. This is
// the policy the storage layer uses for level-style counts such as element
// totals gathered from several parts.
func NewAveragingCountMetric(path string) *CountMetric {
	return &CountMetric{path: path}
}

func (m *CountMetric) Path() string   { return m.path }
func (m *CountMetric) SumOnAdd() bool { return m.sumOnAdd }
func (m *CountMetric) Value() uint64  { return m.value.Load() }
func (m *CountMetric) Set(v uint64)   { m.value.Store(v) }
func (m *CountMetric) Reset()         { m.value.Store(0) }

// update applies fn in a compare-and-swap loop. fn reports whether the new
// value wrapped.
func (m *CountMetric) update(fn func(old uint64) (uint64, bool)) bool {
	for {
		old := m.value.Load()
		next, wrapped := fn(old)
		if m.value.CompareAndSwap(old, next) {
			return wrapped
		}
	}
}

func add(n uint64) func(uint64) (uint64, bool) {
	return func(old uint64) (uint64, bool) {
		next := old + n
		return next, next < old
	}
}

func sub(n uint64) func(uint64) (uint64, bool) {
	return func(old uint64) (uint64, bool) {
		next := old - n
		return next, next > old
	}
}

func (m *CountMetric) resetWith(msg string) {
	m.Reset()
	logging.Warnf("%s", msg)
}

func (m *CountMetric) Inc(n uint64) {
	if m.update(add(n)) {
		m.resetWith(fmt.Sprintf("Overflow in metric %s. Resetting it.", m.path))
	}
}

func (m *CountMetric) Dec(n uint64) {
	if m.update(sub(n)) {
		m.resetWith(fmt.Sprintf("Underflow in metric %s. Resetting it.", m.path))
	}
}

// Add adds the value of other to m.
func (m *CountMetric) Add(other *CountMetric) {
	if m.update(add(other.Value())) {
		m.resetWith(fmt.Sprintf("Overflow in metric %s op +=. Resetting it.", m.path))
	}
}

// Sub subtracts the value of other from m.
func (m *CountMetric) Sub(other *CountMetric) {
	if m.update(sub(other.Value())) {
		m.resetWith(fmt.Sprintf("Underflow in metric %s op -=. Resetting it.", m.path))
	}
}

// AddToSnapshot accumulates m into a snapshot counter.
func (m *CountMetric) AddToSnapshot(dst *CountMetric) {
	dst.Inc(m.Value())
}

// AddToPart merges m into dst, summing or averaging depending on how m was
// created.
func (m *CountMetric) AddToPart(dst *CountMetric) {
	v := m.Value()
	if m.sumOnAdd {
		dst.Inc(v)
		return
	}
	o := dst.Value()
	dst.Set(v/2 + o/2 + (v & o & 1))
}

func (m *CountMetric) String() string {
	if m.sumOnAdd {
		return fmt.Sprintf("%s count=%d", m.path, m.Value())
	}
	return fmt.Sprintf("%s value=%d", m.path, m.Value())
}
