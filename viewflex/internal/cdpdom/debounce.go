package cdpdom

import (
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// debouncer accumulates inserted nodes and hands them to flushFn when the
// window since the first pending node expires or the buffer fills. Under a
// steady stream of insertions, such as a streamed reply, it still flushes
// once per window.
type debouncer struct {
	window  time.Duration
	max     int
	nodes   []*proto.DOMNode
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]*proto.DOMNode)
}

func newDebouncer(window time.Duration, max int, flushFn func([]*proto.DOMNode)) *debouncer {
	return &debouncer{window: window, max: max, flushFn: flushFn}
}

func (d *debouncer) add(n *proto.DOMNode) {
	d.nodes = append(d.nodes, n)
	if len(d.nodes) >= d.max {
		d.flush()
		return
	}
	if d.timer == nil {
		d.timer = time.NewTimer(d.window)
		d.timerCh = d.timer.C
	}
}

// timerC is nil while nothing is pending, which blocks forever in a select.
func (d *debouncer) timerC() <-chan time.Time { return d.timerCh }

func (d *debouncer) flush() {
	d.stopTimer()
	if len(d.nodes) == 0 {
		return
	}
	nodes := d.nodes
	d.nodes = nil
	d.flushFn(nodes)
}

func (d *debouncer) reset() {
	d.stopTimer()
	d.nodes = nil
}

func (d *debouncer) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
