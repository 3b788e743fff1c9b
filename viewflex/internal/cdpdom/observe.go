package cdpdom

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/viewflex/viewflex/dom"
)

// event is a CDP notification copied out of the rod handler. Handlers only
// copy; all CDP calls happen on the observation goroutine.
type event struct {
	node  *proto.DOMNode
	reset bool
	at    time.Time
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Observe implements dom.Document. Only the document body is supported as a
// root: CDP reports insertions for the whole document and the filter keeps
// those that land inside the body.
func (d *Document) Observe(ctx context.Context, root dom.Element, fn dom.ObserveFunc) (dom.Subscription, error) {
	el, ok := root.(*Element)
	if !ok || el.doc != d {
		return nil, fmt.Errorf("cdpdom: observe root does not belong to this document")
	}
	res, err := el.el.Eval(`function () { return this === document.body }`)
	if err != nil {
		return nil, fmt.Errorf("cdpdom: observe: %w", err)
	}
	if !res.Value.Bool() {
		return nil, fmt.Errorf("cdpdom: observe: only the body can be observed")
	}

	if err := (proto.DOMEnable{}).Call(d.page); err != nil {
		return nil, fmt.Errorf("cdpdom: enable DOM domain: %w", err)
	}
	if err := d.track(); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	events := make(chan event, 1024)
	push := func(ev event) {
		select {
		case events <- ev:
		case <-sctx.Done():
		}
	}
	wait := d.page.Context(sctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			push(event{node: e.Node, at: time.Now()})
		},
		func(e *proto.DOMDocumentUpdated) {
			push(event{reset: true, at: time.Now()})
		},
	)

	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go wait()
	go func() {
		defer close(sub.done)
		d.run(sctx, events, fn)
	}()
	return sub, nil
}

// track asks Chrome for the whole tree. CDP only reports insertions under
// nodes it has already sent to the client.
func (d *Document) track() error {
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(d.page); err != nil {
		return fmt.Errorf("cdpdom: get document: %w", err)
	}
	return nil
}

func (d *Document) run(ctx context.Context, events <-chan event, fn dom.ObserveFunc) {
	dd := newDeduper()
	db := newDebouncer(d.opts.Window, d.opts.MaxBatch, func(nodes []*proto.DOMNode) {
		if b := d.resolve(nodes); len(b) > 0 {
			fn(b)
		}
	})

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-events:
			if ev.reset {
				// A new document: everything pending belongs to the old one.
				db.reset()
				dd.reset()
				d.reinit(fn)
				continue
			}
			if ev.node == nil || dd.seen(ev.node.BackendNodeID, ev.at) {
				continue
			}
			db.add(ev.node)

		case <-db.timerC():
			db.flush()
		}
	}
}

// reinit re-tracks a replaced document and reports its body as inserted.
func (d *Document) reinit(fn dom.ObserveFunc) {
	if err := d.track(); err != nil {
		d.log.Warn("cdpdom: re-track after document update", "error", err)
		return
	}
	body := d.Body()
	if body == nil {
		return
	}
	d.log.Debug("cdpdom: document replaced", "location", d.Location())
	fn(dom.Batch{{Added: []dom.Node{body}}})
}

// resolve turns CDP nodes into dom nodes. Elements that vanished or live
// outside the body are dropped.
func (d *Document) resolve(nodes []*proto.DOMNode) dom.Batch {
	added := make([]dom.Node, 0, len(nodes))
	for _, n := range nodes {
		switch dom.NodeType(n.NodeType) {
		case dom.ElementNode:
			el, err := d.page.ElementFromNode(n)
			if err != nil {
				continue
			}
			res, err := el.Eval(`function () { return !!document.body && document.body.contains(this) }`)
			if err != nil || !res.Value.Bool() {
				continue
			}
			depth := -1
			if err := (proto.DOMRequestChildNodes{NodeID: n.NodeID, Depth: &depth}).Call(d.page); err != nil {
				d.log.Debug("cdpdom: request child nodes", "error", err)
			}
			added = append(added, d.wrap(el))
		case dom.TextNode, dom.CommentNode:
			added = append(added, leaf(n.NodeType))
		}
	}
	if len(added) == 0 {
		return nil
	}
	return dom.Batch{{Added: added}}
}
