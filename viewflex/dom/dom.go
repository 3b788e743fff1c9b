// Package dom defines the document abstraction the viewflex engine works on.
// Backends (a live Chrome tab, an in-memory HTML tree) implement these
// interfaces; the engine never touches a concrete DOM.
package dom

import "context"

// NodeType mirrors the DOM nodeType values the engine cares about.
type NodeType int

const (
	ElementNode  NodeType = 1
	TextNode     NodeType = 3
	CommentNode  NodeType = 8
	DocumentNode NodeType = 9
)

// ReadyState mirrors document.readyState.
type ReadyState string

const (
	Loading     ReadyState = "loading"
	Interactive ReadyState = "interactive"
	Complete    ReadyState = "complete"
)

// Node is anything a mutation can report as added.
type Node interface {
	NodeType() NodeType
}

// Queryable is a scope that can run a CSS selector over its descendants.
// A Document searches the whole tree; an Element searches below itself,
// never including itself (querySelectorAll semantics).
type Queryable interface {
	QueryAll(selector string) ([]Element, error)
}

// Element is an element node that can carry classes and inline style.
type Element interface {
	Node
	Queryable

	// TagName returns the tag in lower case.
	TagName() string
	ID() string
	// ClassName returns the raw class attribute.
	ClassName() string
	HasClass(token string) bool

	// StyleProperty returns the inline value of a style property, "" when unset.
	StyleProperty(name string) string
	// SetStyleProperty sets one inline declaration, replacing any previous
	// value for the same property and leaving the others untouched.
	SetStyleProperty(name, value string) error
	SetTextContent(text string) error
}

// Record is one child-list mutation: the nodes added under a parent.
type Record struct {
	Added []Node
}

// Batch is the unit of delivery to an observer. Batch boundaries are
// decided by the backend.
type Batch []Record

// ObserveFunc receives batches in order. It must not block for long:
// implementations only enqueue.
type ObserveFunc func(Batch)

// Subscription is a live child-list observation.
type Subscription interface {
	Close() error
}

// Document is the page the engine runs against.
type Document interface {
	Queryable

	// Location returns the document URL (or hostname).
	Location() string
	ReadyState() ReadyState
	// Ready is closed once the document is interactive or complete.
	Ready() <-chan struct{}
	// Body returns the observation root, nil while the document has none.
	Body() Element
	ElementByID(id string) (Element, bool)
	// Observe subscribes fn to subtree-wide child-list insertions under root.
	Observe(ctx context.Context, root Element, fn ObserveFunc) (Subscription, error)
}

// AsElement returns n as an Element when it is one.
func AsElement(n Node) (Element, bool) {
	if n == nil || n.NodeType() != ElementNode {
		return nil, false
	}
	el, ok := n.(Element)
	return el, ok
}
