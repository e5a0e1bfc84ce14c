package graph

import "fmt"

// NodeError records a recoverable problem encountered while adding a node,
// such as a duplicate id. It is collected rather than returned immediately so
// that graph loading can proceed and report a complete picture at the end,
// matching the "error collectors" policy of .
type NodeError struct {
	Node    ID
	Message string
}

func (e NodeError) Error() string {
	return fmt.Sprintf("node %d: %s", e.Node, e.Message)
}

// LinkError records a recoverable problem encountered while adding a link:
// a dropped duplicate or a rejected negative weight. A link to an unknown
// endpoint is not recorded here; it either auto-creates the node or makes
// the add call return an error.
type LinkError struct {
	Src, Dst ID
	Message  string
}

func (e LinkError) Error() string {
	return fmt.Sprintf("link %d->%d: %s", e.Src, e.Dst, e.Message)
}

// ErrorCollector accumulates non-fatal node or link errors encountered during
// graph construction. Nothing in it is silently dropped: the caller drains it
// at well-defined points (end of load, end of level build).
type ErrorCollector struct {
	NodeErrors []NodeError
	LinkErrors []LinkError
}

func (c *ErrorCollector) addNode(id ID, format string, args ...interface{}) {
	c.NodeErrors = append(c.NodeErrors, NodeError{Node: id, Message: fmt.Sprintf(format, args...)})
}

func (c *ErrorCollector) addLink(src, dst ID, format string, args ...interface{}) {
	c.LinkErrors = append(c.LinkErrors, LinkError{Src: src, Dst: dst, Message: fmt.Sprintf(format, args...)})
}

// Empty reports whether no recoverable problems were collected.
func (c *ErrorCollector) Empty() bool {
	return len(c.NodeErrors) == 0 && len(c.LinkErrors) == 0
}

// Drain returns the accumulated errors and resets the collector, so callers
// can drain them to the trace sink at well-defined points (end of load, end
// of level build) rather than leaving them to accumulate silently.
func (c *ErrorCollector) Drain() (nodes []NodeError, links []LinkError) {
	nodes, links = c.NodeErrors, c.LinkErrors
	c.NodeErrors, c.LinkErrors = nil, nil
	return
}

// InvariantError reports a violation of an algorithmic invariant; Validate
// returns it for a node with negative self-weight. Such a violation is a
// bug, not a recoverable input problem, so it is returned, naming the
// invariant, rather than collected.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}
