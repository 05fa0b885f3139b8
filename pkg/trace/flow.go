package trace

import (
	"fmt"
	"strings"
)

// RenderFlow produces a Mermaid flowchart of the span tree for visualization:
// one node per span labeled with name, type, duration, and status, and an
// edge from each parent to each child. This is a derived view, not part of
// the trace itself.
func RenderFlow(tr *Trace) string {
	if tr == nil || tr.RootSpan == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("flowchart TD\n")

	ids := map[string]string{}
	next := 0
	nodeID := func(spanID string) string {
		if id, ok := ids[spanID]; ok {
			return id
		}
		id := fmt.Sprintf("n%d", next)
		next++
		ids[spanID] = id
		return id
	}

	// Depth-first walk in child creation order.
	var walk func(s *Span)
	walk = func(s *Span) {
		fmt.Fprintf(&b, "    %s[%q]\n", nodeID(s.SpanID), nodeLabel(s))
		for _, child := range s.Children {
			walk(child)
			fmt.Fprintf(&b, "    %s --> %s\n", nodeID(s.SpanID), nodeID(child.SpanID))
		}
	}
	walk(tr.RootSpan)

	return b.String()
}

func nodeLabel(s *Span) string {
	status := string(s.Status)
	if s.Open() {
		status = "open"
	}
	return fmt.Sprintf("%s (%s, %dms, %s)", s.Name, s.Type, s.DurationMs, status)
}
