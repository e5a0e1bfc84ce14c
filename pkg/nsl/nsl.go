// Package nsl implements the NSL (nse/nsa) input format: line-oriented
// "src dst [w]", edges for .nse files and arcs for .nsa files,
// with commented header lines optionally declaring counts and weightedness.
package nsl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/daoc-go/daoc/pkg/graph"
)

// Header mirrors the commented metadata line NSL files may carry, e.g.
// "# Nodes: 5 Weighted: 1".
type Header struct {
	Nodes    int
	HasNodes bool
	Weighted bool
}

// Parse reads an NSL file from r. directed selects .nsa (arcs) vs .nse
// (edges) semantics; weighted may be overridden by a header comment.
func Parse(r io.Reader, directed, weighted, sumDuplicates, shuffle bool, validation graph.ValidationLevel) (*graph.Graph, Header, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	hdr := Header{Weighted: weighted}
	var g *graph.Graph
	autoAdd := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if h, ok := parseHeaderComment(line); ok {
				if h.HasNodes {
					hdr.Nodes = h.Nodes
					hdr.HasNodes = true
				}
				if h.Weighted {
					hdr.Weighted = true
				}
			}
			continue
		}
		if g == nil {
			g = graph.New(graph.Options{
				Weighted:      hdr.Weighted,
				Directed:      directed,
				SumDuplicates: sumDuplicates,
				Shuffle:       shuffle,
				Validation:    validation,
			})
			if hdr.HasNodes {
				g.AddNodesRange(hdr.Nodes, 0)
				autoAdd = false
			}
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, hdr, fmt.Errorf("nsl: malformed line %q", line)
		}
		srcVal, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, hdr, fmt.Errorf("nsl: invalid src id in %q: %w", line, err)
		}
		dstVal, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, hdr, fmt.Errorf("nsl: invalid dst id in %q: %w", line, err)
		}
		weight := 1.0
		if len(fields) >= 3 && hdr.Weighted {
			weight, err = strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, hdr, fmt.Errorf("nsl: invalid weight in %q: %w", line, err)
			}
			if weight < 0 {
				return nil, hdr, fmt.Errorf("nsl: negative weight in %q", line)
			}
		}
		src, dst := graph.ID(srcVal), graph.ID(dstVal)
		link := []graph.Link{{Target: dst, Weight: weight}}
		var addErr error
		if autoAdd {
			addErr = g.AddNodeAndLinks(src, link)
		} else {
			addErr = g.AddNodeLinks(src, link)
		}
		if addErr != nil {
			return nil, hdr, addErr
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, hdr, fmt.Errorf("nsl: read error: %w", err)
	}
	if g == nil {
		g = graph.New(graph.Options{Weighted: hdr.Weighted, Directed: directed, Validation: validation})
	}
	return g, hdr, nil
}

// parseHeaderComment recognizes "# Nodes: N" / "# Weighted: 0|1" tokens
// anywhere in a comment line, case-insensitively, ignoring unknown tokens.
func parseHeaderComment(line string) (Header, bool) {
	body := strings.TrimPrefix(line, "#")
	fields := strings.Fields(body)
	var h Header
	found := false
	for i := 0; i+1 < len(fields); i++ {
		key := strings.ToLower(strings.TrimSuffix(fields[i], ":"))
		switch key {
		case "nodes":
			if n, err := strconv.Atoi(fields[i+1]); err == nil {
				h.Nodes = n
				h.HasNodes = true
				found = true
			}
		case "weighted":
			if fields[i+1] != "0" {
				h.Weighted = true
			}
			found = true
		}
	}
	return h, found
}
