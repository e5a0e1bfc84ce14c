// Package rcg implements the Readable Compact Graph format: a
// section-header text format with /nodes, /edges, /arcs sections.
package rcg

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/daoc-go/daoc/pkg/graph"
)

// Header carries the metadata declared by a /nodes section line:
// "/nodes <count> [id0=<id>] [weighted=<0|1>]".
type Header struct {
	Count    int
	IDStart  graph.ID
	HasStart bool
	Weighted bool
}

type section int

const (
	sectionNone section = iota
	sectionNodes
	sectionEdges
	sectionArcs
)

// Parse reads an RCG file from r and builds a graph.Graph. sumDuplicates and
// shuffle are forwarded to graph.Options as-is; validation selects the
// repair/fatal policy applied after loading.
func Parse(r io.Reader, sumDuplicates, shuffle bool, validation graph.ValidationLevel) (*graph.Graph, Header, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var hdr Header
	hdr.Weighted = true // RCG networks default to weighted unless a /nodes header says otherwise
	sawHeader := false
	sawArcs, sawEdges := false, false
	sect := sectionNone

	var pending []pendingLine

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "/") {
			switch {
			case strings.HasPrefix(strings.ToLower(line), "/nodes"):
				h, err := parseNodesHeader(line)
				if err != nil {
					return nil, hdr, err
				}
				hdr = h
				sawHeader = true
				sect = sectionNodes
			case strings.HasPrefix(strings.ToLower(line), "/edges"):
				sect = sectionEdges
				sawEdges = true
			case strings.HasPrefix(strings.ToLower(line), "/arcs"):
				sect = sectionArcs
				sawArcs = true
			default:
				return nil, hdr, fmt.Errorf("rcg: unknown section %q", line)
			}
			continue
		}
		if sect != sectionEdges && sect != sectionArcs {
			continue
		}
		pl, err := parsePayloadLine(line, hdr.Weighted)
		if err != nil {
			return nil, hdr, err
		}
		pl.directed = sect == sectionArcs
		pending = append(pending, pl)
	}
	if err := scanner.Err(); err != nil {
		return nil, hdr, fmt.Errorf("rcg: read error: %w", err)
	}
	if !sawHeader {
		return nil, hdr, fmt.Errorf("rcg: missing /nodes header")
	}

	// Options.Directed is only the default for future callers of
	// AddNodeLinks/AddNodeAndLinks; every pending line here carries its own
	// section-derived directed flag and is added via the "As" variants, so a
	// file mixing /edges and /arcs sections gets correct per-section
	// semantics instead of one flag applied uniformly.
	g := graph.New(graph.Options{
		Weighted:      hdr.Weighted,
		Directed:      sawArcs && !sawEdges,
		SumDuplicates: sumDuplicates,
		Shuffle:       shuffle,
		Validation:    validation,
	})

	if hdr.HasStart {
		g.AddNodesRange(hdr.Count, hdr.IDStart)
		for _, pl := range pending {
			if err := g.AddNodeLinksAs(pl.src, pl.links, pl.directed); err != nil {
				return nil, hdr, err
			}
		}
	} else {
		for _, pl := range pending {
			if err := g.AddNodeAndLinksAs(pl.src, pl.links, pl.directed); err != nil {
				return nil, hdr, err
			}
		}
	}
	return g, hdr, nil
}

type pendingLine struct {
	src      graph.ID
	links    []graph.Link
	directed bool
}

func parseNodesHeader(line string) (Header, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Header{}, fmt.Errorf("rcg: malformed /nodes header %q", line)
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return Header{}, fmt.Errorf("rcg: invalid node count in %q: %w", line, err)
	}
	h := Header{Count: count, Weighted: true}
	for _, f := range fields[2:] {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return Header{}, fmt.Errorf("rcg: malformed /nodes attribute %q", f)
		}
		switch strings.ToLower(kv[0]) {
		case "id0":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil {
				return Header{}, fmt.Errorf("rcg: invalid id0 in %q: %w", line, err)
			}
			h.IDStart = graph.ID(v)
			h.HasStart = true
		case "weighted":
			h.Weighted = kv[1] != "0"
		default:
			return Header{}, fmt.Errorf("rcg: unknown /nodes attribute %q", kv[0])
		}
	}
	return h, nil
}

// parsePayloadLine parses "src> dst[:w] dst[:w] ...".
func parsePayloadLine(line string, weighted bool) (pendingLine, error) {
	parts := strings.SplitN(line, ">", 2)
	if len(parts) != 2 {
		return pendingLine{}, fmt.Errorf("rcg: missing '>' separator in line %q", line)
	}
	srcVal, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return pendingLine{}, fmt.Errorf("rcg: invalid source id in %q: %w", line, err)
	}
	pl := pendingLine{src: graph.ID(srcVal)}

	for _, tok := range strings.Fields(parts[1]) {
		dstStr, wStr, hasW := strings.Cut(tok, ":")
		dstVal, err := strconv.ParseUint(dstStr, 10, 32)
		if err != nil {
			return pendingLine{}, fmt.Errorf("rcg: invalid destination id in token %q: %w", tok, err)
		}
		weight := 1.0
		if hasW && weighted {
			weight, err = strconv.ParseFloat(wStr, 64)
			if err != nil {
				return pendingLine{}, fmt.Errorf("rcg: invalid weight in token %q: %w", tok, err)
			}
			if weight < 0 {
				return pendingLine{}, fmt.Errorf("rcg: negative weight in token %q", tok)
			}
		}
		pl.links = append(pl.links, graph.Link{Target: graph.ID(dstVal), Weight: weight})
	}
	return pl, nil
}

// Write emits g in RCG form, the inverse of Parse, used by round-trip tests
// and by callers that want to re-export a loaded/validated graph.
func Write(w io.Writer, g *graph.Graph, directed bool) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "/nodes %d\n", g.NumNodes()); err != nil {
		return err
	}
	section := "/edges"
	if directed {
		section = "/arcs"
	}
	if _, err := fmt.Fprintln(bw, section); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		if len(n.Links) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(bw, "%d>", n.ID); err != nil {
			return err
		}
		for _, l := range n.Links {
			if _, err := fmt.Fprintf(bw, " %d:%g", l.Target, l.Weight); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}
