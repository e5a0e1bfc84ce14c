// Package rhb implements the RHB (Readable Hierarchy from Bottom) format:
// a header "/Hierarchy levels:L clusters:C", a "/Nodes N"
// section listing every node's owners, and one "/Level i pure:Pi
// extended:Ei" section per level listing each cluster's owners.
package rhb

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/daoc-go/daoc/pkg/cluster"
)

// Write emits h's full hierarchy in RHB form. Owner shares are printed only
// on lines whose owners do not all carry the same share; on such a line
// every owner's share is printed.
func Write(w io.Writer, h *cluster.Hierarchy) error {
	bw := bufio.NewWriter(w)
	score := h.Score()
	if _, err := fmt.Fprintf(bw, "/Hierarchy levels:%d clusters:%d\n", h.NumLevels(), score.Clusters); err != nil {
		return err
	}

	base := h.Level(0)
	nodeCount := 0
	if base != nil {
		nodeCount = base.Size()
	}
	if _, err := fmt.Fprintf(bw, "\n/Nodes %d\n", nodeCount); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(bw, "# node1_id> owner1_id[:share1] owner2_id[:share2] ..."); err != nil {
		return err
	}
	if base != nil {
		for i := 0; i < base.Size(); i++ {
			owners := base.ItemOwners(i)
			nodeID := base.ItemNodeID(i)
			if err := writeOwnerLine(bw, uint32(nodeID), owners); err != nil {
				return err
			}
		}
	}

	for lvl := 0; lvl < h.NumLevels(); lvl++ {
		level := h.Level(lvl)
		if _, err := fmt.Fprintf(bw, "\n/Level %d pure:%d extended:%d\n", lvl, level.Size(), level.FullSize()); err != nil {
			return err
		}
		for i := 0; i < level.Size(); i++ {
			owners := level.ItemOwners(i)
			if err := writeOwnerLine(bw, uint32(i), owners); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func writeOwnerLine(bw *bufio.Writer, id uint32, owners []cluster.Owner) error {
	if _, err := fmt.Fprintf(bw, "%d>", id); err != nil {
		return err
	}
	neqShare := ownersHaveUnequalShares(owners)
	for _, o := range owners {
		if neqShare {
			if _, err := fmt.Fprintf(bw, " %d:%g", o.Index, o.Share); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(bw, " %d", o.Index); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(bw)
	return err
}

func ownersHaveUnequalShares(owners []cluster.Owner) bool {
	if len(owners) < 2 {
		return false
	}
	first := owners[0].Share
	for _, o := range owners[1:] {
		if o.Share != first {
			return true
		}
	}
	return false
}

// Hierarchy is the parsed form of an RHB file: enough to round-trip-verify
// an emitted hierarchy without reconstructing a
// live cluster.Hierarchy (which requires re-running the algorithm).
type Hierarchy struct {
	Levels   int
	Clusters int
	Nodes    []OwnerLine
	LevelSections []LevelSection
}

// LevelSection is one parsed "/Level i pure:Pi extended:Ei" block.
type LevelSection struct {
	Index    int
	Pure     int
	Extended int
	Items    []OwnerLine
}

// OwnerLine is one parsed "id> owner[:share] ..." line.
type OwnerLine struct {
	ID     uint32
	Owners []OwnerRef
}

// OwnerRef is one owner reference, with an explicit share when the source
// line carried one.
type OwnerRef struct {
	ID       uint32
	Share    float64
	HasShare bool
}

// Read parses an RHB file, the inverse of Write, used by round-trip tests.
func Read(r io.Reader) (Hierarchy, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var h Hierarchy
	var cur *LevelSection
	inNodes := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "/Hierarchy"):
			lv, cl, err := parseHierarchyHeader(line)
			if err != nil {
				return h, err
			}
			h.Levels, h.Clusters = lv, cl
		case strings.HasPrefix(line, "/Nodes"):
			inNodes = true
			cur = nil
		case strings.HasPrefix(line, "/Level"):
			inNodes = false
			sec, err := parseLevelHeader(line)
			if err != nil {
				return h, err
			}
			h.LevelSections = append(h.LevelSections, sec)
			cur = &h.LevelSections[len(h.LevelSections)-1]
		default:
			ol, err := parseOwnerLine(line)
			if err != nil {
				return h, err
			}
			if inNodes {
				h.Nodes = append(h.Nodes, ol)
			} else if cur != nil {
				cur.Items = append(cur.Items, ol)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return h, fmt.Errorf("rhb: read error: %w", err)
	}
	return h, nil
}

func parseHierarchyHeader(line string) (levels, clusters int, err error) {
	fields := strings.Fields(line)
	for _, f := range fields[1:] {
		kv := strings.SplitN(f, ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "levels":
			levels, err = strconv.Atoi(kv[1])
		case "clusters":
			clusters, err = strconv.Atoi(kv[1])
		}
		if err != nil {
			return 0, 0, fmt.Errorf("rhb: malformed /Hierarchy header %q: %w", line, err)
		}
	}
	return levels, clusters, nil
}

func parseLevelHeader(line string) (LevelSection, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return LevelSection{}, fmt.Errorf("rhb: malformed /Level header %q", line)
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil {
		return LevelSection{}, fmt.Errorf("rhb: invalid level index in %q: %w", line, err)
	}
	sec := LevelSection{Index: idx}
	for _, f := range fields[2:] {
		kv := strings.SplitN(f, ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "pure":
			sec.Pure, err = strconv.Atoi(kv[1])
		case "extended":
			sec.Extended, err = strconv.Atoi(kv[1])
		}
		if err != nil {
			return LevelSection{}, fmt.Errorf("rhb: malformed /Level attribute in %q: %w", line, err)
		}
	}
	return sec, nil
}

func parseOwnerLine(line string) (OwnerLine, error) {
	var ol OwnerLine
	idx := strings.Index(line, ">")
	if idx < 0 {
		return ol, fmt.Errorf("rhb: missing '>' separator in %q", line)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(line[:idx]), 10, 32)
	if err != nil {
		return ol, fmt.Errorf("rhb: invalid id in %q: %w", line, err)
	}
	ol.ID = uint32(id)
	for _, tok := range strings.Fields(line[idx+1:]) {
		ownerStr, shareStr, hasShare := strings.Cut(tok, ":")
		ownerID, err := strconv.ParseUint(ownerStr, 10, 32)
		if err != nil {
			return ol, fmt.Errorf("rhb: invalid owner id in token %q: %w", tok, err)
		}
		ref := OwnerRef{ID: uint32(ownerID)}
		if hasShare {
			share, err := strconv.ParseFloat(shareStr, 64)
			if err != nil {
				return ol, fmt.Errorf("rhb: invalid share in token %q: %w", tok, err)
			}
			ref.Share, ref.HasShare = share, true
		}
		ol.Owners = append(ol.Owners, ref)
	}
	return ol, nil
}

