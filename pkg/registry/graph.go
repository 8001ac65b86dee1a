package registry

import (
	"fmt"
	"strings"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/result"
)

// evalCycle builds a directed graph from declared edges and fails when
// the graph contains a cycle. Each distinct cycle is reported once, with
// its nodes in first-seen order; structurally identical cycles reached
// from different start nodes are deduplicated.
func evalCycle(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: cycle shape requires a path param")
	}

	edges, err := edgesAt(doc, path)
	ev := []result.KV{{Key: "path", Value: path}}
	if err != nil {
		return result.Fail(rule.ID, fmt.Sprintf("%s: %v", path, err), ev...)
	}

	cycles := findCycles(edges)
	ev = append(ev, result.KV{Key: "edges", Value: fmt.Sprintf("%d", len(edges))})
	if len(cycles) > 0 {
		rendered := make([]string, len(cycles))
		for i, c := range cycles {
			rendered[i] = strings.Join(c, " -> ")
		}
		ev = append(ev, result.KV{Key: "cycles", Value: strings.Join(rendered, "; ")})
		return result.Fail(rule.ID,
			fmt.Sprintf("dependency graph at %s contains %d cycle(s): %s", path, len(cycles), strings.Join(rendered, "; ")), ev...)
	}
	return result.Pass(rule.ID, fmt.Sprintf("dependency graph at %s is acyclic", path), ev...)
}

type edge struct {
	from, to string
}

// edgesAt reads a list of {from, to} mappings (or two-element lists)
// from the document.
func edgesAt(doc *document.Document, path string) ([]edge, error) {
	node := doc.Lookup(path)
	if node.Missing() {
		return nil, fmt.Errorf("edge list is absent")
	}
	if node.Kind != document.KindList {
		return nil, fmt.Errorf("edge list is %s, expected list", node.Kind)
	}

	edges := make([]edge, 0, len(node.Items))
	for i, item := range node.Items {
		switch item.Kind {
		case document.KindMapping:
			from := item.Field("from")
			to := item.Field("to")
			if from.Kind != document.KindString || to.Kind != document.KindString {
				return nil, fmt.Errorf("edge %d: from/to must be strings", i)
			}
			edges = append(edges, edge{from: from.Str, to: to.Str})
		case document.KindList:
			if len(item.Items) != 2 ||
				item.Items[0].Kind != document.KindString ||
				item.Items[1].Kind != document.KindString {
				return nil, fmt.Errorf("edge %d: expected a two-element string pair", i)
			}
			edges = append(edges, edge{from: item.Items[0].Str, to: item.Items[1].Str})
		default:
			return nil, fmt.Errorf("edge %d: expected mapping or pair, got %s", i, item.Kind)
		}
	}
	return edges, nil
}

// findCycles runs an iterative depth-first search with an explicit
// recursion stack. A back-edge to a node currently on the stack closes a
// cycle; cycles are keyed by canonical rotation so the same cycle found
// from different starts is reported once.
func findCycles(edges []edge) [][]string {
	adj := make(map[string][]string)
	var order []string
	seenNode := make(map[string]bool)
	note := func(n string) {
		if !seenNode[n] {
			seenNode[n] = true
			order = append(order, n)
		}
	}
	for _, e := range edges {
		note(e.from)
		note(e.to)
		adj[e.from] = append(adj[e.from], e.to)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(order))
	onPath := make(map[string]int) // node -> position in current path

	var cycles [][]string
	dedup := make(map[string]bool)

	type frame struct {
		node string
		next int
	}

	for _, start := range order {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: start}}
		path := []string{start}
		color[start] = gray
		onPath[start] = 0

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			neighbors := adj[f.node]
			if f.next < len(neighbors) {
				nb := neighbors[f.next]
				f.next++
				switch color[nb] {
				case gray:
					cycle := append([]string(nil), path[onPath[nb]:]...)
					if key := canonicalCycleKey(cycle); !dedup[key] {
						dedup[key] = true
						cycles = append(cycles, cycle)
					}
				case white:
					color[nb] = gray
					onPath[nb] = len(path)
					path = append(path, nb)
					stack = append(stack, frame{node: nb})
				}
				continue
			}
			color[f.node] = black
			delete(onPath, f.node)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}
	return cycles
}

// canonicalCycleKey rotates the cycle so its lexicographically smallest
// node comes first, making the key rotation-invariant.
func canonicalCycleKey(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	min := 0
	for i, n := range cycle {
		if n < cycle[min] {
			min = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[min:]...)
	rotated = append(rotated, cycle[:min]...)
	return strings.Join(rotated, "\x00")
}
