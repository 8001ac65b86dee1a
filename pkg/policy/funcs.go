package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// newEnv builds the CEL environment for predicate evaluation. Besides
// the document variable it exposes three primitives that CEL cannot
// express itself (hashing and graph traversal). Their implementations
// live in this package only; the declarative backend never calls into
// the imperative one.
func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("doc", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
		cel.Function("sha256hex",
			cel.Overload("sha256hex_string",
				[]*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(celSHA256Hex))),
		cel.Function("merkle_root",
			cel.Overload("merkle_root_list",
				[]*cel.Type{cel.ListType(cel.StringType)}, cel.StringType,
				cel.UnaryBinding(celMerkleRoot))),
		cel.Function("cycle_count",
			cel.Overload("cycle_count_list",
				[]*cel.Type{cel.ListType(cel.DynType)}, cel.IntType,
				cel.UnaryBinding(celCycleCount))),
	)
}

func celSHA256Hex(v ref.Val) ref.Val {
	s, ok := v.Value().(string)
	if !ok {
		return types.NewErr("sha256hex: expected string, got %T", v.Value())
	}
	sum := sha256.Sum256([]byte(s))
	return types.String(hex.EncodeToString(sum[:]))
}

func celMerkleRoot(v ref.Val) ref.Val {
	list, ok := v.(traits.Lister)
	if !ok {
		return types.NewErr("merkle_root: expected list, got %T", v.Value())
	}
	var leaves []string
	it := list.Iterator()
	for it.HasNext() == types.True {
		leaf, ok := it.Next().Value().(string)
		if !ok {
			return types.NewErr("merkle_root: leaves must be strings")
		}
		leaves = append(leaves, leaf)
	}
	return types.String(foldMerkle(leaves))
}

// foldMerkle reduces one tree level recursively: hash adjacent pairs,
// promote an odd last element unchanged.
func foldMerkle(level []string) string {
	switch len(level) {
	case 0:
		return ""
	case 1:
		return level[0]
	}
	next := make([]string, 0, (len(level)+1)/2)
	for i := 0; i+1 < len(level); i += 2 {
		sum := sha256.Sum256([]byte(level[i] + level[i+1]))
		next = append(next, hex.EncodeToString(sum[:]))
	}
	if len(level)%2 == 1 {
		next = append(next, level[len(level)-1])
	}
	return foldMerkle(next)
}

func celCycleCount(v ref.Val) ref.Val {
	list, ok := v.(traits.Lister)
	if !ok {
		return types.NewErr("cycle_count: expected list, got %T", v.Value())
	}

	type edge struct{ from, to string }
	var edges []edge
	it := list.Iterator()
	for it.HasNext() == types.True {
		switch raw := it.Next().Value().(type) {
		case map[string]any:
			from, okF := raw["from"].(string)
			to, okT := raw["to"].(string)
			if !okF || !okT {
				return types.NewErr("cycle_count: edge must carry string from/to")
			}
			edges = append(edges, edge{from, to})
		case []any:
			if len(raw) != 2 {
				return types.NewErr("cycle_count: edge pair must have two elements")
			}
			from, okF := raw[0].(string)
			to, okT := raw[1].(string)
			if !okF || !okT {
				return types.NewErr("cycle_count: edge pair must hold strings")
			}
			edges = append(edges, edge{from, to})
		default:
			return types.NewErr("cycle_count: unsupported edge form %T", raw)
		}
	}

	adj := make(map[string][]string)
	var order []string
	known := make(map[string]bool)
	note := func(n string) {
		if !known[n] {
			known[n] = true
			order = append(order, n)
		}
	}
	for _, e := range edges {
		note(e.from)
		note(e.to)
		adj[e.from] = append(adj[e.from], e.to)
	}

	// Recursive three-color DFS; distinct cycles keyed by canonical
	// rotation so the count is start-node independent.
	state := make(map[string]int, len(order))
	pos := make(map[string]int)
	var path []string
	cycles := make(map[string]bool)

	var visit func(n string)
	visit = func(n string) {
		state[n] = 1
		pos[n] = len(path)
		path = append(path, n)
		for _, nb := range adj[n] {
			switch state[nb] {
			case 0:
				visit(nb)
			case 1:
				cyc := path[pos[nb]:]
				min := 0
				for i, x := range cyc {
					if x < cyc[min] {
						min = i
					}
				}
				rotated := append(append([]string(nil), cyc[min:]...), cyc[:min]...)
				cycles[strings.Join(rotated, "|")] = true
			}
		}
		path = path[:len(path)-1]
		state[n] = 2
	}
	for _, n := range order {
		if state[n] == 0 {
			visit(n)
		}
	}
	return types.Int(len(cycles))
}
