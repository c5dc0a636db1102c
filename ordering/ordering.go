// Package ordering computes the order in which object types can be loaded so that
// every record's parents exist before it.
package ordering

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
)

// Edge is a required reference from Type to Parent held in Field.
type Edge struct {
	Type   string
	Field  string
	Parent string
}

func (e Edge) String() string {
	return fmt.Sprintf("%s.%s -> %s", e.Type, e.Field, e.Parent)
}

// Cycle is a group of types that all require each other, directly or transitively.
type Cycle struct {
	// Types are the members in discovery order.
	Types []string

	// Edges are the required references between members.
	Edges []Edge
}

// Pair is two types that each hold a required reference to the other.
type Pair struct {
	A       string
	B       string
	AFields []string
	BFields []string
}

// DeadlockError reports the cycles that kept the remaining types from being ordered.
type DeadlockError struct {
	// Ordered holds the types placed before the deadlock.
	Ordered []string

	// Remaining holds every type that could not be placed, in discovery order.
	Remaining []string

	// Cycles lists each cycle among the remaining types.
	Cycles []Cycle
}

func (e *DeadlockError) Error() string {
	var b strings.Builder
	b.WriteString("ordering deadlock: ")
	for i, c := range e.Cycles {
		if i > 0 {
			b.WriteString("; ")
		}
		edges := make([]string, len(c.Edges))
		for j, edge := range c.Edges {
			edges[j] = edge.String()
		}
		fmt.Fprintf(&b, "cycle [%s] via %s", strings.Join(c.Types, ", "), strings.Join(edges, ", "))
	}
	b.WriteString(" (declare one field of each cycle as a two-pass reference field)")
	return b.String()
}

func (e *DeadlockError) Unwrap() error {
	return datacopy.ErrOrderingDeadlock
}

// Pairs returns every pair of types that reference each other directly, with the
// fields on each side.
func (e *DeadlockError) Pairs() []Pair {
	var pairs []Pair
	for _, c := range e.Cycles {
		fields := make(map[[2]string][]string)
		for _, edge := range c.Edges {
			k := [2]string{edge.Type, edge.Parent}
			fields[k] = append(fields[k], edge.Field)
		}
		for i, a := range c.Types {
			for _, b := range c.Types[i:] {
				ab, ba := fields[[2]string{a, b}], fields[[2]string{b, a}]
				if len(ab) == 0 || len(ba) == 0 {
					continue
				}
				if a == b {
					pairs = append(pairs, Pair{A: a, B: a, AFields: ab, BFields: ab})
					continue
				}
				pairs = append(pairs, Pair{A: a, B: b, AFields: ab, BFields: ba})
			}
		}
	}
	return pairs
}

// LoadOrder returns the type names so that every type follows its required parents.
//
// A required parent is an ordinary (not two-pass) parent whose type is one of the
// given types. References to metadata types or to types outside the set are ignored.
//
// Types are placed in rounds. Each round takes every type whose required parents are
// all placed, in the order the types were given.
//
// Returns a *DeadlockError if a round places nothing while types remain.
func LoadOrder(types []schema.ObjectType) ([]string, error) {
	g := newGraph(types)

	order := make([]string, 0, len(types))
	placed := make(map[string]bool, len(types))

	for len(order) < len(g.names) {
		var round []string
		for _, name := range g.names {
			if placed[name] {
				continue
			}
			ready := true
			for _, edge := range g.required[name] {
				if !placed[edge.Parent] {
					ready = false
					break
				}
			}
			if ready {
				round = append(round, name)
			}
		}

		if len(round) == 0 {
			return nil, g.deadlock(order, placed)
		}
		for _, name := range round {
			placed[name] = true
		}
		order = append(order, round...)
	}

	return order, nil
}

// DeleteOrder returns LoadOrder reversed, so children are removed before their parents.
func DeleteOrder(types []schema.ObjectType) ([]string, error) {
	order, err := LoadOrder(types)
	if err != nil {
		return nil, err
	}
	return Reverse(order), nil
}

// Reverse returns a reversed copy of order.
func Reverse(order []string) []string {
	out := make([]string, len(order))
	for i, name := range order {
		out[len(order)-1-i] = name
	}
	return out
}

type graph struct {
	names    []string
	index    map[string]int
	required map[string][]Edge
}

func newGraph(types []schema.ObjectType) *graph {
	g := &graph{
		names:    make([]string, 0, len(types)),
		index:    make(map[string]int, len(types)),
		required: make(map[string][]Edge, len(types)),
	}
	for _, t := range types {
		g.index[t.Name] = len(g.names)
		g.names = append(g.names, t.Name)
	}
	for _, t := range types {
		for _, p := range t.Parents {
			if _, ok := g.index[p.Type]; !ok {
				continue
			}
			g.required[t.Name] = append(g.required[t.Name], Edge{Type: t.Name, Field: p.Field, Parent: p.Type})
		}
	}
	return g
}

func (g *graph) deadlock(order []string, placed map[string]bool) *DeadlockError {
	err := &DeadlockError{Ordered: order}
	for _, name := range g.names {
		if !placed[name] {
			err.Remaining = append(err.Remaining, name)
		}
	}

	for _, scc := range g.components(err.Remaining) {
		members := make(map[string]bool, len(scc))
		for _, name := range scc {
			members[name] = true
		}

		var c Cycle
		c.Types = scc
		for _, name := range scc {
			for _, edge := range g.required[name] {
				if members[edge.Parent] {
					c.Edges = append(c.Edges, edge)
				}
			}
		}
		if len(scc) == 1 && len(c.Edges) == 0 {
			continue
		}
		err.Cycles = append(err.Cycles, c)
	}

	return err
}

// components returns the strongly connected components among the given types,
// ordered by their first member's discovery position, with members in discovery order.
func (g *graph) components(names []string) [][]string {
	in := make(map[string]bool, len(names))
	for _, name := range names {
		in[name] = true
	}

	var (
		counter int
		stack   []string
		onStack = make(map[string]bool)
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		result  [][]string
	)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, edge := range g.required[v] {
			w := edge.Parent
			if !in[w] {
				continue
			}
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Slice(scc, func(i, j int) bool { return g.index[scc[i]] < g.index[scc[j]] })
			result = append(result, scc)
		}
	}

	for _, name := range names {
		if _, seen := indices[name]; !seen {
			strongConnect(name)
		}
	}

	sort.Slice(result, func(i, j int) bool { return g.index[result[i][0]] < g.index[result[j][0]] })
	return result
}
