package update

import (
	"log/slog"
	"sort"
)

// topoSort orders entity types so that every type appears after all of
// its declared dependencies that are present in the same plan.
//
// Depth-first with post-order append. Roots and neighbors are visited in
// sorted order so the result is deterministic for a given type set.
// Dependencies not present in the plan are ignored. A dependency cycle
// cannot be honored; the back-edge is skipped with a warning rather than
// failing the plan.
func topoSort(present map[string]bool, deps func(entityType string) []string) []string {
	types := make([]string, 0, len(present))
	for t := range present {
		types = append(types, t)
	}
	sort.Strings(types)

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	stateOf := make(map[string]int, len(types))
	order := make([]string, 0, len(types))

	var visit func(t string, path []string)
	visit = func(t string, path []string) {
		switch stateOf[t] {
		case done:
			return
		case inStack:
			slog.Warn("dependency cycle between entity types, breaking edge",
				"entity_type", t, "path", path)
			return
		}
		stateOf[t] = inStack

		dependencies := append([]string(nil), deps(t)...)
		sort.Strings(dependencies)
		for _, dep := range dependencies {
			if !present[dep] {
				continue
			}
			visit(dep, append(path, t))
		}

		stateOf[t] = done
		order = append(order, t)
	}

	for _, t := range types {
		visit(t, nil)
	}
	return order
}
