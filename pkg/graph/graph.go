package graph

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

var uuidRe = regexp.MustCompile(
	`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// References scans the serialized item body and returns every UUID found
// in it, except the item's own id. The result is a superset of the true
// reference set but only ids of other known items matter downstream.
func References(item types.Item) (map[string]struct{}, error) {
	data, err := json.Marshal(item.Body)
	if err != nil {
		return nil, fmt.Errorf("serializing %s %s: %w", item.Kind, item.Name, err)
	}
	refs := make(map[string]struct{})
	for _, match := range uuidRe.FindAllString(string(data), -1) {
		if match != item.ID {
			refs[match] = struct{}{}
		}
	}
	return refs, nil
}

// Rewrite replaces every occurrence of a mapped id anywhere in the body
// and returns the rewritten body plus the number of replacements. The
// input body is not modified.
func Rewrite(body map[string]any, idMap map[string]string) (map[string]any, int, error) {
	if len(idMap) == 0 {
		return body, 0, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("serializing body: %w", err)
	}

	count := 0
	out := uuidRe.ReplaceAllStringFunc(string(data), func(id string) string {
		if repl, ok := idMap[id]; ok {
			count++
			return repl
		}
		return id
	})
	if count == 0 {
		return body, 0, nil
	}

	var rewritten map[string]any
	if err := json.Unmarshal([]byte(out), &rewritten); err != nil {
		return nil, 0, fmt.Errorf("reparsing rewritten body: %w", err)
	}
	return rewritten, count, nil
}

// DeleteOrder sorts items so every item precedes the items it references.
// Siblings come out in ascending safe-name order.
func DeleteOrder(items []types.Item) ([]types.Item, error) {
	return topoOrder(items, false)
}

// PushOrder sorts items so every item follows the items it references.
// Siblings come out in ascending safe-name order here too; the push order
// is not simply the delete order reversed.
func PushOrder(items []types.Item) ([]types.Item, error) {
	return topoOrder(items, true)
}

// topoOrder runs Kahn's algorithm over the in-set reference edges. For
// delete, an item is ready once nothing left references it; for push, once
// everything it references is already out. Ready items are emitted lowest
// safe name first so the result is stable across runs.
func topoOrder(items []types.Item, push bool) ([]types.Item, error) {
	byID := make(map[string]int, len(items))
	for i, item := range items {
		byID[item.ID] = i
	}

	// refs[i] holds the in-set items item i references.
	refs := make([][]int, len(items))
	for i, item := range items {
		set, err := References(item)
		if err != nil {
			return nil, err
		}
		for id := range set {
			if j, ok := byID[id]; ok && j != i {
				refs[i] = append(refs[i], j)
			}
		}
	}

	// succ[i] are the items a step closer to ready once i is emitted.
	succ := make([][]int, len(items))
	indegree := make([]int, len(items))
	for i, rr := range refs {
		for _, j := range rr {
			if push {
				succ[j] = append(succ[j], i)
				indegree[i]++
			} else {
				succ[i] = append(succ[i], j)
				indegree[j]++
			}
		}
	}

	ready := newNameHeap(items)
	for i := range items {
		if indegree[i] == 0 {
			ready.push(i)
		}
	}

	done := make([]bool, len(items))
	out := make([]types.Item, 0, len(items))
	for len(out) < len(items) {
		if ready.empty() {
			// Reference cycle. Force out the lowest-named remaining item
			// so a total order still comes back.
			i := lowestRemaining(ready, done)
			logger := log.WithComponent("graph")
			logger.Error().
				Str("kind", string(items[i].Kind)).
				Str("name", items[i].Name).
				Msg("Reference cycle detected, breaking at this item")
			indegree[i] = 0
			ready.push(i)
		}

		i := ready.pop()
		if done[i] {
			continue
		}
		done[i] = true
		out = append(out, items[i])
		for _, j := range succ[i] {
			if done[j] {
				continue
			}
			indegree[j]--
			if indegree[j] == 0 {
				ready.push(j)
			}
		}
	}
	return out, nil
}

func lowestRemaining(h *nameHeap, done []bool) int {
	best := -1
	for i := range done {
		if done[i] {
			continue
		}
		if best < 0 || h.less(i, best) {
			best = i
		}
	}
	return best
}

// nameHeap is a tiny priority queue of item indexes ordered by the items'
// safe file names.
type nameHeap struct {
	names []string // safe names, indexed like items
	raw   []string
	idx   []int
}

func newNameHeap(items []types.Item) *nameHeap {
	h := &nameHeap{
		names: make([]string, len(items)),
		raw:   make([]string, len(items)),
	}
	for i, item := range items {
		h.names[i] = store.SafeFilename(item.Name)
		h.raw[i] = item.Name
	}
	return h
}

func (h *nameHeap) less(a, b int) bool {
	if h.names[a] != h.names[b] {
		return h.names[a] < h.names[b]
	}
	return h.raw[a] < h.raw[b]
}

func (h *nameHeap) empty() bool { return len(h.idx) == 0 }

func (h *nameHeap) push(i int) {
	h.idx = append(h.idx, i)
	sort.Slice(h.idx, func(a, b int) bool { return h.less(h.idx[a], h.idx[b]) })
}

func (h *nameHeap) pop() int {
	i := h.idx[0]
	h.idx = h.idx[1:]
	return i
}
