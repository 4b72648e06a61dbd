package scheduler

import "github.com/dejo1307/cxxmodel/internal/preproc"

// State is one preprocessor context a file is to be parsed under, or one of
// the two placeholders.
type State struct {
	key     string
	Context *preproc.Context
}

var (
	// NextState requests a parse of the file under whatever contexts apply,
	// without naming one.
	NextState = State{key: "<next>"}
	// PartialReparseState requests an incremental reparse of the known
	// contexts only.
	PartialReparseState = State{key: "<partial>"}
)

// ForContext returns the state for ctx.
func ForContext(ctx *preproc.Context) State {
	return State{key: ctx.Key(), Context: ctx}
}

// ForContexts returns one state per context.
func ForContexts(ctxs []*preproc.Context) []State {
	out := make([]State, 0, len(ctxs))
	for _, c := range ctxs {
		out = append(out, ForContext(c))
	}
	return out
}

// IsPlaceholder reports whether s names no context.
func (s State) IsPlaceholder() bool {
	return s.Context == nil
}

func (s State) String() string {
	return s.key
}

// mergeStates unions add into cur, preserving first-seen order.
func mergeStates(cur, add []State) []State {
	seen := make(map[string]bool, len(cur)+len(add))
	out := make([]State, 0, len(cur)+len(add))
	for _, list := range [][]State{cur, add} {
		for _, s := range list {
			if seen[s.key] {
				continue
			}
			seen[s.key] = true
			out = append(out, s)
		}
	}
	return normalizeStates(out)
}

// normalizeStates drops placeholders once a real state is present. When
// only placeholders remain, NextState subsumes PartialReparseState.
func normalizeStates(states []State) []State {
	concrete := 0
	next := false
	for _, s := range states {
		if !s.IsPlaceholder() {
			concrete++
		}
		if s.key == NextState.key {
			next = true
		}
	}
	switch {
	case concrete > 0 && concrete < len(states):
		out := make([]State, 0, concrete)
		for _, s := range states {
			if !s.IsPlaceholder() {
				out = append(out, s)
			}
		}
		return out
	case concrete == 0 && next && len(states) > 1:
		return []State{NextState}
	}
	return states
}
