package runtime

import (
	"strconv"
	"strings"

	"github.com/fluxbotics/visionflow/pkg/compiler"
)

// Stack is the dynamic broadcast-index stack a Value carries at runtime:
// one integer per broadcast scope it has entered, outermost first. It is
// the runtime counterpart of the compiled ComponentPlan.Stack, which names
// the scope identities rather than the concrete indices within them.
type Stack []int

// Key renders the stack as a comparable, hashable map key.
func (s Stack) Key() string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Append returns a new stack with idx appended; s is left untouched.
func (s Stack) Append(idx int) Stack {
	out := make(Stack, len(s)+1)
	copy(out, s)
	out[len(s)] = idx
	return out
}

// Truncate returns the first n elements of s.
func (s Stack) Truncate(n int) Stack {
	if n >= len(s) {
		return s[:len(s):len(s)]
	}
	return s[:n]
}

// containsScope reports whether id appears anywhere in stack's static
// compiled scope list.
func containsScope(stack []compiler.ScopeID, id compiler.ScopeID) bool {
	for _, s := range stack {
		if s == id {
			return true
		}
	}
	return false
}
