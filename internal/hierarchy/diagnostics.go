package hierarchy

import "fmt"

// DiagnosticKind classifies a hierarchy integrity problem the builder
// resolved with a documented fallback instead of failing the build.
type DiagnosticKind string

const (
	// DiagnosticDanglingParent marks a page whose relation target is absent
	// from the input set; the page was kept as a root.
	DiagnosticDanglingParent DiagnosticKind = "dangling_parent"

	// DiagnosticMultipleParents marks a page whose relation field listed
	// more than one candidate; only the first was used.
	DiagnosticMultipleParents DiagnosticKind = "multiple_parents"

	// DiagnosticCycleBroken marks a node that was demoted to root to break
	// a parent-link cycle.
	DiagnosticCycleBroken DiagnosticKind = "cycle_broken"

	// DiagnosticDuplicateSlug marks a sibling group whose members shared a
	// slug and were suffix-renamed.
	DiagnosticDuplicateSlug DiagnosticKind = "duplicate_slug"

	// DiagnosticSubpageFetchFailed marks a nested page that could not be
	// retrieved during subpage discovery and was skipped.
	DiagnosticSubpageFetchFailed DiagnosticKind = "subpage_fetch_failed"
)

// Diagnostic records one resolved integrity problem so callers can assert on
// structured kinds instead of matching log output.
type Diagnostic struct {
	Kind    DiagnosticKind
	NodeID  string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s node=%s: %s", d.Kind, d.NodeID, d.Message)
}

// HasDiagnostic reports whether any collected diagnostic matches the kind.
func HasDiagnostic(diags []Diagnostic, kind DiagnosticKind) bool {
	for _, d := range diags {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
