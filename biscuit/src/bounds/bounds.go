// Package bounds enumerates the kernel's bounded-copy call sites —
// vm.AddressSpace's two places that copy a caller-controlled amount of
// data between user and kernel space — and the maximum byte length each
// is allowed. Grounded on the teacher's vm/as.go, whose K2user_inner/
// User2k_inner call out to a bounds.Bounds(...) lookup before copying;
// that package was referenced but not present in the retrieval (an empty
// stub directory upstream), so this is the minimal surface its call
// sites imply, narrowed to this kernel's two bounded copies.
package bounds

/// Bound_t names one bounded-copy call site.
type Bound_t int

const (
	/// B_EXECV_PATH is the execv program-path copyin (spec.md §4.4,
	/// MAX_PATH_LEN bytes).
	B_EXECV_PATH Bound_t = iota
	/// B_EXECV_ARG is a single execv argument copyin (spec.md §4.4,
	/// MAX_ARG_LEN bytes).
	B_EXECV_ARG
)

var names = map[Bound_t]string{
	B_EXECV_PATH: "execv path",
	B_EXECV_ARG:  "execv arg",
}

/// String renders the call site's name, for diagnostics.
func (b Bound_t) String() string {
	if n, ok := names[b]; ok {
		return n
	}
	return "bound(?)"
}

/// Check reports whether a copy of n bytes at call site b fits within
/// cap, the limit the caller supplies for that site (e.g. defs.MAX_PATH_LEN
/// or defs.MAX_ARG_LEN), so this package does not import defs. b names
/// the site but does not change the result.
func Check(b Bound_t, n, cap int) bool {
	return n >= 0 && n <= cap
}
