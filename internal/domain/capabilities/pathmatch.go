package capabilities

import pathpkg "path"

// canonicalizePath resolves ".." and "." segments lexically and returns an
// absolute, cleaned form. Unlike the original Rust model (which calls
// path.canonicalize() against the real filesystem), Lion's capability
// layer must remain a pure, side-effect-free function of its inputs — the
// real filesystem access it gates happens behind the sandbox, out of
// scope here — so canonicalization is purely lexical. A path that cannot
// be made absolute-and-clean (empty, or one that still escapes above its
// own root after cleaning) fails to canonicalize and is denied, matching
// spec.md §4.A / §8 "Canonicalization defeats traversal".
func canonicalizePath(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if !pathpkg.IsAbs(p) {
		p = "/" + p
	}
	clean := pathpkg.Clean(p)
	// pathpkg.Clean on an absolute path never leaves a leading "..", but
	// guard explicitly since this is a security boundary.
	if clean == ".." || len(clean) >= 3 && clean[:3] == "../" {
		return "", false
	}
	return clean, true
}

// isPathAllowed reports whether path canonicalizes and its canonical form
// has one of allowed's canonical forms as a path-segment prefix. The empty
// allowed set denies everything (spec.md §4.A "empty set treated as
// deny-all").
func isPathAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	canonical, ok := canonicalizePath(path)
	if !ok {
		return false
	}
	for _, a := range allowed {
		canonicalAllowed, ok := canonicalizePath(a)
		if !ok {
			continue
		}
		if pathHasPrefix(canonical, canonicalAllowed) {
			return true
		}
	}
	return false
}

// pathHasPrefix reports whether child is canonicalAllowed itself or lies
// under it, matching on path segments rather than raw byte prefix so that
// "/tmpx" is not treated as being under "/tmp".
func pathHasPrefix(child, prefix string) bool {
	if child == prefix {
		return true
	}
	if prefix == "/" {
		return true
	}
	return len(child) > len(prefix) && child[:len(prefix)] == prefix && child[len(prefix)] == '/'
}

// intersectPaths returns the set intersection of two path scopes, under
// the "is-prefix-of" relation: a path p from either set survives if it is
// covered by (or covers and is replaced by) some path in the other set.
// Used by File.Constrain to narrow scope monotonically.
func intersectPaths(existing []string, constraintPath string) []string {
	canonicalConstraint, ok := canonicalizePath(constraintPath)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range existing {
		canonicalP, ok := canonicalizePath(p)
		if !ok {
			continue
		}
		switch {
		case pathHasPrefix(canonicalP, canonicalConstraint):
			// existing path already narrower than or equal to constraint
			out = append(out, p)
		case pathHasPrefix(canonicalConstraint, canonicalP):
			// constraint is narrower; intersection is the constraint itself
			out = append(out, constraintPath)
		}
	}
	return out
}
