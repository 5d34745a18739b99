package namespace

// Match reports whether s matches the glob pattern, where '*' matches any run of
// characters and '?' matches exactly one. Comparison folds case with RFC 1459 rules.
func Match(pattern, s string) bool {
	p := PolicyRFC1459.Fold(pattern)
	t := PolicyRFC1459.Fold(s)

	pi, ti := 0, 0
	starP, starT := -1, 0
	for ti < len(t) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == t[ti]):
			pi++
			ti++
		case pi < len(p) && p[pi] == '*':
			starP = pi
			starT = ti
			pi++
		case starP >= 0:
			pi = starP + 1
			starT++
			ti = starT
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
