package main

import (
	"strings"

	"github.com/jerrinot/pp-query/internal/pathname"
)

// shortName makes a function name readable: source annotations are
// dropped, "int ns::f(int) C" becomes "ns::f", and dotted or slashed
// names keep their last two components ("com/example/App.process" ->
// "App.process").
func shortName(name string) string {
	base := pathname.StripAnnotations(name)
	if i := strings.Index(base, "("); i > 0 && strings.Contains(base[:i], " ") {
		if fields := strings.Fields(base[:i]); len(fields) > 0 {
			return fields[len(fields)-1]
		}
	}
	if strings.ContainsAny(base, " (") {
		return base
	}
	base = strings.ReplaceAll(base, "/", ".")
	parts := strings.Split(base, ".")
	if len(parts) >= 2 && parts[len(parts)-2] != "" {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return base
}

func displayName(name string, fqn bool) string {
	if fqn {
		return pathname.StripAnnotations(name)
	}
	return shortName(name)
}

func matchesMethod(name, pattern string) bool {
	return strings.Contains(pathname.StripAnnotations(name), pattern) || strings.Contains(shortName(name), pattern)
}

func truncate(n, top int) int {
	if top > 0 && top < n {
		return top
	}
	return n
}
