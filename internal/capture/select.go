package capture

import "path/filepath"

// SelectInterfaces filters discovered interface names. An empty include list keeps
// every interface. Both lists accept shell patterns ("eth*", "veth*").
// Order follows discovered.
func SelectInterfaces(discovered, include, exclude []string) []string {
	selected := make([]string, 0, len(discovered))
	seen := make(map[string]bool, len(discovered))
	for _, name := range discovered {
		if seen[name] {
			continue
		}
		if len(include) > 0 && !matchAny(include, name) {
			continue
		}
		if matchAny(exclude, name) {
			continue
		}
		seen[name] = true
		selected = append(selected, name)
	}
	return selected
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
