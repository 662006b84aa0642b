package logtail

import "strings"

// Filter decides whether a log line is kept. Nil filters keep everything.
type Filter func(line string) bool

// NoiseFilter builds a filter that drops lines containing any of the given
// substrings. Used to suppress transport chatter (HTTP poll loops,
// keep-alives) from user-facing log output.
func NoiseFilter(substrings []string) Filter {
	if len(substrings) == 0 {
		return nil
	}
	return func(line string) bool {
		for _, s := range substrings {
			if s != "" && strings.Contains(line, s) {
				return false
			}
		}
		return true
	}
}

// keep applies f to line, treating a nil filter as keep-all.
func (f Filter) keep(line string) bool {
	return f == nil || f(line)
}
