package broker

import "strings"

// MatchTopic reports whether topic matches pattern, using the broker
// convention referenced in spec §4.1: "*" matches exactly one path segment,
// ">" matches one-or-more trailing segments and must be the final token.
func MatchTopic(pattern, topic string) bool {
	pSegs := strings.Split(pattern, "/")
	tSegs := strings.Split(topic, "/")

	for i, p := range pSegs {
		if p == ">" {
			return i < len(tSegs)
		}
		if i >= len(tSegs) {
			return false
		}
		if p == "*" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(tSegs)
}
