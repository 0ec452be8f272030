package broker

import "strings"

// MatchTopic reports whether topic matches pattern using MQTT-style
// wildcards: "+" matches exactly one path segment, "#" matches the
// remainder of the topic (must be the final segment), per spec §4.D.
// This generalizes the whole-segment "*" matching the teacher's event
// bridge only partially implemented.
func MatchTopic(topic, pattern string) bool {
	if pattern == topic {
		return true
	}

	topicParts := strings.Split(topic, "/")
	patternParts := strings.Split(pattern, "/")

	for i, p := range patternParts {
		if p == "#" {
			return i <= len(topicParts)
		}
		if i >= len(topicParts) {
			return false
		}
		if p == "+" {
			continue
		}
		if p != topicParts[i] {
			return false
		}
	}
	return len(patternParts) == len(topicParts)
}
