package structured

import (
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON pulls a JSON document out of a model reply that may wrap it
// in markdown fences or surrounding prose.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		if matches := fencedBlockRe.FindStringSubmatch(response); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	// Object boundaries.
	if start, end := strings.Index(response, "{"), strings.LastIndex(response, "}"); start >= 0 && end > start {
		return response[start : end+1]
	}

	// Array boundaries.
	if start, end := strings.Index(response, "["), strings.LastIndex(response, "]"); start >= 0 && end > start {
		return response[start : end+1]
	}

	return response
}
