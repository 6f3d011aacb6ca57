package update

import (
	"regexp"
	"strings"
)

type questionIDMatcher struct {
	name    string
	pattern *regexp.Regexp
	extract func(match []string) string
}

func firstGroup(match []string) string {
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// questionIDMatchers is evaluated in order; the first pattern that matches wins.
var questionIDMatchers = []questionIDMatcher{
	{name: "id_label", pattern: regexp.MustCompile(`(?i)ID:\s*([a-zA-Z0-9-]+)`), extract: firstGroup},
	{name: "hash", pattern: regexp.MustCompile(`#([a-zA-Z0-9-]+)`), extract: firstGroup},
	{name: "pregunta", pattern: regexp.MustCompile(`(?i)Pregunta\s+([a-zA-Z0-9-]+)`), extract: firstGroup},
}

// ExtractQuestionID finds the question identifier embedded in a bot message.
func ExtractQuestionID(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	for _, m := range questionIDMatchers {
		match := m.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if id := m.extract(match); id != "" {
			return id, true
		}
	}

	return "", false
}
