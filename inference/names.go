package inference

import (
	"regexp"
	"strconv"
	"strings"
)

var nameEntry = regexp.MustCompile(`(\d+)\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)

// parseNames reads the class table exported into ONNX metadata, written as
// a dict literal such as {0: 'gland', 1: "men's"}.
func parseNames(raw string) map[int]string {
	names := make(map[int]string)
	for _, m := range nameEntry.FindAllStringSubmatch(raw, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		label := m[2]
		if label == "" {
			label = m[3]
		}
		names[id] = unescapeLabel(label)
	}
	return names
}

func unescapeLabel(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// fillNames makes sure every class id has a label.
func fillNames(names map[int]string, numClasses int) map[int]string {
	if names == nil {
		names = make(map[int]string, numClasses)
	}
	for i := 0; i < numClasses; i++ {
		if _, ok := names[i]; !ok {
			names[i] = "class" + strconv.Itoa(i)
		}
	}
	return names
}
