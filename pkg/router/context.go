package router

import (
	"strings"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// DefaultContextWindow is the number of prior user turns considered.
	DefaultContextWindow = 2

	maxAssistantContext = 200
)

// refinementMarkers flag a follow-up that only makes sense with the previous
// turns ("ahora con una tasa del 12%").
var refinementMarkers = []string{
	"ahora", "pero", "con", "cambia", "modifica", "ajusta",
	"en vez", "en lugar", "si fuera", "que pasa si", "y si", "usando",
	"now", "instead", "what if", "change", "modify", "adjust", "using", "with",
}

// theoryMarkers flag conceptual questions. They are left out of the context
// of a calculation follow-up.
var theoryMarkers = []string{
	"que es", "define", "explica", "cual es", "como se", "significado",
	"concepto", "diferencia entre", "para que sirve", "por que", "porque",
	"what is", "explain", "meaning", "difference between", "why",
}

// QueryWithContext returns the text to route for the latest user turn. A
// standalone turn is returned unchanged. A refinement is prefixed with up to
// window earlier user turns (and the assistant reply that followed each,
// truncated); theory questions are skipped when the latest turn asks for a
// calculation. It returns "" when history has no user turn.
func (m *Matcher) QueryWithContext(history []Turn, window int) string {
	if window <= 0 {
		window = DefaultContextWindow
	}

	last := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser && strings.TrimSpace(history[i].Content) != "" {
			last = i
			break
		}
	}
	if last == -1 {
		return ""
	}
	current := history[last].Content

	if !hasMarker(normalize(current), refinementMarkers) {
		return current
	}
	calculation := m.IsCalculation(current, "")

	// Collected newest first, reversed below.
	var blocks []string
	turns := 0
	for i := last - 1; i >= 0 && turns < window; i-- {
		if history[i].Role != RoleUser {
			continue
		}
		if calculation && hasMarker(normalize(history[i].Content), theoryMarkers) {
			continue
		}
		block := "User: " + history[i].Content
		if reply := assistantReply(history, i, last); reply != "" {
			block += "\nAssistant: " + reply
		}
		blocks = append(blocks, block)
		turns++
	}
	if len(blocks) == 0 {
		return current
	}

	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}

	var sb strings.Builder
	sb.WriteString("PREVIOUS CONTEXT:\n")
	sb.WriteString(strings.Join(blocks, "\n"))
	sb.WriteString("\n\nNEW QUERY:\n")
	sb.WriteString(current)
	return sb.String()
}

// assistantReply returns the first assistant turn after user turn i and
// before limit, truncated.
func assistantReply(history []Turn, i, limit int) string {
	for j := i + 1; j < limit; j++ {
		switch history[j].Role {
		case RoleAssistant:
			return truncateRunes(history[j].Content, maxAssistantContext)
		case RoleUser:
			return ""
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func hasMarker(text string, markers []string) bool {
	for _, m := range markers {
		if containsTrigger(text, m) {
			return true
		}
	}
	return false
}
