package respond

import (
	"fmt"
	"strings"

	"github.com/saarthi-dev/saarthi/internal/scheme"
	"github.com/saarthi-dev/saarthi/internal/storage"
)

// historyWindow is how many recent turns are carried into the prompt.
const historyWindow = 4

// BuildPrompt assembles the grounding-constrained prompt: profile
// attributes, the grounding set, recent turns, the query, and the
// instruction to answer only from the listed schemes in the profile's
// language.
func BuildPrompt(query string, p scheme.Profile, grounding []scheme.Scheme, history []storage.Turn) string {
	var b strings.Builder

	b.WriteString("You are an assistant for government, skill and education schemes.\n")
	b.WriteString("Answer using ONLY the schemes listed below. Do not mention or invent any other scheme.\n")
	if p.Language != "" {
		fmt.Fprintf(&b, "Reply in the language with tag %q.\n", p.Language)
	}

	fmt.Fprintf(&b, "\nUser: age %d, education %s.\n", p.Age, p.Education)

	b.WriteString("\nSchemes:\n")
	for i, sc := range grounding {
		fmt.Fprintf(&b, "%d. %s\n", i+1, sc.Name)
		fmt.Fprintf(&b, "   Description: %s\n", sc.Description)
		fmt.Fprintf(&b, "   Benefits: %s\n", sc.Benefits)
		if sc.EligibilityText != "" {
			fmt.Fprintf(&b, "   Eligibility: %s\n", sc.EligibilityText)
		}
		fmt.Fprintf(&b, "   Source: %s\n", sc.SourceURL)
	}

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Query, turn.Response)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", query)
	return b.String()
}
