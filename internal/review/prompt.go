package review

import (
	"encoding/json"
	"fmt"
	"strings"

	"deviation-classifier-go/internal/types"
)

// SystemPrompt is the fixed reviewer instruction: the six-field schema with
// every legal code per field, and the reply format.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are an experienced safety officer at an industrial company.
Your job is to review reported deviations and incidents and make sure their classification is coherent and precise.
Reports are usually written in Portuguese.

Validate and, if needed, correct the classification using these fields:
- "severity": how serious the problem is (0-5)
- "urgency": how quickly a response is needed (0-5)
- "trend": likelihood of recurrence or worsening (0-5)
- "type": kind of deviation (0-2)
- "routing": area or team responsible for handling it (0-4)
- "category": specific deviation category (0-12)

`)
	for _, d := range types.Domains() {
		fmt.Fprintf(&b, "Values for %q (int): %s\n", d.Field, d.Legend())
	}
	b.WriteString(`
Analyse the description and the given classification. If it is coherent, return the same classification.
If it is not, correct it and return the corrected version.

IMPORTANT: return ONLY a valid JSON object, with no additional text, using this flat structure:
`)
	b.WriteString(replyShape)
	return b.String()
}

const replyShape = `{
    "severity": <int>, "urgency": <int>, "trend": <int>,
    "type": <int>, "routing": <int>, "category": <int>
}`

func buildUserPrompt(text, location string, candidate types.Classification) string {
	current, _ := json.MarshalIndent(candidate, "", "    ")
	return fmt.Sprintf(`Reported deviation:
Location: %s
Description: %s

Current classification:
%s

Validate this classification and return it as flat JSON:
%s`, location, text, current, replyShape)
}
