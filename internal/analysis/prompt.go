package analysis

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an assistant specialised in tabletop role-playing game sessions. " +
	"You extract structured information from session transcripts and answer with JSON only."

const promptTemplate = `Analyse this transcript of a tabletop role-playing session and extract the following information.

TRANSCRIPT:
%s

Answer with a JSON object containing exactly these fields:

1. "narrative_summary": a 2-5 paragraph narrative summary of what happened, written as an engaging story.
2. "tldr_summary": a one or two sentence recap that can be read aloud at the start of the next session.
3. "npcs": a list of the non-player characters met or mentioned.
4. "items": a list of the items found, bought, used or mentioned.
5. "locations": a list of the places visited or mentioned.
6. "key_events": a list of the key events (fights, discoveries, major decisions).
7. "session_title": a catchy title that captures the essence of the session.

Write every value in %s. Use empty lists when nothing applies. Answer with valid JSON only, no extra text.`

// BuildPrompt renders the user prompt for transcript.
func BuildPrompt(transcript, outputLanguage string) string {
	language := strings.TrimSpace(outputLanguage)
	if language == "" {
		language = "French"
	}
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(transcript), language)
}

// SystemPrompt returns the fixed system message.
func SystemPrompt() string { return systemPrompt }
