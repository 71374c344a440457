package generation

import (
	"fmt"
	"strings"

	"server/internal/domain"
)

// contentItemSchema is the exact shape the model is asked to emit.
const contentItemSchema = `[{"title":string,"body":string,"tags":string[],"suggested_media":string}]`

// BuildPrompt renders a deterministic natural-language prompt from the
// profile's brand attributes. The model is told to answer with JSON only;
// responses still arrive fenced often enough that parsing strips the
// wrappers anyway.
func BuildPrompt(p *domain.Profile, itemCount int) string {
	if itemCount <= 0 {
		itemCount = 5
	}
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are a social media content strategist for the brand %q", p.BrandName)
	if industry := strings.TrimSpace(p.Industry); industry != "" {
		fmt.Fprintf(sb, " operating in the %s industry", industry)
	}
	sb.WriteString(". ")
	if desc := strings.TrimSpace(p.BrandDescription); desc != "" {
		fmt.Fprintf(sb, "About the brand: %s. ", desc)
	}
	if voice := strings.TrimSpace(p.VoiceDescription); voice != "" {
		fmt.Fprintf(sb, "Brand voice: %s. ", voice)
	}
	if goal := strings.TrimSpace(p.PrimaryGoal); goal != "" {
		fmt.Fprintf(sb, "Primary goal of the content: %s. ", goal)
	}
	fmt.Fprintf(sb, "Create exactly %d social media post ideas. ", itemCount)
	sb.WriteString("Respond strictly with a JSON array matching this schema: ")
	sb.WriteString(contentItemSchema)
	sb.WriteString(". Every item needs a non-empty title and body. Do not include any prose, explanation, or Markdown code fences.")
	return sb.String()
}
