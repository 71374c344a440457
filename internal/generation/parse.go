package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentItem is one parsed item from the model response.
type ContentItem struct {
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	Tags           []string `json:"tags"`
	SuggestedMedia string   `json:"suggested_media"`
}

const rawErrorLimit = 500

// ParseContentItems strips code-fence wrappers from the raw model output,
// parses it as a JSON array, and keeps the well-formed subset (non-empty
// title and body). The dropped count lets callers log partial acceptance.
// Parse failures preserve a truncated copy of the raw text for diagnosis.
func ParseContentItems(raw string) ([]ContentItem, int, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, 0, fmt.Errorf("empty model response; raw: %s", truncate(raw, rawErrorLimit))
	}

	var decoded []ContentItem
	if err := json.Unmarshal([]byte(fragment), &decoded); err != nil {
		return nil, 0, fmt.Errorf("parse model response: %w; raw: %s", err, truncate(raw, rawErrorLimit))
	}

	items := make([]ContentItem, 0, len(decoded))
	for _, item := range decoded {
		item.Title = strings.TrimSpace(item.Title)
		item.Body = strings.TrimSpace(item.Body)
		if item.Title == "" || item.Body == "" {
			continue
		}
		items = append(items, item)
	}
	dropped := len(decoded) - len(items)

	if len(items) == 0 {
		return nil, dropped, fmt.Errorf("no well-formed content items in model response; raw: %s", truncate(raw, rawErrorLimit))
	}
	return items, dropped, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
