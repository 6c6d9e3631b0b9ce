package provider

import "encoding/json"

// The shape of a succeeded payload has drifted across provider versions:
// sometimes a content array of typed items, sometimes a single content
// object, sometimes a bare top-level field. Extraction is an ordered list of
// probes so reconciliation never has to know which vintage it is looking at.

type extractor func(doc map[string]any) (string, bool)

var extractors = []extractor{
	contentItemsURL,
	contentObjectURL,
	topLevelURL,
}

var urlFields = []string{"video_url", "image_url", "url"}

// ResultURL probes a decoded provider payload for the generated media URL.
// The second return is false when no usable URL is present anywhere.
func ResultURL(payload []byte) (string, bool) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", false
	}

	for _, extract := range extractors {
		if url, ok := extract(doc); ok {
			return url, true
		}
	}

	return "", false
}

// contentItemsURL handles {"content": [{"type":"video","video_url":...}, ...]}.
func contentItemsURL(doc map[string]any) (string, bool) {
	items, ok := doc["content"].([]any)
	if !ok {
		return "", false
	}

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := m["type"].(string); ok && t != "video" && t != "image" {
			continue
		}
		if url, ok := firstURLField(m); ok {
			return url, true
		}
	}

	return "", false
}

// contentObjectURL handles {"content": {"video_url": ...}}.
func contentObjectURL(doc map[string]any) (string, bool) {
	m, ok := doc["content"].(map[string]any)
	if !ok {
		return "", false
	}
	return firstURLField(m)
}

// topLevelURL handles {"video_url": ...} on the response itself.
func topLevelURL(doc map[string]any) (string, bool) {
	return firstURLField(doc)
}

func firstURLField(m map[string]any) (string, bool) {
	for _, field := range urlFields {
		if url, ok := m[field].(string); ok && url != "" {
			return url, true
		}
	}
	return "", false
}
