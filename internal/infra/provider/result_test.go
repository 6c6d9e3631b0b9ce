package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantURL string
		wantOK  bool
	}{
		{
			name:    "content array with typed video item",
			payload: `{"status":"succeeded","content":[{"type":"video","video_url":"https://x/r.mp4"}]}`,
			wantURL: "https://x/r.mp4",
			wantOK:  true,
		},
		{
			name:    "content array with typed image item",
			payload: `{"content":[{"type":"image","image_url":"https://x/r.png"}]}`,
			wantURL: "https://x/r.png",
			wantOK:  true,
		},
		{
			name:    "content array skips non-media items",
			payload: `{"content":[{"type":"text","text":"a cat"},{"type":"video","url":"https://x/r.mp4"}]}`,
			wantURL: "https://x/r.mp4",
			wantOK:  true,
		},
		{
			name:    "content array with untyped item carrying a url",
			payload: `{"content":[{"video_url":"https://x/r.mp4"}]}`,
			wantURL: "https://x/r.mp4",
			wantOK:  true,
		},
		{
			name:    "single content object",
			payload: `{"status":"succeeded","content":{"video_url":"https://x/r.mp4"}}`,
			wantURL: "https://x/r.mp4",
			wantOK:  true,
		},
		{
			name:    "top-level url field",
			payload: `{"status":"succeeded","video_url":"https://x/r.mp4"}`,
			wantURL: "https://x/r.mp4",
			wantOK:  true,
		},
		{
			name:    "succeeded but no usable url anywhere",
			payload: `{"status":"succeeded","content":[{"type":"video"}]}`,
			wantOK:  false,
		},
		{
			name:    "empty content array",
			payload: `{"status":"succeeded","content":[]}`,
			wantOK:  false,
		},
		{
			name:    "url field holds a non-string",
			payload: `{"content":{"video_url":42}}`,
			wantOK:  false,
		},
		{
			name:    "not json at all",
			payload: `<!doctype html>`,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, ok := ResultURL([]byte(tt.payload))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}
