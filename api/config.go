// Package api provides the streamchat HTTP API: password auth, chat sessions,
// streamed model replies over SSE and video parsing.
package api

import (
	"context"

	"github.com/papercomputeco/streamchat/pkg/webhook"
)

// VideoParser is the workflow surface the video routes need.
// *webhook.Client satisfies it.
type VideoParser interface {
	ParseVideo(ctx context.Context, message string) (*webhook.Response, error)
	ParseVideoStream(ctx context.Context, message string, onChunk func(webhook.Chunk)) error
}

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// Video serves /video/*. When nil those routes answer 503.
	Video VideoParser
}
