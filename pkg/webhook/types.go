package webhook

import "time"

// DefaultUserID is sent when the caller does not identify the user.
const DefaultUserID = "frontend-user"

// Request is the JSON body posted to the workflow webhook.
type Request struct {
	Message   string    `json:"message"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is the workflow's non-streaming reply.
type Response struct {
	Success   bool          `json:"success"`
	Data      *ResponseData `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

// ResponseData is the parsed video content.
type ResponseData struct {
	ParsedContent string     `json:"parsedContent"`
	VideoInfo     *VideoInfo `json:"videoInfo,omitempty"`
	Analysis      *Analysis  `json:"analysis,omitempty"`
}

type VideoInfo struct {
	Title    string `json:"title,omitempty"`
	Duration string `json:"duration,omitempty"`
	Author   string `json:"author,omitempty"`
	URL      string `json:"url,omitempty"`
}

type Analysis struct {
	Summary   string   `json:"summary,omitempty"`
	KeyPoints []string `json:"keyPoints,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// ChunkType labels a streamed chunk.
type ChunkType string

const (
	ChunkText      ChunkType = "text"
	ChunkVideoInfo ChunkType = "video_info"
	ChunkAnalysis  ChunkType = "analysis"
	ChunkError     ChunkType = "error"
)

// Chunk is one piece of a streamed workflow reply.
type Chunk struct {
	Type  ChunkType `json:"type"`
	Data  string    `json:"data"`
	Final bool      `json:"isFinal,omitempty"`
}
