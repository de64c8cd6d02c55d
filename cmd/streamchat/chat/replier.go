package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/papercomputeco/streamchat/api"
	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/llm/client"
	"github.com/papercomputeco/streamchat/pkg/sse"
	"github.com/papercomputeco/streamchat/pkg/storage"
	"github.com/papercomputeco/streamchat/pkg/stream"
	"github.com/papercomputeco/streamchat/pkg/utils"
)

// sessionTitleLength bounds titles derived from the first message.
const sessionTitleLength = 40

// replier produces one assistant reply per user turn, keeping whatever
// history the conversation needs.
type replier interface {
	reply(ctx context.Context, input string, sink stream.Sink) (string, error)
}

// streamer is the part of *client.Client the local replier uses.
type streamer interface {
	StreamTo(ctx context.Context, messages []llm.Message, sink stream.Sink) (*client.Result, error)
}

// localReplier talks to the LLM directly and keeps the history in memory.
type localReplier struct {
	client  streamer
	history []llm.Message
}

func (r *localReplier) reply(ctx context.Context, input string, sink stream.Sink) (string, error) {
	messages := append(slices.Clip(r.history), llm.NewTextMessage(llm.RoleUser, input))

	res, err := r.client.StreamTo(ctx, messages, sink)
	if err != nil {
		return "", err
	}

	r.history = append(messages, llm.NewTextMessage(llm.RoleAssistant, res.Text))
	return res.Text, nil
}

// remoteReplier sends turns to a streamchat API session and reads the reply
// back over SSE. The server keeps the history.
type remoteReplier struct {
	target     string
	token      string
	sessionID  string
	httpClient *http.Client
}

func (r *remoteReplier) reply(ctx context.Context, input string, sink stream.Sink) (string, error) {
	if r.sessionID == "" {
		sess, err := r.createSession(ctx, utils.Truncate(input, sessionTitleLength))
		if err != nil {
			return "", err
		}
		r.sessionID = sess.ID
	}

	resp, err := r.post(ctx, "/chat/sessions/"+r.sessionID+"/stream", map[string]string{"message": input})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	reader := sse.NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			return "", fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			return "", errors.New("stream ended without a reply")
		}

		switch ev.Type {
		case sse.EventFragment, sse.EventReplace, sse.EventComplete:
			var te api.TextEvent
			if err := json.Unmarshal([]byte(ev.Data), &te); err != nil {
				return "", fmt.Errorf("decoding %s event: %w", ev.Type, err)
			}
			switch ev.Type {
			case sse.EventFragment:
				sink.OnFragment(te.Text)
			case sse.EventReplace:
				if rp, ok := sink.(stream.Replacer); ok {
					rp.OnReplace(te.Text)
				}
			default:
				sink.OnComplete(te.Text)
				return te.Text, nil
			}

		case sse.EventError:
			err := decodeError(ev.Data)
			sink.OnError(err)
			return "", err
		}
	}
}

func (r *remoteReplier) createSession(ctx context.Context, title string) (*storage.Session, error) {
	resp, err := r.post(ctx, "/chat/sessions", map[string]string{"title": title})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sess storage.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

// post sends body as JSON and returns the response when it succeeded.
func (r *remoteReplier) post(ctx context.Context, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(r.target, "/")+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to api: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api returned status %d: %w", resp.StatusCode, decodeError(string(raw)))
	}
	return resp, nil
}

func decodeError(data string) error {
	var e llm.ErrorResponse
	if err := json.Unmarshal([]byte(data), &e); err != nil || e.Error == "" {
		return errors.New(strings.TrimSpace(data))
	}
	if e.Status != 0 {
		return fmt.Errorf("%s (upstream status %d)", e.Error, e.Status)
	}
	return errors.New(e.Error)
}
