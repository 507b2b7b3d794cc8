package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultProviderTimeout = 90 * time.Second

// errBodyLimit caps how much of a failed reply ends up in the error.
const errBodyLimit = 4 << 10

// wireMessage is the role/content pair both HTTP backends accept.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWire(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// postJSON POSTs body to url and decodes a 2xx reply into out. Any other
// status is reported as "<backend>: <reply body or status>".
func postJSON(ctx context.Context, client *http.Client, backend, url string, header http.Header, body, out any) error {
	if client == nil {
		return fmt.Errorf("%s: http client is nil", backend)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		detail := strings.TrimSpace(string(raw))
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("%s: %s", backend, detail)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode reply: %w", backend, err)
	}
	return nil
}

var errEmptyReply = errors.New("empty reply")
