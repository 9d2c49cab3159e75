package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Event is one server-sent event.
type Event struct {
	ID   string
	Type string
	Data string
}

// Subscribe opens a server-sent event stream at path and calls fn for every
// event until ctx is cancelled or the server closes the stream. It returns nil
// when the stream ends and an ErrCanceled error when ctx is cancelled. The
// configured per-call timeout does not apply to the stream.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(Event)) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx.Err() != nil {
		return canceledError(ctx)
	}
	req := Request{Method: http.MethodGet, Path: path}
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		classified := Classify(err)
		c.notify(classified)
		return classified
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return canceledError(ctx)
		}
		classified := Classify(err)
		if classified.Kind == KindUnknown {
			classified.Kind = KindNetworkError
		}
		c.notify(classified)
		return classified
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		classified := statusError(&Response{
			Status:    resp.StatusCode,
			Path:      path,
			Body:      data,
			RequestID: httpReq.Header.Get(headerRequestID),
		})
		c.notify(classified)
		return classified
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return canceledError(ctx)
	}
	if err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func readEvents(r io.Reader, fn func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev Event
	var data []string
	flush := func() {
		if len(data) == 0 && ev.Type == "" {
			return
		}
		ev.Data = strings.Join(data, "\n")
		if ev.Type == "" {
			ev.Type = "message"
		}
		fn(ev)
		ev = Event{ID: ev.ID}
		data = data[:0]
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Type = value
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = value
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	flush()
	return nil
}
