package api

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 * 1024 // 64 KiB

var errInvalidBody = errors.New("invalid body")

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type createUserRequest struct {
	Username string `json:"username"`
}

type createProjectRequest struct {
	Name string `json:"name"`
}

type createListRequest struct {
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	Order     *int   `json:"order"`
}

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	ListID      string  `json:"listId"`
	Order       *int    `json:"order"`
}

// updateTaskRequest distinguishes absent fields from explicit nulls.
type updateTaskRequest struct {
	Title       optional[string] `json:"title"`
	Description optional[string] `json:"description"`
	ListID      optional[string] `json:"listId"`
	Order       optional[int]    `json:"order"`
}

type moveTaskRequest struct {
	ListID *string `json:"listId"`
	Order  *int    `json:"order"`
}

// realtimeRequest is a client frame on the WebSocket channel.
type realtimeRequest struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
}

// realtimeReply acknowledges joins and leaves or reports a refused join.
type realtimeReply struct {
	Event     string `json:"event"`
	ProjectID string `json:"projectId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// optional records whether a JSON field was present and whether it was null.
type optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		return nil
	}
	return sonic.ConfigStd.Unmarshal(data, &o.Value)
}

// decodeBody reads the JSON body of req into dst. A gzip Content-Encoding is
// unwrapped first; the size limit applies to the decoded bytes. Unknown
// fields, bad gzip and oversized payloads all yield errInvalidBody.
func decodeBody(req *http.Request, dst any) error {
	var body io.Reader = req.Body
	if gzipEncoded(req.Header.Get(echo.HeaderContentEncoding)) {
		zr, err := gzip.NewReader(req.Body)
		if err != nil {
			return errInvalidBody
		}
		defer zr.Close()
		body = zr
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxBodySize+1))
	if err != nil || len(raw) > maxBodySize {
		return errInvalidBody
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errInvalidBody
	}
	return nil
}

func gzipEncoded(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}
