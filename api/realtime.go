package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/broadcast"
	"taskboard/domain"
)

const (
	writeTimeout      = 5 * time.Second
	streamKeepalive   = 25 * time.Second
	maxRealtimeFrame  = 4 * 1024
	frameJoin         = "join"
	frameLeave        = "leave"
	replyJoined       = "joined"
	replyLeft         = "left"
	replyError        = "error"
	errUnknownFrame   = "Unknown message type"
	errMalformedFrame = "Validation error"
)

// realtime upgrades to a WebSocket. Clients send join and leave frames and
// receive every event published to the projects they have joined.
func realtime(svc Services, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := currentUser(c)
		origins := svc.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return nil
		}
		conn.SetReadLimit(maxRealtimeFrame)

		sub := svc.Rooms.Subscribe()
		ctx, cancel := context.WithCancel(c.Request().Context())
		defer func() {
			cancel()
			svc.Rooms.Unsubscribe(sub)
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}()

		entry := logger.WithField("user", user.Username)
		entry.Debug("realtime client connected")
		go pump(ctx, cancel, conn, sub, entry)

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
					entry.WithError(err).Debug("realtime read ended")
				}
				return nil
			}
			reply := handleFrame(ctx, svc, user, sub, data)
			if err := writeReply(ctx, conn, reply); err != nil {
				return nil
			}
		}
	}
}

func handleFrame(ctx context.Context, svc Services, user *domain.User, sub *broadcast.Subscription, data []byte) realtimeReply {
	var req realtimeRequest
	if err := sonic.ConfigStd.Unmarshal(data, &req); err != nil || req.ProjectID == "" {
		return realtimeReply{Event: replyError, Data: errorResponse{Error: errMalformedFrame}}
	}
	switch req.Type {
	case frameJoin:
		if err := svc.Boards.Authorize(ctx, user, req.ProjectID); err != nil {
			_, body, _ := classify(err)
			return realtimeReply{Event: replyError, ProjectID: req.ProjectID, Data: body}
		}
		svc.Rooms.Join(sub, req.ProjectID)
		return realtimeReply{Event: replyJoined, ProjectID: req.ProjectID}
	case frameLeave:
		svc.Rooms.Leave(sub, req.ProjectID)
		return realtimeReply{Event: replyLeft, ProjectID: req.ProjectID}
	default:
		return realtimeReply{Event: replyError, Data: errorResponse{Error: errUnknownFrame}}
	}
}

// pump forwards subscription messages to the socket until either side ends.
func pump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *broadcast.Subscription, entry *log.Entry) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg.Frame)
			wcancel()
			if err != nil {
				entry.WithError(err).Debug("realtime write failed")
				return
			}
		}
	}
}

func writeReply(ctx context.Context, conn *websocket.Conn, reply realtimeReply) error {
	data, err := sonic.Marshal(reply)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

// streamProject serves one project's events as Server-Sent Events.
func streamProject(svc Services, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		projectID := c.Param("id")
		ctx := c.Request().Context()
		if err := svc.Boards.Authorize(ctx, currentUser(c), projectID); err != nil {
			return respondError(c, err)
		}
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		sub := svc.Rooms.Subscribe()
		svc.Rooms.Join(sub, projectID)
		defer svc.Rooms.Unsubscribe(sub)

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)
		if _, err := c.Response().Write([]byte(": connected\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(streamKeepalive)
		defer ticker.Stop()
		for {
			var chunk []byte
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				chunk = []byte(": ping\n\n")
			case msg, ok := <-sub.C():
				if !ok {
					return nil
				}
				chunk = sseFrame(msg)
			}
			if _, err := c.Response().Write(chunk); err != nil {
				logger.WithError(err).WithField("project", projectID).Debug("event stream closed")
				return nil
			}
			flusher.Flush()
		}
	}
}

func sseFrame(msg broadcast.Message) []byte {
	out := make([]byte, 0, len(msg.Frame)+len(msg.Event)+16)
	out = append(out, "event: "...)
	out = append(out, msg.Event...)
	out = append(out, "\ndata: "...)
	out = append(out, msg.Frame...)
	return append(out, "\n\n"...)
}
