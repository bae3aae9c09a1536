package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// RedisRelay publishes events on a Redis channel and relays everything
// received on that channel into the local hub, so every instance serves the
// subscribers connected to it.
type RedisRelay struct {
	rc      *redis.Client
	channel string
	hub     *Hub
	logger  *log.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

func NewRedisRelay(rc *redis.Client, channel string, hub *Hub, logger *log.Logger) *RedisRelay {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisRelay{rc: rc, channel: channel, hub: hub, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the first subscription is confirmed by the server.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

func (r *RedisRelay) Publish(ctx context.Context, ev domain.Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	return r.rc.Publish(ctx, r.channel, frame).Err()
}

type frameHeader struct {
	Event     string `json:"event"`
	ProjectID string `json:"projectId"`
}

// Run consumes the channel until ctx is cancelled, resubscribing after
// connection loss.
func (r *RedisRelay) Run(ctx context.Context) {
	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			r.logger.WithError(err).Error("subscribe to events channel failed, retrying")
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}
		r.readyOnce.Do(func() { close(r.ready) })

		r.consume(ctx, sub.Channel())
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("pubsub channel closed, reconnecting")
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var hdr frameHeader
			if err := sonic.UnmarshalString(msg.Payload, &hdr); err != nil || hdr.ProjectID == "" {
				r.logger.WithField("channel", msg.Channel).Warn("unable to parse relayed event, ignoring it")
				continue
			}
			r.hub.Deliver(Message{ProjectID: hdr.ProjectID, Event: hdr.Event, Frame: []byte(msg.Payload)})
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
