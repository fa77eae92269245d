// Package events 把切分好的序列发布到 NATS，由上传服务消费
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"dashcam-geotag/internal/models"
)

// SequenceEvent 一个序列
type SequenceEvent struct {
	ID      string          `json:"id"`
	Images  int             `json:"images"`
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	Geotags []models.Geotag `json:"geotags"`
}

// Publisher 事件发布
type Publisher interface {
	PublishSequence(ctx context.Context, ev *SequenceEvent) error
	Close()
}

// NATS 发布到 subject.<序列 id>
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NewNATS 连接 NATS
func NewNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("dashcam-geotag"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{conn: conn, subject: subject}, nil
}

// PublishSequence 发布一个序列
func (p *NATS) PublishSequence(ctx context.Context, ev *SequenceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject+"."+ev.ID, data)
}

// Close 发送完缓冲的消息后关闭
func (p *NATS) Close() {
	_ = p.conn.Drain()
}

// NewSequenceEvent 由序列成员生成事件 (成员按时间排序)
func NewSequenceEvent(id string, members []*models.Geotag) *SequenceEvent {
	ev := &SequenceEvent{ID: id, Images: len(members)}
	for _, gt := range members {
		ev.Geotags = append(ev.Geotags, *gt)
	}
	if len(members) > 0 {
		if ts := members[0].Timestamp; ts != nil {
			ev.Start = *ts
		}
		if ts := members[len(members)-1].Timestamp; ts != nil {
			ev.End = *ts
		}
	}
	return ev
}
