// Package sink 接收每帧的地理标签 (例如 EXIF 写入器)
package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"dashcam-geotag/internal/models"
)

// Record 一帧的输出记录
type Record struct {
	Source int `json:"source"`
	Frame  int `json:"frame"`
	models.Geotag
}

// NewRecord 由图片帧生成记录
func NewRecord(img *models.ImageFrame, deviceName string) Record {
	gt := img.Fix.ToGeotag()
	gt.Filename = img.Filename
	gt.DeviceName = deviceName
	return Record{Source: img.Source, Frame: img.Frame, Geotag: gt}
}

// Sink 输出端，时间戳一定有，其他字段可选
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// JSONLines 每行一个 JSON 对象
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewJSONLines 写到 w; w 实现 io.Closer 时 Close 会关闭它
func NewJSONLines(w io.Writer) *JSONLines {
	s := &JSONLines{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

func (s *JSONLines) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

func (s *JSONLines) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
