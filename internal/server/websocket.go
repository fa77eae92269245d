package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"

	"dashcam-geotag/internal/metrics"
	"dashcam-geotag/internal/sink"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	// 每批插值的帧数
	streamBatch = 256
	// 播放倍速上限
	maxSpeed = 100.0
	// 最短发送间隔
	minFrameInterval = time.Microsecond
)

// WSMessage WebSocket 消息
type WSMessage struct {
	Action string  `json:"action"`
	Video  int     `json:"video"`
	From   int     `json:"from"`
	Speed  float64 `json:"speed"`
}

// StreamSession 流会话
type StreamSession struct {
	ws       *websocket.Conn
	lib      *Library
	stopChan chan struct{}
	mu       sync.Mutex // 保护 stopChan 和 running
	writeMu  sync.Mutex
	running  bool
	wg       sync.WaitGroup
}

// HandleWebSocket WebSocket 处理器
func (h *Handlers) HandleWebSocket(ctx iris.Context) {
	ws, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	session := &StreamSession{
		ws:       ws,
		lib:      h.lib,
		stopChan: make(chan struct{}),
	}

	sessionID := fmt.Sprintf("%p", ws)
	log := h.logger.With("session", sessionID)
	log.Debug("websocket connected")

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			session.sendJSON(map[string]any{"error": "invalid JSON"})
			continue
		}

		switch msg.Action {
		case "play", "seek":
			if msg.Speed == 0 {
				msg.Speed = 1.0
			}
			if !validSpeed(msg.Speed) {
				session.sendJSON(map[string]any{"error": fmt.Sprintf("speed must be in (0, %g]", maxSpeed)})
				continue
			}
			session.stop()
			session.start(msg.Video, msg.From, msg.Speed)
			log.Debug("stream started", "video", msg.Video, "from", msg.From, "speed", msg.Speed)

		case "pause":
			session.stop()
			log.Debug("stream paused")

		default:
			session.sendJSON(map[string]any{"error": "unknown action " + msg.Action})
		}
	}

	session.stop()
	log.Debug("websocket disconnected")
}

func validSpeed(speed float64) bool {
	return !math.IsNaN(speed) && speed > 0 && speed <= maxSpeed
}

func (s *StreamSession) start(video, from int, speed float64) {
	s.mu.Lock()
	s.running = true
	stopChan := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.streamFrames(stopChan, video, from, speed)
	}()
}

// stop 停止当前流并等待发送协程退出
func (s *StreamSession) stop() {
	s.mu.Lock()
	if s.running {
		close(s.stopChan)
		s.stopChan = make(chan struct{})
		s.running = false
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *StreamSession) sendJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

// streamFrames 按帧率 × speed 发送插值后的帧
func (s *StreamSession) streamFrames(stopChan chan struct{}, video, from int, speed float64) {
	frameRate, frames, err := s.lib.FrameRate(video)
	if err != nil {
		s.sendJSON(map[string]any{"error": err.Error()})
		return
	}
	if frameRate <= 0 {
		s.sendJSON(map[string]any{"error": "video has no time base"})
		return
	}
	if from < 0 {
		from = 0
	}

	s.sendJSON(map[string]any{
		"type":      "stream_start",
		"video":     video,
		"from":      from,
		"frames":    frames,
		"frameRate": frameRate,
	})

	frameInterval := time.Duration(float64(time.Second) / frameRate / speed)
	if frameInterval < minFrameInterval {
		frameInterval = minFrameInterval
	}
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for lo := from; lo < frames; lo += streamBatch {
		images, _, err := s.lib.Frames(video, lo, lo+streamBatch-1, 1)
		if err != nil {
			s.sendJSON(map[string]any{"error": err.Error()})
			return
		}
		for i := range images {
			select {
			case <-stopChan:
				return
			case <-ticker.C:
			}
			rec := sink.NewRecord(&images[i], "")
			if err := s.sendJSON(map[string]any{"type": "frame", "record": rec}); err != nil {
				return
			}
		}
	}

	s.sendJSON(map[string]any{"type": "stream_end"})
}
