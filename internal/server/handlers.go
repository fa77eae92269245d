package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kataras/iris/v12"

	"dashcam-geotag/internal/events"
	"dashcam-geotag/internal/export"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/metrics"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/sequence"
	"dashcam-geotag/internal/sink"
)

// Handlers API 处理器
type Handlers struct {
	lib    *Library
	pub    events.Publisher // 可为 nil
	logger *slog.Logger

	mu sync.RWMutex
	// 最近加载过的文件 (最多保留 10 个)
	pathHistory []string
}

const maxPathHistory = 10

// NewHandlers 创建处理器
func NewHandlers(lib *Library, pub events.Publisher, logger *slog.Logger) *Handlers {
	return &Handlers{
		lib:         lib,
		pub:         pub,
		logger:      logging.Or(logger),
		pathHistory: []string{},
	}
}

// addToPathHistory 添加路径到历史记录
func (h *Handlers) addToPathHistory(paths []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, path := range paths {
		var newHistory []string
		for _, p := range h.pathHistory {
			if p != path {
				newHistory = append(newHistory, p)
			}
		}
		h.pathHistory = append([]string{path}, newHistory...)
	}

	if len(h.pathHistory) > maxPathHistory {
		h.pathHistory = h.pathHistory[:maxPathHistory]
	}
}

func (h *Handlers) history() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.pathHistory...)
}

func fail(ctx iris.Context, code int, err error) {
	ctx.StatusCode(code)
	ctx.JSON(iris.Map{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBusy):
		return iris.StatusConflict
	case errors.Is(err, ErrNotLoaded), errors.Is(err, ErrNoVideo):
		return iris.StatusNotFound
	case errors.Is(err, sequence.ErrNoGeotags):
		return iris.StatusUnprocessableEntity
	}
	return iris.StatusInternalServerError
}

// ==================== API (v1) ====================

// GetConfig 获取配置
// GET /api/v1/config
func (h *Handlers) GetConfig(ctx iris.Context) {
	cfg := h.lib.Config()
	ctx.JSON(iris.Map{
		"interpolation": iris.Map{
			"max_gap":           cfg.Interpolation.MaxGap.Seconds(),
			"camera_yaw":        cfg.Interpolation.CameraYaw,
			"interpolate_track": cfg.Interpolation.InterpolateTrack,
		},
		"sequence": iris.Map{
			"max_time":     cfg.Sequence.MaxTime.Seconds(),
			"max_distance": cfg.Sequence.MaxDistance,
			"max_dop":      cfg.Sequence.MaxDOP,
			"min_speed":    cfg.Sequence.MinSpeed,
		},
		"videos":      h.lib.Paths(),
		"status":      h.lib.Status(),
		"pathHistory": h.history(),
	})
}

// SetConfig 设置插值和分段参数，未给出的字段不变
// POST /api/v1/config
func (h *Handlers) SetConfig(ctx iris.Context) {
	var req struct {
		MaxGap           *float64 `json:"max_gap"`
		CameraYaw        *float64 `json:"camera_yaw"`
		InterpolateTrack *bool    `json:"interpolate_track"`
		MaxTime          *float64 `json:"max_time"`
		MaxDistance      *float64 `json:"max_distance"`
		MaxDOP           *float64 `json:"max_dop"`
		MinSpeed         *float64 `json:"min_speed"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		fail(ctx, iris.StatusBadRequest, errors.New("invalid JSON"))
		return
	}

	cfg := h.lib.Config()
	ic, sc := cfg.Interpolation, cfg.Sequence
	if req.MaxGap != nil {
		ic.MaxGap = seconds(*req.MaxGap)
	}
	if req.CameraYaw != nil {
		ic.CameraYaw = *req.CameraYaw
	}
	if req.InterpolateTrack != nil {
		ic.InterpolateTrack = *req.InterpolateTrack
	}
	if req.MaxTime != nil {
		sc.MaxTime = seconds(*req.MaxTime)
	}
	if req.MaxDistance != nil {
		sc.MaxDistance = *req.MaxDistance
	}
	if req.MaxDOP != nil {
		sc.MaxDOP = *req.MaxDOP
	}
	if req.MinSpeed != nil {
		sc.MinSpeed = *req.MinSpeed
	}

	if err := h.lib.SetInterpolation(ic); err != nil {
		fail(ctx, iris.StatusBadRequest, err)
		return
	}
	if err := h.lib.SetSequence(sc); err != nil {
		fail(ctx, iris.StatusBadRequest, err)
		return
	}
	h.GetConfig(ctx)
}

// LoadVideos 分析视频文件
// POST /api/v1/videos?wait=true
func (h *Handlers) LoadVideos(ctx iris.Context) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := ctx.ReadJSON(&req); err != nil || len(req.Paths) == 0 {
		fail(ctx, iris.StatusBadRequest, errors.New("paths required"))
		return
	}
	h.addToPathHistory(req.Paths)

	if ctx.URLParamBoolDefault("wait", false) {
		if err := h.lib.Load(ctx.Request().Context(), req.Paths); err != nil {
			fail(ctx, statusFor(err), err)
			return
		}
		h.GetVideos(ctx)
		return
	}

	if h.lib.Status().Status == "loading" {
		fail(ctx, iris.StatusConflict, ErrBusy)
		return
	}
	go func() {
		if err := h.lib.Load(context.Background(), req.Paths); err != nil {
			h.logger.Error("video load failed", "error", err)
		}
	}()
	ctx.StatusCode(iris.StatusAccepted)
	ctx.JSON(iris.Map{"status": "loading", "total": len(req.Paths)})
}

// GetVideos 每个文件的统计
// GET /api/v1/videos
func (h *Handlers) GetVideos(ctx iris.Context) {
	ctx.JSON(iris.Map{
		"status": h.lib.Status(),
		"videos": h.lib.Summaries(),
	})
}

// GetGPX 合并后的轨迹
// GET /api/v1/track.gpx
func (h *Handlers) GetGPX(ctx iris.Context) {
	fixes, err := h.lib.Fixes()
	if err != nil {
		fail(ctx, statusFor(err), err)
		return
	}
	ctx.ContentType("application/gpx+xml")
	if err := export.WriteGPX(ctx.ResponseWriter(), fixes); err != nil {
		h.logger.Warn("gpx write failed", "error", err)
	}
}

// GetRMC 原始 RMC 语句
// GET /api/v1/gprmc
func (h *Handlers) GetRMC(ctx iris.Context) {
	fixes, err := h.lib.Fixes()
	if err != nil {
		fail(ctx, statusFor(err), err)
		return
	}
	ctx.ContentType("text/plain")
	if err := export.WriteRMC(ctx.ResponseWriter(), fixes); err != nil {
		h.logger.Warn("rmc write failed", "error", err)
	}
}

// GetFrames 插值后的帧
// GET /api/v1/frames?video=N&from=A&to=B&step=S
func (h *Handlers) GetFrames(ctx iris.Context) {
	source := ctx.URLParamIntDefault("video", 0)
	from := ctx.URLParamIntDefault("from", 0)
	to := ctx.URLParamIntDefault("to", -1)
	step := ctx.URLParamIntDefault("step", 1)

	images, rep, err := h.lib.Frames(source, from, to, step)
	if err != nil {
		fail(ctx, statusFor(err), err)
		return
	}
	records := make([]sink.Record, 0, len(images))
	for i := range images {
		if images[i].Fix.HasTimestamp() {
			records = append(records, sink.NewRecord(&images[i], ""))
		}
	}
	ctx.JSON(iris.Map{"frames": records, "report": rep})
}

// SequenceInfo 一个序列的概要
type SequenceInfo struct {
	ID        string    `json:"id"`
	Images    int       `json:"images"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Published bool      `json:"published"`
}

// CutSequences 把地理标签切分为序列
// POST /api/v1/sequences?max_time=300&max_distance=100&max_dop=20&min_speed=5&camera_yaw=0
func (h *Handlers) CutSequences(ctx iris.Context) {
	var geotags []models.Geotag
	if err := ctx.ReadJSON(&geotags); err != nil {
		fail(ctx, iris.StatusBadRequest, errors.New("invalid JSON"))
		return
	}

	cfg := h.lib.Config()
	sc := cfg.Sequence
	sc.MaxTime = seconds(ctx.URLParamFloat64Default("max_time", sc.MaxTime.Seconds()))
	sc.MaxDistance = ctx.URLParamFloat64Default("max_distance", sc.MaxDistance)
	sc.MaxDOP = ctx.URLParamFloat64Default("max_dop", sc.MaxDOP)
	sc.MinSpeed = ctx.URLParamFloat64Default("min_speed", sc.MinSpeed)
	opts := sequence.FromConfig(sc)
	opts.Logger = h.logger

	if yaw := ctx.URLParamFloat64Default("camera_yaw", 0); yaw != 0 {
		for i := range geotags {
			sequence.ApplyCameraYaw(&geotags[i], yaw)
		}
	}

	runs, err := sequence.Cut(geotags, opts)
	if err != nil {
		fail(ctx, statusFor(err), err)
		return
	}
	ids := sequence.AssignIDs(runs)
	metrics.SequencesCut.Add(float64(len(runs)))

	infos := make([]SequenceInfo, 0, len(runs))
	for i, run := range runs {
		ev := events.NewSequenceEvent(ids[i], run)
		info := SequenceInfo{ID: ev.ID, Images: ev.Images, Start: ev.Start, End: ev.End}
		if h.pub != nil {
			if err := h.pub.PublishSequence(ctx.Request().Context(), ev); err != nil {
				h.logger.Warn("sequence publish failed", "id", ev.ID, "error", err)
			} else {
				info.Published = true
			}
		}
		infos = append(infos, info)
	}

	ctx.JSON(iris.Map{"sequences": infos, "geotags": geotags})
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ==================== 路由注册 ====================

// RegisterRoutes 注册路由
func RegisterRoutes(app *iris.Application, h *Handlers) {
	v1 := app.Party("/api/v1")
	{
		v1.Get("/config", h.GetConfig)
		v1.Post("/config", h.SetConfig)
		v1.Get("/videos", h.GetVideos)
		v1.Post("/videos", h.LoadVideos)
		v1.Get("/track.gpx", h.GetGPX)
		v1.Get("/gprmc", h.GetRMC)
		v1.Get("/frames", h.GetFrames)
		v1.Post("/sequences", h.CutSequences)
		v1.Get("/stream", h.HandleWebSocket) // WebSocket 帧流
	}
	app.Get("/metrics", iris.FromStd(metrics.Handler()))
}
