package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dashcam-geotag/internal/cache"
	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/interp"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/nmea"
	"dashcam-geotag/internal/pipeline"
)

var (
	ErrBusy      = errors.New("videos are being loaded")
	ErrNotLoaded = errors.New("no videos loaded")
	ErrNoVideo   = errors.New("no such video")
)

// maxFrames 一次请求最多插值的帧数
const maxFrames = 10000

// Library 已加载的视频和合并后的定位点
type Library struct {
	cfg    *config.Config
	store  cache.Store
	logger *slog.Logger

	mu     sync.RWMutex
	paths  []string
	videos []*pipeline.Video
	track  *pipeline.Track

	// 加载状态
	loading  bool
	progress int
	total    int
	current  int
	loadedAt time.Time
	lastErr  error
}

// NewLibrary 创建视频库, store 可为 nil
func NewLibrary(cfg *config.Config, store cache.Store, logger *slog.Logger) *Library {
	return &Library{
		cfg:    cfg,
		store:  store,
		logger: logging.Or(logger),
	}
}

// Load 分析视频文件并替换当前内容
func (l *Library) Load(ctx context.Context, paths []string) error {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return ErrBusy
	}
	l.loading = true
	l.total = len(paths)
	l.current = 0
	l.progress = 0
	cfg := *l.cfg
	l.mu.Unlock()

	order, _ := nmea.ParseDateOrder(cfg.GPS.DateOrder)
	videos, err := pipeline.LoadVideos(ctx, paths, pipeline.LoadOptions{
		Workers:  cfg.Workers,
		NMEA:     nmea.Options{VerifyChecksum: cfg.GPS.VerifyChecksum, DateOrder: order},
		Cache:    l.store,
		CacheTTL: cfg.Cache.TTL,
		Logger:   l.logger,
		Progress: l.updateProgress,
	})
	var track *pipeline.Track
	if err == nil {
		track, err = pipeline.Merge(videos, cfg.Interpolation.InterpolateTrack, l.logger)
	}
	if err == nil {
		pipeline.ObserveMerge(track)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	l.lastErr = err
	if err != nil {
		return err
	}
	l.paths = append([]string(nil), paths...)
	l.videos = videos
	l.track = track
	l.loadedAt = time.Now()
	return nil
}

func (l *Library) updateProgress(current, total, _ int) {
	l.mu.Lock()
	l.current = current
	if total > 0 {
		l.progress = current * 100 / total
	}
	l.mu.Unlock()
}

// LoadStatus 加载状态
type LoadStatus struct {
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
	Total    int       `json:"total"`
	Current  int       `json:"current"`
	Fixes    int       `json:"fixes"`
	LoadedAt time.Time `json:"loadedAt,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// Status 返回加载状态
func (l *Library) Status() LoadStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := LoadStatus{Total: l.total, Current: l.current, Progress: l.progress, LoadedAt: l.loadedAt}
	if l.lastErr != nil {
		st.Error = l.lastErr.Error()
	}
	switch {
	case l.loading:
		st.Status = "loading"
	case l.videos == nil:
		st.Status = "not_loaded"
	default:
		st.Status = "ready"
		st.Progress = 100
		st.Fixes = len(l.track.Fixes)
	}
	return st
}

// Paths 当前加载的文件
func (l *Library) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.paths...)
}

// Summaries 每个文件的统计
func (l *Library) Summaries() []pipeline.VideoSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return pipeline.Summaries(l.videos)
}

// Fixes 合并后的定位点
func (l *Library) Fixes() ([]models.FixAtom, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.track == nil {
		return nil, ErrNotLoaded
	}
	return l.track.Fixes, nil
}

// Config 当前配置的副本
func (l *Library) Config() config.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.cfg
}

// SetInterpolation 修改插值参数; 航迹开关变化时重新合并定位点
func (l *Library) SetInterpolation(ic config.InterpolationConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ic.MaxGap <= 0 {
		return fmt.Errorf("max_gap must be positive")
	}
	remerge := ic.InterpolateTrack != l.cfg.Interpolation.InterpolateTrack && l.videos != nil
	l.cfg.Interpolation = ic
	if !remerge {
		return nil
	}
	track, err := pipeline.Merge(l.videos, ic.InterpolateTrack, l.logger)
	if err != nil {
		return err
	}
	l.track = track
	return nil
}

// SetSequence 修改分段阈值
func (l *Library) SetSequence(sc config.SequenceConfig) error {
	if sc.MaxTime <= 0 || sc.MaxDistance <= 0 || sc.MaxDOP < 0 {
		return fmt.Errorf("invalid sequence thresholds")
	}
	l.mu.Lock()
	l.cfg.Sequence = sc
	l.mu.Unlock()
	return nil
}

// FrameRate 视频的帧率, 没有时间基准时返回 0
func (l *Library) FrameRate(source int) (float64, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, err := l.video(source)
	if err != nil {
		return 0, 0, err
	}
	return v.Info.FrameRate, len(v.Info.Frames), nil
}

func (l *Library) video(source int) (*pipeline.Video, error) {
	if l.videos == nil {
		return nil, ErrNotLoaded
	}
	if source < 0 || source >= len(l.videos) || l.videos[source].Info == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoVideo, source)
	}
	return l.videos[source], nil
}

// Frames 插值第 source 个视频中 [from, to] 每 step 帧
//
// to < 0 表示最后一帧。返回按时间排序的帧。
func (l *Library) Frames(source, from, to, step int) ([]models.ImageFrame, pipeline.Report, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, err := l.video(source)
	if err != nil {
		return nil, pipeline.Report{}, err
	}
	if step <= 0 {
		step = 1
	}
	last := len(v.Info.Frames) - 1
	if to < 0 || to > last {
		to = last
	}
	if from < 0 {
		from = 0
	}
	if from > to {
		return nil, pipeline.Report{}, nil
	}
	if (to-from)/step+1 > maxFrames {
		to = from + (maxFrames-1)*step
	}

	images := make([]models.ImageFrame, 0, (to-from)/step+1)
	for f := from; f <= to; f += step {
		images = append(images, models.ImageFrame{Source: source, Frame: f})
	}

	rep, err := pipeline.Resolve(l.videos, l.track, images, pipeline.GeotagOptions{
		Interp: interp.Options{
			MaxGap:    l.cfg.Interpolation.MaxGap,
			CameraYaw: l.cfg.Interpolation.CameraYaw,
			Logger:    logging.Discard(),
		},
		Logger: logging.Discard(),
	})
	return images, rep, err
}
