// Package pipeline 串起整个流程: 并行分析视频文件，合并定位点，插值图片帧
package pipeline

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dashcam-geotag/internal/cache"
	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/metrics"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/mp4"
	"dashcam-geotag/internal/nmea"
	"dashcam-geotag/internal/video"
)

// LoadOptions 视频加载参数
type LoadOptions struct {
	Workers  int // 0 使用默认值，最多 config.MaxWorkers
	NMEA     nmea.Options
	Cache    cache.Store // 可选，按文件哈希缓存分析结果
	CacheTTL time.Duration
	Progress func(current, total, source int)
	Logger   *slog.Logger
}

// Video 一个已分析的视频文件
type Video struct {
	Path     string
	Info     *video.FileInfo
	Rejected []mp4.RecordError
	Cached   bool // 结果来自缓存
	Err      error
}

// Usable 有时间基准，可以推算帧时间
func (v *Video) Usable() bool {
	return v.Err == nil && v.Info != nil && v.Info.HasTiming()
}

// cachedResult 缓存的遍历结果
type cachedResult struct {
	Frames    []models.FrameAtom
	Fixes     []models.FixAtom
	KeyFrames []uint32
	HasSync   bool
	Atoms     int
	Rejected  []cachedRejection
}

// cachedRejection RecordError 的可编码形式，Err 只保留原因和消息
type cachedRejection struct {
	Offset   uint64
	Sentence string
	Reason   string
	Message  string
}

// rejectCauses 原因到哨兵错误，恢复后 errors.Is 仍然成立
var rejectCauses = map[string]error{
	"bad_marker":      mp4.ErrBadMarker,
	"out_of_bounds":   mp4.ErrRecordBounds,
	"checksum":        nmea.ErrChecksum,
	"no_match":        nmea.ErrNoMatch,
	"malformed_field": nmea.ErrMalformedField,
}

type restoredError struct {
	msg   string
	cause error
}

func (e *restoredError) Error() string { return e.msg }
func (e *restoredError) Unwrap() error { return e.cause }

func encodeRejected(rejected []mp4.RecordError) []cachedRejection {
	out := make([]cachedRejection, 0, len(rejected))
	for _, re := range rejected {
		cr := cachedRejection{Offset: re.Offset, Sentence: re.Sentence, Reason: rejectReason(re)}
		if re.Err != nil {
			cr.Message = re.Err.Error()
		}
		out = append(out, cr)
	}
	return out
}

func decodeRejected(cached []cachedRejection) []mp4.RecordError {
	if len(cached) == 0 {
		return nil
	}
	out := make([]mp4.RecordError, 0, len(cached))
	for _, cr := range cached {
		out = append(out, mp4.RecordError{
			Offset:   cr.Offset,
			Sentence: cr.Sentence,
			Err:      &restoredError{msg: cr.Message, cause: rejectCauses[cr.Reason]},
		})
	}
	return out
}

// cacheKey 文件标识加上解码选项
func cacheKey(path string, opts LoadOptions) (string, error) {
	hash, err := mp4.FileHash(path)
	if err != nil {
		return "", err
	}
	return cache.Key(hash, opts.NMEA.String()), nil
}

// LoadVideos 并行分析视频文件，结果按输入顺序返回
//
// 第 i 个文件的序号是 i。结构性错误只影响该文件 (Video.Err)，
// GPS 不足的文件保留帧和定位点但没有时间基准。
// 只有 ctx 取消时返回错误。
func LoadVideos(ctx context.Context, paths []string, opts LoadOptions) ([]*Video, error) {
	log := logging.Or(opts.Logger)
	total := len(paths)
	videos := make([]*Video, total)
	if total == 0 {
		return videos, nil
	}

	workers := config.ClampWorkers(opts.Workers, total)
	log.Info("video analysis: start", "workers", workers, "files", total)
	start := time.Now()

	workChan := make(chan int, total)
	for i := range paths {
		workChan <- i
	}
	close(workChan)

	resultChan := make(chan int, total)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				if ctx.Err() != nil {
					videos[i] = &Video{Path: paths[i], Err: ctx.Err()}
				} else {
					videos[i] = loadVideo(ctx, i, paths[i], opts, log)
				}
				resultChan <- i
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	processed, usable := 0, 0
	for i := range resultChan {
		processed++
		if videos[i].Usable() {
			usable++
		}
		if opts.Progress != nil {
			opts.Progress(processed, total, i)
		}
	}

	if err := ctx.Err(); err != nil {
		return videos, err
	}

	elapsed := time.Since(start)
	log.Info("video analysis: done", "usable", usable, "total", total,
		"duration", elapsed.Round(time.Millisecond))
	return videos, nil
}

func loadVideo(ctx context.Context, source int, path string, opts LoadOptions, log *slog.Logger) *Video {
	v := &Video{Path: path}
	start := time.Now()

	res, hit := lookup(ctx, path, opts, log)
	if !hit {
		var err error
		res, err = mp4.ParseFile(path, mp4.Options{Logger: log, NMEA: opts.NMEA, Source: source})
		if err != nil {
			log.Error("video analysis failed", "file", path, "error", err)
			v.Err = err
			return v
		}
		metrics.AtomsWalked.Add(float64(res.Atoms))
		metrics.FixesDecoded.Add(float64(len(res.Fixes)))
		for _, re := range res.Rejected {
			metrics.RecordsRejected.WithLabelValues(rejectReason(re)).Inc()
		}
		store(ctx, path, res, opts, log)
	}
	v.Cached = hit
	v.Rejected = res.Rejected

	info, err := video.NewFileInfo(source, path, res, log)
	v.Info = info
	if err != nil && !errors.Is(err, video.ErrInsufficientGPS) {
		v.Err = err
	}
	if !hit {
		metrics.DuplicatesDropped.WithLabelValues("file").Add(float64(info.Duplicates))
	}
	metrics.ParseDuration.Observe(time.Since(start).Seconds())
	return v
}

func lookup(ctx context.Context, path string, opts LoadOptions, log *slog.Logger) (*mp4.Result, bool) {
	if opts.Cache == nil {
		return nil, false
	}
	key, err := cacheKey(path, opts)
	if err != nil {
		return nil, false
	}
	data, err := opts.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn("cache lookup failed", "file", path, "error", err)
			metrics.CacheHits.WithLabelValues("error").Inc()
		} else {
			metrics.CacheHits.WithLabelValues("miss").Inc()
		}
		return nil, false
	}

	var cr cachedResult
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cr); err != nil {
		log.Warn("cache entry corrupt", "file", path, "error", err)
		metrics.CacheHits.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("hit").Inc()
	log.Debug("cache hit", "file", path, "key", key)
	return &mp4.Result{
		Frames:    cr.Frames,
		Fixes:     cr.Fixes,
		KeyFrames: cr.KeyFrames,
		HasSync:   cr.HasSync,
		Atoms:     cr.Atoms,
		Rejected:  decodeRejected(cr.Rejected),
	}, true
}

func store(ctx context.Context, path string, res *mp4.Result, opts LoadOptions, log *slog.Logger) {
	if opts.Cache == nil {
		return
	}
	key, err := cacheKey(path, opts)
	if err != nil {
		return
	}
	var buf bytes.Buffer
	cr := cachedResult{
		Frames:    res.Frames,
		Fixes:     res.Fixes,
		KeyFrames: res.KeyFrames,
		HasSync:   res.HasSync,
		Atoms:     res.Atoms,
		Rejected:  encodeRejected(res.Rejected),
	}
	if err := gob.NewEncoder(&buf).Encode(&cr); err != nil {
		log.Warn("cache encode failed", "file", path, "error", err)
		return
	}
	if err := opts.Cache.Set(ctx, key, buf.Bytes(), opts.CacheTTL); err != nil {
		log.Warn("cache store failed", "file", path, "error", err)
	}
}

func rejectReason(re mp4.RecordError) string {
	switch {
	case errors.Is(re, mp4.ErrBadMarker):
		return "bad_marker"
	case errors.Is(re, mp4.ErrRecordBounds):
		return "out_of_bounds"
	case errors.Is(re, nmea.ErrChecksum):
		return "checksum"
	case errors.Is(re, nmea.ErrNoMatch):
		return "no_match"
	case errors.Is(re, nmea.ErrMalformedField):
		return "malformed_field"
	}
	return "other"
}

// Summaries 每个文件的统计
func Summaries(videos []*Video) []VideoSummary {
	out := make([]VideoSummary, 0, len(videos))
	for i, v := range videos {
		s := VideoSummary{Path: v.Path, Rejected: len(v.Rejected), Cached: v.Cached}
		if v.Info != nil {
			s.Summary = v.Info.Summary()
		} else {
			s.Summary = video.Summary{Source: i, Filename: v.Path}
		}
		if v.Err != nil {
			s.Error = v.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

// VideoSummary 文件统计 (含被拒绝的记录数和错误)
type VideoSummary struct {
	video.Summary
	Path     string `json:"path"`
	Rejected int    `json:"rejected"`
	Cached   bool   `json:"cached"`
	Error    string `json:"error,omitempty"`
}

func (s VideoSummary) String() string {
	return fmt.Sprintf("%s: %d frames, %d fixes, %d rejected", s.Path, s.Frames, s.Fixes, s.Rejected)
}
