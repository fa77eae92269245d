package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"dashcam-geotag/internal/interp"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/metrics"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/sink"
)

// DeviceName 写入每条记录的设备名 (Make + Model)
const DeviceName = "Vantrue OnDash X4S"

// GeotagOptions 插值参数
type GeotagOptions struct {
	Interp           interp.Options
	InterpolateTrack bool // 由位置推算航迹，代替 GPS 给出的速度和航向
	DeviceName       string
	Logger           *slog.Logger
}

// Track 合并后的定位点
type Track struct {
	Fixes      []models.FixAtom
	Duplicates int
}

// ObserveMerge 记录一次加载合并丢弃的定位点，每次加载只调用一次
func ObserveMerge(track *Track) {
	metrics.DuplicatesDropped.WithLabelValues("merge").Add(float64(track.Duplicates))
}

// Merge 合并所有视频的定位点并去重一次，可选推算航迹
//
// 不记录指标，重复合并 (例如切换航迹插值) 不会重复计数。
func Merge(videos []*Video, interpolateTrack bool, logger *slog.Logger) (*Track, error) {
	groups := make([][]models.FixAtom, 0, len(videos))
	for _, v := range videos {
		if v.Info != nil && v.Err == nil {
			groups = append(groups, v.Info.Fixes)
		}
	}
	fixes, dups := interp.MergeFixes(groups...)

	if interpolateTrack {
		if _, err := interp.Tracks(fixes, logger); err != nil {
			return nil, fmt.Errorf("interpolate track: %w", err)
		}
	}
	return &Track{Fixes: fixes, Duplicates: dups}, nil
}

// Report 一次插值的统计
type Report struct {
	Images     int `json:"images"`
	Timed      int `json:"timed"`
	Written    int `json:"written"`
	Duplicates int `json:"duplicates"`
	interp.Stats
}

// Resolve 推算每帧的时间，再在合并的定位点上插值位置
//
// images 被原地更新并按时间排序。
func Resolve(videos []*Video, track *Track, images []models.ImageFrame, opts GeotagOptions) (Report, error) {
	log := logging.Or(opts.Logger)
	rep := Report{Images: len(images), Duplicates: track.Duplicates}

	// 同一视频的帧放在一起推算时间
	sort.SliceStable(images, func(i, j int) bool { return images[i].Source < images[j].Source })
	for lo := 0; lo < len(images); {
		hi := lo
		for hi < len(images) && images[hi].Source == images[lo].Source {
			hi++
		}
		src := images[lo].Source
		if src >= 0 && src < len(videos) && videos[src].Info != nil {
			rep.Timed += videos[src].Info.InterpolateTimestamps(images[lo:hi])
		} else {
			log.Warn("images without video", "video", src, "count", hi-lo)
		}
		lo = hi
	}

	iopts := opts.Interp
	if iopts.Logger == nil {
		iopts.Logger = log
	}
	st, err := interp.Positions(track.Fixes, images, iopts)
	rep.Stats = st
	if err != nil {
		return rep, err
	}
	interp.SortImages(images)
	return rep, nil
}

// Geotag 合并、插值，并把有时间戳的帧写入 sink
func Geotag(ctx context.Context, videos []*Video, images []models.ImageFrame, out sink.Sink, opts GeotagOptions) (Report, error) {
	log := logging.Or(opts.Logger)
	track, err := Merge(videos, opts.InterpolateTrack, log)
	if err != nil {
		return Report{}, err
	}
	ObserveMerge(track)
	rep, err := Resolve(videos, track, images, opts)
	if err != nil {
		return rep, err
	}
	metrics.FramesResolved.WithLabelValues("resolved").Add(float64(rep.Resolved))
	metrics.FramesResolved.WithLabelValues("unresolved").Add(float64(rep.Images - rep.Resolved))

	device := opts.DeviceName
	if device == "" {
		device = DeviceName
	}
	for i := range images {
		if !images[i].Fix.HasTimestamp() {
			continue
		}
		log.Debug("writing geotag", "file", images[i].Filename)
		if err := out.Write(ctx, sink.NewRecord(&images[i], device)); err != nil {
			return rep, fmt.Errorf("write %s: %w", images[i].Filename, err)
		}
		rep.Written++
	}
	log.Info("geotags written", "count", rep.Written, "images", rep.Images)
	return rep, nil
}
