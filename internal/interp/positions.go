// Package interp 用 Catmull-Rom 样条在定位点之间插值图片帧的位置和航迹
package interp

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dashcam-geotag/internal/catmull"
	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/geo"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
)

// Options 插值参数
type Options struct {
	MaxGap    time.Duration // 相邻定位点间隔超过此值视为信号丢失，0 表示默认值
	CameraYaw float64       // 相机相对车头的偏航角 (度)
	Logger    *slog.Logger
}

func (o Options) normalize() Options {
	if o.MaxGap <= 0 {
		o.MaxGap = config.DefaultMaxGap
	}
	o.Logger = logging.Or(o.Logger)
	return o
}

// Stats 插值统计
type Stats struct {
	Resolved   int `json:"resolved"`
	Gaps       int `json:"gaps"`        // 信号丢失跳过
	OutOfRange int `json:"out_of_range"` // 在第一个区间之前或定位点用完
	Untimed    int `json:"untimed"`
}

// Positions 插值每个图片帧的位置、航迹和拍摄方向
//
// fixes 必须按时间排序且已去重。对每帧维护 4 个连续定位点的滑动窗口，
// 使帧时间落在 [p1, p2) 内。定位点用完不是错误，剩下的帧保持无位置。
// 只有样条控制点重合时返回错误。
func Positions(fixes []models.FixAtom, images []models.ImageFrame, opts Options) (Stats, error) {
	opts = opts.normalize()
	log := opts.Logger
	var st Stats

	// 按时间顺序处理，不改变调用方的顺序
	order := make([]int, len(images))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return images[order[a]].Fix.Timestamp.Before(images[order[b]].Fix.Timestamp)
	})

	var win []*models.FixAtom
	next := 0
	exhausted := false

	for _, idx := range order {
		img := &images[idx]
		ts := img.Fix.Timestamp
		if ts.IsZero() {
			st.Untimed++
			continue
		}
		log.Debug("interpolating coordinates", "frame", img.Frame, "video", img.Source)

		for !exhausted && (len(win) < 4 || !ts.Before(win[2].Timestamp)) {
			for next < len(fixes) && !fixes[next].HasCoord {
				next++
			}
			if next >= len(fixes) {
				exhausted = true
				break
			}
			win = append(win, &fixes[next])
			if len(win) > 4 {
				win = win[1:]
			}
			next++
		}
		if len(win) < 4 || !ts.Before(win[2].Timestamp) || ts.Before(win[1].Timestamp) {
			st.OutOfRange++
			continue
		}

		p0, p1, p2, p3 := win[0], win[1], win[2], win[3]
		elapsed := p2.Timestamp.Sub(p1.Timestamp)
		if elapsed > opts.MaxGap {
			st.Gaps++
			log.Info("gps signal lost, frame left without position", "frame", img.Frame, "video", img.Source,
				"gap", elapsed, "max_gap", opts.MaxGap)
			continue
		}

		fix := &img.Fix
		if ts.Equal(p1.Timestamp) {
			fix.Coord, fix.HasCoord = p2.Coord, p2.HasCoord
			fix.Track, fix.HasTrack = p2.Track, p2.HasTrack
			fix.Direction = p2.Direction
			st.Resolved++
			continue
		}

		t := float64(ts.Sub(p1.Timestamp)) / float64(elapsed)
		coord, err := catmull.Evaluate(t, p0.Coord, p1.Coord, p2.Coord, p3.Coord)
		if err != nil {
			return st, fmt.Errorf("interpolate frame %d of video %d: %w", img.Frame, img.Source, err)
		}
		fix.Coord, fix.HasCoord = coord, true

		if p0.HasTrack && p1.HasTrack && p2.HasTrack && p3.HasTrack {
			track, err := catmull.Evaluate(t, p0.Track, p1.Track, p2.Track, p3.Track)
			if errors.Is(err, catmull.ErrCoincidentPoints) {
				// 匀速直线时航迹向量重合，退化为线性插值
				track = p1.Track + complex(t, 0)*(p2.Track-p1.Track)
			} else if err != nil {
				return st, err
			}
			fix.Track, fix.HasTrack = track, true
			fix.Direction = models.Float(models.NormalizeDegrees(models.Direction(track) + opts.CameraYaw))
		}
		st.Resolved++
	}

	log.Info("interpolated image positions", "resolved", st.Resolved, "total", len(images),
		"gaps", st.Gaps, "out_of_range", st.OutOfRange)
	return st, nil
}

// Tracks 由位置推算每个内部定位点的航向和速度
//
// 航向取 p1 处样条切线的方向；速度用 p1 到 p2 的直线距离近似弧长。
// 首尾定位点不变。返回推算的数量。
func Tracks(fixes []models.FixAtom, logger *slog.Logger) (int, error) {
	log := logging.Or(logger)
	n := 0
	for i := 1; i+1 < len(fixes); i++ {
		p0, p1, p2 := &fixes[i-1], &fixes[i], &fixes[i+1]
		if !p0.HasCoord || !p1.HasCoord || !p2.HasCoord {
			continue
		}
		tangent, err := catmull.Tangent(p0.Coord, p1.Coord, p2.Coord)
		if err != nil {
			return n, fmt.Errorf("tangent at fix %d: %w", i, err)
		}
		heading := geo.Heading(p1.Coord, p1.Coord+tangent)

		meters := geo.Distance(p1.Coord, p2.Coord)
		seconds := p2.Timestamp.Sub(p1.Timestamp).Seconds()
		if seconds <= 0 {
			continue
		}
		kmh := meters / seconds * config.MpsToKmh

		if p1.HasTrack {
			log.Debug("track from position", "meter", meters, "seconds", seconds, "kmh", kmh, "gps_speed", p1.Speed())
		}
		p1.SetTrack(kmh, heading)
		n++
	}
	log.Info("interpolated gps headings", "count", n)
	return n, nil
}
