// Package video 关联一个视频文件中的帧和 GPS 定位点，并推算每帧的时间
package video

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/mp4"
)

// ErrInsufficientGPS 有效定位点少于 2 个，无法推算帧率和起始时间
var ErrInsufficientGPS = errors.New("insufficient GPS data")

// FileInfo 一个视频文件
//
// Frames 按文件偏移排序; Fixes 按偏移排序、去重，时间严格递增。
// 帧和定位点之间只用下标互相引用。
type FileInfo struct {
	Source   int
	Filename string
	Frames   []models.FrameAtom
	Fixes    []models.FixAtom

	FrameRate    float64   // 帧/秒，取整
	FixRate      float64   // 定位点/秒
	KeyFrameRate int       // 每多少帧一个关键帧
	StartTime    time.Time // 第 0 帧的推算时间

	Duplicates int // 去重丢弃的定位点数
	Untimed    int // 没有时间戳的定位点数

	logger *slog.Logger
}

// NewFileInfo 按偏移顺序遍历一次帧和定位点，建立互相的下标并推算时间基准
//
// 返回 ErrInsufficientGPS 时 FileInfo 仍然有效 (帧和定位点都在)，只是没有时间基准。
func NewFileInfo(source int, filename string, res *mp4.Result, logger *slog.Logger) (*FileInfo, error) {
	fi := &FileInfo{
		Source:   source,
		Filename: filename,
		logger:   logging.Or(logger).With("video", source),
	}

	frames := make([]models.FrameAtom, len(res.Frames))
	copy(frames, res.Frames)
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Offset < frames[j].Offset })

	fixes := make([]models.FixAtom, len(res.Fixes))
	copy(fixes, res.Fixes)
	sort.SliceStable(fixes, func(i, j int) bool { return fixes[i].Offset < fixes[j].Offset })

	fi.Frames = make([]models.FrameAtom, 0, len(frames))
	fi.Fixes = make([]models.FixAtom, 0, len(fixes))

	i, j := 0, 0
	for i < len(frames) || j < len(fixes) {
		if j >= len(fixes) || (i < len(frames) && frames[i].Offset < fixes[j].Offset) {
			frame := frames[i]
			frame.FixIndex = len(fi.Fixes) - 1
			fi.Frames = append(fi.Frames, frame)
			i++
			continue
		}

		fix := fixes[j]
		j++
		fix.Source = source
		fix.FrameIndex = len(fi.Frames) - 1
		if !fix.HasTimestamp() {
			fi.Untimed++
			fi.logger.Debug("fix without timestamp", "offset", fmt.Sprintf("%08x", fix.Offset))
			continue
		}
		if n := len(fi.Fixes); n > 0 && models.IsDuplicate(&fi.Fixes[n-1].Fix, &fix.Fix) {
			fi.Duplicates++
			fi.logger.Warn("duplicate fix dropped", "offset", fmt.Sprintf("%08x", fix.Offset),
				"timestamp", fix.Timestamp, "sentence", fix.Sentence)
			continue
		}
		fi.Fixes = append(fi.Fixes, fix)
	}

	if err := fi.deriveRates(res); err != nil {
		fi.logger.Info("no time base", "file", filename, "fixes", len(fi.Fixes), "error", err)
		return fi, err
	}

	fi.logger.Info("video analysed", "file", filename, "frames", len(fi.Frames), "fixes", len(fi.Fixes),
		"frame_rate", fi.FrameRate, "fix_rate", fi.FixRate, "start", fi.StartTime)
	return fi, nil
}

func (fi *FileInfo) deriveRates(res *mp4.Result) error {
	if len(fi.Fixes) < 2 {
		return ErrInsufficientGPS
	}

	first := fi.Fixes[0]
	last := fi.Fixes[len(fi.Fixes)-1]

	seconds := last.Timestamp.Sub(first.Timestamp).Seconds()
	if seconds <= 0 {
		return fmt.Errorf("%w: fixes span %.3fs", ErrInsufficientGPS, seconds)
	}
	frameRate := math.Round(float64(last.FrameIndex-first.FrameIndex) / seconds)
	if frameRate <= 0 {
		return fmt.Errorf("%w: %d frames in %.3fs", ErrInsufficientGPS, last.FrameIndex-first.FrameIndex, seconds)
	}

	fi.FrameRate = frameRate
	fi.FixRate = float64(len(fi.Fixes)) / seconds

	// 没有 stss 时每帧都是关键帧
	fi.KeyFrameRate = 1
	if res.HasSync && len(res.KeyFrames) > 0 {
		fi.KeyFrameRate = int(math.Round(float64(len(fi.Frames)) / float64(len(res.KeyFrames))))
	}

	fi.StartTime = first.Timestamp.Add(-seconds2duration(float64(first.FrameIndex) / frameRate))
	return nil
}

// HasTiming 是否已推算出时间基准
func (fi *FileInfo) HasTiming() bool {
	return fi.FrameRate > 0
}

// Timestamp 推算第 frame 帧的时间
//
// 前后各有一个定位点时线性插值，否则按起始时间和帧率外推。
// 没有时间基准且无法插值时返回 false。
func (fi *FileInfo) Timestamp(frame int) (time.Time, bool) {
	prev := -1
	if frame >= 0 && frame < len(fi.Frames) {
		prev = fi.Frames[frame].FixIndex
	}
	next := prev + 1

	if next >= 1 && next < len(fi.Fixes) {
		p1, p2 := &fi.Fixes[next-1], &fi.Fixes[next]
		if p2.FrameIndex == frame {
			return p2.Timestamp, true
		}
		if span := p2.FrameIndex - p1.FrameIndex; span > 0 {
			t := float64(frame-p1.FrameIndex) / float64(span)
			return p1.Timestamp.Add(time.Duration(t * float64(p2.Timestamp.Sub(p1.Timestamp)))), true
		}
	}

	if !fi.HasTiming() {
		return time.Time{}, false
	}
	return fi.StartTime.Add(seconds2duration(float64(frame) / fi.FrameRate)), true
}

// InterpolateTimestamps 给每个图片帧设置时间，返回成功的数量
func (fi *FileInfo) InterpolateTimestamps(images []models.ImageFrame) int {
	n := 0
	for i := range images {
		fi.logger.Debug("interpolating timestamp", "frame", images[i].Frame)
		ts, ok := fi.Timestamp(images[i].Frame)
		if !ok {
			fi.logger.Warn("no timestamp for frame", "frame", images[i].Frame)
			continue
		}
		images[i].Fix.Timestamp = ts
		n++
	}
	fi.logger.Info("interpolated image timestamps", "count", n, "total", len(images))
	return n
}

// Summary 文件统计
type Summary struct {
	Source       int       `json:"source"`
	Filename     string    `json:"filename"`
	Frames       int       `json:"frames"`
	Fixes        int       `json:"fixes"`
	Duplicates   int       `json:"duplicates"`
	Untimed      int       `json:"untimed"`
	FrameRate    float64   `json:"frame_rate,omitempty"`
	FixRate      float64   `json:"fix_rate,omitempty"`
	KeyFrameRate int       `json:"key_frame_rate,omitempty"`
	StartTime    time.Time `json:"start_time,omitzero"`
	HasTiming    bool      `json:"has_timing"`
}

// Summary 返回统计信息
func (fi *FileInfo) Summary() Summary {
	return Summary{
		Source:       fi.Source,
		Filename:     fi.Filename,
		Frames:       len(fi.Frames),
		Fixes:        len(fi.Fixes),
		Duplicates:   fi.Duplicates,
		Untimed:      fi.Untimed,
		FrameRate:    fi.FrameRate,
		FixRate:      fi.FixRate,
		KeyFrameRate: fi.KeyFrameRate,
		StartTime:    fi.StartTime,
		HasTiming:    fi.HasTiming(),
	}
}

func seconds2duration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
