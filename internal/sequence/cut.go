// Package sequence 把地理标签按时间、距离和质量阈值切分成连续的序列
package sequence

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/geo"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
)

// ErrNoGeotags 过滤后没有剩下任何地理标签
var ErrNoGeotags = errors.New("no geotags left after filtering")

// Options 分段阈值
type Options struct {
	MaxTime     time.Duration // 相邻图片间隔超过此值开始新序列
	MaxDistance float64       // 米，相邻图片距离超过此值开始新序列
	MaxDOP      float64       // 精度因子大于此值的图片丢弃
	MinSpeed    float64       // km/h，慢于此值的图片丢弃
	Logger      *slog.Logger
}

// DefaultOptions 默认阈值
func DefaultOptions() Options {
	return Options{
		MaxTime:     config.DefaultMaxTime,
		MaxDistance: config.DefaultMaxDistance,
		MaxDOP:      config.DefaultMaxDOP,
		MinSpeed:    config.DefaultMinSpeed,
	}
}

// FromConfig 由配置生成
func FromConfig(c config.SequenceConfig) Options {
	return Options{
		MaxTime:     c.MaxTime,
		MaxDistance: c.MaxDistance,
		MaxDOP:      c.MaxDOP,
		MinSpeed:    c.MinSpeed,
	}
}

// Run 一个序列，元素指向调用方的切片
type Run []*models.Geotag

// Cut 过滤并切分地理标签
//
// 没有时间、没有位置、DOP 过大或速度过低的图片被排除 (缺失的 DOP 和速度按 0 处理)。
// 其余按时间稳定排序，相邻两张的间隔超过 MaxTime 或距离超过 MaxDistance 时开始新序列。
// 每张图片的 SequenceIndex 是它在自己序列中的下标。
func Cut(geotags []models.Geotag, opts Options) ([]Run, error) {
	if opts.MaxTime <= 0 {
		opts.MaxTime = config.DefaultMaxTime
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = config.DefaultMaxDistance
	}
	log := logging.Or(opts.Logger)

	var kept []*models.Geotag
	for i := range geotags {
		gt := &geotags[i]
		gt.SequenceIndex = nil
		gt.TmpSequenceID = ""
		if reason := disqualify(gt, opts); reason != "" {
			log.Info("image disqualified", "filename", gt.Filename, "reason", reason)
			continue
		}
		kept = append(kept, gt)
	}
	if len(kept) == 0 {
		return nil, ErrNoGeotags
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp.Before(*kept[j].Timestamp) })

	index := 0
	kept[0].SequenceIndex = intPtr(index)
	run := Run{kept[0]}
	var runs []Run

	for i := 1; i < len(kept); i++ {
		a, b := kept[i-1], kept[i]
		index++
		elapsed := b.Timestamp.Sub(*a.Timestamp)
		dist := geo.Distance(a.Coord(), b.Coord())
		if elapsed > opts.MaxTime || dist > opts.MaxDistance {
			log.Info("new sequence", "images", len(run), "elapsed", elapsed, "max_time", opts.MaxTime,
				"distance", dist, "max_distance", opts.MaxDistance)
			runs = append(runs, run)
			run = nil
			index = 0
		}
		b.SequenceIndex = intPtr(index)
		run = append(run, b)
	}
	runs = append(runs, run)

	log.Info("sequenced images", "images", len(kept), "sequences", len(runs), "discarded", len(geotags)-len(kept))
	return runs, nil
}

func disqualify(gt *models.Geotag, opts Options) string {
	switch {
	case gt.Timestamp == nil:
		return "no datetime"
	case !gt.HasPosition():
		return "no GPS coordinates"
	case value(gt.DOP) > opts.MaxDOP:
		return "exceeds max GPS DOP"
	case value(gt.Speed) < opts.MinSpeed:
		return "slower than min speed"
	}
	return ""
}

// AssignIDs 给每个序列一个随机 UUID，写入每张图片的 TmpSequenceID
func AssignIDs(runs []Run) []string {
	ids := make([]string, len(runs))
	for i, run := range runs {
		ids[i] = uuid.NewString()
		for _, gt := range run {
			gt.TmpSequenceID = ids[i]
		}
	}
	return ids
}

// NormalizeYaw 偏航角归一化到 [-180, 180)
func NormalizeYaw(yaw float64) float64 {
	return models.NormalizeDegrees(yaw+180) - 180
}

// ApplyCameraYaw 记录相机偏航角，有航向时拍摄方向 = 航向 + 偏航
func ApplyCameraYaw(gt *models.Geotag, yaw float64) {
	yaw = NormalizeYaw(yaw)
	gt.ProjectionYaw = models.Float(yaw)
	if gt.Heading != nil {
		gt.Direction = models.Float(models.NormalizeDegrees(*gt.Heading + yaw))
	}
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func intPtr(v int) *int {
	return &v
}
