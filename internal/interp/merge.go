package interp

import (
	"sort"

	"dashcam-geotag/internal/models"
)

// MergeFixes 合并多个视频文件的定位点
//
// 去掉没有坐标的定位点，按时间稳定排序，然后对合并后的序列只做一次去重:
// 与前一个保留的定位点时间相同或位置相同的丢弃。插值本身不区分文件边界。
func MergeFixes(groups ...[]models.FixAtom) (merged []models.FixAtom, duplicates int) {
	var all []models.FixAtom
	for _, g := range groups {
		for _, f := range g {
			if f.HasCoord && f.HasTimestamp() {
				all = append(all, f)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	merged = make([]models.FixAtom, 0, len(all))
	for _, f := range all {
		if n := len(merged); n > 0 && models.IsDuplicate(&merged[n-1].Fix, &f.Fix) {
			duplicates++
			continue
		}
		merged = append(merged, f)
	}
	return merged, duplicates
}

// SortImages 按时间稳定排序
func SortImages(images []models.ImageFrame) {
	sort.SliceStable(images, func(i, j int) bool { return images[i].Fix.Timestamp.Before(images[j].Fix.Timestamp) })
}
