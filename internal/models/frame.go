package models

// FrameAtom 视频帧 (stco 表中的一个 chunk，每个 chunk 恰好一帧)
type FrameAtom struct {
	Offset   uint64 // 文件偏移
	FixIndex int    // 此帧之前最后一个定位点的下标, -1 表示没有
}

// FixAtom 嵌在 mdat 中的 GPS 定位记录
type FixAtom struct {
	Offset     uint64 // 文件偏移 (记录载荷起点)
	FrameIndex int    // 此定位点之前最后一帧的下标, -1 表示没有
	Source     int    // 所属视频文件序号
	Fix
}

// ImageFrame 一帧输出记录
type ImageFrame struct {
	Source   int    `json:"source"`
	Frame    int    `json:"frame"`
	Filename string `json:"filename,omitempty"`
	Fix      Fix    `json:"-"`
}

// Resolved 时间戳和位置都已求出
func (f *ImageFrame) Resolved() bool {
	return !f.Fix.Timestamp.IsZero() && f.Fix.HasCoord
}
