package models

import (
	"math"
	"math/cmplx"
	"time"
)

// Fix 一个 GPS 定位点
//
// 位置和航迹都用复数表示:
//   - Coord: 实部 = 纬度, 虚部 = 经度
//   - Track: 模 = 速度 (km/h), 辐角 = 航向 (弧度, 北为 0, 顺时针向东)
//
// 零值是合法值，是否存在由 HasXxx / nil 指针表示。
type Fix struct {
	Talker    string    // "GPRMC" 或 "GNRMC"
	Sentence  string    // 原始语句
	Valid     bool      // A=有效 V=无效
	Mode      string    // 定位模式 A/D/E/M/N
	Timestamp time.Time // UTC, 零值表示没有

	Coord    complex128
	HasCoord bool
	Track    complex128
	HasTrack bool

	Accuracy  *float64 // 水平精度 (米)
	Altitude  *float64 // WGS84 海拔 (米)
	Direction *float64 // 拍摄方向 0..360
	DOP       *float64
}

// HasTimestamp 是否有时间戳
func (f *Fix) HasTimestamp() bool {
	return !f.Timestamp.IsZero()
}

// SetCoord 设置位置
func (f *Fix) SetCoord(lat, lon float64) {
	f.Coord = complex(lat, lon)
	f.HasCoord = true
}

// SetTrack 设置速度 (km/h) 和航向 (度)
func (f *Fix) SetTrack(speed, heading float64) {
	f.Track = Polar(speed, Deg2Rad(heading))
	f.HasTrack = true
}

// Lat 纬度
func (f *Fix) Lat() float64 { return real(f.Coord) }

// Lon 经度
func (f *Fix) Lon() float64 { return imag(f.Coord) }

// Speed 速度 km/h
func (f *Fix) Speed() float64 { return cmplx.Abs(f.Track) }

// Heading 航向 0..360
func (f *Fix) Heading() float64 { return Direction(f.Track) }

// Rad2Deg 弧度转为 0..360 度
func Rad2Deg(rad float64) float64 {
	return math.Mod(180*rad/math.Pi+360, 360)
}

// Deg2Rad 度转弧度
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Polar 极坐标转复数
func Polar(r, rad float64) complex128 {
	return cmplx.Rect(r, rad)
}

// Direction 航迹方向 0..360
func Direction(track complex128) float64 {
	return Rad2Deg(cmplx.Phase(track))
}

// NormalizeDegrees 归一化到 [0,360)
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// Float 返回指向 v 的指针
func Float(v float64) *float64 {
	return &v
}

// IsDuplicate next 与前一个定位点时间相同或位置相同
func IsDuplicate(prev, next *Fix) bool {
	if prev.Timestamp.Equal(next.Timestamp) {
		return true
	}
	return prev.HasCoord && next.HasCoord && prev.Coord == next.Coord
}
