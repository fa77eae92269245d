package models

import (
	"math"
	"time"
)

// Geotag 一张图片的地理标签 (分段器的输入输出)
type Geotag struct {
	Filename      string     `json:"filename,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Lat           *float64   `json:"lat,omitempty"`
	Lon           *float64   `json:"lon,omitempty"`
	Speed         *float64   `json:"speed,omitempty"`
	Heading       *float64   `json:"heading,omitempty"`
	Accuracy      *float64   `json:"accuracy,omitempty"`
	Altitude      *float64   `json:"altitude,omitempty"`
	Direction     *float64   `json:"direction,omitempty"`
	DOP           *float64   `json:"dop,omitempty"`
	ProjectionYaw *float64   `json:"projection_yaw,omitempty"`
	DeviceName    string     `json:"deviceName,omitempty"`
	SequenceIndex *int       `json:"sequence_index,omitempty"`
	TmpSequenceID string     `json:"tmp_sequence_id,omitempty"`
}

// HasPosition 是否有经纬度
func (g *Geotag) HasPosition() bool {
	return g.Lat != nil && g.Lon != nil
}

// Coord 经纬度复数
func (g *Geotag) Coord() complex128 {
	return complex(*g.Lat, *g.Lon)
}

// ClearPosition 删除经纬度
func (g *Geotag) ClearPosition() {
	g.Lat = nil
	g.Lon = nil
}

// ToGeotag 转换为地理标签
func (f *Fix) ToGeotag() Geotag {
	var gt Geotag
	if f.HasTimestamp() {
		ts := f.Timestamp.UTC()
		gt.Timestamp = &ts
	}
	if f.HasCoord {
		gt.Lat = Float(round(f.Lat(), 8))
		gt.Lon = Float(round(f.Lon(), 8))
	}
	if f.HasTrack {
		gt.Speed = Float(round(f.Speed(), 2))
		gt.Heading = Float(round(f.Heading(), 2))
	}
	if f.Accuracy != nil {
		gt.Accuracy = Float(round(*f.Accuracy, 3))
	}
	if f.Altitude != nil {
		gt.Altitude = Float(round(*f.Altitude, 2))
	}
	if f.Direction != nil {
		gt.Direction = Float(round(NormalizeDegrees(*f.Direction), 2))
	}
	if f.DOP != nil {
		gt.DOP = Float(round(*f.DOP, 2))
	}
	return gt
}

// FromGeotag 从地理标签读取
func (f *Fix) FromGeotag(gt Geotag) {
	if gt.Timestamp != nil {
		f.Timestamp = gt.Timestamp.UTC()
	}
	if gt.HasPosition() {
		f.SetCoord(*gt.Lat, *gt.Lon)
	}
	if gt.Speed != nil && gt.Heading != nil {
		f.SetTrack(*gt.Speed, *gt.Heading)
	}
	f.Accuracy = copyFloat(gt.Accuracy)
	f.Altitude = copyFloat(gt.Altitude)
	f.Direction = copyFloat(gt.Direction)
	f.DOP = copyFloat(gt.DOP)
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
