// Package geo WGS84 椭球上的测地线距离和方位角
package geo

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/tidwall/geodesic"

	"dashcam-geotag/internal/models"
)

// Distance p0 到 p1 的测地线距离 (米)，点的实部为纬度、虚部为经度
func Distance(p0, p1 complex128) float64 {
	var s12 float64
	geodesic.WGS84.Inverse(real(p0), imag(p0), real(p1), imag(p1), &s12, nil, nil)
	return s12
}

// Heading p0 到 p1 的初始方位角 (度, 北为 0, 顺时针), 范围 (-180, 180]
func Heading(p0, p1 complex128) float64 {
	var azi1 float64
	geodesic.WGS84.Inverse(real(p0), imag(p0), real(p1), imag(p1), nil, &azi1, nil)
	return azi1
}

// Geofence 清除圆内 (radius 公里) 地理标签的经纬度，返回清除的数量
func Geofence(geotags []models.Geotag, center complex128, radius float64) int {
	cleared := 0
	for i := range geotags {
		gt := &geotags[i]
		if gt.HasPosition() && Distance(center, gt.Coord())/1000 < radius {
			gt.ClearPosition()
			cleared++
		}
	}
	return cleared
}

var geofencePattern = regexp.MustCompile(`^([-.\d]+),([-.\d]+),(\d+)`)

// ParseGeofence 解析 "lat,lon,radius" (度, 度, 公里)
func ParseGeofence(s string) (center complex128, radius float64, err error) {
	m := geofencePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("geofence %q: expected LAT,LON,RADIUS", s)
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geofence latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geofence longitude: %w", err)
	}
	r, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, 0, fmt.Errorf("geofence radius: %w", err)
	}
	return complex(lat, lon), float64(r), nil
}
