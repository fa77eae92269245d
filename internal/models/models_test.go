package models

import (
	"math"
	"testing"
	"time"
)

func TestFixToGeotag(t *testing.T) {
	var f Fix
	f.Timestamp = time.Date(2022, 1, 31, 8, 15, 59, 500000000, time.UTC)
	f.SetCoord(48.123456789, -11.5)
	f.SetTrack(36.0, 270)
	f.Altitude = Float(0)

	gt := f.ToGeotag()

	if gt.Timestamp == nil || !gt.Timestamp.Equal(f.Timestamp) {
		t.Fatalf("timestamp not carried over: %v", gt.Timestamp)
	}
	if *gt.Lat != 48.12345679 {
		t.Errorf("Expected lat rounded to 8 places, got %v", *gt.Lat)
	}
	if *gt.Lon != -11.5 {
		t.Errorf("Expected lon -11.5, got %v", *gt.Lon)
	}
	if *gt.Speed != 36.0 {
		t.Errorf("Expected speed 36, got %v", *gt.Speed)
	}
	if *gt.Heading != 270 {
		t.Errorf("Expected heading 270, got %v", *gt.Heading)
	}
	// 零海拔是合法值
	if gt.Altitude == nil || *gt.Altitude != 0 {
		t.Errorf("Expected zero altitude to be kept, got %v", gt.Altitude)
	}
	if gt.DOP != nil || gt.Direction != nil || gt.Accuracy != nil {
		t.Errorf("absent fields must stay nil")
	}
}

func TestFixFromGeotag(t *testing.T) {
	ts := time.Date(2022, 1, 31, 8, 0, 0, 0, time.UTC)
	gt := Geotag{
		Timestamp: &ts,
		Lat:       Float(1),
		Lon:       Float(2),
		Speed:     Float(10),
		Heading:   Float(90),
		DOP:       Float(1.5),
	}

	var f Fix
	f.FromGeotag(gt)

	if !f.HasCoord || f.Lat() != 1 || f.Lon() != 2 {
		t.Errorf("coord not loaded: %v", f.Coord)
	}
	if !f.HasTrack || math.Abs(f.Speed()-10) > 1e-9 || math.Abs(f.Heading()-90) > 1e-9 {
		t.Errorf("track not loaded: speed=%v heading=%v", f.Speed(), f.Heading())
	}
	if f.DOP == nil || *f.DOP != 1.5 {
		t.Errorf("dop not loaded")
	}
	*gt.DOP = 3
	if *f.DOP != 1.5 {
		t.Errorf("fix must not alias geotag fields")
	}
}

func TestNormalizeDegrees(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		360:  0,
		450:  90,
		-90:  270,
		-720: 0,
	}
	for in, want := range cases {
		if got := NormalizeDegrees(in); got != want {
			t.Errorf("NormalizeDegrees(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestDirectionOfPolar(t *testing.T) {
	for _, deg := range []float64{0, 45, 90, 180, 270, 359} {
		got := Direction(Polar(5, Deg2Rad(deg)))
		if math.Abs(got-deg) > 1e-9 {
			t.Errorf("Direction(Polar(%v)) = %v", deg, got)
		}
	}
}
