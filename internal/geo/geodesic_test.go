package geo

import (
	"math"
	"testing"

	"dashcam-geotag/internal/models"
)

func TestDistanceAlongEquator(t *testing.T) {
	// 赤道上 1 度经度 = 111319.49 米 (WGS84 长半轴 × π/180)
	d := Distance(complex(0, 0), complex(0, 1))
	if math.Abs(d-111319.4908) > 0.01 {
		t.Errorf("Expected 111319.49 m, got %.4f", d)
	}
	if Distance(complex(48, 11), complex(48, 11)) != 0 {
		t.Error("distance to self must be zero")
	}
}

func TestDistanceAlongMeridian(t *testing.T) {
	// 赤道到北极的子午线弧长
	d := Distance(complex(0, 0), complex(90, 0))
	if math.Abs(d-10001965.729) > 0.01 {
		t.Errorf("Expected 10001965.729 m, got %.3f", d)
	}
}

func TestHeading(t *testing.T) {
	cases := []struct {
		to   complex128
		want float64
	}{
		{complex(1, 0), 0},
		{complex(0, 1), 90},
		{complex(-1, 0), 180},
		{complex(0, -1), -90},
	}
	for _, c := range cases {
		got := Heading(complex(0, 0), c.to)
		if diff := math.Mod(got-c.want+540, 360) - 180; math.Abs(diff) > 1e-9 {
			t.Errorf("Heading to %v = %v, want %v", c.to, got, c.want)
		}
	}
}

func TestGeofence(t *testing.T) {
	center := complex(48.0, 11.0)
	geotags := []models.Geotag{
		{Filename: "in.jpg", Lat: models.Float(48.001), Lon: models.Float(11.0)},  // ~111 m
		{Filename: "out.jpg", Lat: models.Float(48.1), Lon: models.Float(11.0)},   // ~11 km
		{Filename: "nopos.jpg"},
	}

	if n := Geofence(geotags, center, 1); n != 1 {
		t.Fatalf("Expected 1 cleared, got %d", n)
	}
	if geotags[0].HasPosition() {
		t.Error("position inside fence must be cleared")
	}
	if !geotags[1].HasPosition() {
		t.Error("position outside fence must be kept")
	}
}

func TestParseGeofence(t *testing.T) {
	center, radius, err := ParseGeofence("48.137,-11.575,2")
	if err != nil {
		t.Fatal(err)
	}
	if center != complex(48.137, -11.575) || radius != 2 {
		t.Errorf("unexpected geofence %v %v", center, radius)
	}

	for _, bad := range []string{"", "48.1,11.5", "north,east,2", "1.2.3,4,5"} {
		if _, _, err := ParseGeofence(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
