package interp

import (
	"math"
	"testing"
	"time"

	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
)

var base = time.Date(2022, 1, 31, 8, 0, 0, 0, time.UTC)

// eastbound 沿赤道向东，每 step 秒一个定位点
func eastbound(n int, step time.Duration, speeds ...float64) []models.FixAtom {
	fixes := make([]models.FixAtom, n)
	for i := range fixes {
		fixes[i].Timestamp = base.Add(time.Duration(i) * step)
		fixes[i].SetCoord(0, float64(i)*0.001)
		if len(speeds) > 0 {
			fixes[i].SetTrack(speeds[i%len(speeds)], 90)
		}
	}
	return fixes
}

func frameAt(sec float64) models.ImageFrame {
	var img models.ImageFrame
	img.Fix.Timestamp = base.Add(time.Duration(sec * float64(time.Second)))
	return img
}

func opts(gap time.Duration) Options {
	return Options{MaxGap: gap, Logger: logging.Discard()}
}

func TestMidpointOnStraightLine(t *testing.T) {
	fixes := eastbound(4, 10*time.Second, 40)
	images := []models.ImageFrame{frameAt(15)}

	st, err := Positions(fixes, images, opts(time.Minute))
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if st.Resolved != 1 {
		t.Fatalf("Expected 1 resolved frame, got %+v", st)
	}

	fix := images[0].Fix
	if math.Abs(fix.Lat()) > 1e-12 || math.Abs(fix.Lon()-0.0015) > 1e-12 {
		t.Errorf("Expected midpoint (0, 0.0015), got (%v, %v)", fix.Lat(), fix.Lon())
	}
	if !fix.HasTrack || math.Abs(fix.Heading()-90) > 1e-9 {
		t.Errorf("Expected heading 90, got %v", fix.Heading())
	}
	if math.Abs(fix.Speed()-40) > 1e-9 {
		t.Errorf("Expected speed 40, got %v", fix.Speed())
	}
	if fix.Direction == nil || math.Abs(*fix.Direction-90) > 1e-9 {
		t.Errorf("Expected direction 90, got %v", fix.Direction)
	}
}

func TestTrackSpline(t *testing.T) {
	fixes := eastbound(4, 10*time.Second, 36, 40, 44, 48)
	images := []models.ImageFrame{frameAt(15)}

	if _, err := Positions(fixes, images, Options{MaxGap: time.Minute, CameraYaw: 270, Logger: logging.Discard()}); err != nil {
		t.Fatalf("Positions failed: %v", err)
	}

	fix := images[0].Fix
	if math.Abs(fix.Speed()-42) > 1e-9 {
		t.Errorf("Expected speed 42, got %v", fix.Speed())
	}
	// 90 + 270 = 360 → 0
	if fix.Direction == nil || math.Abs(*fix.Direction) > 1e-9 && math.Abs(*fix.Direction-360) > 1e-9 {
		t.Errorf("Expected direction 0, got %v", fix.Direction)
	}
}

func TestNoTrackWithoutFourTracks(t *testing.T) {
	fixes := eastbound(4, 10*time.Second, 40)
	fixes[3].HasTrack = false
	images := []models.ImageFrame{frameAt(12)}

	if _, err := Positions(fixes, images, opts(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if !images[0].Fix.HasCoord {
		t.Fatal("position must still be interpolated")
	}
	if images[0].Fix.HasTrack || images[0].Fix.Direction != nil {
		t.Error("track needs all four fixes to carry one")
	}
}

func TestSignalLossGap(t *testing.T) {
	fixes := eastbound(4, 10*time.Second, 40)
	fixes[2].Timestamp = base.Add(410 * time.Second)
	fixes[3].Timestamp = base.Add(420 * time.Second)
	images := []models.ImageFrame{frameAt(200), frameAt(415)}

	st, err := Positions(fixes, images, opts(300*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if images[0].Fix.HasCoord {
		t.Errorf("frame inside a 400s gap must stay without position, got %v", images[0].Fix.Coord)
	}
	if st.Gaps != 1 {
		t.Errorf("Expected 1 gap, got %+v", st)
	}
	// 415 在最后一个区间之后，没有第 5 个定位点
	if images[1].Fix.HasCoord || st.OutOfRange != 1 {
		t.Errorf("frame after the last interval must stay unresolved: %+v", st)
	}
}

func TestDefaultMaxGap(t *testing.T) {
	fixes := eastbound(4, 11*time.Second, 40)
	images := []models.ImageFrame{frameAt(15)}

	st, _ := Positions(fixes, images, Options{Logger: logging.Discard()})
	if st.Gaps != 1 || images[0].Fix.HasCoord {
		t.Errorf("11s exceeds the default gap of 10s: %+v", st)
	}
}

func TestFrameOnFixTakesNextFix(t *testing.T) {
	fixes := eastbound(4, 10*time.Second, 40)
	fixes[2].Direction = models.Float(123)
	images := []models.ImageFrame{frameAt(10)}

	if _, err := Positions(fixes, images, opts(time.Minute)); err != nil {
		t.Fatal(err)
	}
	fix := images[0].Fix
	if fix.Coord != fixes[2].Coord || fix.Track != fixes[2].Track {
		t.Errorf("Expected values of fixes[2], got %v", fix.Coord)
	}
	if fix.Direction == nil || *fix.Direction != 123 {
		t.Errorf("direction must be copied verbatim")
	}
}

func TestWindowSlides(t *testing.T) {
	fixes := eastbound(6, 10*time.Second, 40)
	// 乱序输入
	images := []models.ImageFrame{frameAt(35), frameAt(5), frameAt(25), frameAt(15), {}}

	st, err := Positions(fixes, images, opts(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if st.Resolved != 3 || st.OutOfRange != 1 || st.Untimed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if images[1].Fix.HasCoord {
		t.Error("frame before fixes[1] has no window")
	}
	for _, i := range []int{0, 2, 3} {
		sec := images[i].Fix.Timestamp.Sub(base).Seconds()
		if want := sec / 10 * 0.001; math.Abs(images[i].Fix.Lon()-want) > 1e-12 {
			t.Errorf("frame at %vs: expected lon %v, got %v", sec, want, images[i].Fix.Lon())
		}
	}
}

func TestTracksFromPositions(t *testing.T) {
	fixes := eastbound(4, 10*time.Second)

	n, err := Tracks(fixes, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 interior fixes, got %d", n)
	}
	if fixes[0].HasTrack || fixes[3].HasTrack {
		t.Error("end points must not get a track")
	}
	// 赤道上 0.001 度 = 111.32 米，10 秒 → 40.075 km/h
	want := 111.3194908 / 10 * 3.6
	for _, f := range fixes[1:3] {
		if math.Abs(f.Heading()-90) > 1e-6 {
			t.Errorf("Expected heading 90, got %v", f.Heading())
		}
		if math.Abs(f.Speed()-want) > 1e-3 {
			t.Errorf("Expected speed %v, got %v", want, f.Speed())
		}
	}
}

func TestMergeFixes(t *testing.T) {
	a := eastbound(3, 10*time.Second)
	b := eastbound(3, 10*time.Second)
	for i := range b {
		b[i].Timestamp = b[i].Timestamp.Add(time.Minute)
		b[i].SetCoord(1, float64(i))
	}
	var nocoord models.FixAtom
	nocoord.Timestamp = base.Add(5 * time.Second)

	// b 在前，a 的第二个重复，加一个没有坐标的
	dup := a[1]
	merged, dups := MergeFixes(b, []models.FixAtom{nocoord}, a, []models.FixAtom{dup})

	if len(merged) != 6 || dups != 1 {
		t.Fatalf("Expected 6 fixes and 1 duplicate, got %d and %d", len(merged), dups)
	}
	for i := 1; i < len(merged); i++ {
		if !merged[i].Timestamp.After(merged[i-1].Timestamp) {
			t.Errorf("merged fixes not strictly increasing at %d", i)
		}
	}
}

func TestMergeKeepsNonAdjacentDuplicates(t *testing.T) {
	fixes := eastbound(3, time.Second)
	fixes[2].Coord = fixes[0].Coord // 与非相邻的重复

	merged, dups := MergeFixes(fixes)
	if len(merged) != 3 || dups != 0 {
		t.Errorf("only adjacent duplicates are dropped: %d fixes, %d duplicates", len(merged), dups)
	}
}

func TestSortImages(t *testing.T) {
	images := []models.ImageFrame{frameAt(3), frameAt(1), frameAt(2)}
	images[1].Frame = 7
	SortImages(images)
	if images[0].Frame != 7 {
		t.Errorf("Expected frame 7 first, got %d", images[0].Frame)
	}
}
