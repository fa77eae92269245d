package video

import (
	"errors"
	"testing"
	"time"

	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/mp4"
	"dashcam-geotag/internal/mp4/mp4test"
)

var base = time.Date(2022, 1, 31, 8, 0, 0, 0, time.UTC)

func parseVideo(t *testing.T, v mp4test.Video) *mp4.Result {
	t.Helper()
	res, err := mp4.Parse(v.Build().Bytes, mp4.Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return res
}

func clip(n int) mp4test.Video {
	var s []string
	for i := 0; i < n; i++ {
		s = append(s, mp4test.RMC(base.Add(time.Duration(i)*time.Second), 48+float64(i)*0.001, 11.5, 20, 0))
	}
	return mp4test.Video{Sentences: s, FramesPerFix: 30, KeyEvery: 15}
}

func TestNewFileInfoRates(t *testing.T) {
	fi, err := NewFileInfo(0, "clip.mp4", parseVideo(t, clip(3)), logging.Discard())
	if err != nil {
		t.Fatalf("NewFileInfo failed: %v", err)
	}

	if len(fi.Frames) != 90 || len(fi.Fixes) != 3 {
		t.Fatalf("Expected 90 frames and 3 fixes, got %d and %d", len(fi.Frames), len(fi.Fixes))
	}
	for i, want := range []int{29, 59, 89} {
		if fi.Fixes[i].FrameIndex != want {
			t.Errorf("fix %d: expected frame index %d, got %d", i, want, fi.Fixes[i].FrameIndex)
		}
	}
	if fi.Frames[0].FixIndex != -1 || fi.Frames[30].FixIndex != 0 || fi.Frames[89].FixIndex != 1 {
		t.Errorf("unexpected frame back references: %d %d %d",
			fi.Frames[0].FixIndex, fi.Frames[30].FixIndex, fi.Frames[89].FixIndex)
	}

	if fi.FrameRate != 30 {
		t.Errorf("Expected frame rate 30, got %v", fi.FrameRate)
	}
	if fi.FixRate != 1.5 {
		t.Errorf("Expected fix rate 1.5, got %v", fi.FixRate)
	}
	if fi.KeyFrameRate != 15 {
		t.Errorf("Expected key frame rate 15, got %d", fi.KeyFrameRate)
	}
	wantStart := base.Add(-time.Duration(float64(29) / 30 * float64(time.Second)))
	if d := fi.StartTime.Sub(wantStart); d > time.Microsecond || d < -time.Microsecond {
		t.Errorf("Expected start %v, got %v", wantStart, fi.StartTime)
	}
}

func TestKeyFrameRateWithoutSync(t *testing.T) {
	v := clip(2)
	v.KeyEvery = 0

	fi, err := NewFileInfo(0, "clip.mp4", parseVideo(t, v), logging.Discard())
	if err != nil {
		t.Fatalf("NewFileInfo failed: %v", err)
	}
	if fi.KeyFrameRate != 1 {
		t.Errorf("Expected key frame rate 1 without stss, got %d", fi.KeyFrameRate)
	}
}

func TestTimestampInterpolation(t *testing.T) {
	fi, err := NewFileInfo(0, "clip.mp4", parseVideo(t, clip(3)), logging.Discard())
	if err != nil {
		t.Fatalf("NewFileInfo failed: %v", err)
	}

	cases := []struct {
		frame int
		want  time.Time
	}{
		{59, base.Add(time.Second)},                          // 恰好在定位点上
		{89, base.Add(2 * time.Second)},                      // 最后一个定位点
		{44, base.Add(time.Second / 2)},                      // 两个定位点中间
		{30, base.Add(time.Second / 30)},                     // 第一个定位点之后一帧
		{29, base},                                           // 第一个定位点之前: 外推
		{0, base.Add(-29 * time.Second / 30)},                // 第 0 帧
		{119, base.Add(2*time.Second + 30*time.Second/30)},   // 超出帧表，外推
	}
	for _, c := range cases {
		got, ok := fi.Timestamp(c.frame)
		if !ok {
			t.Errorf("frame %d: no timestamp", c.frame)
			continue
		}
		if d := got.Sub(c.want); d > time.Microsecond || d < -time.Microsecond {
			t.Errorf("frame %d: expected %v, got %v", c.frame, c.want, got)
		}
	}

	// 幂等
	a, _ := fi.Timestamp(44)
	b, _ := fi.Timestamp(44)
	if !a.Equal(b) {
		t.Error("Timestamp must be idempotent")
	}
}

func TestInterpolateTimestamps(t *testing.T) {
	fi, err := NewFileInfo(0, "clip.mp4", parseVideo(t, clip(3)), logging.Discard())
	if err != nil {
		t.Fatalf("NewFileInfo failed: %v", err)
	}
	images := []models.ImageFrame{{Frame: 59}, {Frame: 60}}

	if n := fi.InterpolateTimestamps(images); n != 2 {
		t.Fatalf("Expected 2 timestamps, got %d", n)
	}
	if !images[0].Fix.Timestamp.Equal(base.Add(time.Second)) {
		t.Errorf("unexpected timestamp %v", images[0].Fix.Timestamp)
	}
	if !images[1].Fix.Timestamp.After(images[0].Fix.Timestamp) {
		t.Error("timestamps must increase with the frame number")
	}
}

func fixAt(offset uint64, ts time.Time, lat, lon float64) models.FixAtom {
	f := models.FixAtom{Offset: offset, FrameIndex: -1}
	f.Timestamp = ts
	f.SetCoord(lat, lon)
	return f
}

func TestDuplicateFixesAreDropped(t *testing.T) {
	res := &mp4.Result{
		Frames: []models.FrameAtom{{Offset: 10}, {Offset: 30}, {Offset: 50}, {Offset: 70}, {Offset: 90}},
		Fixes: []models.FixAtom{
			fixAt(20, base, 1, 1),
			fixAt(40, base, 1, 2),                   // 时间相同
			fixAt(60, base.Add(time.Second), 1, 1),  // 位置相同
			fixAt(80, base.Add(2*time.Second), 1, 3),
			{Offset: 85},                            // 没有时间戳
		},
	}

	fi, err := NewFileInfo(1, "dup.mp4", res, logging.Discard())
	if err != nil {
		t.Fatalf("NewFileInfo failed: %v", err)
	}
	if len(fi.Fixes) != 2 {
		t.Fatalf("Expected 2 fixes, got %d", len(fi.Fixes))
	}
	if fi.Duplicates != 2 || fi.Untimed != 1 {
		t.Errorf("Expected 2 duplicates and 1 untimed, got %d and %d", fi.Duplicates, fi.Untimed)
	}
	if fi.Fixes[1].Offset != 80 || fi.Fixes[1].FrameIndex != 3 {
		t.Errorf("unexpected second fix %+v", fi.Fixes[1])
	}
	if fi.Fixes[1].Source != 1 {
		t.Errorf("source not set")
	}
	// 被丢弃的定位点不占下标
	if fi.Frames[4].FixIndex != 1 {
		t.Errorf("Expected last frame fix index 1, got %d", fi.Frames[4].FixIndex)
	}
}

func TestUnsortedInputIsOrderedByOffset(t *testing.T) {
	res := &mp4.Result{
		Frames: []models.FrameAtom{{Offset: 50}, {Offset: 10}, {Offset: 30}},
		Fixes:  []models.FixAtom{fixAt(40, base.Add(time.Second), 1, 2), fixAt(20, base, 1, 1)},
	}

	fi, err := NewFileInfo(0, "x.mp4", res, logging.Discard())
	if err != nil {
		t.Fatalf("NewFileInfo failed: %v", err)
	}
	if fi.Frames[0].Offset != 10 || fi.Fixes[0].Offset != 20 {
		t.Errorf("atoms not sorted by offset")
	}
	if fi.Fixes[0].FrameIndex != 0 || fi.Fixes[1].FrameIndex != 1 {
		t.Errorf("unexpected frame indices %d %d", fi.Fixes[0].FrameIndex, fi.Fixes[1].FrameIndex)
	}
}

func TestInsufficientGPS(t *testing.T) {
	fi, err := NewFileInfo(0, "short.mp4", parseVideo(t, clip(1)), logging.Discard())
	if !errors.Is(err, ErrInsufficientGPS) {
		t.Fatalf("Expected ErrInsufficientGPS, got %v", err)
	}
	if fi == nil || len(fi.Frames) != 30 {
		t.Fatal("FileInfo must still carry the frames")
	}
	if fi.HasTiming() {
		t.Error("no time base expected")
	}
	if _, ok := fi.Timestamp(10); ok {
		t.Error("no timestamp can be derived without a time base")
	}
	if s := fi.Summary(); s.HasTiming || s.Frames != 30 {
		t.Errorf("unexpected summary %+v", s)
	}
}
