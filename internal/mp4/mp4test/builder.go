// Package mp4test 生成测试用的行车记录仪视频文件
package mp4test

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dashcam-geotag/internal/nmea"
)

// Video 描述一个合成视频
//
// mdat 中的布局: 每条 GPS 记录之前有 FramesPerFix 帧，最后再跟 TrailingFrames 帧。
type Video struct {
	Sentences       []string
	FramesPerFix    int
	TrailingFrames  int
	KeyEvery        int    // 每 N 帧一个关键帧, 0 表示不写 stss
	SamplesPerChunk uint32 // 0 表示 1
	Audio           bool   // 额外写一条音频轨道
	BadMarker       map[int]bool
}

// Layout 生成结果
type Layout struct {
	Bytes   []byte
	Frames  []uint64 // 每帧的文件偏移
	Records []uint64 // 每条 GPS 记录载荷的文件偏移
}

const frameSize = 16

// Build 生成文件内容
func (v Video) Build() Layout {
	var l Layout

	buf := Atom("ftyp", []byte("isom"), be32(0x200), []byte("isomavc1"))

	mdatStart := uint64(len(buf))
	var mdat []byte
	var dir []byte
	pos := func() uint64 { return mdatStart + 8 + uint64(len(mdat)) }
	addFrames := func(n int) {
		for i := 0; i < n; i++ {
			l.Frames = append(l.Frames, pos())
			mdat = append(mdat, make([]byte, frameSize)...)
		}
	}

	for i, s := range v.Sentences {
		addFrames(v.FramesPerFix)

		payload := make([]byte, 0x60)
		copy(payload, "GPS ")
		if v.BadMarker[i] {
			copy(payload, "JUNK")
		}
		binary.BigEndian.PutUint32(payload[4:], 0x3f0)
		payload = append(payload, s...)
		payload = append(payload, '\n', 0, 0, 0)

		start := pos()
		record := Atom("free", payload)
		l.Records = append(l.Records, start+8)
		dir = append(dir, be32(uint32(start))...)
		dir = append(dir, be32(uint32(len(record)))...)
		mdat = append(mdat, record...)
	}
	addFrames(v.TrailingFrames)

	buf = append(buf, Atom("mdat", mdat)...)

	spc := v.SamplesPerChunk
	if spc == 0 {
		spc = 1
	}
	stco := make([]uint64, len(l.Frames))
	copy(stco, l.Frames)
	stbl := [][]byte{
		Atom("stsd", be32(0), be32(0)),
		Atom("stsc", be32(0), be32(1), be32(1), be32(spc), be32(1)),
	}
	if v.KeyEvery > 0 {
		var keys []uint64
		for i := 0; i < len(l.Frames); i += v.KeyEvery {
			keys = append(keys, uint64(i+1))
		}
		stbl = append(stbl, Table("stss", 4, keys...))
	}
	stbl = append(stbl, Table("stco", 4, stco...))

	video := Atom("trak",
		Atom("tkhd", make([]byte, 84)),
		Atom("mdia",
			Atom("mdhd", make([]byte, 24)),
			Atom("minf",
				Atom("vmhd", make([]byte, 12)),
				Atom("stbl", stbl...),
			),
		),
	)
	moov := [][]byte{Atom("mvhd", make([]byte, 100)), video}
	if v.Audio {
		moov = append(moov, Atom("trak",
			Atom("mdia",
				Atom("minf",
					Atom("smhd", make([]byte, 8)),
					Atom("stbl",
						Atom("stsc", be32(0), be32(1), be32(1), be32(1024), be32(1)),
						Table("stco", 4, mdatStart+8),
					),
				),
			),
		))
	}
	buf = append(buf, Atom("moov", moov...)...)

	count := len(v.Sentences)
	buf = append(buf, Atom("gps ", be32(0x101), be32(uint32(count)), dir)...)

	l.Bytes = buf
	return l
}

// WriteFile 写入 dir/name 并返回路径
func (v Video) WriteFile(t testing.TB, dir, name string) (string, Layout) {
	t.Helper()
	l := v.Build()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, l.Bytes, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path, l
}

// Atom 拼接一个原子: size + tag + 载荷
func Atom(tag string, parts ...[]byte) []byte {
	size := 8
	for _, p := range parts {
		size += len(p)
	}
	b := make([]byte, 0, size)
	b = append(b, be32(uint32(size))...)
	b = append(b, tag[:4]...)
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

// Table full-atom 表: version/flags + 条目数 + 条目
func Table(tag string, width int, values ...uint64) []byte {
	b := append(be32(0), be32(uint32(len(values)))...)
	for _, v := range values {
		if width == 8 {
			b = binary.BigEndian.AppendUint64(b, v)
		} else {
			b = append(b, be32(uint32(v))...)
		}
	}
	return Atom(tag, b)
}

func be32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// Sentence 给语句体加上 $ 和校验和
func Sentence(body string) string {
	return fmt.Sprintf("$%s*%02X", body, nmea.Checksum(body))
}

// RMC 生成一条有效的 $GPRMC (日期按行车记录仪的 YYMMDD)
func RMC(ts time.Time, lat, lon, knots, heading float64) string {
	ts = ts.UTC()
	body := fmt.Sprintf("GPRMC,%02d%02d%02d.%03d,A,%s,%s,%.3f,%.2f,%02d%02d%02d,,,A",
		ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond()/1e6,
		degrees(lat, 2, "N", "S"), degrees(lon, 3, "E", "W"),
		knots, heading,
		ts.Year()%100, int(ts.Month()), ts.Day())
	return Sentence(body)
}

func degrees(v float64, width int, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	return fmt.Sprintf("%0*d%09.6f,%s", width, int(deg), minutes, hemi)
}
