package mp4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/nmea"
)

// DirectoryEntry gps 目录中的一项，指向一个 free 原子
type DirectoryEntry struct {
	Offset uint32 // free 原子头的文件偏移
	Size   uint32 // 包括原子头
}

// ReadDirectory 解析 gps 原子载荷: 版本(4) + 条目数(4) + 条目数 × (offset, size)
func ReadDirectory(buf []byte, start, end uint64) ([]DirectoryEntry, error) {
	first, count, err := fullTable(buf, start, end, config.GPSDirectoryEntry)
	if err != nil {
		return nil, err
	}

	entries := make([]DirectoryEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		pos := first + i*config.GPSDirectoryEntry
		entries = append(entries, DirectoryEntry{
			Offset: binary.BigEndian.Uint32(buf[pos:]),
			Size:   binary.BigEndian.Uint32(buf[pos+4:]),
		})
	}
	return entries, nil
}

// Extract 解码目录项指向的 GPS 记录
//
// 记录布局 (free 原子载荷):
//
//	00  "GPS " 标记
//	04  版本
//	08  时分秒、有效位、经纬度、速度、航向、日期的二进制副本
//	54  加速度计 x/y/z (int32 × 1000)
//	60  $GPRMC / $GNRMC 语句
//
// 二进制副本被忽略，以 RMC 语句为准。失败的记录放在第二个返回值里。
func Extract(buf []byte, entries []DirectoryEntry, opts nmea.Options) ([]models.FixAtom, []RecordError) {
	var (
		fixes    []models.FixAtom
		rejected []RecordError
	)

	for _, e := range entries {
		if e.Offset == 0 || e.Size == 0 {
			continue // 空槽
		}

		payload := uint64(e.Offset) + config.AtomHeaderSize
		recordEnd := uint64(e.Offset) + uint64(e.Size)
		if recordEnd > uint64(len(buf)) || recordEnd < payload+config.GPSRecordHeader {
			rejected = append(rejected, RecordError{Offset: payload, Err: fmt.Errorf("%w: entry %#x+%d, file %d bytes",
				ErrRecordBounds, e.Offset, e.Size, len(buf))})
			continue
		}

		if !bytes.Equal(buf[payload:payload+4], []byte(config.GPSRecordMarker)) {
			rejected = append(rejected, RecordError{Offset: payload, Err: fmt.Errorf("%w: %q", ErrBadMarker, buf[payload:payload+4])})
			continue
		}

		sentence := readSentence(buf[payload+config.GPSRecordHeader : recordEnd])
		fix, err := nmea.Decode(sentence, opts)
		if err != nil {
			rejected = append(rejected, RecordError{Offset: payload, Sentence: sentence, Err: err})
			continue
		}

		fixes = append(fixes, models.FixAtom{Offset: payload, FrameIndex: -1, Fix: fix})
	}

	return fixes, rejected
}

// readSentence 读取一行 ASCII，止于换行或 NUL
func readSentence(b []byte) string {
	if len(b) > config.MaxSentenceLength {
		b = b[:config.MaxSentenceLength]
	}
	if i := bytes.IndexAny(b, "\r\n\x00"); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
