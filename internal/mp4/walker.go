// Package mp4 解析行车记录仪的 MP4/QuickTime 容器
//
// 只关心视频帧 (stco) 和嵌在 mdat 中的 GPS 记录 (gps 目录 → free 原子)，
// 其他原子按大小跳过。所有多字节字段都是大端。
package mp4

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/logging"
	"dashcam-geotag/internal/models"
	"dashcam-geotag/internal/nmea"
)

// Tag 4 字节原子类型
type Tag uint32

func (t Tag) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	for i := range b {
		if b[i] < 0x20 || b[i] > 0x7e {
			b[i] = '?'
		}
	}
	return string(b[:])
}

// StringToTag "moov" → Tag
func StringToTag(s string) Tag {
	var b [4]byte
	copy(b[:], s)
	return Tag(binary.BigEndian.Uint32(b[:]))
}

var (
	MOOV = StringToTag("moov")
	TRAK = StringToTag("trak")
	MDIA = StringToTag("mdia")
	MINF = StringToTag("minf")
	STBL = StringToTag("stbl")
	SMHD = StringToTag("smhd")
	STSC = StringToTag("stsc")
	STSS = StringToTag("stss")
	STCO = StringToTag("stco")
	CO64 = StringToTag("co64")
	GPS  = StringToTag("gps ")
	FREE = StringToTag("free")
)

// Options 解析选项
type Options struct {
	Logger *slog.Logger
	NMEA   nmea.Options
	Source int // 写入每个 FixAtom.Source
}

// Result 一个文件的解析结果
type Result struct {
	Frames    []models.FrameAtom
	Fixes     []models.FixAtom
	KeyFrames []uint32 // stss 中的 sample 编号 (从 1 开始)
	HasSync   bool     // 是否有 stss，没有则所有帧都是关键帧
	Rejected  []RecordError
	Atoms     int
}

// Parser 递归遍历时的上下文
type Parser struct {
	logger *slog.Logger
	opts   Options
	res    Result
}

// NewParser 创建解析器
func NewParser(opts Options) *Parser {
	return &Parser{
		logger: logging.Or(opts.Logger),
		opts:   opts,
	}
}

// Result 返回已收集的结果
func (p *Parser) Result() *Result {
	return &p.res
}

// Parse 解析整个缓冲区
func Parse(buf []byte, opts Options) (*Result, error) {
	p := NewParser(opts)
	if err := p.Walk(buf, 0, uint64(len(buf)), 0); err != nil {
		return nil, err
	}
	return p.Result(), nil
}

// Walk 遍历 [start, end) 内的同级原子，容器原子递归 depth+1
func (p *Parser) Walk(buf []byte, start, end uint64, depth int) error {
	if end > uint64(len(buf)) || start > end {
		return parseErr("range", start, fmt.Errorf("%w: range [%#x,%#x) exceeds buffer of %d bytes",
			ErrMalformedAtom, start, end, len(buf)))
	}

	offset := start
	for offset < end {
		atom, err := readHeader(buf, offset, end)
		if err != nil {
			return err
		}
		p.res.Atoms++
		p.logger.Debug("atom", "offset", fmt.Sprintf("%08x", offset), "depth", depth, "type", atom.Type.String(), "size", atom.Size)

		payload := atom.Offset + atom.Header
		atomEnd := atom.Offset + atom.Size

		switch atom.Type {
		case GPS:
			err = p.parseGPS(buf, payload, atomEnd)
		case STSC:
			err = p.parseSTSC(buf, payload, atomEnd)
		case STSS:
			err = p.parseSTSS(buf, payload, atomEnd)
		case STCO:
			err = p.parseSTCO(buf, payload, atomEnd, 4)
		case CO64:
			err = p.parseSTCO(buf, payload, atomEnd, 8)
		case MINF:
			// 音频轨道整棵子树跳过
			if containsTag(buf, payload, atomEnd, SMHD) {
				p.logger.Debug("skip sound track", "offset", fmt.Sprintf("%08x", offset))
				break
			}
			err = p.Walk(buf, payload, atomEnd, depth+1)
		case MOOV, TRAK, MDIA, STBL:
			err = p.Walk(buf, payload, atomEnd, depth+1)
		}
		if err != nil {
			return parseErr(atom.Type.String(), offset, err)
		}

		offset = atomEnd
	}
	return nil
}

// Atom 原子头
type Atom struct {
	Offset uint64
	Size   uint64 // 包括头
	Header uint64 // 8 或 16 (largesize)
	Type   Tag
}

// readHeader 读取 offset 处的原子头
// size==1: 后跟 64 位 largesize; size==0: 延伸到 end
func readHeader(buf []byte, offset, end uint64) (Atom, error) {
	if end-offset < config.AtomHeaderSize {
		return Atom{}, parseErr("header", offset, fmt.Errorf("%w: %d trailing bytes", ErrMalformedAtom, end-offset))
	}
	atom := Atom{
		Offset: offset,
		Size:   uint64(binary.BigEndian.Uint32(buf[offset:])),
		Header: config.AtomHeaderSize,
		Type:   Tag(binary.BigEndian.Uint32(buf[offset+4:])),
	}

	switch atom.Size {
	case 1:
		if end-offset < config.LargeAtomHeader {
			return atom, parseErr(atom.Type.String(), offset, fmt.Errorf("%w: truncated largesize", ErrMalformedAtom))
		}
		atom.Size = binary.BigEndian.Uint64(buf[offset+8:])
		atom.Header = config.LargeAtomHeader
	case 0:
		atom.Size = end - offset
	}

	if atom.Size < atom.Header || atom.Size > end-offset {
		return atom, parseErr(atom.Type.String(), offset, fmt.Errorf("%w: size %d at %#x, parent ends at %#x",
			ErrMalformedAtom, atom.Size, offset, end))
	}
	return atom, nil
}

// containsTag 直接子原子中是否有 tag
func containsTag(buf []byte, start, end uint64, tag Tag) bool {
	for offset := start; offset < end; {
		atom, err := readHeader(buf, offset, end)
		if err != nil {
			return false
		}
		if atom.Type == tag {
			return true
		}
		offset += atom.Size
	}
	return false
}

// fullTable 读取 full-atom 表头 (version/flags + 条目数) 并检查表长度
func fullTable(buf []byte, start, end uint64, width uint64) (uint64, uint64, error) {
	if end-start < 8 {
		return 0, 0, fmt.Errorf("%w: table header truncated", ErrMalformedAtom)
	}
	entries := uint64(binary.BigEndian.Uint32(buf[start+4:]))
	first := start + 8
	if entries*width > end-first {
		return 0, 0, fmt.Errorf("%w: %d entries of %d bytes exceed atom", ErrMalformedAtom, entries, width)
	}
	return first, entries, nil
}

// parseSTSC 只做检查: 全部视频都是一个 chunk 一帧
func (p *Parser) parseSTSC(buf []byte, start, end uint64) error {
	first, entries, err := fullTable(buf, start, end, 12)
	if err != nil {
		return err
	}
	for i := uint64(0); i < entries; i++ {
		entry := first + i*12
		if n := binary.BigEndian.Uint32(buf[entry+4:]); n != 1 {
			return fmt.Errorf("%w: entry %d has %d samples", ErrSampleToChunk, i, n)
		}
	}
	return nil
}

// parseSTSS 关键帧 sample 编号
func (p *Parser) parseSTSS(buf []byte, start, end uint64) error {
	first, entries, err := fullTable(buf, start, end, 4)
	if err != nil {
		return err
	}
	p.res.HasSync = true
	for i := uint64(0); i < entries; i++ {
		p.res.KeyFrames = append(p.res.KeyFrames, binary.BigEndian.Uint32(buf[first+i*4:]))
	}
	return nil
}

// parseSTCO 每个 chunk 偏移就是一帧
func (p *Parser) parseSTCO(buf []byte, start, end uint64, width uint64) error {
	first, entries, err := fullTable(buf, start, end, width)
	if err != nil {
		return err
	}
	for i := uint64(0); i < entries; i++ {
		var offset uint64
		if width == 8 {
			offset = binary.BigEndian.Uint64(buf[first+i*8:])
		} else {
			offset = uint64(binary.BigEndian.Uint32(buf[first+i*4:]))
		}
		p.res.Frames = append(p.res.Frames, models.FrameAtom{Offset: offset, FixIndex: -1})
	}
	return nil
}

// parseGPS 读取 GPS 目录并解码它指向的记录
// 单条记录失败只记日志
func (p *Parser) parseGPS(buf []byte, start, end uint64) error {
	entries, err := ReadDirectory(buf, start, end)
	if err != nil {
		return err
	}

	fixes, rejected := Extract(buf, entries, p.opts.NMEA)
	for i := range fixes {
		fixes[i].Source = p.opts.Source
	}
	for _, r := range rejected {
		p.logger.Warn("invalid gps record", "offset", fmt.Sprintf("%08x", r.Offset), "error", r.Err, "sentence", r.Sentence)
	}

	p.res.Fixes = append(p.res.Fixes, fixes...)
	p.res.Rejected = append(p.res.Rejected, rejected...)
	return nil
}
