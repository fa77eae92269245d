package mp4

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedAtom 原子大小不合法 (不前进或超出父原子)
	ErrMalformedAtom = errors.New("malformed atom")
	// ErrSampleToChunk stsc 中每个 chunk 不是恰好一个 sample
	ErrSampleToChunk = errors.New("stsc: samples per chunk != 1")
	// ErrBadMarker GPS 记录标记不是 "GPS "
	ErrBadMarker = errors.New("bad GPS record marker")
	// ErrRecordBounds GPS 目录项指向文件之外
	ErrRecordBounds = errors.New("GPS record out of bounds")
	ErrEmptyFile    = errors.New("empty file")
)

// ParseError 致命的结构错误，从外层原子到出错位置串成一条链
type ParseError struct {
	Op     string
	Offset uint64
	Err    error
	prev   *ParseError
}

func (pe *ParseError) Error() string {
	var s []string
	for p := pe; p != nil; p = p.prev {
		s = append(s, fmt.Sprintf("%s@%#x", p.Op, p.Offset))
	}
	msg := "mp4: parse error: " + strings.Join(s, ",")
	if err := pe.Unwrap(); err != nil {
		msg += ": " + err.Error()
	}
	return msg
}

// Unwrap 返回链尾的根因
func (pe *ParseError) Unwrap() error {
	p := pe
	for p.prev != nil {
		p = p.prev
	}
	return p.Err
}

func parseErr(op string, offset uint64, prev error) error {
	pe := &ParseError{Op: op, Offset: offset}
	if inner, ok := prev.(*ParseError); ok {
		pe.prev = inner
	} else {
		pe.Err = prev
	}
	return pe
}

// RecordError 单条 GPS 记录的解码错误，不影响其他记录
type RecordError struct {
	Offset   uint64 `json:"offset"`
	Sentence string `json:"sentence,omitempty"`
	Err      error  `json:"-"`
}

func (e RecordError) Error() string {
	if e.Sentence != "" {
		return fmt.Sprintf("gps record %#x: %v: %q", e.Offset, e.Err, e.Sentence)
	}
	return fmt.Sprintf("gps record %#x: %v", e.Offset, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}
