// Package nmea 解码嵌在 GPS 记录里的 $GPRMC / $GNRMC 语句
package nmea

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dashcam-geotag/internal/config"
	"dashcam-geotag/internal/models"
)

var (
	ErrNoMatch        = errors.New("nmea: not a RMC sentence")
	ErrChecksum       = errors.New("nmea: checksum mismatch")
	ErrMalformedField = errors.New("nmea: malformed field")
)

// DateOrder 日期字段的排列
type DateOrder int

const (
	// DateYYMMDD 行车记录仪实际写入的顺序
	DateYYMMDD DateOrder = iota
	// DateDDMMYY 标准 NMEA 0183
	DateDDMMYY
)

// ParseDateOrder 解析配置中的 yymmdd / ddmmyy
func ParseDateOrder(s string) (DateOrder, error) {
	switch strings.ToLower(s) {
	case "", "yymmdd":
		return DateYYMMDD, nil
	case "ddmmyy":
		return DateDDMMYY, nil
	}
	return DateYYMMDD, fmt.Errorf("unknown date order %q", s)
}

func (d DateOrder) String() string {
	if d == DateDDMMYY {
		return "ddmmyy"
	}
	return "yymmdd"
}

// Options 解码选项
type Options struct {
	// VerifyChecksum 校验 *HH，默认不校验 (兼容已有的数据)
	VerifyChecksum bool
	DateOrder      DateOrder
}

// String 选项的稳定表示，解码结果随它变化
func (o Options) String() string {
	return fmt.Sprintf("checksum=%t,date=%s", o.VerifyChecksum, o.DateOrder)
}

//	1 talker  2 time  3 status  4 lat  5 N/S  6 lon  7 E/W
//	8 speed  9 track  10 date  11 magvar  12 E/W  13 mode  14 checksum
var rmcPattern = regexp.MustCompile(
	`^\$(G[PN]RMC),([.\d]*),([AV]),([.\d]*),([NS]?),([.\d]*),([EW]?),([.\d]*),([.\d]*),([\d]*),([.\d]*),([EW]?),([ADEMN])\*(\w\w)`)

var (
	timePattern = regexp.MustCompile(`^(\d\d)(\d\d)(\d\d)(?:\.(\d+))?`)
	datePattern = regexp.MustCompile(`^(\d\d)(\d\d)(\d\d)`)
)

// Decode 解码一条 RMC 语句
// 缺失的时间/位置/航迹字段不算错误，对应的 Fix 字段保持为空
func Decode(sentence string, opts Options) (models.Fix, error) {
	fix := models.Fix{Sentence: sentence}

	m := rmcPattern.FindStringSubmatch(sentence)
	if m == nil {
		return fix, ErrNoMatch
	}
	if opts.VerifyChecksum {
		body := m[0][1:strings.LastIndexByte(m[0], '*')]
		if !checksumMatches(body, m[14]) {
			return fix, fmt.Errorf("%w: want %s, got %02X", ErrChecksum, strings.ToUpper(m[14]), Checksum(body))
		}
	}

	fix.Talker = m[1]
	fix.Valid = m[3] == "A"
	fix.Mode = m[13]

	if m[2] != "" && m[10] != "" {
		if ts, ok := parseDateTime(m[10], m[2], opts.DateOrder); ok {
			fix.Timestamp = ts
		}
	}

	if m[4] != "" && m[6] != "" {
		lat, err := parseDegrees(m[4], m[5])
		if err != nil {
			return fix, fmt.Errorf("latitude %q: %w", m[4], err)
		}
		lon, err := parseDegrees(m[6], m[7])
		if err != nil {
			return fix, fmt.Errorf("longitude %q: %w", m[6], err)
		}
		fix.SetCoord(lat, lon)
	}

	if m[8] != "" && m[9] != "" {
		knots, err := strconv.ParseFloat(m[8], 64)
		if err != nil {
			return fix, fmt.Errorf("speed %q: %w", m[8], ErrMalformedField)
		}
		heading, err := strconv.ParseFloat(m[9], 64)
		if err != nil {
			return fix, fmt.Errorf("track %q: %w", m[9], ErrMalformedField)
		}
		fix.SetTrack(knots*config.KnotsToKmh, heading)
	}

	return fix, nil
}

// Checksum '$' 和 '*' 之间所有字节的异或
func Checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

func checksumMatches(body, hex string) bool {
	want, err := strconv.ParseUint(hex, 16, 8)
	if err != nil {
		return false
	}
	return byte(want) == Checksum(body)
}

// parseDegrees ddmm.mmmm → 十进制度，南纬/西经为负
func parseDegrees(s, hemisphere string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrMalformedField
	}
	minutes := math.Mod(v, 100)
	deg := (v-minutes)/100 + minutes/60
	if hemisphere == "S" || hemisphere == "W" {
		deg = -deg
	}
	return deg, nil
}

func parseDateTime(date, clock string, order DateOrder) (time.Time, bool) {
	md := datePattern.FindStringSubmatch(date)
	mt := timePattern.FindStringSubmatch(clock)
	if md == nil || mt == nil {
		return time.Time{}, false
	}

	a, b, c := atoi(md[1]), atoi(md[2]), atoi(md[3])
	year, month, day := a, b, c
	if order == DateDDMMYY {
		year, month, day = c, b, a
	}
	hour, minute, second := atoi(mt[1]), atoi(mt[2]), atoi(mt[3])

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 60 {
		return time.Time{}, false
	}

	// 小数部分按十进制小数处理, 截断到纳秒
	var nanos int
	if frac := mt[4]; frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		nanos = atoi(frac + strings.Repeat("0", 9-len(frac)))
	}

	ts := time.Date(2000+year, time.Month(month), day, hour, minute, second, nanos, time.UTC)
	if ts.Day() != day {
		return time.Time{}, false // 例如 2 月 30 日
	}
	return ts, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
