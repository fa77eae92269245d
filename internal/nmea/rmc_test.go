package nmea

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

// sentence 给语句体加上正确的校验和
func sentence(body string) string {
	return fmt.Sprintf("$%s*%02X", body, Checksum(body))
}

func TestDecodeFullSentence(t *testing.T) {
	s := sentence("GPRMC,081559.50,A,4807.038,N,01131.000,E,022.4,084.4,220131,003.1,W,A")

	fix, err := Decode(s, Options{VerifyChecksum: true})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if fix.Talker != "GPRMC" || !fix.Valid || fix.Mode != "A" {
		t.Errorf("unexpected header fields: %+v", fix)
	}
	want := time.Date(2022, 1, 31, 8, 15, 59, 500000000, time.UTC)
	if !fix.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, fix.Timestamp)
	}
	if math.Abs(fix.Lat()-(48+7.038/60)) > 1e-9 {
		t.Errorf("Expected lat %v, got %v", 48+7.038/60, fix.Lat())
	}
	if math.Abs(fix.Lon()-(11+31.0/60)) > 1e-9 {
		t.Errorf("Expected lon %v, got %v", 11+31.0/60, fix.Lon())
	}
	if math.Abs(fix.Speed()-22.4*1.852) > 1e-9 {
		t.Errorf("Expected speed %v km/h, got %v", 22.4*1.852, fix.Speed())
	}
	if math.Abs(fix.Heading()-84.4) > 1e-9 {
		t.Errorf("Expected heading 84.4, got %v", fix.Heading())
	}
	if fix.Sentence != s {
		t.Errorf("raw sentence not kept")
	}
}

func TestDecodeHemispheres(t *testing.T) {
	s := sentence("GNRMC,120000,A,3352.000,S,15112.000,W,0.0,0.0,220131,,,A")

	fix, err := Decode(s, Options{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if fix.Talker != "GNRMC" {
		t.Errorf("Expected GNRMC, got %s", fix.Talker)
	}
	if fix.Lat() >= 0 || fix.Lon() >= 0 {
		t.Errorf("south/west must be negative: %v %v", fix.Lat(), fix.Lon())
	}
	if math.Abs(fix.Lat()+(33+52.0/60)) > 1e-9 {
		t.Errorf("Expected lat %v, got %v", -(33 + 52.0/60), fix.Lat())
	}
	// 零速度零航向是合法值
	if !fix.HasTrack || fix.Speed() != 0 {
		t.Errorf("zero track must be present")
	}
}

func TestDecodeMissingFields(t *testing.T) {
	s := sentence("GPRMC,,V,,,,,,,,,,N")

	fix, err := Decode(s, Options{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if fix.Valid {
		t.Error("V must decode as not valid")
	}
	if fix.HasTimestamp() || fix.HasCoord || fix.HasTrack {
		t.Errorf("empty fields must stay absent: %+v", fix)
	}
}

func TestDecodeNoMatch(t *testing.T) {
	for _, s := range []string{
		"",
		"garbage",
		"$GPGGA,081559,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,081559,X,4807.038,N,01131.000,E,022.4,084.4,220131,003.1,W,A*00",
	} {
		if _, err := Decode(s, Options{}); !errors.Is(err, ErrNoMatch) {
			t.Errorf("Decode(%q) error = %v, want ErrNoMatch", s, err)
		}
	}
}

func TestDecodeChecksum(t *testing.T) {
	bad := "$GPRMC,081559.50,A,4807.038,N,01131.000,E,022.4,084.4,220131,003.1,W,A*00"

	// 默认不校验
	if _, err := Decode(bad, Options{}); err != nil {
		t.Fatalf("permissive decode failed: %v", err)
	}
	if _, err := Decode(bad, Options{VerifyChecksum: true}); !errors.Is(err, ErrChecksum) {
		t.Fatalf("Expected ErrChecksum, got %v", err)
	}
}

func TestDateOrder(t *testing.T) {
	body := "GPRMC,000000,A,4807.038,N,01131.000,E,0,0,310122,,,A"

	fix, err := Decode(sentence(body), Options{DateOrder: DateDDMMYY})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := time.Date(2022, 1, 31, 0, 0, 0, 0, time.UTC)
	if !fix.Timestamp.Equal(want) {
		t.Errorf("Expected %v, got %v", want, fix.Timestamp)
	}

	// 作为 YYMMDD 解读时月份 01 日 22，年 2031
	fix, _ = Decode(sentence(body), Options{})
	if fix.Timestamp.Year() != 2031 || fix.Timestamp.Day() != 22 {
		t.Errorf("Expected 2031-01-22, got %v", fix.Timestamp)
	}

	if _, err := ParseDateOrder("mmddyy"); err == nil {
		t.Error("expected error for unknown date order")
	}
}

func TestInvalidDateLeavesTimestampAbsent(t *testing.T) {
	fix, err := Decode(sentence("GPRMC,081559,A,4807.038,N,01131.000,E,0,0,221399,,,A"), Options{})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if fix.HasTimestamp() {
		t.Errorf("month 13 must not produce a timestamp, got %v", fix.Timestamp)
	}
	if !fix.HasCoord {
		t.Error("coord should still decode")
	}
}

func TestMalformedNumber(t *testing.T) {
	_, err := Decode(sentence("GPRMC,081559,A,48.07.038,N,01131.000,E,0,0,220131,,,A"), Options{})
	if !errors.Is(err, ErrMalformedField) {
		t.Fatalf("Expected ErrMalformedField, got %v", err)
	}
}
