package export

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"dashcam-geotag/internal/models"
)

func sampleFixes() []models.FixAtom {
	fixes := make([]models.FixAtom, 3)
	for i := range fixes {
		fixes[i].Timestamp = time.Date(2022, 1, 31, 8, 0, i, 250000000, time.UTC)
		fixes[i].SetCoord(48.1234567, -11.5)
		fixes[i].Sentence = "$GPRMC,sentence" + string(rune('0'+i))
	}
	fixes[1].HasCoord = false
	return fixes
}

func TestWriteGPX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGPX(&buf, sampleFixes()); err != nil {
		t.Fatalf("WriteGPX failed: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, xml.Header) {
		t.Error("missing XML header")
	}
	for _, want := range []string{
		`xmlns="http://www.topografix.com/GPX/1/1"`,
		`version="1.1"`,
		`<trkpt lat="48.123457" lon="-11.500000">`,
		`<time>2022-01-31T08:00:00.250000Z</time>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s\n%s", want, out)
		}
	}

	var parsed GPX
	if err := xml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid XML: %v", err)
	}
	if n := len(parsed.Tracks[0].Segments[0].Points); n != 2 {
		t.Errorf("Expected 2 points (one fix has no position), got %d", n)
	}
}

func TestWriteRMC(t *testing.T) {
	fixes := sampleFixes()
	fixes[2].Sentence = ""

	var buf bytes.Buffer
	if err := WriteRMC(&buf, fixes); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "$GPRMC,sentence0\n$GPRMC,sentence1\n" {
		t.Errorf("unexpected dump %q", got)
	}
}
