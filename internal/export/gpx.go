// Package export 把定位点写成 GPX 轨迹或原始 RMC 语句
package export

import (
	"encoding/xml"
	"fmt"
	"io"

	"dashcam-geotag/internal/models"
)

const (
	gpxNamespace = "http://www.topografix.com/GPX/1/1"
	gpxCreator   = "dashcam-geotag"
	gpxTime      = "2006-01-02T15:04:05.000000Z"
)

// Point GPX 轨迹点
type Point struct {
	Lat  string `xml:"lat,attr"`
	Lon  string `xml:"lon,attr"`
	Time string `xml:"time"`
}

// TrackSegment 轨迹段
type TrackSegment struct {
	Points []Point `xml:"trkpt"`
}

// Track 轨迹
type Track struct {
	Segments []TrackSegment `xml:"trkseg"`
}

// GPX 文件结构
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	XMLNS   string   `xml:"xmlns,attr"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Tracks  []Track  `xml:"trk"`
}

// NewGPX 一条轨迹一个段，只包含有时间和位置的定位点
func NewGPX(fixes []models.FixAtom) *GPX {
	var seg TrackSegment
	for i := range fixes {
		f := &fixes[i]
		if !f.HasTimestamp() || !f.HasCoord {
			continue
		}
		seg.Points = append(seg.Points, Point{
			Lat:  fmt.Sprintf("%.6f", f.Lat()),
			Lon:  fmt.Sprintf("%.6f", f.Lon()),
			Time: f.Timestamp.UTC().Format(gpxTime),
		})
	}
	return &GPX{
		XMLNS:   gpxNamespace,
		Version: "1.1",
		Creator: gpxCreator,
		Tracks:  []Track{{Segments: []TrackSegment{seg}}},
	}
}

// WriteToWriter 写入 XML 头和缩进的 GPX
func (g *GPX) WriteToWriter(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(g); err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteGPX 把定位点写成 GPX
func WriteGPX(w io.Writer, fixes []models.FixAtom) error {
	return NewGPX(fixes).WriteToWriter(w)
}

// WriteRMC 每行一条原始语句
func WriteRMC(w io.Writer, fixes []models.FixAtom) error {
	for i := range fixes {
		if fixes[i].Sentence == "" {
			continue
		}
		if _, err := fmt.Fprintln(w, fixes[i].Sentence); err != nil {
			return err
		}
	}
	return nil
}
