package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"dashcam-geotag/internal/models"
)

// ffmpeg 风格的编号占位符 %05d
var placeholder = regexp.MustCompile(`%(\d+)d`)

// ToGlob ffmpeg 文件名模式转为 glob
//
//	tmp/img%05d.jpg -> tmp/img?????.jpg
func ToGlob(pattern string) string {
	return placeholder.ReplaceAllStringFunc(pattern, func(m string) string {
		n, _ := strconv.Atoi(placeholder.FindStringSubmatch(m)[1])
		return strings.Repeat("?", n)
	})
}

// ToRegex ffmpeg 文件名模式转为正则，捕获帧号
//
//	tmp/img%05d.jpg -> ^tmp/img(\d{5})\.jpg$
func ToRegex(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		n, _ := strconv.Atoi(pattern[loc[2]:loc[3]])
		fmt.Fprintf(&b, `(\d{%d})`, n)
		last = loc[1]
	}
	if last == 0 {
		return nil, fmt.Errorf("pattern %q has no %%0Nd placeholder", pattern)
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// FindImages 列出属于第 source 个视频的图片帧
//
// 帧号 = 文件名中的编号 + frameOffset，结果按文件名排序。
func FindImages(pattern string, source, frameOffset int) ([]models.ImageFrame, error) {
	re, err := ToRegex(pattern)
	if err != nil {
		return nil, err
	}
	filenames, err := filepath.Glob(ToGlob(pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(filenames)

	images := make([]models.ImageFrame, 0, len(filenames))
	for _, name := range filenames {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		images = append(images, models.ImageFrame{
			Source:   source,
			Frame:    n + frameOffset,
			Filename: name,
		})
	}
	return images, nil
}
