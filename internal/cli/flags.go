// Package cli 命令行工具共用的 flag 类型和输出文件
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// StringList 可重复的字符串参数 (-i a.mp4 -i b.mp4)
type StringList []string

func (l *StringList) String() string { return strings.Join(*l, ",") }

func (l *StringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// Count 可重复的开关参数，记录出现次数 (-v -v)
type Count int

func (c *Count) String() string { return strconv.Itoa(int(*c)) }

func (c *Count) Set(v string) error {
	if v == "" || v == "true" {
		*c++
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid count %q", v)
	}
	*c = Count(n)
	return nil
}

func (c *Count) IsBoolFlag() bool { return true }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Create 打开输出文件, "-" 表示标准输出
func Create(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

// Open 打开输入文件, "-" 表示标准输入
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// WriteFile 打开 path，调用 write 后关闭; path 为空时什么也不做
func WriteFile(path string, write func(w io.Writer) error) error {
	if path == "" {
		return nil
	}
	f, err := Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
