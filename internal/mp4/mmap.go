package mp4

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MappedFile 只读 mmap 映射的视频文件
type MappedFile struct {
	Path string
	data []byte
}

// MapFile 使用 mmap 映射整个文件 (零拷贝)
func MapFile(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("%s: file too large to map (%d bytes)", path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedFile{Path: path, data: data}, nil
}

// Bytes 映射的内容，Close 之后不能再使用
func (m *MappedFile) Bytes() []byte {
	return m.data
}

// Close 释放 mmap 映射
func (m *MappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// ParseFile 映射文件、遍历原子并立即释放映射
// 结果中的字符串都已拷贝，不引用映射内存
func ParseFile(path string, opts Options) (*Result, error) {
	m, err := MapFile(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	res, err := Parse(m.Bytes(), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// FileHash 文件的唯一标识: 绝对路径 + 大小 + 修改时间的 md5
func FileHash(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	identifier := fmt.Sprintf("%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano())
	hash := md5.Sum([]byte(identifier))
	return hex.EncodeToString(hash[:]), nil
}
