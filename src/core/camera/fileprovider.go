package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器
)

// FileProvider simulates the platform camera from a directory of stills, so
// the service and tests can run without camera hardware. A root containing
// front/ and back/ subdirectories reports two devices; otherwise images in
// the root itself act as a single back camera.
type FileProvider struct {
	root string
}

func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

// Devices enumerates the simulated video input devices.
func (p *FileProvider) Devices(ctx context.Context) ([]DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, facing := range []Facing{FacingBack, FacingFront} {
		if len(listImages(filepath.Join(p.root, string(facing)))) > 0 {
			devices = append(devices, DeviceInfo{
				ID:     "file-" + string(facing),
				Label:  fmt.Sprintf("模拟%s相机", facing),
				Facing: facing,
			})
		}
	}
	if len(devices) == 0 && len(listImages(p.root)) > 0 {
		devices = append(devices, DeviceInfo{ID: "file-back", Label: "模拟相机", Facing: FacingBack})
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: 目录 %s 中没有图片", ErrDeviceNotFound, p.root)
	}
	return devices, nil
}

// Open builds a stream that cycles through the images of the facing's
// directory. The stream's native resolution is the first image's own size;
// the constraints' ideal values are only an upper bound request.
func (p *FileProvider) Open(ctx context.Context, constraints StreamConstraints) (MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(p.root, string(constraints.Facing))
	paths := listImages(dir)
	if len(paths) == 0 && constraints.Facing == FacingBack {
		paths = listImages(p.root)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: 朝向 %s 没有可用图片", ErrDeviceNotFound, constraints.Facing)
	}

	first, err := decodeImageFile(paths[0])
	if err != nil {
		return nil, fmt.Errorf("读取首帧失败: %w", err)
	}
	bounds := first.Bounds()

	return &fileStream{
		paths:  paths,
		first:  first,
		width:  bounds.Dx(),
		height: bounds.Dy(),
	}, nil
}

// fileStream cycles through still images as preview frames.
type fileStream struct {
	paths   []string
	first   image.Image
	width   int
	height  int
	mu      sync.Mutex
	idx     int
	stopped atomic.Bool
}

func (s *fileStream) Frame(ctx context.Context) (image.Image, error) {
	if s.stopped.Load() {
		return nil, fmt.Errorf("媒体流已停止")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	path := s.paths[s.idx%len(s.paths)]
	s.idx++
	s.mu.Unlock()

	if path == s.paths[0] && s.first != nil {
		return s.first, nil
	}
	return decodeImageFile(path)
}

func (s *fileStream) Resolution() (int, int) {
	return s.width, s.height
}

func (s *fileStream) Stop() {
	s.stopped.Store(true)
}

// listImages returns the sorted image paths directly inside dir.
func listImages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("解码图片 %s 失败: %w", filepath.Base(path), err)
	}
	return img, nil
}
