package camera

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestImage(t *testing.T, path string, width, height int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("写入测试图片失败: %v", err)
	}
}

func TestFileProviderTwoDevices(t *testing.T) {
	root := t.TempDir()
	writeTestImage(t, filepath.Join(root, "back", "b1.png"), 640, 480)
	writeTestImage(t, filepath.Join(root, "back", "b2.png"), 640, 480)
	writeTestImage(t, filepath.Join(root, "front", "f1.png"), 320, 240)

	provider := NewFileProvider(root)
	devices, err := provider.Devices(context.Background())
	if err != nil {
		t.Fatalf("枚举设备失败: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("front/back目录应报告2个设备, 实际: %d", len(devices))
	}

	stream, err := provider.Open(context.Background(), StreamConstraints{Facing: FacingFront})
	if err != nil {
		t.Fatalf("打开前置相机失败: %v", err)
	}
	defer stream.Stop()

	// 原生分辨率取首帧图片自身的尺寸
	w, h := stream.Resolution()
	if w != 320 || h != 240 {
		t.Errorf("前置分辨率应为320x240, 实际: %dx%d", w, h)
	}
	frame, err := stream.Frame(context.Background())
	if err != nil {
		t.Fatalf("读取帧失败: %v", err)
	}
	if frame.Bounds().Dx() != 320 {
		t.Errorf("帧宽度应为320, 实际: %d", frame.Bounds().Dx())
	}
}

func TestFileProviderSingleDevice(t *testing.T) {
	root := t.TempDir()
	writeTestImage(t, filepath.Join(root, "only.png"), 640, 480)

	provider := NewFileProvider(root)
	devices, err := provider.Devices(context.Background())
	if err != nil {
		t.Fatalf("枚举设备失败: %v", err)
	}
	if len(devices) != 1 || devices[0].Facing != FacingBack {
		t.Fatalf("根目录图片应报告单个后置设备, 实际: %+v", devices)
	}

	// 后置请求落到根目录图片
	if _, err := provider.Open(context.Background(), StreamConstraints{Facing: FacingBack}); err != nil {
		t.Fatalf("打开后置相机失败: %v", err)
	}
	// 前置请求没有可用图片
	if _, err := provider.Open(context.Background(), StreamConstraints{Facing: FacingFront}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("缺少前置图片应返回ErrDeviceNotFound, 实际: %v", err)
	}
}

func TestFileProviderEmptyDir(t *testing.T) {
	provider := NewFileProvider(t.TempDir())
	if _, err := provider.Devices(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("空目录应返回ErrDeviceNotFound, 实际: %v", err)
	}
}

func TestFileStreamCyclesAndStops(t *testing.T) {
	root := t.TempDir()
	writeTestImage(t, filepath.Join(root, "a.png"), 100, 100)
	writeTestImage(t, filepath.Join(root, "b.png"), 100, 100)

	provider := NewFileProvider(root)
	stream, err := provider.Open(context.Background(), StreamConstraints{Facing: FacingBack})
	if err != nil {
		t.Fatalf("打开失败: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := stream.Frame(context.Background()); err != nil {
			t.Fatalf("第%d帧读取失败: %v", i+1, err)
		}
	}

	stream.Stop()
	stream.Stop() // 幂等
	if _, err := stream.Frame(context.Background()); err == nil {
		t.Error("停止后读帧应返回错误")
	}
}
