package camera

import (
	"context"
	"errors"
	"image"
	"regexp"
	"testing"
	"time"
)

func openActiveSession(t *testing.T, provider *fakeProvider) *Session {
	t.Helper()
	session := NewSession(provider, testCameraConfig(), newTestLogger(t))
	if err := session.Open(context.Background(), FacingBack); err != nil {
		t.Fatalf("打开相机失败: %v", err)
	}
	return session
}

func TestCapture(t *testing.T) {
	provider := &fakeProvider{devices: twoDevices()}
	session := openActiveSession(t, provider)

	// 预览帧按屏幕尺寸缩放，采集必须按原生分辨率渲染
	stream := provider.openedStreams()[0]
	stream.frame = image.NewRGBA(image.Rect(0, 0, 320, 240))

	artifact, err := session.Capture(context.Background())
	if err != nil {
		t.Fatalf("采集失败: %v", err)
	}

	// 采集尺寸取流的原生分辨率，不受预览缩放影响
	if artifact.Width != 2560 || artifact.Height != 1920 {
		t.Errorf("采集尺寸应为2560x1920, 实际: %dx%d", artifact.Width, artifact.Height)
	}
	if artifact.MimeType != "image/jpeg" {
		t.Errorf("MIME类型应为image/jpeg, 实际: %s", artifact.MimeType)
	}
	if len(artifact.Data) == 0 {
		t.Fatal("采集产物不应为空")
	}
	if artifact.SizeBytes != int64(len(artifact.Data)) {
		t.Errorf("SizeBytes(%d)应等于数据长度(%d)", artifact.SizeBytes, len(artifact.Data))
	}
	if artifact.Data[0] != 0xFF || artifact.Data[1] != 0xD8 {
		t.Error("产物字节应以JPEG魔数开头")
	}

	pattern := regexp.MustCompile(`^capture_\d{8}_\d{6}_\d{3}\.jpg$`)
	if !pattern.MatchString(artifact.OriginalFilename) {
		t.Errorf("文件名格式不符: %s", artifact.OriginalFilename)
	}

	if session.Status() != StatusActive {
		t.Errorf("采集完成后状态应回到active, 实际: %s", session.Status())
	}
}

func TestCaptureRequiresActiveSession(t *testing.T) {
	provider := &fakeProvider{devices: twoDevices()}
	session := NewSession(provider, testCameraConfig(), newTestLogger(t))

	if _, err := session.Capture(context.Background()); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("idle状态采集应返回ErrSessionNotActive, 实际: %v", err)
	}

	if err := session.Open(context.Background(), FacingBack); err != nil {
		t.Fatalf("打开相机失败: %v", err)
	}
	session.Close()
	if _, err := session.Capture(context.Background()); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("关闭后采集应返回ErrSessionNotActive, 实际: %v", err)
	}
}

func TestCaptureFrameErrorKeepsSessionActive(t *testing.T) {
	provider := &fakeProvider{devices: twoDevices()}
	session := openActiveSession(t, provider)

	stream := provider.openedStreams()[0]
	stream.frameErr = errors.New("sensor read failed")

	_, err := session.Capture(context.Background())
	var capture *CaptureError
	if !errors.As(err, &capture) {
		t.Fatalf("错误类型应为CaptureError, 实际: %v", err)
	}

	// 编码失败可重试，相机本身仍然可用
	if session.Status() != StatusActive {
		t.Fatalf("编码失败后状态应保持active, 实际: %s", session.Status())
	}
	stream.frameErr = nil
	if _, err := session.Capture(context.Background()); err != nil {
		t.Errorf("重试采集失败: %v", err)
	}
}

func TestCaptureRejectsOverlap(t *testing.T) {
	provider := &fakeProvider{devices: twoDevices()}
	session := openActiveSession(t, provider)

	gate := make(chan struct{})
	provider.openedStreams()[0].frameGate = gate

	done := make(chan error, 1)
	go func() {
		_, err := session.Capture(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for session.Status() != StatusCapturing {
		if time.Now().After(deadline) {
			t.Fatal("等待进入capturing状态超时")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := session.Capture(context.Background()); !errors.Is(err, ErrCaptureInProgress) {
		t.Errorf("并发采集应返回ErrCaptureInProgress, 实际: %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("首个采集失败: %v", err)
	}
}

func TestCaptureDiscardedAfterClose(t *testing.T) {
	provider := &fakeProvider{devices: twoDevices()}
	session := openActiveSession(t, provider)

	gate := make(chan struct{})
	provider.openedStreams()[0].frameGate = gate

	done := make(chan error, 1)
	go func() {
		_, err := session.Capture(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for session.Status() != StatusCapturing {
		if time.Now().After(deadline) {
			t.Fatal("等待进入capturing状态超时")
		}
		time.Sleep(time.Millisecond)
	}

	session.Close()
	close(gate)

	// UI已关闭，迟到的采集结果直接丢弃
	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Errorf("关闭后完成的采集应返回ErrSessionClosed, 实际: %v", err)
	}
}
