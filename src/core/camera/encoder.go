package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"

	"harvest-capture-go/src/core/imaging"
)

// Capture converts the current live preview frame into a still artifact.
//
// Requires an active session; rejects while capturing or on an error/idle
// session. The frame is rendered onto an offscreen raster sized to the
// native video resolution, so on-screen preview scaling never affects the
// captured size. Encoded at maximum quality: the still image is the
// compression stage's input, not the final artifact.
func (s *Session) Capture(ctx context.Context) (*imaging.ImageArtifact, error) {
	s.mu.Lock()
	switch s.status {
	case StatusCapturing:
		s.mu.Unlock()
		return nil, ErrCaptureInProgress
	case StatusActive:
		// 继续采集
	default:
		s.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	s.status = StatusCapturing
	stream := s.stream
	s.mu.Unlock()

	artifact, err := encodeFrame(ctx, stream)

	s.mu.Lock()
	closed := s.closed
	// 编码失败时会话保持active，相机本身仍然可用
	if !closed && s.status == StatusCapturing {
		s.status = StatusActive
	}
	s.mu.Unlock()

	if closed {
		// UI已关闭，采集结果直接丢弃
		return nil, ErrSessionClosed
	}
	if err != nil {
		s.logger.Warn(fmt.Sprintf("帧编码失败: %v", err))
		return nil, &CaptureError{Err: err}
	}

	s.logger.Info("帧采集成功", map[string]interface{}{
		"filename": artifact.OriginalFilename,
		"width":    artifact.Width,
		"height":   artifact.Height,
		"size":     artifact.SizeBytes,
	})
	return artifact, nil
}

// encodeFrame grabs the current frame and encodes it as a max-quality JPEG
// with a timestamped filename for unique identification.
func encodeFrame(ctx context.Context, stream MediaStream) (*imaging.ImageArtifact, error) {
	frame, err := stream.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取当前帧失败: %w", err)
	}

	// 按原生分辨率绘制到离屏画布
	nativeW, nativeH := stream.Resolution()
	if nativeW <= 0 || nativeH <= 0 {
		bounds := frame.Bounds()
		nativeW, nativeH = bounds.Dx(), bounds.Dy()
	}
	canvas := image.NewRGBA(image.Rect(0, 0, nativeW, nativeH))
	draw.Draw(canvas, canvas.Bounds(), frame, frame.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 100}); err != nil {
		return nil, fmt.Errorf("JPEG编码失败: %w", err)
	}

	now := time.Now()
	filename := fmt.Sprintf("capture_%s_%03d.jpg", now.Format("20060102_150405"), now.Nanosecond()/1e6)

	return &imaging.ImageArtifact{
		Data:             buf.Bytes(),
		MimeType:         "image/jpeg",
		OriginalFilename: filename,
		SizeBytes:        int64(buf.Len()),
		Width:            nativeW,
		Height:           nativeH,
	}, nil
}
