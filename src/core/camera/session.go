package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"harvest-capture-go/src/configs"
	"harvest-capture-go/src/core/utils"
)

// Session owns the device media stream and mediates all access to it.
//
// Lifecycle: idle → initializing → active → capturing → active, with error
// re-enterable via another Open. Open/SwitchFacing are serialized by an
// internal pending-operation guard so rapid switch taps can never produce two
// live streams. Close is idempotent and callable from any state, including
// mid-initializing: a stream that finishes negotiating after Close is stopped
// and discarded.
type Session struct {
	provider MediaProvider
	config   configs.CameraConfig
	logger   *utils.TaggedLogger

	// opMu serializes Open/SwitchFacing. Close deliberately does not take it
	// so teardown can interleave with an in-flight open.
	opMu sync.Mutex

	mu                 sync.Mutex
	facing             Facing
	status             Status
	stream             MediaStream
	hasMultipleDevices bool
	lastErr            *AcquireError
	closed             bool
}

// NewSession creates an idle capture session backed by the given provider.
func NewSession(provider MediaProvider, config configs.CameraConfig, logger *utils.Logger) *Session {
	return &Session{
		provider: provider,
		config:   config,
		logger:   logger.WithTag("camera"),
		facing:   ParseFacing(config.DefaultFacing),
		status:   StatusIdle,
	}
}

// Open acquires a stream for the given facing. Any previously held stream is
// stopped and released before the new one is requested; overlapping stream
// ownership would exhaust device locks on some platforms.
func (s *Session) Open(ctx context.Context, facing Facing) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.open(ctx, facing)
}

// open runs one acquisition attempt. Callers must hold opMu.
func (s *Session) open(ctx context.Context, facing Facing) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	s.status = StatusInitializing
	s.lastErr = nil
	s.facing = facing
	s.mu.Unlock()

	s.logger.Info(fmt.Sprintf("开始打开相机, 朝向: %s", facing))

	// 每次打开时枚举一次设备，不做轮询
	devices, err := s.provider.Devices(ctx)
	if err != nil {
		return s.failAcquire(err)
	}

	stream, err := s.provider.Open(ctx, StreamConstraints{
		Facing:       facing,
		IdealWidth:   s.config.IdealWidth,
		IdealHeight:  s.config.IdealHeight,
		MaxFrameRate: s.config.MaxFrameRate,
	})
	if err != nil {
		return s.failAcquire(err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		// UI已关闭，立即释放迟到的流
		stream.Stop()
		s.logger.Info("会话已关闭，丢弃迟到的媒体流")
		return ErrSessionClosed
	}
	s.stream = stream
	s.hasMultipleDevices = len(devices) >= 2
	s.status = StatusActive
	s.mu.Unlock()

	w, h := stream.Resolution()
	s.logger.Info("相机打开成功", map[string]interface{}{
		"facing":       string(facing),
		"width":        w,
		"height":       h,
		"device_count": len(devices),
	})
	return nil
}

// failAcquire records a classified acquisition failure and enters the error
// state, unless the session was closed while the open was in flight.
func (s *Session) failAcquire(err error) error {
	acquire := classifyAcquireError(err)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.status = StatusError
	s.lastErr = acquire
	s.mu.Unlock()

	s.logger.Warn("相机打开失败", map[string]interface{}{
		"reason": string(acquire.Reason),
		"error":  acquire.Err.Error(),
	})
	return acquire
}

// SwitchFacing toggles front/back and re-runs the open. No-op when the last
// enumeration reported fewer than two video input devices. The target is
// computed under the pending-operation guard, so each of two rapid switch
// taps observes the facing the previous one produced.
func (s *Session) SwitchFacing(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.hasMultipleDevices {
		s.mu.Unlock()
		s.logger.Debug("设备只有一个摄像头，忽略切换请求")
		return nil
	}
	target := s.facing.Toggle()
	s.mu.Unlock()

	return s.open(ctx, target)
}

// Close stops all tracks of the held stream and clears the handle. Idempotent
// and safe from a teardown path regardless of current state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stream := s.stream
	s.stream = nil
	s.status = StatusIdle
	s.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	s.logger.Info("相机会话已关闭")
}

// PreviewFrame returns the current preview frame for the live preview surface.
func (s *Session) PreviewFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	stream := s.stream
	status := s.status
	s.mu.Unlock()

	if stream == nil || (status != StatusActive && status != StatusCapturing) {
		return nil, ErrSessionNotActive
	}
	return stream.Frame(ctx)
}

// Status reports the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Facing reports which camera the session currently targets.
func (s *Session) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// HasMultipleDevices reports whether the last enumeration saw two or more
// video input devices.
func (s *Session) HasMultipleDevices() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMultipleDevices
}

// Closed reports whether Close has run. A closed session never becomes
// usable again; callers construct a replacement session instead.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastError returns the classified reason of the last acquisition failure,
// or nil.
func (s *Session) LastError() *AcquireError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
