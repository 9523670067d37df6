package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"testing"

	"harvest-capture-go/src/configs"
	"harvest-capture-go/src/core/imaging"
	"harvest-capture-go/src/core/utils"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	cfg := &configs.Config{}
	cfg.Log.LogDir = t.TempDir()
	cfg.Log.LogFile = "test.log"
	cfg.Log.LogLevel = "error"
	logger, err := utils.NewLogger(cfg)
	if err != nil {
		t.Fatalf("创建测试日志器失败: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

// fakeTransport records what it received and fails the configured filenames.
type fakeTransport struct {
	failFilenames map[string]bool
	uploadErr     error
	received      []*imaging.ImageArtifact
	parentID      string
	calls         int
}

func (f *fakeTransport) Upload(ctx context.Context, parentID string, artifacts []*imaging.ImageArtifact) ([]UploadOutcome, error) {
	f.calls++
	f.parentID = parentID
	f.received = artifacts
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}

	outcomes := make([]UploadOutcome, 0, len(artifacts))
	for _, artifact := range artifacts {
		outcome := UploadOutcome{Filename: artifact.OriginalFilename, Success: true}
		if f.failFilenames[artifact.OriginalFilename] {
			outcome.Success = false
			outcome.ErrorReason = "server returned 500"
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func testArtifact(t *testing.T, filename string) *imaging.ImageArtifact {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48)), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("构造测试图片失败: %v", err)
	}
	return &imaging.ImageArtifact{
		Data:             buf.Bytes(),
		MimeType:         "image/jpeg",
		OriginalFilename: filename,
		SizeBytes:        int64(buf.Len()),
		Width:            64,
		Height:           48,
	}
}

func testArtifacts(t *testing.T, count int) []*imaging.ImageArtifact {
	t.Helper()
	artifacts := make([]*imaging.ImageArtifact, count)
	for i := range artifacts {
		artifacts[i] = testArtifact(t, fmt.Sprintf("photo_%d.jpg", i+1))
	}
	return artifacts
}

func newTestOrchestrator(t *testing.T, uploadCfg *configs.UploadConfig, transport Transport) *Orchestrator {
	t.Helper()
	logger := newTestLogger(t)
	full := &configs.Config{}
	full.ApplyDefaults()
	compressor := imaging.NewCompressor(&full.Compression, logger)
	return NewOrchestrator(uploadCfg, compressor, transport, logger)
}

func defaultUploadConfig() *configs.UploadConfig {
	return &configs.UploadConfig{
		MaxBatchSize:   5,
		OverflowPolicy: PolicyReject,
	}
}

func TestSubmitPartialFailure(t *testing.T) {
	transport := &fakeTransport{failFilenames: map[string]bool{"photo_3.jpg": true}}
	orchestrator := newTestOrchestrator(t, defaultUploadConfig(), transport)

	batch, err := orchestrator.Submit(context.Background(), "record-42", testArtifacts(t, 5))
	if err != nil {
		t.Fatalf("部分失败不应返回错误: %v", err)
	}

	// 部分失败不是整体失败：4成功 + 1失败
	if batch.TotalSucceeded != 4 {
		t.Errorf("成功数应为4, 实际: %d", batch.TotalSucceeded)
	}
	if batch.TotalFailed != 1 {
		t.Errorf("失败数应为1, 实际: %d", batch.TotalFailed)
	}
	if len(batch.FailedArtifacts) != 1 || batch.FailedArtifacts[0].Filename != "photo_3.jpg" {
		t.Errorf("失败记录应指向photo_3.jpg, 实际: %+v", batch.FailedArtifacts)
	}
	if batch.FailedArtifacts[0].ErrorReason == "" {
		t.Error("失败记录应携带原因")
	}

	// 成功列表保持提交顺序
	expected := []string{"photo_1.jpg", "photo_2.jpg", "photo_4.jpg", "photo_5.jpg"}
	for i, artifact := range batch.UploadedArtifacts {
		if artifact.OriginalFilename != expected[i] {
			t.Errorf("第%d个成功文件应为%s, 实际: %s", i, expected[i], artifact.OriginalFilename)
		}
	}

	// 每个输入恰好出现在两个列表之一
	if batch.TotalSucceeded+batch.TotalFailed != 5 {
		t.Errorf("成功+失败应等于输入数5, 实际: %d", batch.TotalSucceeded+batch.TotalFailed)
	}
	if transport.parentID != "record-42" {
		t.Errorf("parent id传递错误: %s", transport.parentID)
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	transport := &fakeTransport{uploadErr: errors.New("connection refused")}
	orchestrator := newTestOrchestrator(t, defaultUploadConfig(), transport)

	batch, err := orchestrator.Submit(context.Background(), "record-7", testArtifacts(t, 3))
	if err != nil {
		t.Fatalf("传输失败应折叠进结果: %v", err)
	}

	// 记录已创建，所有文件按失败逐个上报
	if batch.TotalSucceeded != 0 {
		t.Errorf("成功数应为0, 实际: %d", batch.TotalSucceeded)
	}
	if batch.TotalFailed != 3 {
		t.Errorf("失败数应为3, 实际: %d", batch.TotalFailed)
	}
	for _, failed := range batch.FailedArtifacts {
		if failed.ErrorReason == "" {
			t.Errorf("失败记录%s应携带原因", failed.Filename)
		}
	}
}

func TestSubmitRequiresParentID(t *testing.T) {
	transport := &fakeTransport{}
	orchestrator := newTestOrchestrator(t, defaultUploadConfig(), transport)

	if _, err := orchestrator.Submit(context.Background(), "", testArtifacts(t, 1)); err == nil {
		t.Fatal("缺少parent id应返回错误")
	}
	if transport.calls != 0 {
		t.Error("校验失败时不应触发上传")
	}
}

func TestSubmitOverflowReject(t *testing.T) {
	transport := &fakeTransport{}
	orchestrator := newTestOrchestrator(t, defaultUploadConfig(), transport)

	_, err := orchestrator.Submit(context.Background(), "record-1", testArtifacts(t, 6))
	var tooLarge *BatchTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("超限应返回BatchTooLargeError, 实际: %v", err)
	}
	if tooLarge.Size != 6 || tooLarge.Limit != 5 {
		t.Errorf("错误应记录6/5, 实际: %d/%d", tooLarge.Size, tooLarge.Limit)
	}
	if transport.calls != 0 {
		t.Error("拒绝策略下不应触发上传")
	}
}

func TestSubmitOverflowTruncate(t *testing.T) {
	cfg := defaultUploadConfig()
	cfg.OverflowPolicy = PolicyTruncate
	transport := &fakeTransport{}
	orchestrator := newTestOrchestrator(t, cfg, transport)

	batch, err := orchestrator.Submit(context.Background(), "record-1", testArtifacts(t, 6))
	if err != nil {
		t.Fatalf("截断策略不应返回错误: %v", err)
	}

	// 保留前N个文件，丢弃其余
	if len(transport.received) != 5 {
		t.Fatalf("截断后应上传5个文件, 实际: %d", len(transport.received))
	}
	if transport.received[0].OriginalFilename != "photo_1.jpg" ||
		transport.received[4].OriginalFilename != "photo_5.jpg" {
		t.Error("截断应保留提交顺序的前5个文件")
	}
	if batch.TotalSucceeded != 5 {
		t.Errorf("成功数应为5, 实际: %d", batch.TotalSucceeded)
	}
}

func TestSubmitCorruptArtifactStillUploads(t *testing.T) {
	transport := &fakeTransport{}
	orchestrator := newTestOrchestrator(t, defaultUploadConfig(), transport)

	artifacts := []*imaging.ImageArtifact{
		testArtifact(t, "good.jpg"),
		{Data: []byte("corrupt"), OriginalFilename: "bad.jpg", SizeBytes: 7},
	}

	batch, err := orchestrator.Submit(context.Background(), "record-9", artifacts)
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}

	// 压缩失败回退为原图，文件依然被上传
	if batch.TotalSucceeded != 2 {
		t.Errorf("两个文件都应上传成功, 实际成功: %d", batch.TotalSucceeded)
	}
	if len(batch.CompressionStats) != 2 {
		t.Fatalf("压缩统计数量应为2, 实际: %d", len(batch.CompressionStats))
	}
	if batch.CompressionStats[1].Success {
		t.Error("损坏文件的压缩统计应标记回退")
	}
	if transport.received[1].OriginalFilename != "bad.jpg" {
		t.Error("回退文件应以原图上传")
	}
}
