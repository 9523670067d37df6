package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"sync/atomic"

	"harvest-capture-go/src/configs"
	"harvest-capture-go/src/core/utils"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// Compressor 自适应图片压缩器
// 把任意来源的图片向目标大小/尺寸收敛；内部失败一律折叠为携带原图的
// 回退结果，绝不以异常形式抛给调用方
type Compressor struct {
	config    *configs.CompressionConfig
	validator *Validator
	logger    *utils.TaggedLogger
	metrics   *Metrics
}

// NewCompressor 创建新的压缩器
func NewCompressor(config *configs.CompressionConfig, logger *utils.Logger) *Compressor {
	return &Compressor{
		config:    config,
		validator: NewValidator(&config.Security, logger),
		logger:    logger.WithTag("imaging"),
		metrics:   &Metrics{},
	}
}

// Defaults 返回服务配置里的默认压缩目标，调用方可按场景覆盖
func (c *Compressor) Defaults() CompressionConfig {
	return CompressionConfig{
		MaxSizeMB:        c.config.MaxSizeMB,
		MaxWidthOrHeight: c.config.MaxWidthOrHeight,
		Quality:          c.config.Quality,
		ConvertToFormat:  c.config.ConvertToFormat,
	}
}

// Compress 压缩单个图片
// 原图已经满足目标时依然走一遍转码，保持行为简单一致；转码产物比原图更大
// 时返回原图，调用方拿到的字节数永远不大于原始大小
func (c *Compressor) Compress(ctx context.Context, artifact *ImageArtifact, cfg CompressionConfig) CompressionResult {
	atomic.AddInt64(&c.metrics.TotalProcessed, 1)

	compressed, err := c.transcode(ctx, artifact, cfg)
	if err != nil {
		atomic.AddInt64(&c.metrics.Fallbacks, 1)
		c.logger.Warn("压缩失败，回退到原图", map[string]interface{}{
			"filename": artifact.OriginalFilename,
			"error":    err.Error(),
		})
		return CompressionResult{
			Success:             false,
			Artifact:            artifact,
			OriginalSizeBytes:   artifact.SizeBytes,
			CompressedSizeBytes: artifact.SizeBytes,
			CompressionRatio:    "0.0%",
			ErrorReason:         err.Error(),
		}
	}

	if compressed.SizeBytes >= artifact.SizeBytes {
		// 压缩没有带来收益，保留原图
		return CompressionResult{
			Success:             true,
			Artifact:            artifact,
			OriginalSizeBytes:   artifact.SizeBytes,
			CompressedSizeBytes: artifact.SizeBytes,
			CompressionRatio:    "0.0%",
		}
	}

	result := CompressionResult{
		Success:             true,
		Artifact:            compressed,
		OriginalSizeBytes:   artifact.SizeBytes,
		CompressedSizeBytes: compressed.SizeBytes,
		CompressionRatio:    utils.FormatReduction(artifact.SizeBytes, compressed.SizeBytes),
	}

	c.logger.Debug("压缩完成", map[string]interface{}{
		"filename":        artifact.OriginalFilename,
		"original_size":   result.OriginalSizeBytes,
		"compressed_size": result.CompressedSizeBytes,
		"ratio":           result.CompressionRatio,
	})
	return result
}

// CompressBatch 批量压缩
// 每个文件独立处理，单个失败不影响其他文件；输出顺序与输入一致，
// 与并发完成顺序无关
func (c *Compressor) CompressBatch(ctx context.Context, artifacts []*ImageArtifact, cfg CompressionConfig) []CompressionResult {
	atomic.AddInt64(&c.metrics.BatchesProcessed, 1)

	results := make([]CompressionResult, len(artifacts))
	limit := c.config.MaxParallel
	if limit <= 0 {
		limit = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, artifact := range artifacts {
		i, artifact := i, artifact
		g.Go(func() error {
			results[i] = c.Compress(ctx, artifact, cfg)
			return nil
		})
	}
	// 错误已折叠进各自的结果，这里恒为nil
	_ = g.Wait()

	return results
}

// transcode 解码、缩放并重新编码
func (c *Compressor) transcode(ctx context.Context, artifact *ImageArtifact, cfg CompressionConfig) (*ImageArtifact, error) {
	validation := c.validator.Validate(artifact.Data)
	if !validation.IsValid {
		atomic.AddInt64(&c.metrics.ValidationRejects, 1)
		return nil, validation.Error
	}

	src, _, err := image.Decode(bytes.NewReader(artifact.Data))
	if err != nil {
		return nil, fmt.Errorf("图片解码失败: %v", err)
	}

	// 等比缩放，保证任一边都不超过上限
	img := src
	width, height := validation.Width, validation.Height
	if cfg.MaxWidthOrHeight > 0 && (width > cfg.MaxWidthOrHeight || height > cfg.MaxWidthOrHeight) {
		width, height = fitWithin(width, height, cfg.MaxWidthOrHeight)
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, src.Bounds(), xdraw.Over, nil)
		img = scaled
	}

	format := targetFormat(validation.Format, cfg.ConvertToFormat)
	data, err := c.encodeToTarget(ctx, img, format, cfg)
	if err != nil {
		return nil, err
	}

	return &ImageArtifact{
		Data:             data,
		MimeType:         MimeTypeFor(format),
		OriginalFilename: replaceExt(artifact.OriginalFilename, ExtensionFor(format)),
		SizeBytes:        int64(len(data)),
		Width:            width,
		Height:           height,
	}, nil
}

// encodeToTarget 按目标格式编码，必要时逐步下调质量逼近目标大小
// 尝试次数有限以保证终止，耗尽时返回尽力而为的结果
func (c *Compressor) encodeToTarget(ctx context.Context, img image.Image, format string, cfg CompressionConfig) ([]byte, error) {
	maxBytes := int64(cfg.MaxSizeMB * 1024 * 1024)
	quality := int(cfg.Quality * 100)
	if quality <= 0 {
		quality = 80
	}
	if quality > 100 {
		quality = 100
	}
	attempts := c.config.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}

	var data []byte
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		switch format {
		case "png":
			if err := png.Encode(&buf, img); err != nil {
				return nil, fmt.Errorf("PNG编码失败: %v", err)
			}
		default:
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("JPEG编码失败: %v", err)
			}
		}
		data = buf.Bytes()

		// PNG没有质量参数，不做迭代
		if maxBytes <= 0 || int64(len(data)) <= maxBytes || format == "png" {
			break
		}
		quality = quality * 7 / 10
		if quality < 10 {
			quality = 10
		}
	}
	return data, nil
}

// GetMetrics 获取处理统计信息
func (c *Compressor) GetMetrics() Metrics {
	return Metrics{
		TotalProcessed:    atomic.LoadInt64(&c.metrics.TotalProcessed),
		Fallbacks:         atomic.LoadInt64(&c.metrics.Fallbacks),
		ValidationRejects: atomic.LoadInt64(&c.metrics.ValidationRejects),
		BatchesProcessed:  atomic.LoadInt64(&c.metrics.BatchesProcessed),
	}
}

// targetFormat 选择可编码的目标格式
// webp/gif/bmp没有编码器，统一转为jpeg
func targetFormat(original, convert string) string {
	switch strings.ToLower(convert) {
	case "jpeg", "jpg":
		return "jpeg"
	case "png":
		return "png"
	}
	switch strings.ToLower(original) {
	case "png":
		return "png"
	default:
		return "jpeg"
	}
}

// fitWithin 等比缩小到最长边不超过maxEdge
func fitWithin(width, height, maxEdge int) (int, int) {
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxEdge {
		return width, height
	}
	scale := float64(maxEdge) / float64(longest)
	newWidth := int(float64(width)*scale + 0.5)
	newHeight := int(float64(height)*scale + 0.5)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return newWidth, newHeight
}

// replaceExt 替换文件名扩展名
func replaceExt(filename, ext string) string {
	if idx := strings.LastIndex(filename, "."); idx > 0 {
		return filename[:idx] + ext
	}
	return filename + ext
}
