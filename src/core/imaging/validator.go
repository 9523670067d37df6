package imaging

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"harvest-capture-go/src/configs"
	"harvest-capture-go/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// Validator 压缩前的图片校验器
// 在解码器接触数据之前挡掉超大、超限或格式不被允许的载荷
type Validator struct {
	config *configs.SecurityConfig
	logger *utils.TaggedLogger
}

// NewValidator 创建新的图片校验器
func NewValidator(config *configs.SecurityConfig, logger *utils.Logger) *Validator {
	return &Validator{
		config: config,
		logger: logger.WithTag("imaging"),
	}
}

// Validate 验证图片数据
func (v *Validator) Validate(data []byte) ValidationResult {
	result := ValidationResult{IsValid: false}

	if len(data) == 0 {
		result.Error = fmt.Errorf("缺少图片数据")
		return result
	}

	// 1. 基础大小检查
	if int64(len(data)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("文件大小超限: %d bytes，最大允许: %d bytes", len(data), v.config.MaxFileSize)
		v.logger.Warn("检测到超大文件", map[string]interface{}{
			"size":     len(data),
			"max_size": v.config.MaxFileSize,
		})
		return result
	}

	// 2. 文件头格式检查
	format := DetectFormat(data)
	if format == "" {
		result.Error = fmt.Errorf("无法识别的图片格式")
		return result
	}
	if !v.isFormatAllowed(format) {
		result.Error = fmt.Errorf("不支持的格式: %s", format)
		return result
	}

	// 3. 解码图片头获取详细信息（这是最可靠的验证方式）
	config, actualFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("图片解码失败: %v", err)
		return result
	}
	if actualFormat != "" {
		format = actualFormat
	}

	// 4. 尺寸限制检查
	if config.Width > v.config.MaxWidth || config.Height > v.config.MaxHeight {
		result.Error = fmt.Errorf("图片尺寸超限: %dx%d，最大允许: %dx%d",
			config.Width, config.Height, v.config.MaxWidth, v.config.MaxHeight)
		return result
	}

	// 5. 像素总数检查，防止解码时内存耗尽
	totalPixels := int64(config.Width) * int64(config.Height)
	if totalPixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("像素总数超限: %d，最大允许: %d", totalPixels, v.config.MaxPixels)
		return result
	}

	result.IsValid = true
	result.Format = format
	result.Width = config.Width
	result.Height = config.Height
	result.FileSize = int64(len(data))

	v.logger.Debug("图片验证成功", map[string]interface{}{
		"format": result.Format,
		"width":  result.Width,
		"height": result.Height,
		"size":   result.FileSize,
	})

	return result
}

// isFormatAllowed 检查格式是否被允许
func (v *Validator) isFormatAllowed(format string) bool {
	formatLower := strings.ToLower(format)
	for _, allowedFormat := range v.config.AllowedFormats {
		allowed := strings.ToLower(allowedFormat)
		if allowed == formatLower || (allowed == "jpg" && formatLower == "jpeg") {
			return true
		}
	}
	return false
}
