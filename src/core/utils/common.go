package utils

import (
	"fmt"
	"os"
)

// GetProjectDir 获取项目根目录
func GetProjectDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return dir
}

// FormatBytes 把字节数格式化为可读字符串
func FormatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGT"[exp])
}

// FormatReduction 计算压缩率（原大小到新大小的减少百分比）
// 新大小不小于原大小时返回 "0.0%"，保证回退场景下的统计口径一致
func FormatReduction(originalSize, compressedSize int64) string {
	if originalSize <= 0 || compressedSize >= originalSize {
		return "0.0%"
	}
	reduction := (1 - float64(compressedSize)/float64(originalSize)) * 100
	return fmt.Sprintf("%.1f%%", reduction)
}
