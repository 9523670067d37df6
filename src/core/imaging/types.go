package imaging

// ImageArtifact 不可变的内存图片载荷及元数据
// 一经产生不再修改，可以安全地跨goroutine传递
type ImageArtifact struct {
	Data             []byte `json:"-"`                 // 图片字节内容
	MimeType         string `json:"mime_type"`         // MIME类型
	OriginalFilename string `json:"original_filename"` // 原始文件名（采集产物为带时间戳的生成名）
	SizeBytes        int64  `json:"size_bytes"`        // 字节大小
	Width            int    `json:"width,omitempty"`   // 图片宽度
	Height           int    `json:"height,omitempty"`  // 图片高度
}

// CompressionConfig 单次压缩的目标参数，由调用方按场景提供
type CompressionConfig struct {
	MaxSizeMB        float64 `json:"max_size_mb"`         // 目标大小（MB），0表示不限制
	MaxWidthOrHeight int     `json:"max_width_or_height"` // 最长边像素上限，0表示不缩放
	Quality          float64 `json:"quality"`             // 初始编码质量（0-1）
	ConvertToFormat  string  `json:"convert_to_format"`   // 目标格式（可选：jpeg/png）
}

// CompressionResult 压缩结果
// Success为false时Artifact携带未改动的原图，压缩失败绝不丢失用户的图片；
// 统计字段在成功和回退两种情况下都会填充，回退时压缩率报告为零
type CompressionResult struct {
	Success             bool           `json:"success"`
	Artifact            *ImageArtifact `json:"artifact"`
	OriginalSizeBytes   int64          `json:"original_size_bytes"`
	CompressedSizeBytes int64          `json:"compressed_size_bytes"`
	CompressionRatio    string         `json:"compression_ratio"`
	ErrorReason         string         `json:"error_reason,omitempty"`
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid  bool   // 是否有效
	Format   string // 实际格式
	Width    int    // 图片宽度
	Height   int    // 图片高度
	FileSize int64  // 文件大小
	Error    error  // 错误信息
}

// Metrics 压缩处理统计信息
type Metrics struct {
	TotalProcessed    int64 // 总处理数量
	Fallbacks         int64 // 回退到原图的次数
	ValidationRejects int64 // 验证拒绝次数
	BatchesProcessed  int64 // 批量处理次数
}
