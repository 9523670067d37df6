package configs

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP   string `yaml:"ip"`
		Port int    `yaml:"port"`
		Auth struct {
			Enabled bool   `yaml:"enabled"`
			Secret  string `yaml:"secret"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Camera      CameraConfig      `yaml:"camera"`
	Compression CompressionConfig `yaml:"compression"`
	Upload      UploadConfig      `yaml:"upload"`
}

// CameraConfig 相机采集配置
type CameraConfig struct {
	DefaultFacing  string `yaml:"default_facing"`  // 默认朝向：front 或 back
	IdealWidth     int    `yaml:"ideal_width"`     // 期望采集宽度（受设备能力限制）
	IdealHeight    int    `yaml:"ideal_height"`    // 期望采集高度
	MaxFrameRate   int    `yaml:"max_frame_rate"`  // 帧率上限
	PreviewFPS     int    `yaml:"preview_fps"`     // 预览推流帧率
	PreviewQuality int    `yaml:"preview_quality"` // 预览JPEG质量（1-100）
	SourceDir      string `yaml:"source_dir"`      // 文件模拟相机的图片目录
}

// CompressionConfig 图片压缩配置
type CompressionConfig struct {
	MaxSizeMB        float64        `yaml:"max_size_mb"`         // 压缩目标大小（MB）
	MaxWidthOrHeight int            `yaml:"max_width_or_height"` // 最长边像素上限
	Quality          float64        `yaml:"quality"`             // 初始编码质量（0-1）
	ConvertToFormat  string         `yaml:"convert_to_format"`   // 目标格式（可选：jpeg/png）
	MaxAttempts      int            `yaml:"max_attempts"`        // 质量下调的最大尝试次数
	MaxParallel      int            `yaml:"max_parallel"`        // 批量压缩的并发上限
	Security         SecurityConfig `yaml:"security"`            // 压缩前的安全校验
}

// SecurityConfig 图片安全配置结构
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`   // 最大文件大小（字节）
	MaxPixels      int64    `yaml:"max_pixels"`      // 最大像素数量
	MaxWidth       int      `yaml:"max_width"`       // 最大宽度
	MaxHeight      int      `yaml:"max_height"`      // 最大高度
	AllowedFormats []string `yaml:"allowed_formats"` // 允许的图片格式
}

// UploadConfig 上传配置
type UploadConfig struct {
	BaseURL        string `yaml:"base_url"`        // 事件记录API地址
	Token          string `yaml:"token"`           // 上传接口的Bearer token
	TimeoutSeconds int    `yaml:"timeout_seconds"` // 单文件上传超时
	MaxBatchSize   int    `yaml:"max_batch_size"`  // 单次提交的文件数上限
	OverflowPolicy string `yaml:"overflow_policy"` // 超限策略：reject 或 truncate
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}
	config.ApplyDefaults()

	return config, path, nil
}

// ApplyDefaults 填充未配置项的默认值
func (c *Config) ApplyDefaults() {
	if c.Camera.DefaultFacing == "" {
		c.Camera.DefaultFacing = "back"
	}
	if c.Camera.IdealWidth == 0 {
		c.Camera.IdealWidth = 2560
	}
	if c.Camera.IdealHeight == 0 {
		c.Camera.IdealHeight = 1920
	}
	if c.Camera.MaxFrameRate == 0 {
		c.Camera.MaxFrameRate = 30
	}
	if c.Camera.PreviewFPS == 0 {
		c.Camera.PreviewFPS = 10
	}
	if c.Camera.PreviewQuality == 0 {
		c.Camera.PreviewQuality = 70
	}

	if c.Compression.MaxSizeMB == 0 {
		c.Compression.MaxSizeMB = 0.5
	}
	if c.Compression.MaxWidthOrHeight == 0 {
		c.Compression.MaxWidthOrHeight = 1200
	}
	if c.Compression.Quality == 0 {
		c.Compression.Quality = 0.8
	}
	if c.Compression.MaxAttempts == 0 {
		c.Compression.MaxAttempts = 5
	}
	if c.Compression.MaxParallel == 0 {
		c.Compression.MaxParallel = 2
	}
	if c.Compression.Security.MaxFileSize == 0 {
		c.Compression.Security.MaxFileSize = 20 * 1024 * 1024
	}
	if c.Compression.Security.MaxPixels == 0 {
		c.Compression.Security.MaxPixels = 64 * 1024 * 1024
	}
	if c.Compression.Security.MaxWidth == 0 {
		c.Compression.Security.MaxWidth = 10000
	}
	if c.Compression.Security.MaxHeight == 0 {
		c.Compression.Security.MaxHeight = 10000
	}
	if len(c.Compression.Security.AllowedFormats) == 0 {
		c.Compression.Security.AllowedFormats = []string{"jpeg", "jpg", "png", "gif", "webp", "bmp"}
	}

	if c.Upload.TimeoutSeconds == 0 {
		c.Upload.TimeoutSeconds = 30
	}
	if c.Upload.MaxBatchSize == 0 {
		c.Upload.MaxBatchSize = 5
	}
	if c.Upload.OverflowPolicy == "" {
		c.Upload.OverflowPolicy = "reject"
	}
}
