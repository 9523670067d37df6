package imaging

import (
	"bytes"
	"strings"
)

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8}, // JPEG文件只需要前两个字节
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需要进一步检查WEBP标识
	"bmp":  {0x42, 0x4D},
}

var mimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
}

// DetectFormat 根据文件头检测图片格式，无法识别时返回空字符串
func DetectFormat(data []byte) string {
	for format, signature := range imageSignatures {
		if !bytes.HasPrefix(data, signature) {
			continue
		}
		// WEBP需要额外验证RIFF容器里的标识
		if format == "webp" {
			if len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")) {
				return "webp"
			}
			continue
		}
		return format
	}
	return ""
}

// MimeTypeFor 返回格式对应的MIME类型
func MimeTypeFor(format string) string {
	if mime, ok := mimeTypes[strings.ToLower(format)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ExtensionFor 返回格式对应的文件扩展名
func ExtensionFor(format string) string {
	switch strings.ToLower(format) {
	case "jpeg":
		return ".jpg"
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	case "bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}
