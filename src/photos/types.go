package photos

import (
	"harvest-capture-go/src/core/imaging"
	"harvest-capture-go/src/core/upload"
)

// CameraStatusResponse 相机会话状态响应
type CameraStatusResponse struct {
	Status             string `json:"status"`                 // 会话状态
	Facing             string `json:"facing"`                 // 当前朝向
	HasMultipleDevices bool   `json:"has_multiple_devices"`   // 是否有多个摄像头
	ErrorReason        string `json:"error_reason,omitempty"` // 最近一次打开失败的分类原因
}

// CaptureResponse 帧采集响应
type CaptureResponse struct {
	Success  bool                   `json:"success"`
	Message  string                 `json:"message,omitempty"`
	Artifact *imaging.ImageArtifact `json:"artifact,omitempty"` // 采集产物元数据（不含字节内容）
}

// BatchResponse 批量提交响应
type BatchResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	TaskID  string              `json:"task_id,omitempty"` // 异步提交时返回
	Result  *upload.BatchResult `json:"result,omitempty"`  // 同步提交的合并结果
}

// uploadParams 后台上传任务的参数
type uploadParams struct {
	ParentID  string
	Artifacts []*imaging.ImageArtifact
}
