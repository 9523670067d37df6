package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"harvest-capture-go/src/configs"
	"harvest-capture-go/src/core/imaging"
	"harvest-capture-go/src/core/utils"
)

// Transport delivers a batch of artifacts against an existing parent record
// and reports a per-file outcome list. The wire protocol (endpoint shape,
// encoding, auth) is entirely the transport's concern; the orchestrator only
// depends on the outcome list.
type Transport interface {
	Upload(ctx context.Context, parentID string, artifacts []*imaging.ImageArtifact) ([]UploadOutcome, error)
}

// HTTPTransport posts each artifact as a multipart form to the host
// application's event image endpoint. One request per file, so a single slow
// or rejected file never takes the rest of the batch down with it.
type HTTPTransport struct {
	config *configs.UploadConfig
	logger *utils.TaggedLogger
	client *http.Client
}

func NewHTTPTransport(config *configs.UploadConfig, logger *utils.Logger) *HTTPTransport {
	return &HTTPTransport{
		config: config,
		logger: logger.WithTag("upload"),
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// 限制重定向次数为3次
				if len(via) >= 3 {
					return fmt.Errorf("停止重定向：超过最大重定向次数")
				}
				return nil
			},
		},
	}
}

// Upload delivers the artifacts one by one. Per-file failures are recorded in
// the outcome list and never abort the remaining files.
func (t *HTTPTransport) Upload(ctx context.Context, parentID string, artifacts []*imaging.ImageArtifact) ([]UploadOutcome, error) {
	outcomes := make([]UploadOutcome, 0, len(artifacts))
	for i, artifact := range artifacts {
		outcome := UploadOutcome{Filename: artifact.OriginalFilename, Success: true}
		if err := t.uploadOne(ctx, parentID, i, artifact); err != nil {
			outcome.Success = false
			outcome.ErrorReason = err.Error()
			t.logger.Warn("文件上传失败", map[string]interface{}{
				"parent_id": parentID,
				"filename":  artifact.OriginalFilename,
				"error":     err.Error(),
			})
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// uploadOne posts a single artifact with its position in the batch.
func (t *HTTPTransport) uploadOne(ctx context.Context, parentID string, order int, artifact *imaging.ImageArtifact) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", artifact.OriginalFilename)
	if err != nil {
		return fmt.Errorf("构造multipart表单失败: %v", err)
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return fmt.Errorf("写入文件数据失败: %v", err)
	}
	if err := writer.WriteField("upload_order", strconv.Itoa(order)); err != nil {
		return fmt.Errorf("写入表单字段失败: %v", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("关闭multipart表单失败: %v", err)
	}

	url := fmt.Sprintf("%s/api/images/upload/%s", t.config.BaseURL, parentID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, string(snippet))
	}
	return nil
}
