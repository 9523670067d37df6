package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"harvest-capture-go/src/configs"
)

func TestHTTPTransportUpload(t *testing.T) {
	var requests []struct {
		path     string
		filename string
		order    string
		auth     string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("解析multipart请求失败: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file := r.MultipartForm.File["file"]
		if len(file) != 1 {
			t.Error("每个请求应携带一个file字段")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		requests = append(requests, struct {
			path     string
			filename string
			order    string
			auth     string
		}{
			path:     r.URL.Path,
			filename: file[0].Filename,
			order:    r.FormValue("upload_order"),
			auth:     r.Header.Get("Authorization"),
		})

		// 第二个文件模拟服务端拒绝
		if file[0].Filename == "photo_2.jpg" {
			http.Error(w, "validation failed", http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	cfg := &configs.UploadConfig{
		BaseURL:        server.URL,
		Token:          "test-token",
		TimeoutSeconds: 5,
	}
	transport := NewHTTPTransport(cfg, newTestLogger(t))

	outcomes, err := transport.Upload(context.Background(), "event-123", testArtifacts(t, 3))
	if err != nil {
		t.Fatalf("上传失败: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("结果数量应为3, 实际: %d", len(outcomes))
	}

	// 单个文件失败不中断后续文件
	if !outcomes[0].Success || !outcomes[2].Success {
		t.Error("第1、3个文件应上传成功")
	}
	if outcomes[1].Success {
		t.Error("第2个文件应上传失败")
	}
	if outcomes[1].ErrorReason == "" {
		t.Error("失败结果应携带原因")
	}

	if len(requests) != 3 {
		t.Fatalf("服务端应收到3个请求, 实际: %d", len(requests))
	}
	for i, req := range requests {
		if req.path != "/api/images/upload/event-123" {
			t.Errorf("请求路径错误: %s", req.path)
		}
		if req.order != fmt.Sprintf("%d", i) {
			t.Errorf("第%d个请求的upload_order应为%d, 实际: %s", i+1, i, req.order)
		}
		if req.auth != "Bearer test-token" {
			t.Errorf("认证头错误: %s", req.auth)
		}
	}
}

func TestHTTPTransportServerUnreachable(t *testing.T) {
	cfg := &configs.UploadConfig{
		BaseURL:        "http://127.0.0.1:1", // 不可达端口
		TimeoutSeconds: 1,
	}
	transport := NewHTTPTransport(cfg, newTestLogger(t))

	outcomes, err := transport.Upload(context.Background(), "event-1", testArtifacts(t, 2))
	if err != nil {
		t.Fatalf("连接失败应折叠为逐文件结果: %v", err)
	}
	for _, outcome := range outcomes {
		if outcome.Success {
			t.Errorf("文件%s不应标记为成功", outcome.Filename)
		}
	}
}
