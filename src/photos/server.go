package photos

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"harvest-capture-go/src/configs"
	"harvest-capture-go/src/core/auth"
	"harvest-capture-go/src/core/camera"
	"harvest-capture-go/src/core/imaging"
	"harvest-capture-go/src/core/upload"
	"harvest-capture-go/src/core/utils"
	"harvest-capture-go/src/task"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// 单个上传文件的大小上限为20MB
	MAX_FILE_SIZE = 20 * 1024 * 1024

	// 未提交采集照片的保留上限，超出后按先进先出淘汰
	maxPendingCaptures = 32
)

// PhotoService 拍照与上传管线的HTTP服务
// 表现层通过这里驱动相机会话、预览、采集与批量提交
type PhotoService struct {
	config       *configs.Config
	logger       *utils.Logger
	provider     camera.MediaProvider
	orchestrator *upload.Orchestrator
	taskMgr      *task.TaskManager
	authToken    *auth.AuthToken
	upgrader     websocket.Upgrader

	// 会话关闭是终态，重新打开时换一个新的会话实例
	sessionMu sync.Mutex
	session   *camera.Session

	// 已采集待提交的照片，按生成文件名索引，captureOrder记录采集顺序
	capturesMu   sync.Mutex
	captures     map[string]*imaging.ImageArtifact
	captureOrder []string
}

// NewPhotoService 构造函数
func NewPhotoService(config *configs.Config, logger *utils.Logger, taskMgr *task.TaskManager) (*PhotoService, error) {
	provider := camera.NewFileProvider(config.Camera.SourceDir)
	compressor := imaging.NewCompressor(&config.Compression, logger)
	transport := upload.NewHTTPTransport(&config.Upload, logger)

	service := &PhotoService{
		config:       config,
		logger:       logger,
		provider:     provider,
		session:      camera.NewSession(provider, config.Camera, logger),
		orchestrator: upload.NewOrchestrator(&config.Upload, compressor, transport, logger),
		taskMgr:      taskMgr,
		captures:     make(map[string]*imaging.ImageArtifact),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	if config.Server.Auth.Enabled {
		service.authToken = auth.NewAuthToken(config.Server.Auth.Secret)
	}

	// 注册后台上传任务执行器
	task.RegisterTaskExecutor(task.TaskTypePhotoUpload, func(t *task.Task) error {
		params, ok := t.Params.(*uploadParams)
		if !ok {
			return fmt.Errorf("invalid photo upload params")
		}
		result, err := service.orchestrator.Submit(t.Context, params.ParentID, params.Artifacts)
		if err != nil {
			return err
		}
		t.Result = result
		return nil
	})

	return service, nil
}

// Start 注册所有拍照相关路由
func (s *PhotoService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/camera", s.handleCameraStatus)
	apiGroup.POST("/camera/open", s.handleCameraOpen)
	apiGroup.POST("/camera/switch", s.handleCameraSwitch)
	apiGroup.POST("/camera/close", s.handleCameraClose)
	apiGroup.POST("/camera/capture", s.handleCapture)
	apiGroup.GET("/camera/preview", s.handlePreview)
	apiGroup.POST("/photos/:recordId", s.handleSubmit)
	apiGroup.OPTIONS("/photos/:recordId", s.handleOptions)

	s.logger.Info("拍照上传HTTP服务路由注册完成")
	return nil
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *PhotoService) handleOptions(c *gin.Context) {
	s.addCORSHeaders(c)
	c.Status(http.StatusOK)
}

// currentSession 返回当前会话实例
func (s *PhotoService) currentSession() *camera.Session {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.session
}

// sessionForOpen 返回可用于打开的会话，已关闭的会话被新实例替换
func (s *PhotoService) sessionForOpen() *camera.Session {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.session.Closed() {
		s.session = camera.NewSession(s.provider, s.config.Camera, s.logger)
	}
	return s.session
}

// handleCameraStatus 返回相机会话状态
func (s *PhotoService) handleCameraStatus(c *gin.Context) {
	s.addCORSHeaders(c)

	session := s.currentSession()
	resp := CameraStatusResponse{
		Status:             string(session.Status()),
		Facing:             string(session.Facing()),
		HasMultipleDevices: session.HasMultipleDevices(),
	}
	if lastErr := session.LastError(); lastErr != nil {
		resp.ErrorReason = string(lastErr.Reason)
	}
	c.JSON(http.StatusOK, resp)
}

// handleCameraOpen 打开相机（失败可通过再次调用重试）
func (s *PhotoService) handleCameraOpen(c *gin.Context) {
	s.addCORSHeaders(c)
	if !s.checkAuth(c) {
		return
	}

	var body struct {
		Facing string `json:"facing"`
	}
	_ = c.ShouldBindJSON(&body)
	facing := camera.ParseFacing(body.Facing)
	if body.Facing == "" {
		facing = camera.ParseFacing(s.config.Camera.DefaultFacing)
	}

	if err := s.sessionForOpen().Open(c.Request.Context(), facing); err != nil {
		s.respondAcquireError(c, err)
		return
	}
	s.handleCameraStatus(c)
}

// handleCameraSwitch 切换前后摄像头，单摄像头设备上是空操作
func (s *PhotoService) handleCameraSwitch(c *gin.Context) {
	s.addCORSHeaders(c)
	if !s.checkAuth(c) {
		return
	}

	if err := s.currentSession().SwitchFacing(c.Request.Context()); err != nil {
		s.respondAcquireError(c, err)
		return
	}
	s.handleCameraStatus(c)
}

// handleCameraClose 关闭相机会话（幂等）
func (s *PhotoService) handleCameraClose(c *gin.Context) {
	s.addCORSHeaders(c)
	if !s.checkAuth(c) {
		return
	}

	s.currentSession().Close()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleCapture 采集当前帧
func (s *PhotoService) handleCapture(c *gin.Context) {
	s.addCORSHeaders(c)
	if !s.checkAuth(c) {
		return
	}

	artifact, err := s.currentSession().Capture(c.Request.Context())
	if err != nil {
		status := http.StatusConflict
		if _, ok := err.(*camera.CaptureError); ok {
			// 可重试的编码失败，会话仍然可用
			status = http.StatusInternalServerError
		}
		c.JSON(status, CaptureResponse{Success: false, Message: err.Error()})
		return
	}

	s.rememberCapture(artifact)
	c.JSON(http.StatusOK, CaptureResponse{Success: true, Artifact: artifact})
}

// handlePreview 通过WebSocket推送实时预览帧
// 浏览器WebSocket客户端无法自定义请求头，token也可以通过query参数传递
func (s *PhotoService) handlePreview(c *gin.Context) {
	if !s.checkAuth(c) {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("预览连接升级失败: %v", err))
		return
	}
	defer conn.Close()

	// 读取循环只用于感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	fps := s.config.Camera.PreviewFPS
	if fps <= 0 {
		fps = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			frame, err := s.currentSession().PreviewFrame(c.Request.Context())
			if err != nil {
				// 会话未激活时等待下一个tick，关闭连接由客户端决定
				continue
			}
			data, err := encodePreview(frame, s.config.Camera.PreviewQuality)
			if err != nil {
				s.logger.Warn(fmt.Sprintf("预览帧编码失败: %v", err))
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		}
	}
}

// handleSubmit 批量提交照片到指定记录
// 表单支持files文件字段、captures已采集文件名字段和async异步标记
func (s *PhotoService) handleSubmit(c *gin.Context) {
	s.addCORSHeaders(c)
	if !s.checkAuth(c) {
		return
	}

	recordID := c.Param("recordId")
	artifacts, err := s.collectArtifacts(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, BatchResponse{Success: false, Message: err.Error()})
		return
	}
	if len(artifacts) == 0 {
		c.JSON(http.StatusBadRequest, BatchResponse{Success: false, Message: "没有可提交的图片"})
		return
	}

	if c.Request.FormValue("async") == "1" {
		s.submitAsync(c, recordID, artifacts)
		return
	}

	result, err := s.orchestrator.Submit(c.Request.Context(), recordID, artifacts)
	if err != nil {
		status := http.StatusInternalServerError
		if _, ok := err.(*upload.BatchTooLargeError); ok {
			status = http.StatusBadRequest
		}
		c.JSON(status, BatchResponse{Success: false, Message: err.Error()})
		return
	}

	s.clearCaptures(artifacts)
	c.JSON(http.StatusOK, BatchResponse{Success: true, Result: result})
}

// submitAsync 把批量提交交给任务池在后台执行
func (s *PhotoService) submitAsync(c *gin.Context, recordID string, artifacts []*imaging.ImageArtifact) {
	clientID := c.GetHeader("Client-Id")
	if clientID == "" {
		clientID = c.ClientIP()
	}

	t, taskID := task.NewTask(context.Background(), task.TaskTypePhotoUpload, &uploadParams{
		ParentID:  recordID,
		Artifacts: artifacts,
	})
	// delay_seconds延迟提交，走任务池的定时路径
	if delay, err := strconv.Atoi(c.Request.FormValue("delay_seconds")); err == nil && delay > 0 {
		at := time.Now().Add(time.Duration(delay) * time.Second)
		t.ScheduledTime = &at
	}
	t.Callback = task.NewCallBack(func(result interface{}) {
		s.logger.Info("后台上传任务完成", map[string]interface{}{
			"task_id":   taskID,
			"record_id": recordID,
		})
	}).WithErrorHandler(func(err error) {
		s.logger.Warn("后台上传任务失败", map[string]interface{}{
			"task_id":   taskID,
			"record_id": recordID,
			"error":     err.Error(),
		})
	})

	if err := s.taskMgr.SubmitTask(clientID, t); err != nil {
		c.JSON(http.StatusServiceUnavailable, BatchResponse{Success: false, Message: err.Error()})
		return
	}

	s.clearCaptures(artifacts)
	c.JSON(http.StatusAccepted, BatchResponse{Success: true, TaskID: taskID})
}

// collectArtifacts 汇总上传文件与已采集照片，保持客户端给出的顺序
func (s *PhotoService) collectArtifacts(c *gin.Context) ([]*imaging.ImageArtifact, error) {
	if err := c.Request.ParseMultipartForm(MAX_FILE_SIZE); err != nil {
		return nil, fmt.Errorf("解析multipart表单失败: %v", err)
	}

	var artifacts []*imaging.ImageArtifact
	if form := c.Request.MultipartForm; form != nil {
		for _, header := range form.File["files"] {
			if header.Size > MAX_FILE_SIZE {
				return nil, fmt.Errorf("图片 %s 大小超过限制，最大允许%dMB", header.Filename, MAX_FILE_SIZE/1024/1024)
			}
			file, err := header.Open()
			if err != nil {
				return nil, fmt.Errorf("读取上传文件失败: %v", err)
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, fmt.Errorf("读取图片数据失败: %v", err)
			}
			artifacts = append(artifacts, buildArtifact(header.Filename, data))
		}

		// 追加之前采集的照片
		for _, values := range form.Value["captures"] {
			for _, name := range strings.Split(values, ",") {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				s.capturesMu.Lock()
				artifact, ok := s.captures[name]
				s.capturesMu.Unlock()
				if !ok {
					return nil, fmt.Errorf("未找到采集照片: %s", name)
				}
				artifacts = append(artifacts, artifact)
			}
		}
	}
	return artifacts, nil
}

// rememberCapture 暂存采集照片等待提交，超出上限时淘汰最早的
func (s *PhotoService) rememberCapture(artifact *imaging.ImageArtifact) {
	s.capturesMu.Lock()
	defer s.capturesMu.Unlock()

	if _, exists := s.captures[artifact.OriginalFilename]; !exists {
		s.captureOrder = append(s.captureOrder, artifact.OriginalFilename)
	}
	s.captures[artifact.OriginalFilename] = artifact

	for len(s.captureOrder) > maxPendingCaptures {
		oldest := s.captureOrder[0]
		s.captureOrder = s.captureOrder[1:]
		delete(s.captures, oldest)
		s.logger.Warn(fmt.Sprintf("未提交采集照片超过上限，淘汰最早的: %s", oldest))
	}
}

// clearCaptures 提交后移除已消费的采集照片
func (s *PhotoService) clearCaptures(artifacts []*imaging.ImageArtifact) {
	s.capturesMu.Lock()
	defer s.capturesMu.Unlock()

	consumed := make(map[string]bool, len(artifacts))
	for _, artifact := range artifacts {
		if _, ok := s.captures[artifact.OriginalFilename]; ok {
			consumed[artifact.OriginalFilename] = true
			delete(s.captures, artifact.OriginalFilename)
		}
	}
	if len(consumed) == 0 {
		return
	}
	kept := s.captureOrder[:0]
	for _, name := range s.captureOrder {
		if !consumed[name] {
			kept = append(kept, name)
		}
	}
	s.captureOrder = kept
}

// checkAuth 验证Bearer token，未启用认证时直接放行
// token取自Authorization头，缺失时回退到token query参数
func (s *PhotoService) checkAuth(c *gin.Context) bool {
	if s.authToken == nil {
		return true
	}

	token := ""
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token = authHeader[7:]
	} else {
		token = c.Query("token")
	}
	if token == "" {
		s.respondError(c, http.StatusUnauthorized, "无效的认证token")
		return false
	}

	isValid, clientID, err := s.authToken.VerifyToken(token)
	if err != nil || !isValid {
		s.logger.Warn(fmt.Sprintf("认证token验证失败: %v", err))
		s.respondError(c, http.StatusUnauthorized, "无效的认证token或token已过期")
		return false
	}

	c.Set("client_id", clientID)
	return true
}

// respondAcquireError 把分类后的相机错误返回给表现层
func (s *PhotoService) respondAcquireError(c *gin.Context, err error) {
	if acquire, ok := err.(*camera.AcquireError); ok {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"reason":  string(acquire.Reason),
			"message": acquire.Error(),
		})
		return
	}
	s.respondError(c, http.StatusConflict, err.Error())
}

// respondError 返回错误响应
func (s *PhotoService) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"success": false, "message": message})
}

// addCORSHeaders 添加CORS头
func (s *PhotoService) addCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "client-id, content-type, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// Cleanup 清理资源
func (s *PhotoService) Cleanup() error {
	s.currentSession().Close()
	s.logger.Info("拍照服务清理完成")
	return nil
}

// buildArtifact 把上传的字节封装为不可变的图片产物
func buildArtifact(filename string, data []byte) *imaging.ImageArtifact {
	artifact := &imaging.ImageArtifact{
		Data:             data,
		OriginalFilename: filename,
		SizeBytes:        int64(len(data)),
		MimeType:         imaging.MimeTypeFor(imaging.DetectFormat(data)),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		artifact.Width = cfg.Width
		artifact.Height = cfg.Height
	}
	return artifact
}

// encodePreview 把预览帧编码为低开销的JPEG
func encodePreview(frame image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 70
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
