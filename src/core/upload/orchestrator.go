package upload

import (
	"context"
	"fmt"

	"harvest-capture-go/src/configs"
	"harvest-capture-go/src/core/imaging"
	"harvest-capture-go/src/core/utils"
)

// Orchestrator packages a set of artifacts for handoff to the upload
// transport and reconciles per-file outcomes into one reportable result.
//
// A partial failure is not a batch failure: the parent record was created
// before any image moved, so the caller reports "N of M photos uploaded"
// rather than an all-or-nothing error.
type Orchestrator struct {
	config     *configs.UploadConfig
	compressor *imaging.Compressor
	transport  Transport
	logger     *utils.TaggedLogger
}

func NewOrchestrator(config *configs.UploadConfig, compressor *imaging.Compressor, transport Transport, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{
		config:     config,
		compressor: compressor,
		transport:  transport,
		logger:     logger.WithTag("upload"),
	}
}

// Submit compresses the batch, delegates delivery to the transport, and
// partitions the per-file outcomes. The returned error is reserved for
// submissions that never started (missing parent id, oversized batch under
// the reject policy); transport trouble is reported inside the BatchResult.
func (o *Orchestrator) Submit(ctx context.Context, parentID string, artifacts []*imaging.ImageArtifact) (*BatchResult, error) {
	if parentID == "" {
		return nil, fmt.Errorf("parent record id is required")
	}

	prepared, err := o.applyOverflowPolicy(artifacts)
	if err != nil {
		return nil, err
	}

	// 压缩失败的文件回退为原图，所以每个文件都有可上传的产物
	results := o.compressor.CompressBatch(ctx, prepared, o.compressor.Defaults())
	final := make([]*imaging.ImageArtifact, len(results))
	for i, result := range results {
		final[i] = result.Artifact
	}

	batch := &BatchResult{CompressionStats: results}

	outcomes, terr := o.transport.Upload(ctx, parentID, final)
	if terr != nil {
		// 传输层整体失败：记录已存在，所有文件按失败逐个上报
		for _, artifact := range final {
			batch.FailedArtifacts = append(batch.FailedArtifacts, FailedArtifact{
				Filename:    artifact.OriginalFilename,
				ErrorReason: terr.Error(),
			})
		}
		batch.TotalFailed = len(final)
		o.logger.Warn("批量上传传输失败", map[string]interface{}{
			"parent_id": parentID,
			"files":     len(final),
			"error":     terr.Error(),
		})
		return batch, nil
	}

	for i, artifact := range final {
		if i < len(outcomes) && outcomes[i].Success {
			batch.UploadedArtifacts = append(batch.UploadedArtifacts, artifact)
			continue
		}
		reason := "上传结果缺失"
		if i < len(outcomes) {
			reason = outcomes[i].ErrorReason
		}
		batch.FailedArtifacts = append(batch.FailedArtifacts, FailedArtifact{
			Filename:    artifact.OriginalFilename,
			ErrorReason: reason,
		})
	}
	batch.TotalSucceeded = len(batch.UploadedArtifacts)
	batch.TotalFailed = len(batch.FailedArtifacts)

	o.logger.Info("批量上传完成", map[string]interface{}{
		"parent_id": parentID,
		"succeeded": batch.TotalSucceeded,
		"failed":    batch.TotalFailed,
	})
	return batch, nil
}

// applyOverflowPolicy enforces the configured batch cap: reject returns a
// typed error, truncate keeps the first N files and drops the rest.
func (o *Orchestrator) applyOverflowPolicy(artifacts []*imaging.ImageArtifact) ([]*imaging.ImageArtifact, error) {
	limit := o.config.MaxBatchSize
	if limit <= 0 || len(artifacts) <= limit {
		return artifacts, nil
	}

	if o.config.OverflowPolicy == PolicyTruncate {
		o.logger.Warn("提交文件数超限，截断处理", map[string]interface{}{
			"submitted": len(artifacts),
			"limit":     limit,
		})
		return artifacts[:limit], nil
	}
	return nil, &BatchTooLargeError{Size: len(artifacts), Limit: limit}
}
