package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/poleshift/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/poleshift/internal/common"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"github.com/hashicorp/go-multierror"
)

// UploadStatus tells the caller where a file ended up.
type UploadStatus string

const (
	StatusUploaded UploadStatus = "uploaded"
	StatusQueued   UploadStatus = "queued"
)

// BlobStore is the remote object storage.
type BlobStore interface {
	Upload(ctx context.Context, bucket, key, path string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Connectivity reports whether the hosted backend is reachable.
type Connectivity interface {
	IsOnline() bool
}

// UploadReport summarises a Reconcile or RetryQueued pass.
type UploadReport struct {
	Checked   int
	Removed   int
	Remaining int
}

// UploadService moves raw files to blob storage, falling back to the
// durable queue.
//
//   - Upload: upload now when online, otherwise queue; never fails because
//     the network is down.
//   - Reconcile: drop queued tasks whose object already exists remotely.
//   - RetryQueued: attempt every queued task and drop the ones that went
//     through.
type UploadService interface {
	Upload(ctx context.Context, path, bucket, key string) (UploadStatus, error)
	Reconcile(ctx context.Context) (UploadReport, error)
	RetryQueued(ctx context.Context) (UploadReport, error)
	Queue(ctx context.Context) ([]models.UploadTask, error)
}

type uploadService struct {
	blobs  BlobStore
	queue  uploads.Repository
	meta   metadata.Repository
	online Connectivity
	log    logging.Logger
	now    func() time.Time
}

func NewUploadService(blobs BlobStore, queue uploads.Repository, meta metadata.Repository, online Connectivity, log logging.Logger) UploadService {
	return &uploadService{
		blobs:  blobs,
		queue:  queue,
		meta:   meta,
		online: online,
		log:    log.With("module", "uploads"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ObjectKey is the raw-data layout: <orgId>/<sampleId>/<basename>.
func ObjectKey(orgID, sampleID, path string) string {
	return orgID + "/" + sampleID + "/" + filepath.Base(path)
}

func (s *uploadService) Upload(ctx context.Context, path, bucket, key string) (UploadStatus, error) {
	if path == "" || bucket == "" || key == "" {
		return "", fmt.Errorf("%w: upload needs a path, bucket and key", common.ErrInvalidInput)
	}

	if s.online != nil && !s.online.IsOnline() {
		return s.enqueue(ctx, path, bucket, key, "offline")
	}

	if err := s.blobs.Upload(ctx, bucket, key, path); err != nil {
		s.log.Warn(ctx, "upload failed", "path", path, "key", key, "error", err)
		return s.enqueue(ctx, path, bucket, key, "upload failed")
	}

	s.log.Info(ctx, "file uploaded", "path", path, "bucket", bucket, "key", key)
	return StatusUploaded, nil
}

func (s *uploadService) enqueue(ctx context.Context, path, bucket, key, reason string) (UploadStatus, error) {
	task, created, err := s.queue.Enqueue(ctx, path, bucket, key)
	if err != nil {
		return "", err
	}
	if created {
		s.log.Info(ctx, "upload queued", "reason", reason, "path", path, "task_id", task.ID)
	} else {
		s.log.Info(ctx, "upload already queued", "reason", reason, "path", path, "task_id", task.ID)
	}
	return StatusQueued, nil
}

func (s *uploadService) Reconcile(ctx context.Context) (UploadReport, error) {
	tasks, err := s.queue.ListAll(ctx)
	if err != nil {
		return UploadReport{}, err
	}

	var rep UploadReport
	var result *multierror.Error
	for _, t := range tasks {
		rep.Checked++
		ok, err := s.blobs.Exists(ctx, t.DestinationBucket, t.ObjectKey)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("ping %s: %w", t.Path, err))
			rep.Remaining++
			continue
		}
		if !ok {
			rep.Remaining++
			continue
		}
		if err := s.queue.Remove(ctx, t.ID); err != nil {
			result = multierror.Append(result, err)
			rep.Remaining++
			continue
		}
		rep.Removed++
		s.log.Debug(ctx, "queued upload already present", "path", t.Path, "key", t.ObjectKey)
	}

	if s.meta != nil {
		if err := s.meta.SetTime(ctx, metadata.KeyLastReconcileAt, s.now()); err != nil {
			result = multierror.Append(result, err)
		}
	}

	s.log.Info(ctx, "upload queue reconciled", "checked", rep.Checked, "removed", rep.Removed, "remaining", rep.Remaining)
	return rep, result.ErrorOrNil()
}

func (s *uploadService) RetryQueued(ctx context.Context) (UploadReport, error) {
	if s.online != nil && !s.online.IsOnline() {
		return UploadReport{}, fmt.Errorf("retry queued uploads: %w", common.ErrUnavailable)
	}

	tasks, err := s.queue.ListAll(ctx)
	if err != nil {
		return UploadReport{}, err
	}

	var rep UploadReport
	var result *multierror.Error
	for _, t := range tasks {
		rep.Checked++
		if err := s.blobs.Upload(ctx, t.DestinationBucket, t.ObjectKey, t.Path); err != nil {
			result = multierror.Append(result, fmt.Errorf("upload %s: %w", t.Path, err))
			rep.Remaining++
			continue
		}
		if err := s.queue.Remove(ctx, t.ID); err != nil {
			result = multierror.Append(result, err)
			rep.Remaining++
			continue
		}
		rep.Removed++
	}

	if rep.Checked > 0 {
		s.log.Info(ctx, "queued uploads retried", "uploaded", rep.Removed, "remaining", rep.Remaining)
	}
	return rep, result.ErrorOrNil()
}

func (s *uploadService) Queue(ctx context.Context) ([]models.UploadTask, error) {
	return s.queue.ListAll(ctx)
}
