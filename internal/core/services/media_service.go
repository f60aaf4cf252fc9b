package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	"pttrelay/pkg/blobstore"
	"pttrelay/pkg/tracing"
	"pttrelay/pkg/utils"
	"pttrelay/pkg/validation"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

type MediaConfig struct {
	MaxUploadBytes    int64
	TTL               time.Duration
	SweepInterval     time.Duration
	PublicBaseURL     string
	AllowedExtensions []string
	DefaultExtension  string
}

func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		MaxUploadBytes:   10 << 20,
		TTL:              240 * time.Second,
		SweepInterval:    30 * time.Second,
		PublicBaseURL:    "/api/v1/audio",
		DefaultExtension: ".m4a",
	}
}

var _ ports.MediaService = (*MediaService)(nil)

// MediaService stores uploaded clips and evicts them after the TTL.
type MediaService struct {
	storage blobstore.Storage
	index   ports.AudioIndex
	config  MediaConfig
	clock   utils.Clock
	metrics ports.RelayMetrics
	logger  *zap.SugaredLogger
}

func NewMediaService(
	storage blobstore.Storage,
	index ports.AudioIndex,
	config MediaConfig,
	clock utils.Clock,
	metrics ports.RelayMetrics,
	logger *zap.SugaredLogger,
) *MediaService {
	return &MediaService{
		storage: storage,
		index:   index,
		config:  config,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// MaxUploadBytes is the upload size cap.
func (s *MediaService) MaxUploadBytes() int64 {
	return s.config.MaxUploadBytes
}

// Reference builds the retrieval handle for an object name.
func (s *MediaService) Reference(name string) domain.Reference {
	base := strings.TrimSuffix(s.config.PublicBaseURL, "/")
	if base == "" {
		return domain.Reference(name)
	}
	return domain.Reference(base + "/" + name)
}

func (s *MediaService) Store(ctx context.Context, data io.Reader, filename string, channelID domain.ChannelID) (*domain.StoredAudio, error) {
	ctx, span := tracing.TraceMediaOperation(ctx, "store")
	defer span.End()

	start := s.clock()
	ext := validation.NormalizeExtension(filename, s.config.AllowedExtensions, s.config.DefaultExtension)
	name, err := utils.GenerateObjectNameAt(start, ext)
	if err != nil {
		name = utils.GenerateObjectName(ext)
	}

	size, err := s.storage.Save(ctx, name, data, s.config.MaxUploadBytes)
	if err != nil {
		tracing.RecordError(ctx, err)
		if errors.Is(err, blobstore.ErrTooLarge) {
			s.metrics.AudioRejected("too_large")
			s.logger.Infow("upload rejected, payload too large",
				"channel_id", channelID,
				"limit", humanize.IBytes(uint64(s.config.MaxUploadBytes)),
			)
			return nil, domain.ErrPayloadTooLarge
		}
		s.metrics.AudioRejected("storage")
		s.logger.Errorw("failed to write audio object", "name", name, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	if size == 0 {
		s.storage.Delete(ctx, name)
		s.metrics.AudioRejected("empty")
		return nil, domain.ErrEmptyPayload
	}

	obj := &domain.AudioObject{
		Name:      name,
		Size:      size,
		CreatedAt: start,
		ChannelID: channelID,
	}
	if err := s.index.Put(ctx, obj); err != nil {
		tracing.RecordError(ctx, err)
		s.storage.Delete(ctx, name)
		s.metrics.AudioRejected("storage")
		s.logger.Errorw("failed to index audio object", "name", name, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	ref := s.Reference(name)
	elapsed := s.clock().Sub(start)
	s.metrics.AudioStored(size, elapsed)
	tracing.AddSpanAttributes(ctx,
		tracing.ReferenceKey.String(string(ref)),
		tracing.SizeKey.Int64(size),
		tracing.ChannelIDKey.String(string(channelID)),
	)
	s.logger.Infow("audio stored",
		"reference", ref,
		"size", humanize.IBytes(uint64(size)),
		"channel_id", channelID,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &domain.StoredAudio{Object: obj, Reference: ref}, nil
}

// Lookup returns the object behind ref if it is still within the TTL.
// Files present on disk but missing from the index are adopted.
func (s *MediaService) Lookup(ctx context.Context, ref domain.Reference) (*domain.AudioObject, error) {
	name := ref.ObjectName()
	if err := validation.ValidateObjectName(name); err != nil {
		return nil, domain.ErrInvalidReference
	}

	now := s.clock()
	obj, err := s.index.Get(ctx, name)
	switch {
	case errors.Is(err, domain.ErrAudioNotFound):
		obj, err = s.adopt(ctx, name, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	if obj.Expired(now, s.config.TTL) {
		return nil, domain.ErrAudioExpired
	}
	return obj, nil
}

func (s *MediaService) adopt(ctx context.Context, name string, now time.Time) (*domain.AudioObject, error) {
	info, err := s.storage.Stat(ctx, name)
	if errors.Is(err, blobstore.ErrNotExist) {
		return nil, domain.ErrAudioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	obj := &domain.AudioObject{
		Name:      info.Name,
		Size:      info.Size,
		CreatedAt: info.ModTime,
		Adopted:   true,
	}
	if obj.Expired(now, s.config.TTL) {
		return nil, domain.ErrAudioExpired
	}
	if err := s.index.Put(ctx, obj); err != nil {
		s.logger.Warnw("failed to index adopted audio object", "name", name, "error", err)
	} else {
		s.logger.Infow("untracked audio object adopted", "name", name)
	}
	return obj, nil
}

// Resolve opens the object behind ref. The caller closes the reader.
func (s *MediaService) Resolve(ctx context.Context, ref domain.Reference) (*domain.AudioObject, io.ReadCloser, error) {
	ctx, span := tracing.TraceMediaOperation(ctx, "resolve")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.ReferenceKey.String(string(ref)))

	obj, err := s.Lookup(ctx, ref)
	if err != nil {
		if !domain.IsNotFound(err) {
			tracing.RecordError(ctx, err)
		}
		return nil, nil, err
	}

	rc, _, err := s.storage.Open(ctx, obj.Name)
	if errors.Is(err, blobstore.ErrNotExist) {
		s.index.Delete(ctx, obj.Name)
		return nil, nil, domain.ErrAudioNotFound
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return obj, rc, nil
}

// Sweep deletes tracked objects older than the TTL and reconciles the
// storage directory against the index. It returns the number of objects
// deleted.
func (s *MediaService) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracing.TraceMediaOperation(ctx, "sweep")
	defer span.End()

	now := s.clock()
	cutoff := now.Add(-s.config.TTL)

	expired, err := s.index.CreatedBefore(ctx, cutoff)
	if err != nil {
		tracing.RecordError(ctx, err)
		return 0, fmt.Errorf("failed to list expired audio: %w", err)
	}

	tracked := 0
	for _, obj := range expired {
		if err := s.storage.Delete(ctx, obj.Name); err != nil {
			s.logger.Warnw("failed to delete expired audio", "name", obj.Name, "error", err)
			continue
		}
		if err := s.index.Delete(ctx, obj.Name); err != nil {
			s.logger.Warnw("failed to unindex expired audio", "name", obj.Name, "error", err)
		}
		tracked++
	}
	s.metrics.AudioEvicted("tracked", tracked)

	untracked, err := s.reconcile(ctx, now, cutoff)
	if err != nil {
		s.logger.Warnw("storage reconciliation failed", "error", err)
	}
	s.metrics.AudioEvicted("untracked", untracked)

	temps, err := s.storage.PurgeTemp(ctx, cutoff)
	if err != nil {
		s.logger.Warnw("failed to purge partial uploads", "error", err)
	}
	s.metrics.AudioEvicted("temp", temps)

	total := tracked + untracked
	if total > 0 || temps > 0 {
		s.logger.Infow("audio sweep finished",
			"tracked_evicted", tracked,
			"untracked_evicted", untracked,
			"partial_uploads_purged", temps,
		)
	}
	return total, nil
}

func (s *MediaService) reconcile(ctx context.Context, now, cutoff time.Time) (int, error) {
	objects, err := s.storage.List(ctx)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, info := range objects {
		if _, err := s.index.Get(ctx, info.Name); err == nil {
			continue
		}

		if info.ModTime.Before(cutoff) {
			if err := s.storage.Delete(ctx, info.Name); err == nil {
				evicted++
			}
			continue
		}

		if validation.ValidateObjectName(info.Name) != nil {
			continue
		}
		if err := s.index.Put(ctx, &domain.AudioObject{
			Name:      info.Name,
			Size:      info.Size,
			CreatedAt: info.ModTime,
			Adopted:   true,
		}); err != nil {
			s.logger.Warnw("failed to adopt audio object", "name", info.Name, "error", err)
		}
	}
	return evicted, nil
}

func (s *MediaService) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// Run sweeps once immediately and then every SweepInterval until ctx is done.
func (s *MediaService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Errorw("audio sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
