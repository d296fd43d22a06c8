package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/chatsync/internal/api"
	"gwi.com/chatsync/internal/events"
	"gwi.com/chatsync/internal/store"
)

const DefaultUploadStatusTTL = 3 * time.Second

// ErrUploadInProgress rejects an upload while another one is running.
var ErrUploadInProgress = errors.New("an upload is already in progress")

type Uploader interface {
	UploadFile(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

type UploadFile struct {
	Name        string
	Data        []byte
	ContentType string
}

// UploadService runs one upload at a time and exposes its progress as an
// UploadStatus. Success and failure statuses fall back to idle after ttl.
type UploadService struct {
	uploader Uploader
	events   events.Publisher
	ttl      time.Duration

	mu         sync.Mutex
	status     store.UploadStatus
	generation uint64
	revert     *time.Timer
}

func NewUploadService(uploader Uploader, publisher events.Publisher, ttl time.Duration) *UploadService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if ttl <= 0 {
		ttl = DefaultUploadStatusTTL
	}
	return &UploadService{
		uploader: uploader,
		events:   publisher,
		ttl:      ttl,
		status:   store.UploadStatus{State: store.UploadIdle},
	}
}

func (u *UploadService) Status() store.UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Upload sends f to the backend and returns the terminal status it reached.
// A failed request is reported through the status, not the error; the error
// is only set when the upload was refused locally.
func (u *UploadService) Upload(ctx context.Context, f UploadFile) (store.UploadStatus, error) {
	u.mu.Lock()
	if u.status.State == store.UploadUploading {
		u.mu.Unlock()
		return store.UploadStatus{}, ErrUploadInProgress
	}
	if u.revert != nil {
		u.revert.Stop()
		u.revert = nil
	}
	u.generation++
	gen := u.generation
	u.status = store.UploadStatus{State: store.UploadUploading, Message: fmt.Sprintf("Uploading %s...", f.Name)}
	started := u.status
	u.mu.Unlock()
	u.publish(started)

	contentType := f.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(f.Data).String()
	}

	msg, err := u.uploader.UploadFile(ctx, f.Name, contentType, f.Data)
	var next store.UploadStatus
	if err != nil {
		log.Error().Err(err).Str("filename", f.Name).Msg("Upload failed")
		next = store.UploadStatus{State: store.UploadFailure, Message: api.ErrorMessage(err)}
	} else {
		if msg == "" {
			msg = fmt.Sprintf("File %s indexed successfully", f.Name)
		}
		log.Debug().Str("filename", f.Name).Str("content_type", contentType).Msg("Upload finished")
		next = store.UploadStatus{State: store.UploadSuccess, Message: msg}
	}

	u.mu.Lock()
	u.status = next
	u.revert = time.AfterFunc(u.ttl, func() { u.expire(gen) })
	u.mu.Unlock()
	u.publish(next)
	return next, nil
}

// expire reverts a terminal status to idle unless a newer upload started.
func (u *UploadService) expire(gen uint64) {
	u.mu.Lock()
	if gen != u.generation || !u.status.Terminal() {
		u.mu.Unlock()
		return
	}
	u.status = store.UploadStatus{State: store.UploadIdle}
	u.revert = nil
	idle := u.status
	u.mu.Unlock()
	u.publish(idle)
}

// Close stops a pending revert.
func (u *UploadService) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.revert != nil {
		u.revert.Stop()
		u.revert = nil
	}
}

func (u *UploadService) publish(status store.UploadStatus) {
	u.events.Publish(events.Event{Type: events.TypeUploadStatus, Upload: &status})
}
