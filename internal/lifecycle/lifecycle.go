// Package lifecycle turns validated send requests into broadcastable
// messages and decides their expiry treatment: durable-store mirrors for
// ttl > 0, burn-after-reading notices for ttl == 0, and deferred blob
// deletion for images.
package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
	"github.com/REZ3X/ghostchat-backend/internal/blob"
	"github.com/REZ3X/ghostchat-backend/internal/metrics"
	"github.com/REZ3X/ghostchat-backend/internal/models"
	"github.com/REZ3X/ghostchat-backend/internal/room"
	"github.com/REZ3X/ghostchat-backend/internal/schedule"
	"github.com/REZ3X/ghostchat-backend/internal/store"
)

const (
	// BurnNoticeDelay is how long after broadcast a burn-after-reading
	// message's expiry notice goes out.
	BurnNoticeDelay = 2 * time.Second

	// BurnBlobGrace is the blob deletion delay for burn-after-reading
	// images: longer than the notice so slow clients can still render
	// the image before it vanishes.
	BurnBlobGrace = 30 * time.Second

	mirrorTimeout = 5 * time.Second
)

// Manager builds messages and owns their persistence side effects.
// The durable store may be nil; live delivery works without it.
type Manager struct {
	store  store.MessageStore
	blobs  blob.Store
	sched  *schedule.Scheduler
	logger zerolog.Logger
	now    func() time.Time

	mirrors sync.WaitGroup
}

// NewManager wires the lifecycle manager. msgStore may be nil when no
// durable store is configured.
func NewManager(msgStore store.MessageStore, blobs blob.Store, sched *schedule.Scheduler, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  msgStore,
		blobs:  blobs,
		sched:  sched,
		logger: logger.With().Str("component", "lifecycle").Logger(),
		now:    time.Now,
	}
}

// SetClock overrides the manager's time source. Test use only.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Flush waits for in-flight mirror writes. Used by tests and shutdown.
func (m *Manager) Flush() { m.mirrors.Wait() }

// TextRequest is a validated-on-entry text send.
type TextRequest struct {
	RoomToken string
	Message   string
	Sender    string
	TTL       int
}

// SendText builds a text message and mirrors it to the durable store when
// ttl > 0. Mirror failures degrade history, never the send.
func (m *Manager) SendText(ctx context.Context, req TextRequest) (*models.Message, error) {
	if req.RoomToken == "" || req.Message == "" || req.Sender == "" {
		return nil, apperr.New(apperr.InvalidRequest, "Missing required message data")
	}
	if !room.IsValidToken(req.RoomToken) {
		return nil, apperr.New(apperr.InvalidRequest, "Invalid room token")
	}
	if req.TTL < 0 {
		return nil, apperr.New(apperr.InvalidRequest, "ttl must be >= 0")
	}

	msg := &models.Message{
		ID:        newMessageID(),
		Type:      models.TypeText,
		Message:   req.Message,
		Sender:    req.Sender,
		Timestamp: m.timestamp(),
		TTL:       req.TTL,
		RoomToken: req.RoomToken,
	}

	if msg.TTL > 0 {
		m.mirror(msg)
	}

	metrics.MessagesSent.WithLabelValues(models.TypeText).Inc()
	return msg, nil
}

// ImageRequest is an inline image send from the connection protocol.
type ImageRequest struct {
	RoomToken string
	Image     *models.ImageMeta
	Sender    string
	TTL       int
	Caption   string
}

// SendImage validates, writes the decoded bytes to the blob store, arms
// deferred deletion, and mirrors metadata (never bytes) when ttl > 0.
// Validation happens before any write; a rejected request leaves no
// partial state behind.
func (m *Manager) SendImage(ctx context.Context, req ImageRequest) (*models.Message, error) {
	if req.RoomToken == "" || req.Image == nil || req.Image.Data == "" || req.Sender == "" {
		return nil, apperr.New(apperr.InvalidRequest, "Missing required image data")
	}
	if !room.IsValidToken(req.RoomToken) {
		return nil, apperr.New(apperr.InvalidRequest, "Invalid room token")
	}
	if req.TTL < 0 {
		return nil, apperr.New(apperr.InvalidRequest, "ttl must be >= 0")
	}

	data, err := decodeImagePayload(req.Image.Data)
	if err != nil {
		return nil, apperr.New(apperr.InvalidRequest, "Invalid image payload")
	}
	if err := validateImage(req.Image.Name, req.Image.MimeType, int64(len(data))); err != nil {
		return nil, err
	}

	msgID := newMessageID()
	filename := secureFilename(req.Image.Name, msgID, m.now())

	if err := m.blobs.Write(filename, data); err != nil {
		m.logger.Error().Err(err).Str("filename", filename).Msg("blob write failed")
		return nil, err
	}
	m.ScheduleDeletion(filename, req.TTL)

	meta := *req.Image
	meta.Data = ""
	meta.Filename = filename
	meta.ImageURL = "/api/image/" + filename
	meta.Size = int64(len(data))

	msg := &models.Message{
		ID:        msgID,
		Type:      models.TypeImage,
		ImageData: &meta,
		Caption:   req.Caption,
		Sender:    req.Sender,
		Timestamp: m.timestamp(),
		TTL:       req.TTL,
		RoomToken: req.RoomToken,
	}

	if msg.TTL > 0 {
		m.mirror(msg)
	}

	metrics.MessagesSent.WithLabelValues(models.TypeImage).Inc()
	return msg, nil
}

// StoreUpload handles the multipart upload path: same validation, secure
// filename and deletion scheduling as SendImage, without building a
// message. The returned metadata is what the client later attaches to a
// send-image event.
func (m *Manager) StoreUpload(originalName, mimeType string, data []byte, messageID string, ttl int) (*models.ImageMeta, error) {
	if ttl < 0 {
		ttl = models.DefaultTTL
	}
	if err := validateImage(originalName, mimeType, int64(len(data))); err != nil {
		return nil, err
	}
	if messageID == "" {
		messageID = newUploadID()
	}

	filename := secureFilename(originalName, messageID, m.now())
	if err := m.blobs.Write(filename, data); err != nil {
		return nil, err
	}
	m.ScheduleDeletion(filename, ttl)

	return &models.ImageMeta{
		ID:       messageID,
		Name:     originalName,
		Filename: filename,
		ImageURL: "/api/image/" + filename,
		Size:     int64(len(data)),
		MimeType: mimeType,
	}, nil
}

// ScheduleDeletion arms exactly one deferred deletion for a blob: 30
// seconds for burn-after-reading, ttl seconds otherwise. The callback
// tolerates the blob already being gone.
func (m *Manager) ScheduleDeletion(filename string, ttl int) schedule.TaskID {
	delay := time.Duration(ttl) * time.Second
	reason := "ttl"
	if ttl == 0 {
		delay = BurnBlobGrace
		reason = "burn"
	}
	return m.sched.Schedule(delay, func() {
		removed, err := m.blobs.Delete(filename)
		if err != nil {
			m.logger.Warn().Err(err).Str("filename", filename).Msg("scheduled blob deletion failed")
			return
		}
		if !removed {
			// Janitor or manual delete got there first.
			return
		}
		metrics.BlobsDeleted.WithLabelValues(reason).Inc()
		m.logger.Debug().Str("filename", filename).Str("reason", reason).Msg("deleted blob")
	})
}

// mirror writes the message to the durable store asynchronously. Image
// payload bytes were already stripped by the caller.
func (m *Manager) mirror(msg *models.Message) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("mirror marshal failed")
		return
	}
	key := store.MessageKey(msg.RoomToken, msg.ID)
	ttl := time.Duration(msg.TTL) * time.Second

	m.mirrors.Add(1)
	go func() {
		defer m.mirrors.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := m.store.SetWithExpiry(ctx, key, string(data), ttl); err != nil {
			metrics.MirrorFailures.Inc()
			m.logger.Warn().Err(err).Str("key", key).Msg("store mirror failed, continuing without persistence")
		}
	}()
}

func (m *Manager) timestamp() string {
	return m.now().UTC().Format(time.RFC3339Nano)
}

func newMessageID() string {
	return "msg_" + ulid.Make().String()
}
