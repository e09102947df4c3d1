package lifecycle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
	"github.com/REZ3X/ghostchat-backend/internal/blob"
	"github.com/REZ3X/ghostchat-backend/internal/metrics"
	"github.com/REZ3X/ghostchat-backend/internal/models"
	"github.com/REZ3X/ghostchat-backend/internal/schedule"
	"github.com/REZ3X/ghostchat-backend/internal/store"
)

type fixture struct {
	manager *Manager
	store   *store.MemoryStore
	blobs   *blob.FSStore
	clock   *schedule.VirtualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	clock := schedule.NewVirtualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	sched := schedule.New(clock, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Run(ctx)

	msgStore := store.NewMemoryStore()
	manager := NewManager(msgStore, blobs, sched, zerolog.Nop())
	manager.SetClock(clock.Now)

	return &fixture{manager: manager, store: msgStore, blobs: blobs, clock: clock}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func pngPayload(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte("not really a png but close enough"))
}

func TestSendTextMirrorsWithTTL(t *testing.T) {
	f := newFixture(t)

	msg, err := f.manager.SendText(context.Background(), TextRequest{
		RoomToken: "AB-CD-EF",
		Message:   "hello",
		Sender:    "agent1",
		TTL:       60,
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != models.TypeText || msg.ID == "" || msg.Timestamp == "" {
		t.Fatalf("incomplete message: %+v", msg)
	}

	f.manager.Flush()

	data, err := f.store.Get(context.Background(), store.MessageKey("AB-CD-EF", msg.ID))
	if err != nil {
		t.Fatalf("expected mirror in store: %v", err)
	}
	var stored models.Message
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		t.Fatal(err)
	}
	if stored.Message != "hello" || stored.TTL != 60 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestSendTextBurnNeverMirrored(t *testing.T) {
	f := newFixture(t)

	msg, err := f.manager.SendText(context.Background(), TextRequest{
		RoomToken: "AB-CD-EF",
		Message:   "secret",
		Sender:    "agent1",
		TTL:       0,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Flush()

	if _, err := f.store.Get(context.Background(), store.MessageKey("AB-CD-EF", msg.ID)); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("burn-after-reading message must not be mirrored")
	}
}

func TestSendTextValidation(t *testing.T) {
	f := newFixture(t)

	cases := []TextRequest{
		{RoomToken: "", Message: "x", Sender: "a"},
		{RoomToken: "AB-CD-EF", Message: "", Sender: "a"},
		{RoomToken: "AB-CD-EF", Message: "x", Sender: ""},
		{RoomToken: "not a token", Message: "x", Sender: "a"},
		{RoomToken: "AB-CD-EF", Message: "x", Sender: "a", TTL: -1},
	}
	for i, req := range cases {
		if _, err := f.manager.SendText(context.Background(), req); !apperr.IsKind(err, apperr.InvalidRequest) {
			t.Errorf("case %d: expected InvalidRequest, got %v", i, err)
		}
	}
}

func TestSendImageWritesBlobAndMirrorsMetadata(t *testing.T) {
	f := newFixture(t)

	msg, err := f.manager.SendImage(context.Background(), ImageRequest{
		RoomToken: "AB-CD-EF",
		Sender:    "agent1",
		TTL:       60,
		Caption:   "look",
		Image: &models.ImageMeta{
			ID:       "img_1",
			Name:     "Photo.PNG",
			MimeType: "image/png",
			Data:     pngPayload(t),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if msg.ImageData.Data != "" {
		t.Fatal("payload bytes must be stripped from the message")
	}
	if !strings.HasSuffix(msg.ImageData.Filename, ".png") {
		t.Fatalf("filename = %q, want .png extension", msg.ImageData.Filename)
	}
	if msg.ImageData.ImageURL != "/api/image/"+msg.ImageData.Filename {
		t.Fatalf("imageUrl = %q", msg.ImageData.ImageURL)
	}
	if _, err := f.blobs.Read(msg.ImageData.Filename); err != nil {
		t.Fatalf("blob missing: %v", err)
	}

	f.manager.Flush()
	data, err := f.store.Get(context.Background(), store.MessageKey("AB-CD-EF", msg.ID))
	if err != nil {
		t.Fatal(err)
	}
	var stored models.Message
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		t.Fatal(err)
	}
	if stored.ImageData == nil || stored.ImageData.Data != "" {
		t.Fatal("mirror must carry metadata only")
	}
	if stored.Caption != "look" {
		t.Fatalf("caption = %q", stored.Caption)
	}
}

func TestImageBlobDeletedAfterTTL(t *testing.T) {
	f := newFixture(t)

	msg, err := f.manager.SendImage(context.Background(), ImageRequest{
		RoomToken: "AB-CD-EF",
		Sender:    "agent1",
		TTL:       30,
		Image: &models.ImageMeta{
			Name:     "photo.jpg",
			MimeType: "image/jpeg",
			Data:     pngPayload(t),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	filename := msg.ImageData.Filename

	f.clock.Advance(29 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if _, err := f.blobs.Read(filename); err != nil {
		t.Fatal("blob deleted before its TTL")
	}

	f.clock.Advance(time.Second)
	waitFor(t, func() bool {
		_, err := f.blobs.Read(filename)
		return errors.Is(err, blob.ErrNotFound)
	})
}

func TestBurnImageUsesGraceWindow(t *testing.T) {
	f := newFixture(t)

	msg, err := f.manager.SendImage(context.Background(), ImageRequest{
		RoomToken: "AB-CD-EF",
		Sender:    "agent1",
		TTL:       0,
		Image: &models.ImageMeta{
			Name:     "photo.webp",
			MimeType: "image/webp",
			Data:     pngPayload(t),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	filename := msg.ImageData.Filename

	// Longer than the 2 s expiry notice, so slow clients can render it.
	f.clock.Advance(BurnNoticeDelay)
	time.Sleep(10 * time.Millisecond)
	if _, err := f.blobs.Read(filename); err != nil {
		t.Fatal("burn image deleted before the grace window")
	}

	f.clock.Advance(BurnBlobGrace)
	waitFor(t, func() bool {
		_, err := f.blobs.Read(filename)
		return errors.Is(err, blob.ErrNotFound)
	})
}

func TestScheduledDeletionCountsOnlyActualRemovals(t *testing.T) {
	f := newFixture(t)

	before := testutil.ToFloat64(metrics.BlobsDeleted.WithLabelValues("ttl"))

	send := func(name string) *models.Message {
		t.Helper()
		msg, err := f.manager.SendImage(context.Background(), ImageRequest{
			RoomToken: "AB-CD-EF",
			Sender:    "agent1",
			TTL:       30,
			Image: &models.ImageMeta{
				Name:     name,
				MimeType: "image/png",
				Data:     pngPayload(t),
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		return msg
	}
	first := send("a.png")
	second := send("b.png")

	// Manual removal wins the race for the first blob; its timer must not
	// account a deletion it did not perform.
	removed, err := f.blobs.Delete(first.ImageData.Filename)
	if err != nil || !removed {
		t.Fatalf("manual delete = (%v, %v)", removed, err)
	}

	f.clock.Advance(30 * time.Second)
	waitFor(t, func() bool {
		_, err := f.blobs.Read(second.ImageData.Filename)
		return errors.Is(err, blob.ErrNotFound)
	})
	waitFor(t, func() bool {
		return testutil.ToFloat64(metrics.BlobsDeleted.WithLabelValues("ttl"))-before == 1
	})

	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(metrics.BlobsDeleted.WithLabelValues("ttl")) - before; got != 1 {
		t.Fatalf("ttl deletions counted = %v, want 1", got)
	}
}

func TestSendImageRejectsDisallowedType(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.SendImage(context.Background(), ImageRequest{
		RoomToken: "AB-CD-EF",
		Sender:    "agent1",
		TTL:       60,
		Image: &models.ImageMeta{
			Name:     "payload.exe",
			MimeType: "application/octet-stream",
			Data:     pngPayload(t),
		},
	})
	if !apperr.IsKind(err, apperr.InvalidRequest) {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}

	// Validate-then-act: nothing may be written
	names, err := f.blobs.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("rejected upload left blobs behind: %v", names)
	}
}

func TestSendImageRejectsMimeMismatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.SendImage(context.Background(), ImageRequest{
		RoomToken: "AB-CD-EF",
		Sender:    "agent1",
		Image: &models.ImageMeta{
			Name:     "photo.png",
			MimeType: "text/html",
			Data:     pngPayload(t),
		},
	})
	if !apperr.IsKind(err, apperr.InvalidRequest) {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}
}

func TestStoreUploadMintsID(t *testing.T) {
	f := newFixture(t)

	meta, err := f.manager.StoreUpload("pic.gif", "image/gif", []byte("gifbytes"), "", 120)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(meta.ID, "img_") {
		t.Fatalf("id = %q, want img_ prefix", meta.ID)
	}
	if _, err := f.blobs.Read(meta.Filename); err != nil {
		t.Fatalf("blob missing: %v", err)
	}
}

func TestSecureFilenames(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := secureFilename("Holiday Photo.JPG", "msg_A", now)
	b := secureFilename("Holiday Photo.JPG", "msg_A", now)

	if a == b {
		t.Fatal("filenames must differ between calls")
	}
	if !strings.HasSuffix(a, ".jpg") {
		t.Fatalf("extension not preserved lowercase: %q", a)
	}
	if !strings.HasPrefix(a, "msg_A_") {
		t.Fatalf("filename = %q, want message id prefix", a)
	}
}

func TestDataURLPayloadAccepted(t *testing.T) {
	f := newFixture(t)

	payload := "data:image/png;base64," + pngPayload(t)
	msg, err := f.manager.SendImage(context.Background(), ImageRequest{
		RoomToken: "AB-CD-EF",
		Sender:    "agent1",
		TTL:       60,
		Image: &models.ImageMeta{
			Name:     "inline.png",
			MimeType: "image/png",
			Data:     payload,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := f.blobs.Read(msg.ImageData.Filename)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "not really a png but close enough" {
		t.Fatalf("decoded bytes = %q", data)
	}
}
