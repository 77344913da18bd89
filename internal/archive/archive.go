// Package archive stores finished manager call transcripts in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"curbside_relay/internal/adapters/storage"
	"curbside_relay/internal/relay/domain"
)

const contentTypeJSON = "application/json"

var ErrInvalidCallID = errors.New("invalid call id")

// Record is the archived form of a call.
type Record struct {
	CallID          string    `json:"callId"`
	Transcript      string    `json:"transcript"`
	Summary         string    `json:"summary"`
	EndedReason     string    `json:"endedReason,omitempty"`
	DurationSeconds int       `json:"durationSeconds"`
	ArchivedAt      time.Time `json:"archivedAt"`
}

// CallArchive writes one JSON object per call under calls/<callID>.json.
type CallArchive struct {
	store  storage.ObjectStore
	bucket string
	now    func() time.Time
}

func New(store storage.ObjectStore, bucket string) *CallArchive {
	return &CallArchive{store: store, bucket: bucket, now: time.Now}
}

// Key returns the object key for a call.
func Key(callID string) (string, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" || strings.ContainsAny(callID, "/\\") || strings.Contains(callID, "..") {
		return "", ErrInvalidCallID
	}
	return "calls/" + callID + ".json", nil
}

func (a *CallArchive) ArchiveCall(ctx context.Context, completion domain.CallCompletion) error {
	key, err := Key(completion.CallID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Record{
		CallID:          completion.CallID,
		Transcript:      completion.Transcript,
		Summary:         completion.Summary,
		EndedReason:     completion.EndedReason,
		DurationSeconds: completion.DurationSeconds,
		ArchivedAt:      a.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode call record: %w", err)
	}
	return a.store.PutObject(ctx, a.bucket, key, contentTypeJSON, bytes.NewReader(body), int64(len(body)))
}

// Load reads an archived call back.
func (a *CallArchive) Load(ctx context.Context, callID string) (Record, error) {
	key, err := Key(callID)
	if err != nil {
		return Record{}, err
	}
	rc, err := a.store.DownloadFile(ctx, a.bucket, key)
	if err != nil {
		return Record{}, err
	}
	defer rc.Close()

	var rec Record
	if err := json.NewDecoder(rc).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decode call record %s: %w", key, err)
	}
	return rec, nil
}

// DownloadURL returns a short-lived link to the archived call.
func (a *CallArchive) DownloadURL(ctx context.Context, callID string) (*storage.PresignedURL, error) {
	key, err := Key(callID)
	if err != nil {
		return nil, err
	}
	return a.store.GenerateDownloadURL(ctx, a.bucket, key)
}
