package session

import (
	"context"
	"errors"
	"fmt"

	"wepp/internal/archive"
	"wepp/internal/logging"
	"wepp/internal/notifications"
	"wepp/internal/peaks"
	"wepp/internal/services"
	"wepp/internal/workspace"
)

// Highlight replaces any in-progress selection with the peaks found in w on
// every selected channel of the current segment.
func (s *Session) Highlight(pol peaks.Polarity, w peaks.Window) ([]peaks.Record, error) {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if !pol.Valid() {
		return nil, services.Wrap(services.ErrValidation, "session", "highlight", "unknown polarity", nil)
	}
	if w.Start >= w.End {
		return nil, services.Wrap(services.ErrValidation, "session", "highlight",
			fmt.Sprintf("window %s: start must be before end", w), nil)
	}
	s.staging.Discard()
	return s.staging.Scan(s.rec, s.position.Segment, s.selected, pol, w), nil
}

// EndSelection commits the highlighted peaks into the picked set.
func (s *Session) EndSelection() error {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	s.staging.Commit()
	return nil
}

// CancelSelection drops the highlighted peaks.
func (s *Session) CancelSelection() {
	s.lock()
	defer s.unlock()
	s.staging.Discard()
}

// DeletePick removes one picked peak from the current segment.
func (s *Session) DeletePick(recordID int64) bool {
	s.lock()
	defer s.unlock()
	return s.staging.Delete(recordID)
}

// Outcome describes what AcceptAndNext did.
type Outcome struct {
	Saved    workspace.Position
	Count    int
	Moved    bool
	Uploaded bool
	Complete bool
}

// AcceptAndNext saves the picked peaks of the current segment, persists the
// session and moves to the next segment. Non-empty notes overwrite the notes
// of every picked peak first. Finishing a recording, or the whole dataset,
// sends everything not yet synced.
func (s *Session) AcceptAndNext(ctx context.Context, notes string) (Outcome, error) {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return Outcome{}, err
	}

	s.staging.Discard()
	if notes != "" {
		s.staging.SetNotes(notes)
	}
	picked := s.staging.Picked()
	pos := s.position
	wasComplete := s.archive.Complete()
	s.archive.Save(pos.Recording, pos.Segment, picked, len(s.rec.Segments))

	out := Outcome{Saved: pos, Count: len(picked), Complete: s.archive.Complete()}
	lastSegment := pos.Segment == len(s.rec.Segments)-1
	justCompleted := out.Complete && !wasComplete

	s.logger.Info("segment saved",
		logging.String(logging.FieldRecording, s.rec.Name),
		logging.String(logging.FieldSegment, s.rec.Segments[pos.Segment].Name),
		logging.Int("peaks", len(picked)),
		logging.Float64("progress", s.archive.Progress()),
	)

	if lastSegment || justCompleted {
		out.Uploaded = s.upload()
	}

	// The save is persisted even when the next recording fails to load.
	moved, navErr := s.next()
	out.Moved = moved
	if err := s.persist(ctx); err != nil {
		return out, errors.Join(navErr, err)
	}
	return out, navErr
}

// Sync prepares an upload of everything not yet confirmed and hands it to the
// sync client. The returned upload is Empty when nothing is pending.
func (s *Session) Sync(ctx context.Context) (archive.Upload, error) {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return archive.Upload{}, err
	}
	up := s.archive.PrepareUpload()
	if !up.Empty && s.sync != nil {
		s.sync.Send(up)
	}
	return up, s.persist(ctx)
}

// upload sends the unsynced archive and reports whether anything was handed
// to the sync client.
func (s *Session) upload() bool {
	if s.sync == nil {
		return false
	}
	up := s.archive.PrepareUpload()
	if up.Empty {
		return false
	}
	s.logger.Info("upload prepared",
		logging.Int("records", len(up.Records)),
		logging.Int("watermark", up.Watermark),
	)
	s.sync.Send(up)
	return true
}

// onSyncResponse confirms the upload a successful response answers. Responses
// to uploads superseded by a newer prepare are ignored; the newer upload
// carries their records.
func (s *Session) onSyncResponse(e notifications.Event) {
	s.lock()
	defer s.unlock()
	if !e.Succeeded() {
		return
	}
	if e.UploadID != s.archive.PendingID() {
		s.logger.Debug("stale sync response ignored",
			logging.Int("upload_id", int(e.UploadID)),
			logging.Int("pending_id", int(s.archive.PendingID())),
		)
		return
	}
	s.archive.ConfirmUpload()
	s.logger.Info("upload confirmed",
		logging.Int("count", e.Count),
		logging.Int("uploaded", s.archive.Watermark().Uploaded),
	)
	if err := s.persist(context.Background()); err != nil {
		logging.WarnWithContext(s.logger, "failed to persist confirmed upload", "workspace_save_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "confirmed records may be uploaded again after restart"),
		)
	}
}

func (s *Session) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	state := workspace.State{
		Dataset:    s.listing.Dir,
		Recordings: append([]string(nil), s.names...),
		NextID:     s.staging.NextID(),
		Position:   s.position,
		Archive:    s.archive.Snapshot(),
	}
	if err := s.store.Save(ctx, state); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
