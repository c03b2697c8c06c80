package session

import (
	"fmt"
	"slices"

	"wepp/internal/erp"
	"wepp/internal/logging"
	"wepp/internal/notifications"
	"wepp/internal/project"
	"wepp/internal/services"
	"wepp/internal/workspace"
)

// SelectRecording loads recording i and shows its first segment. Selecting
// the current recording is a no-op.
func (s *Session) SelectRecording(i int) error {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if i < 0 || i >= len(s.names) {
		return services.Wrap(services.ErrValidation, "session", "select recording",
			fmt.Sprintf("recording %d out of range [0,%d)", i, len(s.names)), nil)
	}
	if i == s.position.Recording {
		return nil
	}
	if err := s.loadRecording(i); err != nil {
		return err
	}
	s.enterSegment(0)
	return nil
}

// SelectSegment shows segment j of the current recording. Selecting the
// current segment is a no-op.
func (s *Session) SelectSegment(j int) error {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if j < 0 || j >= len(s.rec.Segments) {
		return services.Wrap(services.ErrValidation, "session", "select segment",
			fmt.Sprintf("segment %d out of range [0,%d)", j, len(s.rec.Segments)), nil)
	}
	if j == s.position.Segment {
		return nil
	}
	s.enterSegment(j)
	return nil
}

// Next moves to the following segment, continuing with the first segment of
// the next recording. It reports false at the end of the dataset.
func (s *Session) Next() (bool, error) {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return false, err
	}
	return s.next()
}

// Prev moves to the preceding segment, continuing with the last segment of
// the previous recording. It reports false at the start of the dataset.
func (s *Session) Prev() (bool, error) {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return false, err
	}
	if s.position.Segment > 0 {
		s.enterSegment(s.position.Segment - 1)
		return true, nil
	}
	if s.position.Recording == 0 {
		return false, nil
	}
	if err := s.loadRecording(s.position.Recording - 1); err != nil {
		return false, err
	}
	s.enterSegment(len(s.rec.Segments) - 1)
	return true, nil
}

func (s *Session) next() (bool, error) {
	if s.position.Segment < len(s.rec.Segments)-1 {
		s.enterSegment(s.position.Segment + 1)
		return true, nil
	}
	if s.position.Recording >= len(s.names)-1 {
		return false, nil
	}
	if err := s.loadRecording(s.position.Recording + 1); err != nil {
		return false, err
	}
	s.enterSegment(0)
	return true, nil
}

// loadRecording replaces the current recording and resolves its channel
// selection. The position is only moved once the file loaded.
func (s *Session) loadRecording(i int) error {
	rec, err := s.loader(s.listing.Recordings[i])
	if err != nil {
		return fmt.Errorf("load recording %s: %w", s.names[i], err)
	}
	if len(rec.Segments) == 0 {
		return services.Wrap(services.ErrValidation, "session", "load recording",
			fmt.Sprintf("%s has no segments", s.names[i]), nil)
	}
	s.rec = rec
	s.position = workspace.Position{Recording: i}
	s.selected = s.resolveSelection()

	s.logger.Info("recording loaded",
		logging.String(logging.FieldRecording, rec.Name),
		logging.Int("index", i),
		logging.Int("segments", len(rec.Segments)),
		logging.Int("channels", len(rec.Channels)),
		logging.Int("selected", len(s.selected)),
	)
	s.outbox.Emit(notifications.Event{Kind: notifications.NewRecording, Recording: i})
	return nil
}

func (s *Session) resolveSelection() []int {
	if len(s.channels) > 0 {
		selected, unknown := s.rec.SelectionByName(s.channels)
		if len(unknown) > 0 {
			logging.WarnWithContext(s.logger, "configured channels missing from recording", "channel_missing",
				logging.String(logging.FieldRecording, s.rec.Name),
				logging.Any("channels", unknown),
				logging.String(logging.FieldErrorHint, "check picking.channels against the recording's chans"),
				logging.String(logging.FieldImpact, "missing channels are not annotated"),
			)
		}
		if len(selected) > 0 {
			return selected
		}
	}
	return s.settings.Selection(s.rec)
}

// enterSegment shows segment j: staging is reset, a visited cell is restored,
// and an unvisited one gets the default windows picked.
func (s *Session) enterSegment(j int) {
	s.position.Segment = j
	s.staging.ResetSegment()

	restored := s.staging.RestoreIfVisited(s.archive, s.position.Recording, j)
	if !restored {
		for _, dw := range s.defaultWindows() {
			s.staging.Scan(s.rec, j, s.selected, dw.Polarity, dw.Window)
			s.staging.Commit()
		}
	}

	s.logger.Debug("segment shown",
		logging.String(logging.FieldRecording, s.rec.Name),
		logging.String(logging.FieldSegment, s.rec.Segments[j].Name),
		logging.Bool("restored", restored),
		logging.Int("picked", len(s.staging.Picked())),
	)
	s.outbox.Emit(notifications.Event{
		Kind:      notifications.NewSegment,
		Recording: s.position.Recording,
		Segment:   j,
		Channels:  slices.Clone(s.selected),
		Peaks:     s.staging.Picked(),
	})
}

func (s *Session) defaultWindows() []project.DefaultWindow {
	if len(s.settings.DefaultWindows) > 0 {
		return s.settings.DefaultWindows
	}
	return s.windows
}

// ToggleChannel adds or removes channel i from the selection.
func (s *Session) ToggleChannel(i int) error {
	s.lock()
	defer s.unlock()
	if err := s.requireOpen(); err != nil {
		return err
	}
	if i < 0 || i >= len(s.rec.Channels) {
		return services.Wrap(services.ErrValidation, "session", "toggle channel",
			fmt.Sprintf("channel %d out of range [0,%d)", i, len(s.rec.Channels)), nil)
	}
	if idx := slices.Index(s.selected, i); idx >= 0 {
		s.selected = slices.Delete(s.selected, idx, idx+1)
	} else {
		s.selected = append(s.selected, i)
		slices.Sort(s.selected)
	}
	s.settings.SelectedChannels = erp.Mask(s.selected, len(s.rec.Channels))

	s.logger.Info("channel selection changed",
		logging.String(logging.FieldChannel, s.rec.Channels[i]),
		logging.Int("selected", len(s.selected)),
	)
	s.outbox.Emit(notifications.Event{
		Kind:      notifications.ChannelSelectionChanged,
		Recording: s.position.Recording,
		Segment:   s.position.Segment,
		Channels:  slices.Clone(s.selected),
	})
	return nil
}
