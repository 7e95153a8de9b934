package session

import (
	"go.aimuz.me/polyvox/playback"
)

// PlayAudio speaks output slot i. Playing the slot that is already
// speaking stops it instead.
func (s *Session) PlayAudio(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.state.OutputLanguages) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	out := s.state.OutputLanguages[i]
	s.state.SpeechError = ""
	s.mu.Unlock()
	s.notify()

	if err := s.player.Play(out.Text, out.Code, i); err != nil {
		s.update(func(st *State) { st.SpeechError = err.Error() })
		return err
	}
	return nil
}

// StopSpeaking stops playback. It is a no-op when nothing is speaking.
func (s *Session) StopSpeaking() {
	s.player.Stop()
}

// DownloadAudio renders output slot i to an audio file payload.
func (s *Session) DownloadAudio(i int) (*playback.Audio, error) {
	s.mu.Lock()
	if i < 0 || i >= len(s.state.OutputLanguages) {
		s.mu.Unlock()
		return nil, ErrIndexOutOfRange
	}
	out := s.state.OutputLanguages[i]
	s.mu.Unlock()

	return s.player.Download(s.ctx, out.Text, out.Code)
}

func (s *Session) onSpeaking(speaking bool, slot int) {
	var err error
	if !speaking {
		err = s.player.Err()
	}
	s.update(func(st *State) {
		st.IsSpeaking = speaking
		st.PlayingIndex = slot
		if err != nil {
			st.SpeechError = err.Error()
		}
	})
}

func (s *Session) onCorrecting(correcting bool) {
	s.update(func(st *State) { st.IsCorrectingGrammar = correcting })
}
