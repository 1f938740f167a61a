package infra

import (
	"errors"
	"strings"

	"github.com/abduljabar5/khushood/internal/domain"
)

// KeySpeechPermission is the store key where the companion app records the
// OS speech-recognition permission state: "granted", "denied", or
// "undetermined".
const KeySpeechPermission = "speech_permission"

// StoreSpeech implements domain.SpeechConfirmer by reading the permission
// state the companion app mirrors into the shared store. Speech capture and
// transcription themselves happen in the app; the core only receives
// transcripts as strings.
type StoreSpeech struct {
	store domain.SharedStore
}

// NewStoreSpeech creates a store-bridged speech confirmer.
func NewStoreSpeech(store domain.SharedStore) *StoreSpeech {
	return &StoreSpeech{store: store}
}

// Available returns nil when speech capture is grantable. An unrecorded
// permission counts as grantable (the OS will prompt); only a recorded
// permanent denial is an error.
func (s *StoreSpeech) Available() error {
	data, err := s.store.Get(KeySpeechPermission)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil
		}
		return err
	}

	if strings.TrimSpace(string(data)) == "denied" {
		return domain.ErrSpeechPermissionDenied
	}
	return nil
}

// Ensure StoreSpeech implements domain.SpeechConfirmer.
var _ domain.SpeechConfirmer = (*StoreSpeech)(nil)
