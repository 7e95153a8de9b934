package app

import (
	"fmt"

	"go.aimuz.me/polyvox/config"
	"go.aimuz.me/polyvox/internal/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// Backend
// ─────────────────────────────────────────────────────────────────────────────

// GetBackend returns the translation backend settings.
func (s *Service) GetBackend() config.Backend {
	return s.cfg.Backend
}

// SetBackend switches the translation backend.
func (s *Service) SetBackend(b config.Backend) error {
	switch b.Mode {
	case config.BackendHTTP, config.BackendDirect:
	default:
		return fmt.Errorf("unknown backend mode %q", b.Mode)
	}
	if b.BaseURL == "" {
		b.BaseURL = config.DefaultAPIBase
	}
	s.cfg.Backend = b
	if err := s.cfg.Save(); err != nil {
		return err
	}
	s.reloadBackend()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Credential Management (Delegated to Config)
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentials returns all API credentials.
func (s *Service) GetCredentials() []types.APICredential {
	return s.cfg.GetCredentials()
}

// AddCredential adds a new API credential.
func (s *Service) AddCredential(cred types.APICredential) error {
	return s.cfg.AddCredential(cred)
}

// UpdateCredential updates an existing credential.
func (s *Service) UpdateCredential(id string, cred types.APICredential) error {
	return s.reloadAfter(s.cfg.UpdateCredential(id, cred))
}

// RemoveCredential removes a credential.
func (s *Service) RemoveCredential(id string) error {
	return s.cfg.RemoveCredential(id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Translation Profile Management
// ─────────────────────────────────────────────────────────────────────────────

// GetTranslationProfiles returns all translation profiles.
func (s *Service) GetTranslationProfiles() []types.TranslationProfile {
	return s.cfg.GetTranslationProfiles()
}

// GetActiveTranslationProfile returns the active translation profile.
func (s *Service) GetActiveTranslationProfile() *types.TranslationProfile {
	return s.cfg.GetActiveTranslationProfile()
}

// AddTranslationProfile adds a new translation profile.
func (s *Service) AddTranslationProfile(profile types.TranslationProfile) error {
	return s.reloadAfter(s.cfg.AddTranslationProfile(profile))
}

// UpdateTranslationProfile updates an existing translation profile.
func (s *Service) UpdateTranslationProfile(id string, profile types.TranslationProfile) error {
	return s.reloadAfter(s.cfg.UpdateTranslationProfile(id, profile))
}

// RemoveTranslationProfile removes a translation profile.
func (s *Service) RemoveTranslationProfile(id string) error {
	return s.reloadAfter(s.cfg.RemoveTranslationProfile(id))
}

// SetTranslationProfileActive sets a translation profile as active.
func (s *Service) SetTranslationProfileActive(id string) error {
	return s.reloadAfter(s.cfg.SetTranslationProfileActive(id))
}

// ─────────────────────────────────────────────────────────────────────────────
// Speech Configuration
// ─────────────────────────────────────────────────────────────────────────────

// GetSpeechConfig returns the speech configuration.
func (s *Service) GetSpeechConfig() *types.SpeechConfig {
	return s.cfg.GetSpeechConfig()
}

// SetSpeechConfig sets the speech configuration. It applies to the next
// recording.
func (s *Service) SetSpeechConfig(cfg types.SpeechConfig) error {
	return s.cfg.SetSpeechConfig(cfg)
}

// reloadAfter rebuilds the direct backend once a profile change is saved.
func (s *Service) reloadAfter(err error) error {
	if err != nil {
		return err
	}
	if s.cfg.Backend.Mode == config.BackendDirect {
		s.reloadBackend()
	}
	return nil
}
