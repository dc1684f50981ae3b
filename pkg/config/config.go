package config

import (
	"sync"
)

var (
	// globalSettings is the singleton settings instance
	globalSettings *Settings
	globalMu       sync.Mutex
)

// Initialize loads the global settings.
// This should be called once at application startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	settings, err := Load(configPath)
	if err != nil {
		return err
	}

	globalSettings = settings
	return nil
}

// Get returns the global settings.
// Falls back to defaults when Initialize has not been called.
func Get() *Settings {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSettings == nil {
		return DefaultSettings()
	}
	return globalSettings
}

// IsInitialized returns true if the global settings have been loaded.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalSettings != nil
}

// Reset clears the global settings.
func Reset() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalSettings = nil
}
