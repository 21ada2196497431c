package apikeys

import (
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrNoKeysAvailable = errors.New("no API keys available")
var ErrAllKeysExhausted = errors.New("all available API keys have been exhausted")

// KeyManager rotates through a pool of API keys.
type KeyManager struct {
	keys         []string
	currentIndex int
	mutex        sync.Mutex
}

// NewManager drops blank keys and fails when none remain.
func NewManager(keys []string) (*KeyManager, error) {
	var clean []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoKeysAvailable
	}
	return &KeyManager{keys: clean}, nil
}

// ParseList splits a comma-separated key list, as found in GEMINI_API_KEYS.
// Blank entries are dropped.
func ParseList(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func (km *KeyManager) GetCurrentKey() string {
	km.mutex.Lock()
	defer km.mutex.Unlock()
	return km.keys[km.currentIndex]
}

// RotateKey moves to the next key. After the last key it wraps to the first
// and returns ErrAllKeysExhausted.
func (km *KeyManager) RotateKey() error {
	km.mutex.Lock()
	defer km.mutex.Unlock()

	failed := km.currentIndex + 1
	km.currentIndex++
	if km.currentIndex >= len(km.keys) {
		km.currentIndex = 0
		logrus.WithField("keys", len(km.keys)).Warn("All API keys have been tried and failed")
		return ErrAllKeysExhausted
	}

	logrus.WithFields(logrus.Fields{
		"failed": failed,
		"next":   km.currentIndex + 1,
	}).Info("Rotated API key")
	return nil
}

// Len is how many attempts a caller should make before giving up.
func (km *KeyManager) Len() int {
	return len(km.keys)
}
