package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/readaloud/readaloud/tts/sentence"
)

// KeyVersion prefixes every cache key so the on-disk layout can be
// migrated without colliding with older entries.
const KeyVersion = "v1"

// Key derives the deterministic cache key for one
// (sentence text, voice, preset) tuple. The text is normalized first,
// so two requests that differ only in whitespace map to the same key.
// Keys are stable across process restarts.
func Key(text, voice, preset string) string {
	input := fmt.Sprintf("%s|%s|%s", sentence.Normalize(text), voice, preset)
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%s_%s", KeyVersion, hex.EncodeToString(sum[:]))
}
