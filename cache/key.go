package cache

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// MaxKeyLength is the longest key stored verbatim. Longer keys are shortened
// to a prefix plus a digest of the full key.
const MaxKeyLength = 250

// Key builds the cache key for a logical name and its ordered parameter
// values: name:v1_v2_... The same name and values always yield the same key,
// across processes and restarts.
func Key(name string, values ...string) string {
	key := name + ":" + strings.Join(values, "_")
	if len(key) <= MaxKeyLength {
		return key
	}
	digest := strconv.FormatUint(xxhash.Sum64String(key), 16)
	n := MaxKeyLength - len(digest) - 1
	for n > 0 && !utf8.RuneStart(key[n]) {
		n--
	}
	return key[:n] + "#" + digest
}
