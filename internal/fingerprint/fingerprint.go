// Package fingerprint derives stable content fingerprints used for
// cache keys and re-identification of recycled stream nodes.
package fingerprint

import (
	"fmt"
	"hash/fnv"
)

// Hash returns the FNV-1a 32-bit digest of text rendered as 8-char lower hex.
// It is seedless, so fingerprints persisted to durable storage remain valid
// across process restarts. Equal text always yields an equal fingerprint;
// collisions are tolerated and treated as identical content.
func Hash(text string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%08x", h.Sum32())
}
