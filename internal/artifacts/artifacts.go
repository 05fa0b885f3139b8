// Package artifacts provides content-keyed file storage that hides real
// filesystem paths behind opaque IDs. Tool results too large to inline are
// offloaded here; the LLM only ever sees the artifact ID, a size, and a
// summary.
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/haasonsaas/conduit/pkg/contract"
)

// IDPrefix is the fixed prefix of every artifact ID.
const IDPrefix = "artifact_"

// idHexLen is the number of content-hash hex characters in an ID.
const idHexLen = 16

// IDLength is the exact length of a valid artifact ID.
const IDLength = len(IDPrefix) + idHexLen

// Metadata describes a stored artifact. The mapping from artifact ID to the
// real path stays inside this package; Metadata never carries a path.
type Metadata struct {
	ArtifactID string    `json:"artifact_id"`
	Filename   string    `json:"filename"`
	CreatedAt  time.Time `json:"created_at"`
	SizeBytes  int64     `json:"size_bytes"`
	Hash       string    `json:"hash"`
	ToolName   string    `json:"tool_name"`
	Summary    string    `json:"summary"`
}

// ArtifactID derives the deterministic ID for a payload: the fixed prefix
// plus the first 16 hex characters of the payload's SHA-256. Storing the same
// payload twice yields the same ID.
func ArtifactID(data []byte) string {
	sum := sha256.Sum256(data)
	return IDPrefix + hex.EncodeToString(sum[:])[:idHexLen]
}

// ContentHash returns the full SHA-256 hex digest of a payload.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateID rejects any ID that could escape the artifact namespace, before
// any file I/O happens: wrong prefix, wrong length, path separators, parent
// references, or non-hex characters all fail with a security error.
func ValidateID(id string) error {
	if !strings.HasPrefix(id, IDPrefix) {
		return contract.NewError(contract.ErrSecurity, "invalid artifact id format")
	}
	if len(id) != IDLength {
		return contract.NewError(contract.ErrSecurity, "invalid artifact id length")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return contract.NewError(contract.ErrSecurity, "artifact id contains path characters")
	}
	for _, c := range id[len(IDPrefix):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return contract.NewError(contract.ErrSecurity, "artifact id contains invalid characters")
		}
	}
	return nil
}
