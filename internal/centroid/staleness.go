package centroid

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-centroids/internal/database"
)

// SourceHashLength is the stored length of the source hash. Part of the
// storage contract (VARCHAR(16) in the metadata schema). 64 bits of SHA-256
// is plenty: the hash only answers "did the contributing face set change",
// it is not load-bearing for anything beyond that.
const SourceHashLength = 16

const sourceHashDelimiter = "|"

// SourceHash computes a stable content hash over a set of face IDs. The IDs
// are sorted before hashing, so the hash depends only on set membership,
// never on retrieval order.
func SourceHash(faceIDs []int64) string {
	ids := make([]int64, len(faceIDs))
	copy(ids, faceIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(sourceHashDelimiter)
		}
		sb.WriteString(strconv.FormatInt(id, 10))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])[:SourceHashLength]
}

// IsStale reports whether a centroid record no longer matches the current
// inputs: a different embedding model, a different aggregation algorithm
// version, or a changed contributing face set. This is the sole staleness
// signal; there is no time-based expiry.
func IsStale(rec *database.PersonCentroid, currentFaceIDs []int64, modelVersion string, centroidVersion int) bool {
	if rec.ModelVersion != modelVersion {
		return true
	}
	if rec.CentroidVersion != centroidVersion {
		return true
	}
	return rec.SourceHash != SourceHash(currentFaceIDs)
}
