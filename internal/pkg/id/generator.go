package id

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// FingerprintLength is the length of a dataset fingerprint in hex characters
const FingerprintLength = 2 * blake2b.Size256

// rowBufPool reuses encoding buffers for row seeds
var rowBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

// NewRunID generates a new training run identifier
func NewRunID() uuid.UUID {
	return uuid.New()
}

// NewJobID generates a new identifier for a background explanation job
func NewJobID() uuid.UUID {
	return uuid.New()
}

// ParseID parses a run or job identifier
func ParseID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// DatasetFingerprint returns the hex BLAKE2b-256 digest of a serialized
// dataset. Identical payloads always map to the same fingerprint.
func DatasetFingerprint(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ValidateFingerprint reports whether s looks like a dataset fingerprint
func ValidateFingerprint(s string) bool {
	if len(s) != FingerprintLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// RowSeed derives a generator seed from the exact bit pattern of a feature
// row, salted so different callers get independent streams. -0 and +0 are
// treated as distinct values.
func RowSeed(salt uint64, row []float64) uint64 {
	bufPtr := rowBufPool.Get().(*[]byte)
	defer rowBufPool.Put(bufPtr)

	buf := binary.LittleEndian.AppendUint64((*bufPtr)[:0], salt)
	for _, v := range row {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	*bufPtr = buf

	sum := blake2b.Sum256(buf)
	return binary.LittleEndian.Uint64(sum[:8])
}
