package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/mr-tron/base58"

	"fairrate/internal/domain"
)

// fingerprintScale rounds grid rates to 1e-10 before hashing so that
// float noise below that does not change the fingerprint.
const fingerprintScale = 1e10

// CurveFingerprint computes a deterministic identifier for a curve's content.
// Formula: base58(SHA256(reference_date|method|n|nominal...|real...)) with
// each rate rounded to 1e-10.
// Curves with equal content share a fingerprint regardless of BuiltAt.
func CurveFingerprint(c *domain.Curve) string {
	h := sha256.New()
	h.Write([]byte(c.ReferenceDate.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(c.Method.String()))
	h.Write([]byte{'|'})

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(c.Len()))
	h.Write(buf[:])

	for _, series := range [][]float64{c.Nominal, c.Real} {
		for _, v := range series {
			binary.BigEndian.PutUint64(buf[:], uint64(int64(math.Round(v*fingerprintScale))))
			h.Write(buf[:])
		}
	}

	return base58.Encode(h.Sum(nil))
}

// DocumentDigest returns the hex SHA256 of a source document body.
func DocumentDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
