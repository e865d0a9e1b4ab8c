package core

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// fingerprintSep separates identity fields in the hashed encoding.
// It cannot occur in normalized text.
const fingerprintSep = "\x1f"

// Fingerprint returns the content identity of a record: hex BLAKE3-256 over
// the casefolded title, price, casefolded location and bedrooms. Volatile
// and descriptive fields never contribute.
func Fingerprint(r CanonicalRecord) string {
	beds := ""
	if r.Bedrooms != nil {
		beds = strconv.Itoa(*r.Bedrooms)
	}

	var b strings.Builder
	b.WriteString(casefold(r.Title))
	b.WriteString(fingerprintSep)
	b.WriteString(strconv.FormatInt(r.Price, 10))
	b.WriteString(fingerprintSep)
	b.WriteString(casefold(r.Location))
	b.WriteString(fingerprintSep)
	b.WriteString(beds)

	return HashBytes([]byte(b.String()))
}

// HashBytes returns the hex BLAKE3-256 digest of data.
func HashBytes(data []byte) string {
	hasher := blake3.New()
	_, _ = hasher.Write(data)
	buf := make([]byte, 32)
	_, _ = hasher.Digest().Read(buf)
	return hex.EncodeToString(buf)
}

func casefold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
