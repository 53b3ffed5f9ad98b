package common

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mynextid/zk-kyc/models"
)

// NullifierTag domain-separates nullifiers from every other digest
const NullifierTag = "zk-kyc:nullifier:v1"

// DigestHexLen is the width of every digest produced by this package
const DigestHexLen = 2 * sha256.Size

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Digest returns the lowercase hex SHA-256 of input
func Digest(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// DigestString is Digest over the UTF-8 bytes of s
func DigestString(s string) string {
	return Digest([]byte(s))
}

// IsDigest reports whether s has the shape of a Digest output
func IsDigest(s string) bool {
	return digestPattern.MatchString(s)
}

// DigestJSON digests the JSON encoding of v
func DigestJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	return Digest(b), nil
}

// DeriveNullifier binds a document digest to a subject:
//
//	Digest(documentDigest || ":" || subject || ":" || NullifierTag)
//
// The subject is lowercased so that checksummed and plain addresses collide.
func DeriveNullifier(documentDigest, subjectID string) string {
	var b strings.Builder
	b.WriteString(documentDigest)
	b.WriteByte(':')
	b.WriteString(strings.ToLower(strings.TrimSpace(subjectID)))
	b.WriteByte(':')
	b.WriteString(NullifierTag)
	return DigestString(b.String())
}

// DocumentDigest is the document identity used for full KYC nullifiers:
// the document type followed by the digest of the document number.
func DocumentDigest(documentType models.DocumentType, documentNumber string) string {
	return string(documentType) + DigestString(strings.TrimSpace(documentNumber))
}

// Field is one key of a canonically ordered JSON object
type Field struct {
	Key   string
	Value any
}

// CanonicalJSON encodes fields as a JSON object in exactly the given order
func CanonicalJSON(fields ...Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", models.ErrEncoding, f.Key, err)
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", models.ErrEncoding, f.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DeriveCommitment digests the canonical JSON of the committed subset.
// Field order is fixed: documentType, documentNumber, dateOfBirth, nationality.
func DeriveCommitment(subset models.CommitmentSubset) (string, error) {
	b, err := CanonicalJSON(
		Field{Key: "documentType", Value: subset.DocumentType},
		Field{Key: "documentNumber", Value: subset.DocumentNumber},
		Field{Key: "dateOfBirth", Value: subset.DateOfBirth},
		Field{Key: "nationality", Value: subset.Nationality},
	)
	if err != nil {
		return "", err
	}
	return Digest(b), nil
}
