package worker

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/models"
)

// Item outcomes
const (
	StatusVerified = "VERIFIED"
	StatusFailed   = "FAILED"
	StatusError    = "ERROR"
)

// Overall outcomes
const (
	OverallAllVerified = "ALL_VERIFIED"
	OverallPartial     = "PARTIAL_VERIFICATION"
)

var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/mynextid/zk-kyc/worker"))

// ItemResult is the outcome of one protected-data item
type ItemResult struct {
	Index      int                `json:"index"`
	Source     string             `json:"source"`
	Status     string             `json:"status"`
	Digest     string             `json:"digest,omitempty"`
	Subject    string             `json:"subject,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Attributes *models.Attributes `json:"attributes,omitempty"`
}

// Totals counts item outcomes
type Totals struct {
	Items    int `json:"items"`
	Verified int `json:"verified"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
}

// Report is the deterministic output artifact of one task
type Report struct {
	SessionID     string                   `json:"sessionId"`
	Totals        Totals                   `json:"totals"`
	Items         []ItemResult             `json:"items"`
	OverallStatus string                   `json:"overallStatus"`
	Attestation   models.AttestationResult `json:"attestation"`
}

// sessionID is a name-based UUID of the item digests, so the same batch
// always yields the same identifier
func sessionID(items []ItemResult) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(it.Digest)
		b.WriteByte(';')
	}
	return uuid.NewSHA1(sessionNamespace, []byte(b.String())).String()
}

// batchDigest binds the attestation to every item of the batch
func batchDigest(items []ItemResult) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(it.Digest)
	}
	return common.DigestString(b.String())
}
