package models

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType enumerates the identity documents accepted by the pipeline
type DocumentType string

const (
	DocumentPassport       DocumentType = "passport"
	DocumentNationalID     DocumentType = "national_id"
	DocumentDrivingLicense DocumentType = "driving_license"
	DocumentAadhaar        DocumentType = "aadhaar"
	DocumentPANCard        DocumentType = "pan_card"
)

var documentTypes = []DocumentType{
	DocumentPassport,
	DocumentNationalID,
	DocumentDrivingLicense,
	DocumentAadhaar,
	DocumentPANCard,
}

// DocumentTypes returns the recognized document types in declaration order
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(documentTypes))
	copy(out, documentTypes)
	return out
}

// ParseDocumentType parses a document type, case-insensitively
func ParseDocumentType(s string) (DocumentType, error) {
	v := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown document type %q", ErrValidation, s)
}

func (d DocumentType) Valid() bool {
	for _, t := range documentTypes {
		if d == t {
			return true
		}
	}
	return false
}

// DateLayout is the canonical date encoding (ISO 8601-1, YYYY-MM-DD)
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date. RFC 3339 timestamps are accepted and
// truncated to their UTC date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrInvalidInput, s)
}

// IdentityRecord is the private input of a verification attempt. It is never
// persisted and must not outlive the attempt in unencrypted form.
type IdentityRecord struct {
	DocumentType   DocumentType `json:"documentType"`
	DocumentNumber string       `json:"documentNumber"`
	FullName       string       `json:"fullName"`
	DateOfBirth    string       `json:"dateOfBirth"`
	Nationality    string       `json:"nationality"`
	DocumentExpiry string       `json:"documentExpiry"`
}

// Validate checks that all fields are present and well formed
func (r *IdentityRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: identity record is required", ErrValidation)
	}
	if !r.DocumentType.Valid() {
		return fmt.Errorf("%w: unknown document type %q", ErrValidation, r.DocumentType)
	}
	if strings.TrimSpace(r.DocumentNumber) == "" {
		return fmt.Errorf("%w: document number is required", ErrValidation)
	}
	if strings.TrimSpace(r.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrValidation)
	}
	if strings.TrimSpace(r.Nationality) == "" {
		return fmt.Errorf("%w: nationality is required", ErrValidation)
	}
	dob, err := ParseDate(r.DateOfBirth)
	if err != nil {
		return fmt.Errorf("%w: date of birth: %v", ErrValidation, err)
	}
	expiry, err := ParseDate(r.DocumentExpiry)
	if err != nil {
		return fmt.Errorf("%w: document expiry: %v", ErrValidation, err)
	}
	if !expiry.After(dob) {
		return fmt.Errorf("%w: document expiry precedes date of birth", ErrValidation)
	}
	return nil
}

// CommitmentSubset returns the canonical fields committed to publicly
func (r *IdentityRecord) CommitmentSubset() CommitmentSubset {
	return CommitmentSubset{
		DocumentType:   r.DocumentType,
		DocumentNumber: strings.TrimSpace(r.DocumentNumber),
		DateOfBirth:    strings.TrimSpace(r.DateOfBirth),
		Nationality:    strings.TrimSpace(r.Nationality),
	}
}

// Zero wipes the record
func (r *IdentityRecord) Zero() {
	if r == nil {
		return
	}
	*r = IdentityRecord{}
}

// CommitmentSubset is the part of an IdentityRecord anchored by a commitment
type CommitmentSubset struct {
	DocumentType   DocumentType
	DocumentNumber string
	DateOfBirth    string
	Nationality    string
}
