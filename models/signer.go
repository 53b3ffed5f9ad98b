package models

// Signer provides cryptographic signing for attestations
type Signer interface {
	// Sign signs the given data and returns the signature
	Sign(data []byte) ([]byte, error)
	// GetKeyID returns the identifier for this signing key
	GetKeyID() string
}

// Verifier verifies signatures on attestations
type Verifier interface {
	// Verify verifies a signature against the given data and key ID
	Verify(data []byte, signature []byte, keyID string) error
}
