package enclave

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mynextid/zk-kyc/models"
)

// ErrSignature is returned when an attestation signature does not recover
// to the expected signer
var ErrSignature = errors.New("invalid enclave signature")

// Signer signs attestations with a secp256k1 key. Signatures are EIP-191
// personal signatures, so a ledger contract can ecrecover them.
type Signer struct {
	key     *ecdsa.PrivateKey
	address ethcommon.Address
}

var _ models.Signer = (*Signer)(nil)

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// GenerateSigner creates a signer with a fresh key
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewSigner(key), nil
}

// SignerFromHex loads a hex-encoded private key, with or without 0x
func SignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	return NewSigner(key), nil
}

// Sign returns the 65-byte [R || S || V] signature of the EIP-191 hash of
// data, with V in {27, 28}
func (s *Signer) Sign(data []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// GetKeyID returns the checksummed signer address
func (s *Signer) GetKeyID() string {
	return s.address.Hex()
}

func (s *Signer) Address() ethcommon.Address {
	return s.address
}

// KeyHex exports the private key
func (s *Signer) KeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(s.key))
}

// SignAttestation fills EnclaveSignature and Signer of att
func (s *Signer) SignAttestation(att *models.AttestationResult) error {
	digest, err := SigningHash(att)
	if err != nil {
		return err
	}
	sig, err := s.Sign(digest)
	if err != nil {
		return err
	}
	att.EnclaveSignature = hexutil.Encode(sig)
	att.Signer = strings.ToLower(s.address.Hex())
	return nil
}

// SigningHash is keccak256(subject || isValid || proofHash || timestamp),
// packed as address, bool, bytes32, uint256
func SigningHash(att *models.AttestationResult) ([]byte, error) {
	if att == nil {
		return nil, fmt.Errorf("%w: empty attestation", models.ErrResultParse)
	}
	if !ethcommon.IsHexAddress(att.Subject) {
		return nil, fmt.Errorf("%w: subject %q is not an address", models.ErrResultParse, att.Subject)
	}
	proofHash, err := hex.DecodeString(strings.TrimPrefix(att.ProofHash, "0x"))
	if err != nil || len(proofHash) != 32 {
		return nil, fmt.Errorf("%w: proof hash %q is not 32 bytes", models.ErrResultParse, att.ProofHash)
	}
	if att.Timestamp < 0 {
		return nil, fmt.Errorf("%w: negative timestamp", models.ErrResultParse)
	}

	valid := byte(0)
	if att.IsValid {
		valid = 1
	}
	return crypto.Keccak256(
		ethcommon.HexToAddress(att.Subject).Bytes(),
		[]byte{valid},
		proofHash,
		math.U256Bytes(big.NewInt(att.Timestamp)),
	), nil
}

// RecoverSigner returns the address that signed att
func RecoverSigner(att *models.AttestationResult) (ethcommon.Address, error) {
	digest, err := SigningHash(att)
	if err != nil {
		return ethcommon.Address{}, err
	}
	sig, err := hexutil.Decode(att.EnclaveSignature)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return recoverAddress(digest, sig)
}

// VerifyAttestation checks that att was signed by trusted
func VerifyAttestation(att *models.AttestationResult, trusted ethcommon.Address) error {
	got, err := RecoverSigner(att)
	if err != nil {
		return err
	}
	if got != trusted {
		return fmt.Errorf("%w: signed by %s, want %s", ErrSignature, got.Hex(), trusted.Hex())
	}
	return nil
}

func recoverAddress(data, sig []byte) (ethcommon.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("%w: signature has %d bytes", ErrSignature, len(sig))
	}
	sig = append([]byte{}, sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// AddressVerifier checks Signer signatures against a hex address key ID
type AddressVerifier struct{}

var _ models.Verifier = AddressVerifier{}

func (AddressVerifier) Verify(data []byte, signature []byte, keyID string) error {
	if !ethcommon.IsHexAddress(keyID) {
		return fmt.Errorf("%w: key id %q is not an address", ErrSignature, keyID)
	}
	got, err := recoverAddress(data, signature)
	if err != nil {
		return err
	}
	if got != ethcommon.HexToAddress(keyID) {
		return fmt.Errorf("%w: signed by %s", ErrSignature, got.Hex())
	}
	return nil
}
