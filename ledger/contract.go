package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mynextid/zk-kyc/models"
)

// RegistryMetaData describes the verification registry contract surface
var RegistryMetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"submitProof","stateMutability":"nonpayable","inputs":[{"name":"subject","type":"address"},{"name":"result","type":"bool"},{"name":"proofHash","type":"bytes32"},{"name":"enclaveSignature","type":"bytes"},{"name":"expiryTimestamp","type":"uint256"}],"outputs":[]},
{"type":"function","name":"isVerified","stateMutability":"view","inputs":[{"name":"subject","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getVerification","stateMutability":"view","inputs":[{"name":"subject","type":"address"}],"outputs":[{"name":"isVerified","type":"bool"},{"name":"verificationTimestamp","type":"uint256"},{"name":"proofHash","type":"bytes32"},{"name":"expiryTimestamp","type":"uint256"}]},
{"type":"function","name":"revokeVerification","stateMutability":"nonpayable","inputs":[{"name":"subject","type":"address"}],"outputs":[]},
{"type":"event","name":"VerificationSubmitted","anonymous":false,"inputs":[{"name":"subject","type":"address","indexed":true},{"name":"proofHash","type":"bytes32","indexed":false},{"name":"expiryTimestamp","type":"uint256","indexed":false}]},
{"type":"event","name":"VerificationRevoked","anonymous":false,"inputs":[{"name":"subject","type":"address","indexed":true}]}
]`,
}

func NewRegistryCoder() (*abi.ABI, error) {
	parsed, err := RegistryMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// SubmitProofCalldata packs a submitProof call for s
func SubmitProofCalldata(s Submission) ([]byte, error) {
	coder, err := NewRegistryCoder()
	if err != nil {
		return nil, err
	}
	subject, err := address(s.Subject)
	if err != nil {
		return nil, err
	}
	proofHash, err := bytes32(s.ProofHash)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(s.EnclaveSignature)
	if err != nil {
		return nil, fmt.Errorf("%w: enclave signature: %v", models.ErrEncoding, err)
	}
	return coder.Pack("submitProof", subject, s.Result, proofHash, sig, big.NewInt(s.ExpiryTimestamp))
}

func IsVerifiedCalldata(subject string) ([]byte, error) {
	return subjectCall("isVerified", subject)
}

func GetVerificationCalldata(subject string) ([]byte, error) {
	return subjectCall("getVerification", subject)
}

func RevokeVerificationCalldata(subject string) ([]byte, error) {
	return subjectCall("revokeVerification", subject)
}

// UnpackVerification decodes getVerification return data
func UnpackVerification(data []byte) (Verification, error) {
	coder, err := NewRegistryCoder()
	if err != nil {
		return Verification{}, err
	}
	out, err := coder.Unpack("getVerification", data)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	if len(out) != 4 {
		return Verification{}, fmt.Errorf("%w: getVerification returned %d values", models.ErrEncoding, len(out))
	}
	verified, _ := out[0].(bool)
	ts, _ := out[1].(*big.Int)
	hash, _ := out[2].([32]byte)
	expiry, _ := out[3].(*big.Int)
	if ts == nil || expiry == nil {
		return Verification{}, fmt.Errorf("%w: malformed getVerification output", models.ErrEncoding)
	}
	return Verification{
		IsVerified:            verified,
		VerificationTimestamp: ts.Int64(),
		ProofHash:             hex.EncodeToString(hash[:]),
		ExpiryTimestamp:       expiry.Int64(),
	}, nil
}

func subjectCall(method, subject string) ([]byte, error) {
	coder, err := NewRegistryCoder()
	if err != nil {
		return nil, err
	}
	a, err := address(subject)
	if err != nil {
		return nil, err
	}
	return coder.Pack(method, a)
}

func address(s string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(strings.TrimSpace(s)) {
		return ethcommon.Address{}, fmt.Errorf("%w: subject %q is not a chain address", models.ErrValidation, s)
	}
	return ethcommon.HexToAddress(strings.TrimSpace(s)), nil
}

func bytes32(hexDigest string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(hexDigest, "0x"))
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("%w: proof hash %q is not 32 bytes of hex", models.ErrEncoding, hexDigest)
	}
	copy(out[:], b)
	return out, nil
}
