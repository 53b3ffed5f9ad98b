package worker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/models"
)

var errStructure = errors.New("malformed payload")

var documentFormats = map[models.DocumentType]*regexp.Regexp{
	models.DocumentPassport:       regexp.MustCompile(`^[A-Z0-9]{6,9}$`),
	models.DocumentAadhaar:        regexp.MustCompile(`^[2-9][0-9]{11}$`),
	models.DocumentPANCard:        regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`),
	models.DocumentNationalID:     regexp.MustCompile(`^[A-Z0-9-]{5,20}$`),
	models.DocumentDrivingLicense: regexp.MustCompile(`^[A-Z0-9-]{5,20}$`),
}

// normalizeNumber upper-cases a document number and drops inner spaces
func normalizeNumber(n string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(n), " ", ""))
}

// checkStructure validates everything that does not depend on the clock
func checkStructure(p *models.ProtectedPayload, strict bool) error {
	if p == nil {
		return fmt.Errorf("%w: empty payload", errStructure)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: subject is required", errStructure)
	}
	if !ethcommon.IsHexAddress(p.Subject) {
		return fmt.Errorf("%w: subject is not an address", errStructure)
	}
	if !p.DocumentType.Valid() {
		return fmt.Errorf("%w: unknown document type %q", errStructure, p.DocumentType)
	}
	if !common.IsDigest(p.DocumentHash) {
		return fmt.Errorf("%w: document hash has the wrong width", errStructure)
	}
	for name, d := range map[string]string{"commitment": p.Commitment, "nullifier": p.NullifierHash} {
		if d != "" && !common.IsDigest(d) {
			return fmt.Errorf("%w: %s has the wrong width", errStructure, name)
		}
	}
	if _, err := models.ParseDate(p.DateOfBirth); err != nil {
		return fmt.Errorf("%w: date of birth: %v", errStructure, err)
	}
	if _, err := models.ParseDate(p.DocumentExpiry); err != nil {
		return fmt.Errorf("%w: document expiry: %v", errStructure, err)
	}
	if p.RequestedAt <= 0 {
		return fmt.Errorf("%w: request time is missing", errStructure)
	}
	if p.MinimumAge < 0 || p.MinimumAge > 150 {
		return fmt.Errorf("%w: minimum age %d out of range", errStructure, p.MinimumAge)
	}

	if strings.TrimSpace(p.DocumentNumber) == "" {
		if strict {
			return fmt.Errorf("%w: strict mode needs the document number", errStructure)
		}
		return nil
	}
	if common.DigestString(strings.TrimSpace(p.DocumentNumber)) != p.DocumentHash {
		return fmt.Errorf("%w: document hash does not match the document number", errStructure)
	}
	return checkFormat(p.DocumentType, p.DocumentNumber, strict)
}

func checkFormat(t models.DocumentType, number string, strict bool) error {
	n := normalizeNumber(number)
	if re, ok := documentFormats[t]; ok && !re.MatchString(n) {
		return fmt.Errorf("%w: %s number has an invalid layout", errStructure, t)
	}
	if !strict {
		return nil
	}
	switch t {
	case models.DocumentPassport:
		if len(n) != 9 {
			return fmt.Errorf("%w: passport number must have 9 characters", errStructure)
		}
	case models.DocumentAadhaar:
		if !verhoeff(n) {
			return fmt.Errorf("%w: aadhaar checksum mismatch", errStructure)
		}
	}
	return nil
}

var (
	verhoeffD = [10][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP = [8][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
		{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
		{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
)

// verhoeff validates a digit string whose last digit is a Verhoeff check digit
func verhoeff(digits string) bool {
	c := 0
	for i := 0; i < len(digits); i++ {
		d := digits[len(digits)-1-i]
		if d < '0' || d > '9' {
			return false
		}
		c = verhoeffD[c][verhoeffP[i%8][int(d-'0')]]
	}
	return c == 0
}
