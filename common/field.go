package common

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/mynextid/zk-kyc/models"
)

// ToField reduces a hex digest into the BN254 scalar field
func ToField(hexDigest string) (*big.Int, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(hexDigest, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: digest is not hex: %v", models.ErrEncoding, err)
	}
	var e fr.Element
	e.SetBytes(b)
	return e.BigInt(new(big.Int)), nil
}

// StringToField maps an arbitrary string into the field through its digest
func StringToField(s string) *big.Int {
	f, _ := ToField(DigestString(s))
	return f
}

// MiMC hashes field elements with the parameters of the in-circuit gadget
// (gnark std/hash/mimc), so native and circuit outputs agree.
func MiMC(elements ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, x := range elements {
		var fe fr.Element
		fe.SetBigInt(x)
		h.Write(fe.Marshal())
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out.BigInt(new(big.Int))
}

// ParseField parses a decimal field element as stored in proof statements
func ParseField(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return nil, fmt.Errorf("%w: %q is not a field element", models.ErrInvalidInput, s)
	}
	return v, nil
}

// Date truncates t to its UTC calendar date
func Date(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateNumber encodes a date as the integer YYYYMMDD, which orders like the date
func DateNumber(t time.Time) int64 {
	return int64(t.Year())*10000 + MonthDay(t)
}

// MonthDay encodes the month and day of t as MMDD
func MonthDay(t time.Time) int64 {
	return int64(t.Month())*100 + int64(t.Day())
}

var dayEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// DayNumber counts whole days since 1900-01-01, clamped at zero
func DayNumber(t time.Time) int64 {
	d := (Date(t).Unix() - dayEpoch.Unix()) / 86400
	if d < 0 {
		return 0
	}
	return d
}

// CalendarAge is the age in whole years at today; the birthday itself counts
func CalendarAge(dob, today time.Time) int {
	dob, today = Date(dob), Date(today)
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}
