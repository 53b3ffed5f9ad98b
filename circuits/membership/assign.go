package cm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/models"
)

// NationalityField maps a nationality name to its field element. Matching is
// case-insensitive and ignores surrounding spaces.
func NationalityField(nationality string) *big.Int {
	return common.StringToField(strings.ToUpper(strings.TrimSpace(nationality)))
}

// NewNationalityAssignment builds a full witness for NationalityCircuit. A
// nil or empty allow-list leaves the check unrestricted; an allow-list that
// admits nobody is not expressible.
func NewNationalityAssignment(nationality string, allowed []string, binding *big.Int) (*NationalityCircuit, error) {
	if len(allowed) > MaxAllowed {
		return nil, fmt.Errorf("%w: %d allowed nationalities, at most %d supported", models.ErrInvalidInput, len(allowed), MaxAllowed)
	}

	secret := NationalityField(nationality)
	c := &NationalityCircuit{
		Nationality:        secret,
		Restricted:         common.Bit(len(allowed) > 0),
		IsNationalityValid: 1,
		Commitment:         common.MiMC(secret, binding),
		Binding:            binding,
	}

	member := false
	for i := range c.Allowed {
		if i >= len(allowed) {
			c.Allowed[i] = 0
			continue
		}
		v := NationalityField(allowed[i])
		c.Allowed[i] = v
		if v.Cmp(secret) == 0 {
			member = true
		}
	}
	if len(allowed) > 0 {
		c.IsNationalityValid = common.Bit(member)
	}
	return c, nil
}
