package common

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/mynextid/zk-kyc/models"
)

// FormatStatement renders public inputs as decimal strings, in order
func FormatStatement(values ...frontend.Variable) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case int:
			out[i] = big.NewInt(int64(x)).String()
		case int64:
			out[i] = big.NewInt(x).String()
		case uint64:
			out[i] = new(big.Int).SetUint64(x).String()
		case *big.Int:
			out[i] = x.String()
		case big.Int:
			out[i] = x.String()
		case string:
			if _, err := ParseField(x); err != nil {
				return nil, err
			}
			out[i] = x
		default:
			return nil, fmt.Errorf("%w: public input %d has type %T", models.ErrEncoding, i, v)
		}
	}
	return out, nil
}

// AssignStatement parses a decimal statement into the given public inputs.
// The statement must have exactly len(targets) entries.
func AssignStatement(statement []string, targets ...*frontend.Variable) error {
	if len(statement) != len(targets) {
		return fmt.Errorf("%w: statement has %d entries, want %d", models.ErrInvalidInput, len(statement), len(targets))
	}
	for i, s := range statement {
		v, err := ParseField(s)
		if err != nil {
			return err
		}
		*targets[i] = v
	}
	return nil
}

// Bit maps a boolean to the circuit value 1 or 0
func Bit(b bool) int {
	if b {
		return 1
	}
	return 0
}
