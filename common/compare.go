package common

import (
	"github.com/consensys/gnark/frontend"
)

// IsGreater returns 1 if a > b, 0 otherwise
func IsGreater(api frontend.API, a, b frontend.Variable) frontend.Variable {
	// Cmp yields 1 when a > b
	return api.IsZero(api.Sub(api.Cmp(a, b), 1))
}

// IsLessOrEqual returns 1 if a <= b, 0 otherwise
func IsLessOrEqual(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return api.Sub(1, IsGreater(api, a, b))
}

// IsMember returns 1 if x equals a non-zero entry of set. Zero entries are
// empty slots and never match.
func IsMember(api frontend.API, x frontend.Variable, set []frontend.Variable) frontend.Variable {
	found := frontend.Variable(0)
	for _, s := range set {
		hit := api.IsZero(api.Sub(x, s))
		occupied := api.Sub(1, api.IsZero(s))
		found = api.Or(found, api.And(hit, occupied))
	}
	return found
}

// And3 is the conjunction of three boolean variables
func And3(api frontend.API, a, b, c frontend.Variable) frontend.Variable {
	return api.And(api.And(a, b), c)
}
