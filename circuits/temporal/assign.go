package ct

import (
	"math/big"
	"time"

	"github.com/mynextid/zk-kyc/common"
)

// NewAgeAssignment builds a full witness for AgeCircuit
func NewAgeAssignment(dob, today time.Time, minimumAge int, binding *big.Int) *AgeCircuit {
	dob, today = common.Date(dob), common.Date(today)
	dobNum := big.NewInt(common.DateNumber(dob))
	return &AgeCircuit{
		DateOfBirth:       dobNum,
		IsAboveMinimumAge: common.Bit(common.CalendarAge(dob, today) >= minimumAge),
		MinimumAge:        minimumAge,
		CurrentYear:       today.Year(),
		CurrentMonthDay:   common.MonthDay(today),
		Commitment:        common.MiMC(dobNum, binding),
		Binding:           binding,
	}
}

// NewValidityAssignment builds a full witness for ValidityCircuit
func NewValidityAssignment(expiry, today time.Time, binding *big.Int) *ValidityCircuit {
	expiryDay := common.DayNumber(expiry)
	todayDay := common.DayNumber(today)
	expiryNum := big.NewInt(expiryDay)
	return &ValidityCircuit{
		ExpiryDay:           expiryNum,
		IsValid:             common.Bit(expiryDay > todayDay),
		HasMinimumValidity:  common.Bit(expiryDay > todayDay+MinimumValidityDays),
		Today:               todayDay,
		MinimumValidityDays: MinimumValidityDays,
		Commitment:          common.MiMC(expiryNum, binding),
		Binding:             binding,
	}
}
