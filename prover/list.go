package prover

import (
	"fmt"
	"path/filepath"

	"github.com/consensys/gnark/frontend"
	cm "github.com/mynextid/zk-kyc/circuits/membership"
	ct "github.com/mynextid/zk-kyc/circuits/temporal"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/models"
)

// CircuitInfo describes one circuit of the pipeline
type CircuitInfo struct {
	Circuit     frontend.Circuit
	ID          string
	Name        string
	Version     uint
	Description string
	// Public lists the public inputs in witness order
	Public []string
}

func (ci CircuitInfo) paths(dir string) (ccsPath, pkPath, vkPath string) {
	base := filepath.Join(dir, fmt.Sprintf("%s-%d", ci.Name, ci.Version))
	return base + ".ccs", base + ".pk", base + ".vk"
}

// Compile compiles a circuit and stores the circuit information in dir
func (ci CircuitInfo) Compile(dir string) error {
	ccsPath, pkPath, vkPath := ci.paths(dir)
	return common.SetupAndSave(ci.Circuit, ccsPath, pkPath, vkPath)
}

// CompileAll compiles all the circuits and stores them in dir
func CompileAll(dir string) error {
	for _, id := range CircuitIDs() {
		if err := CircuitList[id].Compile(dir); err != nil {
			return fmt.Errorf("compile %s: %w", id, err)
		}
	}
	return nil
}

// CircuitIDs returns the circuit identifiers in a stable order
func CircuitIDs() []string {
	return []string{models.CircuitIDAge, models.CircuitIDValidity, models.CircuitIDNationality}
}

var CircuitList = map[string]CircuitInfo{
	models.CircuitIDAge: {
		Circuit:     &ct.AgeCircuit{},
		ID:          models.CircuitIDAge,
		Name:        "age",
		Version:     1,
		Description: "Date of birth is at least MinimumAge years before today",
		Public:      []string{"isAboveMinimumAge", "minimumAge", "currentYear", "currentMonthDay", "commitment", "binding"},
	},
	models.CircuitIDValidity: {
		Circuit:     &ct.ValidityCircuit{},
		ID:          models.CircuitIDValidity,
		Name:        "document-validity",
		Version:     1,
		Description: "Document expiry is after today, and more than 30 days after it",
		Public:      []string{"isValid", "hasMinimumValidity", "today", "minimumValidityDays", "commitment", "binding"},
	},
	models.CircuitIDNationality: {
		Circuit:     &cm.NationalityCircuit{},
		ID:          models.CircuitIDNationality,
		Name:        "nationality",
		Version:     1,
		Description: "Nationality belongs to a public allow-list of up to 16 entries",
		Public:      []string{"allowed[16]", "restricted", "isNationalityValid", "commitment", "binding"},
	},
}
