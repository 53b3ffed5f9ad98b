package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mynextid/zk-kyc/models"
)

// Environment of a confidential task
const (
	EnvInputDir        = "IEXEC_IN"
	EnvOutputDir       = "IEXEC_OUT"
	EnvDatasetFilename = "IEXEC_DATASET_FILENAME"
	EnvBulkSliceSize   = "IEXEC_BULK_SLICE_SIZE"
	EnvInputFilesCount = "IEXEC_INPUT_FILES_NUMBER"
	EnvAppSecret       = "IEXEC_APP_DEVELOPER_SECRET"
	EnvRequesterSecret = "IEXEC_REQUESTER_SECRET_1"
	EnvSignerKey       = "KYC_ENCLAVE_SIGNER_KEY"
)

// Output files written to the output directory
const (
	ResultFile   = "result.json"
	ComputedFile = "computed.json"
)

func envDatasetFilename(i int) string { return fmt.Sprintf("IEXEC_DATASET_%d_FILENAME", i) }
func envInputFileName(i int) string   { return fmt.Sprintf("IEXEC_INPUT_FILE_NAME_%d", i) }

// Config is the resolved task environment
type Config struct {
	InputDir  string
	OutputDir string
	// DatasetFiles are protected-data files, relative to InputDir
	DatasetFiles []string
	// InputFiles are additional named inputs, relative to InputDir
	InputFiles      []string
	AppSecret       string
	RequesterSecret string
	SignerKey       string
}

// ConfigFromEnv reads the task environment through getenv
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Config{
		InputDir:        getenv(EnvInputDir),
		OutputDir:       getenv(EnvOutputDir),
		AppSecret:       getenv(EnvAppSecret),
		RequesterSecret: getenv(EnvRequesterSecret),
		SignerKey:       getenv(EnvSignerKey),
	}
	if cfg.InputDir == "" {
		cfg.InputDir = "/iexec_in"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "/iexec_out"
	}

	if n, err := atoiEnv(getenv, EnvBulkSliceSize); err != nil {
		return cfg, err
	} else if n > 0 {
		for i := 1; i <= n; i++ {
			if name := getenv(envDatasetFilename(i)); name != "" {
				cfg.DatasetFiles = append(cfg.DatasetFiles, name)
			}
		}
	} else if name := getenv(EnvDatasetFilename); name != "" {
		cfg.DatasetFiles = []string{name}
	}

	n, err := atoiEnv(getenv, EnvInputFilesCount)
	if err != nil {
		return cfg, err
	}
	for i := 1; i <= n; i++ {
		if name := getenv(envInputFileName(i)); name != "" {
			cfg.InputFiles = append(cfg.InputFiles, name)
		}
	}
	return cfg, nil
}

// Env renders cfg as task environment variables
func (c Config) Env() []string {
	env := []string{
		EnvInputDir + "=" + c.InputDir,
		EnvOutputDir + "=" + c.OutputDir,
	}
	if len(c.DatasetFiles) == 1 {
		env = append(env, EnvDatasetFilename+"="+c.DatasetFiles[0])
	} else if len(c.DatasetFiles) > 1 {
		env = append(env, EnvBulkSliceSize+"="+strconv.Itoa(len(c.DatasetFiles)))
		for i, name := range c.DatasetFiles {
			env = append(env, envDatasetFilename(i+1)+"="+name)
		}
	}
	if len(c.InputFiles) > 0 {
		env = append(env, EnvInputFilesCount+"="+strconv.Itoa(len(c.InputFiles)))
		for i, name := range c.InputFiles {
			env = append(env, envInputFileName(i+1)+"="+name)
		}
	}
	if c.AppSecret != "" {
		env = append(env, EnvAppSecret+"="+c.AppSecret)
	}
	if c.RequesterSecret != "" {
		env = append(env, EnvRequesterSecret+"="+c.RequesterSecret)
	}
	if c.SignerKey != "" {
		env = append(env, EnvSignerKey+"="+c.SignerKey)
	}
	return env
}

func (c Config) inputPath(name string) string {
	return filepath.Join(c.InputDir, filepath.Base(name))
}

func atoiEnv(getenv func(string) string, key string) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", models.ErrInvalidInput, key, v)
	}
	return n, nil
}

// DefaultSanctioned is used when the app secret carries no list. Entries
// are upper-case names and ISO 3166 codes.
var DefaultSanctioned = []string{
	"CU", "CUB", "CUBA",
	"IR", "IRN", "IRAN",
	"KP", "PRK", "NORTH KOREA",
	"SY", "SYR", "SYRIA",
}

// Policy holds the optional side inputs of the worker
type Policy struct {
	Sanctioned []string `json:"sanctionedNationalities,omitempty"`
	// Strict enables checksum validation of document numbers
	Strict     bool `json:"strict,omitempty"`
	MinimumAge int  `json:"minimumAge,omitempty"`
}

// DefaultPolicy applies when neither secret is present
func DefaultPolicy() Policy {
	return Policy{Sanctioned: DefaultSanctioned, MinimumAge: 18}
}

// ParsePolicy merges the app secret (JSON policy) and the requester secret
// (minimum age) into the default policy. Both may be empty.
func ParsePolicy(appSecret, requesterSecret string) (Policy, error) {
	p := DefaultPolicy()
	if s := strings.TrimSpace(appSecret); s != "" {
		var app Policy
		if err := json.Unmarshal([]byte(s), &app); err != nil {
			return p, fmt.Errorf("%w: app secret: %v", models.ErrInvalidInput, err)
		}
		if len(app.Sanctioned) > 0 {
			p.Sanctioned = app.Sanctioned
		}
		p.Strict = app.Strict
		if app.MinimumAge > 0 {
			p.MinimumAge = app.MinimumAge
		}
	}
	if s := strings.TrimSpace(requesterSecret); s != "" {
		age, err := strconv.Atoi(s)
		if err != nil || age <= 0 || age > 150 {
			return p, fmt.Errorf("%w: requester secret is not a minimum age", models.ErrInvalidInput)
		}
		p.MinimumAge = age
	}
	return p, nil
}

func (p Policy) sanctioned(nationality string) bool {
	n := strings.ToUpper(strings.TrimSpace(nationality))
	for _, s := range p.Sanctioned {
		if strings.ToUpper(strings.TrimSpace(s)) == n {
			return true
		}
	}
	return false
}
