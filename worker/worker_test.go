package worker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const subject = "0xAbC0000000000000000000000000000000000001"

var requestedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix()

func payload() *models.ProtectedPayload {
	return &models.ProtectedPayload{
		Subject:        subject,
		DocumentType:   models.DocumentPassport,
		DocumentNumber: "P12345678",
		DocumentHash:   common.DigestString("P12345678"),
		DateOfBirth:    "2000-01-01",
		DocumentExpiry: "2026-06-01",
		Nationality:    "Canada",
		Commitment:     common.DigestString("commitment"),
		NullifierHash:  common.DigestString("nullifier"),
		RequestedAt:    requestedAt,
	}
}

func encode(t *testing.T, p *models.ProtectedPayload) []byte {
	t.Helper()
	b, err := cbor.Marshal(p)
	require.NoError(t, err)
	return b
}

func signer(t *testing.T) *enclave.Signer {
	t.Helper()
	s, err := enclave.GenerateSigner()
	require.NoError(t, err)
	return s
}

func TestEvaluateVerified(t *testing.T) {
	s := signer(t)
	report, err := Evaluate([]Item{{Source: "dataset", Raw: encode(t, payload())}}, DefaultPolicy(), s)
	require.NoError(t, err)

	assert.Equal(t, OverallAllVerified, report.OverallStatus)
	assert.Equal(t, Totals{Items: 1, Verified: 1}, report.Totals)
	assert.True(t, common.IsDigest(report.Items[0].Digest))

	att := report.Attestation
	assert.True(t, att.IsValid)
	assert.Equal(t, requestedAt, att.Timestamp)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", att.Subject)
	assert.Equal(t, models.Attributes{IsAdult: true, IsNotExpired: true, IsNotSanctioned: true}, att.Attributes)
	require.NoError(t, enclave.VerifyAttestation(&att, s.Address()))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	s := signer(t)
	items := []Item{{Source: "a", Raw: encode(t, payload())}}

	r1, err := Evaluate(items, DefaultPolicy(), s)
	require.NoError(t, err)
	r2, err := Evaluate(items, DefaultPolicy(), s)
	require.NoError(t, err)

	b1, _ := json.Marshal(r1)
	b2, _ := json.Marshal(r2)
	assert.JSONEq(t, string(b1), string(b2))
	assert.NotEmpty(t, r1.SessionID)
}

func TestEvaluateAttributes(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *models.ProtectedPayload)
		want   models.Attributes
	}{
		{"minor", func(p *models.ProtectedPayload) { p.DateOfBirth = "2010-01-01" }, models.Attributes{IsNotExpired: true, IsNotSanctioned: true}},
		{"expired", func(p *models.ProtectedPayload) { p.DocumentExpiry = "2024-06-01" }, models.Attributes{IsAdult: true, IsNotSanctioned: true}},
		{"sanctioned", func(p *models.ProtectedPayload) { p.Nationality = "north korea" }, models.Attributes{IsAdult: true, IsNotExpired: true}},
		{"below requested age", func(p *models.ProtectedPayload) { p.MinimumAge = 30 }, models.Attributes{IsNotExpired: true, IsNotSanctioned: true}},
		{"requested age met", func(p *models.ProtectedPayload) { p.MinimumAge = 21 }, models.Attributes{IsAdult: true, IsNotExpired: true, IsNotSanctioned: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := payload()
			tc.mutate(p)
			report, err := Evaluate([]Item{{Raw: encode(t, p)}}, DefaultPolicy(), signer(t))
			require.NoError(t, err)
			assert.Equal(t, OverallAllVerified, report.OverallStatus)
			assert.Equal(t, tc.want, report.Attestation.Attributes)
			want := tc.want.IsAdult && tc.want.IsNotExpired && tc.want.IsNotSanctioned
			assert.Equal(t, want, report.Attestation.IsValid)
		})
	}
}

func TestEvaluatePolicyAgeIsFloor(t *testing.T) {
	p := payload()
	p.DateOfBirth = "2004-01-01"
	p.MinimumAge = 16

	policy := DefaultPolicy()
	policy.MinimumAge = 21
	report, err := Evaluate([]Item{{Raw: encode(t, p)}}, policy, signer(t))
	require.NoError(t, err)
	assert.False(t, report.Attestation.Attributes.IsAdult, "a lower requested age does not relax the policy")
}

func TestEvaluateRejectsOutOfRangeAge(t *testing.T) {
	for _, age := range []int{-1, 151} {
		p := payload()
		p.MinimumAge = age
		report, err := Evaluate([]Item{{Raw: encode(t, p)}}, DefaultPolicy(), signer(t))
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, report.Items[0].Status, "age %d", age)
		assert.False(t, report.Attestation.IsValid)
	}
}

func TestEvaluateIsolatesItems(t *testing.T) {
	bad := payload()
	bad.DocumentHash = "abc"

	items := []Item{
		{Source: "good", Raw: encode(t, payload())},
		{Source: "garbage", Raw: []byte{0xff, 0x00}},
		{Source: "bad", Raw: encode(t, bad)},
		{Source: "empty"},
	}
	report, err := Evaluate(items, DefaultPolicy(), signer(t))
	require.NoError(t, err)

	assert.Equal(t, OverallPartial, report.OverallStatus)
	assert.Equal(t, Totals{Items: 4, Verified: 1, Failed: 1, Errors: 2}, report.Totals)
	assert.Equal(t, StatusVerified, report.Items[0].Status)
	assert.Equal(t, StatusError, report.Items[1].Status)
	assert.Equal(t, StatusFailed, report.Items[2].Status)
	assert.Equal(t, StatusError, report.Items[3].Status)
	assert.False(t, report.Attestation.IsValid)
	assert.NotEmpty(t, report.Attestation.EnclaveSignature)
}

func TestEvaluateRecoversItemPanic(t *testing.T) {
	orig := checkItem
	defer func() { checkItem = orig }()
	calls := 0
	checkItem = func(p *models.ProtectedPayload, strict bool) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return orig(p, strict)
	}

	items := []Item{{Raw: encode(t, payload())}, {Raw: encode(t, payload())}}
	report, err := Evaluate(items, DefaultPolicy(), signer(t))
	require.NoError(t, err)
	assert.Equal(t, StatusError, report.Items[0].Status)
	assert.Contains(t, report.Items[0].Reason, "boom")
	assert.Equal(t, StatusVerified, report.Items[1].Status)
}

func TestEvaluateSubjectMismatch(t *testing.T) {
	other := payload()
	other.Subject = "0xabc0000000000000000000000000000000000002"
	report, err := Evaluate([]Item{{Raw: encode(t, payload())}, {Raw: encode(t, other)}}, DefaultPolicy(), signer(t))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Items[1].Status)
	assert.Equal(t, OverallPartial, report.OverallStatus)
}

func TestEvaluateJSONPayload(t *testing.T) {
	b, err := json.Marshal(payload())
	require.NoError(t, err)
	report, err := Evaluate([]Item{{Raw: b}}, DefaultPolicy(), signer(t))
	require.NoError(t, err)
	assert.Equal(t, OverallAllVerified, report.OverallStatus)
}

func TestCheckFormat(t *testing.T) {
	cases := []struct {
		docType models.DocumentType
		number  string
		strict  bool
		ok      bool
	}{
		{models.DocumentPassport, "P1234567", false, true},
		{models.DocumentPassport, "P1234567", true, false},
		{models.DocumentPassport, "P12345678", true, true},
		{models.DocumentPassport, "P1", false, false},
		{models.DocumentAadhaar, "2341 2341 2346", true, true},
		{models.DocumentAadhaar, "234123412345", false, true},
		{models.DocumentAadhaar, "234123412345", true, false},
		{models.DocumentAadhaar, "134123412346", false, false},
		{models.DocumentPANCard, "abcde1234f", false, true},
		{models.DocumentPANCard, "ABCDE12345", false, false},
		{models.DocumentNationalID, "ID-12345", false, true},
		{models.DocumentDrivingLicense, "DL?1", false, false},
	}
	for _, tc := range cases {
		err := checkFormat(tc.docType, tc.number, tc.strict)
		assert.Equal(t, tc.ok, err == nil, "%s %q strict=%v: %v", tc.docType, tc.number, tc.strict, err)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	p, err = ParsePolicy(`{"sanctionedNationalities":["Atlantis"],"strict":true}`, "21")
	require.NoError(t, err)
	assert.True(t, p.Strict)
	assert.Equal(t, 21, p.MinimumAge)
	assert.True(t, p.sanctioned(" atlantis"))
	assert.False(t, p.sanctioned("Iran"))

	_, err = ParsePolicy("{", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = ParsePolicy("", "old")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		EnvInputDir:                "/in",
		EnvOutputDir:               "/out",
		EnvBulkSliceSize:           "2",
		"IEXEC_DATASET_1_FILENAME": "a",
		"IEXEC_DATASET_2_FILENAME": "b",
		EnvInputFilesCount:         "1",
		"IEXEC_INPUT_FILE_NAME_1":  "extra.json",
	}
	cfg, err := ConfigFromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.DatasetFiles)
	assert.Equal(t, []string{"extra.json"}, cfg.InputFiles)

	// Env round-trips through ConfigFromEnv
	rendered := map[string]string{}
	for _, kv := range cfg.Env() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				rendered[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	again, err := ConfigFromEnv(func(k string) string { return rendered[k] })
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	_, err = ConfigFromEnv(func(k string) string {
		if k == EnvBulkSliceSize {
			return "many"
		}
		return ""
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func readComputed(t *testing.T, dir string) computed {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, ComputedFile))
	require.NoError(t, err)
	var c computed
	require.NoError(t, json.Unmarshal(b, &c))
	return c
}

func TestRunWritesResultAndDescriptor(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "protected.cbor"), encode(t, payload()), 0o600))

	s := signer(t)
	cfg := Config{InputDir: in, OutputDir: out, DatasetFiles: []string{"protected.cbor"}, SignerKey: s.KeyHex()}
	require.NoError(t, Run(cfg, nil))

	c := readComputed(t, out)
	assert.Equal(t, filepath.Join(out, ResultFile), c.DeterministicOutputPath)
	assert.Empty(t, c.ErrorMessage)

	b, err := os.ReadFile(c.DeterministicOutputPath)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(b, &report))
	assert.Equal(t, OverallAllVerified, report.OverallStatus)
	require.NoError(t, enclave.VerifyAttestation(&report.Attestation, s.Address()))
}

func TestRunCreatesOutputDir(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "task", "out")
	require.NoError(t, os.WriteFile(filepath.Join(in, "protected.cbor"), encode(t, payload()), 0o600))

	cfg := Config{InputDir: in, OutputDir: out, DatasetFiles: []string{"protected.cbor"}, SignerKey: signer(t).KeyHex()}
	require.NoError(t, Run(cfg, nil))

	assert.FileExists(t, filepath.Join(out, ResultFile))
	assert.Empty(t, readComputed(t, out).ErrorMessage)
}

func TestRunAlwaysWritesDescriptor(t *testing.T) {
	t.Run("no input", func(t *testing.T) {
		out := t.TempDir()
		err := Run(Config{InputDir: t.TempDir(), OutputDir: out}, nil)
		assert.ErrorIs(t, err, ErrNoInput)
		c := readComputed(t, out)
		assert.Equal(t, filepath.Join(out, ResultFile), c.DeterministicOutputPath)
		assert.NotEmpty(t, c.ErrorMessage)
	})

	t.Run("bad secret", func(t *testing.T) {
		out := t.TempDir()
		err := Run(Config{InputDir: t.TempDir(), OutputDir: out, RequesterSecret: "x"}, nil)
		assert.Error(t, err)
		assert.NotEmpty(t, readComputed(t, out).ErrorMessage)
	})

	t.Run("panic", func(t *testing.T) {
		orig := checkItem
		defer func() { checkItem = orig }()
		checkItem = func(*models.ProtectedPayload, bool) error { panic("boom") }

		in, out := t.TempDir(), t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(in, "p"), encode(t, payload()), 0o600))
		// item panics are isolated, so the task itself still completes
		require.NoError(t, Run(Config{InputDir: in, OutputDir: out, DatasetFiles: []string{"p"}}, nil))
		assert.Empty(t, readComputed(t, out).ErrorMessage)

		entries, err := os.ReadDir(out)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}
