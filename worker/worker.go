package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mynextid/zk-kyc/common"
	"github.com/mynextid/zk-kyc/enclave"
	"github.com/mynextid/zk-kyc/logging"
	"github.com/mynextid/zk-kyc/models"
)

// checkItem is the structural check applied to every decoded payload
var checkItem = checkStructure

// ErrNoInput is returned for a task without any protected data or input file
var ErrNoInput = errors.New("no input items")

// Item is one raw protected-data payload
type Item struct {
	Source string
	Raw    []byte
}

// DecodePayload decodes a CBOR payload, or a JSON one when it starts with '{'
func DecodePayload(raw []byte) (*models.ProtectedPayload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", models.ErrEncoding)
	}
	var p models.ProtectedPayload
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrEncoding, err)
		}
		return &p, nil
	}
	if err := cbor.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	return &p, nil
}

// Evaluate checks every item and signs the aggregate attestation. One
// item's failure never stops the others.
func Evaluate(items []Item, policy Policy, signer *enclave.Signer) (*Report, error) {
	if len(items) == 0 {
		return nil, ErrNoInput
	}

	report := &Report{Items: make([]ItemResult, 0, len(items))}
	var (
		subject   string
		timestamp int64
		attrs     = models.Attributes{IsAdult: true, IsNotExpired: true, IsNotSanctioned: true}
	)

	for i, it := range items {
		res, payload := evaluateItem(i, it, policy)
		if res.Status == StatusVerified {
			if subject == "" {
				subject = res.Subject
			} else if res.Subject != subject {
				res.Status = StatusFailed
				res.Reason = "subject differs from the first item"
				res.Attributes = nil
			}
		}
		if res.Status == StatusVerified {
			attrs.IsAdult = attrs.IsAdult && res.Attributes.IsAdult
			attrs.IsNotExpired = attrs.IsNotExpired && res.Attributes.IsNotExpired
			attrs.IsNotSanctioned = attrs.IsNotSanctioned && res.Attributes.IsNotSanctioned
			timestamp = max(timestamp, payload.RequestedAt)
		}

		switch res.Status {
		case StatusVerified:
			report.Totals.Verified++
		case StatusFailed:
			report.Totals.Failed++
		default:
			report.Totals.Errors++
		}
		report.Items = append(report.Items, res)
	}
	report.Totals.Items = len(report.Items)

	report.OverallStatus = OverallPartial
	if report.Totals.Verified == report.Totals.Items {
		report.OverallStatus = OverallAllVerified
	}
	report.SessionID = sessionID(report.Items)

	if report.Totals.Verified == 0 {
		attrs = models.Attributes{}
	}
	report.Attestation = models.AttestationResult{
		IsValid:    report.OverallStatus == OverallAllVerified && attrs.IsAdult && attrs.IsNotExpired && attrs.IsNotSanctioned,
		Timestamp:  timestamp,
		ProofHash:  batchDigest(report.Items),
		Subject:    subject,
		Attributes: attrs,
	}
	if subject == "" {
		// nothing verified: the attestation is unsigned and invalid
		return report, nil
	}
	if err := signer.SignAttestation(&report.Attestation); err != nil {
		return report, fmt.Errorf("sign attestation: %w", err)
	}
	return report, nil
}

func evaluateItem(index int, it Item, policy Policy) (res ItemResult, payload *models.ProtectedPayload) {
	res = ItemResult{Index: index, Source: it.Source, Digest: common.Digest(it.Raw)}
	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusError
			res.Reason = fmt.Sprintf("item processing panicked: %v", r)
			res.Attributes = nil
		}
	}()

	payload, err := DecodePayload(it.Raw)
	if err != nil {
		res.Status = StatusError
		res.Reason = err.Error()
		return res, nil
	}
	if err := checkItem(payload, policy.Strict); err != nil {
		res.Status = StatusFailed
		res.Reason = err.Error()
		return res, payload
	}

	at := common.Date(time.Unix(payload.RequestedAt, 0))
	dob, _ := models.ParseDate(payload.DateOfBirth)
	expiry, _ := models.ParseDate(payload.DocumentExpiry)

	res.Status = StatusVerified
	res.Subject = strings.ToLower(payload.Subject)
	res.Attributes = &models.Attributes{
		IsAdult:         common.CalendarAge(dob, at) >= max(policy.MinimumAge, payload.MinimumAge),
		IsNotExpired:    expiry.After(at),
		IsNotSanctioned: !policy.sanctioned(payload.Nationality),
	}
	return res, payload
}

// Run executes one task described by cfg. The completion descriptor is
// written on every exit path, including panics.
func Run(cfg Config, logger logging.Logger) (err error) {
	if logger == nil {
		logger = logging.Nop()
	}
	resultPath := filepath.Join(cfg.OutputDir, ResultFile)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
		if werr := writeComputed(cfg.OutputDir, resultPath, err); werr != nil {
			logger.Error("failed to write completion descriptor", "error", werr)
			if err == nil {
				err = werr
			}
		}
	}()

	policy, err := ParsePolicy(cfg.AppSecret, cfg.RequesterSecret)
	if err != nil {
		return err
	}

	var signer *enclave.Signer
	if cfg.SignerKey != "" {
		signer, err = enclave.SignerFromHex(cfg.SignerKey)
	} else {
		logger.Warn("no enclave signer key configured, using an ephemeral key")
		signer, err = enclave.GenerateSigner()
	}
	if err != nil {
		return err
	}

	items, err := readItems(cfg)
	if err != nil {
		return err
	}

	report, err := Evaluate(items, policy, signer)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: report: %v", models.ErrEncoding, err)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(resultPath, b, 0o644); err != nil {
		return err
	}

	logger.Info("task completed",
		"session_id", report.SessionID,
		"overall_status", report.OverallStatus,
		"items", report.Totals.Items,
		"signer", signer.GetKeyID(),
	)
	return nil
}

func readItems(cfg Config) ([]Item, error) {
	var items []Item
	for _, name := range append(append([]string{}, cfg.DatasetFiles...), cfg.InputFiles...) {
		raw, err := os.ReadFile(cfg.inputPath(name))
		if err != nil {
			// an unreadable file is an item error, not a task error
			items = append(items, Item{Source: name})
			continue
		}
		items = append(items, Item{Source: name, Raw: raw})
	}
	if len(items) == 0 {
		return nil, ErrNoInput
	}
	return items, nil
}

type computed struct {
	DeterministicOutputPath string `json:"deterministic-output-path"`
	ErrorMessage            string `json:"error-message,omitempty"`
}

func writeComputed(outputDir, resultPath string, cause error) error {
	c := computed{DeterministicOutputPath: resultPath}
	if cause != nil {
		c.ErrorMessage = cause.Error()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, ComputedFile), b, 0o644)
}
