package report

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

// ChainError reports where a recomputed chain diverged.
type ChainError struct {
	// Sequence is the first evidence sequence number whose chain step does
	// not match, or 0 when the seed or final digest differs.
	Sequence uint64
	Reason   string
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if e.Sequence == 0 {
		return fmt.Sprintf("%v: %s", evidence.ErrChainMismatch, e.Reason)
	}
	return fmt.Sprintf("%v at sequence %d: %s", evidence.ErrChainMismatch, e.Sequence, e.Reason)
}

// Unwrap returns ErrChainMismatch so callers can match with errors.Is.
func (e *ChainError) Unwrap() error {
	return evidence.ErrChainMismatch
}

// chain is the running digest state.
type chain [sha256.Size]byte

func seed(policyName, auditID string) chain {
	return sha256.Sum256([]byte(policyName + auditID))
}

func (c chain) next(e *evidence.Evidence) (chain, error) {
	data, err := evidence.Canonical(e)
	if err != nil {
		return chain{}, err
	}
	buf := make([]byte, 0, len(c)+len(data))
	buf = append(buf, c[:]...)
	buf = append(buf, data...)
	return sha256.Sum256(buf), nil
}

func (c chain) String() string {
	return evidence.DigestPrefix + hex.EncodeToString(c[:])
}

// ChainHashes returns every step of the evidence hash chain: element 0 is
// the seed and element i is the digest after folding in entries[i-1].
func ChainHashes(policyName, auditID string, entries []evidence.Evidence) ([]string, error) {
	h := seed(policyName, auditID)
	out := make([]string, 0, len(entries)+1)
	out = append(out, h.String())
	for i := range entries {
		var err error
		if h, err = h.next(&entries[i]); err != nil {
			return nil, evidence.NewReportError(auditID, fmt.Errorf("hash entry %d: %w", entries[i].Sequence, err))
		}
		out = append(out, h.String())
	}
	return out, nil
}

// EvidenceHash returns the final digest of the chain over entries.
func EvidenceHash(policyName, auditID string, entries []evidence.Evidence) (string, error) {
	hashes, err := ChainHashes(policyName, auditID, entries)
	if err != nil {
		return "", err
	}
	return hashes[len(hashes)-1], nil
}

// Verify checks that the report's evidence is a contiguous sequence for its
// audit id and that the recomputed chain matches EvidenceHash.
func Verify(r *evidence.Report) error {
	if r == nil {
		return errors.New("report is nil")
	}

	for i, e := range r.Evidence {
		want := uint64(i + 1)
		if e.Sequence != want {
			return &ChainError{Sequence: want, Reason: fmt.Sprintf("found sequence %d", e.Sequence)}
		}
		if e.AuditID != r.AuditID {
			return &ChainError{Sequence: want, Reason: fmt.Sprintf("entry belongs to audit %q", e.AuditID)}
		}
	}

	if _, ok := evidence.ParseDigest(r.EvidenceHash); !ok {
		return &ChainError{Reason: fmt.Sprintf("malformed evidence_hash %q", r.EvidenceHash)}
	}

	got, err := EvidenceHash(r.PolicyName, r.AuditID, r.Evidence)
	if err != nil {
		return err
	}
	if got != r.EvidenceHash {
		return &ChainError{Reason: fmt.Sprintf("recomputed %s, report has %s", got, r.EvidenceHash)}
	}
	return nil
}

// VerifyPrefix checks that earlier is a prefix of later: same policy and
// audit id, and identical chain steps for every entry earlier contains.
// The returned ChainError names the first diverging sequence number.
func VerifyPrefix(earlier, later *evidence.Report) error {
	if earlier == nil || later == nil {
		return errors.New("report is nil")
	}
	if earlier.PolicyName != later.PolicyName || earlier.AuditID != later.AuditID {
		return &ChainError{Reason: "reports cover different audit periods"}
	}
	if len(earlier.Evidence) > len(later.Evidence) {
		return &ChainError{Reason: fmt.Sprintf("earlier report has %d entries, later has %d", len(earlier.Evidence), len(later.Evidence))}
	}

	a, err := ChainHashes(earlier.PolicyName, earlier.AuditID, earlier.Evidence)
	if err != nil {
		return err
	}
	b, err := ChainHashes(later.PolicyName, later.AuditID, later.Evidence[:len(earlier.Evidence)])
	if err != nil {
		return err
	}
	for i := 1; i < len(a); i++ {
		if a[i] != b[i] {
			return &ChainError{Sequence: earlier.Evidence[i-1].Sequence, Reason: "entry differs"}
		}
	}
	if a[len(a)-1] != earlier.EvidenceHash {
		return &ChainError{Reason: "earlier report hash does not match its evidence"}
	}
	return nil
}
