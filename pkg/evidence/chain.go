// Package evidence implements the tamper-evidence primitives used to
// audit prior validation runs: append-only hash chains, write-once
// metadata checks, and Merkle roots over record batches. Everything here
// is a pure function over its inputs; fetching and persisting evidence
// is the caller's concern.
package evidence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/attestix/attestix/pkg/canonicalize"
)

// Genesis is the reserved prev_hash marker of the first chain record.
const Genesis = "GENESIS"

// Record is one entry of an append-only evidence chain.
type Record struct {
	Index       int    `json:"index" yaml:"index"`
	PayloadHash string `json:"payload_hash" yaml:"payload_hash"`
	PrevHash    string `json:"prev_hash" yaml:"prev_hash"`
	SelfHash    string `json:"self_hash" yaml:"self_hash"`
	Immutable   bool   `json:"immutable" yaml:"immutable"`
	Checksum    string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// ComputeSelfHash derives the record hash from its declared fields:
// sha256(index NUL prev_hash NUL payload_hash), hex encoded. The stored
// SelfHash is never trusted; verification always recomputes.
func (r Record) ComputeSelfHash() string {
	var buf bytes.Buffer
	buf.WriteString(strconv.Itoa(r.Index))
	buf.WriteByte(0)
	buf.WriteString(r.PrevHash)
	buf.WriteByte(0)
	buf.WriteString(r.PayloadHash)
	h := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(h[:])
}

// VerifyChain walks the chain in index order and checks every invariant:
// monotonic indexes from 0, genesis marker on the first record, prev_hash
// linkage, and recomputed self hashes. It returns false with the full
// list of violations; the first error names the first broken index.
func VerifyChain(records []Record) (bool, []error) {
	var errs []error
	if len(records) == 0 {
		return false, []error{fmt.Errorf("empty evidence chain")}
	}

	prev := Genesis
	for i, r := range records {
		if r.Index != i {
			errs = append(errs, fmt.Errorf("record %d: index %d out of order", i, r.Index))
		}
		if r.PrevHash != prev {
			if i == 0 {
				errs = append(errs, fmt.Errorf("record 0: prev_hash %q is not the genesis marker", r.PrevHash))
			} else {
				errs = append(errs, fmt.Errorf("record %d: prev_hash does not match record %d self_hash", i, i-1))
			}
		}
		if r.PayloadHash == "" {
			errs = append(errs, fmt.Errorf("record %d: empty payload_hash", i))
		}
		if computed := r.ComputeSelfHash(); computed != r.SelfHash {
			errs = append(errs, fmt.Errorf("record %d: self_hash mismatch (tampered or miscomputed)", i))
		}
		prev = r.SelfHash
	}
	return len(errs) == 0, errs
}

// VerifyWormMetadata checks the write-once-read-many contract of a
// single record: the immutability flag must be set and the checksum
// non-empty. Absence of either is a fail, never a default pass.
func VerifyWormMetadata(r Record) bool {
	return r.Immutable && r.Checksum != ""
}

// Chain is an in-memory append-only chain builder with correct hash
// linkage. Callers producing evidence use it; VerifyChain stays the
// independent read path.
type Chain struct {
	records []Record
	head    string
}

// NewChain creates an empty chain whose head is the genesis marker.
func NewChain() *Chain {
	return &Chain{head: Genesis}
}

// Append hashes the payload canonically, links a new record to the
// current head, and returns the record.
func (c *Chain) Append(payload any) (Record, error) {
	payloadHash, err := canonicalize.CanonicalHash(payload)
	if err != nil {
		return Record{}, fmt.Errorf("hash payload: %w", err)
	}
	r := Record{
		Index:       len(c.records),
		PayloadHash: payloadHash,
		PrevHash:    c.head,
		Immutable:   true,
		Checksum:    payloadHash,
	}
	r.SelfHash = r.ComputeSelfHash()
	c.records = append(c.records, r)
	c.head = r.SelfHash
	return r, nil
}

// Records returns a copy of the chain contents.
func (c *Chain) Records() []Record {
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Head returns the current head hash.
func (c *Chain) Head() string {
	return c.head
}
