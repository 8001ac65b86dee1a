package registry

import (
	"fmt"
	"strconv"

	"github.com/attestix/attestix/pkg/contract"
	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/evidence"
	"github.com/attestix/attestix/pkg/result"
)

// recordsAt decodes an evidence record list embedded in the document.
// Malformed or missing records are an error; an evidence rule never
// passes on input it could not read.
func recordsAt(doc *document.Document, path string) ([]evidence.Record, error) {
	node := doc.Lookup(path)
	if node.Missing() {
		return nil, fmt.Errorf("evidence records are absent")
	}
	if node.Kind != document.KindList {
		return nil, fmt.Errorf("evidence records are %s, expected list", node.Kind)
	}

	records := make([]evidence.Record, 0, len(node.Items))
	for i, item := range node.Items {
		if item.Kind != document.KindMapping {
			return nil, fmt.Errorf("record %d: expected mapping, got %s", i, item.Kind)
		}
		idx := item.Field("index")
		if idx.Kind != document.KindNumber {
			return nil, fmt.Errorf("record %d: index must be a number", i)
		}
		r := evidence.Record{Index: int(idx.Num)}
		for _, bind := range []struct {
			key  string
			dest *string
		}{
			{"payload_hash", &r.PayloadHash},
			{"prev_hash", &r.PrevHash},
			{"self_hash", &r.SelfHash},
		} {
			f := item.Field(bind.key)
			if f.Kind != document.KindString {
				return nil, fmt.Errorf("record %d: %s must be a string", i, bind.key)
			}
			*bind.dest = f.Str
		}
		if f := item.Field("immutable"); f.Kind == document.KindBool {
			r.Immutable = f.Bool
		}
		if f := item.Field("checksum"); f.Kind == document.KindString {
			r.Checksum = f.Str
		}
		records = append(records, r)
	}
	return records, nil
}

// evalChain verifies the hash-chain invariants of an embedded evidence
// record list: genesis marker, prev-hash linkage, recomputed self
// hashes.
func evalChain(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: chain shape requires a path param")
	}

	ev := []result.KV{{Key: "path", Value: path}}
	records, err := recordsAt(doc, path)
	if err != nil {
		return result.Fail(rule.ID, fmt.Sprintf("%s: %v", path, err), ev...)
	}

	ev = append(ev, result.KV{Key: "records", Value: strconv.Itoa(len(records))})
	ok, errs := evidence.VerifyChain(records)
	if !ok {
		ev = append(ev, result.KV{Key: "violations", Value: strconv.Itoa(len(errs))})
		return result.Fail(rule.ID, fmt.Sprintf("evidence chain broken: %v", errs[0]), ev...)
	}
	ev = append(ev, result.KV{Key: "head", Value: records[len(records)-1].SelfHash})
	return result.Pass(rule.ID, fmt.Sprintf("evidence chain of %d records verified", len(records)), ev...)
}

// evalWorm checks the write-once metadata of every embedded record:
// immutability flag set and checksum non-empty, with no default pass on
// an empty batch.
func evalWorm(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: worm shape requires a path param")
	}

	ev := []result.KV{{Key: "path", Value: path}}
	records, err := recordsAt(doc, path)
	if err != nil {
		return result.Fail(rule.ID, fmt.Sprintf("%s: %v", path, err), ev...)
	}
	if len(records) == 0 {
		return result.Fail(rule.ID, fmt.Sprintf("%s holds no records", path), ev...)
	}

	for _, r := range records {
		if !evidence.VerifyWormMetadata(r) {
			ev = append(ev, result.KV{Key: "record", Value: strconv.Itoa(r.Index)})
			return result.Fail(rule.ID,
				fmt.Sprintf("record %d violates WORM metadata (immutable flag or checksum missing)", r.Index), ev...)
		}
	}
	ev = append(ev, result.KV{Key: "records", Value: strconv.Itoa(len(records))})
	return result.Pass(rule.ID, fmt.Sprintf("WORM metadata intact on %d records", len(records)), ev...)
}

// evalMerkleAnchor computes the Merkle root over the batch's payload
// hashes. When expect_path is set, the computed root must equal the
// anchored value at that path.
func evalMerkleAnchor(rule *contract.Rule, doc *document.Document) result.RuleResult {
	path, ok := rule.StringParam("path")
	if !ok {
		return result.Fail(rule.ID, "evaluator error: merkle_anchor shape requires a path param")
	}

	ev := []result.KV{{Key: "path", Value: path}}
	records, err := recordsAt(doc, path)
	if err != nil {
		return result.Fail(rule.ID, fmt.Sprintf("%s: %v", path, err), ev...)
	}

	leaves := make([]string, len(records))
	for i, r := range records {
		leaves[i] = r.PayloadHash
	}
	root := evidence.MerkleRoot(leaves)
	if root == "" {
		return result.Fail(rule.ID, fmt.Sprintf("%s holds no records to anchor", path), ev...)
	}
	ev = append(ev, result.KV{Key: "merkle_root", Value: root})

	if expectPath, ok := rule.StringParam("expect_path"); ok {
		anchored := doc.Lookup(expectPath)
		if anchored.Kind != document.KindString {
			return result.Fail(rule.ID, fmt.Sprintf("anchored root at %s is absent or not a string", expectPath), ev...)
		}
		if anchored.Str != root {
			ev = append(ev, result.KV{Key: "anchored_root", Value: anchored.Str})
			return result.Fail(rule.ID, "computed merkle root does not match anchored root", ev...)
		}
	}
	return result.Pass(rule.ID, fmt.Sprintf("merkle root computed over %d records", len(records)), ev...)
}
