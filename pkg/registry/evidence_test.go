package registry

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestix/attestix/pkg/document"
	"github.com/attestix/attestix/pkg/evidence"
)

// renderEvidenceDoc builds a document embedding a well-linked evidence
// chain plus its anchored merkle root.
func renderEvidenceDoc(t *testing.T, n int) (*document.Document, []evidence.Record) {
	t.Helper()
	c := evidence.NewChain()
	for i := 0; i < n; i++ {
		_, err := c.Append(map[string]any{"run": i})
		require.NoError(t, err)
	}
	records := c.Records()

	var b strings.Builder
	b.WriteString("evidence:\n  records:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "    - index: %d\n", r.Index)
		fmt.Fprintf(&b, "      payload_hash: %s\n", r.PayloadHash)
		fmt.Fprintf(&b, "      prev_hash: %s\n", r.PrevHash)
		fmt.Fprintf(&b, "      self_hash: %s\n", r.SelfHash)
		fmt.Fprintf(&b, "      immutable: true\n")
		fmt.Fprintf(&b, "      checksum: %s\n", r.Checksum)
	}
	leaves := make([]string, len(records))
	for i, r := range records {
		leaves[i] = r.PayloadHash
	}
	fmt.Fprintf(&b, "  anchored_root: %s\n", evidence.MerkleRoot(leaves))
	return mustDoc(t, b.String()), records
}

func TestChainShape(t *testing.T) {
	doc, _ := renderEvidenceDoc(t, 3)
	res := evalChain(shapeRule(ShapeChain, map[string]any{"path": "evidence.records"}), doc)
	assert.True(t, res.Passed, res.Message)

	// Corrupt a single hash character in the serialized document.
	raw, err := doc.Serialize()
	require.NoError(t, err)
	head := doc.Lookup("evidence.records.1.self_hash").Str
	corrupted := strings.Replace(string(raw), head, "0"+head[1:], 1)
	if head[0] == '0' {
		corrupted = strings.Replace(string(raw), head, "f"+head[1:], 1)
	}
	tampered, err := document.Parse([]byte(corrupted))
	require.NoError(t, err)

	res = evalChain(shapeRule(ShapeChain, map[string]any{"path": "evidence.records"}), tampered)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "record 1", "failure names the first broken index")
}

func TestChainShapeRejectsMalformedRecords(t *testing.T) {
	doc := mustDoc(t, `
evidence:
  records:
    - index: zero
      payload_hash: x
      prev_hash: GENESIS
      self_hash: y
`)
	res := evalChain(shapeRule(ShapeChain, map[string]any{"path": "evidence.records"}), doc)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "index must be a number")

	res = evalChain(shapeRule(ShapeChain, map[string]any{"path": "evidence.ghost"}), doc)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "absent")
}

func TestWormShape(t *testing.T) {
	doc, _ := renderEvidenceDoc(t, 2)
	res := evalWorm(shapeRule(ShapeWorm, map[string]any{"path": "evidence.records"}), doc)
	assert.True(t, res.Passed, res.Message)

	stripped := mustDoc(t, `
evidence:
  records:
    - index: 0
      payload_hash: p
      prev_hash: GENESIS
      self_hash: s
      immutable: false
      checksum: p
`)
	res = evalWorm(shapeRule(ShapeWorm, map[string]any{"path": "evidence.records"}), stripped)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "record 0")

	empty := mustDoc(t, "evidence:\n  records: []")
	res = evalWorm(shapeRule(ShapeWorm, map[string]any{"path": "evidence.records"}), empty)
	assert.False(t, res.Passed, "an empty batch must not pass by default")
}

func TestMerkleAnchorShape(t *testing.T) {
	doc, _ := renderEvidenceDoc(t, 3)
	params := map[string]any{"path": "evidence.records", "expect_path": "evidence.anchored_root"}

	res := evalMerkleAnchor(shapeRule(ShapeMerkleAnchor, params), doc)
	assert.True(t, res.Passed, res.Message)

	// Without an anchor expectation the shape still computes the root.
	res = evalMerkleAnchor(shapeRule(ShapeMerkleAnchor, map[string]any{"path": "evidence.records"}), doc)
	assert.True(t, res.Passed)

	wrongAnchor := map[string]any{"path": "evidence.records", "expect_path": "evidence.missing_root"}
	res = evalMerkleAnchor(shapeRule(ShapeMerkleAnchor, wrongAnchor), doc)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "absent or not a string")
}

func TestMerkleAnchorMismatch(t *testing.T) {
	doc, _ := renderEvidenceDoc(t, 3)
	raw, err := doc.Serialize()
	require.NoError(t, err)
	anchored := doc.Lookup("evidence.anchored_root").Str
	flipped := strings.Replace(string(raw), anchored, strings.Repeat("f", 64), 1)
	mismatched, err := document.Parse([]byte(flipped))
	require.NoError(t, err)

	params := map[string]any{"path": "evidence.records", "expect_path": "evidence.anchored_root"}
	res := evalMerkleAnchor(shapeRule(ShapeMerkleAnchor, params), mismatched)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "does not match anchored root")
}
