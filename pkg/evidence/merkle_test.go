package evidence

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerkleRootBasics(t *testing.T) {
	assert.Equal(t, "", MerkleRoot(nil), "empty batch has no root")
	assert.Equal(t, "leaf", MerkleRoot([]string{"leaf"}), "single leaf is its own root")

	two := MerkleRoot([]string{"a", "b"})
	assert.Equal(t, hashPair("a", "b"), two)
}

func TestMerkleRootOddLeafPromotedUnchanged(t *testing.T) {
	// With three leaves the last one is carried up as-is, not paired with
	// a duplicate of itself.
	root := MerkleRoot([]string{"a", "b", "c"})
	want := hashPair(hashPair("a", "b"), "c")
	assert.Equal(t, want, root)

	root5 := MerkleRoot([]string{"a", "b", "c", "d", "e"})
	want5 := hashPair(hashPair(hashPair("a", "b"), hashPair("c", "d")), "e")
	assert.Equal(t, want5, root5)
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	assert.NotEqual(t, MerkleRoot([]string{"a", "b"}), MerkleRoot([]string{"b", "a"}))
}

func TestProofRoundTrip(t *testing.T) {
	leaves := []string{"l0", "l1", "l2", "l3", "l4", "l5", "l6"}
	root := MerkleRoot(leaves)

	for i, leaf := range leaves {
		proof, err := GenerateProof(leaves, i)
		require.NoError(t, err)
		assert.True(t, VerifyProof(leaf, proof, root), "leaf %d proof must verify", i)
		assert.False(t, VerifyProof("tampered", proof, root))
	}
}

func TestProofSingleLeaf(t *testing.T) {
	proof, err := GenerateProof([]string{"only"}, 0)
	require.NoError(t, err)
	assert.Empty(t, proof.Steps)
	assert.True(t, VerifyProof("only", proof, MerkleRoot([]string{"only"})))
}

func TestProofIndexOutOfRange(t *testing.T) {
	_, err := GenerateProof([]string{"a"}, 1)
	assert.Error(t, err)
	_, err = GenerateProof([]string{"a"}, -1)
	assert.Error(t, err)
}

func TestVerifyProofNil(t *testing.T) {
	assert.False(t, VerifyProof("leaf", nil, "root"))
}

func TestMerkleProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	leafGen := gen.SliceOf(gen.RegexMatch("[a-f0-9]{8}")).
		SuchThat(func(xs []string) bool { return len(xs) > 0 })

	properties.Property("root is deterministic", prop.ForAll(
		func(leaves []string) bool {
			return MerkleRoot(leaves) == MerkleRoot(leaves)
		}, leafGen))

	properties.Property("every leaf has a verifying proof", prop.ForAll(
		func(leaves []string) bool {
			root := MerkleRoot(leaves)
			for i, leaf := range leaves {
				proof, err := GenerateProof(leaves, i)
				if err != nil || !VerifyProof(leaf, proof, root) {
					return false
				}
			}
			return true
		}, leafGen))

	properties.Property("appending a leaf changes the root", prop.ForAll(
		func(leaves []string) bool {
			return MerkleRoot(leaves) != MerkleRoot(append(append([]string(nil), leaves...), "extra-leaf"))
		}, leafGen))

	properties.TestingRun(t)
}
