package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MerkleRoot builds a binary hash tree over an ordered list of leaf
// hashes and returns the root. Pairs are concatenated and hashed; an odd
// last element is promoted unchanged to the next level. A single leaf is
// its own root; an empty batch has no root.
func MerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

func nextLevel(level []string) []string {
	next := make([]string, 0, (len(level)+1)/2)
	for i := 0; i+1 < len(level); i += 2 {
		next = append(next, hashPair(level[i], level[i+1]))
	}
	if len(level)%2 == 1 {
		next = append(next, level[len(level)-1])
	}
	return next
}

func hashPair(left, right string) string {
	h := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(h[:])
}

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"` // sibling sits on the left of the current node
}

// Proof is an inclusion proof for one leaf of a batch. Levels where the
// leaf was promoted without a sibling contribute no step.
type Proof struct {
	LeafIndex int         `json:"leaf_index"`
	Steps     []ProofStep `json:"steps"`
}

// GenerateProof builds the inclusion proof for the leaf at index.
func GenerateProof(leaves []string, index int) (*Proof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("leaf index %d out of range (batch size %d)", index, len(leaves))
	}
	proof := &Proof{LeafIndex: index}
	level := append([]string(nil), leaves...)
	pos := index
	for len(level) > 1 {
		sibling := pos ^ 1
		if sibling < len(level) && !(pos == len(level)-1 && len(level)%2 == 1) {
			proof.Steps = append(proof.Steps, ProofStep{
				Hash: level[sibling],
				Left: sibling < pos,
			})
		}
		level = nextLevel(level)
		pos /= 2
	}
	return proof, nil
}

// VerifyProof replays the proof from the leaf hash and reports whether
// it reproduces the root.
func VerifyProof(leaf string, proof *Proof, root string) bool {
	if proof == nil {
		return false
	}
	current := leaf
	for _, step := range proof.Steps {
		if step.Left {
			current = hashPair(step.Hash, current)
		} else {
			current = hashPair(current, step.Hash)
		}
	}
	return current == root
}
