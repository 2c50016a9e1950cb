package facestore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MappingEntry ties a matrix row back to its owner.
type MappingEntry struct {
	IdentityID string
	Index      int // position within the identity's embeddings
}

// Snapshot is an immutable (matrix, mapping) pair. Row i of Matrix belongs to
// Mapping[i]. Matrix is nil when no embeddings exist.
type Snapshot struct {
	Matrix  *mat.Dense
	Mapping []MappingEntry
}

// Rows returns the number of reference embeddings.
func (s *Snapshot) Rows() int {
	if s == nil {
		return 0
	}
	return len(s.Mapping)
}

// Dim returns the embedding dimension, 0 for an empty snapshot.
func (s *Snapshot) Dim() int {
	if s == nil || s.Matrix == nil {
		return 0
	}
	_, c := s.Matrix.Dims()
	return c
}

var emptySnapshot = &Snapshot{}

// buildSnapshot stacks every embedding, identities in stored order and
// embeddings in stored order, into one row-major matrix.
func buildSnapshot(identities []*Identity) (*Snapshot, error) {
	total, dim := 0, 0
	for _, ident := range identities {
		for _, emb := range ident.Embeddings {
			if dim == 0 {
				dim = len(emb)
			}
			if len(emb) != dim {
				return nil, fmt.Errorf("identity %s: embedding dimension %d, want %d", ident.ID, len(emb), dim)
			}
			total++
		}
	}
	if total == 0 || dim == 0 {
		return emptySnapshot, nil
	}

	data := make([]float64, 0, total*dim)
	mapping := make([]MappingEntry, 0, total)
	for _, ident := range identities {
		for i, emb := range ident.Embeddings {
			for _, v := range emb {
				data = append(data, float64(v))
			}
			mapping = append(mapping, MappingEntry{IdentityID: ident.ID, Index: i})
		}
	}

	return &Snapshot{Matrix: mat.NewDense(total, dim, data), Mapping: mapping}, nil
}

// artifact is the on-disk form of a snapshot. Matrix holds gonum's binary
// encoding of the dense matrix.
type artifact struct {
	Matrix  []byte
	Mapping []MappingEntry
}

func encodeSnapshot(s *Snapshot) ([]byte, error) {
	var a artifact
	if s.Matrix != nil {
		raw, err := s.Matrix.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal matrix: %w", err)
		}
		a.Matrix = raw
		a.Mapping = s.Mapping
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var a artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(a.Matrix) == 0 {
		return emptySnapshot, nil
	}

	var m mat.Dense
	if err := m.UnmarshalBinary(a.Matrix); err != nil {
		return nil, fmt.Errorf("unmarshal matrix: %w", err)
	}
	if r, _ := m.Dims(); r != len(a.Mapping) {
		return nil, fmt.Errorf("artifact has %d rows but %d mapping entries", r, len(a.Mapping))
	}
	return &Snapshot{Matrix: &m, Mapping: a.Mapping}, nil
}
