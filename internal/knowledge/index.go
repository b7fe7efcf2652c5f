package knowledge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Match is one row of the index and its inner-product score against a query.
type Match struct {
	Row   int
	Score float32
}

// FlatIndex is an exact inner-product index over row vectors. Rows are expected to
// be L2-normalized, which makes the score a cosine similarity.
// A built index is read-only and safe for concurrent Search calls.
type FlatIndex struct {
	dim  int
	rows [][]float32
}

func NewFlatIndex(vectors [][]float32) (*FlatIndex, error) {
	idx := &FlatIndex{}
	if len(vectors) == 0 {
		return idx, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("flat index: zero-length vector")
	}
	for j, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("flat index: row %d has dimension %d, want %d", j, len(v), dim)
		}
	}
	idx.dim = dim
	idx.rows = append([][]float32(nil), vectors...)
	return idx, nil
}

func (i *FlatIndex) Len() int { return len(i.rows) }

func (i *FlatIndex) Dim() int { return i.dim }

// Search returns up to k rows in non-increasing score order. Ties keep row order.
// k larger than the index returns every row once.
func (i *FlatIndex) Search(query []float32, k int) ([]Match, error) {
	if len(i.rows) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("flat index: query dimension %d != index dimension %d", len(query), i.dim)
	}

	matches := make([]Match, len(i.rows))
	for j, row := range i.rows {
		matches[j] = Match{Row: j, Score: dot(query, row)}
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// MarshalBinary stores dim(uint32), n(uint32), then n rows of float32[dim], little-endian.
func (i *FlatIndex) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8, 8+4*i.dim*len(i.rows))
	binary.LittleEndian.PutUint32(out[0:4], uint32(i.dim))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(i.rows)))
	for _, row := range i.rows {
		for _, v := range row {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

func (i *FlatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.New("flat index: invalid data")
	}
	dim := uint64(binary.LittleEndian.Uint32(data[0:4]))
	n := uint64(binary.LittleEndian.Uint32(data[4:8]))
	if dim == 0 && n > 0 {
		return fmt.Errorf("flat index: %d rows of dimension 0", n)
	}
	// Both factors fit in 32 bits, so the product cannot overflow uint64.
	payload := uint64(len(data) - 8)
	if payload%4 != 0 || dim*n != payload/4 {
		return fmt.Errorf("flat index: %d bytes for %d rows of dimension %d, want %d", len(data), n, dim, 8+4*dim*n)
	}

	rows := make([][]float32, n)
	off := 8
	for r := range rows {
		row := make([]float32, int(dim))
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		rows[r] = row
	}

	built, err := NewFlatIndex(rows)
	if err != nil {
		return err
	}
	*i = *built
	return nil
}

func dot(a, b []float32) float32 {
	var s float64
	for j := range a {
		s += float64(a[j]) * float64(b[j])
	}
	return float32(s)
}
