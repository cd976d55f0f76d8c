package packseq

import (
	"math/rand"
	"testing"

	"github.com/ngsalign/ra/bnt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDNA(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = "ACGT"[rng.Intn(4)]
	}
	return string(b)
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 9, 10, 11, 20, 37, 1000} {
		s := randomDNA(rng, n)
		seq, err := NewFromString(bnt.DNA, s)
		require.NoError(t, err)
		assert.Equal(t, n, seq.Len())
		assert.Equal(t, s, seq.String())
		sub, err := seq.SubSequence(0, seq.Len())
		require.NoError(t, err)
		assert.Equal(t, s, sub.String())
	}
}

func TestSymbolsPerWord(t *testing.T) {
	assert.Equal(t, 10, New(bnt.DNA).SymbolsPerWord())
	assert.Equal(t, 8, New(bnt.DNAMasked).SymbolsPerWord())
}

func TestAppendAcrossWordBoundary(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	seq := New(bnt.DNA)
	want := ""
	for _, n := range []int{3, 7, 1, 10, 15, 0, 4, 23} {
		chunk := randomDNA(rng, n)
		require.NoError(t, seq.Append(chunk))
		want += chunk
		assert.Equal(t, want, seq.String())
		assert.Equal(t, len(want), seq.Len())
		assert.Len(t, seq.Words(), (len(want)+9)/10)
	}
}

func TestUnsupportedSymbol(t *testing.T) {
	_, err := NewFromString(bnt.DNA, "ACGNT")
	assert.True(t, errors.Is(err, ErrUnsupportedSymbol))

	seq, err := NewFromString(bnt.DNA, "ACGT")
	require.NoError(t, err)
	err = seq.Append("AX")
	assert.True(t, errors.Is(err, ErrUnsupportedSymbol))
	assert.Equal(t, "ACGT", seq.String())

	masked, err := NewFromString(bnt.DNAMasked, "ACRYt")
	require.NoError(t, err)
	assert.Equal(t, "ACNNt", masked.String())
}

func TestCharAtSetCharAt(t *testing.T) {
	seq, err := NewFromString(bnt.DNA, "ACGTACGTACGTACGTACGTAC")
	require.NoError(t, err)
	for i := 0; i < seq.Len(); i++ {
		for _, c := range []byte("ACGT") {
			require.NoError(t, seq.SetCharAt(i, c))
			got, err := seq.CharAt(i)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		}
	}
	require.NoError(t, seq.SetCharAt(3, 'G'))
	require.NoError(t, seq.SetCharAt(3, 'N'))
	got, _ := seq.CharAt(3)
	assert.Equal(t, byte('G'), got)

	_, err = seq.CharAt(seq.Len())
	assert.True(t, errors.Is(err, ErrRange))
	assert.True(t, errors.Is(seq.SetCharAt(-1, 'A'), ErrRange))
}

func TestSubSequence(t *testing.T) {
	s := "ACGTTGCAACGGTACCATGCAGT"
	seq, err := NewFromString(bnt.DNA, s)
	require.NoError(t, err)
	cases := []struct{ start, end int }{
		{0, 0}, {0, 1}, {3, 17}, {9, 11}, {10, 20}, {22, 23}, {23, 23}, {5, 23},
	}
	for _, c := range cases {
		sub, err := seq.SubSequence(c.start, c.end)
		require.NoError(t, err)
		assert.Equal(t, s[c.start:c.end], sub.String())
		assert.Equal(t, c.end-c.start, sub.Len())
	}
	for _, c := range []struct{ start, end int }{{-1, 3}, {2, 24}, {5, 4}} {
		_, err := seq.SubSequence(c.start, c.end)
		assert.True(t, errors.Is(err, ErrRange))
	}
}

func TestEncodingOverflow(t *testing.T) {
	// 255 symbols pack 4 per word; forcing a fifth exceeds 32 bits
	alpha := bnt.NewAlphabet("wide", uniqueLetters(255), 0)
	seq := New(alpha)
	assert.Equal(t, 4, seq.SymbolsPerWord())
	_, err := seq.encodeWord([]int{254, 254, 254, 254})
	assert.NoError(t, err)
	seq.perWord = 5
	_, err = seq.encodeWord([]int{254, 254, 254, 254, 254})
	assert.True(t, errors.Is(err, ErrEncodingOverflow))
}

func uniqueLetters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return string(b)
}

func TestFromWords(t *testing.T) {
	seq, err := NewFromString(bnt.DNAMasked, "ACGTNNacgtnACG")
	require.NoError(t, err)
	back, err := FromWords(bnt.DNAMasked, seq.Words(), seq.Len())
	require.NoError(t, err)
	assert.Equal(t, seq.String(), back.String())
	_, err = FromWords(bnt.DNAMasked, seq.Words(), 100)
	assert.True(t, errors.Is(err, ErrRange))
}

func BenchmarkAppend(b *testing.B) {
	chunk := randomDNA(rand.New(rand.NewSource(1)), 151)
	for i := 0; i < b.N; i++ {
		seq := New(bnt.DNA)
		for j := 0; j < 100; j++ {
			seq.Append(chunk)
		}
	}
}
