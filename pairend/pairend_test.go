package pairend

import (
	"math/rand"
	"testing"

	"github.com/ngsalign/ra/alignment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aln(name, seq string, first, last int, reverse bool) alignment.ReadAlignment {
	a := alignment.ReadAlignment{SeqName: seq, First: first, Last: last, ReadLength: last - first + 1, ReadName: name, Quality: 100}
	if reverse {
		a.SetFlags(alignment.Reverse)
	}
	return a
}

var (
	read1 = alignment.Read{Name: "frag/1", Seq: "ACGT"}
	read2 = alignment.Read{Name: "frag/2", Seq: "TTGC"}
)

func TestIsPair(t *testing.T) {
	cases := []struct {
		name   string
		a, b   alignment.ReadAlignment
		proper bool
		want   bool
	}{
		{"innie", aln("a", "chr1", 100, 150, false), aln("b", "chr1", 300, 350, true), true, true},
		{"innie swapped", aln("a", "chr1", 300, 350, true), aln("b", "chr1", 100, 150, false), true, true},
		{"outie", aln("a", "chr1", 100, 150, true), aln("b", "chr1", 300, 350, false), false, false},
		{"same strand", aln("a", "chr1", 100, 150, false), aln("b", "chr1", 300, 350, false), false, false},
		{"other sequence", aln("a", "chr1", 100, 150, false), aln("b", "chr2", 300, 350, true), false, false},
		{"too far", aln("a", "chr1", 100, 150, false), aln("b", "chr1", 560, 610, true), true, false},
		{"too far improper", aln("a", "chr1", 100, 150, false), aln("b", "chr1", 560, 610, true), false, true},
		{"span limit", aln("a", "chr1", 100, 150, false), aln("b", "chr1", 550, 600, true), true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsPair(&c.a, &c.b, c.proper, 500))
		})
	}
}

func TestReconcileProperPair(t *testing.T) {
	a1 := []alignment.ReadAlignment{aln("frag/1", "chr1", 100, 150, false)}
	a2 := []alignment.ReadAlignment{aln("frag/2", "chr1", 300, 350, true)}
	recs, cat := Reconcile(read1, read2, a1, a2, DefaultOptions(), rand.New(rand.NewSource(1)))
	require.Len(t, recs, 2)
	assert.Equal(t, Proper, cat)
	r1, r2 := recs[0], recs[1]
	for _, r := range recs {
		assert.True(t, r.IsPaired())
		assert.True(t, r.IsProperPair())
	}
	assert.True(t, r1.Flags.Has(alignment.FirstOfPair))
	assert.True(t, r2.Flags.Has(alignment.SecondOfPair))
	assert.True(t, r2.IsReverse())
	assert.True(t, r1.Flags.Has(alignment.MateReverse))
	assert.Equal(t, "chr1", r1.MateSeqName)
	assert.Equal(t, 300, r1.MateFirst)
	assert.Equal(t, 100, r2.MateFirst)
	assert.Equal(t, "frag/2", r1.MateName)
	assert.False(t, a1[0].IsPaired(), "inputs untouched")
}

func TestReconcileImproperAndUnpaired(t *testing.T) {
	opt := DefaultOptions()
	rng := rand.New(rand.NewSource(2))
	a1 := []alignment.ReadAlignment{aln("frag/1", "chr1", 100, 150, false)}
	far := []alignment.ReadAlignment{aln("frag/2", "chr1", 5000, 5050, true)}
	recs, cat := Reconcile(read1, read2, a1, far, opt, rng)
	assert.Equal(t, Improper, cat)
	require.Len(t, recs, 2)
	assert.False(t, recs[0].IsProperPair())
	assert.True(t, recs[0].IsPaired())

	other := []alignment.ReadAlignment{aln("frag/2", "chr2", 300, 350, true), aln("frag/2", "chr3", 10, 60, true)}
	recs, cat = Reconcile(read1, read2, a1, other, opt, rng)
	assert.Equal(t, Unpaired, cat)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].Flags.Has(alignment.FirstOfPair))
	assert.True(t, recs[2].Flags.Has(alignment.SecondOfPair))
	assert.Equal(t, "", recs[0].MateSeqName)
}

func TestReconcileBothUnmapped(t *testing.T) {
	recs, cat := Reconcile(read1, read2, nil, nil, DefaultOptions(), rand.New(rand.NewSource(3)))
	assert.Equal(t, BothUnmapped, cat)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.IsUnmapped())
		assert.True(t, r.IsMateUnmapped())
		assert.Equal(t, "", r.MateSeqName)
		assert.Equal(t, 0, r.MateFirst)
	}
	assert.Equal(t, "frag/2", recs[0].MateName)
	assert.Equal(t, "frag/1", recs[1].MateName)
	assert.Equal(t, "ACGT", recs[0].ReadSeq)
}

func TestReconcileOneMapped(t *testing.T) {
	a2 := []alignment.ReadAlignment{aln("frag/2", "chr1", 300, 350, true), aln("frag/2", "chr4", 10, 60, false)}
	a2[1].SetFlags(alignment.Secondary)
	recs, cat := Reconcile(read1, read2, nil, a2, DefaultOptions(), rand.New(rand.NewSource(4)))
	assert.Equal(t, OneMapped, cat)
	require.Len(t, recs, 2)
	u, m := recs[0], recs[1]
	assert.True(t, u.IsUnmapped())
	assert.True(t, u.Flags.Has(alignment.FirstOfPair))
	assert.True(t, m.Flags.Has(alignment.SecondOfPair))
	assert.True(t, m.IsMateUnmapped())
	assert.False(t, m.IsSecondary())
	assert.Equal(t, m.SeqName, u.MateSeqName)
	assert.Equal(t, m.First, u.MateFirst)
	assert.Equal(t, m.IsReverse(), u.Flags.Has(alignment.MateReverse))
}

func TestFindPairsChoosesAmongCandidates(t *testing.T) {
	a1 := []alignment.ReadAlignment{aln("r/1", "chr1", 100, 150, false)}
	a2 := []alignment.ReadAlignment{
		aln("r/2", "chr9", 300, 350, true),
		aln("r/2", "chr1", 200, 250, true),
		aln("r/2", "chr1", 400, 450, true),
		aln("r/2", "chr7", 300, 350, false),
	}
	seen := map[int]bool{}
	for seed := int64(0); seed < 50; seed++ {
		pairs := FindPairs(a1, a2, true, DefaultOptions(), rand.New(rand.NewSource(seed)))
		require.Len(t, pairs, 1)
		assert.Equal(t, "chr1", pairs[0].Second.SeqName)
		seen[pairs[0].Second.First] = true
	}
	assert.Equal(t, map[int]bool{200: true, 400: true}, seen)
}

func TestFindPairsConsumesMates(t *testing.T) {
	a1 := []alignment.ReadAlignment{aln("r/1", "chr1", 100, 150, false), aln("r/1", "chr1", 120, 170, false)}
	a2 := []alignment.ReadAlignment{aln("r/2", "chr1", 300, 350, true)}
	pairs := FindPairs(a1, a2, true, DefaultOptions(), rand.New(rand.NewSource(5)))
	require.Len(t, pairs, 1)
	assert.Equal(t, 100, pairs[0].First.First)

	opt := DefaultOptions()
	opt.MaxAlignments = 1
	many := []alignment.ReadAlignment{aln("r/1", "chr2", 1, 50, false), aln("r/1", "chr1", 100, 150, false)}
	assert.Empty(t, FindPairs(many, a2, true, opt, rand.New(rand.NewSource(5))))
}
