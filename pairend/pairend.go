// Package pairend reconciles the alignments of the two mates of a read pair.
package pairend

import (
	"math/rand"

	"github.com/ngsalign/ra/alignment"
)

type Options struct {
	MaxFragmentLength int
	MaxAlignments     int
}

func DefaultOptions() Options {
	return Options{MaxFragmentLength: 500, MaxAlignments: 100}
}

// Category is the outcome of reconciling one pair.
type Category int

const (
	BothUnmapped Category = iota
	OneMapped
	Proper
	Improper
	Unpaired
)

func (c Category) String() string {
	switch c {
	case BothUnmapped:
		return "unmapped"
	case OneMapped:
		return "single"
	case Proper:
		return "proper"
	case Improper:
		return "improper"
	case Unpaired:
		return "unpaired"
	}
	return "unknown"
}

// Pair is two mate alignments with mate fields and pair flags filled in.
type Pair struct {
	First, Second alignment.ReadAlignment
}

// IsPair reports whether a and b face each other on the same sequence: the
// alignment reaching the rightmost end is reverse and the one reaching the
// leftmost start is forward. With proper set the span must also lie in
// (0, maxFragment].
func IsPair(a, b *alignment.ReadAlignment, proper bool, maxFragment int) bool {
	if a.IsUnmapped() || b.IsUnmapped() || a.SeqName != b.SeqName {
		return false
	}
	endMax, startMin := a.Last, a.First
	if b.Last > endMax {
		endMax = b.Last
	}
	if b.First < startMin {
		startMin = b.First
	}
	innie := (endMax == a.Last && a.IsReverse() && startMin == b.First && !b.IsReverse()) ||
		(endMax == b.Last && b.IsReverse() && startMin == a.First && !a.IsReverse())
	if !innie {
		return false
	}
	if proper {
		span := endMax - startMin
		return span > 0 && span <= maxFragment
	}
	return true
}

func mateFlag(first bool) alignment.Flags {
	if first {
		return alignment.FirstOfPair
	}
	return alignment.SecondOfPair
}

func makePair(a, b alignment.ReadAlignment, proper bool) Pair {
	bits := alignment.Paired
	if proper {
		bits |= alignment.ProperPair
	}
	a.SetFlags(bits | alignment.FirstOfPair)
	b.SetFlags(bits | alignment.SecondOfPair)
	a.SetMate(&b)
	b.SetMate(&a)
	return Pair{First: a, Second: b}
}

// FindPairs matches each of the first MaxAlignments alignments of mate 1
// with an unconsumed alignment of mate 2. Ties among qualifying candidates
// are broken with rng. The inputs are not modified.
func FindPairs(alns1, alns2 []alignment.ReadAlignment, proper bool, opt Options, rng *rand.Rand) []Pair {
	consumed := make([]bool, len(alns2))
	var pairs []Pair
	var cands []int
	for i := 0; i < len(alns1) && i < opt.MaxAlignments; i++ {
		cands = cands[:0]
		for j := range alns2 {
			if !consumed[j] && IsPair(&alns1[i], &alns2[j], proper, opt.MaxFragmentLength) {
				cands = append(cands, j)
			}
		}
		if len(cands) == 0 {
			continue
		}
		j := cands[0]
		if len(cands) > 1 {
			j = cands[rng.Intn(len(cands))]
		}
		consumed[j] = true
		pairs = append(pairs, makePair(alns1[i], alns2[j], proper))
	}
	return pairs
}

// Reconcile produces the output records of a read pair from the alignments
// of each mate.
func Reconcile(r1, r2 alignment.Read, alns1, alns2 []alignment.ReadAlignment, opt Options, rng *rand.Rand) ([]alignment.ReadAlignment, Category) {
	switch {
	case len(alns1) == 0 && len(alns2) == 0:
		u1, u2 := alignment.NewUnmapped(r1), alignment.NewUnmapped(r2)
		u1.SetFlags(alignment.Paired | alignment.MateUnmapped | alignment.FirstOfPair)
		u2.SetFlags(alignment.Paired | alignment.MateUnmapped | alignment.SecondOfPair)
		u1.MateName, u2.MateName = r2.Name, r1.Name
		return []alignment.ReadAlignment{u1, u2}, BothUnmapped
	case len(alns2) == 0:
		m, u := mateUnmapped(alns1, r2, true, rng)
		return []alignment.ReadAlignment{m, u}, OneMapped
	case len(alns1) == 0:
		m, u := mateUnmapped(alns2, r1, false, rng)
		return []alignment.ReadAlignment{u, m}, OneMapped
	}

	cat := Proper
	pairs := FindPairs(alns1, alns2, true, opt, rng)
	if len(pairs) == 0 {
		cat = Improper
		pairs = FindPairs(alns1, alns2, false, opt, rng)
	}
	if len(pairs) == 0 {
		return unpaired(alns1, alns2, opt), Unpaired
	}
	records := make([]alignment.ReadAlignment, 0, 2*len(pairs))
	for i := 0; i < len(pairs) && i < opt.MaxAlignments; i++ {
		records = append(records, pairs[i].First, pairs[i].Second)
	}
	return records, cat
}

// mateUnmapped picks one alignment of the mapped mate at random and builds
// the record of the unmapped mate placed against it.
func mateUnmapped(alns []alignment.ReadAlignment, unmapped alignment.Read, mappedFirst bool, rng *rand.Rand) (m, u alignment.ReadAlignment) {
	m = alns[rng.Intn(len(alns))]
	m.ClearFlags(alignment.Secondary)
	m.SetFlags(alignment.Paired | mateFlag(mappedFirst))
	u = alignment.NewUnmapped(unmapped)
	u.SetFlags(alignment.Paired | mateFlag(!mappedFirst))
	u.SetMate(&m)
	m.SetMate(&u)
	return m, u
}

func unpaired(alns1, alns2 []alignment.ReadAlignment, opt Options) []alignment.ReadAlignment {
	var records []alignment.ReadAlignment
	for k, alns := range [][]alignment.ReadAlignment{alns1, alns2} {
		for i := 0; i < len(alns) && i < opt.MaxAlignments; i++ {
			aln := alns[i]
			aln.SetFlags(alignment.Paired | mateFlag(k == 0))
			records = append(records, aln)
		}
	}
	return records
}
