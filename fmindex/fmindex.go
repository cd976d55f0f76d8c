// Package fmindex is an FM-index over a single reference sequence: a BWT with a
// sampled tally table and a sparse suffix array.
package fmindex

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

const (
	Sentinel              = '$'
	DefaultTallyDistance  = 100
	DefaultSuffixFraction = 50
)

var ErrCorruptIndex = errors.New("corrupt FM-index")

// Region is an occurrence [Start, End) of a pattern, 0-based.
type Region struct {
	Start, End int
}

// Index is immutable once built and safe for concurrent readers.
type Index struct {
	name           string
	length         int
	tallyDistance  int
	suffixFraction int

	bwt      []byte
	alphabet []byte
	charIdx  [256]int16
	firstRow []int
	lastRow  []int // one past the last row
	tally    [][]int32

	sampled map[int]int // row -> position
	inverse map[int]int // position -> row
}

// BySuffix sorts sequence offsets by the suffix they start.
type BySuffix struct {
	seq string
	sa  []int32
}

func (s BySuffix) Len() int           { return len(s.sa) }
func (s BySuffix) Swap(i, j int)      { s.sa[i], s.sa[j] = s.sa[j], s.sa[i] }
func (s BySuffix) Less(i, j int) bool { return s.seq[s.sa[i]:] < s.seq[s.sa[j]:] }

// Build indexes seq. tallyDistance and suffixFraction of 0 select the defaults.
func Build(name, seq string, tallyDistance, suffixFraction int) (*Index, error) {
	if tallyDistance == 0 {
		tallyDistance = DefaultTallyDistance
	}
	if suffixFraction == 0 {
		suffixFraction = DefaultSuffixFraction
	}
	if tallyDistance < 0 || suffixFraction < 0 {
		return nil, errors.Errorf("[Build] tally distance %d and suffix fraction %d must be positive", tallyDistance, suffixFraction)
	}
	for i := 0; i < len(seq); i++ {
		if seq[i] == Sentinel {
			return nil, errors.Errorf("[Build] sequence %s holds sentinel '%c' at %d", name, Sentinel, i)
		}
	}
	x := &Index{name: name, length: len(seq), tallyDistance: tallyDistance, suffixFraction: suffixFraction}

	sa := make([]int32, len(seq))
	for i := range sa {
		sa[i] = int32(i)
	}
	sort.Sort(BySuffix{seq: seq, sa: sa})

	x.buildBWT(seq, sa)
	x.buildAlphabet(seq, sa)
	x.buildTally()
	x.buildSampledSuffixes(sa)
	return x, nil
}

func (x *Index) buildBWT(seq string, sa []int32) {
	x.bwt = make([]byte, len(seq)+1)
	if len(seq) == 0 {
		x.bwt[0] = Sentinel
		return
	}
	x.bwt[0] = seq[len(seq)-1]
	for i, p := range sa {
		if p == 0 {
			x.bwt[i+1] = Sentinel
		} else {
			x.bwt[i+1] = seq[p-1]
		}
	}
}

func (x *Index) buildAlphabet(seq string, sa []int32) {
	for i := range x.charIdx {
		x.charIdx[i] = -1
	}
	for i, p := range sa {
		c := seq[p]
		if n := len(x.alphabet); n > 0 && x.alphabet[n-1] == c {
			continue
		}
		if n := len(x.alphabet); n > 0 {
			x.lastRow = append(x.lastRow, i+1)
		}
		x.charIdx[c] = int16(len(x.alphabet))
		x.alphabet = append(x.alphabet, c)
		x.firstRow = append(x.firstRow, i+1)
	}
	if len(x.alphabet) > 0 {
		x.lastRow = append(x.lastRow, len(sa)+1)
	}
}

func (x *Index) buildTally() {
	rows := (len(x.bwt) + x.tallyDistance - 1) / x.tallyDistance
	x.tally = make([][]int32, rows)
	counts := make([]int32, len(x.alphabet))
	for i, c := range x.bwt {
		if c != Sentinel {
			counts[x.charIdx[c]]++
		}
		if i%x.tallyDistance == 0 {
			x.tally[i/x.tallyDistance] = append([]int32(nil), counts...)
		}
	}
}

func (x *Index) buildSampledSuffixes(sa []int32) {
	x.sampled = make(map[int]int, len(sa)/x.suffixFraction+1)
	for i, p := range sa {
		if int(p)%x.suffixFraction == 0 {
			x.sampled[i+1] = int(p)
		}
	}
	x.buildInverse()
}

func (x *Index) buildInverse() {
	x.inverse = make(map[int]int, len(x.sampled)+1)
	for row, p := range x.sampled {
		x.inverse[p] = row
	}
	x.inverse[x.length] = 0
}

func (x *Index) Name() string        { return x.name }
func (x *Index) Len() int             { return x.length }
func (x *Index) BWT() string          { return string(x.bwt) }
func (x *Index) Alphabet() string     { return string(x.alphabet) }
func (x *Index) TallyDistance() int   { return x.tallyDistance }
func (x *Index) SuffixFraction() int { return x.suffixFraction }

// TallyOf returns the number of c in bwt[0..row], walking from the nearest
// tally sample.
func (x *Index) TallyOf(c byte, row int) int {
	if row < 0 || row >= len(x.bwt) {
		panic(fmt.Sprintf("[TallyOf] row %d outside bwt of length %d", row, len(x.bwt)))
	}
	idx := x.charIdx[c]
	if idx < 0 {
		return 0
	}
	a := row / x.tallyDistance
	b := a + 1
	if row-a*x.tallyDistance < b*x.tallyDistance-row || b >= len(x.tally) {
		count := int(x.tally[a][idx])
		for j := a*x.tallyDistance + 1; j <= row; j++ {
			if x.bwt[j] == c {
				count++
			}
		}
		return count
	}
	count := int(x.tally[b][idx])
	for j := b * x.tallyDistance; j > row; j-- {
		if x.bwt[j] == c {
			count--
		}
	}
	return count
}

// occ counts c in bwt[0..row).
func (x *Index) occ(c byte, row int) int {
	if row == 0 {
		return 0
	}
	return x.TallyOf(c, row-1)
}

func (x *Index) lfMapping(row int) int {
	c := x.bwt[row]
	idx := x.charIdx[c]
	if idx < 0 {
		panic(fmt.Sprintf("[lfMapping] row %d holds '%c' outside alphabet %s", row, c, x.alphabet))
	}
	return x.firstRow[idx] + x.occ(c, row)
}

// Range runs the backward search for query and returns its row interval
// [start, end). ok is false when query does not occur.
func (x *Index) Range(query string) (start, end int, ok bool) {
	if len(query) == 0 {
		return 0, 0, false
	}
	idx := x.charIdx[query[len(query)-1]]
	if idx < 0 {
		return 0, 0, false
	}
	start, end = x.firstRow[idx], x.lastRow[idx]
	for i := len(query) - 2; i >= 0; i-- {
		c := query[i]
		idx = x.charIdx[c]
		if idx < 0 {
			return 0, 0, false
		}
		start = x.firstRow[idx] + x.occ(c, start)
		end = x.firstRow[idx] + x.occ(c, end)
		if start >= end {
			return 0, 0, false
		}
	}
	return start, end, true
}

// position recovers the original offset of the suffix at row.
func (x *Index) position(row int) int {
	for steps := 0; steps <= x.length; steps++ {
		if p, ok := x.sampled[row]; ok {
			return p + steps
		}
		row = x.lfMapping(row)
	}
	panic(fmt.Sprintf("[position] no sampled suffix reached for %s", x.name))
}

// Search returns every exact occurrence of pattern sorted by start.
func (x *Index) Search(pattern string) []Region {
	start, end, ok := x.Range(pattern)
	if !ok {
		return nil
	}
	regions := make([]Region, 0, end-start)
	for row := start; row < end; row++ {
		p := x.position(row)
		regions = append(regions, Region{Start: p, End: p + len(pattern)})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })
	return regions
}

// Count is the number of occurrences of pattern.
func (x *Index) Count(pattern string) int {
	start, end, ok := x.Range(pattern)
	if !ok {
		return 0
	}
	return end - start
}

// Extract rebuilds seq[start:end) from the BWT, starting at the nearest
// sampled position at or after end.
func (x *Index) Extract(start, end int) (string, error) {
	if start < 0 || end > x.length || end < start {
		return "", errors.Errorf("[Extract] range [%d,%d) outside %s of length %d", start, end, x.name, x.length)
	}
	p := (end + x.suffixFraction - 1) / x.suffixFraction * x.suffixFraction
	if p > x.length {
		p = x.length
	}
	row, ok := x.inverse[p]
	if !ok {
		panic(fmt.Sprintf("[Extract] position %d not sampled in %s", p, x.name))
	}
	out := make([]byte, end-start)
	for pos := p; pos > start; pos-- {
		if pos <= end {
			out[pos-1-start] = x.bwt[row]
		}
		row = x.lfMapping(row)
	}
	return string(out), nil
}
