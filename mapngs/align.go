package mapngs

import (
	"math"
	"sort"
	"strconv"

	"github.com/ngsalign/ra/alignment"
	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/refgenome"
	"github.com/ngsalign/ra/utils"
	log "github.com/sirupsen/logrus"
)

// IndexProvider is the reference the aligner searches. Implementations must
// be safe for concurrent readers.
type IndexProvider interface {
	Search(pattern string) []refgenome.Hit
	GetSequence(name string, first, last int) (string, error)
	ReferenceLength(name string) int
	SequencesMetadata() []refgenome.SeqMeta
}

// Aligner holds no mutable state; one instance serves every worker.
type Aligner struct {
	idx IndexProvider
	opt Options
}

func NewAligner(idx IndexProvider, opt Options) *Aligner {
	return &Aligner{idx: idx, opt: opt}
}

func (a *Aligner) Options() Options { return a.opt }

// AlignRead aligns r on both strands (or only the forward one) and returns
// the filtered alignments, best first. An empty result means unmapped.
func (a *Aligner) AlignRead(r alignment.Read) []alignment.ReadAlignment {
	alns := a.alignQuery(r, r.Seq, r.Qual, false)
	if !a.opt.OnlyPositiveStrand {
		alns = append(alns, a.alignQuery(r, bnt.ReverseComplement(r.Seq), bnt.Reverse(r.Qual), true)...)
	}
	return FilterAlignments(alns, a.opt.SecondaryFraction, a.opt.AmbiguousScale)
}

// Clusters returns the seeds and seed-hit clusters of query on the forward strand.
func (a *Aligner) Clusters(query string) ([]Seed, []*Cluster) {
	seeds := SelectSeeds(query, a.opt.KmerLength)
	var hits []SeedHit
	for _, s := range seeds {
		for _, h := range a.idx.Search(s.Kmer) {
			hits = append(hits, SeedHit{Hit: h, QueryOffset: s.Offset})
		}
	}
	return seeds, BuildClusters(hits, a.idx.SequencesMetadata(), len(query), a.opt.KmerLength)
}

func (a *Aligner) alignQuery(r alignment.Read, query, qual string, reverse bool) []alignment.ReadAlignment {
	seeds, clusters := a.Clusters(query)
	if len(seeds) == 0 {
		return nil
	}
	var alns []alignment.ReadAlignment
	for _, c := range clusters {
		aln, ok := a.promote(c, len(seeds), query)
		if !ok {
			continue
		}
		aln.ReadName, aln.ReadSeq, aln.ReadQual = r.Name, query, qual
		if reverse {
			aln.SetFlags(alignment.Reverse)
		}
		alns = append(alns, aln)
	}
	return alns
}

// promote turns a cluster into an alignment when enough seeds support it.
func (a *Aligner) promote(c *Cluster, totalSeeds int, query string) (alignment.ReadAlignment, bool) {
	qlen := len(query)
	aln := alignment.ReadAlignment{SeqName: c.SeqName, ReadLength: qlen}
	if float64(c.DistinctSeeds())/float64(totalSeeds) < a.opt.MinKmerProportion {
		return aln, false
	}
	if c.AllConsistent && c.FirstPresent && c.LastPresent {
		span, err := a.idx.GetSequence(c.SeqName, c.First, c.Last)
		if err != nil {
			log.Warnf("[promote] span %s:%d-%d: %v", c.SeqName, c.First, c.Last, err)
			return aln, false
		}
		aln.First, aln.Last = c.First, c.Last
		aln.Cigar = strconv.Itoa(qlen) + "M"
		aln.Distance = mismatches(query, span)
		aln.Quality = 100
		return aln, true
	}

	first, last := c.First, c.Last
	if !c.FirstPresent {
		first -= a.opt.WindowPadding
	}
	if !c.LastPresent {
		last += a.opt.WindowPadding
	}
	first = utils.MaxInt(first, 1)
	last = utils.MinInt(last, a.idx.ReferenceLength(c.SeqName))
	if last-first+1 < qlen {
		return aln, false
	}
	window, err := a.idx.GetSequence(c.SeqName, first, last)
	if err != nil {
		log.Warnf("[promote] window %s:%d-%d: %v", c.SeqName, first, last, err)
		return aln, false
	}
	res := AlignDP(query, window)
	if float64(res.Distance) > a.opt.MaxDistanceFraction*float64(qlen) || res.End < res.Start {
		return aln, false
	}
	aln.First = first + res.Start
	aln.Last = first + res.End
	aln.Cigar = res.Cigar
	aln.Distance = res.Distance
	aln.Quality = math.Round(100 * float64(qlen-res.Distance) / float64(qlen))
	return aln, true
}

// mismatches counts the differing positions of two gap free strings; any
// length difference counts as mismatches too.
func mismatches(a, b string) int {
	n := utils.MinInt(len(a), len(b))
	d := utils.MaxInt(len(a), len(b)) - n
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// FilterAlignments keeps alignments within keep*best quality, best first.
// Every survivor but the first is secondary and, when several survive, all
// qualities are multiplied by scale.
func FilterAlignments(alns []alignment.ReadAlignment, keep, scale float64) []alignment.ReadAlignment {
	if len(alns) == 0 {
		return nil
	}
	sort.SliceStable(alns, func(i, j int) bool { return alns[i].Quality > alns[j].Quality })
	threshold := keep * alns[0].Quality
	kept := alns[:0]
	for _, aln := range alns {
		if aln.Quality < threshold {
			continue
		}
		if len(kept) > 0 {
			aln.SetFlags(alignment.Secondary)
		}
		kept = append(kept, aln)
	}
	if len(kept) > 1 {
		for i := range kept {
			kept[i].Quality *= scale
		}
	}
	return kept
}

// ExactHit is an exact occurrence of a whole pattern on one strand.
type ExactHit struct {
	refgenome.Hit
	Reverse bool `json:"reverse"`
}

// ExactHits searches pattern and, unless restricted to the forward strand,
// its reverse complement.
func (a *Aligner) ExactHits(pattern string) []ExactHit {
	var hits []ExactHit
	for _, h := range a.idx.Search(pattern) {
		hits = append(hits, ExactHit{Hit: h})
	}
	if rc := bnt.ReverseComplement(pattern); !a.opt.OnlyPositiveStrand && rc != pattern {
		for _, h := range a.idx.Search(rc) {
			hits = append(hits, ExactHit{Hit: h, Reverse: true})
		}
	}
	return hits
}
