package mapngs

import (
	"sort"

	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/refgenome"
)

// Seed is a query window searched exactly in the index.
type Seed struct {
	Offset int
	Kmer   string
}

// SelectSeeds tiles query with non-overlapping k-mers and adds one anchored
// at the end when the tiling misses the last bases. Windows with non ACGT
// symbols are dropped.
func SelectSeeds(query string, k int) []Seed {
	var seeds []Seed
	if len(query) < k {
		return nil
	}
	lastPos := 0
	for i := 0; i+k <= len(query); i += k {
		seeds = appendSeed(seeds, query, i, k)
		lastPos = i
	}
	if len(query)-k > lastPos {
		seeds = appendSeed(seeds, query, len(query)-k, k)
	}
	return seeds
}

func appendSeed(seeds []Seed, query string, i, k int) []Seed {
	kmer := query[i : i+k]
	if !bnt.DNA.Valid(kmer) {
		return seeds
	}
	return append(seeds, Seed{Offset: i, Kmer: kmer})
}

// SeedHit is one index match of a seed.
type SeedHit struct {
	refgenome.Hit
	QueryOffset int
}

// Cluster groups seed hits projecting to overlapping query placements.
// First and Last are the estimated 1-based reference span of the query.
type Cluster struct {
	SeqName       string
	First, Last   int
	AllConsistent bool
	FirstPresent  bool
	LastPresent   bool
	Hits          []SeedHit
	offsets       map[int]struct{}
}

func newCluster(h SeedHit, queryLen, k int) *Cluster {
	c := &Cluster{
		SeqName:       h.SeqName,
		AllConsistent: true,
		offsets:       map[int]struct{}{},
	}
	c.First, c.Last = projection(h, queryLen)
	c.add(h, queryLen, k)
	return c
}

func projection(h SeedHit, queryLen int) (first, last int) {
	return h.First - h.QueryOffset, h.First + (queryLen - h.QueryOffset - 1)
}

func (c *Cluster) overlaps(h SeedHit, queryLen int) bool {
	first, last := projection(h, queryLen)
	return h.SeqName == c.SeqName && first <= c.Last && last >= c.First
}

func (c *Cluster) add(h SeedHit, queryLen, k int) {
	first, last := projection(h, queryLen)
	if first != c.First || last != c.Last {
		c.AllConsistent = false
	}
	if first < c.First {
		c.First = first
	}
	if last > c.Last {
		c.Last = last
	}
	if h.QueryOffset == 0 {
		c.FirstPresent = true
	}
	if h.QueryOffset+k == queryLen {
		c.LastPresent = true
	}
	c.offsets[h.QueryOffset] = struct{}{}
	c.Hits = append(c.Hits, h)
}

// DistinctSeeds is the number of different query offsets in the cluster.
func (c *Cluster) DistinctSeeds() int { return len(c.offsets) }

// BuildClusters sweeps the hits of each sequence in coordinate order, in the
// order of seqs, and merges each hit into the current cluster when their
// projected spans overlap.
func BuildClusters(hits []SeedHit, seqs []refgenome.SeqMeta, queryLen, k int) []*Cluster {
	bySeq := make(map[string][]SeedHit)
	for _, h := range hits {
		bySeq[h.SeqName] = append(bySeq[h.SeqName], h)
	}
	var clusters []*Cluster
	for _, m := range seqs {
		sh := bySeq[m.Name]
		if len(sh) == 0 {
			continue
		}
		sort.Slice(sh, func(i, j int) bool {
			if sh[i].First != sh[j].First {
				return sh[i].First < sh[j].First
			}
			return sh[i].QueryOffset < sh[j].QueryOffset
		})
		var cur *Cluster
		for _, h := range sh {
			if cur != nil && cur.overlaps(h, queryLen) {
				cur.add(h, queryLen, k)
				continue
			}
			cur = newCluster(h, queryLen, k)
			clusters = append(clusters, cur)
		}
	}
	return clusters
}
