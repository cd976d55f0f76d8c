// Package refgenome composes one FM-index per reference sequence and keeps the
// sequences themselves packed for window extraction.
package refgenome

import (
	"io"
	"sync"
	"time"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	humanize "github.com/dustin/go-humanize"
	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/fmindex"
	"github.com/ngsalign/ra/packseq"
	"github.com/ngsalign/ra/readfile"
	"github.com/ngsalign/ra/seedfilter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownSequence = errors.New("unknown reference sequence")
	ErrRange           = errors.New("reference range out of bounds")
)

// SeqMeta names one reference sequence.
type SeqMeta struct {
	Name   string `toml:"name" json:"name"`
	Length int    `toml:"length" json:"length"`
}

// Hit is an exact match, 1-based inclusive.
type Hit struct {
	SeqName string `json:"name"`
	First   int    `json:"first"`
	Last    int    `json:"last"`
}

type Reference struct {
	Name string
	Seq  string
}

type BuildOptions struct {
	TallyDistance  int
	SuffixFraction int
	SeedFilter     bool
	KmerLength     int
	NumCPU         int
}

// Genome is read-only after Build or Load.
type Genome struct {
	meta    []SeqMeta
	byName  map[string]int
	indexes []*fmindex.Index
	seqs    []*packseq.Sequence
	filter  *seedfilter.Filter
	opt     BuildOptions
}

// LoadFasta reads every record of a reference FASTA file.
func LoadFasta(fn string) ([]Reference, error) {
	fp, err := readfile.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	r := fasta.NewReader(fp, linear.NewSeq("", nil, alphabet.DNA))
	var refs []Reference
	for {
		s, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "[LoadFasta] reference file: %s", fn)
		}
		ls := s.(*linear.Seq)
		b := make([]byte, len(ls.Seq))
		for i, l := range ls.Seq {
			b[i] = byte(l)
		}
		refs = append(refs, Reference{Name: ls.Name(), Seq: string(bnt.ToUpper(b))})
	}
	if len(refs) == 0 {
		return nil, errors.Errorf("[LoadFasta] no sequence found in %s", fn)
	}
	return refs, nil
}

// Build indexes refs with up to opt.NumCPU sequences in parallel.
func Build(refs []Reference, opt BuildOptions) (*Genome, error) {
	if len(refs) == 0 {
		return nil, errors.New("[Build] no reference sequence")
	}
	if opt.NumCPU < 1 {
		opt.NumCPU = 1
	}
	g := &Genome{
		meta:    make([]SeqMeta, len(refs)),
		byName:  make(map[string]int, len(refs)),
		indexes: make([]*fmindex.Index, len(refs)),
		seqs:    make([]*packseq.Sequence, len(refs)),
		opt:     opt,
	}
	for i, ref := range refs {
		if _, ok := g.byName[ref.Name]; ok {
			return nil, errors.Errorf("[Build] duplicate reference name %s", ref.Name)
		}
		g.byName[ref.Name] = i
		g.meta[i] = SeqMeta{Name: ref.Name, Length: len(ref.Seq)}
	}

	t0 := time.Now()
	jobs := make(chan int, len(refs))
	for i := range refs {
		jobs <- i
	}
	close(jobs)
	errs := make([]error, len(refs))
	var wg sync.WaitGroup
	for w := 0; w < opt.NumCPU; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = g.buildOne(i, refs[i])
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	var total int
	for _, m := range g.meta {
		total += m.Length
	}
	log.Infof("[Build] indexed %d sequences, %s bases in %v", len(refs), humanize.Comma(int64(total)), time.Since(t0))

	if opt.SeedFilter {
		g.buildSeedFilter(total)
	}
	return g, nil
}

func (g *Genome) buildOne(i int, ref Reference) error {
	packed, err := packseq.NewFromString(bnt.DNAMasked, ref.Seq)
	if err != nil {
		return errors.Wrapf(err, "[buildOne] pack %s", ref.Name)
	}
	idx, err := fmindex.Build(ref.Name, packed.String(), g.opt.TallyDistance, g.opt.SuffixFraction)
	if err != nil {
		return err
	}
	g.seqs[i] = packed
	g.indexes[i] = idx
	log.Debugf("[buildOne] %s: %d bases, alphabet %s", ref.Name, idx.Len(), idx.Alphabet())
	return nil
}

func (g *Genome) buildSeedFilter(total int) {
	k := g.opt.KmerLength
	g.filter = seedfilter.MakeFilter(uint64(total), k)
	for _, s := range g.seqs {
		seq := []byte(s.String())
		for i := 0; i+k <= len(seq); i++ {
			kmer := seq[i : i+k]
			if !bnt.DNA.Valid(string(kmer)) {
				continue
			}
			if !g.filter.Insert(kmer) {
				log.Warnf("[buildSeedFilter] filter disabled at load factor %.3f", g.filter.LoadFactor())
				return
			}
		}
	}
	log.Infof("[buildSeedFilter] %d distinct %d-mers, load factor %.3f", g.filter.NumItems, k, g.filter.LoadFactor())
}

// Search returns the exact hits of pattern in every sequence, in metadata order.
func (g *Genome) Search(pattern string) []Hit {
	if g.filter != nil && len(pattern) == g.filter.Kmerlen && !g.filter.Lookup([]byte(pattern)) {
		return nil
	}
	var hits []Hit
	for i, idx := range g.indexes {
		for _, r := range idx.Search(pattern) {
			hits = append(hits, Hit{SeqName: g.meta[i].Name, First: r.Start + 1, Last: r.End})
		}
	}
	return hits
}

// Count is the number of exact occurrences of pattern over every sequence,
// without locating them.
func (g *Genome) Count(pattern string) int {
	if g.filter != nil && len(pattern) == g.filter.Kmerlen && !g.filter.Lookup([]byte(pattern)) {
		return 0
	}
	var n int
	for _, idx := range g.indexes {
		n += idx.Count(pattern)
	}
	return n
}

// GetSequence returns positions first..last (1-based, inclusive) of name.
func (g *Genome) GetSequence(name string, first, last int) (string, error) {
	i, ok := g.byName[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownSequence, "[GetSequence] %s", name)
	}
	if first < 1 || last > g.meta[i].Length || last < first-1 {
		return "", errors.Wrapf(ErrRange, "[GetSequence] %s:%d-%d, length %d", name, first, last, g.meta[i].Length)
	}
	sub, err := g.seqs[i].SubSequence(first-1, last)
	if err != nil {
		return "", err
	}
	return sub.String(), nil
}

// ReferenceLength is 0 for unknown names.
func (g *Genome) ReferenceLength(name string) int {
	if i, ok := g.byName[name]; ok {
		return g.meta[i].Length
	}
	return 0
}

func (g *Genome) SequencesMetadata() []SeqMeta {
	return append([]SeqMeta(nil), g.meta...)
}

func (g *Genome) Index(name string) *fmindex.Index {
	if i, ok := g.byName[name]; ok {
		return g.indexes[i]
	}
	return nil
}

func (g *Genome) Options() BuildOptions { return g.opt }
