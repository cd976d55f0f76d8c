package mapngs

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/jwaldrip/odin/cli"
	"github.com/ngsalign/ra/alignment"
	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/pairend"
	"github.com/ngsalign/ra/readfile"
	"github.com/ngsalign/ra/refgenome"
	"github.com/ngsalign/ra/samout"
	"github.com/ngsalign/ra/utils"
	"github.com/ngsalign/ra/workpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RecordSink receives the output records; calls come from one goroutine.
type RecordSink interface {
	Write(aln *alignment.ReadAlignment) error
}

// Mapper aligns units of work (a read or a read pair) against one index.
type Mapper struct {
	Aligner *Aligner
	Pair    pairend.Options
	Seed    int64
	NumCPU  int

	// GraphPrefix and GraphReads enable DOT dumps of the first reads.
	GraphPrefix string
	GraphReads  int
}

func NewMapper(idx IndexProvider, opt Options, pair pairend.Options, seed int64, numCPU int) *Mapper {
	return &Mapper{Aligner: NewAligner(idx, opt), Pair: pair, Seed: seed, NumCPU: numCPU}
}

// rng is the per unit source of randomness, fixed by the seed and the name.
func (m *Mapper) rng(name string) *rand.Rand {
	return rand.New(rand.NewSource(m.Seed ^ int64(xxhash.Sum64String(name))))
}

// MapSingle returns the records of a single end read.
func (m *Mapper) MapSingle(r alignment.Read) ([]alignment.ReadAlignment, Stats) {
	var st Stats
	alns := m.Aligner.AlignRead(r)
	st.AddRead(len(alns))
	if len(alns) == 0 {
		return []alignment.ReadAlignment{alignment.NewUnmapped(r)}, st
	}
	if limit := m.Aligner.Options().MaxAlignments; len(alns) > limit {
		alns = alns[:limit]
	}
	return alns, st
}

// MapPair aligns both mates and reconciles them with maxFragment as the
// proper pair bound (the mapper default when zero).
func (m *Mapper) MapPair(r1, r2 alignment.Read, maxFragment int) ([]alignment.ReadAlignment, pairend.Category, Stats) {
	var st Stats
	alns1 := m.Aligner.AlignRead(r1)
	alns2 := m.Aligner.AlignRead(r2)
	st.AddRead(len(alns1))
	st.AddRead(len(alns2))
	opt := m.Pair
	if maxFragment > 0 {
		opt.MaxFragmentLength = maxFragment
	}
	recs, cat := pairend.Reconcile(r1, r2, alns1, alns2, opt, m.rng(alignment.PairName(r1.Name)))
	st.AddPair(cat)
	log.Debugf("[MapPair] %s: %s, %d records", r1.Name, cat, len(recs))
	return recs, cat, st
}

type mapResult struct {
	recs []alignment.ReadAlignment
	st   Stats
}

// Run maps every library and streams the records to sink. Workers share the
// index read-only; a single goroutine writes the records and merges stats.
func (m *Mapper) Run(ctx context.Context, libs []utils.LibInfo, sink RecordSink) (Stats, error) {
	numCPU := utils.MaxInt(m.NumCPU, 1)
	pool := workpool.New(numCPU, numCPU*64)
	out := make(chan mapResult, numCPU*64)
	var total Stats
	var werr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range out {
			total.Merge(res.st)
			for i := range res.recs {
				if werr != nil {
					break
				}
				werr = sink.Write(&res.recs[i])
			}
		}
	}()

	var units int64
	var rerr error
	for _, lib := range libs {
		log.Infof("[Run] mapping lib %s: %s", lib.Name, strings.Join(lib.Reads, ","))
		if rerr = m.queueLib(ctx, pool, lib, out, &units); rerr != nil {
			break
		}
	}
	terr := pool.Terminate(ctx)
	close(out)
	<-done
	if failed := pool.Failed(); failed > 0 {
		log.Warnf("[Run] %d units failed", failed)
	}
	switch {
	case rerr != nil:
		return total, rerr
	case terr != nil:
		return total, terr
	case werr != nil:
		return total, errors.Wrap(werr, "[Run] write record")
	}
	return total, nil
}

func (m *Mapper) queueLib(ctx context.Context, pool *workpool.Pool, lib utils.LibInfo, out chan<- mapResult, units *int64) error {
	if lib.Paired {
		pr, err := readfile.NewPairReader(lib.Reads[0], lib.Reads[1])
		if err != nil {
			return err
		}
		defer pr.Close()
		for {
			r1, r2, err := pr.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			n := atomic.AddInt64(units, 1)
			task := func() {
				out <- m.pairUnit(n, r1, r2, lib.MaxInsert)
			}
			if err = pool.QueueTask(ctx, task); err != nil {
				return err
			}
		}
	}
	for _, fn := range lib.Reads {
		if err := m.queueSingle(ctx, pool, fn, out, units); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mapper) queueSingle(ctx context.Context, pool *workpool.Pool, fn string, out chan<- mapResult, units *int64) error {
	rd, err := readfile.NewReader(fn)
	if err != nil {
		return err
	}
	defer rd.Close()
	for {
		r, err := rd.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		n := atomic.AddInt64(units, 1)
		task := func() {
			out <- m.singleUnit(n, r)
		}
		if err = pool.QueueTask(ctx, task); err != nil {
			return err
		}
	}
}

// singleUnit maps one read; a panic while aligning it reports the read
// unmapped instead of losing it.
func (m *Mapper) singleUnit(n int64, r alignment.Read) (res mapResult) {
	defer func() {
		if p := recover(); p != nil {
			log.Warnf("[singleUnit] read %s: %v, reported unmapped", r.Name, p)
			res = mapResult{recs: []alignment.ReadAlignment{alignment.NewUnmapped(r)}}
			res.st.AddRead(0)
		}
	}()
	m.dumpGraph(n, r)
	recs, st := m.MapSingle(r)
	return mapResult{recs, st}
}

func (m *Mapper) pairUnit(n int64, r1, r2 alignment.Read, maxFragment int) (res mapResult) {
	defer func() {
		if p := recover(); p != nil {
			log.Warnf("[pairUnit] pair %s: %v, reported unmapped", r1.Name, p)
			recs, cat := pairend.Reconcile(r1, r2, nil, nil, m.Pair, m.rng(alignment.PairName(r1.Name)))
			res = mapResult{recs: recs}
			res.st.AddRead(0)
			res.st.AddRead(0)
			res.st.AddPair(cat)
		}
	}()
	m.dumpGraph(n, r1)
	recs, _, st := m.MapPair(r1, r2, maxFragment)
	return mapResult{recs, st}
}

func (m *Mapper) dumpGraph(n int64, r alignment.Read) {
	if n > int64(m.GraphReads) || m.GraphPrefix == "" {
		return
	}
	seeds, clusters := m.Aligner.Clusters(r.Seq)
	fn := fmt.Sprintf("%s.%d.dot", m.GraphPrefix, n)
	fp, err := os.Create(fn)
	if err != nil {
		log.Warnf("[dumpGraph] create %s: %v", fn, err)
		return
	}
	defer fp.Close()
	if err = WriteClustersGraph(fp, r.Name, seeds, clusters); err != nil {
		log.Warnf("[dumpGraph] %v", err)
	}
}

// MapOptions gathers the map command arguments.
type MapOptions struct {
	utils.ArgsOpt
	Reads1, Reads2 string
	Out, Format    string
	Seed           int64
	Graph          int
	Align          Options
	Pair           pairend.Options
}

func checkArgs(c cli.Command) (opt MapOptions, succ bool) {
	opt.Align = DefaultOptions()
	opt.Pair = pairend.DefaultOptions()
	opt.Reads1 = c.Flag("Reads1").String()
	opt.Reads2 = c.Flag("Reads2").String()
	opt.Out = c.Flag("Out").String()
	opt.Format = c.Flag("Format").String()
	if opt.Format != "sam" && opt.Format != "bam" {
		log.Errorf("[checkArgs] argument 'Format': %v must be sam|bam", opt.Format)
		return opt, false
	}
	var ok bool
	if opt.Align.MinKmerProportion, ok = c.Flag("MinKmerProportion").Get().(float64); !ok {
		log.Errorf("[checkArgs] argument 'MinKmerProportion': %v set error", c.Flag("MinKmerProportion"))
		return opt, false
	}
	if opt.Align.MaxAlignments, ok = c.Flag("MaxAlignments").Get().(int); !ok {
		log.Errorf("[checkArgs] argument 'MaxAlignments': %v set error", c.Flag("MaxAlignments"))
		return opt, false
	}
	opt.Pair.MaxAlignments = opt.Align.MaxAlignments
	if opt.Pair.MaxFragmentLength, ok = c.Flag("MaxFragment").Get().(int); !ok || opt.Pair.MaxFragmentLength < 1 {
		log.Errorf("[checkArgs] argument 'MaxFragment': %v set error", c.Flag("MaxFragment"))
		return opt, false
	}
	opt.Align.OnlyPositiveStrand, _ = c.Flag("OnlyPositive").Get().(bool)
	if opt.Seed, ok = c.Flag("Seed").Get().(int64); !ok {
		log.Errorf("[checkArgs] argument 'Seed': %v set error", c.Flag("Seed"))
		return opt, false
	}
	if opt.Graph, ok = c.Flag("Graph").Get().(int); !ok || opt.Graph < 0 {
		log.Errorf("[checkArgs] argument 'Graph': %v set error", c.Flag("Graph"))
		return opt, false
	}
	return opt, true
}

// applyConfig lays the run configuration over opt. Reads given on the
// command line replace the [[lib]] tables.
func applyConfig(opt *MapOptions, cfg utils.RunConfig) []utils.LibInfo {
	if cfg.MinKmerProportion != nil {
		opt.Align.MinKmerProportion = *cfg.MinKmerProportion
	}
	if cfg.MaxAlignments != nil {
		opt.Align.MaxAlignments = *cfg.MaxAlignments
		opt.Pair.MaxAlignments = *cfg.MaxAlignments
	}
	if cfg.OnlyPositiveStrand != nil {
		opt.Align.OnlyPositiveStrand = *cfg.OnlyPositiveStrand
	}
	if cfg.Seed != nil {
		opt.Seed = *cfg.Seed
	}
	return commandLineLibs(*opt, cfg.Libs)
}

func commandLineLibs(opt MapOptions, libs []utils.LibInfo) []utils.LibInfo {
	if opt.Reads1 == "" {
		return libs
	}
	lib := utils.LibInfo{Name: "cmdline", Reads: []string{opt.Reads1}}
	if opt.Reads2 != "" {
		lib.Reads = append(lib.Reads, opt.Reads2)
		lib.Paired = true
	}
	return []utils.LibInfo{lib}
}

func MapNGS(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[MapNGS] check global Arguments error, opt: %v", gOpt)
	}
	opt, suc := checkArgs(c)
	if !suc {
		log.Fatalf("[MapNGS] check Arguments error, opt: %v", opt)
	}
	opt.ArgsOpt = gOpt
	opt.Align.KmerLength = gOpt.Kmer

	var libs []utils.LibInfo
	if _, err := os.Stat(opt.CfgFn); err == nil {
		cfg, err := utils.ParseCfg(opt.CfgFn)
		if err != nil {
			log.Fatalf("[MapNGS] ParseCfg 'C': %v err: %v", opt.CfgFn, err)
		}
		libs = applyConfig(&opt, cfg)
	} else {
		libs = commandLineLibs(opt, nil)
	}
	if len(libs) == 0 {
		log.Fatalf("[MapNGS] no reads: set 'Reads1' or [[lib]] tables in %v", opt.CfgFn)
	}
	if err := opt.Align.Check(); err != nil {
		log.Fatalf("[MapNGS] %v", err)
	}
	if opt.Out == "" {
		opt.Out = opt.Prefix + "." + opt.Format
	}
	log.Infof("[MapNGS] opt: %+v", opt)

	stop, err := utils.StartCPUProfile(gOpt.Cpuprofile)
	if err != nil {
		log.Fatalf("[MapNGS] %v", err)
	}
	defer stop()

	t0 := time.Now()
	g, err := refgenome.Load(opt.Prefix)
	if err != nil {
		log.Fatalf("[MapNGS] load index %s: %v", opt.Prefix, err)
	}
	log.Infof("[MapNGS] loaded index of %d sequences in %v", len(g.SequencesMetadata()), time.Since(t0))

	w, err := samout.Create(opt.Out, opt.Format, g.SequencesMetadata())
	if err != nil {
		log.Fatalf("[MapNGS] %v", err)
	}
	m := NewMapper(g, opt.Align, opt.Pair, opt.Seed, opt.NumCPU)
	if opt.Graph > 0 {
		m.GraphPrefix, m.GraphReads = opt.Prefix, opt.Graph
	}
	st, err := m.Run(context.Background(), libs, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatalf("[MapNGS] %v", err)
	}
	st.Log()
	log.Infof("[MapNGS] wrote %s, took %v", opt.Out, time.Since(t0))
}

// Search prints the exact hits of a pattern on both strands.
func Search(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[Search] check global Arguments error, opt: %v", gOpt)
	}
	pattern := strings.ToUpper(c.Flag("Pattern").String())
	if pattern == "" {
		log.Fatalf("[Search] argument 'Pattern' not set")
	}
	g, err := refgenome.Load(gOpt.Prefix)
	if err != nil {
		log.Fatalf("[Search] load index %s: %v", gOpt.Prefix, err)
	}
	opt := DefaultOptions()
	opt.OnlyPositiveStrand, _ = c.Flag("OnlyPositive").Get().(bool)
	if countOnly, _ := c.Flag("CountOnly").Get().(bool); countOnly {
		n := g.Count(pattern)
		if rc := bnt.ReverseComplement(pattern); !opt.OnlyPositiveStrand && rc != pattern {
			n += g.Count(rc)
		}
		fmt.Println(n)
		return
	}
	hits := NewAligner(g, opt).ExactHits(pattern)
	for _, h := range hits {
		strand := '+'
		if h.Reverse {
			strand = '-'
		}
		fmt.Printf("%s:%d-%d\t%c\n", h.SeqName, h.First, h.Last, strand)
	}
	log.Infof("[Search] %d hits of %s", len(hits), pattern)
}
