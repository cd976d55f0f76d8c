package refgenome

import (
	"time"

	"github.com/jwaldrip/odin/cli"
	"github.com/ngsalign/ra/utils"
	log "github.com/sirupsen/logrus"
)

func checkArgs(c cli.Command) (opt BuildOptions, ref string, succ bool) {
	ref = c.Flag("Ref").String()
	if ref == "" {
		log.Errorf("[checkArgs] argument 'Ref' not set")
		return opt, ref, false
	}
	var ok bool
	if opt.TallyDistance, ok = c.Flag("TallyDistance").Get().(int); !ok || opt.TallyDistance < 1 {
		log.Errorf("[checkArgs] argument 'TallyDistance': %v set error", c.Flag("TallyDistance"))
		return opt, ref, false
	}
	if opt.SuffixFraction, ok = c.Flag("SuffixFraction").Get().(int); !ok || opt.SuffixFraction < 1 {
		log.Errorf("[checkArgs] argument 'SuffixFraction': %v set error", c.Flag("SuffixFraction"))
		return opt, ref, false
	}
	opt.SeedFilter, _ = c.Flag("SeedFilter").Get().(bool)
	return opt, ref, true
}

// BuildIndex indexes the reference FASTA and saves it under the prefix.
func BuildIndex(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[BuildIndex] check global Arguments error, opt: %v", gOpt)
	}
	opt, ref, suc := checkArgs(c)
	if !suc {
		log.Fatalf("[BuildIndex] check Arguments error, opt: %v", opt)
	}
	opt.KmerLength = gOpt.Kmer
	opt.NumCPU = gOpt.NumCPU
	log.Infof("[BuildIndex] ref: %s, opt: %+v", ref, opt)

	stop, err := utils.StartCPUProfile(gOpt.Cpuprofile)
	if err != nil {
		log.Fatalf("[BuildIndex] %v", err)
	}
	defer stop()

	t0 := time.Now()
	refs, err := LoadFasta(ref)
	if err != nil {
		log.Fatalf("[BuildIndex] %v", err)
	}
	g, err := Build(refs, opt)
	if err != nil {
		log.Fatalf("[BuildIndex] %v", err)
	}
	if err = g.Save(gOpt.Prefix); err != nil {
		log.Fatalf("[BuildIndex] %v", err)
	}
	log.Infof("[BuildIndex] wrote %s%s, took %v", gOpt.Prefix, PayloadExt, time.Since(t0))
}
