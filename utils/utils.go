package utils

import (
	"os"
	"runtime/pprof"

	"github.com/jwaldrip/odin/cli"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type ArgsOpt struct {
	Prefix string
	Kmer   int
	NumCPU int
	CfgFn  string
	Debug  bool

	Cpuprofile string
}

// return global arguments and check if successed
func CheckGlobalArgs(c cli.Command) (opt ArgsOpt, succ bool) {
	opt.Prefix = c.Flag("p").String()
	if opt.Prefix == "" {
		log.Errorf("[CheckGlobalArgs] args 'p' not set")
		return opt, false
	}
	opt.CfgFn = c.Flag("C").String()
	opt.Cpuprofile = c.Flag("cpuprofile").String()

	var ok bool
	opt.Kmer, ok = c.Flag("K").Get().(int)
	if !ok || opt.Kmer < 1 {
		log.Errorf("[CheckGlobalArgs] args 'K' : %v set error", c.Flag("K").String())
		return opt, false
	}
	opt.NumCPU, ok = c.Flag("t").Get().(int)
	if !ok || opt.NumCPU < 1 {
		log.Errorf("[CheckGlobalArgs] args 't': %v set error", c.Flag("t").String())
		return opt, false
	}
	opt.Debug, _ = c.Flag("Debug").Get().(bool)
	if opt.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return opt, true
}

// LibInfo is one [[lib]] table of the run configuration.
type LibInfo struct {
	Name      string   `toml:"name"`
	Reads     []string `toml:"reads"`
	Paired    bool     `toml:"paired"`
	MaxInsert int      `toml:"max_insert"`
}

// RunConfig is the TOML run configuration of the map command. Unset
// overrides are nil.
type RunConfig struct {
	MinKmerProportion  *float64  `toml:"min_kmer_proportion"`
	MaxAlignments      *int      `toml:"max_alignments"`
	OnlyPositiveStrand *bool     `toml:"only_positive_strand"`
	Seed               *int64    `toml:"seed"`
	Libs               []LibInfo `toml:"lib"`
}

func ParseCfg(fn string) (cfg RunConfig, err error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return cfg, errors.Wrapf(err, "[ParseCfg] read %s", fn)
	}
	if err = toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "[ParseCfg] parse %s", fn)
	}
	for i, lib := range cfg.Libs {
		switch {
		case lib.Name == "":
			return cfg, errors.Errorf("[ParseCfg] %s: lib %d has no name", fn, i)
		case len(lib.Reads) == 0:
			return cfg, errors.Errorf("[ParseCfg] %s: lib %s lists no reads", fn, lib.Name)
		case lib.Paired && len(lib.Reads) != 2:
			return cfg, errors.Errorf("[ParseCfg] %s: paired lib %s needs 2 reads files, got %d", fn, lib.Name, len(lib.Reads))
		case lib.MaxInsert < 0:
			return cfg, errors.Errorf("[ParseCfg] %s: lib %s max_insert %d is negative", fn, lib.Name, lib.MaxInsert)
		}
	}
	return cfg, nil
}

// StartCPUProfile profiles into fn until the returned stop is called. An
// empty fn disables profiling.
func StartCPUProfile(fn string) (stop func(), err error) {
	if fn == "" {
		return func() {}, nil
	}
	fp, err := os.Create(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "[StartCPUProfile] open %s", fn)
	}
	if err = pprof.StartCPUProfile(fp); err != nil {
		fp.Close()
		return nil, errors.Wrap(err, "[StartCPUProfile]")
	}
	return func() {
		pprof.StopCPUProfile()
		fp.Close()
	}, nil
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	} else {
		return b
	}
}

func MinInt(a, b int) int {
	if a > b {
		return b
	} else {
		return a
	}
}
