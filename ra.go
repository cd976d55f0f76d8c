package main

import (
	"github.com/jwaldrip/odin/cli"
	"github.com/ngsalign/ra/fmindex"
	"github.com/ngsalign/ra/mapngs"
	"github.com/ngsalign/ra/pairend"
	"github.com/ngsalign/ra/refgenome"
	"github.com/ngsalign/ra/samout"
	"github.com/ngsalign/ra/server"
)

var app = cli.New("1.0.0", "Short read aligner over FM-indexed references", func(c cli.Command) {})

func init() {
	align := mapngs.DefaultOptions()
	pair := pairend.DefaultOptions()
	app.DefineStringFlag("C", "ra.toml", "run configuration file")
	app.DefineStringFlag("cpuprofile", "", "write cpu profile to file")
	app.DefineIntFlag("K", mapngs.SearchKmerLength, "seed kmer length")
	app.DefineStringFlag("p", "ra", "prefix of the index and output files")
	app.DefineIntFlag("t", 1, "number of CPU used")
	app.DefineBoolFlag("Debug", false, "Enable Debug model[false]")

	index := app.DefineSubCommand("index", "build the FM-index of a reference", refgenome.BuildIndex)
	{
		index.DefineStringFlag("Ref", "", "reference FASTA file[.gz|.zst|.br]")
		index.DefineIntFlag("TallyDistance", fmindex.DefaultTallyDistance, "rows between checkpoint tallies")
		index.DefineIntFlag("SuffixFraction", fmindex.DefaultSuffixFraction, "keep one suffix array entry of every SuffixFraction positions")
		index.DefineBoolFlag("SeedFilter", false, "store a cuckoo filter of reference kmers")
	}
	mapNGS := app.DefineSubCommand("map", "align single or paired Illumina reads", mapngs.MapNGS)
	{
		mapNGS.DefineStringFlag("Reads1", "", "reads file, overrides [[lib]] in -C")
		mapNGS.DefineStringFlag("Reads2", "", "mate reads file of a paired library")
		mapNGS.DefineStringFlag("Out", "", "output file, default <prefix>.<Format>")
		mapNGS.DefineStringFlag("Format", "sam", "output format[sam|bam]")
		mapNGS.DefineFloat64Flag("MinKmerProportion", align.MinKmerProportion, "Min proportion of seeds supporting an alignment[0~1]")
		mapNGS.DefineIntFlag("MaxAlignments", align.MaxAlignments, "Max alignments reported per read")
		mapNGS.DefineIntFlag("MaxFragment", pair.MaxFragmentLength, "Max fragment length of a proper pair")
		mapNGS.DefineBoolFlag("OnlyPositive", false, "align the forward strand only")
		mapNGS.DefineInt64Flag("Seed", 1, "random seed of tie breaks")
		mapNGS.DefineIntFlag("Graph", 0, "output dot cluster graph of the first N reads")
	}
	search := app.DefineSubCommand("search", "exact search of a pattern on both strands", mapngs.Search)
	{
		search.DefineStringFlag("Pattern", "", "pattern to search")
		search.DefineBoolFlag("OnlyPositive", false, "search the forward strand only")
		search.DefineBoolFlag("CountOnly", false, "print the number of hits without locating them")
	}
	stat := app.DefineSubCommand("stat", "summarize a SAM or BAM file", samout.Stat)
	{
		stat.DefineStringFlag("In", "", "SAM or BAM file, default <prefix>.sam")
	}
	serve := app.DefineSubCommand("serve", "serve search and alignment over HTTP", server.Serve)
	{
		serve.DefineStringFlag("Addr", "localhost:6090", "listen address")
	}
}

func main() {
	app.Start()
}
