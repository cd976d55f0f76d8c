package samout

import (
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	humanize "github.com/dustin/go-humanize"
	"github.com/jwaldrip/odin/cli"
	"github.com/ngsalign/ra/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Summary counts the records of an alignment file.
type Summary struct {
	Records    int
	Unmapped   int
	Secondary  int
	Paired     int
	ProperPair int
	Reverse    int
	Mnum       int
	Inum       int
	Dnum       int
	NM         int
}

func AccumulateCigar(cigar sam.Cigar) (Mnum, Inum, Dnum int) {
	for _, co := range cigar {
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			Mnum += co.Len()
		case sam.CigarDeletion:
			Dnum += co.Len()
		case sam.CigarInsertion:
			Inum += co.Len()
		}
	}
	return
}

// GetAuxInt returns an integer aux value of any width.
func GetAuxInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case uint8:
		return int(t), true
	case int8:
		return int(t), true
	case uint16:
		return int(t), true
	case int16:
		return int(t), true
	case uint32:
		return int(t), true
	case int32:
		return int(t), true
	}
	return 0, false
}

func (s *Summary) add(r *sam.Record) {
	s.Records++
	if r.Flags&sam.Paired != 0 {
		s.Paired++
	}
	if r.Flags&sam.Unmapped != 0 {
		s.Unmapped++
		return
	}
	if r.Flags&sam.Secondary != 0 {
		s.Secondary++
	}
	if r.Flags&sam.ProperPair != 0 {
		s.ProperPair++
	}
	if r.Flags&sam.Reverse != 0 {
		s.Reverse++
	}
	m, i, d := AccumulateCigar(r.Cigar)
	s.Mnum += m
	s.Inum += i
	s.Dnum += d
	if aux := r.AuxFields.Get(nmTag); aux != nil {
		if nm, ok := GetAuxInt(aux.Value()); ok {
			s.NM += nm
		}
	}
}

// Summarize reads every record of a SAM (bam false) or BAM stream.
func Summarize(r io.Reader, isBAM bool, numCPU int) (s Summary, err error) {
	var rd interface{ Read() (*sam.Record, error) }
	if isBAM {
		br, err := bam.NewReader(r, numCPU/5+1)
		if err != nil {
			return s, errors.Wrap(err, "[Summarize] bam.NewReader")
		}
		defer br.Close()
		rd = br
	} else {
		if rd, err = sam.NewReader(r); err != nil {
			return s, errors.Wrap(err, "[Summarize] sam.NewReader")
		}
	}
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return s, errors.Wrapf(err, "[Summarize] after %d records", s.Records)
		}
		s.add(rec)
	}
}

// SummarizeFile picks SAM or BAM from the suffix of fn.
func SummarizeFile(fn string, numCPU int) (Summary, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return Summary{}, errors.Wrapf(err, "[SummarizeFile] open %s", fn)
	}
	defer fp.Close()
	return Summarize(fp, strings.HasSuffix(fn, ".bam"), numCPU)
}

func (s Summary) Log() {
	log.Infof("[Summary] records: %s, unmapped: %s, secondary: %s",
		humanize.Comma(int64(s.Records)), humanize.Comma(int64(s.Unmapped)), humanize.Comma(int64(s.Secondary)))
	log.Infof("[Summary] paired: %s, proper pair: %s, reverse: %s",
		humanize.Comma(int64(s.Paired)), humanize.Comma(int64(s.ProperPair)), humanize.Comma(int64(s.Reverse)))
	log.Infof("[Summary] CIGAR M: %s, I: %s, D: %s, NM: %s",
		humanize.Comma(int64(s.Mnum)), humanize.Comma(int64(s.Inum)), humanize.Comma(int64(s.Dnum)), humanize.Comma(int64(s.NM)))
}

func Stat(c cli.Command) {
	gOpt, suc := utils.CheckGlobalArgs(c.Parent())
	if !suc {
		log.Fatalf("[Stat] check global Arguments error, opt: %v", gOpt)
	}
	fn := c.Flag("In").String()
	if fn == "" {
		fn = gOpt.Prefix + ".sam"
	}
	s, err := SummarizeFile(fn, gOpt.NumCPU)
	if err != nil {
		log.Fatalf("[Stat] %v", err)
	}
	log.Infof("[Stat] %s", fn)
	s.Log()
}
