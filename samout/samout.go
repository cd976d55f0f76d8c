// Package samout writes alignment records as SAM text or BAM.
package samout

import (
	"io"
	"math"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/ngsalign/ra/alignment"
	"github.com/ngsalign/ra/refgenome"
	"github.com/pkg/errors"
)

var nmTag = sam.NewTag("NM")

type recordWriter interface {
	Write(r *sam.Record) error
}

// Writer is an alignment sink. It is not safe for concurrent use.
type Writer struct {
	fp     io.Closer
	bw     *bam.Writer
	w      recordWriter
	header *sam.Header
	refs   map[string]*sam.Reference
}

// NewHeader builds a SAM header with one @SQ line per sequence.
func NewHeader(metas []refgenome.SeqMeta) (*sam.Header, map[string]*sam.Reference, error) {
	refs := make([]*sam.Reference, 0, len(metas))
	byName := make(map[string]*sam.Reference, len(metas))
	for _, m := range metas {
		ref, err := sam.NewReference(m.Name, "", "", m.Length, nil, nil)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "[NewHeader] reference %s", m.Name)
		}
		refs = append(refs, ref)
		byName[m.Name] = ref
	}
	h, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[NewHeader]")
	}
	h.SortOrder = sam.Unsorted
	return h, byName, nil
}

// NewWriter writes to w in format "sam" or "bam".
func NewWriter(w io.Writer, metas []refgenome.SeqMeta, format string) (*Writer, error) {
	h, refs, err := NewHeader(metas)
	if err != nil {
		return nil, err
	}
	sw := &Writer{header: h, refs: refs}
	switch format {
	case "sam":
		if sw.w, err = sam.NewWriter(w, h, sam.FlagDecimal); err != nil {
			return nil, errors.Wrap(err, "[NewWriter] sam header")
		}
	case "bam":
		if sw.bw, err = bam.NewWriter(w, h, 1); err != nil {
			return nil, errors.Wrap(err, "[NewWriter] bam header")
		}
		sw.w = sw.bw
	default:
		return nil, errors.Errorf("[NewWriter] unknown output format %q, want sam|bam", format)
	}
	return sw, nil
}

// Create opens fn ("-" for stdout) and picks the format from its suffix
// when format is empty.
func Create(fn, format string, metas []refgenome.SeqMeta) (*Writer, error) {
	if format == "" {
		format = "sam"
		if strings.HasSuffix(fn, ".bam") {
			format = "bam"
		}
	}
	var fp *os.File
	if fn == "-" {
		fp = os.Stdout
	} else {
		var err error
		if fp, err = os.Create(fn); err != nil {
			return nil, errors.Wrapf(err, "[Create] output file: %s", fn)
		}
	}
	sw, err := NewWriter(fp, metas, format)
	if err != nil {
		fp.Close()
		return nil, err
	}
	if fp != os.Stdout {
		sw.fp = fp
	}
	return sw, nil
}

func (sw *Writer) Header() *sam.Header { return sw.header }

// Record converts aln to a SAM record. An unmapped read with a mapped mate
// takes the mate position.
func (sw *Writer) Record(aln *alignment.ReadAlignment) (*sam.Record, error) {
	var ref, mRef *sam.Reference
	pos, mPos := -1, -1
	if !aln.IsUnmapped() {
		ref, pos = sw.refs[aln.SeqName], aln.First-1
		if ref == nil {
			return nil, errors.Wrapf(refgenome.ErrUnknownSequence, "[Record] read %s on %s", aln.ReadName, aln.SeqName)
		}
	}
	if aln.MateSeqName != "" && !aln.IsMateUnmapped() {
		mRef, mPos = sw.refs[aln.MateSeqName], aln.MateFirst-1
	}
	if ref == nil && mRef != nil {
		ref, pos = mRef, mPos
	}

	var co []sam.CigarOp
	var mapQ byte
	if !aln.IsUnmapped() {
		ops, err := alignment.ParseCigar(aln.Cigar)
		if err != nil {
			return nil, err
		}
		for _, op := range ops {
			co = append(co, sam.NewCigarOp(cigarType(op.Op), op.Len))
		}
		mapQ = byte(math.Max(0, math.Min(254, math.Round(aln.Quality))))
	}
	var qual []byte
	if aln.ReadQual != "" {
		qual = make([]byte, len(aln.ReadQual))
		for i := 0; i < len(aln.ReadQual); i++ {
			qual[i] = aln.ReadQual[i] - 33
		}
	}
	name := aln.ReadName
	if aln.IsPaired() {
		name = alignment.PairName(name)
	}
	var aux []sam.Aux
	if !aln.IsUnmapped() {
		nm, err := sam.NewAux(nmTag, int32(aln.Distance))
		if err != nil {
			return nil, errors.Wrap(err, "[Record] NM tag")
		}
		aux = append(aux, nm)
	}
	rec, err := sam.NewRecord(name, ref, mRef, pos, mPos, 0, mapQ, co, []byte(aln.ReadSeq), qual, aux)
	if err != nil {
		return nil, errors.Wrapf(err, "[Record] read %s", aln.ReadName)
	}
	rec.Flags = sam.Flags(aln.Flags)
	return rec, nil
}

func cigarType(op byte) sam.CigarOpType {
	switch op {
	case 'I':
		return sam.CigarInsertion
	case 'D':
		return sam.CigarDeletion
	case 'N':
		return sam.CigarSkipped
	case 'S':
		return sam.CigarSoftClipped
	case 'H':
		return sam.CigarHardClipped
	case 'P':
		return sam.CigarPadded
	case '=':
		return sam.CigarEqual
	case 'X':
		return sam.CigarMismatch
	}
	return sam.CigarMatch
}

func (sw *Writer) Write(aln *alignment.ReadAlignment) error {
	rec, err := sw.Record(aln)
	if err != nil {
		return err
	}
	return errors.Wrap(sw.w.Write(rec), "[Write]")
}

func (sw *Writer) Close() error {
	var err error
	if sw.bw != nil {
		err = sw.bw.Close()
	}
	if sw.fp != nil {
		if e := sw.fp.Close(); err == nil {
			err = e
		}
	}
	return errors.Wrap(err, "[Close]")
}
