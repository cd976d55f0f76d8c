// Package alignment defines reads and the alignment records exchanged
// between the aligner, the pair reconciler and the output sinks.
package alignment

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Read is one raw read. Qual is phred+33 encoded and may be empty.
type Read struct {
	Name string `json:"name"`
	Seq  string `json:"seq"`
	Qual string `json:"qual,omitempty"`
}

// PairName strips a trailing /1 or /2 mate suffix.
func PairName(name string) string {
	if n := len(name); n > 2 && name[n-2] == '/' && (name[n-1] == '1' || name[n-1] == '2') {
		return name[:n-2]
	}
	return name
}

// Flags uses the SAM bit layout.
type Flags uint16

const (
	Paired       Flags = 0x1
	ProperPair   Flags = 0x2
	ReadUnmapped Flags = 0x4
	MateUnmapped Flags = 0x8
	Reverse      Flags = 0x10
	MateReverse  Flags = 0x20
	FirstOfPair  Flags = 0x40
	SecondOfPair Flags = 0x80
	Secondary    Flags = 0x100
)

func (f Flags) Has(bits Flags) bool { return f&bits == bits }

// ReadAlignment places a read on a reference sequence. First and Last are
// 1-based and inclusive.
type ReadAlignment struct {
	SeqName    string  `json:"seqName,omitempty"`
	First      int     `json:"first,omitempty"`
	Last       int     `json:"last,omitempty"`
	ReadLength int     `json:"readLength"`
	Flags      Flags   `json:"flags"`
	Quality    float64 `json:"quality"`
	Cigar      string  `json:"cigar,omitempty"`
	// Distance is the edit distance to the reference.
	Distance int `json:"distance"`

	MateName    string `json:"mateName,omitempty"`
	MateSeqName string `json:"mateSeqName,omitempty"`
	MateFirst   int    `json:"mateFirst,omitempty"`

	ReadName string `json:"readName"`
	ReadSeq  string `json:"readSeq,omitempty"`
	ReadQual string `json:"readQual,omitempty"`
}

// NewUnmapped returns the record of a read without alignment.
func NewUnmapped(r Read) ReadAlignment {
	return ReadAlignment{
		ReadLength: len(r.Seq),
		Flags:      ReadUnmapped,
		ReadName:   r.Name,
		ReadSeq:    r.Seq,
		ReadQual:   r.Qual,
	}
}

func (a *ReadAlignment) IsUnmapped() bool     { return a.Flags.Has(ReadUnmapped) }
func (a *ReadAlignment) IsReverse() bool      { return a.Flags.Has(Reverse) }
func (a *ReadAlignment) IsSecondary() bool    { return a.Flags.Has(Secondary) }
func (a *ReadAlignment) IsPaired() bool       { return a.Flags.Has(Paired) }
func (a *ReadAlignment) IsProperPair() bool   { return a.Flags.Has(ProperPair) }
func (a *ReadAlignment) IsMateUnmapped() bool { return a.Flags.Has(MateUnmapped) }

func (a *ReadAlignment) SetFlags(bits Flags)   { a.Flags |= bits }
func (a *ReadAlignment) ClearFlags(bits Flags) { a.Flags &^= bits }

// SetMate copies the mate position and strand into a.
func (a *ReadAlignment) SetMate(mate *ReadAlignment) {
	a.MateName = mate.ReadName
	a.ClearFlags(MateReverse | MateUnmapped)
	if mate.IsUnmapped() {
		a.MateSeqName, a.MateFirst = "", 0
		a.SetFlags(MateUnmapped)
		return
	}
	a.MateSeqName, a.MateFirst = mate.SeqName, mate.First
	if mate.IsReverse() {
		a.SetFlags(MateReverse)
	}
}

// CigarOp is one run of a CIGAR string.
type CigarOp struct {
	Len int
	Op  byte
}

const (
	CigarMatch     = 'M'
	CigarInsertion = 'I'
	CigarDeletion  = 'D'
)

// EncodeCigar run-length encodes a per-column operation path.
func EncodeCigar(ops []byte) string {
	var sb strings.Builder
	for i := 0; i < len(ops); {
		j := i + 1
		for j < len(ops) && ops[j] == ops[i] {
			j++
		}
		sb.WriteString(strconv.Itoa(j - i))
		sb.WriteByte(ops[i])
		i = j
	}
	return sb.String()
}

func ParseCigar(cigar string) ([]CigarOp, error) {
	var ops []CigarOp
	n := 0
	digits := 0
	for i := 0; i < len(cigar); i++ {
		c := cigar[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
			digits++
			continue
		}
		if digits == 0 || !strings.ContainsRune("MIDNSHP=X", rune(c)) {
			return nil, errors.Errorf("[ParseCigar] malformed cigar %q at %d", cigar, i)
		}
		ops = append(ops, CigarOp{Len: n, Op: c})
		n, digits = 0, 0
	}
	if digits != 0 {
		return nil, errors.Errorf("[ParseCigar] cigar %q ends with a length", cigar)
	}
	return ops, nil
}

// Lengths returns how many query and reference bases the operations consume.
func Lengths(ops []CigarOp) (query, ref int) {
	for _, op := range ops {
		switch op.Op {
		case 'M', '=', 'X':
			query += op.Len
			ref += op.Len
		case 'I', 'S':
			query += op.Len
		case 'D', 'N':
			ref += op.Len
		}
	}
	return
}
