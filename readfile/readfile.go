// Package readfile streams reads from FASTA/FASTQ files, optionally gzip,
// zstd or brotli compressed.
package readfile

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/google/brotli/go/cbrotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ngsalign/ra/alignment"
	"github.com/ngsalign/ra/bnt"
	"github.com/pkg/errors"
)

var (
	ErrFormat       = errors.New("unknown reads file format")
	ErrPairMismatch = errors.New("pair read names differ")
)

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var err error
	for i := len(rc.closers) - 1; i >= 0; i-- {
		if e := rc.closers[i].Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Open returns a reader over fn decompressed according to its suffix
// (.gz, .zst, .br). "-" reads standard input.
func Open(fn string) (io.ReadCloser, error) {
	var fp *os.File
	if fn == "-" {
		fp = os.Stdin
	} else {
		var err error
		if fp, err = os.Open(fn); err != nil {
			return nil, errors.Wrapf(err, "[Open] reads file: %s", fn)
		}
	}
	rc := &readCloser{Reader: fp, closers: []io.Closer{fp}}
	switch {
	case strings.HasSuffix(fn, ".gz"):
		gz, err := gzip.NewReader(fp)
		if err != nil {
			fp.Close()
			return nil, errors.Wrapf(err, "[Open] gzip file: %s", fn)
		}
		rc.Reader = gz
		rc.closers = append(rc.closers, gz)
	case strings.HasSuffix(fn, ".zst"):
		dec, err := zstd.NewReader(fp, zstd.WithDecoderConcurrency(1))
		if err != nil {
			fp.Close()
			return nil, errors.Wrapf(err, "[Open] zstd file: %s", fn)
		}
		zr := dec.IOReadCloser()
		rc.Reader = zr
		rc.closers = append(rc.closers, zr)
	case strings.HasSuffix(fn, ".br"):
		br := cbrotli.NewReader(fp)
		rc.Reader = bufio.NewReaderSize(br, 1<<20)
		rc.closers = append(rc.closers, br)
	}
	return rc, nil
}

// GetReadsFileFormat returns "fa" or "fq" from the file name, ignoring a
// compression suffix.
func GetReadsFileFormat(fn string) (string, error) {
	name := fn
	for _, ext := range []string{".gz", ".zst", ".br"} {
		name = strings.TrimSuffix(name, ext)
	}
	switch name[strings.LastIndexByte(name, '.')+1:] {
	case "fa", "fasta", "fna":
		return "fa", nil
	case "fq", "fastq":
		return "fq", nil
	}
	return "", errors.Wrapf(ErrFormat, "[GetReadsFileFormat] %s needs suffix *.fa|*.fasta|*.fq|*.fastq[.gz|.zst|.br]", fn)
}

// Reader yields reads one at a time.
type Reader struct {
	fn     string
	format string
	rc     io.ReadCloser
	r      interface{ Read() (seq.Sequence, error) }
}

func NewReader(fn string) (*Reader, error) {
	format, err := GetReadsFileFormat(fn)
	if err != nil {
		return nil, err
	}
	rc, err := Open(fn)
	if err != nil {
		return nil, err
	}
	rd := &Reader{fn: fn, format: format, rc: rc}
	if format == "fq" {
		rd.r = fastq.NewReader(rc, linear.NewQSeq("", nil, alphabet.DNA, alphabet.Sanger))
	} else {
		rd.r = fasta.NewReader(rc, linear.NewSeq("", nil, alphabet.DNA))
	}
	return rd, nil
}

// Read returns io.EOF after the last read.
func (rd *Reader) Read() (alignment.Read, error) {
	s, err := rd.r.Read()
	if err != nil {
		if err == io.EOF {
			return alignment.Read{}, io.EOF
		}
		return alignment.Read{}, errors.Wrapf(err, "[Read] reads file: %s", rd.fn)
	}
	switch t := s.(type) {
	case *linear.QSeq:
		sb := make([]byte, len(t.Seq))
		qb := make([]byte, len(t.Seq))
		for i, ql := range t.Seq {
			sb[i] = byte(ql.L)
			qb[i] = byte(ql.Q) + 33
		}
		return alignment.Read{Name: t.Name(), Seq: string(bnt.ToUpper(sb)), Qual: string(qb)}, nil
	case *linear.Seq:
		sb := make([]byte, len(t.Seq))
		for i, l := range t.Seq {
			sb[i] = byte(l)
		}
		return alignment.Read{Name: t.Name(), Seq: string(bnt.ToUpper(sb))}, nil
	}
	return alignment.Read{}, errors.Errorf("[Read] unexpected record type %T in %s", s, rd.fn)
}

func (rd *Reader) Close() error {
	return rd.rc.Close()
}

// PairReader reads mates from two parallel files.
type PairReader struct {
	r1, r2 *Reader
}

func NewPairReader(fn1, fn2 string) (*PairReader, error) {
	r1, err := NewReader(fn1)
	if err != nil {
		return nil, err
	}
	r2, err := NewReader(fn2)
	if err != nil {
		r1.Close()
		return nil, err
	}
	return &PairReader{r1: r1, r2: r2}, nil
}

// Read returns the next pair; io.EOF when both files end together.
func (pr *PairReader) Read() (alignment.Read, alignment.Read, error) {
	a, err1 := pr.r1.Read()
	b, err2 := pr.r2.Read()
	if err1 == io.EOF && err2 == io.EOF {
		return a, b, io.EOF
	}
	if err1 == io.EOF || err2 == io.EOF {
		return a, b, errors.Wrapf(ErrPairMismatch, "[PairReader] %s and %s hold different read counts", pr.r1.fn, pr.r2.fn)
	}
	if err1 != nil {
		return a, b, err1
	}
	if err2 != nil {
		return a, b, err2
	}
	if alignment.PairName(a.Name) != alignment.PairName(b.Name) {
		return a, b, errors.Wrapf(ErrPairMismatch, "[PairReader] %s vs %s", a.Name, b.Name)
	}
	return a, b, nil
}

func (pr *PairReader) Close() error {
	err := pr.r1.Close()
	if e := pr.r2.Close(); err == nil {
		err = e
	}
	return err
}
