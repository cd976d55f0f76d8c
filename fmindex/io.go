package fmindex

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"
)

var magic = [4]byte{'F', 'M', 'I', '1'}

type binWriter struct {
	w   io.Writer
	err error
}

func (bw *binWriter) put(v interface{}) {
	if bw.err == nil {
		bw.err = binary.Write(bw.w, binary.LittleEndian, v)
	}
}

type binReader struct {
	r   io.Reader
	err error
}

func (br *binReader) get(v interface{}) {
	if br.err == nil {
		br.err = binary.Read(br.r, binary.LittleEndian, v)
	}
}

func (br *binReader) uint32() int {
	var v uint32
	br.get(&v)
	return int(v)
}

func (br *binReader) bytes(n int) []byte {
	if br.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, br.err = io.ReadFull(br.r, b)
	return b
}

// Encode serializes the index in little endian binary form.
func (x *Index) Encode(w io.Writer) error {
	bw := &binWriter{w: w}
	bw.put(magic)
	bw.put(uint32(len(x.name)))
	bw.put([]byte(x.name))
	bw.put(uint32(x.length))
	bw.put(uint32(x.tallyDistance))
	bw.put(uint32(x.suffixFraction))
	bw.put(x.bwt)
	bw.put(uint8(len(x.alphabet)))
	bw.put(x.alphabet)
	for i := range x.alphabet {
		bw.put(uint32(x.firstRow[i]))
		bw.put(uint32(x.lastRow[i]))
	}
	bw.put(uint32(len(x.tally)))
	for _, row := range x.tally {
		bw.put(row)
	}
	rows := make([]int, 0, len(x.sampled))
	for row := range x.sampled {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	bw.put(uint32(len(rows)))
	for _, row := range rows {
		bw.put([2]uint32{uint32(row), uint32(x.sampled[row])})
	}
	return errors.Wrapf(bw.err, "[Encode] index %s", x.name)
}

// ReadIndex loads an index written by Encode.
func ReadIndex(r io.Reader) (*Index, error) {
	br := &binReader{r: r}
	var m [4]byte
	br.get(&m)
	if br.err == nil && m != magic {
		return nil, errors.Wrapf(ErrCorruptIndex, "[ReadIndex] bad magic %q", m[:])
	}
	x := &Index{}
	x.name = string(br.bytes(br.uint32()))
	x.length = br.uint32()
	x.tallyDistance = br.uint32()
	x.suffixFraction = br.uint32()
	if br.err == nil && (x.tallyDistance == 0 || x.suffixFraction == 0) {
		return nil, errors.Wrapf(ErrCorruptIndex, "[ReadIndex] %s: zero sampling distance", x.name)
	}
	x.bwt = br.bytes(x.length + 1)
	var alphaSize uint8
	br.get(&alphaSize)
	x.alphabet = br.bytes(int(alphaSize))
	for i := range x.charIdx {
		x.charIdx[i] = -1
	}
	for i, c := range x.alphabet {
		x.charIdx[c] = int16(i)
		x.firstRow = append(x.firstRow, br.uint32())
		x.lastRow = append(x.lastRow, br.uint32())
	}
	rows := br.uint32()
	if br.err == nil && rows != (len(x.bwt)+x.tallyDistance-1)/x.tallyDistance {
		return nil, errors.Wrapf(ErrCorruptIndex, "[ReadIndex] %s: %d tally rows for bwt length %d", x.name, rows, len(x.bwt))
	}
	x.tally = make([][]int32, 0, rows)
	for i := 0; i < rows && br.err == nil; i++ {
		row := make([]int32, alphaSize)
		br.get(row)
		x.tally = append(x.tally, row)
	}
	n := br.uint32()
	x.sampled = make(map[int]int, n)
	for i := 0; i < n && br.err == nil; i++ {
		var pair [2]uint32
		br.get(&pair)
		x.sampled[int(pair[0])] = int(pair[1])
	}
	if br.err != nil {
		return nil, errors.Wrapf(ErrCorruptIndex, "[ReadIndex] %v", br.err)
	}
	x.buildInverse()
	return x, nil
}
