package samout

import (
	"bytes"
	"strings"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/ngsalign/ra/alignment"
	"github.com/ngsalign/ra/refgenome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var metas = []refgenome.SeqMeta{{Name: "chr1", Length: 1000}, {Name: "chr2", Length: 500}}

func testRecords() []alignment.ReadAlignment {
	fwd := alignment.ReadAlignment{
		SeqName: "chr1", First: 101, Last: 110, ReadLength: 10, Quality: 100, Cigar: "10M",
		ReadName: "p/1", ReadSeq: "ACGTACGTAC", ReadQual: "IIIIIIIIII",
		Flags: alignment.Paired | alignment.ProperPair | alignment.FirstOfPair | alignment.MateReverse,
		MateSeqName: "chr1", MateFirst: 301, MateName: "p/2",
	}
	rev := alignment.ReadAlignment{
		SeqName: "chr1", First: 301, Last: 309, ReadLength: 10, Quality: 8.5, Cigar: "5M1I4M", Distance: 2,
		ReadName: "p/2", ReadSeq: "GGGGGTTTTT", ReadQual: "##########",
		Flags: alignment.Paired | alignment.ProperPair | alignment.SecondOfPair | alignment.Reverse,
		MateSeqName: "chr1", MateFirst: 101, MateName: "p/1",
	}
	orphan := alignment.NewUnmapped(alignment.Read{Name: "q/2", Seq: "ACGT", Qual: "IIII"})
	orphan.SetFlags(alignment.Paired | alignment.SecondOfPair)
	mate := alignment.ReadAlignment{SeqName: "chr2", First: 50, Last: 53, Cigar: "4M", Quality: 100, ReadName: "q/1", ReadSeq: "TTTT"}
	orphan.SetMate(&mate)
	lost := alignment.NewUnmapped(alignment.Read{Name: "single", Seq: "NNNN"})
	return []alignment.ReadAlignment{fwd, rev, orphan, lost}
}

func TestWriteSAM(t *testing.T) {
	var buf bytes.Buffer
	sw, err := NewWriter(&buf, metas, "sam")
	require.NoError(t, err)
	recs := testRecords()
	for i := range recs {
		require.NoError(t, sw.Write(&recs[i]))
	}
	require.NoError(t, sw.Close())

	var body []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.HasPrefix(line, "@SQ") {
			assert.Contains(t, []string{"@SQ\tSN:chr1\tLN:1000", "@SQ\tSN:chr2\tLN:500"}, line)
		}
		if !strings.HasPrefix(line, "@") {
			body = append(body, line)
		}
	}
	require.Len(t, body, 4)
	f := strings.Split(body[0], "\t")
	assert.Equal(t, []string{"p", "99", "chr1", "101", "100", "10M", "=", "301"}, f[:8])
	assert.Contains(t, body[0], "NM:i:0")
	f = strings.Split(body[1], "\t")
	assert.Equal(t, []string{"p", "147", "chr1", "301", "9", "5M1I4M"}, f[:6])
	assert.Contains(t, body[1], "NM:i:2")
	f = strings.Split(body[2], "\t")
	assert.Equal(t, []string{"q", "133", "chr2", "50", "0", "*", "=", "50"}, f[:8])
	f = strings.Split(body[3], "\t")
	assert.Equal(t, []string{"single", "4", "*", "0", "0", "*"}, f[:6])
	assert.Equal(t, "*", f[10])
}

func TestWriteBAMAndSummarize(t *testing.T) {
	var buf bytes.Buffer
	sw, err := NewWriter(&buf, metas, "bam")
	require.NoError(t, err)
	recs := testRecords()
	for i := range recs {
		require.NoError(t, sw.Write(&recs[i]))
	}
	require.NoError(t, sw.Close())

	s, err := Summarize(bytes.NewReader(buf.Bytes()), true, 1)
	require.NoError(t, err)
	assert.Equal(t, Summary{Records: 4, Unmapped: 2, Paired: 3, ProperPair: 2, Reverse: 1, Mnum: 19, Inum: 1, NM: 2}, s)
}

func TestRecordErrors(t *testing.T) {
	sw, err := NewWriter(&bytes.Buffer{}, metas, "sam")
	require.NoError(t, err)
	bad := alignment.ReadAlignment{SeqName: "chrX", First: 1, Last: 4, Cigar: "4M", ReadName: "x", ReadSeq: "ACGT"}
	assert.Error(t, sw.Write(&bad))
	bad.SeqName, bad.Cigar = "chr1", "4Q"
	assert.Error(t, sw.Write(&bad))

	_, err = NewWriter(&bytes.Buffer{}, metas, "cram")
	assert.Error(t, err)
}

func TestAccumulateCigar(t *testing.T) {
	c, err := sam.ParseCigar([]byte("3S10M2I4D5="))
	require.NoError(t, err)
	m, i, d := AccumulateCigar(c)
	assert.Equal(t, 15, m)
	assert.Equal(t, 2, i)
	assert.Equal(t, 4, d)
}
