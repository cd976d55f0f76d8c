package refgenome

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/fmindex"
	"github.com/ngsalign/ra/packseq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDNA(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = "ACGT"[rng.Intn(4)]
	}
	return string(b)
}

func testRefs() []Reference {
	rng := rand.New(rand.NewSource(21))
	shared := "GATTACAGATTACACCC"
	return []Reference{
		{Name: "chr1", Seq: randomDNA(rng, 400) + shared + randomDNA(rng, 300)},
		{Name: "chr2", Seq: randomDNA(rng, 250) + shared + "NNRN" + randomDNA(rng, 100)},
		{Name: "chrM", Seq: randomDNA(rng, 90)},
	}
}

func TestBuildAndQuery(t *testing.T) {
	refs := testRefs()
	for _, filter := range []bool{false, true} {
		g, err := Build(refs, BuildOptions{NumCPU: 2, SeedFilter: filter, KmerLength: 15})
		require.NoError(t, err)
		assert.Equal(t, []SeqMeta{{"chr1", 717}, {"chr2", 371}, {"chrM", 90}}, g.SequencesMetadata())
		assert.Equal(t, 371, g.ReferenceLength("chr2"))
		assert.Equal(t, 0, g.ReferenceLength("chrX"))

		hits := g.Search("GATTACAGATTACAC")
		assert.Contains(t, hits, Hit{SeqName: "chr1", First: 401, Last: 415})
		assert.Contains(t, hits, Hit{SeqName: "chr2", First: 251, Last: 265})
		for _, h := range hits {
			s, err := g.GetSequence(h.SeqName, h.First, h.Last)
			require.NoError(t, err)
			assert.Equal(t, "GATTACAGATTACAC", s)
		}
		kmer := refs[0].Seq[100:115]
		assert.Contains(t, g.Search(kmer), Hit{SeqName: "chr1", First: 101, Last: 115})
		assert.Equal(t, filter, g.filter != nil)
		assert.Empty(t, g.Search("AAAAAAACCCCCCCC"))
		assert.Equal(t, len(hits), g.Count("GATTACAGATTACAC"))
		assert.Equal(t, 0, g.Count("AAAAAAACCCCCCCC"))
	}
}

func TestCheckExtract(t *testing.T) {
	seq := randomDNA(rand.New(rand.NewSource(5)), 600)
	idx, err := fmindex.Build("chr1", seq, 16, 8)
	require.NoError(t, err)
	packed, err := packseq.NewFromString(bnt.DNAMasked, seq)
	require.NoError(t, err)
	assert.NoError(t, checkExtract(idx, packed))

	b := []byte(seq)
	if b[590] == 'A' {
		b[590] = 'C'
	} else {
		b[590] = 'A'
	}
	other, err := packseq.NewFromString(bnt.DNAMasked, string(b))
	require.NoError(t, err)
	err = checkExtract(idx, other)
	assert.True(t, errors.Is(err, fmindex.ErrCorruptIndex))

	short, err := fmindex.Build("chrM", "ACGTN", 16, 8)
	require.NoError(t, err)
	packed, err = packseq.NewFromString(bnt.DNAMasked, "ACGTN")
	require.NoError(t, err)
	assert.NoError(t, checkExtract(short, packed))
}

func TestGetSequence(t *testing.T) {
	g, err := Build(testRefs(), BuildOptions{})
	require.NoError(t, err)
	s, err := g.GetSequence("chr2", 268, 271)
	require.NoError(t, err)
	assert.Equal(t, "NNNN", s)
	s, err = g.GetSequence("chrM", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	_, err = g.GetSequence("chrX", 1, 2)
	assert.True(t, errors.Is(err, ErrUnknownSequence))
	_, err = g.GetSequence("chrM", 0, 10)
	assert.True(t, errors.Is(err, ErrRange))
	_, err = g.GetSequence("chrM", 80, 91)
	assert.True(t, errors.Is(err, ErrRange))
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, err := Build([]Reference{{Name: "a", Seq: "ACGT"}, {Name: "a", Seq: "GG"}}, BuildOptions{})
	assert.Error(t, err)
	_, err = Build(nil, BuildOptions{})
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	g, err := Build(testRefs(), BuildOptions{TallyDistance: 20, SuffixFraction: 8, SeedFilter: true, KmerLength: 15})
	require.NoError(t, err)
	prefix := filepath.Join(t.TempDir(), "ref")
	require.NoError(t, g.Save(prefix))

	info, err := ReadInfo(prefix + InfoExt)
	require.NoError(t, err)
	assert.Equal(t, 20, info.TallyDistance)
	assert.Equal(t, 8, info.SuffixFraction)
	assert.True(t, info.SeedFilter)
	assert.Len(t, info.Sequences, 3)

	back, err := Load(prefix)
	require.NoError(t, err)
	assert.Equal(t, g.SequencesMetadata(), back.SequencesMetadata())
	assert.Equal(t, g.Search("GATTACAGATTACAC"), back.Search("GATTACAGATTACAC"))
	s1, _ := g.GetSequence("chr1", 10, 60)
	s2, err := back.GetSequence("chr1", 10, 60)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Equal(t, 15, back.Options().KmerLength)

	data, err := os.ReadFile(prefix + InfoExt)
	require.NoError(t, err)
	bad := strings.Replace(string(data), info.Checksum, "0000000000000000", 1)
	require.NoError(t, os.WriteFile(prefix+InfoExt, []byte(bad), 0644))
	_, err = Load(prefix)
	assert.Error(t, err)
}

func TestLoadFasta(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "ref.fa")
	require.NoError(t, os.WriteFile(fn, []byte(">chrA desc\nacgtAC\nGT\n>chrB\nNNAC\n"), 0644))
	refs, err := LoadFasta(fn)
	require.NoError(t, err)
	assert.Equal(t, []Reference{{Name: "chrA", Seq: "ACGTACGT"}, {Name: "chrB", Seq: "NNAC"}}, refs)

	empty := filepath.Join(t.TempDir(), "empty.fa")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = LoadFasta(empty)
	assert.Error(t, err)
	_, err = LoadFasta(filepath.Join(os.TempDir(), "does-not-exist.fa"))
	assert.Error(t, err)
}
