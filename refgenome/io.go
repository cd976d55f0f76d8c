package refgenome

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash"
	humanize "github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/fmindex"
	"github.com/ngsalign/ra/packseq"
	"github.com/ngsalign/ra/seedfilter"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	IndexVersion = 1
	PayloadExt   = ".fmi.zst"
	InfoExt      = ".fmi.toml"
)

var payloadMagic = [4]byte{'R', 'A', 'G', 'I'}

// Info is the TOML side file written next to the index payload.
type Info struct {
	Version        int       `toml:"version"`
	Created        time.Time `toml:"created"`
	TallyDistance  int       `toml:"tally_distance"`
	SuffixFraction int       `toml:"suffix_fraction"`
	KmerLength     int       `toml:"kmer_length"`
	SeedFilter     bool      `toml:"seed_filter"`
	Checksum       string    `toml:"checksum"`
	PayloadSize    string    `toml:"payload_size"`
	Sequences      []SeqMeta `toml:"sequence"`
}

func ReadInfo(fn string) (info Info, err error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return info, errors.Wrapf(err, "[ReadInfo] index info file: %s", fn)
	}
	if err = toml.Unmarshal(data, &info); err != nil {
		return info, errors.Wrapf(err, "[ReadInfo] parse %s", fn)
	}
	if info.Version != IndexVersion {
		return info, errors.Errorf("[ReadInfo] %s: index version %d, expect %d", fn, info.Version, IndexVersion)
	}
	return info, nil
}

func writeInfo(fn string, info Info) error {
	data, err := toml.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "[writeInfo]")
	}
	return errors.Wrapf(os.WriteFile(fn, data, 0644), "[writeInfo] %s", fn)
}

// Save writes prefix.fmi.zst and prefix.fmi.toml.
func (g *Genome) Save(prefix string) error {
	fn := prefix + PayloadExt
	fp, err := os.Create(fn)
	if err != nil {
		return errors.Wrapf(err, "[Save] create %s", fn)
	}
	defer fp.Close()
	zw, err := zstd.NewWriter(fp, zstd.WithEncoderCRC(false), zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(1))
	if err != nil {
		return errors.Wrap(err, "[Save]")
	}
	h := xxhash.New()
	buf := bufio.NewWriterSize(io.MultiWriter(zw, h), 1<<20)
	if err = g.writePayload(buf); err == nil {
		err = buf.Flush()
	}
	if e := zw.Close(); err == nil {
		err = e
	}
	if err != nil {
		return errors.Wrapf(err, "[Save] write %s", fn)
	}
	st, err := fp.Stat()
	if err != nil {
		return errors.Wrap(err, "[Save]")
	}
	info := Info{
		Version:        IndexVersion,
		Created:        time.Now().UTC().Truncate(time.Second),
		TallyDistance:  g.indexes[0].TallyDistance(),
		SuffixFraction: g.indexes[0].SuffixFraction(),
		KmerLength:     g.opt.KmerLength,
		SeedFilter:     g.filter != nil,
		Checksum:       fmt.Sprintf("%016x", h.Sum64()),
		PayloadSize:    humanize.Bytes(uint64(st.Size())),
		Sequences:      g.meta,
	}
	log.Infof("[Save] index %s: %s", fn, info.PayloadSize)
	return writeInfo(prefix+InfoExt, info)
}

func (g *Genome) writePayload(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, payloadMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(g.indexes))); err != nil {
		return err
	}
	for i, idx := range g.indexes {
		if err := idx.Encode(w); err != nil {
			return err
		}
		words := g.seqs[i].Words()
		if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(g.seqs[i].Len()), uint32(len(words))}); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, words); err != nil {
			return err
		}
	}
	hasFilter := uint8(0)
	if g.filter != nil {
		hasFilter = 1
	}
	if err := binary.Write(w, binary.LittleEndian, hasFilter); err != nil {
		return err
	}
	if g.filter != nil {
		return g.filter.Encode(w)
	}
	return nil
}

// Load reads an index written by Save and verifies its checksum.
func Load(prefix string) (*Genome, error) {
	info, err := ReadInfo(prefix + InfoExt)
	if err != nil {
		return nil, err
	}
	fn := prefix + PayloadExt
	fp, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "[Load] open %s", fn)
	}
	defer fp.Close()
	zr, err := zstd.NewReader(fp, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, "[Load]")
	}
	defer zr.Close()
	h := xxhash.New()
	br := bufio.NewReaderSize(io.TeeReader(zr, h), 1<<20)

	g, err := readPayload(br)
	if err != nil {
		return nil, errors.Wrapf(err, "[Load] %s", fn)
	}
	if _, err = io.Copy(io.Discard, br); err != nil {
		return nil, errors.Wrapf(err, "[Load] %s", fn)
	}
	if sum := fmt.Sprintf("%016x", h.Sum64()); sum != info.Checksum {
		return nil, errors.Wrapf(fmindex.ErrCorruptIndex, "[Load] %s checksum %s, info records %s", fn, sum, info.Checksum)
	}
	if len(info.Sequences) != len(g.meta) {
		return nil, errors.Wrapf(fmindex.ErrCorruptIndex, "[Load] %d sequences in payload, %d in info", len(g.meta), len(info.Sequences))
	}
	for i, m := range info.Sequences {
		if m != g.meta[i] {
			return nil, errors.Wrapf(fmindex.ErrCorruptIndex, "[Load] sequence %d: payload %v, info %v", i, g.meta[i], m)
		}
	}
	g.opt = BuildOptions{
		TallyDistance:  info.TallyDistance,
		SuffixFraction: info.SuffixFraction,
		SeedFilter:     info.SeedFilter,
		KmerLength:     info.KmerLength,
	}
	log.Infof("[Load] %d sequences from %s (%s)", len(g.meta), fn, info.PayloadSize)
	return g, nil
}

func readPayload(r io.Reader) (*Genome, error) {
	var m [4]byte
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return nil, err
	}
	if m != payloadMagic {
		return nil, errors.Wrapf(fmindex.ErrCorruptIndex, "bad payload magic %q", m[:])
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	g := &Genome{byName: make(map[string]int, n)}
	for i := 0; i < int(n); i++ {
		idx, err := fmindex.ReadIndex(r)
		if err != nil {
			return nil, err
		}
		var sizes [2]uint32
		if err = binary.Read(r, binary.LittleEndian, &sizes); err != nil {
			return nil, err
		}
		words := make([]int32, sizes[1])
		if err = binary.Read(r, binary.LittleEndian, words); err != nil {
			return nil, err
		}
		packed, err := packseq.FromWords(bnt.DNAMasked, words, int(sizes[0]))
		if err != nil {
			return nil, err
		}
		if packed.Len() != idx.Len() {
			return nil, errors.Wrapf(fmindex.ErrCorruptIndex, "%s: packed length %d, index length %d", idx.Name(), packed.Len(), idx.Len())
		}
		if err = checkExtract(idx, packed); err != nil {
			return nil, err
		}
		g.byName[idx.Name()] = i
		g.meta = append(g.meta, SeqMeta{Name: idx.Name(), Length: idx.Len()})
		g.indexes = append(g.indexes, idx)
		g.seqs = append(g.seqs, packed)
	}
	var hasFilter uint8
	if err := binary.Read(r, binary.LittleEndian, &hasFilter); err != nil {
		return nil, err
	}
	if hasFilter == 1 {
		f, err := seedfilter.ReadFilter(r)
		if err != nil {
			return nil, err
		}
		g.filter = f
	}
	return g, nil
}

const extractCheckLen = 256

// checkExtract rebuilds the tail of the indexed text from the BWT and
// compares it with the packed copy.
func checkExtract(idx *fmindex.Index, packed *packseq.Sequence) error {
	start := packed.Len() - extractCheckLen
	if start < 0 {
		start = 0
	}
	got, err := idx.Extract(start, idx.Len())
	if err != nil {
		return errors.Wrapf(fmindex.ErrCorruptIndex, "[checkExtract] %v", err)
	}
	want, err := packed.SubSequence(start, packed.Len())
	if err != nil {
		return errors.Wrapf(fmindex.ErrCorruptIndex, "[checkExtract] %v", err)
	}
	if got != want.String() {
		return errors.Wrapf(fmindex.ErrCorruptIndex, "[checkExtract] %s: index text differs from packed sequence after %d", idx.Name(), start)
	}
	return nil
}
