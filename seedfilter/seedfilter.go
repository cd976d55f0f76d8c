// Package seedfilter is a cuckoo filter over reference k-mers. A negative
// lookup proves a seed has no exact hit, so the index search can be skipped.
package seedfilter

import (
	"encoding/binary"
	"io"
	"math/rand"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FPMASK     = 0xFFFF
	BucketSize = 4
	MaxLoad    = 0.95
	MaxKicks   = 500
)

type Bucket struct {
	Bkt [BucketSize]uint16
}

func (b Bucket) Contain(fp uint16) bool {
	for _, item := range b.Bkt {
		if item == fp {
			return true
		}
	}
	return false
}

func (b *Bucket) add(fp uint16) bool {
	for i, item := range b.Bkt {
		if item == 0 {
			b.Bkt[i] = fp
			return true
		}
	}
	return false
}

// Filter is written once by the index builder, then only read.
type Filter struct {
	Hash     []Bucket
	Kmerlen  int
	NumItems uint64
	Disabled bool
	mask     uint64
	rng      *rand.Rand
}

func upperpower2(x uint64) uint64 {
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	return x
}

// MakeFilter sizes a filter for maxNumKeys distinct k-mers.
func MakeFilter(maxNumKeys uint64, kmerLen int) *Filter {
	numBuckets := upperpower2(uint64(float64(maxNumKeys)/BucketSize/MaxLoad) + 1)
	cf := &Filter{
		Hash:    make([]Bucket, numBuckets),
		Kmerlen: kmerLen,
		mask:    numBuckets - 1,
		rng:     rand.New(rand.NewSource(1)),
	}
	log.Debugf("[MakeFilter] %d buckets for %d keys", numBuckets, maxNumKeys)
	return cf
}

func fingerPrint(h uint64) uint16 {
	return uint16((h>>32)%FPMASK + 1)
}

func (cf *Filter) altIndex(index uint64, fp uint16) uint64 {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], fp)
	return (index ^ xxhash.Sum64(b[:])) & cf.mask
}

// Lookup reports whether kmer may be present. It never answers false for an
// inserted k-mer.
func (cf *Filter) Lookup(kmer []byte) bool {
	if cf == nil || cf.Disabled {
		return true
	}
	h := xxhash.Sum64(kmer)
	fp := fingerPrint(h)
	i1 := h & cf.mask
	return cf.Hash[i1].Contain(fp) || cf.Hash[cf.altIndex(i1, fp)].Contain(fp)
}

// Insert adds kmer. When no slot is found after MaxKicks relocations the
// filter disables itself and reports false.
func (cf *Filter) Insert(kmer []byte) bool {
	if cf.Disabled {
		return false
	}
	if cf.Lookup(kmer) {
		return true
	}
	h := xxhash.Sum64(kmer)
	fp := fingerPrint(h)
	i1 := h & cf.mask
	i2 := cf.altIndex(i1, fp)
	if cf.Hash[i1].add(fp) || cf.Hash[i2].add(fp) {
		cf.NumItems++
		return true
	}
	idx := i1
	if cf.rng.Intn(2) == 1 {
		idx = i2
	}
	for k := 0; k < MaxKicks; k++ {
		slot := cf.rng.Intn(BucketSize)
		fp, cf.Hash[idx].Bkt[slot] = cf.Hash[idx].Bkt[slot], fp
		idx = cf.altIndex(idx, fp)
		if cf.Hash[idx].add(fp) {
			cf.NumItems++
			return true
		}
	}
	log.Warnf("[Insert] cuckoo filter full after %d items, disabling", cf.NumItems)
	cf.Disabled = true
	return false
}

// LoadFactor is the fraction of used slots.
func (cf *Filter) LoadFactor() float64 {
	return float64(cf.NumItems) / float64(len(cf.Hash)*BucketSize)
}

func (cf *Filter) Encode(w io.Writer) error {
	hdr := []uint64{uint64(len(cf.Hash)), uint64(cf.Kmerlen), cf.NumItems, 0}
	if cf.Disabled {
		hdr[3] = 1
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return errors.Wrap(err, "[Encode] seed filter header")
	}
	return errors.Wrap(binary.Write(w, binary.LittleEndian, cf.Hash), "[Encode] seed filter buckets")
}

func ReadFilter(r io.Reader) (*Filter, error) {
	hdr := make([]uint64, 4)
	if err := binary.Read(r, binary.LittleEndian, hdr); err != nil {
		return nil, errors.Wrap(err, "[ReadFilter] header")
	}
	if hdr[0] == 0 || hdr[0]&(hdr[0]-1) != 0 {
		return nil, errors.Errorf("[ReadFilter] bucket count %d not a power of two", hdr[0])
	}
	cf := &Filter{
		Hash:     make([]Bucket, hdr[0]),
		Kmerlen:  int(hdr[1]),
		NumItems: hdr[2],
		Disabled: hdr[3] == 1,
		mask:     hdr[0] - 1,
		rng:      rand.New(rand.NewSource(1)),
	}
	if err := binary.Read(r, binary.LittleEndian, cf.Hash); err != nil {
		return nil, errors.Wrap(err, "[ReadFilter] buckets")
	}
	return cf, nil
}
