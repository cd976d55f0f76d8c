package mapngs

import "github.com/pkg/errors"

const SearchKmerLength = 15

// Options tunes the seed-and-extend aligner.
type Options struct {
	KmerLength         int
	MinKmerProportion  float64
	MaxAlignments      int
	OnlyPositiveStrand bool
	// WindowPadding widens the DP window on a side without a boundary seed.
	WindowPadding       int
	MaxDistanceFraction float64
	SecondaryFraction   float64
	AmbiguousScale      float64
}

func DefaultOptions() Options {
	return Options{
		KmerLength:          SearchKmerLength,
		MinKmerProportion:   0.7,
		MaxAlignments:       100,
		WindowPadding:       10,
		MaxDistanceFraction: 0.5,
		SecondaryFraction:   0.8,
		AmbiguousScale:      0.1,
	}
}

func (o Options) Check() error {
	switch {
	case o.KmerLength < 1:
		return errors.Errorf("[Check] kmer length %d must be positive", o.KmerLength)
	case o.MinKmerProportion < 0 || o.MinKmerProportion > 1:
		return errors.Errorf("[Check] min kmer proportion %v outside [0,1]", o.MinKmerProportion)
	case o.MaxAlignments < 1:
		return errors.Errorf("[Check] max alignments %d must be positive", o.MaxAlignments)
	case o.WindowPadding < 0:
		return errors.Errorf("[Check] window padding %d is negative", o.WindowPadding)
	}
	return nil
}
