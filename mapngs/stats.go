package mapngs

import (
	"github.com/dustin/go-humanize"
	"github.com/ngsalign/ra/pairend"
	log "github.com/sirupsen/logrus"
)

// Stats counts reads (Total, Aligned, Unique) and pairs (Proper, Improper,
// Single, HalfMapped). Single pairs have both mates aligned but no pairing;
// HalfMapped pairs have one mate aligned. A unit of work fills its own
// Stats; the caller merges them.
type Stats struct {
	Total    int64 `json:"total"`
	Aligned  int64 `json:"aligned"`
	Unique   int64 `json:"unique"`
	Proper   int64 `json:"proper"`
	Improper int64 `json:"improper"`
	Single   int64 `json:"single"`

	HalfMapped int64 `json:"half_mapped"`
}

// AddRead records one read that produced numAlns filtered alignments.
func (s *Stats) AddRead(numAlns int) {
	s.Total++
	if numAlns > 0 {
		s.Aligned++
	}
	if numAlns == 1 {
		s.Unique++
	}
}

func (s *Stats) AddPair(cat pairend.Category) {
	switch cat {
	case pairend.Proper:
		s.Proper++
	case pairend.Improper:
		s.Improper++
	case pairend.Unpaired:
		s.Single++
	case pairend.OneMapped:
		s.HalfMapped++
	}
}

func (s *Stats) Merge(o Stats) {
	s.Total += o.Total
	s.Aligned += o.Aligned
	s.Unique += o.Unique
	s.Proper += o.Proper
	s.Improper += o.Improper
	s.Single += o.Single
	s.HalfMapped += o.HalfMapped
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func (s Stats) Log() {
	log.Infof("[Stats] total reads: %s", humanize.Comma(s.Total))
	log.Infof("[Stats] aligned: %s (%.2f%%), unique: %s (%.2f%%)",
		humanize.Comma(s.Aligned), percent(s.Aligned, s.Total),
		humanize.Comma(s.Unique), percent(s.Unique, s.Total))
	if pairs := s.Proper + s.Improper + s.Single + s.HalfMapped; pairs > 0 {
		log.Infof("[Stats] pairs proper: %s, improper: %s, single: %s, one mate mapped: %s",
			humanize.Comma(s.Proper), humanize.Comma(s.Improper), humanize.Comma(s.Single), humanize.Comma(s.HalfMapped))
	}
}
