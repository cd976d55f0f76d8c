// Package packseq stores sequences over a fixed alphabet packed into 32 bit words.
package packseq

import (
	"math"
	"strings"

	"github.com/ngsalign/ra/bnt"
	"github.com/pkg/errors"
)

var (
	ErrUnsupportedSymbol = errors.New("symbol not in alphabet")
	ErrRange             = errors.New("position out of range")
	ErrEncodingOverflow  = errors.New("packed word overflow")
)

// Sequence is an append-only packed sequence. Each word stores a base
// alphabet-size number shifted by math.MinInt32 so the whole unsigned range
// fits a signed word.
type Sequence struct {
	alpha        *bnt.Alphabet
	perWord      int
	words        []int32
	lastWordSize int
	length       int
}

func New(alpha *bnt.Alphabet) *Sequence {
	return &Sequence{alpha: alpha, perWord: 32 / alpha.BitsPerSymbol()}
}

func NewFromString(alpha *bnt.Alphabet, s string) (*Sequence, error) {
	seq := New(alpha)
	if err := seq.SetFromSequence(s); err != nil {
		return nil, err
	}
	return seq, nil
}

// FromWords rebuilds a sequence from words previously returned by Words.
func FromWords(alpha *bnt.Alphabet, words []int32, length int) (*Sequence, error) {
	seq := New(alpha)
	if length < 0 || (length+seq.perWord-1)/seq.perWord != len(words) {
		return nil, errors.Wrapf(ErrRange, "[FromWords] %d words can't hold %d symbols", len(words), length)
	}
	seq.words = words
	seq.length = length
	if length > 0 {
		seq.lastWordSize = length - (len(words)-1)*seq.perWord
	}
	return seq, nil
}

func (s *Sequence) Alphabet() *bnt.Alphabet { return s.alpha }
func (s *Sequence) Len() int                { return s.length }
func (s *Sequence) Words() []int32          { return s.words }

// SymbolsPerWord is floor(32 / bits per symbol).
func (s *Sequence) SymbolsPerWord() int { return s.perWord }

func (s *Sequence) indexes(chars string) ([]int, error) {
	idxs := make([]int, len(chars))
	for i := 0; i < len(chars); i++ {
		idx, ok := s.alpha.Encode(chars[i])
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedSymbol, "'%c' at %d for alphabet %s", chars[i], i, s.alpha.Name())
		}
		idxs[i] = idx
	}
	return idxs, nil
}

func (s *Sequence) encodeWord(idxs []int) (int32, error) {
	size := uint64(s.alpha.Size())
	var number uint64
	for _, idx := range idxs {
		number = number*size + uint64(idx)
		if number > math.MaxUint32 {
			return 0, errors.Wrapf(ErrEncodingOverflow, "%d symbols of alphabet size %d", len(idxs), size)
		}
	}
	return int32(int64(number) + math.MinInt32), nil
}

func (s *Sequence) decodeWord(word int32, n int, dst []int) []int {
	size := uint64(s.alpha.Size())
	number := uint64(int64(word) - math.MinInt32)
	start := len(dst)
	for i := 0; i < n; i++ {
		dst = append(dst, 0)
	}
	for i := n - 1; i >= 0; i-- {
		dst[start+i] = int(number % size)
		number /= size
	}
	return dst
}

func (s *Sequence) wordSize(w int) int {
	if w == len(s.words)-1 {
		return s.lastWordSize
	}
	return s.perWord
}

func (s *Sequence) pack(idxs []int) ([]int32, int, error) {
	words := make([]int32, 0, (len(idxs)+s.perWord-1)/s.perWord)
	last := 0
	for i := 0; i < len(idxs); i += s.perWord {
		end := i + s.perWord
		if end > len(idxs) {
			end = len(idxs)
		}
		w, err := s.encodeWord(idxs[i:end])
		if err != nil {
			return nil, 0, err
		}
		words = append(words, w)
		last = end - i
	}
	return words, last, nil
}

// SetFromSequence replaces the contents with chars.
func (s *Sequence) SetFromSequence(chars string) error {
	idxs, err := s.indexes(chars)
	if err != nil {
		return errors.Wrap(err, "[SetFromSequence]")
	}
	words, last, err := s.pack(idxs)
	if err != nil {
		return errors.Wrap(err, "[SetFromSequence]")
	}
	s.words, s.lastWordSize, s.length = words, last, len(idxs)
	return nil
}

// Append adds chars at the end, refilling a partially used last word first.
// On error the sequence is left unchanged.
func (s *Sequence) Append(chars string) error {
	idxs, err := s.indexes(chars)
	if err != nil {
		return errors.Wrap(err, "[Append]")
	}
	if len(idxs) == 0 {
		return nil
	}
	kept := s.words
	if n := len(s.words); n > 0 && s.lastWordSize < s.perWord {
		junction := s.decodeWord(s.words[n-1], s.lastWordSize, make([]int, 0, s.lastWordSize+len(idxs)))
		idxs = append(junction, idxs...)
		kept = s.words[:n-1]
	}
	words, last, err := s.pack(idxs)
	if err != nil {
		return errors.Wrap(err, "[Append]")
	}
	s.words = append(kept, words...)
	s.lastWordSize = last
	s.length = len(s.words[:len(s.words)-1])*s.perWord + last
	return nil
}

func (s *Sequence) checkPos(fn string, pos int) error {
	if pos < 0 || pos >= s.length {
		return errors.Wrapf(ErrRange, "[%s] position %d, length %d", fn, pos, s.length)
	}
	return nil
}

func (s *Sequence) CharAt(pos int) (byte, error) {
	if err := s.checkPos("CharAt", pos); err != nil {
		return 0, err
	}
	w := pos / s.perWord
	idxs := s.decodeWord(s.words[w], s.wordSize(w), nil)
	return s.alpha.Letter(idxs[pos%s.perWord]), nil
}

// SetCharAt replaces the symbol at pos. Symbols outside the alphabet are ignored.
func (s *Sequence) SetCharAt(pos int, c byte) error {
	if err := s.checkPos("SetCharAt", pos); err != nil {
		return err
	}
	idx := s.alpha.IndexOf(c)
	if idx < 0 {
		return nil
	}
	w := pos / s.perWord
	idxs := s.decodeWord(s.words[w], s.wordSize(w), nil)
	idxs[pos%s.perWord] = idx
	word, err := s.encodeWord(idxs)
	if err != nil {
		return errors.Wrap(err, "[SetCharAt]")
	}
	s.words[w] = word
	return nil
}

// SubSequence returns a new sequence holding [start, end).
func (s *Sequence) SubSequence(start, end int) (*Sequence, error) {
	if start < 0 || end > s.length || end < start {
		return nil, errors.Wrapf(ErrRange, "[SubSequence] start: %d end: %d length: %d", start, end, s.length)
	}
	sub := New(s.alpha)
	if start == end {
		return sub, nil
	}
	first, lastW := start/s.perWord, (end-1)/s.perWord
	idxs := make([]int, 0, (lastW-first+1)*s.perWord)
	for w := first; w <= lastW; w++ {
		idxs = s.decodeWord(s.words[w], s.wordSize(w), idxs)
	}
	offset := first * s.perWord
	words, last, err := sub.pack(idxs[start-offset : end-offset])
	if err != nil {
		return nil, errors.Wrap(err, "[SubSequence]")
	}
	sub.words, sub.lastWordSize, sub.length = words, last, end-start
	return sub, nil
}

func (s *Sequence) String() string {
	var sb strings.Builder
	sb.Grow(s.length)
	var idxs []int
	for w := range s.words {
		idxs = s.decodeWord(s.words[w], s.wordSize(w), idxs[:0])
		for _, idx := range idxs {
			sb.WriteByte(s.alpha.Letter(idx))
		}
	}
	return sb.String()
}
