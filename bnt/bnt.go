// Package bnt holds the nucleotide alphabets used to pack and complement sequences.
package bnt

const NoDefault = -1

// Alphabet is an immutable symbol set. A symbol outside the set is either
// rejected or, when the alphabet has a default, stored as the default symbol.
type Alphabet struct {
	name       string
	letters    string
	index      [256]int16
	defaultIdx int
}

// NewAlphabet returns an alphabet over letters. defaultSym is the letter
// substituted for unknown symbols, 0 for none.
func NewAlphabet(name, letters string, defaultSym byte) *Alphabet {
	a := &Alphabet{name: name, letters: letters, defaultIdx: NoDefault}
	for i := range a.index {
		a.index[i] = -1
	}
	for i := 0; i < len(letters); i++ {
		if a.index[letters[i]] >= 0 {
			panic("[NewAlphabet] duplicate letter '" + string(letters[i]) + "' in " + name)
		}
		a.index[letters[i]] = int16(i)
	}
	if defaultSym != 0 {
		if a.index[defaultSym] < 0 {
			panic("[NewAlphabet] default symbol not in alphabet " + name)
		}
		a.defaultIdx = int(a.index[defaultSym])
	}
	return a
}

var (
	// DNA is the strict four letter nucleotide alphabet.
	DNA = NewAlphabet("DNA", "ACGT", 0)
	// DNAMasked keeps soft-masked bases and stores ambiguity codes as N.
	DNAMasked = NewAlphabet("DNAMasked", "ACGTNacgtn", 'N')
)

func (a *Alphabet) Name() string    { return a.name }
func (a *Alphabet) Letters() string { return a.letters }
func (a *Alphabet) Size() int       { return len(a.letters) }

// DefaultIndex is the index stored for unknown symbols, NoDefault if unknown
// symbols are rejected.
func (a *Alphabet) DefaultIndex() int { return a.defaultIdx }

// IndexOf returns the index of c, or -1.
func (a *Alphabet) IndexOf(c byte) int {
	return int(a.index[c])
}

// Encode returns the stored index of c applying the default policy.
func (a *Alphabet) Encode(c byte) (int, bool) {
	if idx := a.index[c]; idx >= 0 {
		return int(idx), true
	}
	if a.defaultIdx != NoDefault {
		return a.defaultIdx, true
	}
	return -1, false
}

func (a *Alphabet) Letter(idx int) byte {
	return a.letters[idx]
}

// Valid reports whether every symbol of s belongs to the alphabet.
func (a *Alphabet) Valid(s string) bool {
	for i := 0; i < len(s); i++ {
		if a.index[s[i]] < 0 {
			return false
		}
	}
	return true
}

// BitsPerSymbol is floor(log2(size))+1.
func (a *Alphabet) BitsPerSymbol() int {
	bits := 0
	for n := len(a.letters); n > 0; n >>= 1 {
		bits++
	}
	return bits
}

var complement [256]byte

func init() {
	for i := range complement {
		complement[i] = 'N'
	}
	pairs := []string{"AT", "CG", "RY", "KM", "SS", "WW", "BV", "DH", "NN"}
	for _, p := range pairs {
		for _, s := range []string{p, lower(p)} {
			complement[s[0]] = s[1]
			complement[s[1]] = s[0]
		}
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// Complement returns the complementary base, N for unknown symbols.
func Complement(c byte) byte {
	return complement[c]
}

func ReverseComplement(s string) string {
	rc := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		rc[len(s)-1-i] = complement[s[i]]
	}
	return string(rc)
}

func Reverse(s string) string {
	r := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		r[len(s)-1-i] = s[i]
	}
	return string(r)
}

// ToUpper upper-cases ASCII letters in place and returns b.
func ToUpper(b []byte) []byte {
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return b
}
