package mapngs

import "github.com/ngsalign/ra/alignment"

// DPResult is a semi-global alignment of a whole query inside a reference
// window. Start and End are 0-based inclusive window offsets.
type DPResult struct {
	Distance   int
	Start, End int
	Ops        []byte
	Cigar      string
}

// AlignDP computes the edit distance alignment consuming all of query and
// any substring of window. Row 0 is free, column 0 costs one insertion per
// query base. The end column is the first minimum of the last row.
func AlignDP(query, window string) DPResult {
	n, m := len(query), len(window)
	cols := m + 1
	scores := make([]int32, (n+1)*cols)
	for i := 1; i <= n; i++ {
		scores[i*cols] = int32(i)
		for j := 1; j <= m; j++ {
			d := scores[(i-1)*cols+j-1]
			if query[i-1] != window[j-1] {
				d++
			}
			if up := scores[(i-1)*cols+j] + 1; up < d {
				d = up
			}
			if left := scores[i*cols+j-1] + 1; left < d {
				d = left
			}
			scores[i*cols+j] = d
		}
	}

	last := n * cols
	minJ := 1
	for j := 2; j <= m; j++ {
		if scores[last+j] < scores[last+minJ] {
			minJ = j
		}
	}
	if m == 0 {
		minJ = 0
	}

	ops := make([]byte, 0, n+m)
	i, j := n, minJ
	for i > 0 && j > 0 {
		s := scores[i*cols+j]
		diag := scores[(i-1)*cols+j-1]
		if query[i-1] != window[j-1] {
			diag++
		}
		switch {
		case s == diag:
			ops = append(ops, alignment.CigarMatch)
			i--
			j--
		case s == scores[(i-1)*cols+j]+1:
			ops = append(ops, alignment.CigarInsertion)
			i--
		default:
			ops = append(ops, alignment.CigarDeletion)
			j--
		}
	}
	for ; i > 0; i-- {
		ops = append(ops, alignment.CigarInsertion)
	}
	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return DPResult{
		Distance: int(scores[last+minJ]),
		Start:    j,
		End:      minJ - 1,
		Ops:      ops,
		Cigar:    alignment.EncodeCigar(ops),
	}
}
