package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ngsalign/ra/alignment"
	"github.com/ngsalign/ra/bnt"
	"github.com/ngsalign/ra/mapngs"
	"github.com/ngsalign/ra/pairend"
	"github.com/ngsalign/ra/refgenome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*httptest.Server, string) {
	rng := rand.New(rand.NewSource(3))
	b := make([]byte, 800)
	for i := range b {
		b[i] = "ACGT"[rng.Intn(4)]
	}
	ref := string(b)
	g, err := refgenome.Build([]refgenome.Reference{{Name: "chr1", Seq: ref}}, refgenome.BuildOptions{})
	require.NoError(t, err)
	ts := httptest.NewServer(New(g, mapngs.DefaultOptions(), pairend.DefaultOptions(), 1).Router())
	t.Cleanup(ts.Close)
	return ts, ref
}

func post(t *testing.T, url string, body interface{}, out interface{}) int {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndSequences(t *testing.T) {
	ts, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(ts.URL + "/api/v1/sequences")
	require.NoError(t, err)
	defer resp.Body.Close()
	var metas []refgenome.SeqMeta
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metas))
	assert.Equal(t, []refgenome.SeqMeta{{Name: "chr1", Length: 800}}, metas)
}

func TestSearch(t *testing.T) {
	ts, ref := testServer(t)
	var res SearchResponse
	code := post(t, ts.URL+"/api/v1/search", SearchRequest{Pattern: ref[100:130]}, &res)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []refgenome.Hit{{SeqName: "chr1", First: 101, Last: 130}}, res.Hits)

	var none SearchResponse
	code = post(t, ts.URL+"/api/v1/search", SearchRequest{Pattern: "nnnnnnnnnnnnnnnnnnnn"}, &none)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, none.Hits)

	var e map[string]string
	code = post(t, ts.URL+"/api/v1/search", SearchRequest{Pattern: "ACGX"}, &e)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, e["error"])
	code = post(t, ts.URL+"/api/v1/search", SearchRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlign(t *testing.T) {
	ts, ref := testServer(t)
	var res AlignResponse
	code := post(t, ts.URL+"/api/v1/align", alignment.Read{Name: "r", Seq: ref[300:400]}, &res)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, res.Alignments, 1)
	assert.Equal(t, 301, res.Alignments[0].First)
	assert.Equal(t, "100M", res.Alignments[0].Cigar)

	res = AlignResponse{}
	code = post(t, ts.URL+"/api/v1/align", alignment.Read{Name: "u", Seq: "NNNNNNNNNNNNNNNNNNNNNNNNN"}, &res)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, res.Alignments, 1)
	assert.True(t, res.Alignments[0].IsUnmapped())

	code = post(t, ts.URL+"/api/v1/align", alignment.Read{Name: "q", Seq: "ACGT", Qual: "II"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlignPair(t *testing.T) {
	ts, ref := testServer(t)
	req := PairRequest{
		Read1: alignment.Read{Name: "p/1", Seq: ref[100:200]},
		Read2: alignment.Read{Name: "p/2", Seq: bnt.ReverseComplement(ref[350:450])},
	}
	var res PairResponse
	code := post(t, ts.URL+"/api/v1/align/pair", req, &res)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "proper", res.Category)
	require.Len(t, res.Records, 2)
	assert.True(t, res.Records[0].IsProperPair())
	assert.Equal(t, 351, res.Records[0].MateFirst)

	resp, err := http.Post(ts.URL+"/api/v1/align/pair", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
