package mapngs

import (
	"fmt"
	"io"
	"strconv"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

// ClustersGraph draws the seeds of a read and the clusters their hits fall
// into. Each edge is one seed hit labelled with its reference position.
func ClustersGraph(readName string, seeds []Seed, clusters []*Cluster) (*gographviz.Graph, error) {
	g := gographviz.NewGraph()
	g.SetName("G")
	g.SetDir(true)
	g.SetStrict(false)
	if err := g.AddAttr("G", "label", strconv.Quote(readName)); err != nil {
		return nil, err
	}
	seedNode := make(map[int]string, len(seeds))
	for i, s := range seeds {
		id := "s" + strconv.Itoa(i)
		seedNode[s.Offset] = id
		attr := map[string]string{
			"shape": "box",
			"label": strconv.Quote(fmt.Sprintf("%d:%s", s.Offset, s.Kmer)),
		}
		if err := g.AddNode("G", id, attr); err != nil {
			return nil, err
		}
	}
	for i, c := range clusters {
		id := "c" + strconv.Itoa(i)
		color := "Red"
		if c.AllConsistent {
			color = "Green"
		}
		attr := map[string]string{
			"color": color,
			"label": strconv.Quote(fmt.Sprintf("%s:%d-%d seeds:%d/%d", c.SeqName, c.First, c.Last, c.DistinctSeeds(), len(seeds))),
		}
		if err := g.AddNode("G", id, attr); err != nil {
			return nil, err
		}
		for _, h := range c.Hits {
			src, ok := seedNode[h.QueryOffset]
			if !ok {
				continue
			}
			if err := g.AddEdge(src, id, true, map[string]string{"label": strconv.Quote(strconv.Itoa(h.First))}); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// WriteClustersGraph writes the DOT text of ClustersGraph to w.
func WriteClustersGraph(w io.Writer, readName string, seeds []Seed, clusters []*Cluster) error {
	g, err := ClustersGraph(readName, seeds, clusters)
	if err != nil {
		return errors.Wrapf(err, "[WriteClustersGraph] read %s", readName)
	}
	_, err = io.WriteString(w, g.String())
	return err
}
