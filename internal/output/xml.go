package output

import (
	"fmt"
	"strings"

	"github.com/pulsarsearch/candypicker/internal/cluster"
	"github.com/pulsarsearch/candypicker/internal/ingest"
)

// PickedPath and RejectedPath name the split outputs of a search file.
func PickedPath(input string) string   { return siblingPath(input, "_picked.xml") }
func RejectedPath(input string) string { return siblingPath(input, "_rejected.xml") }

// WriteSplitXML writes X_picked.xml and X_rejected.xml for every input X.
// Both keep the input's declaration, root tag and top-level sections in
// order; the candidates section is split between them. Candidates dropped
// at ingestion go to the rejected file. It returns the paths written.
func WriteSplitXML(batch *ingest.XMLBatch, res *cluster.Result) ([]string, error) {
	type rendered struct {
		picked, rejected []byte
	}
	outputs := make([]rendered, len(batch.Files))
	for i, f := range batch.Files {
		keep := func(entry int) bool {
			return entry >= 0 && res.IsPivot(f.Candidates[entry].ID)
		}
		picked, err := renderXML(f, keep)
		if err != nil {
			return nil, fmt.Errorf("encoding picked candidates of %s: %w", f.Source.Path, err)
		}
		rejected, err := renderXML(f, func(entry int) bool { return !keep(entry) })
		if err != nil {
			return nil, fmt.Errorf("encoding rejected candidates of %s: %w", f.Source.Path, err)
		}
		outputs[i] = rendered{picked, rejected}
	}

	paths := make([]string, 0, 2*len(batch.Files))
	for i, f := range batch.Files {
		for _, out := range []struct {
			path string
			data []byte
		}{
			{PickedPath(f.Source.Path), outputs[i].picked},
			{RejectedPath(f.Source.Path), outputs[i].rejected},
		} {
			if err := writeAtomic(out.path, out.data); err != nil {
				return paths, err
			}
			paths = append(paths, out.path)
		}
	}
	return paths, nil
}

// renderXML rebuilds f with only the candidate blocks include accepts.
func renderXML(f *ingest.XMLFile, include func(entry int) bool) ([]byte, error) {
	var b strings.Builder
	b.WriteString(f.Decl)
	b.WriteByte('\n')
	b.WriteString(f.RootStart)
	b.WriteByte('\n')

	for _, s := range f.Sections {
		if s.Name != "candidates" {
			b.WriteString(s.Raw)
			b.WriteByte('\n')
			continue
		}
		b.WriteString("<candidates>\n")
		for _, blk := range f.Blocks {
			if include(blk.Entry) {
				b.WriteString(blk.Raw)
				b.WriteByte('\n')
			}
		}
		b.WriteString("</candidates>\n")
	}

	b.WriteString("</" + f.RootName + ">\n")

	if f.Encoding == nil {
		return []byte(b.String()), nil
	}
	return f.Encoding.NewEncoder().Bytes([]byte(b.String()))
}
