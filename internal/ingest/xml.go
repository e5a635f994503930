package ingest

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/pulsarsearch/candypicker/internal/types"
)

// DefaultDeclaration is written when an input has no XML declaration.
const DefaultDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

// Section is a top-level element of a search file, kept as raw markup.
type Section struct {
	Name string
	Raw  string
}

// Block is one <candidate> element in file order. Entry indexes
// XMLFile.Entries, or is -1 when the candidate was dropped at ingestion.
type Block struct {
	Raw   string
	Entry int
}

// XMLCandidate holds the fields of a search candidate that outputs report.
type XMLCandidate struct {
	ID            int
	Period        float64
	DM            float64
	Acc           float64
	NH            int
	SNR           float64
	DDMCountRatio float64
	DDMSNRRatio   float64
	NAssoc        int
	UUID          string
}

// XMLFile is one peasoup search file held in memory.
type XMLFile struct {
	Source types.Source

	// Decl is the original XML declaration, or DefaultDeclaration.
	Decl string
	// Encoding is the declared character set when it is not UTF-8. Content
	// is held as UTF-8 and re-encoded on output.
	Encoding encoding.Encoding

	// RootStart is the raw start tag of the document element.
	RootStart string
	RootName  string

	// Sections are the top-level elements in document order. The candidates
	// section is present by name only; its content is Blocks.
	Sections []Section
	Blocks   []Block

	TSamp   float64
	FFTSize int64

	Entries    []XMLCandidate
	Candidates []*types.Candidate
}

// ObservationDuration is size × tsamp in seconds.
func (f *XMLFile) ObservationDuration() float64 {
	return float64(f.FFTSize) * f.TSamp
}

// rawCandidate mirrors a <candidate> element; fields are parsed by hand so a
// single bad value drops only that candidate.
type rawCandidate struct {
	ID            string `xml:"id,attr"`
	Period        string `xml:"period"`
	DM            string `xml:"dm"`
	Acc           string `xml:"acc"`
	NH            string `xml:"nh"`
	SNR           string `xml:"snr"`
	DDMCountRatio string `xml:"ddm_count_ratio"`
	DDMSNRRatio   string `xml:"ddm_snr_ratio"`
	NAssoc        string `xml:"nassoc"`
	UUID          string `xml:"search_candidates_database_uuid"`
}

// ReadXML parses a peasoup search file. The header_parameters/tsamp and
// search_parameters/size values are required.
func ReadXML(path string, log logrus.FieldLogger) (*XMLFile, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	out := &XMLFile{
		Source: types.Source{Path: path, Kind: types.SourceXML},
		Decl:   declaration(content),
	}
	content, out.Encoding, err = toUTF8(content, out.Decl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := out.parse(content, log); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if out.TSamp <= 0 {
		return nil, fmt.Errorf("%s: missing or invalid header_parameters/tsamp", path)
	}
	if out.FFTSize <= 0 {
		return nil, fmt.Errorf("%s: missing or invalid search_parameters/size", path)
	}

	return out, nil
}

func (f *XMLFile) parse(content []byte, log logrus.FieldLogger) error {
	dec := xml.NewDecoder(bytes.NewReader(content))
	// content is already UTF-8
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	inRoot := false
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !inRoot {
				f.RootName = t.Name.Local
				f.RootStart = string(content[start:dec.InputOffset()])
				inRoot = true
				continue
			}

			name := t.Name.Local
			switch name {
			case "candidates":
				if err := f.readCandidates(dec, content, log); err != nil {
					return err
				}
				f.Sections = append(f.Sections, Section{Name: name})
				continue
			case "header_parameters":
				var hp struct {
					TSamp string `xml:"tsamp"`
				}
				if err := dec.DecodeElement(&hp, &t); err != nil {
					return err
				}
				f.TSamp, _ = strconv.ParseFloat(strings.TrimSpace(hp.TSamp), 64)
			case "search_parameters":
				var sp struct {
					Size string `xml:"size"`
				}
				if err := dec.DecodeElement(&sp, &t); err != nil {
					return err
				}
				f.FFTSize = parseSize(sp.Size)
			default:
				if err := dec.Skip(); err != nil {
					return err
				}
			}
			f.Sections = append(f.Sections, Section{Name: name, Raw: string(content[start:dec.InputOffset()])})

		case xml.EndElement:
			inRoot = false
		}
	}

	if f.RootName == "" {
		return errors.New("no document element")
	}
	return nil
}

func (f *XMLFile) readCandidates(dec *xml.Decoder, content []byte, log logrus.FieldLogger) error {
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "candidate" {
				if err := dec.Skip(); err != nil {
					return err
				}
				continue
			}
			var rc rawCandidate
			if err := dec.DecodeElement(&rc, &t); err != nil {
				return err
			}
			raw := string(content[start:dec.InputOffset()])
			f.Source.Rows++

			entry, err := rc.parse()
			if err != nil {
				f.Source.Dropped++
				f.Blocks = append(f.Blocks, Block{Raw: raw, Entry: -1})
				log.WithFields(logrus.Fields{"source": f.Source.Path, "candidate": rc.ID}).Debugf("Dropping candidate: %v", err)
				continue
			}
			c, err := types.NewCandidate(entry.Period, types.Float(entry.DM), types.Float(entry.Acc), entry.SNR, entry.NH)
			if err != nil {
				f.Source.Dropped++
				f.Blocks = append(f.Blocks, Block{Raw: raw, Entry: -1})
				log.WithFields(logrus.Fields{"source": f.Source.Path, "candidate": rc.ID}).Debugf("Dropping candidate: %v", err)
				continue
			}
			c.Record = types.Record{Index: len(f.Entries), Raw: raw, Key: f.key(entry)}
			f.Blocks = append(f.Blocks, Block{Raw: raw, Entry: len(f.Entries)})
			f.Entries = append(f.Entries, entry)
			f.Candidates = append(f.Candidates, c)

		case xml.EndElement:
			return nil
		}
	}
}

// key identifies a candidate in pivot listings: its database uuid, or
// path_id when there is none. The path is kept as given so inputs sharing a
// file name in different directories stay distinct.
func (f *XMLFile) key(e XMLCandidate) string {
	if e.UUID != "" {
		return e.UUID
	}
	return fmt.Sprintf("%s_%d", f.Source.Path, e.ID)
}

func (rc rawCandidate) parse() (XMLCandidate, error) {
	var (
		e   XMLCandidate
		err error
	)
	req := func(field, s string, dst *float64) {
		if err != nil {
			return
		}
		if *dst, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			err = fmt.Errorf("%s: %w", field, err)
		}
	}
	opt := func(field, s string, dst *float64) {
		if strings.TrimSpace(s) == "" {
			return
		}
		req(field, s, dst)
	}

	if e.ID, err = strconv.Atoi(strings.TrimSpace(rc.ID)); err != nil {
		return e, fmt.Errorf("id: %w", err)
	}
	var nh, nassoc float64
	req("period", rc.Period, &e.Period)
	req("dm", rc.DM, &e.DM)
	req("acc", rc.Acc, &e.Acc)
	req("nh", rc.NH, &nh)
	req("snr", rc.SNR, &e.SNR)
	opt("ddm_count_ratio", rc.DDMCountRatio, &e.DDMCountRatio)
	opt("ddm_snr_ratio", rc.DDMSNRRatio, &e.DDMSNRRatio)
	opt("nassoc", rc.NAssoc, &nassoc)
	if err != nil {
		return e, err
	}
	for _, v := range []float64{e.DM, e.Acc} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return e, fmt.Errorf("non-finite dm or acc")
		}
	}
	e.NH = int(nh)
	e.NAssoc = int(nassoc)
	e.UUID = strings.TrimSpace(rc.UUID)
	return e, nil
}

func parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == math.Trunc(v) {
		return int64(v)
	}
	return 0
}

// declaration returns the document's XML declaration, or DefaultDeclaration.
func declaration(content []byte) string {
	s := strings.TrimLeft(string(content[:min(len(content), 512)]), "\ufeff \t\r\n")
	if !strings.HasPrefix(s, "<?xml") {
		return DefaultDeclaration
	}
	if end := strings.Index(s, "?>"); end >= 0 {
		return s[:end+2]
	}
	return DefaultDeclaration
}

// toUTF8 converts content to UTF-8 when the declaration names another
// character set. The returned encoding is nil for UTF-8 input.
func toUTF8(content []byte, decl string) ([]byte, encoding.Encoding, error) {
	name := declaredEncoding(decl)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return content, nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, nil, fmt.Errorf("unsupported encoding %q", name)
	}
	utf8, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return utf8, enc, nil
}

func declaredEncoding(decl string) string {
	i := strings.Index(decl, "encoding=")
	if i < 0 {
		return ""
	}
	rest := decl[i+len("encoding="):]
	if rest == "" {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return ""
	}
	end := strings.IndexByte(rest[1:], quote)
	if end < 0 {
		return ""
	}
	return rest[1 : 1+end]
}

// XMLBatch is the result of loading several search files.
type XMLBatch struct {
	Set
	Files []*XMLFile

	// ObservationDuration is the shared size × tsamp of all files.
	ObservationDuration float64
}

// LoadXML reads paths in parallel, merges them in input order and checks that
// every file was searched with the same FFT size and sampling time.
func LoadXML(ctx context.Context, paths []string, opts Options) (*XMLBatch, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input XML files")
	}
	log := opts.logger()

	files, err := loadAll(ctx, paths, opts.Workers, func(path string) (*XMLFile, error) {
		return ReadXML(path, log)
	})
	if err != nil {
		return nil, err
	}

	tobs, err := ObservationDuration(files)
	if err != nil {
		return nil, err
	}

	batch := &XMLBatch{Files: files, ObservationDuration: tobs}
	for _, f := range files {
		batch.Append(f.Source, f.Candidates)
		f.Source = batch.Sources[len(batch.Sources)-1]
		log.WithFields(logrus.Fields{
			"source":  f.Source.Path,
			"rows":    f.Source.Rows,
			"dropped": f.Source.Dropped,
		}).Info("Loaded XML")
	}
	log.WithField("tobs_s", tobs).Info("Effective observation duration")

	return batch, nil
}

// ObservationDuration returns the common size × tsamp of files, or
// ErrInconsistentSources when they disagree.
func ObservationDuration(files []*XMLFile) (float64, error) {
	if len(files) == 0 {
		return 0, fmt.Errorf("no files")
	}
	first := files[0]
	for _, f := range files[1:] {
		if f.FFTSize != first.FFTSize || f.TSamp != first.TSamp {
			return 0, fmt.Errorf("%w: %s has size=%d tsamp=%g but %s has size=%d tsamp=%g",
				ErrInconsistentSources, f.Source.Path, f.FFTSize, f.TSamp,
				first.Source.Path, first.FFTSize, first.TSamp)
		}
	}
	return first.ObservationDuration(), nil
}
