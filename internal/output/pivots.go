package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pulsarsearch/candypicker/internal/cluster"
	"github.com/pulsarsearch/candypicker/internal/ingest"
)

// DefaultPivotsFile is where XML mode writes its pivot summary.
const DefaultPivotsFile = "pivots.csv"

var pivotColumns = []string{
	"snr", "period", "dm", "acc", "nh", "ddm_count_ratio", "ddm_snr_ratio", "nassoc",
	"period_ms", "uuid", "xml_file", "candidate_id", "num_related", "related_cands",
}

// WritePivotsCSV writes one row per pivot of an XML run, in pivot order.
// related_cands lists the keys of the candidates the pivot claimed, joined
// with ':'.
func WritePivotsCSV(path string, batch *ingest.XMLBatch, res *cluster.Result) error {
	rows := make([][]string, 0, len(res.Pivots))
	for _, p := range res.Pivots {
		c := batch.Candidates[p]
		f := batch.Files[c.Source]
		e := f.Entries[c.Record.Index]

		related := make([]string, 0, len(res.Related[p]))
		for _, q := range res.Related[p] {
			related = append(related, batch.Candidates[q].Record.Key)
		}

		rows = append(rows, []string{
			formatFloat(e.SNR),
			fmt.Sprintf("%.17f", e.Period),
			fmt.Sprintf("%.8f", e.DM),
			formatFloat(e.Acc),
			strconv.Itoa(e.NH),
			formatFloat(e.DDMCountRatio),
			formatFloat(e.DDMSNRRatio),
			strconv.Itoa(e.NAssoc),
			strconv.Itoa(c.PeriodMs),
			e.UUID,
			f.Source.Path,
			strconv.Itoa(e.ID),
			strconv.Itoa(len(related)),
			strings.Join(related, ":"),
		})
	}

	data, err := encodeCSV(pivotColumns, rows)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
