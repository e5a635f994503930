package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsarsearch/candypicker/internal/cluster"
	"github.com/pulsarsearch/candypicker/internal/ingest"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// result builds a clustering result by hand: claimedBy[i] is the pivot that
// owns i and pivots lists them in selection order.
func result(pivots []int, claimedBy []int) *cluster.Result {
	related := make([][]int, len(claimedBy))
	var rejected []int
	for i, p := range claimedBy {
		if p != i {
			related[p] = append(related[p], i)
			rejected = append(rejected, i)
		}
	}
	return &cluster.Result{
		Pivots:    pivots,
		Rejected:  rejected,
		Related:   related,
		ClaimedBy: claimedBy,
	}
}

func loadCSV(t *testing.T, paths ...string) *ingest.CSVBatch {
	t.Helper()
	batch, err := ingest.LoadCSV(context.Background(), paths, ingest.Options{})
	require.NoError(t, err)
	return batch
}

func TestWritePickedCSV(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "period,snr,note\n0.5,10,x\n0.25,5,\"quoted, cell\"\n")
	b := writeFile(t, dir, "b.csv", "period,snr,note\n1.0,20,y\n")
	batch := loadCSV(t, a, b)

	res := result([]int{2, 1}, []int{2, 1, 2})

	out := filepath.Join(dir, "picked.csv")
	require.NoError(t, WritePickedCSV(out, batch, res, "source"))
	assert.Equal(t, "period,snr,note,source\n1.0,20,y,"+b+"\n0.25,5,\"quoted, cell\","+a+"\n", readFile(t, out))

	require.NoError(t, WritePickedCSV(out, batch, res, ""))
	assert.Equal(t, "period,snr,note\n1.0,20,y\n0.25,5,\"quoted, cell\"\n", readFile(t, out))

	// the input rows are not modified by the source column
	assert.Equal(t, []string{"1.0", "20", "y"}, batch.Candidates[2].Record.Row)

	_, err := os.Stat(out + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteMatchedCSV(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "period,snr\n0.5,10\n0.25,5\n")
	b := writeFile(t, dir, "b.csv", "P0,SNR\n1.0,20\n")
	batch := loadCSV(t, a, b)

	paths, err := WriteMatchedCSV(batch, []bool{true, false, true}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a_matched.csv"), filepath.Join(dir, "b_matched.csv")}, paths)

	assert.Equal(t, "period,snr\n0.5,10\n", readFile(t, paths[0]))
	assert.Equal(t, "P0,SNR\n1.0,20\n", readFile(t, paths[1]))
}

func TestOutputPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "run_matched.csv"), MatchedPath(filepath.Join("dir", "run.csv"), ""))
	assert.Equal(t, "run.tar_x.csv", MatchedPath("run.tar.csv", "_x.csv"))
	assert.Equal(t, filepath.Join("obs", "search_picked.xml"), PickedPath(filepath.Join("obs", "search.xml")))
	assert.Equal(t, "search_rejected.xml", RejectedPath("search.xml"))
}

const searchDoc = `<?xml version="1.0"?>
<peasoup_search version="2">
  <misc_info>a</misc_info>
  <header_parameters><tsamp>0.001</tsamp></header_parameters>
  <search_parameters><size>1000</size></search_parameters>
  <candidates>
    <candidate id='0'><period>0.5</period><dm>10</dm><acc>0.5</acc><nh>2</nh><snr>12</snr><ddm_count_ratio>0.1</ddm_count_ratio><ddm_snr_ratio>0.2</ddm_snr_ratio><nassoc>3</nassoc><search_candidates_database_uuid>u-0</search_candidates_database_uuid></candidate>
    <candidate id='1'><period>bad</period><dm>1</dm><acc>0</acc><nh>0</nh><snr>1</snr></candidate>
    <candidate id='2'><period>1.0</period><dm>10</dm><acc>0</acc><nh>1</nh><snr>8</snr></candidate>
  </candidates>
  <execution_times><t>1</t></execution_times>
</peasoup_search>
`

func loadXML(t *testing.T, paths ...string) *ingest.XMLBatch {
	t.Helper()
	batch, err := ingest.LoadXML(context.Background(), paths, ingest.Options{})
	require.NoError(t, err)
	return batch
}

func TestWriteSplitXML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s.xml", searchDoc)
	batch := loadXML(t, path)
	require.Len(t, batch.Candidates, 2)

	res := result([]int{0}, []int{0, 0})

	paths, err := WriteSplitXML(batch, res)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "s_picked.xml"), filepath.Join(dir, "s_rejected.xml")}, paths)

	head := "<?xml version=\"1.0\"?>\n<peasoup_search version=\"2\">\n" +
		"<misc_info>a</misc_info>\n" +
		"<header_parameters><tsamp>0.001</tsamp></header_parameters>\n" +
		"<search_parameters><size>1000</size></search_parameters>\n" +
		"<candidates>\n"
	tail := "</candidates>\n<execution_times><t>1</t></execution_times>\n</peasoup_search>\n"

	b0 := "<candidate id='0'><period>0.5</period><dm>10</dm><acc>0.5</acc><nh>2</nh><snr>12</snr><ddm_count_ratio>0.1</ddm_count_ratio><ddm_snr_ratio>0.2</ddm_snr_ratio><nassoc>3</nassoc><search_candidates_database_uuid>u-0</search_candidates_database_uuid></candidate>\n"
	b1 := "<candidate id='1'><period>bad</period><dm>1</dm><acc>0</acc><nh>0</nh><snr>1</snr></candidate>\n"
	b2 := "<candidate id='2'><period>1.0</period><dm>10</dm><acc>0</acc><nh>1</nh><snr>8</snr></candidate>\n"

	assert.Equal(t, head+b0+tail, readFile(t, paths[0]))
	assert.Equal(t, head+b1+b2+tail, readFile(t, paths[1]))

	// The outputs are themselves readable search files.
	picked, err := ingest.ReadXML(paths[0], nil)
	require.NoError(t, err)
	assert.Len(t, picked.Candidates, 1)
}

func TestWriteSplitXMLKeepsEncoding(t *testing.T) {
	dir := t.TempDir()
	doc := strings.Replace(searchDoc, `<?xml version="1.0"?>`, `<?xml version="1.0" encoding="ISO-8859-1"?>`, 1)
	doc = strings.Replace(doc, "<misc_info>a</misc_info>", "<misc_info>caf\xe9</misc_info>", 1)
	path := writeFile(t, dir, "latin.xml", doc)
	batch := loadXML(t, path)

	paths, err := WriteSplitXML(batch, result([]int{0}, []int{0, 0}))
	require.NoError(t, err)
	assert.Contains(t, readFile(t, paths[0]), "<misc_info>caf\xe9</misc_info>")
}

func TestWritePivotsCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "s.xml", searchDoc)
	batch := loadXML(t, path)

	out := filepath.Join(dir, DefaultPivotsFile)
	require.NoError(t, WritePivotsCSV(out, batch, result([]int{0}, []int{0, 0})))

	want := "snr,period,dm,acc,nh,ddm_count_ratio,ddm_snr_ratio,nassoc,period_ms,uuid,xml_file,candidate_id,num_related,related_cands\n" +
		"12,0.50000000000000000,10.00000000,0.5,2,0.1,0.2,3,500,u-0," + path + ",0,1," + path + "_2\n"
	assert.Equal(t, want, readFile(t, out))
}
