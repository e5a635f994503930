package picker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsarsearch/candypicker/internal/config"
	"github.com/pulsarsearch/candypicker/internal/types"
)

type memRecorder struct {
	runs []*types.Run
	err  error
}

func (m *memRecorder) RecordRun(_ context.Context, run *types.Run) error {
	if m.err != nil {
		return m.err
	}
	run.ID = fmt.Sprintf("run-%d", len(m.runs))
	m.runs = append(m.runs, run)
	return nil
}

func testConfig(workers int) config.Config {
	cfg := config.DefaultConfig()
	cfg.Tolerance.PeriodTol = 1e-3
	dm := 1.0
	cfg.Tolerance.DMTol = &dm
	cfg.Workers = workers
	return cfg
}

func newPicker(t *testing.T, cfg config.Config, rec Recorder) *Picker {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return New(cfg, logger, rec)
}

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

func TestRunCSV(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			dir := t.TempDir()
			in := writeFile(t, dir, "a.csv", "period,dm,snr\n0.5,10,20\n1.0,10,5\n0.7,50,8\nbad,1,1\n")
			out := filepath.Join(dir, "picked.csv")

			rec := &memRecorder{}
			sum, err := newPicker(t, testConfig(workers), rec).RunCSV(context.Background(), CSVRequest{
				Inputs: []string{in},
				Output: out,
			})
			require.NoError(t, err)

			assert.Equal(t, "period,dm,snr\n0.5,10,20\n0.7,50,8\n", readFile(t, out))

			assert.Equal(t, 2, sum.Stats.PivotCount)
			assert.Equal(t, 1, sum.Stats.SuppressedCount)
			assert.Equal(t, 2, sum.Matched)
			assert.Equal(t, 4, sum.Run.Rows)
			assert.Equal(t, 1, sum.Run.Dropped)
			assert.Equal(t, []string{out}, sum.Run.Outputs)
			assert.Contains(t, sum.Run.Tolerance, `"period_tol":0.001`)

			require.Len(t, rec.runs, 1)
			assert.Equal(t, types.RunModeCSV, rec.runs[0].Mode)
			assert.Equal(t, "run-0", sum.Run.ID)
		})
	}
}

func TestRunCSVFatalErrorsWriteNothing(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.csv", "period,snr\n0.5,1\n")
	allBad := writeFile(t, dir, "bad.csv", "period,snr\nx,1\n,2\n")
	noPeriod := writeFile(t, dir, "nop.csv", "dm,snr\n1,1\n")

	badTol := testConfig(1)
	badTol.Tolerance.PeriodTol = 0

	tests := []struct {
		name   string
		cfg    config.Config
		inputs []string
		output string
		want   error
	}{
		{"invalid tolerance", badTol, []string{good}, "out1.csv", ErrInvalidConfig},
		{"no inputs", testConfig(1), nil, "out2.csv", ErrInvalidConfig},
		{"no output", testConfig(1), []string{good}, "", ErrInvalidConfig},
		{"nothing to cluster", testConfig(1), []string{allBad}, "out3.csv", ErrNothingToCluster},
		{"unsupported schema", testConfig(1), []string{good, noPeriod}, "out4.csv", ErrUnsupportedSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			out := ""
			if tt.output != "" {
				out = filepath.Join(dir, tt.output)
			}
			_, err := newPicker(t, tt.cfg, rec).RunCSV(context.Background(), CSVRequest{Inputs: tt.inputs, Output: out})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, rec.runs)
			if out != "" {
				_, statErr := os.Stat(out)
				assert.True(t, os.IsNotExist(statErr), "no output after a fatal error")
			}
		})
	}
}

func TestRunCSVHistoryFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "a.csv", "period,snr\n0.5,1\n")

	rec := &memRecorder{err: errors.New("disk full")}
	sum, err := newPicker(t, testConfig(1), rec).RunCSV(context.Background(), CSVRequest{
		Inputs: []string{in},
		Output: filepath.Join(dir, "out.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Stats.PivotCount)
}

func TestRunMatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "period,snr\n0.5,10\n0.3,5\n0.5001,3\n")
	b := writeFile(t, dir, "b.csv", "period,snr\n0.5005,7\n0.77,4\n")

	cfg := testConfig(2)
	cfg.Tolerance.DMTol = nil
	cfg.Tolerance.MaxHarmonic = config.DefaultMatchMaxHarmonic

	sum, err := newPicker(t, cfg, nil).RunMatch(context.Background(), MatchRequest{Inputs: []string{a, b}})
	require.NoError(t, err)

	require.Len(t, sum.Run.Outputs, 2)
	// 0.5001 also matches 0.5005, although 0.5 already claimed it in a cluster
	assert.Equal(t, "period,snr\n0.5,10\n0.5001,3\n", readFile(t, filepath.Join(dir, "a_matched.csv")))
	assert.Equal(t, "period,snr\n0.5005,7\n", readFile(t, filepath.Join(dir, "b_matched.csv")))
	assert.Equal(t, 3, sum.Matched)
	assert.Equal(t, 5, sum.Run.Candidates())
}

func TestRunMatchKeepsEveryCrossPair(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			dir := t.TempDir()
			// a~b and b~c match, a~c does not
			a := writeFile(t, dir, "a.csv", "period,snr\n1.0,10\n")
			b := writeFile(t, dir, "b.csv", "period,snr\n1.000008,9\n")
			c := writeFile(t, dir, "c.csv", "period,snr\n1.000016,8\n")
			// 2.000001 duplicates 2.0 in d1 and also matches d2's row
			d1 := writeFile(t, dir, "d1.csv", "period,snr\n2.0,10\n2.000001,9\n5.0,3\n")
			d2 := writeFile(t, dir, "d2.csv", "period,snr\n2.0000005,8\n")

			cfg := testConfig(workers)
			cfg.Tolerance.PeriodTol = 1e-5
			cfg.Tolerance.DMTol = nil
			cfg.Tolerance.Harmonics = false

			p := newPicker(t, cfg, nil)
			_, err := p.RunMatch(context.Background(), MatchRequest{Inputs: []string{a, b, c}})
			require.NoError(t, err)
			assert.Equal(t, "period,snr\n1.0,10\n", readFile(t, filepath.Join(dir, "a_matched.csv")))
			assert.Equal(t, "period,snr\n1.000008,9\n", readFile(t, filepath.Join(dir, "b_matched.csv")))
			assert.Equal(t, "period,snr\n1.000016,8\n", readFile(t, filepath.Join(dir, "c_matched.csv")))

			sum, err := p.RunMatch(context.Background(), MatchRequest{Inputs: []string{d1, d2}})
			require.NoError(t, err)
			assert.Equal(t, "period,snr\n2.0,10\n2.000001,9\n", readFile(t, filepath.Join(dir, "d1_matched.csv")))
			assert.Equal(t, "period,snr\n2.0000005,8\n", readFile(t, filepath.Join(dir, "d2_matched.csv")))
			assert.Equal(t, 3, sum.Matched)
		})
	}
}

func TestRunMatchNeedsTwoInputs(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "period,snr\n0.5,10\n")

	_, err := newPicker(t, testConfig(1), nil).RunMatch(context.Background(), MatchRequest{Inputs: []string{a}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, statErr := os.Stat(filepath.Join(dir, "a_matched.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func searchXML(size string, blocks ...string) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<peasoup_search>\n")
	b.WriteString("<header_parameters><tsamp>0.001</tsamp></header_parameters>\n")
	b.WriteString("<search_parameters><size>" + size + "</size></search_parameters>\n<candidates>\n")
	for _, blk := range blocks {
		b.WriteString(blk + "\n")
	}
	b.WriteString("</candidates>\n</peasoup_search>\n")
	return b.String()
}

func candidateXML(id int, period, snr string) string {
	return fmt.Sprintf("<candidate id='%d'><period>%s</period><dm>10</dm><acc>0</acc><nh>1</nh><snr>%s</snr></candidate>", id, period, snr)
}

func TestRunXML(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "obs.xml", searchXML("1000", candidateXML(0, "0.5", "12"), candidateXML(1, "1.0", "8"), candidateXML(2, "0.77", "3")))
	pivots := filepath.Join(dir, "pivots.csv")

	rec := &memRecorder{}
	sum, err := newPicker(t, testConfig(2), rec).RunXML(context.Background(), XMLRequest{
		Inputs:     []string{in},
		PivotsPath: pivots,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{pivots, filepath.Join(dir, "obs_picked.xml"), filepath.Join(dir, "obs_rejected.xml")}, sum.Run.Outputs)
	assert.Equal(t, 2, sum.Stats.PivotCount)
	assert.Contains(t, sum.Run.Tolerance, `"observation_duration_s":1`)

	picked := readFile(t, filepath.Join(dir, "obs_picked.xml"))
	assert.Contains(t, picked, candidateXML(0, "0.5", "12"))
	assert.Contains(t, picked, candidateXML(2, "0.77", "3"))
	assert.NotContains(t, picked, candidateXML(1, "1.0", "8"))
	assert.Contains(t, readFile(t, filepath.Join(dir, "obs_rejected.xml")), candidateXML(1, "1.0", "8"))

	lines := strings.Split(strings.TrimSpace(readFile(t, pivots)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[1], ","+in+",0,1,"+in+"_1"), lines[1])
}

func TestRunXMLKeepsInputPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "beam1"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "beam2"), 0755))
	// Same file name in two directories; 3.0 matches 1.0 at the third harmonic
	beam1 := writeFile(t, dir, filepath.Join("beam1", "overview.xml"), searchXML("1000", candidateXML(0, "1.0", "10")))
	beam2 := writeFile(t, dir, filepath.Join("beam2", "overview.xml"), searchXML("1000", candidateXML(0, "3.0", "5")))
	pivots := filepath.Join(dir, "pivots.csv")

	sum, err := newPicker(t, testConfig(1), nil).RunXML(context.Background(), XMLRequest{
		Inputs:     []string{beam1, beam2},
		PivotsPath: pivots,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Stats.PivotCount)

	lines := strings.Split(strings.TrimSpace(readFile(t, pivots)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ","+beam1+",0,1,"+beam2+"_0"), lines[1])

	assert.Contains(t, readFile(t, filepath.Join(dir, "beam1", "overview_picked.xml")), candidateXML(0, "1.0", "10"))
	assert.Contains(t, readFile(t, filepath.Join(dir, "beam2", "overview_rejected.xml")), candidateXML(0, "3.0", "5"))
}

func TestRunXMLObservationOverride(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "obs.xml", searchXML("1000", candidateXML(0, "0.5", "12")))

	sum, err := newPicker(t, testConfig(1), nil).RunXML(context.Background(), XMLRequest{
		Inputs:              []string{in},
		PivotsPath:          filepath.Join(dir, "p.csv"),
		ObservationDuration: 5,
	})
	require.NoError(t, err)
	assert.Contains(t, sum.Run.Tolerance, `"observation_duration_s":5`)
}

func TestRunXMLInconsistentSources(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.xml", searchXML("1000", candidateXML(0, "0.5", "12")))
	b := writeFile(t, dir, "b.xml", searchXML("2000", candidateXML(0, "0.5", "12")))
	pivots := filepath.Join(dir, "pivots.csv")

	_, err := newPicker(t, testConfig(1), nil).RunXML(context.Background(), XMLRequest{
		Inputs:     []string{a, b},
		PivotsPath: pivots,
	})
	assert.ErrorIs(t, err, ErrInconsistentSources)

	for _, path := range []string{pivots, filepath.Join(dir, "a_picked.xml"), filepath.Join(dir, "b_rejected.xml")} {
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), path)
	}
}
