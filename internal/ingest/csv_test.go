package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDetectSchema(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   Schema
	}{
		{
			name:   "aliases after normalisation",
			header: []string{"#P0_new", " DM ", "acc", "S/N"},
			want:   Schema{Period: 0, Freq: -1, DM: 1, Acc: 2, SNR: 3},
		},
		{
			name:   "frequency only",
			header: []string{"f0", "dm_opt", "sigma"},
			want:   Schema{Period: -1, Freq: 0, DM: 1, Acc: -1, SNR: 2},
		},
		{
			name:   "priority order wins over column order",
			header: []string{"period", "p0_new", "snr", "sn_fold"},
			want:   Schema{Period: 1, Freq: -1, DM: -1, Acc: -1, SNR: 3},
		},
		{
			name:   "byte order mark on first cell",
			header: []string{"\ufeffperiod", "dm"},
			want:   Schema{Period: 0, Freq: -1, DM: 1, Acc: -1, SNR: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectSchema(tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectSchemaRejectsMissingPeriod(t *testing.T) {
	_, err := DetectSchema([]string{"dm", "snr"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cands.csv", "period,dm,acc,snr,note\n"+
		"0.5,10,0,12,a\n"+
		",10,0,5,no period\n"+
		"abc,10,0,5,bad period\n"+
		"0.25,nan,,7,missing gates\n"+
		"0.3,1,1,,missing snr\n"+
		"inf,1,1,3,infinite\n"+
		"0.7,x,1,3,bad dm\n")

	f, err := ReadCSV(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"period", "dm", "acc", "snr", "note"}, f.Header)
	assert.Equal(t, 7, f.Source.Rows)
	assert.Equal(t, 4, f.Source.Dropped)
	require.Len(t, f.Candidates, 3)

	first := f.Candidates[0]
	assert.Equal(t, 0.5, first.Period())
	require.NotNil(t, first.DM)
	assert.Equal(t, 10.0, *first.DM)
	assert.Equal(t, 12.0, first.SNR)
	assert.Equal(t, 0, first.Record.Index)
	assert.Equal(t, []string{"0.5", "10", "0", "12", "a"}, first.Record.Row)

	gates := f.Candidates[1]
	assert.Nil(t, gates.DM)
	assert.Nil(t, gates.Acceleration)
	assert.Equal(t, 3, gates.Record.Index)

	snr := f.Candidates[2]
	assert.True(t, math.IsNaN(snr.SNR))
	assert.Equal(t, 4, snr.Record.Index)
}

func TestReadCSVFrequencyFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "freq.csv", "period,f0,snr\n,4,1\n0.5,4,2\n")

	f, err := ReadCSV(path, nil)
	require.NoError(t, err)
	require.Len(t, f.Candidates, 2)
	assert.Equal(t, 0.25, f.Candidates[0].Period())
	assert.Equal(t, 0.5, f.Candidates[1].Period(), "period column takes precedence")
}

func TestReadCSVErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadCSV(filepath.Join(dir, "missing.csv"), nil)
	assert.Error(t, err)

	empty := writeFile(t, dir, "empty.csv", "")
	_, err = ReadCSV(empty, nil)
	assert.ErrorIs(t, err, ErrUnsupportedSchema)

	noPeriod := writeFile(t, dir, "nop.csv", "dm,snr\n1,2\n")
	_, err = ReadCSV(noPeriod, nil)
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
	assert.Contains(t, err.Error(), "nop.csv")
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "period,snr\n0.5,1\n0.6,2\n")
	b := writeFile(t, dir, "b.csv", "P0,SNR,extra\n0.7,3,x\nbad,1,y\n0.8,4,z\n")

	logger, hook := logtest.NewNullLogger()
	batch, err := LoadCSV(context.Background(), []string{a, b}, Options{Workers: 2, Logger: logger})
	require.NoError(t, err)

	require.Len(t, batch.Sources, 2)
	require.Len(t, batch.Candidates, 4)
	assert.Equal(t, 5, batch.Rows())
	assert.Equal(t, 1, batch.Dropped())
	assert.Equal(t, []string{"period", "snr"}, batch.Header())

	for i, c := range batch.Candidates {
		assert.Equal(t, i, c.ID)
	}
	assert.Equal(t, 0, batch.Candidates[1].Source)
	assert.Equal(t, 1, batch.Candidates[2].Source)
	assert.Equal(t, 1, batch.Files[1].Source.ID)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["source"] == b {
			warned = true
		}
	}
	assert.True(t, warned, "header mismatch should be logged")
}

func TestLoadCSVFailsOnAnyBadFile(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "period,snr\n0.5,1\n")
	b := writeFile(t, dir, "b.csv", "dm,snr\n1,1\n")

	_, err := LoadCSV(context.Background(), []string{a, b}, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedSchema)

	_, err = LoadCSV(context.Background(), nil, Options{})
	assert.Error(t, err)
}
