package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wastewater/internal/core"
)

const storedFile = `[
  {
    "sampleNumber": "22-0001",
    "extractionDate": "01.02.2022",
    "measuringPoint": "ARA Nord",
    "results": [
      {
        "name": "SARS-CoV-2",
        "parameter": [
          {
            "name": "N1",
            "result": 12.5,
            "unit": "GK/L"
          },
          {
            "name": "N2",
            "result": "<LOQ"
          }
        ]
      }
    ]
  },
  {
    "sampleNumber": "22-0002",
    "extractionDate": "8.2.2022",
    "measuringPoint": "ARA Süd",
    "results": []
  }
]
`

func TestFileStore_LoadMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "data.json"))

	ds, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestFileStore_LoadMalformedReturnsEmpty(t *testing.T) {
	cases := map[string]string{
		"garbage":      "not json at all",
		"object":       `{"body": []}`,
		"null":         "null",
		"empty":        "",
		"bad date":     `[{"sampleNumber":"1","extractionDate":"2022-02-01","measuringPoint":"A","results":[]}]`,
		"truncated":    storedFile[:len(storedFile)/2],
		"wrong fields": `[{"sampleNumber": 7}]`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "data.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			s := NewFileStore(path).WithCorruptBackup()
			s.now = func() time.Time { return time.Unix(1700000000, 0) }

			ds, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, ds)

			backup, err := os.ReadFile(path + ".corrupt-1700000000")
			require.NoError(t, err)
			assert.Equal(t, content, string(backup))
		})
	}
}

func TestFileStore_LoadMalformedWithoutBackupWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s := NewFileStore(path)

	for i := 0; i < 3; i++ {
		ds, err := s.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ds)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())
}

func TestFileStore_RoundTripKeepsUpstreamMembers(t *testing.T) {
	const stored = `[
  {
    "sampleNumber": "22-0001",
    "labId": "LAB-7",
    "extractionDate": "01.02.2022",
    "measuringPoint": "ARA Nord",
    "results": [
      {
        "name": "SARS-CoV-2",
        "parameter": [
          {
            "name": "N1",
            "result": "<LOQ",
            "comment": "ok"
          }
        ]
      }
    ]
  }
]
`
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(stored), 0o644))
	s := NewFileStore(path)

	ds, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 1)
	ds = append(ds, core.Record{
		SampleNumber:   "22-0002",
		ExtractionDate: core.NewDate(2022, 2, 2),
		MeasuringPoint: "ARA Nord",
		Results:        []core.Panel{},
	})
	require.NoError(t, s.Save(context.Background(), ds))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), stored[:len(stored)-3]), "first record unchanged:\n%s", out)
	assert.Contains(t, string(out), `"labId": "LAB-7"`)
	assert.Contains(t, string(out), `"comment": "ok"`)
	assert.Contains(t, string(out), `"sampleNumber": "22-0002"`)
}

func TestFileStore_RoundTripPreservesFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(storedFile), 0o644))
	s := NewFileStore(path)

	ds, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.True(t, ds[1].ExtractionDate.Equal(core.NewDate(2022, 2, 8)))

	require.NoError(t, s.Save(context.Background(), ds))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, storedFile, string(out))
}

func TestFileStore_SaveCreatesDirectoryAndLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	path := filepath.Join(dir, "data.json")
	s := NewFileStore(path)

	ds := core.Dataset{{
		SampleNumber:   "1",
		ExtractionDate: core.NewDate(2022, 2, 1),
		MeasuringPoint: "A",
	}}
	require.NoError(t, s.Save(context.Background(), ds))
	require.NoError(t, s.Save(context.Background(), ds))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "01.02.2022", loaded[0].ExtractionDate.String())
}

func TestFileStore_SaveEmptyWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, NewFileStore(path).Save(context.Background(), nil))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(out))
}

func TestFileStore_SaveFailureIsWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewFileStore(filepath.Join(blocker, "data.json"))
	err := s.Save(context.Background(), core.Dataset{})
	require.Error(t, err)

	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.True(t, strings.HasSuffix(werr.Path, "data.json"))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(nil)
	ds, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ds)

	require.NoError(t, s.Save(context.Background(), core.Dataset{{SampleNumber: "1"}}))
	assert.Equal(t, 1, s.Saves())

	s.SaveErr = errors.New("disk full")
	err = s.Save(context.Background(), nil)
	var werr *WriteError
	assert.True(t, errors.As(err, &werr))
	assert.Equal(t, 1, s.Saves())
}
