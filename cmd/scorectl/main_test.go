package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
)

// execute runs the root command with args and stdin, returning stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestScoreCmd_Stdin(t *testing.T) {
	in := `[{"id":"a","lat":12.9716,"lon":77.5946,"severity":"high"},{"id":"b","lat":12.9716,"lon":77.5946,"severity":"high"}]`

	out, _, err := execute(t, in, "score")
	require.NoError(t, err)

	var scored []domain.ScoredReport
	require.NoError(t, json.Unmarshal([]byte(out), &scored))
	require.Len(t, scored, 2)
	assert.Equal(t, 5.625, scored[0].Intensity)
	assert.Equal(t, "b", scored[1].ID)
}

func TestScoreCmd_Profile(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("multipliers:\n  critical: 10\nneighbor_radius_km: 0\n"), 0o600))

	in := `[{"lat":12.9716,"lon":77.5946,"severity":"critical"},{"lat":12.98,"lon":77.5946,"severity":"low"}]`
	out, _, err := execute(t, in, "score", "--profile", profile)
	require.NoError(t, err)

	var scored []domain.ScoredReport
	require.NoError(t, json.Unmarshal([]byte(out), &scored))
	assert.Equal(t, 10.0, scored[0].Intensity)
	assert.Equal(t, 1.0, scored[1].Intensity)
}

func TestScoreCmd_InvalidSeverity(t *testing.T) {
	_, _, err := execute(t, `[{"lat":1,"lon":1}]`, "score")
	require.ErrorIs(t, err, domain.ErrInvalidSeverity)
}

func TestExtractCmd(t *testing.T) {
	out, _, err := execute(t, "**Title:** Open drain\n**Description:** Uncovered drain next to a school.", "extract")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "Open drain", got["title"])
	assert.Equal(t, "Uncovered drain next to a school.", got["description"])
}

func TestFixtureCmd(t *testing.T) {
	csvIn := strings.Join([]string{
		"uid,title,latitude,longitude,url,severity",
		"u-1,Pothole,12.9716,77.5946,https://img.example/1.jpg,high",
		"u-2,Flooding,12.9352,77.6245,https://img.example/2.jpg,critical",
		"u-3,Bad row,12.9,77.6,https://img.example/3.jpg,urgent",
	}, "\n")

	out, errOut, err := execute(t, csvIn, "fixture")
	require.NoError(t, err)

	var reports []domain.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, fixtureBaseTime, reports[0].ReceivedAt)
	assert.Equal(t, "user", reports[1].Source)
	assert.NotEqual(t, reports[0].ID, reports[1].ID)

	assert.Contains(t, errOut, "row 4:")
	assert.Contains(t, errOut, "accepted: 2, rejected: 1")
}

func TestFixtureCmd_Reproducible(t *testing.T) {
	csvIn := "uid,latitude,longitude,url,severity\nu-9,13.0358,77.5970,https://img.example/9.jpg,low\n"

	first, _, err := execute(t, csvIn, "fixture")
	require.NoError(t, err)
	second, _, err := execute(t, csvIn, "fixture")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFixtureCmd_OutputFile(t *testing.T) {
	csvIn := "uid,latitude,longitude,url,severity\nu-9,13.0358,77.5970,https://img.example/9.jpg,low\n"
	path := filepath.Join(t.TempDir(), "fixtures", "reports.json")

	out, _, err := execute(t, csvIn, "fixture", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var reports []domain.Report
	require.NoError(t, json.Unmarshal(data, &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, domain.SeverityLow, reports[0].Severity)
}

func TestFixtureCmd_OutputUnwritable(t *testing.T) {
	csvIn := "uid,latitude,longitude,url,severity\nu-9,13.0358,77.5970,https://img.example/9.jpg,low\n"
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, _, err := execute(t, csvIn, "fixture", "-o", filepath.Join(blocker, "reports.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write fixture")
}
