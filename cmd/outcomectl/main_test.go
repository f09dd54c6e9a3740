package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCalcCourse_Memory(t *testing.T) {
	out, err := execute(t, "calc", "course", "10")
	require.NoError(t, err)

	v := decode(t, out)
	assert.Equal(t, "TOUR101", v["course_code"])
	assert.Len(t, v["outcomes"], 2)
	assert.Equal(t, "course_calculation", v["source"])
}

func TestCalcCourse_DryRunWritesNothing(t *testing.T) {
	out, err := execute(t, "calc", "course", "10", "--dry-run")
	require.NoError(t, err)
	assert.EqualValues(t, 0, decode(t, out)["results_written"])
}

func TestCalcCourse_BadID(t *testing.T) {
	_, err := execute(t, "calc", "course", "abc")
	assert.Error(t, err)
}

func TestCalcProgram(t *testing.T) {
	out, err := execute(t, "calc", "program", "1", "--plo", "1001")
	require.NoError(t, err)

	v := decode(t, out)
	outcomes, ok := v["outcomes"].([]any)
	require.True(t, ok)
	require.Len(t, outcomes, 1)
	assert.EqualValues(t, 1001, outcomes[0].(map[string]any)["program_outcome_id"])
}

func TestSuggestMappings(t *testing.T) {
	out, err := execute(t, "suggest", "mappings", "20", "--include-none")
	require.NoError(t, err)
	assert.NotEmpty(t, decode(t, out)["suggestions"])

	out, err = execute(t, "suggest", "mappings", "20", "--apply", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, decode(t, out), "changes")
}

func TestSuggestPrereqs(t *testing.T) {
	_, err := execute(t, "suggest", "prereqs")
	assert.Error(t, err)

	out, err := execute(t, "suggest", "prereqs",
		"--outcome", "Evaluate:hiệu quả chiến dịch marketing du lịch",
		"--exclude", "10")
	require.NoError(t, err)

	v := decode(t, out)
	suggestions, ok := v["suggestions"].([]any)
	require.True(t, ok)
	for _, s := range suggestions {
		assert.NotEqualValues(t, 10, s.(map[string]any)["course_id"])
	}
}

func TestParseCandidates(t *testing.T) {
	got, err := parseCandidates([]string{"Analyze: thị trường", "chỉ có văn bản"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Analyze", got[0].BloomLevel)
	assert.Equal(t, "thị trường", got[0].Text)
	assert.Empty(t, got[1].BloomLevel)

	_, err = parseCandidates([]string{"Create:  "})
	assert.ErrorContains(t, err, "has no text")
}

func TestCheckPrereq_RequiresFlags(t *testing.T) {
	_, err := execute(t, "check", "prereq", "--course", "20")
	assert.ErrorContains(t, err, "--student is required")

	_, err = execute(t, "check", "prereq", "--student", "1")
	assert.ErrorContains(t, err, "one of --course or --rule")
}

func TestPostgresRequiresDSN(t *testing.T) {
	_, err := execute(t, "--store", "postgres", "migrate")
	assert.ErrorContains(t, err, "--dsn is required")
}

func TestMigrateDown_Unsupported(t *testing.T) {
	_, err := execute(t, "migrate", "--down")
	assert.ErrorContains(t, err, "not supported by the memory store")

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrated", decode(t, out)["status"])
}

func TestSeedThenCalc_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcomes.db")

	out, err := execute(t, "--store", "sqlite", "--dsn", path, "seed")
	require.NoError(t, err)
	v := decode(t, out)
	assert.Equal(t, "sqlite", v["store"])
	assert.EqualValues(t, 3, v["courses"])

	out, err = execute(t, "--store", "sqlite", "--dsn", path, "calc", "course", "10")
	require.NoError(t, err)
	assert.Equal(t, "TOUR101", decode(t, out)["course_code"])
}

func TestTunables(t *testing.T) {
	out, err := execute(t, "tunables")
	require.NoError(t, err)
	assert.Contains(t, out, "tier_weights:")
	assert.Contains(t, out, "cutpoints:")

	_, err = execute(t, "tunables", "--tunables", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeed_DefaultThresholdFromTunables(t *testing.T) {
	dir := t.TempDir()
	tunables := filepath.Join(dir, "tunables.yaml")
	require.NoError(t, os.WriteFile(tunables, []byte("achievement:\n  default_threshold: 0.9\n"), 0o600))
	db := filepath.Join(dir, "outcomes.db")

	_, err := execute(t, "--store", "sqlite", "--dsn", db, "--tunables", tunables, "seed")
	require.NoError(t, err)

	out, err := execute(t, "--store", "sqlite", "--dsn", db, "calc", "course", "10", "--dry-run")
	require.NoError(t, err)
	outcomes, ok := decode(t, out)["outcomes"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, outcomes)
	assert.EqualValues(t, 0.9, outcomes[0].(map[string]any)["threshold"])
}

const sampleMatrixCSV = `Ma tran CTDT du lich,,,
STT,Mã học phần,Tên học phần,PLO1,PLO2
1,TOUR101,Nhập môn du lịch,S,
2,MKT201,Marketing du lịch,H,-
3,NOPE1,Không có,M,M
`

func TestReadMatrix(t *testing.T) {
	m, err := readMatrix(strings.NewReader(sampleMatrixCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"PLO1", "PLO2"}, m.Columns)
	require.Len(t, m.Rows, 3)
	assert.Equal(t, 3, m.Rows[0].Line)
	assert.Equal(t, "TOUR101", m.Rows[0].CourseCode)
	assert.Equal(t, []string{"S", ""}, m.Rows[0].Cells)

	_, err = readMatrix(strings.NewReader("a,b\n1,2\n"))
	assert.ErrorContains(t, err, "course code column")

	_, err = readMatrix(strings.NewReader("Code,Name,Ghi chú\n"))
	assert.ErrorContains(t, err, "no PLO or ELO columns")
}

func TestImportMappings_SQLite(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "outcomes.db")
	matrix := filepath.Join(dir, "matrix.csv")
	require.NoError(t, os.WriteFile(matrix, []byte(sampleMatrixCSV), 0o600))

	_, err := execute(t, "--store", "sqlite", "--dsn", db, "seed")
	require.NoError(t, err)

	out, err := execute(t, "--store", "sqlite", "--dsn", db, "import", "mappings", "1", matrix)
	require.NoError(t, err)
	v := decode(t, out)
	assert.EqualValues(t, 2, v["courses_processed"])
	assert.EqualValues(t, 2, v["created"])
	assert.EqualValues(t, 2, v["updated"])
	assert.Len(t, v["errors"], 1)

	out, err = execute(t, "--store", "sqlite", "--dsn", db, "suggest", "mappings", "20", "--apply")
	require.NoError(t, err)
	for _, c := range decode(t, out)["changes"].([]any) {
		change := c.(map[string]any)
		if change["outcome_id"] == float64(202) && change["program_outcome_id"] == float64(1001) {
			assert.Equal(t, "kept", change["action"])
			assert.Equal(t, "imported", change["previous_source"])
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "outcomectl version "+Version)
}

func TestJobRun_Memory(t *testing.T) {
	out, err := execute(t, "job", "run", "--course", "10,30")
	require.NoError(t, err)

	report := decode(t, out)
	assert.NotEmpty(t, report["run_id"])
	assert.Equal(t, float64(1), report["succeeded"])
	assert.Equal(t, float64(1), report["skipped"])
	assert.Positive(t, report["results_written"])
	courses := report["courses"].([]any)
	require.Len(t, courses, 2)
	assert.Equal(t, "TOUR101", courses[0].(map[string]any)["course_code"])
}

func TestJobRun_BadRedisAddr(t *testing.T) {
	_, err := execute(t, "job", "run", "--redis", "localhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--redis")
}

func TestJobStatus_RequiresRedis(t *testing.T) {
	_, err := execute(t, "job", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--redis is required")
}

func TestJobRunThenStatus_Live(t *testing.T) {
	host := os.Getenv("REDIS_TEST_HOST")
	if host == "" {
		t.Skip("REDIS_TEST_HOST not set")
	}
	flags := []string{"--redis", host + ":6379", "--redis-prefix", "outcomes-test:" + t.Name() + ":"}

	out, err := execute(t, append([]string{"job", "run", "--course", "10"}, flags...)...)
	require.NoError(t, err)
	runID := decode(t, out)["run_id"]

	out, err = execute(t, append([]string{"job", "status"}, flags...)...)
	require.NoError(t, err)
	status := decode(t, out)
	assert.Equal(t, runID, status["run_id"])
	assert.Equal(t, float64(1), status["succeeded"])
}

func TestLogsNameTheCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--log-level", "info", "calc", "course", "10", "--dry-run"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, errOut.String(), `operation="outcomectl calc course"`)
}
