package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_RunThenCheck(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-c2", "-r3", "-p2", "-l", dir, "--seed=3"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	require.Contains(t, stdout.String(), "6 committed, 0 aborted, 0 unknown")
	require.Contains(t, stdout.String(), "participant_0 OK: Committed: 6 == 6 (Committed-global), Aborted: 0 <= 0 (Aborted-global)")
	require.Contains(t, stdout.String(), "participant_1 OK")

	stdout.Reset()
	code = run(context.Background(), []string{"-mcheck", "-c2", "-r3", "-p2", "-l", dir}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	require.NotContains(t, stdout.String(), "committed,")
	require.Contains(t, stdout.String(), "participant_1 OK")
}

func TestRun_CheckReportsViolations(t *testing.T) {
	dir := t.TempDir()
	coord := `{"mtype":"CoordinatorCommit","uid":1,"txid":"client_0_tx_1","senderid":"coordinator","opid":1}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coordinator.log"), []byte(coord), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "participant_0.log"), nil, 0644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-mcheck", "-p1", "-l", dir}, &stdout, &stderr)
	require.Equal(t, exitViolations, code)
	require.Contains(t, stdout.String(), "participant_0 FAILED")
	require.Contains(t, stdout.String(), "txid client_0_tx_1: expected 1, found 0")
	require.Contains(t, stderr.String(), "2 invariant violation(s)")
}

func TestRun_CheckMissingLogs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-mcheck", "-l", t.TempDir()}, &stdout, &stderr)
	require.Equal(t, exitFailure, code)
	require.Contains(t, stderr.String(), "check failed")
}

func TestRun_BadOptions(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitFailure, run(context.Background(), []string{"-mparticipant"}, &stdout, &stderr))
	require.Equal(t, exitOK, run(context.Background(), []string{"--help"}, &stdout, &stderr))
}
