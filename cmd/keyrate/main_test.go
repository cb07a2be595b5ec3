package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyrate/pkg/flv/flvtest"
)

func writeInput(t *testing.T, data []byte) string {
	t.Helper()

	dir, err := ioutil.TempDir("", "keyrate-main")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "in.flv")
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	return path
}

func TestRunReport(t *testing.T) {
	file := flvtest.NewBuilder(true, true).
		Metadata(amf.Object{"duration": 2.0, "encoder": "Lavf58.29.100"}).
		AVCSeqHdr(0).
		AACSeqHdr(0).
		AVC(true, 0, 0, 100).
		AAC(0, 10).
		AVC(false, 100, 0, 50).
		AAC(500, 10).
		AVC(true, 1000, 0, 200).
		AVC(false, 1500, 0, 100).
		Bytes()

	var stdout, stderr bytes.Buffer
	code := run([]string{writeInput(t, file)}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	want := []string{
		"{duration: 2, encoder: Lavf58.29.100}",
		"[1] ty=Audio time=0.5, bps=160",
		"[0] ty=Video time=1, bps=1200",
		"[0] ty=Video time=1.5, bps=4800",
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", stdout.String())
}

func TestRunWithoutHeaderFlags(t *testing.T) {
	file := flvtest.NewBuilder(false, false).
		AVC(true, 0, 0, 100).
		AAC(0, 10).
		AVC(false, 100, 0, 50).
		AAC(500, 10).
		AVC(true, 1000, 0, 200).
		AVC(false, 1500, 0, 100).
		Bytes()

	var stdout, stderr bytes.Buffer
	code := run([]string{writeInput(t, file)}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	want := []string{
		"{}",
		"[1] ty=Audio time=0.5, bps=160",
		"[0] ty=Video time=1, bps=1200",
		"[0] ty=Video time=1.5, bps=4800",
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", stdout.String())
}

func TestRunMissingInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "please specify input file")
}

func TestRunUnknownFlagPrintsUsageOnce(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"-nope", "x.flv"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
	assert.Equal(t, 1, strings.Count(stderr.String(), "Usage: keyrate"), stderr.String())
}

func TestRunHelpAndVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"-h"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Usage: keyrate")

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"-v"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "keyrate: v")
}

func TestRunOpenError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{filepath.Join(os.TempDir(), "keyrate-does-not-exist.flv")}, &stdout, &stderr)

	assert.Equal(t, 3, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "initialization failed")
}

func TestRunReadErrorKeepsPrintedLines(t *testing.T) {
	file := flvtest.NewBuilder(true, false).
		AVC(true, 0, 0, 100).
		AVC(true, 1000, 0, 100).
		AVC(false, 1040, 0, 400).
		Bytes()
	file = file[:len(file)-50]

	var stdout, stderr bytes.Buffer
	code := run([]string{writeInput(t, file)}, &stdout, &stderr)

	assert.Equal(t, 4, code)
	assert.Equal(t, "{}\n[0] ty=Video time=1, bps=800\n", stdout.String())
	assert.Contains(t, stderr.String(), "stream read failed")
}

func TestRunNativeTimeBase(t *testing.T) {
	file := flvtest.NewBuilder(false, true).
		AAC(0, 100).
		AAC(1000, 100).
		Bytes()

	var stdout, stderr bytes.Buffer
	code := run([]string{"-native-timebase", writeInput(t, file)}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "{}\n[0] ty=Audio time=1, bps=800\n", stdout.String())
}
