package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuangTung97/memalloc/pages"
)

// runCommand executes a fresh command tree and returns stdout and stderr.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "memallocctl dev\n  commit: none\n  built: unknown\n", out)
}

func TestStressCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "heap", args: []string{"stress", "--count", "3000"}},
		{name: "buddy", args: []string{"stress", "--count", "3000", "--backend", "buddy"}},
		{name: "small buddy arena", args: []string{"stress", "--backend", "buddy", "--mem-limit", "8192"}, wantErr: true},
		{name: "unknown backend", args: []string{"stress", "--backend", "disk"}, wantErr: true},
		{name: "bad count", args: []string{"stress", "--count", "0"}, wantErr: true},
		{name: "extra args", args: []string{"stress", "now"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := runCommand(t, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "stress ")
			assert.Contains(t, out, "4,000 allocations")
			assert.Contains(t, out, "Live blocks: 0\n")
			assert.Contains(t, out, "Live pages: 0\n")
		})
	}
}

func TestStressCommand_JSON(t *testing.T) {
	out, _, err := runCommand(t, "stress", "--count", "900", "--json")
	require.NoError(t, err)

	var report struct {
		Backend   string `json:"backend"`
		Workloads []struct {
			Name        string `json:"name"`
			Allocations int    `json:"allocations"`
			Frees       int    `json:"frees"`
		} `json:"workloads"`
		Stats struct {
			LiveBlocks int `json:"liveBlocks"`
		} `json:"stats"`
		LivePages int `json:"livePages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	assert.Equal(t, "heap", report.Backend)
	assert.Equal(t, 6, len(report.Workloads))
	for _, w := range report.Workloads {
		assert.Equal(t, w.Allocations, w.Frees, w.Name)
	}
	assert.Equal(t, "stress", report.Workloads[4].Name)
	assert.Equal(t, 900+300, report.Workloads[4].Allocations)
	assert.Equal(t, 0, report.Stats.LiveBlocks)
	assert.Equal(t, 0, report.LivePages)
}

func TestStressCommand_Verbose(t *testing.T) {
	_, stderr, err := runCommand(t, "stress", "--count", "100", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, stderr, "msg=\"block acquired\"")
	assert.Contains(t, stderr, "msg=\"block released\"")
	assert.Contains(t, stderr, "msg=\"stress finished\" workloads=6")

	_, stderr, err = runCommand(t, "stress", "--count", "100")
	require.NoError(t, err)
	assert.Equal(t, "", stderr)
}

func TestLayoutCommand(t *testing.T) {
	out, _, err := runCommand(t, "layout", "--sizes", "16,8,8", "--free", "1")
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"totalBlocks": 1, "totalPages": 1,
		"allocatedBytes": 24, "freeBytes": 4016,
		"blocks": [
			{
				"id": 1, "pages": 1,
				"chunks": [
					{"offset": 0, "size": 16, "allocated": true},
					{"offset": 24, "size": 8, "allocated": false},
					{"offset": 40, "size": 8, "allocated": true},
					{"offset": 56, "size": 4008, "allocated": false}
				]
			}
		]
	}`, out)
}

func TestLayoutCommand_Buddy(t *testing.T) {
	out, _, err := runCommand(t, "layout", "--sizes", "4000,4000,16", "--backend", "buddy", "--mem-limit", "65536")
	require.NoError(t, err)

	var layout struct {
		TotalBlocks int `json:"totalBlocks"`
		Blocks      []struct {
			ID int `json:"id"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &layout))
	assert.Equal(t, 2, layout.TotalBlocks)
	assert.Equal(t, 2, layout.Blocks[0].ID)
	assert.Equal(t, 1, layout.Blocks[1].ID)
}

func TestLayoutCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "negative size", args: []string{"layout", "--sizes", "16,-1"}},
		{name: "index out of range", args: []string{"layout", "--sizes", "16", "--free", "1"}},
		{name: "index twice", args: []string{"layout", "--sizes", "16,32", "--free", "0,0"}},
		{name: "exhausted", args: []string{"layout", "--sizes", "100000", "--backend", "buddy", "--mem-limit", "16384"}},
		{name: "heap limit", args: []string{"layout", "--sizes", "100000", "--mem-limit", "16384"}},
		{name: "size beyond heap", args: []string{"layout", "--sizes", "9223372036854775807"}},
		{name: "small mem-limit", args: []string{"layout", "--mem-limit", "100"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCommand(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestNewPageSource_HeapLimit(t *testing.T) {
	src, err := newPageSource("heap", 3*pages.PageSize+100)
	require.NoError(t, err)

	r, err := src.RequestPages(3)
	require.NoError(t, err)

	_, err = src.RequestPages(1)
	assert.True(t, errors.Is(err, pages.ErrNoMemory))

	src.ReleasePages(r)
	assert.Equal(t, 0, src.LivePages())
}
