// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAutoML/services/automl/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// lineCSV is y = 2x + 1 with a text column that is detected as categorical.
func lineCSV(rows int) string {
	var b strings.Builder
	b.WriteString("x,colour,y\n")
	for i := range rows {
		x := float64(i) / float64(rows)
		colour := "red"
		if i%2 == 0 {
			colour = "blue"
		}
		fmt.Fprintf(&b, "%g,%s,%g\n", x, colour, 2*x+1)
	}
	return b.String()
}

func TestSpace(t *testing.T) {
	out, err := run(t, "space", "--task", "tabular_classification", "--features", "3", "--categorical", "1")
	require.NoError(t, err)

	for _, want := range []string{"TabularClassifier", "encoder\t", "OneHotEncoder", "fingerprint\t", "encoder:__choice__"} {
		assert.Contains(t, out, want)
	}
}

func TestSpace_YAML(t *testing.T) {
	out, err := run(t, "space", "--yaml", "--features", "2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "hyperparameters:"), out)
}

func TestSpace_BadShape(t *testing.T) {
	_, err := run(t, "space", "--features", "2", "--categorical", "5")
	assert.Error(t, err)

	_, err = run(t, "space", "--task", "clustering")
	assert.Error(t, err)
}

func TestSample_Deterministic(t *testing.T) {
	a, err := run(t, "sample", "-n", "3", "--seed", "5")
	require.NoError(t, err)
	b, err := run(t, "sample", "-n", "3", "--seed", "5")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	lines := strings.Split(strings.TrimSpace(a), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var values map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &values))
		assert.Contains(t, values, "network:__choice__")
	}
}

func TestSample_BadCount(t *testing.T) {
	_, err := run(t, "sample", "-n", "0")
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	data := writeFile(t, "line.csv", lineCSV(60))
	cfgPath := writeFile(t, "run.yaml", "training:\n  epochs: 5\n")

	out, err := run(t, "fit", data, "-c", cfgPath)
	require.NoError(t, err)

	for _, want := range []string{"TabularRegressor", "run_id\t", "splits\t1", "split\tepochs", "val_RMSE", "OK fitted 1 split(s)"} {
		assert.Contains(t, out, want)
	}
}

func TestFit_MissingCells(t *testing.T) {
	lines := strings.Split(lineCSV(40), "\n")
	for i := 4; i < len(lines)-1; i += 7 {
		_, rest, _ := strings.Cut(lines[i], ",")
		lines[i] = "," + rest
	}
	data := writeFile(t, "gaps.csv", strings.Join(lines, "\n"))
	cfgPath := writeFile(t, "run.yaml", "training:\n  epochs: 3\n")

	out, err := run(t, "fit", data, "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "OK fitted 1 split(s)")
}

func TestFit_CrossValidation(t *testing.T) {
	data := writeFile(t, "line.csv", lineCSV(30))
	cfgPath := writeFile(t, "run.yaml", `
training:
  epochs: 2
resampling:
  cross_val_type: k_fold
  num_splits: 3
`)
	out, err := run(t, "fit", data, "-c", cfgPath, "--sample-seed", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "splits\t3")
}

func TestFit_ConfigurationFile(t *testing.T) {
	data := writeFile(t, "line.csv", lineCSV(30))
	cfgPath := writeFile(t, "run.yaml", "training:\n  epochs: 2\n")
	values := writeFile(t, "cfg.json", `{"imputer:numerical_strategy": "median"}`)

	_, err := run(t, "fit", data, "-c", cfgPath, "--configuration", values)
	require.Error(t, err, "a partial configuration misses active values")
	assert.Contains(t, err.Error(), "no value")
}

func TestFit_NoDataset(t *testing.T) {
	_, err := run(t, "fit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset")
}

func TestServe(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Telemetry.Metrics = "none"
	a := &app{cfg: cfg}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
