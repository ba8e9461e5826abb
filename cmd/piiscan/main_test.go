package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/piiscan/internal/extract"
	"github.com/straja-ai/piiscan/internal/registry"
)

func TestRenderResult(t *testing.T) {
	color.NoColor = true
	res := extract.Result{
		"EMAIL":        {EntityTypes: []string{"EMAIL"}, RecognizedValues: []string{"a@b.com"}},
		"ORGANIZATION": {Error: "statistical extractor not configured"},
		"TITLES":       {Scalar: "TITLE", RecognizedValues: []string{"Dr."}},
	}
	var buf bytes.Buffer
	renderResult(&buf, res, []string{"EMAIL", "ORGANIZATION", "TITLES", "NOPE", "EMAIL"})

	out := buf.String()
	assert.Contains(t, out, "EMAIL (1)")
	assert.Contains(t, out, "a@b.com")
	assert.Contains(t, out, "ORGANIZATION: error: statistical extractor not configured")
	assert.Contains(t, out, "TITLE ")
	assert.Contains(t, out, "NOPE: not a registered category")
	assert.Equal(t, 1, strings.Count(out, "EMAIL (1)"))
}

func TestCategoryRows(t *testing.T) {
	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)
	rows := categoryRows(reg)
	require.Len(t, rows, len(reg.Names()))
	assert.Equal(t, "PERSON_NAME", rows[0].Name)

	color.NoColor = true
	var buf bytes.Buffer
	printCategories(&buf, rows)
	assert.Contains(t, buf.String(), "BIOMETERIC_IDENTIFIER")
}

func TestSummarize(t *testing.T) {
	_, err := summarize(nil)
	assert.Error(t, err)

	var ds []time.Duration
	for i := 20; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	stats, err := summarize(ds)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, stats.avgMs, 0.001)
	assert.InDelta(t, 11, stats.p50Ms, 0.001)
	assert.InDelta(t, 20, stats.p95Ms, 0.001)
	assert.Equal(t, 20*time.Millisecond, ds[0])
}
