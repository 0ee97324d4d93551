package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"healthcheck_srv/internal/domain/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var expectedCategories = []string{
	"Orion Servers", "Orion Polling", "Orion Core", "NPM", "SAM", "NCM", "IPAM", "UDT",
	"VNQM", "WPM", "NTA", "VIM", "OLM", "SCM", "SRM", "VMAN",
}

var expectedEntries = map[string]int{
	"Orion Servers": 2, "Orion Polling": 1, "Orion Core": 1, "NPM": 17, "SAM": 5,
	"NCM": 5, "IPAM": 3, "UDT": 3, "VNQM": 3, "WPM": 2, "NTA": 4,
	"VIM": 0, "OLM": 0, "SCM": 0, "SRM": 0, "VMAN": 3,
}

func loadCatalog(t *testing.T) *Catalog {
	c, err := Load()
	require.NoError(t, err)
	return c
}

func TestLoadCounts(t *testing.T) {
	c := loadCatalog(t)

	assert.Equal(t, 16, c.Len())
	assert.Equal(t, 49, c.ReportCount())
	assert.Equal(t, expectedCategories, slices.Collect(c.Categories()))

	for cat := range c.All() {
		assert.Len(t, cat.Reports, expectedEntries[cat.Name], cat.Name)
	}

	placeholders, runnable := 0, 0
	for q := range c.Queries() {
		if q.Runnable() {
			runnable++
		}
		if q.Label == "" || q.SQL == "" {
			placeholders++
		}
	}
	assert.Equal(t, 22, placeholders)
	assert.Equal(t, 31, runnable)
}

func TestCategoryNamesNonEmpty(t *testing.T) {
	for name := range loadCatalog(t).Categories() {
		assert.NotEmpty(t, strings.TrimSpace(name))
	}
}

func TestNetPathByProbe(t *testing.T) {
	c := loadCatalog(t)

	found := false
	for label, q := range c.Reports("NPM") {
		if label == "NetPath by Probe" {
			found = true
			assert.NotEmpty(t, q)
			assert.Contains(t, q, "Orion.NetPath.Probes")
		}
	}
	assert.True(t, found, "NPM should contain the NetPath by Probe report")
}

func TestPlaceholderOnlyCategories(t *testing.T) {
	c := loadCatalog(t)

	for _, name := range []string{"VIM", "OLM", "SCM", "SRM"} {
		cat, ok := c.Category(name)
		require.True(t, ok, name)
		assert.Empty(t, cat.Reports, name)
		assert.NotNil(t, cat.Reports, name)
		assert.Zero(t, countSeq2(c.Reports(name)), name)
	}
}

func TestPlaceholdersPreserved(t *testing.T) {
	c := loadCatalog(t)

	sam, ok := c.Category("SAM")
	require.True(t, ok)
	assert.Equal(t, "SAM Application Monitors", sam.Reports[0].Label)
	assert.False(t, sam.Reports[0].IsPlaceholder())
	for _, r := range sam.Reports[1:] {
		assert.Equal(t, Report{}, r)
		assert.True(t, r.IsPlaceholder())
	}
	assert.Equal(t, 4, sam.Placeholders())

	ncm, _ := c.Category("NCM")
	assert.Equal(t, "NCM Inventory", ncm.Reports[1].Label)
	assert.False(t, ncm.Reports[1].HasQuery())

	udt, _ := c.Category("UDT")
	assert.False(t, udt.Reports[0].HasLabel())
	assert.True(t, udt.Reports[0].HasQuery())
}

func TestVendorSQLPassedThrough(t *testing.T) {
	c := loadCatalog(t)

	var all strings.Builder
	for q := range c.Queries() {
		all.WriteString(q.SQL)
	}
	for _, construct := range []string{"CONCAT(", "GROUPING SETS", "DAYDIFF(", "[ ]"} {
		assert.Contains(t, all.String(), construct)
	}
}

func TestEmbeddedQueriesAreReadOnly(t *testing.T) {
	for q := range loadCatalog(t).Queries() {
		assert.NoError(t, query.Validate(q.SQL), "%s: %s", q.Category, q.DisplayLabel())
	}
}

func TestIteratorsRestartable(t *testing.T) {
	c := loadCatalog(t)

	first := slices.Collect(c.Categories())
	second := slices.Collect(c.Categories())
	assert.Equal(t, first, second)

	assert.Equal(t, countSeq2(c.Reports("NPM")), countSeq2(c.Reports("NPM")))

	// early exit stops the sequence
	n := 0
	for range c.Categories() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestReportsUnknownCategory(t *testing.T) {
	c := loadCatalog(t)

	assert.Zero(t, countSeq2(c.Reports("NOPE")))
	_, ok := c.Category("NOPE")
	assert.False(t, ok)
}

func TestCategoryReturnsCopy(t *testing.T) {
	c := loadCatalog(t)

	npm, _ := c.Category("NPM")
	npm.Reports[0].Label = "changed"

	again, _ := c.Category("NPM")
	assert.Equal(t, "NetPath by Probe", again.Reports[0].Label)
}

func TestRoundTrip(t *testing.T) {
	c := loadCatalog(t)

	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, c.Encode(&buf, format))

			reloaded, err := Parse(buf.Bytes())
			require.NoError(t, err)
			assert.True(t, c.Equal(reloaded))

			// encoding is idempotent
			var again bytes.Buffer
			require.NoError(t, reloaded.Encode(&again, format))
			assert.Equal(t, buf.String(), again.String())
		})
	}
}

// Query bodies are stored as dedented block scalars: no leading indentation
// and exactly one trailing line break.
func TestEmbeddedQueryLayout(t *testing.T) {
	for cat := range loadCatalog(t).All() {
		for _, r := range cat.Reports {
			if !r.HasQuery() {
				continue
			}
			assert.Equal(t, strings.TrimLeft(r.Query, " \t\n"), r.Query, "%s / %s", cat.Name, r.Label)
			assert.True(t, strings.HasSuffix(r.Query, "\n"), "%s / %s", cat.Name, r.Label)
			assert.False(t, strings.HasSuffix(r.Query, "\n\n"), "%s / %s", cat.Name, r.Label)
		}
	}
}

func TestRoundTripEdgeStrings(t *testing.T) {
	values := []string{"\n", "\nlead", "\n\nSELECT 1", "a\nb", "a\n", "null", "~", " lead", "trail ", "  indented\nbody", "crlf\r\nbody"}

	for _, format := range []Format{FormatYAML, FormatJSON} {
		for _, v := range values {
			t.Run(fmt.Sprintf("%s/%q", format, v), func(t *testing.T) {
				c := &Catalog{
					categories: []Category{{Name: "C", Reports: []Report{{Label: v, Query: v}}}},
					index:      map[string]int{"C": 0},
				}

				var buf bytes.Buffer
				require.NoError(t, c.Encode(&buf, format))

				reloaded, err := Parse(buf.Bytes())
				require.NoError(t, err, buf.String())
				cat, ok := reloaded.Category("C")
				require.True(t, ok)
				require.Len(t, cat.Reports, 1)
				assert.Equal(t, v, cat.Reports[0].Label, buf.String())
				assert.Equal(t, v, cat.Reports[0].Query, buf.String())
			})
		}
	}
}

func TestMarshalJSONOrder(t *testing.T) {
	c, err := Parse([]byte("Zeta:\n  - table: z\n    query: q\nAlpha: []\n"))
	require.NoError(t, err)

	data, err := c.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"Zeta":[{"table":"z","query":"q"}],"Alpha":[]}`, string(data))
	assert.Less(t, strings.Index(string(data), "Zeta"), strings.Index(string(data), "Alpha"))
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	assert.Error(t, loadCatalog(t).Encode(&bytes.Buffer{}, "toml"))
}

func TestFilter(t *testing.T) {
	c := loadCatalog(t)

	sub, err := c.Filter("VMAN", "NPM", "NPM")
	require.NoError(t, err)
	assert.Equal(t, []string{"NPM", "VMAN"}, sub.Names())
	assert.Equal(t, 20, sub.ReportCount())

	same, err := c.Filter()
	require.NoError(t, err)
	assert.Same(t, c, same)

	_, err = c.Filter("NPM", "Nope")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestDefaultShared(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty document", "", "empty document"},
		{"root is a list", "- a\n- b\n", "catalog must be a mapping"},
		{"empty category name", "\"\": []\n", "category name must be a non-empty string"},
		{"null category name", "~: []\n", "category name must be a non-empty string"},
		{"duplicate category", "NPM: []\nNPM: []\n", "duplicate category"},
		{"entries not a list", "NPM: oops\n", "entries must be a list"},
		{"null entry", "NPM:\n  - ~\n", "entry must be a mapping"},
		{"scalar entry", "NPM:\n  - just a string\n", "entry must be a mapping"},
		{"missing query", "NPM:\n  - table: x\n", "missing field \"query\""},
		{"missing table", "NPM:\n  - query: x\n", "missing field \"table\""},
		{"unknown field", "NPM:\n  - table: x\n    query: y\n    note: z\n", "unknown field \"note\""},
		{"null field", "NPM:\n  - table:\n    query: y\n", "field \"table\" must be a string"},
		{"list field", "NPM:\n  - table: x\n    query: [a, b]\n", "field \"query\" must be a string"},
		{"duplicate field", "NPM:\n  - table: x\n    table: y\n    query: z\n", "duplicate field \"table\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestParseMalformedLocation(t *testing.T) {
	_, err := Parse([]byte("NPM:\n  - table: a\n    query: b\n  - table: c\n"))

	var malformed *MalformedError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "NPM", malformed.Category)
	assert.Equal(t, 1, malformed.Index)
	assert.Equal(t, 4, malformed.Line)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("NPM: [\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseNullCategoryIsEmpty(t *testing.T) {
	c, err := Parse([]byte("VIM:\nOLM: []\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"VIM", "OLM"}, c.Names())
	assert.Zero(t, c.ReportCount())
}

func TestParseAnchors(t *testing.T) {
	c, err := Parse([]byte("A:\n  - &servers {table: Servers, query: SELECT 1}\nB:\n  - *servers\n"))
	require.NoError(t, err)

	b, _ := c.Category("B")
	assert.Equal(t, []Report{{Label: "Servers", Query: "SELECT 1"}}, b.Reports)
}

func TestParseJSON(t *testing.T) {
	c, err := Read(strings.NewReader(`{"NPM":[{"table":"","query":""}],"VIM":[]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"NPM", "VIM"}, c.Names())
	assert.Equal(t, 1, c.ReportCount())
}

func countSeq2[K, V any](seq func(yield func(K, V) bool)) int {
	n := 0
	for range seq {
		n++
	}
	return n
}
