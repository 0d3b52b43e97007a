package aggregate

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/huntgest/internal/extract"
)

func rec(t extract.Type, value, context string, chunk int) extract.Record {
	return extract.Record{Type: t, Value: value, Context: context, SourceChunk: chunk}
}

func sampleResults() []extract.Result {
	return []extract.Result{
		{ChunkIndex: 0, Records: []extract.Record{
			rec(extract.TypeIP, "203.0.113.7", "C2 server", 0),
			rec(extract.TypeDomain, "evil.example.com", "staging domain", 0),
			rec(extract.TypeSHA256, strings.Repeat("a", 64), "", 0),
		}},
		{ChunkIndex: 1, Records: []extract.Record{
			rec(extract.TypeIP, "203.0.113.7", "exfiltration endpoint", 1),
			rec(extract.TypeDomain, "evil.example.com", "staging domain", 1),
			rec(extract.TypeURL, "http://evil.example.com/a", "payload URL", 1),
		}},
		{ChunkIndex: 3, Records: []extract.Record{
			rec(extract.TypeSHA256, strings.Repeat("a", 64), "loader hash", 3),
			rec(extract.TypeIP, "198.51.100.1", "scanner", 3),
		}},
	}
}

func TestAggregate_SameIPTwoChunks(t *testing.T) {
	intel := Aggregate("doc", []extract.Result{
		{ChunkIndex: 0, Records: []extract.Record{rec(extract.TypeIP, "1.2.3.4", "C1", 0)}},
		{ChunkIndex: 1, Records: []extract.Record{rec(extract.TypeIP, "1.2.3.4", "C2", 1)}},
	})

	require.Len(t, intel.Indicators, 1)
	want := Indicator{
		Type:        extract.TypeIP,
		Value:       "1.2.3.4",
		Contexts:    []Context{{Text: "C1", Chunk: 0}, {Text: "C2", Chunk: 1}},
		SourceChunk: 0,
	}
	if diff := cmp.Diff(want, intel.Indicators[0]); diff != "" {
		t.Errorf("indicator mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, intel.Counts[extract.TypeIP])
	assert.Equal(t, "C1 | C2", intel.Indicators[0].JoinedContext())
}

func TestAggregate_DedupAndOrdering(t *testing.T) {
	intel := Aggregate("doc", sampleResults())

	seen := map[extract.Key]bool{}
	for _, ind := range intel.Indicators {
		k := extract.Key{Type: ind.Type, Value: ind.Value}
		assert.False(t, seen[k], "duplicate indicator %v", k)
		seen[k] = true
	}
	require.Len(t, intel.Indicators, 5)

	var order []string
	for _, ind := range intel.Indicators {
		order = append(order, string(ind.Type)+":"+ind.Value)
	}
	assert.Equal(t, []string{
		"ip:198.51.100.1",
		"ip:203.0.113.7",
		"domain:evil.example.com",
		"url:http://evil.example.com/a",
		"hash-sha256:" + strings.Repeat("a", 64),
	}, order)

	domain := intel.Indicators[2]
	assert.Equal(t, []Context{{Text: "staging domain", Chunk: 0}}, domain.Contexts)

	hash := intel.Indicators[4]
	assert.Equal(t, 0, hash.SourceChunk, "source chunk is the minimum even when that record had no context")
	assert.Equal(t, []Context{{Text: "loader hash", Chunk: 3}}, hash.Contexts)

	assert.Equal(t, "ip: 2, domain: 1, url: 1, hash-sha256: 1", intel.Summary())
}

func TestAggregate_OrderIndependent(t *testing.T) {
	want := Aggregate("doc", sampleResults())
	r := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 20; i++ {
		results := sampleResults()
		r.Shuffle(len(results), func(a, b int) { results[a], results[b] = results[b], results[a] })
		for _, res := range results {
			r.Shuffle(len(res.Records), func(a, b int) { res.Records[a], res.Records[b] = res.Records[b], res.Records[a] })
		}
		got := Aggregate("doc", results)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("permutation %d changed the result (-want +got):\n%s", i, diff)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	once := Aggregate("doc", sampleResults())
	twice := Aggregate("doc", []extract.Result{{ChunkIndex: 0, Records: once.Records()}})
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("re-aggregation changed the result (-once +twice):\n%s", diff)
	}
}

func TestAggregate_Empty(t *testing.T) {
	intel := Aggregate("", nil)
	assert.Equal(t, 0, intel.Len())
	assert.Equal(t, "no indicators", intel.Summary())
	assert.NotNil(t, intel.Counts)
}

func TestCSV_RoundTrip(t *testing.T) {
	intel := Aggregate("doc", sampleResults())
	text := intel.CSV()
	assert.True(t, strings.HasPrefix(text, "Type,Value,Context\n"))
	assert.Contains(t, text, "ip,203.0.113.7,C2 server | exfiltration endpoint\n")

	records, err := ReadCSV(strings.NewReader(text))
	require.NoError(t, err)
	back := Aggregate("doc", []extract.Result{{Records: records}})
	require.Equal(t, intel.Len(), back.Len())
	for i := range intel.Indicators {
		assert.Equal(t, intel.Indicators[i].Value, back.Indicators[i].Value)
		assert.Equal(t, intel.Indicators[i].JoinedContext(), back.Indicators[i].JoinedContext())
	}
}

func TestReadCSV_NormalizesRows(t *testing.T) {
	in := "value,TYPE,context\n" +
		"evil[.]com,Domain,phishing\n" +
		"deadbeef,sha256,too short\n" +
		"hxxp://x[.]io,url,\n"

	records, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, extract.Record{Type: extract.TypeDomain, Value: "evil.com"}, records[0])
	assert.Equal(t, "phishing", records[1].Context)
	assert.Equal(t, "http://x.io", records[2].Value)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)
}
