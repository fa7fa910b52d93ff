package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/pkg/circuit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubTools(t *testing.T) {
	ctx := context.Background()
	hits, err := StubSearch{}.Query(ctx, "7203")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"News headline about 7203",
		"Analyst commentary on 7203",
		"Social sentiment summary for 7203",
	}, hits)

	chatter, err := StubSocial{}.Query(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"Trending discussions for AAPL indicate neutral sentiment."}, chatter)

	empty, err := StubSearch{}.Query(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = StubSocial{}.Query(cancelled, "AAPL")
	assert.ErrorIs(t, err, context.Canceled)
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>"AAPL stock" - Google News</title>
<item><title>Apple gets analyst upgrade ahead of earnings - Reuters</title><link>https://example.com/1</link><source url="https://reuters.com">Reuters</source></item>
<item><title>Apple supplier outlook turns negative</title><link>https://example.com/2</link><source url="https://nikkei.com">Nikkei</source></item>
<item><title>Apple supplier outlook turns negative</title><link>https://example.com/3</link></item>
<item><title></title><description>&lt;a href="https://example.com/4"&gt;Toyota raises   guidance&lt;/a&gt;</description></item>
</channel></rss>`

func TestGoogleNewsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL stock", r.URL.Query().Get("q"))
		assert.Equal(t, "ja", r.URL.Query().Get("hl"))
		assert.Equal(t, "JP:ja", r.URL.Query().Get("ceid"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	g := NewGoogleNews("ja", time.Second, WithBaseURL(srv.URL), WithMaxItems(2))
	hits, err := g.Query(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Apple gets analyst upgrade ahead of earnings - Reuters",
		"Apple supplier outlook turns negative - Nikkei",
	}, hits)
}

func TestParseRSSDescriptionFallback(t *testing.T) {
	hits, err := parseRSSTitles(sampleRSS, 0)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, "Apple supplier outlook turns negative", hits[2])
	assert.Equal(t, "Toyota raises guidance", hits[3])
}

func TestGoogleNewsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewGoogleNews("en", time.Second, WithBaseURL(srv.URL)).Query(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

type fakeModel struct {
	reply string
	err   error
	got   provider.ChatPayload
}

func (f *fakeModel) ID() string    { return "fake" }
func (f *fakeModel) Enabled() bool { return true }
func (f *fakeModel) Call(_ context.Context, p provider.ChatPayload) (string, error) {
	f.got = p
	return f.reply, f.err
}

func TestModelSocial(t *testing.T) {
	m := &fakeModel{reply: "Here you go:\n```json\n{\"posts\":[\"Retail is positive on AAPL\",\"  \",\"Some fear a downgrade\"]}\n```"}
	out, err := NewModelSocial(m).Query(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"Retail is positive on AAPL", "Some fear a downgrade"}, out)
	assert.True(t, m.got.ExpectJSON)
	assert.Equal(t, "social", m.got.Purpose)

	_, err = NewModelSocial(&fakeModel{reply: "no idea"}).Query(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestGuardedSearchShortCircuits(t *testing.T) {
	calls := 0
	failing := SearchFunc(func(ctx context.Context, text string) ([]string, error) {
		calls++
		return nil, errors.New("503")
	})
	cb := circuit.NewCircuitBreaker("news", 2, time.Hour)
	cb.SetStateChangeHandler(func(string, circuit.State, circuit.State) {})
	g := NewGuardedSearch(failing, cb)

	for i := 0; i < 2; i++ {
		_, err := g.Query(context.Background(), "7203")
		require.Error(t, err)
	}
	_, err := g.Query(context.Background(), "7203")
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, 2, calls)

	ok := NewGuardedSocial(StubSocial{}, circuit.NewCircuitBreaker("social", 2, time.Hour))
	posts, err := ok.Query(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}
