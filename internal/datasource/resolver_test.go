package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mwocomp/ingestion/internal/models"
)

const mechCSV = `ItemID,Name,Chassis,Tonnage,Class,Type
100,ATLAS AS7-D,ATLAS,100,ASSAULT,Mech
200,LOCUST LCT-1V,LOCUST,20,LIGHT,Mech
`

const rosterCSV = `Pilot,Team,Division
Alpha,Wolf Pack,A
BRAVO,Iron Guard,B
`

// testSources serves a mech catalog, a roster index and one roster, counting
// hits per path.
type testSources struct {
	server    *httptest.Server
	mechHits  atomic.Int32
	indexHits atomic.Int32
}

func newTestSources(t *testing.T) *testSources {
	t.Helper()

	s := &testSources{}
	mux := http.NewServeMux()
	mux.HandleFunc("/mechs.csv", func(w http.ResponseWriter, r *http.Request) {
		s.mechHits.Add(1)
		fmt.Fprint(w, mechCSV)
	})
	mux.HandleFunc("/roster.csv", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rosterCSV)
	})
	mux.HandleFunc("/index.csv", func(w http.ResponseWriter, r *http.Request) {
		s.indexHits.Add(1)
		fmt.Fprintf(w, "Tournament,RosterLink\nseason-5,%s/roster.csv\nseason-4,%s/roster.csv\n", s.server.URL, s.server.URL)
	})

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func newTestResolver(s *testSources, ttl time.Duration) *Resolver {
	return NewResolver(Options{
		MechDataURL:    s.server.URL + "/mechs.csv",
		RosterIndexURL: s.server.URL + "/index.csv",
		TTL:            ttl,
	})
}

func TestResolveMech(t *testing.T) {
	sources := newTestSources(t)
	resolver := newTestResolver(sources, time.Minute)
	ctx := context.Background()

	mech, ok := resolver.ResolveMech(ctx, 100)
	require.True(t, ok)
	assert.Equal(t, "ATLAS AS7-D", mech.Name)
	assert.Equal(t, "ATLAS", mech.Chassis)
	assert.Equal(t, 100, mech.Tonnage)
	assert.Equal(t, models.ClassAssault, mech.Class)
	assert.Equal(t, "Mech", mech.Type)

	_, ok = resolver.ResolveMech(ctx, 999)
	assert.False(t, ok)
}

func TestResolveMech_CachesWithinTTL(t *testing.T) {
	sources := newTestSources(t)
	resolver := newTestResolver(sources, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, ok := resolver.ResolveMech(ctx, 100)
		require.True(t, ok)
	}
	assert.Equal(t, int32(1), sources.mechHits.Load())
}

func TestResolveMech_RefetchesAfterTTL(t *testing.T) {
	sources := newTestSources(t)
	resolver := newTestResolver(sources, time.Minute)
	ctx := context.Background()

	current := time.Now()
	resolver.now = func() time.Time { return current }

	_, ok := resolver.ResolveMech(ctx, 100)
	require.True(t, ok)

	current = current.Add(30 * time.Second)
	resolver.ResolveMech(ctx, 100)
	assert.Equal(t, int32(1), sources.mechHits.Load())

	current = current.Add(31 * time.Second)
	resolver.ResolveMech(ctx, 100)
	assert.Equal(t, int32(2), sources.mechHits.Load())
}

func TestResolveRoster_CaseInsensitivePilot(t *testing.T) {
	sources := newTestSources(t)
	resolver := newTestResolver(sources, time.Minute)
	ctx := context.Background()

	// The roster stores "Alpha"; lookups are by uppercased key.
	entry, ok := resolver.ResolveRoster(ctx, "season-5", "ALPHA")
	require.True(t, ok)
	assert.Equal(t, "Alpha", entry.Pilot)
	assert.Equal(t, "Wolf Pack", entry.Team)
	assert.Equal(t, "A", entry.Division)

	_, ok = resolver.ResolveRoster(ctx, "season-5", "GHOST")
	assert.False(t, ok)
}

func TestResolveRoster_UnknownTournament(t *testing.T) {
	sources := newTestSources(t)
	resolver := newTestResolver(sources, time.Minute)

	_, ok := resolver.ResolveRoster(context.Background(), "season-99", "ALPHA")
	assert.False(t, ok)
}

func TestTournaments_Sorted(t *testing.T) {
	sources := newTestSources(t)
	resolver := newTestResolver(sources, time.Minute)

	assert.Equal(t, []string{"season-4", "season-5"}, resolver.Tournaments(context.Background()))
}

func TestSourceFailure_CachedAsEmpty(t *testing.T) {
	hits := atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := NewResolver(Options{
		MechDataURL:    server.URL + "/mechs.csv",
		RosterIndexURL: server.URL + "/index.csv",
		TTL:            time.Minute,
	})
	ctx := context.Background()

	// The failure is cached as an empty catalog for the TTL window; the
	// source is not hammered on every lookup.
	for i := 0; i < 3; i++ {
		_, ok := resolver.ResolveMech(ctx, 100)
		assert.False(t, ok)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestMalformedCatalog_DroppedEntirely(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Header lacks the Tonnage column.
		fmt.Fprint(w, "ItemID,Name,Chassis,Class,Type\n100,ATLAS AS7-D,ATLAS,ASSAULT,Mech\n")
	}))
	defer server.Close()

	resolver := NewResolver(Options{
		MechDataURL:    server.URL,
		RosterIndexURL: server.URL,
		TTL:            time.Minute,
	})

	_, ok := resolver.ResolveMech(context.Background(), 100)
	assert.False(t, ok)
}

func TestNewMechs(t *testing.T) {
	sources := newTestSources(t)
	resolver := newTestResolver(sources, time.Minute)

	dictionary := map[string]string{
		"100":   "Atlas AS7-D",
		"300":   "Timber Wolf Prime",
		"bogus": "Not An ID",
	}

	missing := resolver.NewMechs(context.Background(), dictionary)
	assert.Equal(t, map[int64]string{300: "TIMBER WOLF PRIME"}, missing)
}

func TestParseTable(t *testing.T) {
	tbl, err := parseTable([]byte("A,B\n1,2\n3,4\n"))
	require.NoError(t, err)
	require.Len(t, tbl.rows, 2)

	v, err := tbl.get(tbl.rows[1], "B")
	require.NoError(t, err)
	assert.Equal(t, "4", v)

	_, err = tbl.get(tbl.rows[0], "C")
	assert.Error(t, err)
}

func TestParseTable_Empty(t *testing.T) {
	_, err := parseTable(nil)
	assert.Error(t, err)
}
