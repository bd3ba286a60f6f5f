package datasource

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"mwocomp/ingestion/internal/cache"
	"mwocomp/ingestion/internal/metrics"
	"mwocomp/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// Resolver loads and caches the mech catalog and per-tournament rosters.
// Pure lookup, no mutation: a source failure is logged and counted, an empty
// mapping is cached for the TTL window, and every lookup against that source
// comes back not-found until the next reload.
type Resolver struct {
	mechDataURL    string
	rosterIndexURL string
	ttl            time.Duration
	fetcher        *csvFetcher

	now func() time.Time

	mu          sync.Mutex
	mechs       mechEntry
	rosterIndex indexEntry
	rosters     map[string]rosterEntry
}

type mechEntry struct {
	data    map[int64]models.MechDefinition
	expires time.Time
}

type indexEntry struct {
	data    map[string]string
	expires time.Time
}

type rosterEntry struct {
	data    map[string]models.RosterEntry
	expires time.Time
}

// Options configures a Resolver.
type Options struct {
	MechDataURL    string
	RosterIndexURL string
	TTL            time.Duration
	HTTPClient     *http.Client
	Redis          *cache.RedisCache
}

// NewResolver creates a resolver over the given tabular sources.
func NewResolver(opts Options) *Resolver {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Resolver{
		mechDataURL:    opts.MechDataURL,
		rosterIndexURL: opts.RosterIndexURL,
		ttl:            opts.TTL,
		fetcher: &csvFetcher{
			httpClient: httpClient,
			redis:      opts.Redis,
			ttl:        opts.TTL,
		},
		now:     time.Now,
		rosters: make(map[string]rosterEntry),
	}
}

// ResolveMech looks up a mech by catalog item ID.
func (r *Resolver) ResolveMech(ctx context.Context, itemID int64) (models.MechDefinition, bool) {
	mechs := r.loadMechs(ctx)
	mech, ok := mechs[itemID]
	return mech, ok
}

// ResolveRoster looks up a pilot's roster entry within one tournament. The
// pilot key is compared uppercased.
func (r *Resolver) ResolveRoster(ctx context.Context, tournament, pilotUpper string) (models.RosterEntry, bool) {
	links := r.loadRosterIndex(ctx)
	url, ok := links[tournament]
	if !ok || url == "" {
		log.Warn().Str("tournament", tournament).Msg("No roster link for tournament")
		return models.RosterEntry{}, false
	}

	roster := r.loadRoster(ctx, url)
	entry, ok := roster[pilotUpper]
	return entry, ok
}

// Tournaments returns the known tournament names, sorted. This feeds the
// tournament selector of the trigger surface.
func (r *Resolver) Tournaments(ctx context.Context) []string {
	links := r.loadRosterIndex(ctx)

	names := make([]string, 0, len(links))
	for name := range links {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewMechs returns entries of the public mech dictionary that the catalog
// does not know yet, keyed by item ID with uppercased display names.
func (r *Resolver) NewMechs(ctx context.Context, dictionary map[string]string) map[int64]string {
	mechs := r.loadMechs(ctx)

	missing := make(map[int64]string)
	for key, name := range dictionary {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := mechs[id]; !ok {
			missing[id] = strings.ToUpper(name)
		}
	}
	return missing
}

func (r *Resolver) loadMechs(ctx context.Context) map[int64]models.MechDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mechs.data != nil && r.now().Before(r.mechs.expires) {
		return r.mechs.data
	}

	data := r.fetchMechs(ctx)
	r.mechs = mechEntry{data: data, expires: r.now().Add(r.ttl)}
	return data
}

func (r *Resolver) fetchMechs(ctx context.Context) map[int64]models.MechDefinition {
	result := make(map[int64]models.MechDefinition)

	tbl, err := r.fetcher.fetch(ctx, r.mechDataURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch mech catalog")
		metrics.RecordReferenceError("mech_catalog")
		return result
	}

	for _, row := range tbl.rows {
		mech, err := mechFromRow(tbl, row)
		if err != nil {
			log.Error().Err(err).Msg("Malformed mech catalog row")
			metrics.RecordReferenceError("mech_catalog")
			return map[int64]models.MechDefinition{}
		}
		result[mech.ItemID] = mech
	}

	log.Debug().Int("count", len(result)).Msg("Mech catalog loaded")
	return result
}

func mechFromRow(tbl *table, row []string) (models.MechDefinition, error) {
	var mech models.MechDefinition

	rawID, err := tbl.get(row, "ItemID")
	if err != nil {
		return mech, err
	}
	mech.ItemID, err = strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		return mech, err
	}

	if mech.Name, err = tbl.get(row, "Name"); err != nil {
		return mech, err
	}
	if mech.Chassis, err = tbl.get(row, "Chassis"); err != nil {
		return mech, err
	}

	rawTonnage, err := tbl.get(row, "Tonnage")
	if err != nil {
		return mech, err
	}
	if mech.Tonnage, err = strconv.Atoi(strings.TrimSpace(rawTonnage)); err != nil {
		return mech, err
	}

	class, err := tbl.get(row, "Class")
	if err != nil {
		return mech, err
	}
	mech.Class = models.WeightClass(class)

	if mech.Type, err = tbl.get(row, "Type"); err != nil {
		return mech, err
	}

	return mech, nil
}

func (r *Resolver) loadRosterIndex(ctx context.Context) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rosterIndex.data != nil && r.now().Before(r.rosterIndex.expires) {
		return r.rosterIndex.data
	}

	data := r.fetchRosterIndex(ctx)
	r.rosterIndex = indexEntry{data: data, expires: r.now().Add(r.ttl)}
	return data
}

func (r *Resolver) fetchRosterIndex(ctx context.Context) map[string]string {
	result := make(map[string]string)

	tbl, err := r.fetcher.fetch(ctx, r.rosterIndexURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch roster index")
		metrics.RecordReferenceError("roster_index")
		return result
	}

	for _, row := range tbl.rows {
		tournament, err := tbl.get(row, "Tournament")
		if err != nil {
			log.Error().Err(err).Msg("Malformed roster index row")
			metrics.RecordReferenceError("roster_index")
			return map[string]string{}
		}
		link, err := tbl.get(row, "RosterLink")
		if err != nil {
			log.Error().Err(err).Msg("Malformed roster index row")
			metrics.RecordReferenceError("roster_index")
			return map[string]string{}
		}
		result[tournament] = link
	}

	return result
}

func (r *Resolver) loadRoster(ctx context.Context, url string) map[string]models.RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.rosters[url]; ok && r.now().Before(entry.expires) {
		return entry.data
	}

	data := r.fetchRoster(ctx, url)
	r.rosters[url] = rosterEntry{data: data, expires: r.now().Add(r.ttl)}
	return data
}

func (r *Resolver) fetchRoster(ctx context.Context, url string) map[string]models.RosterEntry {
	result := make(map[string]models.RosterEntry)

	tbl, err := r.fetcher.fetch(ctx, url)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch team roster")
		metrics.RecordReferenceError("roster")
		return result
	}

	for _, row := range tbl.rows {
		pilot, err := tbl.get(row, "Pilot")
		if err == nil {
			var entry models.RosterEntry
			entry.Pilot = pilot
			if entry.Team, err = tbl.get(row, "Team"); err == nil {
				entry.Division, err = tbl.get(row, "Division")
				if err == nil {
					result[strings.ToUpper(pilot)] = entry
					continue
				}
			}
		}

		log.Error().Err(err).Msg("Malformed roster row")
		metrics.RecordReferenceError("roster")
		return map[string]models.RosterEntry{}
	}

	log.Debug().Int("count", len(result)).Str("url", url).Msg("Team roster loaded")
	return result
}
