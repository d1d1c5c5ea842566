package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the upload proxy and job lookups.
// In-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	uploadsTotal        = make(map[uploadKey]int64)
	uploadAttemptsTotal = make(map[string]int64)
	uploadBytesTotal    = make(map[string]int64)

	pollsTotal       = make(map[pollKey]int64)
	cacheLookups     = make(map[cacheKey]int64)
	rateLimitedTotal = make(map[string]int64)

	retentionUploadsDeleted int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type uploadKey struct {
	Source  string
	Outcome string
}

type pollKey struct {
	Kind    string
	Outcome string
}

type cacheKey struct {
	Kind   string
	Result string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordUpload counts a finished upload by source (youtube, file) and
// outcome (success, failed, exhausted), with the attempts it took and
// the bytes sent on success.
func RecordUpload(source, outcome string, attempts int, bytes int64) {
	mu.Lock()
	defer mu.Unlock()

	uploadsTotal[uploadKey{Source: source, Outcome: outcome}]++
	if attempts > 0 {
		uploadAttemptsTotal[source] += int64(attempts)
	}
	if bytes > 0 {
		uploadBytesTotal[source] += bytes
	}
}

// RecordPoll counts a status fetch by job kind and outcome.
func RecordPoll(kind, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	pollsTotal[pollKey{Kind: kind, Outcome: outcome}]++
}

// RecordCache counts a snapshot cache lookup.
func RecordCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	mu.Lock()
	defer mu.Unlock()
	cacheLookups[cacheKey{Kind: kind, Result: result}]++
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited(scope string) {
	mu.Lock()
	defer mu.Unlock()
	rateLimitedTotal[scope]++
}

// RecordRetentionUploads increments the counter of ledger rows deleted
// by TTL cleanup.
func RecordRetentionUploads(deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionUploadsDeleted += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP podshorts_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE podshorts_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "podshorts_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP podshorts_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE podshorts_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP podshorts_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE podshorts_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "podshorts_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "podshorts_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	// Upload metrics
	b.WriteString("# HELP podshorts_uploads_total Total media uploads by source and outcome\n")
	b.WriteString("# TYPE podshorts_uploads_total counter\n")

	var upKeys []uploadKey
	for k := range uploadsTotal {
		upKeys = append(upKeys, k)
	}
	sort.Slice(upKeys, func(i, j int) bool {
		if upKeys[i].Source != upKeys[j].Source {
			return upKeys[i].Source < upKeys[j].Source
		}
		return upKeys[i].Outcome < upKeys[j].Outcome
	})
	for _, k := range upKeys {
		fmt.Fprintf(&b, "podshorts_uploads_total{source=\"%s\",outcome=\"%s\"} %d\n",
			k.Source, k.Outcome, uploadsTotal[k])
	}

	writeBySource(&b, "podshorts_upload_attempts_total", "Total upload attempts including retries", uploadAttemptsTotal)
	writeBySource(&b, "podshorts_upload_bytes_total", "Total bytes uploaded", uploadBytesTotal)

	// Poll metrics
	b.WriteString("# HELP podshorts_status_polls_total Total job status fetches by kind and outcome\n")
	b.WriteString("# TYPE podshorts_status_polls_total counter\n")

	var pKeys []pollKey
	for k := range pollsTotal {
		pKeys = append(pKeys, k)
	}
	sort.Slice(pKeys, func(i, j int) bool {
		if pKeys[i].Kind != pKeys[j].Kind {
			return pKeys[i].Kind < pKeys[j].Kind
		}
		return pKeys[i].Outcome < pKeys[j].Outcome
	})
	for _, k := range pKeys {
		fmt.Fprintf(&b, "podshorts_status_polls_total{kind=\"%s\",outcome=\"%s\"} %d\n",
			k.Kind, k.Outcome, pollsTotal[k])
	}

	// Cache metrics
	b.WriteString("# HELP podshorts_snapshot_cache_lookups_total Snapshot cache lookups by kind and result\n")
	b.WriteString("# TYPE podshorts_snapshot_cache_lookups_total counter\n")

	var cKeys []cacheKey
	for k := range cacheLookups {
		cKeys = append(cKeys, k)
	}
	sort.Slice(cKeys, func(i, j int) bool {
		if cKeys[i].Kind != cKeys[j].Kind {
			return cKeys[i].Kind < cKeys[j].Kind
		}
		return cKeys[i].Result < cKeys[j].Result
	})
	for _, k := range cKeys {
		fmt.Fprintf(&b, "podshorts_snapshot_cache_lookups_total{kind=\"%s\",result=\"%s\"} %d\n",
			k.Kind, k.Result, cacheLookups[k])
	}

	b.WriteString("# HELP podshorts_rate_limited_total Requests rejected by the rate limiter\n")
	b.WriteString("# TYPE podshorts_rate_limited_total counter\n")
	var scopes []string
	for s := range rateLimitedTotal {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	for _, s := range scopes {
		fmt.Fprintf(&b, "podshorts_rate_limited_total{scope=\"%s\"} %d\n", s, rateLimitedTotal[s])
	}

	// Retention metrics
	b.WriteString("# HELP podshorts_retention_uploads_deleted_total Total ledger rows deleted by TTL\n")
	b.WriteString("# TYPE podshorts_retention_uploads_deleted_total counter\n")
	fmt.Fprintf(&b, "podshorts_retention_uploads_deleted_total %d\n", retentionUploadsDeleted)

	return b.String()
}

func writeBySource(b *strings.Builder, name, help string, values map[string]int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	var sources []string
	for s := range values {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(b, "%s{source=\"%s\"} %d\n", name, s, values[s])
	}
}
