package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and job
// lifecycle. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobTransitions = make(map[jobKey]int64)
	jobRetries     = make(map[string]int64)

	processesStarted = make(map[string]int64)
	processesExited  = make(map[procKey]int64)

	retentionJobsDeleted = make(map[string]int64)
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

type jobKey struct {
	Type   string
	Status string
}

type procKey struct {
	Tool    string
	Success string
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

// RecordJobTransition counts a job reaching the given status.
func RecordJobTransition(jobType, status string) {
	mu.Lock()
	defer mu.Unlock()
	jobTransitions[jobKey{Type: jobType, Status: status}]++
}

// RecordRetry counts a retry being scheduled for a job type.
func RecordRetry(jobType string) {
	mu.Lock()
	defer mu.Unlock()
	jobRetries[jobType]++
}

// RecordProcessStart counts a child process being spawned for a tool.
func RecordProcessStart(tool string) {
	mu.Lock()
	defer mu.Unlock()
	processesStarted[tool]++
}

// RecordProcessExit counts a child process exiting, split by outcome.
func RecordProcessExit(tool string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	s := "false"
	if success {
		s = "true"
	}
	processesExited[procKey{Tool: tool, Success: s}]++
}

// RecordRetentionJobs increments the counter of jobs deleted by TTL
// for a given job type.
func RecordRetentionJobs(jobType string, deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsDeleted[jobType] += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP mixdown_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE mixdown_http_requests_total counter\n")

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
		v := requestsTotal[k]
		fmt.Fprintf(&b, "mixdown_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP mixdown_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE mixdown_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP mixdown_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE mixdown_http_request_duration_ms_count counter\n")

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
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "mixdown_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "mixdown_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	// Job lifecycle metrics
	b.WriteString("# HELP mixdown_jobs_total Jobs reaching a lifecycle status\n")
	b.WriteString("# TYPE mixdown_jobs_total counter\n")

	var jobKeys []jobKey
	for k := range jobTransitions {
		jobKeys = append(jobKeys, k)
	}
	sort.Slice(jobKeys, func(i, j int) bool {
		if jobKeys[i].Type != jobKeys[j].Type {
			return jobKeys[i].Type < jobKeys[j].Type
		}
		return jobKeys[i].Status < jobKeys[j].Status
	})
	for _, k := range jobKeys {
		fmt.Fprintf(&b, "mixdown_jobs_total{type=\"%s\",status=\"%s\"} %d\n",
			k.Type, k.Status, jobTransitions[k])
	}

	b.WriteString("# HELP mixdown_job_retries_total Retries scheduled per job type\n")
	b.WriteString("# TYPE mixdown_job_retries_total counter\n")

	var retryTypes []string
	for t := range jobRetries {
		retryTypes = append(retryTypes, t)
	}
	sort.Strings(retryTypes)
	for _, t := range retryTypes {
		fmt.Fprintf(&b, "mixdown_job_retries_total{type=\"%s\"} %d\n", t, jobRetries[t])
	}

	// Process supervisor metrics
	b.WriteString("# HELP mixdown_processes_started_total Child processes spawned per tool\n")
	b.WriteString("# TYPE mixdown_processes_started_total counter\n")

	var tools []string
	for t := range processesStarted {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	for _, t := range tools {
		fmt.Fprintf(&b, "mixdown_processes_started_total{tool=\"%s\"} %d\n", t, processesStarted[t])
	}

	b.WriteString("# HELP mixdown_processes_exited_total Child processes exited per tool and outcome\n")
	b.WriteString("# TYPE mixdown_processes_exited_total counter\n")

	var procKeys []procKey
	for k := range processesExited {
		procKeys = append(procKeys, k)
	}
	sort.Slice(procKeys, func(i, j int) bool {
		if procKeys[i].Tool != procKeys[j].Tool {
			return procKeys[i].Tool < procKeys[j].Tool
		}
		return procKeys[i].Success < procKeys[j].Success
	})
	for _, k := range procKeys {
		fmt.Fprintf(&b, "mixdown_processes_exited_total{tool=\"%s\",success=\"%s\"} %d\n",
			k.Tool, k.Success, processesExited[k])
	}

	// Retention metrics
	b.WriteString("# HELP mixdown_retention_jobs_deleted_total Total jobs deleted by TTL\n")
	b.WriteString("# TYPE mixdown_retention_jobs_deleted_total counter\n")

	var jobTypes []string
	for t := range retentionJobsDeleted {
		jobTypes = append(jobTypes, t)
	}
	sort.Strings(jobTypes)
	for _, t := range jobTypes {
		fmt.Fprintf(&b, "mixdown_retention_jobs_deleted_total{job_type=\"%s\"} %d\n",
			t, retentionJobsDeleted[t])
	}

	return b.String()
}
