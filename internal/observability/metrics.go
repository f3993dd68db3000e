package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	projectAPIRequestsTotal  *prometheus.CounterVec
	projectAPILatencySeconds *prometheus.HistogramVec

	gradesPostedTotal         *prometheus.CounterVec
	completionsPublishedTotal *prometheus.CounterVec
	submissionsUploadedTotal  *prometheus.CounterVec
	eventsEmittedTotal        *prometheus.CounterVec
	workgroupLookupsTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groupwork_http_latency_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_http_errors_total",
			Help: "Total number of error responses.",
		}, []string{"method", "route", "status"})

		projectAPIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_project_api_requests_total",
			Help: "Outbound calls to the project service.",
		}, []string{"method", "endpoint", "status"})

		projectAPILatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groupwork_project_api_latency_seconds",
			Help:    "Latency of outbound project service calls.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
		}, []string{"method", "endpoint"})

		gradesPostedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_grades_posted_total",
			Help: "Activity grades posted for workgroups.",
		}, []string{"result"})

		completionsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_completions_published_total",
			Help: "Completion records published to the project service.",
		}, []string{"result"})

		submissionsUploadedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_submissions_uploaded_total",
			Help: "Submission uploads processed.",
		}, []string{"result"})

		eventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_events_emitted_total",
			Help: "Host and analytics events emitted.",
		}, []string{"event", "sink"})

		workgroupLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupwork_workgroup_lookups_total",
			Help: "Workgroup resolutions split by cache outcome.",
		}, []string{"result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			projectAPIRequestsTotal,
			projectAPILatencySeconds,
			gradesPostedTotal,
			completionsPublishedTotal,
			submissionsUploadedTotal,
			eventsEmittedTotal,
			workgroupLookupsTotal,
		)
	})
}

// HTTPRequests exposes the counter for served requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for served requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func ProjectAPIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return projectAPIRequestsTotal
}

func ProjectAPILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return projectAPILatencySeconds
}

func GradesPosted() *prometheus.CounterVec {
	RegisterMetrics()
	return gradesPostedTotal
}

func CompletionsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return completionsPublishedTotal
}

func SubmissionsUploaded() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsUploadedTotal
}

func EventsEmitted() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsEmittedTotal
}

func WorkgroupLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return workgroupLookupsTotal
}
