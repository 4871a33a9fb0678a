//go:build e2e
// +build e2e

package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/middleware"
	"github.com/estately/priceuq/internal/testutil"
)

// E2ETestSuite runs end-to-end API tests against a running server and worker
type E2ETestSuite struct {
	suite.Suite
	baseURL string
	token   string
	client  *http.Client

	// runID is a run trained once in SetupSuite and shared by inference tests
	runID   string
	dataset domain.FrameData
}

func TestE2ESuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	suite.Run(t, new(E2ETestSuite))
}

func (s *E2ETestSuite) SetupSuite() {
	s.baseURL = os.Getenv("PRICEUQ_API_URL")
	if s.baseURL == "" {
		s.baseURL = "http://localhost:8080"
	}

	s.token = os.Getenv("PRICEUQ_TOKEN")
	if s.token == "" {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			secret = "change-me-in-production"
		}
		token, err := middleware.NewAuthMiddleware(config.JWTConfig{Secret: secret, Issuer: "priceuq"}).IssueToken("e2e", time.Hour)
		require.NoError(s.T(), err)
		s.token = token
	}

	s.client = &http.Client{
		Timeout: 60 * time.Second,
	}

	// Wait for API to be ready
	s.waitForAPI()

	frame, _ := testutil.LinearFrame(240, 0.01, 5)
	s.dataset = frame.Data()
	s.runID = s.trainRun("e2e-shared")
}

func (s *E2ETestSuite) waitForAPI() {
	maxAttempts := 30
	for i := 0; i < maxAttempts; i++ {
		resp, err := s.client.Get(s.baseURL + "/health/ready")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(1 * time.Second)
	}
	s.T().Fatal("API failed to become ready within timeout")
}

// ============ HELPER METHODS ============

func (s *E2ETestSuite) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	return s.client.Do(req)
}

func (s *E2ETestSuite) parseResponse(resp *http.Response, v any) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	if v != nil {
		err = json.Unmarshal(body, v)
		require.NoError(s.T(), err, "Failed to parse response: %s", string(body))
	}
}

// trainRun creates a run over the shared dataset and waits for it to finish
func (s *E2ETestSuite) trainRun(name string) string {
	resp, err := s.doRequest("POST", "/v1/runs", map[string]any{
		"name":    name,
		"dataset": s.dataset,
		"options": map[string]any{"maxEpochs": 20, "hiddenLayers": []int{16, 8}},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusAccepted, resp.StatusCode)

	var run domain.TrainingRun
	s.parseResponse(resp, &run)
	require.Equal(s.T(), domain.RunStatusPending, run.Status)

	deadline := time.Now().Add(3 * time.Minute)
	for time.Now().Before(deadline) {
		resp, err := s.doRequest("GET", "/v1/runs/"+run.ID.String(), nil)
		require.NoError(s.T(), err)
		var got domain.TrainingRun
		s.parseResponse(resp, &got)
		switch got.Status {
		case domain.RunStatusCompleted:
			return got.ID.String()
		case domain.RunStatusFailed:
			s.T().Fatalf("run failed: %s", got.Error)
		}
		time.Sleep(2 * time.Second)
	}
	s.T().Fatal("run did not finish in time")
	return ""
}

// ============ HEALTH CHECK TESTS ============

func (s *E2ETestSuite) TestHealthEndpoint() {
	resp, err := s.client.Get(s.baseURL + "/health")
	require.NoError(s.T(), err)

	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var result struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	s.parseResponse(resp, &result)
	assert.Equal(s.T(), "healthy", result.Status)
	for _, dep := range []string{"postgres", "clickhouse", "redis", "minio"} {
		assert.Equal(s.T(), "healthy", result.Checks[dep], dep)
	}
}

func (s *E2ETestSuite) TestMetricsAndDocs() {
	resp, err := s.client.Get(s.baseURL + "/metrics")
	require.NoError(s.T(), err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(s.T(), string(body), "priceuq_http_requests_total")

	resp, err = s.client.Get(s.baseURL + "/openapi.json")
	require.NoError(s.T(), err)
	var doc map[string]any
	s.parseResponse(resp, &doc)
	assert.Equal(s.T(), "3.0.3", doc["openapi"])
}

// ============ AUTH TESTS ============

func (s *E2ETestSuite) TestWritesRequireOperator() {
	resp, err := s.client.Post(s.baseURL+"/v1/runs", "application/json", strings.NewReader(`{}`))
	require.NoError(s.T(), err)
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	resp, err = s.client.Get(s.baseURL + "/v1/runs/" + s.runID)
	require.NoError(s.T(), err)
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
}

// ============ RUN TESTS ============

func (s *E2ETestSuite) TestRunListing() {
	resp, err := s.doRequest("GET", "/v1/runs?status=completed&limit=100", nil)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var list domain.RunList
	s.parseResponse(resp, &list)
	var found bool
	for _, run := range list.Runs {
		assert.Equal(s.T(), domain.RunStatusCompleted, run.Status)
		if run.ID.String() == s.runID {
			found = true
			require.NotNil(s.T(), run.Metrics)
			assert.Greater(s.T(), run.Metrics.RSquared, 0.5)
		}
	}
	assert.True(s.T(), found)
}

func (s *E2ETestSuite) TestRunValidation() {
	resp, err := s.doRequest("POST", "/v1/runs", map[string]any{
		"name":    "no-targets",
		"dataset": domain.FrameData{Features: s.dataset.Features, Rows: s.dataset.Rows[:10]},
	})
	require.NoError(s.T(), err)
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *E2ETestSuite) TestEventsOfFinishedRun() {
	resp, err := s.client.Get(s.baseURL + "/v1/runs/" + s.runID + "/events")
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	assert.Equal(s.T(), "text/event-stream", resp.Header.Get("Content-Type"))

	// A finished run yields its status snapshot and the stream closes.
	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	assert.Equal(s.T(), []string{domain.RunEventStatus}, events)
}

// ============ INFERENCE TESTS ============

func (s *E2ETestSuite) TestPredict() {
	batch := domain.FrameData{Features: s.dataset.Features, Rows: s.dataset.Rows[:20], Targets: s.dataset.Targets[:20]}
	resp, err := s.doRequest("POST", "/v1/runs/"+s.runID+"/predict", map[string]any{"batch": batch, "persist": true})
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var result struct {
		Report domain.UncertaintyReport `json:"report"`
	}
	s.parseResponse(resp, &result)
	require.Len(s.T(), result.Report.Records, 20)
	require.NotNil(s.T(), result.Report.Coverage)
	for _, r := range result.Report.Records {
		assert.Greater(s.T(), r.PredictedPrice, 0.0)
		assert.LessOrEqual(s.T(), r.IntervalLower, r.PredictedPrice)
	}
}

func (s *E2ETestSuite) TestPredictSchemaMismatch() {
	batch := domain.FrameData{Features: []string{"sqft_z", "age_z"}, Rows: [][]float64{{1, 2}}}
	resp, err := s.doRequest("POST", "/v1/runs/"+s.runID+"/predict", map[string]any{"batch": batch})
	require.NoError(s.T(), err)
	resp.Body.Close()
	assert.Equal(s.T(), http.StatusUnprocessableEntity, resp.StatusCode)
}

func (s *E2ETestSuite) TestExplainInlineAndQueued() {
	queries := domain.FrameData{Features: s.dataset.Features, Rows: s.dataset.Rows[:2]}
	body := map[string]any{"target": "aleatoric_std", "queries": queries, "nSamples": 30}

	resp, err := s.doRequest("POST", "/v1/runs/"+s.runID+"/explain", body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	var inline struct {
		Records []domain.AttributionRecord `json:"records"`
	}
	s.parseResponse(resp, &inline)
	require.Len(s.T(), inline.Records, 2)
	for _, rec := range inline.Records {
		assert.InDelta(s.T(), rec.Output, rec.Total(), 1e-6)
	}

	resp, err = s.doRequest("POST", "/v1/runs/"+s.runID+"/explain?async=true", body)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusAccepted, resp.StatusCode)
	var queued struct {
		JobID string `json:"jobId"`
	}
	s.parseResponse(resp, &queued)

	deadline := time.Now().Add(time.Minute)
	for time.Now().Before(deadline) {
		resp, err := s.doRequest("GET", "/v1/runs/"+s.runID+"/explain/"+queued.JobID, nil)
		require.NoError(s.T(), err)
		if resp.StatusCode == http.StatusOK {
			var job struct {
				Records []domain.AttributionRecord `json:"records"`
			}
			s.parseResponse(resp, &job)
			assert.Len(s.T(), job.Records, 2)
			return
		}
		resp.Body.Close()
		time.Sleep(time.Second)
	}
	s.T().Fatal("queued explanation did not finish in time")
}

func (s *E2ETestSuite) TestReportExport() {
	resp, err := s.doRequest("POST", "/v1/runs/"+s.runID+"/report/export", nil)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var result struct {
		Key string `json:"key"`
	}
	s.parseResponse(resp, &result)
	assert.Contains(s.T(), result.Key, time.Now().UTC().Format(time.DateOnly))
}

// ============ NEIGHBORHOOD TESTS ============

func (s *E2ETestSuite) TestNeighborhoodImportAndLookup() {
	doc := "```json\n" + `{"mappings": [{"original_name": "Mott Haven", "sub_region": "Bronx", "affluence_score": 3}]}` + "\n```"
	req, err := http.NewRequest("POST", s.baseURL+"/v1/neighborhoods", strings.NewReader(doc))
	require.NoError(s.T(), err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := s.client.Do(req)
	require.NoError(s.T(), err)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	resp, err = s.doRequest("GET", "/v1/neighborhoods?name="+url.QueryEscape("Mott Haven"), nil)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	var profile domain.NeighborhoodProfile
	s.parseResponse(resp, &profile)
	assert.Equal(s.T(), domain.SubRegionBronx, profile.SubRegion)
	assert.Equal(s.T(), 3, profile.Affluence)
}
