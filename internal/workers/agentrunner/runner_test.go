package agentrunner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yarad/internal/domain"
)

func TestBuildReportSatisfiesContract(t *testing.T) {
	job := domain.AvailableJob{ID: 9, FilesetScan: json.RawMessage(`{"paths":["/data"]}`)}
	started := time.Now().Add(-3 * time.Second)

	report := BuildReport(job, started, ScanResult{
		YaraResults:  "hits",
		Hashes:       []string{"aaa", "bbb"},
		MatchedFiles: 2,
	})

	require.NoError(t, report.Validate())
	assert.Equal(t, int64(9), *report.JobID)
	assert.GreaterOrEqual(t, *report.ExecutionTime, 3.0)

	hashes, err := report.Hashes()
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, hashes)
}

func TestBuildReportFillsAbsentLists(t *testing.T) {
	// The dispatcher rejects absent lists; a clean run must still send
	// empty ones.
	report := BuildReport(domain.AvailableJob{ID: 1, FilesetScan: json.RawMessage(`{}`)},
		time.Now(), ScanResult{})
	require.NoError(t, report.Validate())
	assert.Empty(t, report.YaraErrors)
	assert.Empty(t, report.YaraWarnings)
	assert.Equal(t, "[]", *report.MD5Results)
}

func TestClientClaimOutcomes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent/jobs/1/claim", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-one", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "rules": "rule r {}"})
	})
	mux.HandleFunc("/api/agent/jobs/2/claim", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "rejected"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewClient(ts.URL, "token-one")
	ctx := context.Background()

	accepted, rules, err := client.Claim(ctx, 1)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, []byte("rule r {}"), rules)

	accepted, rules, err = client.Claim(ctx, 2)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Nil(t, rules)
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not authorized"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "revoked")
	_, err := client.ListJobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}
