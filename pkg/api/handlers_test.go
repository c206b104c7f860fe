package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripnara/readiness/pkg/api"
	"github.com/tripnara/readiness/pkg/condition"
	"github.com/tripnara/readiness/pkg/engine"
	"github.com/tripnara/readiness/pkg/evidence"
	"github.com/tripnara/readiness/pkg/pack"
	"github.com/tripnara/readiness/pkg/readiness"
	"github.com/tripnara/readiness/pkg/repair"
	"github.com/tripnara/readiness/pkg/trip"
)

const tripJSON = `{
  "tripId": "trip-1",
  "destinationId": "IS-1",
  "startDate": "2026-01-10T00:00:00Z",
  "endDate": "2026-01-13T00:00:00Z",
  "routeLengthKm": 280,
  "geo": {"lat": 64.1, "inMountain": true, "roadDensityScore": 0.2, "supplyDensity": 0.1}
}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	var tc trip.Context
	require.NoError(t, json.Unmarshal([]byte(tripJSON), &tc))
	repo := trip.NewMemoryRepository()
	require.NoError(t, repo.SaveTripContext(context.Background(), tc))

	ev, err := condition.NewEvaluator()
	require.NoError(t, err)
	packs, err := pack.LoadBuiltin(ev)
	require.NoError(t, err)
	reg, err := pack.NewRegistry(packs...)
	require.NoError(t, err)
	svc, err := engine.New(engine.Options{Repository: repo, Packs: reg, PackEngine: pack.NewEngine(ev)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	ts := httptest.NewServer(api.RequestID(api.NewHandler(svc).Routes()))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHandlers_EvaluateAndRepair(t *testing.T) {
	ts := newServer(t)

	var result engine.ReadinessResult
	resp := do(t, ts, "GET", "/trips/trip-1/readiness", "", &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, readiness.StatusNotReady, result.Status)
	require.Len(t, result.Blockers, 1)
	blockerID := result.Blockers[0].ID

	var wf repair.Workflow
	resp = do(t, ts, "POST", "/trips/trip-1/readiness/repair/select", `{"blockerId":"`+blockerID+`"}`, &wf)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, repair.StateOptionsLoaded, wf.State)

	var applied repair.ApplyResult
	optionID := repair.OptionID(blockerID, repair.ActionAlternateRoute)
	body := `{"blockerId":"` + blockerID + `","optionId":"` + optionID + `"}`
	resp = do(t, ts, "POST", "/trips/trip-1/readiness/repair/apply", body, &applied)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, readiness.StatusNearly, applied.Record.StatusAfter)

	var replayed repair.ApplyResult
	resp = do(t, ts, "POST", "/trips/trip-1/readiness/repair/apply", body, &replayed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, replayed.Replayed)

	var state repair.Workflow
	resp = do(t, ts, "GET", "/trips/trip-1/readiness/repair", "", &state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, repair.StateIdle, state.State)
}

func TestHandlers_Errors(t *testing.T) {
	ts := newServer(t)

	var problem api.ProblemDetail
	resp := do(t, ts, "GET", "/trips/missing/readiness", "", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, problem.TraceID)

	resp = do(t, ts, "POST", "/trips/trip-1/readiness/repair/apply", `{"blockerId":"b","optionId":"x"}`, &problem)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "apply before select")

	resp = do(t, ts, "POST", "/trips/trip-1/readiness/repair/apply", `{"optionId":"x"}`, &problem)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, problem.Detail, "blockerId")

	resp = do(t, ts, "GET", "/readiness/capability-packs/tides", "", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, ts, "POST", "/trips/missing/readiness/repair/auto", "", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, ts, "POST", "/trips/trip-1/readiness/repair/select", `{"nope":1}`, &problem)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts, "POST", "/readiness/capability-packs/evaluate",
		`{"tripId":"t","destinationId":"IS","startDate":"2026-01-10T00:00:00Z","endDate":"2026-01-01T00:00:00Z"}`, &problem)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, problem.Fields)

	resp = do(t, ts, "POST", "/trips/trip-1/evidence/fetch", `{"evidenceTypes":["tides"],"targetIds":["a"]}`, &problem)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, ts, "GET", "/reports/sha256:00", "", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "archive disabled")
}

func TestHandlers_Catalogue(t *testing.T) {
	ts := newServer(t)

	var list struct {
		Packs []pack.Info `json:"packs"`
	}
	resp := do(t, ts, "GET", "/readiness/capability-packs", "", &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list.Packs, 6)

	var one pack.Info
	resp = do(t, ts, "GET", "/readiness/capability-packs/sparse_supply", "", &one)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, one.RuleCount)
	assert.Contains(t, one.Fields, "hasFuel")

	var summary pack.Summary
	resp = do(t, ts, "POST", "/readiness/capability-packs/evaluate", tripJSON, &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, summary.Triggered)

	var checklist readiness.Checklist
	resp = do(t, ts, "GET", "/trips/trip-1/readiness/checklist", "", &checklist)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, checklist.Summary.Blocker)

	var risks readiness.RiskSummary
	resp = do(t, ts, "GET", "/trips/trip-1/readiness/risks", "", &risks)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, risks.TotalRisks)
}

func TestHandlers_EvidenceLifecycle(t *testing.T) {
	ts := newServer(t)

	var task evidence.Task
	resp := do(t, ts, "POST", "/trips/trip-1/evidence/fetch",
		`{"evidenceTypes":["weather"],"targetIds":["poi-1","poi-2"],"async":true}`, &task)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "/evidence/tasks/"+task.TaskID, resp.Header.Get("Location"))

	deadline := time.Now().Add(5 * time.Second)
	for {
		var snap evidence.Task
		r := do(t, ts, "GET", "/evidence/tasks/"+task.TaskID, "", &snap)
		require.Equal(t, http.StatusOK, r.StatusCode)
		if snap.Status.Terminal() {
			break
		}
		require.True(t, time.Now().Before(deadline), "task did not finish")
		time.Sleep(20 * time.Millisecond)
	}

	var cancelled evidence.Task
	resp = do(t, ts, "POST", "/evidence/tasks/"+task.TaskID+"/cancel", "", &cancelled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, evidence.StatusCompleted, cancelled.Status)

	resp = do(t, ts, "DELETE", "/evidence/tasks/"+task.TaskID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var persisted evidence.Task
	resp = do(t, ts, "GET", "/evidence/tasks/"+task.TaskID, "", &persisted)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "disposed tasks are served from the store")
	assert.Equal(t, evidence.StatusCompleted, persisted.Status)

	var problem api.ProblemDetail
	resp = do(t, ts, "GET", "/evidence/tasks/unknown", "", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlers_AutoRepairAndRefresh(t *testing.T) {
	ts := newServer(t)

	var auto repair.AutoRepairResult
	resp := do(t, ts, "POST", "/trips/trip-1/readiness/repair/auto", "", &auto)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, auto.Applied, 1)
	assert.Equal(t, readiness.StatusNotReady, auto.StatusBefore)
	assert.Equal(t, readiness.StatusNearly, auto.StatusAfter)

	var task evidence.Task
	resp = do(t, ts, "POST", "/trips/trip-1/evidence/refresh", "", &task)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "/evidence/tasks/"+task.TaskID, resp.Header.Get("Location"))
	assert.Equal(t, "trip-1", task.TripID)

	resp = do(t, ts, "POST", "/trips/trip-1/evidence/refresh", `{"evidenceId":"poi-9"}`, &task)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, task.Progress.Total)
}
