package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/twinfleet/internal/adapters/observability"
	"github.com/ghalamif/twinfleet/internal/adapters/store"
	"github.com/ghalamif/twinfleet/internal/app/advisor"
	"github.com/ghalamif/twinfleet/internal/app/config"
	"github.com/ghalamif/twinfleet/internal/app/fleet"
	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/twin"
)

func newTestServer(t *testing.T) (*httptest.Server, *fleet.Controller) {
	t.Helper()
	efficiency := 0.9
	units, err := fleet.BuildUnits(
		[]config.EquipmentConfig{{
			ID: "M1", Name: "Motor", MaxCapacity: 100, Efficiency: &efficiency, Temperature: 30,
			OperatingRange: twin.TempRange{Low: 0, High: 100}, FailureTypes: []string{"bearing"}, MaxSpeed: 3000,
		}},
		[]config.SensorConfig{{ID: "M1-T", EquipmentID: "M1", Min: 0, Max: 100}},
		1, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	obs := observability.NewPromObs(reg, nil)
	adv, err := advisor.New([]advisor.Point{{Time: 0, Value: 100}, {Time: 1, Value: 100}})
	require.NoError(t, err)

	c, err := fleet.New(units, store.NewMemoryStore(), adv, nil, obs, fleet.Options{})
	require.NoError(t, err)
	require.NoError(t, c.RunIterations(context.Background(), 3))

	srv := httptest.NewServer(NewRouter(NewHandler(c, obs), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	t.Cleanup(srv.Close)
	return srv, c
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv, c := newTestServer(t)
	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, c.RunID(), body["run_id"])
	assert.Equal(t, float64(3), body["iteration"])
}

func TestListAndGetEquipment(t *testing.T) {
	srv, _ := newTestServer(t)

	var list []equipmentView
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/equipment", &list))
	require.Len(t, list, 1)
	assert.Equal(t, "M1", list[0].ID)
	assert.Equal(t, []string{"M1-T"}, list[0].Sensors)
	assert.Equal(t, 3, list[0].OperationalTicks)

	var detail equipmentDetail
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/equipment/M1", &detail))
	assert.Equal(t, "Motor", detail.Name)
	assert.Equal(t, "M1", detail.Lifecycle.EquipmentID)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/equipment/nope", nil))
}

func TestListSnapshotsAndReadings(t *testing.T) {
	srv, _ := newTestServer(t)

	var snaps []domain.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/equipment/M1/snapshots?limit=2", &snaps))
	assert.Len(t, snaps, 2)

	var readings []domain.Reading
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/sensors/M1-T/readings", &readings))
	assert.Len(t, readings, 3)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/sensors/M1-T/readings?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/equipment/M1/snapshots?limit=x", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/sensors/ghost/readings", nil))
}

func TestSetSpeed(t *testing.T) {
	srv, c := newTestServer(t)

	resp := post(t, srv.URL+"/api/equipment/M1/speed", `{"rpm": 1500}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u, _ := c.Unit("M1")
	assert.Equal(t, 1500.0, u.Equipment.PerformanceSummary().CurrentSpeed)

	resp = post(t, srv.URL+"/api/equipment/M1/speed", `{"rpm": 5000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, 1500.0, u.Equipment.PerformanceSummary().CurrentSpeed, "rejected command leaves speed unchanged")

	resp = post(t, srv.URL+"/api/equipment/M1/speed", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/api/equipment/X/speed", `{"rpm": 1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMaintenance(t *testing.T) {
	srv, c := newTestServer(t)

	resp := post(t, srv.URL+"/api/equipment/M1/maintenance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u, _ := c.Unit("M1")
	assert.Equal(t, 1.0, u.Equipment.Efficiency())

	resp = post(t, srv.URL+"/api/equipment/X/maintenance", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLifecycleRoutes(t *testing.T) {
	srv, c := newTestServer(t)
	u, _ := c.Unit("M1")

	var detail struct {
		Lifecycle twin.LifecycleSummary `json:"lifecycle"`
		Events    []domain.Event        `json:"events"`
	}
	decode := func(resp *http.Response) {
		t.Helper()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	}

	resp := post(t, srv.URL+"/api/equipment/M1/upgrades", `{"kind": "firmware 2.1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(resp)
	require.Len(t, detail.Lifecycle.Upgrades, 1)
	assert.Equal(t, "firmware 2.1", detail.Lifecycle.Upgrades[0].What)

	resp = post(t, srv.URL+"/api/equipment/M1/replacements", `{"part": "bearing"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(resp)
	require.Len(t, detail.Lifecycle.Replacements, 1)

	require.Equal(t, 3, u.Equipment.PerformanceSummary().OperationalTicks)
	resp = post(t, srv.URL+"/api/equipment/M1/lifecycle/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, u.Equipment.PerformanceSummary().OperationalTicks)

	resp = post(t, srv.URL+"/api/equipment/M1/decommission", `{"reason": "end of service"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(resp)
	require.NotNil(t, detail.Lifecycle.DecommissionedAt)
	last := detail.Events[len(detail.Events)-1]
	assert.Equal(t, domain.EventDecommission, last.Kind)

	resp = post(t, srv.URL+"/api/equipment/M1/upgrades", `{"kind": "late"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = post(t, srv.URL+"/api/equipment/M1/decommission", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLifecycleRoutesRejectBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/api/equipment/M1/upgrades", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, srv.URL+"/api/equipment/M1/replacements", `{"part": ""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, srv.URL+"/api/equipment/M1/upgrades", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, srv.URL+"/api/equipment/X/decommission", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, _ = io.Copy(buf, resp.Body)
	assert.Contains(t, buf.String(), "twinfleet_ticks_total 3")
}
