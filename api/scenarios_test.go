package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/generic"
)

func TestScenarios_EveryScenarioLoads(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			_, router := newTestServer(t, RouterOptions{EnableScenarios: true})
			c := client{t: t, router: router}

			rec := c.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			current := decode[ScenarioDTO](t, c.do(http.MethodGet, "/api/scenarios/current", nil))
			assert.Equal(t, sc.ID, current.ID)
		})
	}
}

func TestScenarios_OvertimeVetoEndsRejectedThenRefiled(t *testing.T) {
	_, router := newTestServer(t, RouterOptions{EnableScenarios: true})
	c := client{t: t, router: router}

	rec := c.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "overtime-veto"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	all := decode[[]OvertimeDTO](t, c.do(http.MethodGet, "/api/overtime?employee_id=emp-ben", nil))
	require.Len(t, all, 2)
	assert.Equal(t, generic.StatusRejected, all[0].Status)
	assert.Equal(t, generic.DecisionApproved, all[0].Manager.Decision)
	assert.Equal(t, generic.StatusPending, all[1].Status)
	assert.Equal(t, all[0].ID, all[1].SupersedesID)
}

func TestScenarios_LoadingResetsPreviousData(t *testing.T) {
	_, router := newTestServer(t, RouterOptions{EnableScenarios: true})
	c := client{t: t, router: router}

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "shift-change"}).Code)
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "leave-breakdown"}).Code)

	changes := decode[[]ShiftChangeDTO](t, c.do(http.MethodGet, "/api/shift-changes", nil))
	assert.Empty(t, changes)

	shifts := decode[[]map[string]any](t, c.do(http.MethodGet, "/api/shifts", nil))
	assert.Len(t, shifts, 2)
}

func TestScenarios_UnknownIDIsRejected(t *testing.T) {
	_, router := newTestServer(t, RouterOptions{EnableScenarios: true})
	c := client{t: t, router: router}

	rec := c.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestScenarios_DisabledRoutesAre404(t *testing.T) {
	h, router := newTestServer(t, RouterOptions{})
	c := client{t: t, router: router}
	entry := createEntry(t, c, lateEntryBody("emp-1"))

	// WHEN: scenario routes are off, as in production
	rec := c.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "leave-breakdown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/scenarios", nil).Code)

	// THEN: existing data is untouched
	_, err := h.Entries.Get(context.Background(), generic.TimeEntryID(entry.ID))
	assert.NoError(t, err)
}
