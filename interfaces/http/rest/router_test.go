package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	appsync "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/sync"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/services"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/infrastructure/persistence/memory"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/http/rest/handlers"
	ws "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/interfaces/websocket"
)

// recordingBroadcaster captures the events the handlers fan out.
type recordingBroadcaster struct {
	events []ports.OutboundEvent
}

func (b *recordingBroadcaster) BroadcastOperation(mapID, originClientID string, event ports.OutboundEvent) {
	b.events = append(b.events, event)
}

type apiFixture struct {
	handler     http.Handler
	broadcaster *recordingBroadcaster
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()
	repo := memory.NewMapStore()
	opLog := memory.NewOperationLog()
	locks := appsync.NewLockRegistry()

	engine := appsync.NewMergeEngine(repo, opLog, services.NewGraphChecker(), locks, mindmap.DefaultLimits(), logger, nil)
	rollback := appsync.NewRollbackEngine(repo, opLog, locks, logger, nil)
	service := appsync.NewSyncService(repo, opLog, locks, logger)

	broadcaster := &recordingBroadcaster{}
	hub := ws.NewHub(logger, nil)
	wsServer := ws.NewServer(hub, engine, service, nil, true, logger)

	handler := NewRouter(RouterConfig{
		MapHandler:       handlers.NewMapHandler(service, logger),
		OperationHandler: handlers.NewOperationHandler(engine, rollback, broadcaster, logger),
		WSServer:         wsServer,
		JWTService:       nil,
		AllowAnon:        true,
		EnableCORS:       true,
		EnableMetrics:    false,
		Logger:           logger,
	})
	return &apiFixture{handler: handler, broadcaster: broadcaster}
}

func (f *apiFixture) do(t *testing.T, method, path, clientID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) createMap(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/maps", "alice", map[string]string{"name": "Test Map"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m mindmap.MindMap
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m.ID
}

func (f *apiFixture) submit(t *testing.T, mapID, clientID string, c clock.Clock, opType string, node *mindmap.NodePayload, edge *mindmap.EdgePayload) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/v1/operations", clientID, map[string]interface{}{
		"mapId": mapID,
		"type":  opType,
		"clock": c,
		"node":  node,
		"edge":  edge,
	})
}

func TestAPIRequiresSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/maps", "", map[string]string{"name": "x"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPICreateMapValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/maps", "alice", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPISubmitOperationAndSnapshot(t *testing.T) {
	f := newAPIFixture(t)
	mapID := f.createMap(t)

	rec := f.submit(t, mapID, "alice", clock.New().Tick("alice"), "ADD_NODE",
		&mindmap.NodePayload{NodeID: "n1", Label: "Idea", X: 10, Y: 20}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res mindmap.MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(1), res.Seq)

	// The accepted operation was fanned out to map subscribers.
	require.Len(t, f.broadcaster.events, 1)
	assert.Equal(t, ports.EventOperationApplied, f.broadcaster.events[0].Type)

	snap := f.do(t, http.MethodGet, "/api/v1/maps/"+mapID+"/snapshot", "bob", nil)
	require.Equal(t, http.StatusOK, snap.Code)
	var snapshot appsync.MapSnapshot
	require.NoError(t, json.Unmarshal(snap.Body.Bytes(), &snapshot))
	assert.Len(t, snapshot.Nodes, 1)
	assert.Equal(t, int64(1), snapshot.Seq)
}

func TestAPIRejectionIsConflictStatus(t *testing.T) {
	f := newAPIFixture(t)
	mapID := f.createMap(t)

	c := clock.New().Tick("alice")
	rec := f.submit(t, mapID, "alice", c, "ADD_NODE", &mindmap.NodePayload{NodeID: "n1", Label: "a"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same ID again at a newer clock: already_exists.
	rec = f.submit(t, mapID, "alice", c.Tick("alice"), "ADD_NODE", &mindmap.NodePayload{NodeID: "n1", Label: "b"}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	var res mindmap.MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Accepted)
	assert.Equal(t, mindmap.ReasonAlreadyExists, res.Reason)
}

func TestAPIRollbackFlow(t *testing.T) {
	f := newAPIFixture(t)
	mapID := f.createMap(t)

	rec := f.submit(t, mapID, "alice", clock.New().Tick("alice"), "ADD_NODE",
		&mindmap.NodePayload{NodeID: "n1", Label: "Idea"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res mindmap.MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	ops := f.do(t, http.MethodGet, "/api/v1/maps/"+mapID+"/operations?since=0", "admin", nil)
	require.Equal(t, http.StatusOK, ops.Code)
	var feed struct {
		Operations []*mindmap.Record `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(ops.Body.Bytes(), &feed))
	require.Len(t, feed.Operations, 1)
	opID := feed.Operations[0].ID

	rb := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/operations/%s/rollback", opID), "admin", nil)
	require.Equal(t, http.StatusOK, rb.Code, rb.Body.String())

	got := f.do(t, http.MethodGet, "/api/v1/operations/"+opID, "admin", nil)
	require.Equal(t, http.StatusOK, got.Code)
	var record mindmap.Record
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &record))
	assert.Equal(t, mindmap.StatusRolledBack, record.Status)

	// Second rollback of the same operation is refused.
	rb = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/operations/%s/rollback", opID), "admin", nil)
	assert.Equal(t, http.StatusConflict, rb.Code)

	// Unknown operation is not found.
	rb = f.do(t, http.MethodPost, "/api/v1/operations/ghost/rollback", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rb.Code)

	snap := f.do(t, http.MethodGet, "/api/v1/maps/"+mapID+"/snapshot", "admin", nil)
	var snapshot appsync.MapSnapshot
	require.NoError(t, json.Unmarshal(snap.Body.Bytes(), &snapshot))
	assert.Empty(t, snapshot.Nodes)
}

func TestAPIHistoryAndConflicts(t *testing.T) {
	f := newAPIFixture(t)
	mapID := f.createMap(t)

	base := clock.New().Tick("alice")
	rec := f.submit(t, mapID, "alice", base, "ADD_NODE", &mindmap.NodePayload{NodeID: "n1", Label: "a"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// bob moves concurrently with alice's original clock.
	rec = f.submit(t, mapID, "bob", clock.New().Tick("bob"), "MOVE_NODE", &mindmap.NodePayload{NodeID: "n1", X: 5, Y: 5}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	hist := f.do(t, http.MethodGet, "/api/v1/maps/"+mapID+"/history?limit=10", "admin", nil)
	require.Equal(t, http.StatusOK, hist.Code)
	var feed struct {
		Operations []*mindmap.Record `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(hist.Body.Bytes(), &feed))
	require.Len(t, feed.Operations, 2)
	assert.Equal(t, int64(2), feed.Operations[0].Seq, "history is newest-first")

	conf := f.do(t, http.MethodGet, "/api/v1/maps/"+mapID+"/conflicts", "admin", nil)
	require.Equal(t, http.StatusOK, conf.Code)
	var conflicts struct {
		Conflicts []*mindmap.Record `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(conf.Body.Bytes(), &conflicts))
	require.Len(t, conflicts.Conflicts, 1)
	assert.Equal(t, mindmap.OpMoveNode, conflicts.Conflicts[0].Type)
}

func TestAPIHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestAPIUnknownMap(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/maps/ghost/snapshot", "alice", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
