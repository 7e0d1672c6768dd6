package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipeo/dipeo/internal/domain"
	"github.com/dipeo/dipeo/internal/engine"
	"github.com/dipeo/dipeo/internal/eventbus"
	"github.com/dipeo/dipeo/internal/handler"
)

// passthroughHandler returns whatever default input it was given, standing
// in for a real node type so these tests exercise routing and scheduling
// rather than any particular handler's domain logic.
type passthroughHandler struct{}

func (passthroughHandler) Execute(ctx context.Context, req handler.Request) (domain.Envelope, error) {
	if env, ok := req.DefaultInput(); ok {
		env.ProducedBy = req.Node.ID
		return env, nil
	}
	return domain.NewObjectEnvelope(req.Node.ID, req.ExecutionID, map[string]any{}), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := handler.NewRegistry()
	reg.Register(domain.NodeTypeStart, passthroughHandler{})
	reg.Register(domain.NodeTypeCode, passthroughHandler{})
	reg.Register(domain.NodeTypeEndpoint, passthroughHandler{})

	eng := engine.New(reg, eventbus.NullBus{}, nil, engine.DefaultConfig())
	return NewServer(eng, nil, zerolog.Nop())
}

const validLightDiagram = `
version: light
nodes:
  - label: Start
    type: start
    position: {x: 0, y: 0}
  - label: Work
    type: code
    position: {x: 100, y: 0}
    language: python
    code: "pass"
  - label: Finish
    type: endpoint
    position: {x: 200, y: 0}
connections:
  - from: Start
    to: Work
  - from: Work
    to: Finish
`

func TestHandleTriggerExecution_ShouldReturnAccepted_WhenDiagramCompiles(t *testing.T) {
	s := newTestServer(t)

	body := triggerRequest{DiagramID: "pipeline", Diagram: validLightDiagram}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp triggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ExecutionID)
	assert.Equal(t, "running", resp.Status)
}

func TestHandleTriggerExecution_ShouldReturnBadRequest_WhenDiagramIDMissing(t *testing.T) {
	s := newTestServer(t)

	body := triggerRequest{Diagram: validLightDiagram}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTriggerExecution_ShouldReturnBadRequest_WhenConnectionReferencesUnknownLabel(t *testing.T) {
	s := newTestServer(t)

	// A dangling connection references a node label that doesn't exist,
	// which diagramio.LoadLight rejects before compilation is reached.
	badDiagram := `
nodes:
  - label: Start
    type: start
connections:
  - from: Start
    to: Ghost
`
	body := triggerRequest{DiagramID: "broken", Diagram: badDiagram}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTriggerExecution_ShouldReturnUnprocessableEntity_WhenNodeTypeIsUnknown(t *testing.T) {
	s := newTestServer(t)

	// This parses fine at the Diagram Light layer (node types aren't
	// validated there) but fails compilation, which does check them.
	badDiagram := `
nodes:
  - label: Start
    type: not_a_real_node_type
`
	body := triggerRequest{DiagramID: "broken", Diagram: badDiagram}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleGetExecution_ShouldReturnNotFound_WhenExecutionIDUnknown(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetExecution_ShouldReportCompleted_WhenRunFinishes(t *testing.T) {
	s := newTestServer(t)

	body := triggerRequest{DiagramID: "pipeline", Diagram: validLightDiagram}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	triggerReq := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(string(raw)))
	triggerRec := httptest.NewRecorder()
	s.ServeHTTP(triggerRec, triggerReq)
	require.Equal(t, http.StatusAccepted, triggerRec.Code)

	var triggered triggerResponse
	require.NoError(t, json.Unmarshal(triggerRec.Body.Bytes(), &triggered))

	require.Eventually(t, func() bool {
		getReq := httptest.NewRequest(http.MethodGet, "/api/v1/executions/"+triggered.ExecutionID, nil)
		getRec := httptest.NewRecorder()
		s.ServeHTTP(getRec, getReq)

		var got struct {
			Status string                 `json:"status"`
			State  *domain.ExecutionState `json:"state"`
		}
		_ = json.Unmarshal(getRec.Body.Bytes(), &got)
		return got.Status == "completed"
	}, time.Second, 5*time.Millisecond)
}
