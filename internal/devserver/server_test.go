package devserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard/railyard/internal/devserver"
	"github.com/railyard/railyard/pkg/adapters/memory"
	"github.com/railyard/railyard/pkg/domain"
)

func startDevServer(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	store := memory.NewStoreWith(&domain.Section{
		ID:   "s1",
		Name: "Ingest",
		Nodes: []*domain.Node{
			{ID: "a", Type: domain.NodeTypeInput, Position: domain.Position{X: 80, Y: 120}, ConnectedTo: []string{"b"}},
			{ID: "b", Type: domain.NodeTypeTransform, Position: domain.Position{X: 320, Y: 120}, ConnectedFrom: []string{"a"}},
		},
	})
	server := devserver.New(store)
	srv := httptest.NewServer(server.Handler(prometheus.NewRegistry()))
	t.Cleanup(func() {
		server.Close()
		srv.Close()
	})
	return server, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Sections(t *testing.T) {
	_, srv := startDevServer(t)

	resp, err := http.Get(srv.URL + "/sections")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sections []*domain.Section
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sections))
	require.Len(t, sections, 1)
	assert.Equal(t, "s1", sections[0].ID)
	assert.Len(t, sections[0].Nodes, 2)
}

func TestServer_PutSection(t *testing.T) {
	_, srv := startDevServer(t)

	section := domain.Section{Name: "Renamed", Nodes: []*domain.Node{{ID: "x", Type: domain.NodeTypeScript}}}
	data, err := json.Marshal(section)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/sections/s1", bytes.NewReader(data))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The document is replaced wholesale.
	get, err := http.Get(srv.URL + "/sections")
	require.NoError(t, err)
	defer get.Body.Close()
	var sections []*domain.Section
	require.NoError(t, json.NewDecoder(get.Body).Decode(&sections))
	require.Len(t, sections, 1)
	assert.Equal(t, "Renamed", sections[0].Name)
	require.Len(t, sections[0].Nodes, 1)
	assert.Equal(t, "x", sections[0].Nodes[0].ID)
}

func TestServer_Deactivate(t *testing.T) {
	_, srv := startDevServer(t)

	resp := postJSON(t, srv.URL+"/node/b/deactivate", map[string]string{"sectionId": "s1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/node/ghost/deactivate", map[string]string{"sectionId": "s1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ExecutePushesFrames(t *testing.T) {
	_, srv := startDevServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := postJSON(t, srv.URL+"/execute", map[string]any{"nodeId": "a", "sectionId": "s1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The run emits start, progress steps, an output, then completion.
	var types []domain.FrameType
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(types) == 0 || types[len(types)-1] != domain.FrameExecComplete {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		frame, err := domain.DecodeFrame(data)
		require.NoError(t, err)
		types = append(types, frame.FrameType())
	}

	assert.Equal(t, domain.FrameExecStart, types[0])
	assert.Contains(t, types, domain.FrameProgress)
	assert.Contains(t, types, domain.FrameOutput)
}

func TestServer_ExecuteFlowWalksEdges(t *testing.T) {
	_, srv := startDevServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := postJSON(t, srv.URL+"/execute-flow", map[string]string{"sectionId": "s1", "startNodeId": "a"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	started := map[string]bool{}
	sawEdge := false
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for !started["a"] || !started["b"] || !sawEdge {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		frame, err := domain.DecodeFrame(data)
		require.NoError(t, err)
		switch f := frame.(type) {
		case *domain.ExecStartFrame:
			started[f.NodeID] = true
		case *domain.FlowProgressFrame:
			if f.SourceID == "a" && f.TargetID == "b" {
				sawEdge = true
			}
		}
	}
}

func TestServer_ExecuteFlowUnknownStart(t *testing.T) {
	_, srv := startDevServer(t)

	resp := postJSON(t, srv.URL+"/execute-flow", map[string]string{"sectionId": "s1", "startNodeId": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	_, srv := startDevServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
