package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/p4ctl/internal/servicebus"
)

type echoService struct{}

func (echoService) Name() string { return "echo" }

func (echoService) Process(ctx context.Context, req servicebus.Request) (<-chan servicebus.Response, *int, error) {
	switch req.Action {
	case "get":
		n := 3
		out := make(chan servicebus.Response, n)
		for i := 0; i < n; i++ {
			out <- servicebus.Response{Body: []byte(fmt.Sprintf(`"%d"`, i))}
		}
		close(out)
		return out, &n, nil
	case "boom":
		return nil, nil, &servicebus.ErrActionNotFound{Name: "boom"}
	default:
		return nil, nil, &servicebus.ErrActionNotFound{Name: req.Action}
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bus := servicebus.New()
	require.NoError(t, bus.InstallService(echoService{}))
	return New(nil, bus)
}

func TestTargetGet_ReturnsLenAndDataEnvelope(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/target/echo/some/path")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Len  int               `json:"len"`
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Len)
	assert.Len(t, body.Data, 3)
}

func TestActionGet_UnknownServiceReturns404WithErrorBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/action/ghost/get/x")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["error"])
}

func TestActionGet_UnknownActionReturns404(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/action/echo/boom/x")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWS_StreamsTextFramesThenCloses(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + ts.URL[len("http"):] + "/ws/echo/get/x"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frames int
	for {
		msgType, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.CloseMessage {
			break
		}
		frames++
		if frames > 10 {
			t.Fatal("too many frames, close frame never arrived")
		}
	}
	assert.Equal(t, 3, frames)
}
