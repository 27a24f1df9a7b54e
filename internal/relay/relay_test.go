package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cdprelay/relay/internal/config"
)

// dialWS dials a ws(s):// URL built from an httptest server's http URL.
func dialWS(t *testing.T, httpURL, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dial %s", wsURL)
	return conn
}

// TestEndToEndAttachAndGetTargets drives the relay the way a real extension
// and a real CDP client would: the fake extension announces one attached
// target, then a CDP client connects and asks for the current target list.
func TestEndToEndAttachAndGetTargets(t *testing.T) {
	s := New(config.Default())
	httpSrv := httptest.NewServer(s.Handler())
	defer httpSrv.Close()

	ext := dialWS(t, httpSrv.URL, "/extension")
	defer ext.Close()

	waitUntil(t, func() bool { return s.ExtensionConnected() })

	attachFrame := map[string]any{
		"method": "forwardCDPEvent",
		"params": map[string]any{
			"method":    "Target.attachedToTarget",
			"sessionId": "sess-1",
			"params": map[string]any{
				"sessionId": "sess-1",
				"targetInfo": map[string]any{
					"targetId": "target-1",
					"type":     "page",
					"title":    "Example",
					"url":      "https://example.com",
				},
			},
		},
	}
	require.NoError(t, ext.WriteJSON(attachFrame))

	waitUntil(t, func() bool { return s.registry.size() == 1 })

	cdp := dialWS(t, httpSrv.URL, "/cdp")
	defer cdp.Close()

	require.NoError(t, cdp.WriteJSON(cdpCommand{ID: 1, Method: "Target.getTargets"}))

	cdp.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp cdpResponse
	require.NoError(t, cdp.ReadJSON(&resp))
	require.Nil(t, resp.Error)

	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result struct {
		TargetInfos []map[string]any `json:"targetInfos"`
	}
	require.NoError(t, json.Unmarshal(encoded, &result))
	require.Len(t, result.TargetInfos, 1)
	require.Equal(t, "target-1", result.TargetInfos[0]["targetId"])
}

// TestEndToEndForwardCDPCommand exercises the default router branch: a CDP
// client's unrecognized method is forwarded to the extension and the
// extension's reply is relayed back verbatim.
func TestEndToEndForwardCDPCommand(t *testing.T) {
	s := New(config.Default())
	httpSrv := httptest.NewServer(s.Handler())
	defer httpSrv.Close()

	ext := dialWS(t, httpSrv.URL, "/extension")
	defer ext.Close()
	waitUntil(t, func() bool { return s.ExtensionConnected() })

	cdp := dialWS(t, httpSrv.URL, "/cdp")
	defer cdp.Close()

	go func() {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		if err := ext.ReadJSON(&req); err != nil {
			return
		}
		ext.WriteJSON(map[string]any{"id": req.ID, "result": map[string]any{"ok": true}})
	}()

	require.NoError(t, cdp.WriteJSON(cdpCommand{ID: 7, Method: "Page.navigate", Params: map[string]any{"url": "https://example.com"}}))

	cdp.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp cdpResponse
	require.NoError(t, cdp.ReadJSON(&resp))
	require.Nil(t, resp.Error)

	m, ok := resp.Result.(map[string]any)
	require.True(t, ok, "result = %#v", resp.Result)
	require.Equal(t, true, m["ok"])
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
