package events

import "fmt"

// CDPClientTopic is the per-peer topic a CDP client's WebSocket loop
// subscribes to; the router and registry emit onto it to deliver a
// response or a broadcast event to exactly that client.
func CDPClientTopic(clientID string) string {
	return fmt.Sprintf("cdp.client.%s", clientID)
}
