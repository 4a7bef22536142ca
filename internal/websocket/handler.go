package websocket

import (
	"context"
	"net/http"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request and runs it as a client of householdID until
// the connection ends. Callers authorize the user for the household first;
// admit, when set, repeats that check once the client is registered so a
// removal racing the upgrade is seen either by admit or by Evict.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, householdID, userID int64, admit func(context.Context) error) {
	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "household_id", householdID, "error", err)
		return
	}

	client := NewClient(h, conn, householdID, userID)
	client.Run(r.Context(), admit)
}
