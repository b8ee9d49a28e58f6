package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
)

// SessionEvents streams the client's session snapshots as Server-Sent
// Events, starting with the current one.
func (a *API) SessionEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := clientFrom(ctx).Session.Subscribe(ctx)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	for snap := range ch {
		payload, err := json.Marshal(newSessionView(snap))
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: session\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
