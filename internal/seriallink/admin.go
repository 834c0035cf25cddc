package seriallink

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"tailscale.com/tsweb"
)

var sendFrameTemplate = template.Must(template.New("serial-send").Parse(`<!doctype html>
<title>serial send</title>
<form method="post" action="/debug/serial-send-api">
  channel <input name="channel" size="3" value="1">
  value <input name="value" size="16">
  <button type="submit">send</button>
</form>
<p>Live inbound lines: <a href="/debug/serial-tail">/debug/serial-tail</a></p>
`))

// AttachAdminRoutes mounts serial debugging endpoints on the tsweb debug
// surface: a form and API to send a single frame, and an SSE tail of inbound
// lines.
func (l *Link) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("serial-send", "send a frame to the actuator board", func(w http.ResponseWriter, r *http.Request) {
		if err := sendFrameTemplate.Execute(w, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("serial-send-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		channel, err := strconv.Atoi(strings.TrimSpace(r.FormValue("channel")))
		if err != nil {
			http.Error(w, "Invalid channel", http.StatusBadRequest)
			return
		}
		value := strings.TrimSpace(r.FormValue("value"))
		if value == "" {
			http.Error(w, "Missing value", http.StatusBadRequest)
			return
		}
		if err := l.Send(channel, value); err != nil {
			http.Error(w, "Failed to write frame", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote %q to channel %d", value, channel)
	})

	debug.HandleFunc("serial-tail", "live tail of inbound serial lines", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := l.Subscribe()
		defer l.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
