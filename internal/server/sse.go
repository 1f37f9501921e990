package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/user/bookbot/internal/view"
)

// frame is the payload of one "view" event. Slot is the position of the
// view among the turn's handles; Final marks the handle's last frame.
type frame struct {
	Slot  int       `json:"slot"`
	HTML  string    `json:"html"`
	Node  view.Node `json:"node"`
	Final bool      `json:"final"`
}

// streamViews writes every update of views, in order, as server-sent
// events and ends with a "done" event. Handles are drained one after the
// other; updates of later handles are buffered by their subscriptions.
func streamViews(ctx context.Context, w http.ResponseWriter, views []*view.Streamable) error {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for slot, v := range views {
		for u := range v.Subscribe(ctx) {
			html, err := view.RenderHTML(u.Value)
			if err != nil {
				return err
			}
			if err := writeEvent(w, "view", frame{Slot: slot, HTML: html, Node: u.Value, Final: u.Done}); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if err := writeEvent(w, "done", struct{}{}); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	return nil
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>bookbot</title></head>
<body>
<div id="chat"></div>
<form id="f"><input id="q" autocomplete="off" placeholder="Ask to book an appointment"><button>Send</button></form>
<script>
const chatID = localStorage.chatID || (localStorage.chatID = crypto.randomUUID());
const chat = document.getElementById('chat');
async function load() {
  const res = await fetch('/api/chats/' + chatID + '/view');
  if (!res.ok) return;
  for (const e of await res.json()) {
    const div = document.createElement('div');
    div.innerHTML = e.html;
    chat.appendChild(div);
  }
}
document.getElementById('f').onsubmit = async (ev) => {
  ev.preventDefault();
  const q = document.getElementById('q');
  const res = await fetch('/api/chats/' + chatID + '/messages', {
    method: 'POST', headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({content: q.value}),
  });
  q.value = '';
  const slots = [];
  const reader = res.body.pipeThrough(new TextDecoderStream()).getReader();
  let buf = '';
  for (;;) {
    const {value, done} = await reader.read();
    if (done) break;
    buf += value;
    let i;
    while ((i = buf.indexOf('\n\n')) >= 0) {
      const block = buf.slice(0, i); buf = buf.slice(i + 2);
      const data = block.split('\n').find(l => l.startsWith('data: '));
      if (!block.startsWith('event: view') || !data) continue;
      const f = JSON.parse(data.slice(6));
      if (!slots[f.slot]) { slots[f.slot] = document.createElement('div'); chat.appendChild(slots[f.slot]); }
      slots[f.slot].innerHTML = f.html;
    }
  }
};
load();
</script>
</body>
</html>
`
