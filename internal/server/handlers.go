// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, user lookup, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthStatus is the body served by the health endpoint.
type HealthStatus struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Users   int    `json:"users"`
	Rooms   int    `json:"rooms"`
}

// WebSocketHandler upgrades GET requests to WebSocket connections and hands
// each new Client to the hub, which opens its session and starts the pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
		}
	}
}

// HealthHandler reports liveness along with connection, user and room counts.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, hub, HealthStatus{
			Status:  "ok",
			Clients: hub.ClientCount(),
			Users:   hub.svc.Users().Len(),
			Rooms:   hub.svc.Rooms().Len(),
		})
	}
}

// UserHandler resolves a user id to its User record. Unknown ids get a 200
// with an empty body.
func UserHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := hub.svc.User(r.PathValue("id"))
		if !ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, hub, user)
	}
}

func writeJSON(w http.ResponseWriter, hub *Hub, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hub.logger.Error("Error writing JSON response", "error", err)
	}
}

// TestPageHandler serves an HTML page for exercising the relay by hand:
// pick a name, join a room, and watch the room log refresh.
func TestPageHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := fmt.Fprint(w, testPageHTML); err != nil {
			hub.logger.Error("Error writing HTML response", "error", err)
		}
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Room Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .system { color: gray; font-style: italic; }
    </style>
</head>
<body>
    <h1>Room Chat Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="username" placeholder="Username">
        <button onclick="requestIdentity()">Set name</button>
        <span id="identity"></span>
    </div>
    <div>
        <input type="text" id="room" placeholder="Room id">
        <button onclick="send('joinRoom', {roomId: roomInput.value.trim()})">Join</button>
        <button onclick="send('leaveRoom')">Leave</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="log"></div>

    <script>
        let ws = null;
        let seq = 0;
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const identitySpan = document.getElementById('identity');
        const usernameInput = document.getElementById('username');
        const roomInput = document.getElementById('room');
        const messageInput = document.getElementById('messageInput');

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function render(messages) {
            logDiv.replaceChildren();
            for (const m of messages) {
                const el = document.createElement('div');
                if (m.type === 'SYSTEM') {
                    el.className = 'system';
                    el.textContent = m.content;
                } else {
                    el.textContent = m.author.username + ': ' + m.content;
                }
                logDiv.appendChild(el);
            }
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => updateStatus(true);
            ws.onmessage = (event) => {
                const frame = JSON.parse(event.data);
                if (frame.type === 'messages') {
                    render(frame.payload || []);
                } else if (frame.type === 'identity') {
                    identitySpan.textContent = frame.payload.username + ' (' + frame.payload.userId + ')';
                }
            };
            ws.onclose = () => { updateStatus(false); ws = null; };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function send(type, payload) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            seq++;
            ws.send(JSON.stringify({type: type, ref: String(seq), payload: payload}));
        }

        function requestIdentity() {
            send('requestIdentity', {username: usernameInput.value.trim()});
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (content) {
                send('sendMessage', {content: content});
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', (e) => {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
