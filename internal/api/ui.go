package api

import (
	"net/http"
)

const playerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Story Engine</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: Georgia, serif;
            background: #1b140d;
            color: #f1e4c8;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
            align-items: center;
        }
        header {
            width: 100%;
            padding: 8px 16px;
            display: flex;
            justify-content: flex-end;
            font-family: monospace;
            font-size: 12px;
        }
        #status.connected { color: #95d5b2; }
        #status.disconnected { color: #fca5a5; }
        main { width: min(900px, 94vw); padding: 16px 0 48px; }
        #image { width: 100%; max-height: 55vh; object-fit: cover; border: 2px solid #6b4f2a; display: none; }
        #text { margin: 20px 0; font-size: 20px; line-height: 1.5; white-space: pre-line; }
        #text.scroll { max-height: 40vh; overflow: hidden; }
        #text.scroll span { display: block; animation: crawl 30s linear forwards; }
        @keyframes crawl { from { transform: translateY(40vh); } to { transform: translateY(-100%); } }
        .row { display: flex; flex-wrap: wrap; gap: 10px; margin-top: 12px; }
        button {
            font: inherit;
            padding: 10px 18px;
            background: #3d2b17;
            color: #f1e4c8;
            border: 1px solid #8a6a3b;
            border-radius: 4px;
            cursor: pointer;
        }
        button:hover { background: #56401f; }
        button.waiting { opacity: 0.6; border-style: dashed; }
        button.track.active { background: #8a6a3b; }
        #error { color: #fca5a5; margin-top: 12px; }
    </style>
</head>
<body>
    <header><span id="status" class="disconnected">disconnected</span></header>
    <main>
        <img id="image" alt="">
        <div id="text"></div>
        <div id="tracks" class="row"></div>
        <div id="actions" class="row"></div>
        <div id="error"></div>
    </main>
    <script>
        var statusEl = document.getElementById('status');
        var imageEl = document.getElementById('image');
        var textEl = document.getElementById('text');
        var tracksEl = document.getElementById('tracks');
        var actionsEl = document.getElementById('actions');
        var errorEl = document.getElementById('error');
        var ws = null;
        var slideTimer = null;

        function send(intent) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(intent));
            }
        }

        function intentFor(action) {
            switch (action.kind) {
                case 'choice': return { type: 'choice', next: action.target };
                case 'export': return { type: 'export', kind: action.target };
                case 'start': return { type: 'start' };
                case 'track': return { type: 'track', label: action.target };
            }
            return null;
        }

        function button(action, waiting) {
            var b = document.createElement('button');
            b.textContent = action.label;
            if (action.kind === 'track') b.className = 'track';
            if (waiting) b.classList.add('waiting');
            b.onclick = function() {
                var intent = intentFor(action);
                if (!intent) return;
                if (action.kind === 'track') {
                    tracksEl.querySelectorAll('button').forEach(function(x) { x.classList.remove('active'); });
                    b.classList.add('active');
                }
                if (action.kind === 'choice') b.classList.add('waiting');
                send(intent);
            };
            return b;
        }

        function slideshow(images) {
            if (slideTimer) { clearInterval(slideTimer); slideTimer = null; }
            if (!images || images.length < 2) return;
            var i = 0;
            slideTimer = setInterval(function() {
                i = (i + 1) % images.length;
                imageEl.src = images[i];
            }, 3000);
        }

        function render(p) {
            if (p.kind === 'waiting') {
                var marked = p.waiting;
                actionsEl.querySelectorAll('button').forEach(function(b) {
                    b.classList.toggle('waiting', marked && b.textContent === (p.actions && p.actions[0] && p.actions[0].label));
                });
                return;
            }

            errorEl.textContent = p.kind === 'error' ? (p.message || '') : '';
            if (p.image) {
                imageEl.src = p.image;
                imageEl.style.display = 'block';
            } else if (p.kind !== 'error') {
                imageEl.style.display = 'none';
            }
            slideshow(p.slideshow);

            if (p.kind !== 'error') {
                textEl.className = p.scroll ? 'scroll' : '';
                textEl.innerHTML = '';
                var span = document.createElement('span');
                span.textContent = p.text || '';
                textEl.appendChild(span);
            }

            tracksEl.innerHTML = '';
            (p.tracks || []).forEach(function(a, i) {
                var b = button(a, false);
                if (i === 0) b.classList.add('active');
                tracksEl.appendChild(b);
            });

            actionsEl.innerHTML = '';
            (p.actions || []).forEach(function(a) {
                actionsEl.appendChild(button(a, false));
            });
        }

        function notify(n) {
            if (n.location) {
                var a = document.createElement('a');
                a.href = n.location;
                a.download = '';
                document.body.appendChild(a);
                a.click();
                a.remove();
            }
            alert(n.message);
        }

        function connect() {
            var proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(proto + '//' + location.host + '/ws/render');
            ws.onopen = function() {
                statusEl.textContent = 'connected';
                statusEl.className = 'connected';
            };
            ws.onclose = function() {
                statusEl.textContent = 'disconnected';
                statusEl.className = 'disconnected';
                setTimeout(connect, 2000);
            };
            ws.onmessage = function(ev) {
                var msg = JSON.parse(ev.data);
                if (msg.type === 'render') render(msg.payload);
                else if (msg.type === 'notice') notify(msg.notice);
                else if (msg.type === 'error') errorEl.textContent = msg.error;
            };
        }

        connect();
    </script>
</body>
</html>`

// uiHandler serves the player page at / and 404s everything else.
func uiHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(playerUIHTML))
}
