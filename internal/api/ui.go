package api

import (
	"net/http"
	"path/filepath"
	"strings"
)

// playerUIHTML is a minimal front-end. It redraws from the display
// returned by every action.
const playerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Story Player</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: Georgia, serif; background: #111; color: #eee; height: 100vh; display: flex; flex-direction: column; }
        #stage { flex: 1; position: relative; overflow: hidden; }
        #stage img { position: absolute; inset: 0; width: 100%; height: 100%; object-fit: cover; }
        #box { background: rgba(10, 10, 20, 0.92); padding: 18px 24px; min-height: 160px; border-top: 1px solid #333; }
        #speaker { color: #e0b35a; font-weight: bold; margin-bottom: 6px; }
        #content { font-size: 18px; line-height: 1.5; margin-bottom: 12px; white-space: pre-wrap; }
        #options button, #next { display: block; margin: 6px 0; padding: 8px 14px; background: #223; color: #eee; border: 1px solid #446; cursor: pointer; font: inherit; }
        #options button:hover, #next:hover { background: #335; }
        #diag { color: #f88; }
        footer { padding: 6px 24px; font: 12px monospace; color: #888; display: flex; gap: 12px; }
    </style>
</head>
<body>
    <div id="stage"></div>
    <div id="box">
        <div id="speaker"></div>
        <div id="content"></div>
        <div id="options"></div>
        <button id="next" hidden>Continue</button>
        <div id="diag"></div>
    </div>
    <footer>
        <span id="state"></span>
        <a href="#" id="restart" style="color:#888">new game</a>
    </footer>
    <script>
        const $ = (id) => document.getElementById(id);

        function render(d) {
            $('state').textContent = d.state + ' @ ' + d.node_id;
            const stage = $('stage');
            stage.innerHTML = '';
            (d.images || []).forEach((l) => {
                const img = document.createElement('img');
                img.src = '/assets?path=' + encodeURIComponent(l.resource);
                img.alt = l.resource;
                stage.appendChild(img);
            });

            let text = d.text;
            if (d.choice && d.choice.caption) text = d.choice.caption;
            $('speaker').textContent = text ? (text.speaker || '') : '';
            $('content').textContent = text ? text.content : (d.choice ? (d.choice.question || '') : '');

            const options = $('options');
            options.innerHTML = '';
            if (d.choice) {
                d.choice.options.forEach((o) => {
                    const b = document.createElement('button');
                    b.textContent = o.label;
                    b.onclick = () => post('/choose', { index: o.index });
                    options.appendChild(b);
                });
            }
            $('next').hidden = d.state !== 'awaiting_advance';
            $('diag').textContent = d.diagnostic || '';
        }

        function post(path, body) {
            fetch(path, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(body || {})
            })
            .then((r) => r.json())
            .then((resp) => { if (resp.display) render(resp.display); })
            .catch(() => { $('diag').textContent = 'Network error'; });
        }

        $('next').onclick = () => post('/advance');
        $('restart').onclick = (e) => { e.preventDefault(); post('/new'); };

        fetch('/display').then((r) => r.json()).then(render);
    </script>
</body>
</html>`

// uiHandler serves the player page.
func uiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(playerUIHTML))
}

// assetHandler serves story assets. Only files under the story's asset
// root are reachable.
func (s *Server) assetHandler(w http.ResponseWriter, r *http.Request) {
	root := s.engine.Graph().AssetRoot
	p := r.URL.Query().Get("path")
	if root == "" || p == "" {
		http.NotFound(w, r)
		return
	}

	// display paths are already resolved against the root
	absRoot, err := filepath.Abs(root)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	http.ServeFile(w, r, abs)
}
