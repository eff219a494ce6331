package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const statusPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Vendord</title>
    <meta name="description" content="License and usage service">
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>&#9679;</text></svg>">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --green: #22c55e;
            --red: #ef4444;
        }

        body {
            font-family: -apple-system, 'Segoe UI', sans-serif;
            background: var(--bg);
            color: var(--text);
            min-height: 100vh;
            font-size: 14px;
            line-height: 1.5;
            display: flex;
            align-items: center;
            justify-content: center;
        }

        .card {
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            border-radius: 8px;
            padding: 32px 40px;
            min-width: 360px;
        }

        h1 {
            font-size: 18px;
            font-weight: 600;
            margin-bottom: 4px;
        }

        .subtitle {
            color: var(--text-secondary);
            margin-bottom: 24px;
        }

        .check {
            display: flex;
            justify-content: space-between;
            padding: 8px 0;
            border-top: 1px solid var(--border);
        }

        .check .name { color: var(--text-secondary); }

        .dot {
            display: inline-block;
            width: 8px;
            height: 8px;
            border-radius: 50%;
            margin-right: 6px;
        }

        .dot.up { background: var(--green); }
        .dot.down { background: var(--red); }

        .links {
            margin-top: 24px;
            padding-top: 16px;
            border-top: 1px solid var(--border);
            color: var(--text-secondary);
        }

        .links a {
            color: var(--text);
            text-decoration: none;
            margin-right: 16px;
        }

        .links a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <div class="card">
        <h1>Vendord</h1>
        <div class="subtitle">License, credit and provider gateway service</div>
        <div id="checks"><div class="check"><span class="name">loading&hellip;</span></div></div>
        <div class="links">
            <a href="/healthz">health</a>
            <a href="/readyz">ready</a>
            <a href="/metrics">metrics</a>
        </div>
    </div>
    <script>
        async function loadChecks() {
            const el = document.getElementById('checks');
            try {
                const res = await fetch('/healthz');
                const body = await res.json();
                el.innerHTML = (body.checks || []).map(c =>
                    '<div class="check"><span class="name">' + c.name + '</span>' +
                    '<span><span class="dot ' + (c.healthy ? 'up' : 'down') + '"></span>' +
                    (c.healthy ? 'ok' : (c.detail || 'down')) + '</span></div>'
                ).join('');
            } catch (e) {
                el.innerHTML = '<div class="check"><span class="name">service</span>' +
                    '<span><span class="dot down"></span>unreachable</span></div>';
            }
        }
        loadChecks();
        setInterval(loadChecks, 10000);
    </script>
</body>
</html>`

// statusPageHandler serves the operator status page
func (s *Server) statusPageHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, statusPageHTML)
}
