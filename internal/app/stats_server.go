package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket upgrader for real-time stats
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// routes builds the health/stats mux.
func (r *Runner) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// JSON stats endpoint
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		stats := r.GetStats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(stats)
	})

	// WebSocket endpoint for real-time stats
	mux.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, req, nil)
		if err != nil {
			r.clients.Logger.Error("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		// Push stats every second
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stats := r.GetStats()
			if err := conn.WriteJSON(stats); err != nil {
				return // Client disconnected
			}
		}
	})

	// HTML dashboard
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(dashboardHTML))
	})

	return mux
}

// startHealthServer starts an HTTP server for health checks and stats.
func (r *Runner) startHealthServer(port int) {
	r.healthServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r.routes(),
	}

	go func() {
		if err := r.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.clients.Logger.Error("health server error", zap.Error(err))
		}
	}()
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Watcher</title>
    <style>
        :root {
            --bg-primary: #0d1117;
            --bg-secondary: #161b22;
            --border-color: #30363d;
            --text-primary: #e6edf3;
            --text-secondary: #8b949e;
            --accent: #58a6ff;
            --success: #3fb950;
            --warning: #d29922;
            --error: #f85149;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            line-height: 1.5;
            padding: 20px;
            max-width: 1000px;
            margin: 0 auto;
        }
        h1 { margin-bottom: 4px; }
        .subtitle { color: var(--text-secondary); font-size: 13px; margin-bottom: 20px; }
        .status-bar {
            display: flex;
            gap: 16px;
            flex-wrap: wrap;
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 12px 16px;
            margin-bottom: 20px;
        }
        .status-item { display: flex; align-items: center; gap: 8px; font-size: 13px; }
        .dot { width: 8px; height: 8px; border-radius: 50%; }
        .dot.on { background: var(--success); }
        .dot.off { background: var(--error); }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(160px, 1fr));
            gap: 12px;
            margin-bottom: 20px;
        }
        .card {
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 14px;
        }
        .card .label { color: var(--text-secondary); font-size: 12px; }
        .card .value { font-size: 24px; font-weight: 600; }
        .card .value.wolf { color: var(--warning); }
        .card .value.surge { color: var(--accent); }
        .section {
            background: var(--bg-secondary);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 14px;
            margin-bottom: 16px;
        }
        .section h2 { font-size: 14px; margin-bottom: 10px; color: var(--text-secondary); }
        .signal {
            display: flex;
            justify-content: space-between;
            gap: 10px;
            padding: 8px 0;
            border-bottom: 1px solid var(--border-color);
            font-size: 13px;
        }
        .signal:last-child { border-bottom: none; }
        .signal .kind { font-weight: 600; }
        .signal .kind.wolf { color: var(--warning); }
        .signal .kind.surge { color: var(--accent); }
        .signal .meta { color: var(--text-secondary); }
        .markets { color: var(--text-secondary); font-size: 13px; }
        .markets li { margin-left: 18px; }
        .empty { color: var(--text-secondary); font-size: 13px; }
    </style>
</head>
<body>
    <h1>Watcher</h1>
    <div class="subtitle">uptime <span id="uptime">-</span> &middot; commit <span id="commit">-</span></div>

    <div class="status-bar">
        <div class="status-item"><span class="dot off" id="wsDot"></span><span id="wsText">live feed</span></div>
        <div class="status-item"><span class="dot off" id="tgDot"></span>telegram</div>
        <div class="status-item"><span class="dot off" id="dcDot"></span>discord</div>
        <div class="status-item"><span id="goroutines">-</span> goroutines</div>
    </div>

    <div class="grid">
        <div class="card"><div class="label">Wolf packs</div><div class="value wolf" id="wolfPacks">0</div></div>
        <div class="card"><div class="label">Volume surges</div><div class="value surge" id="surges">0</div></div>
        <div class="card"><div class="label">Window trades</div><div class="value" id="windowSize">0</div></div>
        <div class="card"><div class="label">Trades ingested</div><div class="value" id="ingested">0</div></div>
        <div class="card"><div class="label">Markets tracked</div><div class="value" id="markets">0</div></div>
        <div class="card"><div class="label">Wallet alerts</div><div class="value" id="walletAlerts">0</div></div>
        <div class="card"><div class="label">Signals sent</div><div class="value" id="signalsSent">0</div></div>
        <div class="card"><div class="label">Send failures</div><div class="value" id="sendFailures">0</div></div>
    </div>

    <div class="section">
        <h2>Recent signals</h2>
        <div id="recentSignals"><div class="empty">No signals yet.</div></div>
    </div>

    <div class="section">
        <h2>Monitored markets</h2>
        <ul class="markets" id="marketNames"><li class="empty">Loading...</li></ul>
    </div>

    <script>
        function fmtUSD(v) {
            return '$' + Math.round(v).toLocaleString();
        }

        function setDot(id, on) {
            document.getElementById(id).className = 'dot ' + (on ? 'on' : 'off');
        }

        function render(s) {
            document.getElementById('uptime').textContent = s.uptime;
            document.getElementById('commit').textContent = (s.build.commit || 'dev').slice(0, 7);
            document.getElementById('goroutines').textContent = s.runtime.goroutines;

            setDot('wsDot', s.websocket.connected);
            document.getElementById('wsText').textContent =
                s.websocket.enabled ? 'live feed' : 'polling';
            setDot('tgDot', s.notifications.telegram_enabled);
            setDot('dcDot', s.notifications.discord_enabled);

            document.getElementById('wolfPacks').textContent = s.monitor.wolf_pack_signals;
            document.getElementById('surges').textContent = s.monitor.volume_surge_signals;
            document.getElementById('windowSize').textContent = s.monitor.window_size;
            document.getElementById('ingested').textContent = s.monitor.trades_ingested;
            document.getElementById('markets').textContent = s.monitor.markets_tracked;
            document.getElementById('walletAlerts').textContent = s.dispatcher.wallet_alerts;
            document.getElementById('signalsSent').textContent = s.dispatcher.signals_sent;
            document.getElementById('sendFailures').textContent = s.dispatcher.send_failures;

            const feed = document.getElementById('recentSignals');
            if (s.recent_signals && s.recent_signals.length > 0) {
                feed.innerHTML = s.recent_signals.map(sig => {
                    const wolf = sig.kind === 'WOLF_PACK';
                    const when = new Date(sig.timestamp).toLocaleTimeString();
                    return '<div class="signal">' +
                        '<span class="kind ' + (wolf ? 'wolf' : 'surge') + '">' +
                        (wolf ? '🐺 ' : '📈 ') + sig.kind + '</span>' +
                        '<span>' + escapeHtml(sig.market_name || sig.market_id) + '</span>' +
                        '<span class="meta">' + fmtUSD(sig.buy_volume) +
                        ' &middot; ' + sig.unique_buyers + ' buyers &middot; ' + when + '</span>' +
                        '</div>';
                }).join('');
            }

            const list = document.getElementById('marketNames');
            if (s.market_names && s.market_names.length > 0) {
                list.innerHTML = s.market_names.map(n => '<li>' + escapeHtml(n) + '</li>').join('');
            }
        }

        function escapeHtml(str) {
            const div = document.createElement('div');
            div.textContent = str;
            return div.innerHTML;
        }

        async function poll() {
            try {
                const resp = await fetch('/stats');
                if (resp.ok) render(await resp.json());
            } catch (err) {
                console.error('stats fetch failed:', err);
            }
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws');
            ws.onmessage = (ev) => render(JSON.parse(ev.data));
            ws.onclose = () => {
                // Fall back to polling and retry the socket
                setTimeout(connect, 5000);
            };
        }

        poll();
        setInterval(poll, 10000);
        connect();
    </script>
</body>
</html>
`
