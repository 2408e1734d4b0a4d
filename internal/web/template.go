package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/dht-telemetry/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"zoneOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"reading": func(r *status.Reading, unit string) string {
		if r == nil {
			return "--"
		}
		return fmt.Sprintf("%.1f%s", r.Value, unit)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>DHT Telemetry</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.HIGH, .red { color: red; font-weight: bold; }
.NORMAL, .yellow { color: #b8860b; font-weight: bold; }
.LOW, .green { color: green; font-weight: bold; }
.UNKNOWN, .off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>DHT Telemetry ({{.Config.Role}})<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Readings</h2>
<table>
<tr><th>Temperature</th><td id="temperature">{{reading .Temperature " °C"}}</td></tr>
<tr><th>Humidity</th><td id="humidity">{{reading .Humidity " %"}}</td></tr>
<tr><th>Zone</th><td id="zone" class="{{zoneOrUnknown (printf "%s" .Zone)}}">{{zoneOrUnknown (printf "%s" .Zone)}}</td></tr>
<tr><th>Indicator</th><td id="indicator" class="{{.Indicator}}">{{.Indicator}}</td></tr>
</table>

<h2>Control</h2>
<table>
<tr><th>Actuator</th><td id="enabled">{{if .Control.Enabled}}on{{else}}off{{end}}</td></tr>
{{if .Controls}}<tr><th>Toggle</th><td><button onclick="toggle(true)">on</button> <button onclick="toggle(false)">off</button> <span id="control-error"></span></td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td id="mqtt" class="{{if .Control.Connected}}connected{{else}}disconnected{{end}}">{{if .Control.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}} (MQTT {{.Config.Protocol}})</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Received</th><td>{{.Counts.Received}}</td></tr>
<tr><th>Decoded</th><td>{{.Counts.Decoded}}</td></tr>
<tr><th>Dropped</th><td>{{.Counts.Dropped}}</td></tr>
<tr><th>Commands</th><td>{{.Counts.Commands}}</td></tr>
<tr><th>Suppressed</th><td>{{.Counts.Suppressed}}</td></tr>
<tr><th>Reconnects</th><td>{{.Counts.Reconnects}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>History</th><td>{{.Config.HistoryCapacity}} samples per metric</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
{{if .Config.IntervalMs}}<tr><th>Publish interval</th><td>{{.Config.IntervalMs}}ms</td></tr>{{end}}
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/history.json?metric=temperature">temperature history</a> | <a href="/history.json?metric=humidity">humidity history</a></p>

<script>
(function() {
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setText(id, text, cls) {
    var el = document.getElementById(id);
    if (!el) return;
    el.textContent = text;
    if (cls !== undefined) el.className = cls;
  }

  function fmt(r, unit) {
    return r ? r.value.toFixed(1) + unit : "--";
  }

  function apply(st) {
    setText("temperature", fmt(st.readings.temperature, " °C"));
    setText("humidity", fmt(st.readings.humidity, " %"));
    setText("zone", st.zone, st.zone);
    setText("indicator", st.indicator, st.indicator);
    setText("enabled", st.control.enabled ? "on" : "off");
    var c = st.mqtt.connected;
    setText("mqtt", c ? "connected" : "disconnected", c ? "connected" : "disconnected");
  }

  window.toggle = function(enabled) {
    fetch("/control", {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify({ enabled: enabled })
    }).then(function(resp) {
      return resp.json().then(function(body) {
        setText("control-error", resp.ok ? "" : body.error);
      });
    });
  };

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type === "state") apply(msg.data.status);
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Controls bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Controls: controls,
	}
	return indexTmpl.Execute(w, data)
}
