package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/coop-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"clock": func(t string) string {
		if t == "" {
			return "-"
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.Format("Mon 15:04")
		}
		return t
	},
	"reading": func(v *float64) string {
		if v == nil {
			return "no value"
		}
		return fmt.Sprintf("%.0f", *v)
	},
	"onOff": func(on bool) string {
		if on {
			return "on"
		}
		return "off"
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Coop Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on, .open { color: green; font-weight: bold; }
.off, .closed { color: #888; }
.moving_up, .moving_down, .not_moving { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Coop Controller</h1>

<h2>State</h2>
<table>
<tr><th>Door</th><td id="door" class="{{.Status.Door}}">{{.Status.Door}}</td></tr>
<tr><th>Indoor light</th><td id="indoor" class="{{onOff .Status.IndoorLight}}">{{onOff .Status.IndoorLight}}</td></tr>
<tr><th>Outdoor light</th><td id="outdoor" class="{{onOff .Status.OutdoorLight}}">{{onOff .Status.OutdoorLight}}</td></tr>
<tr><th>Automatic</th><td id="automatic">{{.Status.Automatic.Mode}}{{if .Status.Automatic.ReenableAt}} until {{clock .Status.Automatic.ReenableAt}}{{end}}</td></tr>
</table>

<h2>Schedule</h2>
<table>
<tr><th>Opens</th><td>{{clock .Status.OpenAt}}</td></tr>
<tr><th>Closes</th><td>{{clock .Status.CloseAt}}</td></tr>
{{range .Status.NextActions}}<tr><th>Next {{.Action}}</th><td>{{clock .At}}</td></tr>
{{end}}{{with .Status.LightWindow}}<tr><th>Light</th><td>{{clock .On}} to {{clock .Off}}</td></tr>
{{end}}</table>

<h2>Sensors</h2>
<table>
<tr><th>Light</th><td>{{reading .Status.Sensors.Light}}</td></tr>
<tr><th>Temperature</th><td>{{reading .Status.Sensors.Temperature}}</td></tr>
<tr><th>Sampled</th><td>{{clock .Status.Sensors.SampledAt}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .Status.MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .Status.MQTT.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Status.MQTT.Broker}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Status.StartTime}}</td></tr>
<tr><th>Latitude</th><td>{{.Status.Config.Latitude}}</td></tr>
<tr><th>Timezone</th><td>{{.Status.Config.Timezone}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/api/v1/ws");
  var onOff = function(v) { return v ? "on" : "off"; };
  ws.onmessage = function(ev) {
    try {
      var st = JSON.parse(ev.data).status;
      var door = document.getElementById("door");
      door.textContent = st.door;
      door.className = st.door;
      ["indoor", "outdoor"].forEach(function(ch) {
        var el = document.getElementById(ch);
        el.textContent = onOff(st[ch + "_light"]);
        el.className = el.textContent;
      });
      document.getElementById("automatic").textContent = st.automatic.mode;
    } catch (e) {}
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.StatusJSON
		Uptime time.Duration
	}{
		StatusJSON: status.Build(snap),
		Uptime:     snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
