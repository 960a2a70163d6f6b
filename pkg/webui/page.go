package webui

import (
	"html/template"
	"io"

	"github.com/rojolang/webrec-go/pkg/webrec"
)

type pageData struct {
	Formats    []string
	Selected   string
	Controls   webrec.ControlState
	Recordings []*webrec.RecordingEntry
}

func renderPage(w io.Writer, data pageData) error {
	return pageTemplate.Execute(w, data)
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>webrec</title>
<style>
body { font-family: sans-serif; max-width: 40em; margin: 2em auto; }
#controls button { margin-right: .5em; }
#level { width: 100%; height: .5em; }
#recordingsList li { margin: .5em 0; }
#recordingsList a { margin-left: 1em; }
#log { font-family: monospace; font-size: .85em; color: #555; white-space: pre-wrap; }
</style>
</head>
<body>
<h1>webrec</h1>
<div id="controls">
  <label for="encodingTypeSelect">Encoding</label>
  <select id="encodingTypeSelect">
  {{- range .Formats}}
    <option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>
  {{- end}}
  </select>
  <button id="recordButton"{{if .Controls.RecordDisabled}} disabled{{end}}>Record</button>
  <button id="stopButton"{{if .Controls.StopDisabled}} disabled{{end}}>Stop</button>
</div>
<meter id="level" min="0" max="1" value="0"></meter>
<h2>Recordings</h2>
<ol id="recordingsList">
{{- range .Recordings}}
  <li data-id="{{.ID}}"><audio controls src="{{.URL}}"></audio>{{with .Link}}<a href="{{.Href}}" download="{{.Download}}">{{.Text}}</a>{{end}}</li>
{{- end}}
</ol>
<div id="log"></div>
<script>
const encodingTypeSelect = document.getElementById("encodingTypeSelect");
const recordButton = document.getElementById("recordButton");
const stopButton = document.getElementById("stopButton");
const recordingsList = document.getElementById("recordingsList");
const level = document.getElementById("level");
const logArea = document.getElementById("log");

function log(msg) {
  logArea.textContent += msg + "\n";
}

function applyState(s) {
  recordButton.disabled = s.controls.record_disabled;
  stopButton.disabled = s.controls.stop_disabled;
  if (s.encoding) encodingTypeSelect.value = s.encoding;
  if (s.status !== "capturing") level.value = 0;
}

function addRecording(e) {
  const li = document.createElement("li");
  const au = document.createElement("audio");
  const link = document.createElement("a");
  li.dataset.id = e.id;
  au.controls = true;
  au.src = e.url;
  link.href = e.url;
  link.download = e.filename;
  link.textContent = e.filename;
  li.appendChild(au);
  li.appendChild(link);
  recordingsList.appendChild(li);
}

async function post(path, body) {
  const res = await fetch(path, {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: body ? JSON.stringify(body) : undefined,
  });
  const data = await res.json();
  if (!res.ok) log(data.error || res.statusText);
  return data;
}

encodingTypeSelect.addEventListener("change", () => post("/api/encoding", {encoding: encodingTypeSelect.value}));
recordButton.addEventListener("click", () => {
  recordButton.disabled = true;
  stopButton.disabled = false;
  post("/api/record");
});
stopButton.addEventListener("click", () => {
  stopButton.disabled = true;
  recordButton.disabled = false;
  post("/api/stop");
});

function connect() {
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onmessage = (ev) => {
    const msg = JSON.parse(ev.data);
    switch (msg.type) {
    case "state":
      applyState(msg.data);
      break;
    case "recording":
      addRecording(msg.data);
      log("Encoding complete: " + msg.data.filename);
      break;
    case "recording_removed": {
      const li = recordingsList.querySelector('li[data-id="' + msg.data.id + '"]');
      if (li) li.remove();
      break;
    }
    case "error":
      log(msg.data.message);
      break;
    case "level":
      level.value = msg.data.peak;
      break;
    case "permission_request":
      ws.send(JSON.stringify({
        type: "permission_response",
        id: msg.data.id,
        granted: confirm("Allow this page to use your microphone?"),
      }));
      break;
    }
  };
  ws.onclose = () => setTimeout(connect, 1000);
}
connect();
</script>
</body>
</html>
`))
