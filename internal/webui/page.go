package webui

import (
	"fmt"
	"html/template"
)

var templateFuncs = template.FuncMap{
	"orDash": func(s *string) string {
		if s == nil || *s == "" {
			return "—"
		}
		return *s
	},
	"amount": func(v *float64) string {
		if v == nil {
			return "—"
		}
		return fmt.Sprintf("%.2f", *v)
	},
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Traffix AI Dashboard</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: system-ui, sans-serif; background: #0f172a; color: #e2e8f0; margin: 0; }
        .app { max-width: 1200px; margin: 0 auto; padding: 24px; }
        .title { font-size: 28px; font-weight: 700; margin-bottom: 20px; }
        .cards { display: grid; grid-template-columns: repeat(4, 1fr); gap: 16px; }
        .card, .panel { background: #1e293b; border-radius: 12px; padding: 16px; }
        .card .label { font-size: 13px; color: #94a3b8; }
        .card .value { font-size: 24px; font-weight: 600; margin-top: 6px; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; margin-top: 16px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #334155; font-size: 14px; }
        button { background: #2563eb; color: white; border: 0; border-radius: 6px; padding: 8px 14px; cursor: pointer; }
        button:disabled { background: #475569; cursor: not-allowed; }
        #camera-preview { width: 100%; background: #000; border-radius: 8px; margin-top: 10px; }
        .notice { padding: 6px 10px; border-radius: 6px; margin-bottom: 6px; font-size: 14px; }
        .notice.error { background: #7f1d1d; }
        .notice.info { background: #14532d; }
    </style>
</head>
<body>
<div class="app">
    <div class="title">🚦 Traffix AI Dashboard</div>

    <div class="cards">
        <div class="card"><div class="label">Vehicle Count</div><div class="value" id="vehicle-count">{{.State.Status.VehicleCount}}</div></div>
        <div class="card"><div class="label">Traffic Status</div><div class="value" id="traffic-status">{{.State.Status.TrafficStatus}}</div></div>
        <div class="card"><div class="label">Last Plate</div><div class="value" id="last-plate">{{.State.Status.LastPlate}}</div></div>
        <div class="card"><div class="label">Toll Status</div><div class="value" id="toll-status">{{.State.Status.TollStatus}}</div></div>
    </div>

    <div class="grid">
        <div class="panel">
            <h2>Analyze</h2>
            <form id="image-form" data-kind="image">
                <input type="file" name="file" accept="image/*">
                <button type="submit" class="upload-btn">Upload Image</button>
            </form>
            <br>
            <form id="video-form" data-kind="video">
                <input type="file" name="file" accept="video/*">
                <button type="submit" class="upload-btn">Upload Video</button>
            </form>
            <div id="analysis">
            {{with .State.Analysis}}
                <p>Total: {{.TotalVehicles}} · Cars: {{.Cars}} · Bikes: {{.Bikes}} · Buses: {{.Buses}} · Trucks: {{.Trucks}} · {{.TrafficStatus}}</p>
            {{end}}
            </div>
        </div>

        <div class="panel">
            <h2>Camera</h2>
            <button id="camera-start">Start Camera</button>
            <button id="camera-stop">Stop Camera</button>
            <button id="camera-capture" class="upload-btn">Capture &amp; Analyze</button>
            <img id="camera-preview" alt="Camera preview" {{if .State.CameraOn}}src="/camera/stream"{{end}}>
        </div>

        <div class="panel">
            <h2>Toll</h2>
            <form id="toll-form">
                <input type="text" name="plate" placeholder="Vehicle plate">
                <button type="submit" id="toll-btn">Submit</button>
            </form>
            <h3>Notices</h3>
            <div id="notices">
            {{range .Notices}}<div class="notice {{.Level}}">{{.Message}}</div>{{end}}
            </div>
        </div>

        <div class="panel">
            <h2>Toll History</h2>
            <table>
                <thead><tr><th>Vehicle</th><th>Entry</th><th>Exit</th><th>Status</th><th>Toll</th></tr></thead>
                <tbody id="history">
                {{range .State.History}}
                    <tr><td>{{.VehicleNumber}}</td><td>{{.EntryTime}}</td><td>{{orDash .ExitTime}}</td><td>{{.Status}}</td><td>{{amount .TollAmount}}</td></tr>
                {{end}}
                </tbody>
            </table>
        </div>
    </div>
</div>

<script>
const $ = (id) => document.getElementById(id);
const dash = (v) => (v === null || v === undefined || v === "") ? "—" : v;
const esc = (v) => String(v).replace(/[&<>"']/g, (ch) => ({"&":"&amp;","<":"&lt;",">":"&gt;","\"":"&quot;","'":"&#39;"}[ch]));

function render(state) {
    $("vehicle-count").textContent = state.status.vehicle_count;
    $("traffic-status").textContent = state.status.traffic_status;
    $("last-plate").textContent = state.status.last_plate;
    $("toll-status").textContent = state.status.toll_status;

    $("history").innerHTML = (state.history || []).map((h) =>
        "<tr><td>" + esc(h.vehicle_number) + "</td><td>" + esc(h.entry_time) + "</td><td>" + esc(dash(h.exit_time)) +
        "</td><td>" + esc(h.status) + "</td><td>" + esc(h.toll_amount == null ? "—" : h.toll_amount.toFixed(2)) + "</td></tr>").join("");

    const a = state.analysis;
    $("analysis").innerHTML = a ? "<p>Total: " + a.total_vehicles + " · Cars: " + a.cars + " · Bikes: " + a.bikes +
        " · Buses: " + a.buses + " · Trucks: " + a.trucks + " · " + esc(a.traffic_status) + "</p>" : "";

    document.querySelectorAll(".upload-btn").forEach((b) => { b.disabled = state.uploading; });
    $("toll-btn").disabled = state.submitting_toll;
    const preview = $("camera-preview");
    if (state.camera_on && !preview.src) preview.src = "/camera/stream";
    if (!state.camera_on && preview.src) preview.removeAttribute("src");
}

async function refreshNotices() {
    const res = await fetch("/api/notices");
    const body = await res.json();
    $("notices").innerHTML = body.notices.map((n) =>
        "<div class=\"notice " + n.level + "\">" + esc(n.message) + "</div>").join("");
}

async function post(url, options) {
    const res = await fetch(url, Object.assign({ method: "POST" }, options || {}));
    await refreshNotices();
    return res;
}

for (const id of ["image-form", "video-form"]) {
    $(id).addEventListener("submit", async (e) => {
        e.preventDefault();
        const form = e.target;
        await post("/api/analyze?kind=" + form.dataset.kind, { body: new FormData(form) });
    });
}

$("camera-start").onclick = () => post("/api/camera/start");
$("camera-stop").onclick = () => post("/api/camera/stop");
$("camera-capture").onclick = () => post("/api/camera/capture");

$("toll-form").addEventListener("submit", async (e) => {
    e.preventDefault();
    const plate = e.target.plate.value;
    const res = await post("/api/toll", {
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({ plate: plate }),
    });
    if (res.ok) e.target.plate.value = "";
});

const events = new EventSource("/api/state/stream");
events.onmessage = (e) => render(JSON.parse(e.data));
</script>
</body>
</html>
`
