package server

import "github.com/a-h/templ"

// sandboxPolicy is what the previewed document may do. It never gets
// allow-same-origin, so it runs in an opaque origin.
const sandboxPolicy = "allow-scripts allow-modals allow-forms allow-popups"

type hostPageData struct {
	Root    string
	Version string
}

// hostPage is the browser shell around the sandboxed preview frame.
func hostPage(d hostPageData) templ.Component {
	return templ.Join(
		templ.Raw("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n"+
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n"),
		textElement("title", "", "srcdoc · "+d.Root),
		templ.Raw("<style>"+hostStyles+"</style>\n</head>\n<body>\n"),
		hostHeader(d),
		templ.Raw("<main>\n"+
			"<iframe id=\"preview\" title=\"Preview\" sandbox=\""+sandboxPolicy+"\"></iframe>\n"+
			"<section id=\"diagnostics\" hidden><h2>Build failed</h2><ul></ul></section>\n"+
			"<section id=\"empty\" hidden><p>Nothing to preview yet.</p></section>\n"+
			"</main>\n"),
		templ.Raw("<script>"+hostScript+"</script>\n</body>\n</html>\n"),
	)
}

func hostHeader(d hostPageData) templ.Component {
	return templ.Join(
		templ.Raw("<header><strong>srcdoc</strong> "),
		textElement("span", `class="root"`, d.Root),
		templ.Raw(` <span id="status">Connecting…</span> `),
		textElement("span", `class="version"`, d.Version),
		templ.Raw("</header>\n"),
	)
}

// textElement renders text escaped inside a tag.
func textElement(tag, attrs, text string) templ.Component {
	open := "<" + tag
	if attrs != "" {
		open += " " + attrs
	}

	return templ.Raw(open + ">" + templ.EscapeString(text) + "</" + tag + ">")
}

const hostStyles = `
*{box-sizing:border-box}
body{margin:0;height:100vh;display:flex;flex-direction:column;font:14px system-ui,sans-serif;background:#f6f7f9}
header{display:flex;gap:.75rem;align-items:center;padding:.5rem 1rem;background:#1f2430;color:#e6e6e6}
header .root{opacity:.7}
header .version{margin-left:auto;opacity:.5}
main{position:relative;flex:1}
iframe{width:100%;height:100%;border:0;background:#fff}
#diagnostics,#empty{position:absolute;inset:0;overflow:auto;padding:1.5rem;background:rgba(255,255,255,.96)}
#diagnostics h2{margin-top:0;color:#b00020}
#diagnostics li{font-family:ui-monospace,monospace;white-space:pre-wrap;margin-bottom:.5rem}
#empty{display:flex;align-items:center;justify-content:center;color:#666}
#empty[hidden],#diagnostics[hidden]{display:none}
`

const hostScript = `
(function () {
  var frame = document.getElementById("preview");
  var statusEl = document.getElementById("status");
  var diagnosticsEl = document.getElementById("diagnostics");
  var emptyEl = document.getElementById("empty");
  var fingerprint = "";
  var latest = 0;
  var settled = 0;

  function show(el) {
    diagnosticsEl.hidden = el !== diagnosticsEl;
    emptyEl.hidden = el !== emptyEl;
  }

  function mount(fp) {
    if (fp === fingerprint) {
      show(null);
      return;
    }
    fetch("/document", { cache: "no-store" }).then(function (res) {
      if (!res.ok) return;
      var served = res.headers.get("X-Srcdoc-Fingerprint");
      return res.text().then(function (html) {
        if (served === fingerprint) return;
        fingerprint = served;
        frame.srcdoc = html;
        show(null);
      });
    });
  }

  function handle(msg) {
    if (msg.generation < latest) return;
    latest = msg.generation;
    if (msg.type === "progress" && msg.generation === settled) return;
    if (msg.type !== "progress") settled = msg.generation;

    switch (msg.type) {
    case "progress":
      statusEl.textContent = "Building… " + (msg.processed || 0) + " files";
      break;
    case "rendered":
      statusEl.textContent = "Up to date";
      mount(msg.fingerprint);
      break;
    case "errors":
      statusEl.textContent = "Build failed";
      var list = diagnosticsEl.querySelector("ul");
      list.textContent = "";
      (msg.diagnostics || []).forEach(function (d) {
        var li = document.createElement("li");
        li.textContent = d;
        list.appendChild(li);
      });
      show(diagnosticsEl);
      break;
    case "empty":
      statusEl.textContent = "Empty";
      show(emptyEl);
      break;
    default:
      statusEl.textContent = "Waiting for files";
    }
  }

  function connect() {
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(scheme + location.host + "/ws");
    ws.onmessage = function (event) { handle(JSON.parse(event.data)); };
    ws.onclose = function () {
      statusEl.textContent = "Disconnected, retrying…";
      setTimeout(connect, 1000);
    };
  }

  connect();
})();
`
