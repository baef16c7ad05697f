package api

import (
	"html/template"
	"net/http"
)

var chatPageTmpl = template.Must(template.New("chat").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>{{.Title}}</title>
  <style>
    body{font-family:ui-sans-serif,system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial; margin:0; color:#0f172a; background:#ffffff}
    .wrap{max-width:760px; margin:0 auto; padding:24px 16px 120px}
    h1{font-size:18px; margin:0 0 16px 0}
    .turn{display:flex; gap:10px; margin:12px 0}
    .avatar{flex:none; width:28px; height:28px; border-radius:999px; display:flex; align-items:center; justify-content:center; font-size:14px; background:#f1f5f9}
    .interviewer .avatar{background:#dbeafe}
    .bubble{border:1px solid #e2e8f0; border-radius:12px; padding:8px 12px; line-height:1.45}
    .bubble p{margin:0 0 8px 0}
    .bubble p:last-child{margin:0}
    .respondent .bubble{background:#f8fafc}
    .bar{position:fixed; left:0; right:0; bottom:0; background:#ffffff; border-top:1px solid #e2e8f0}
    .bar form{max-width:760px; margin:0 auto; padding:12px 16px; display:flex; gap:8px}
    .bar input{flex:1; padding:10px 12px; border:1px solid #cbd5e1; border-radius:8px; font-size:15px}
    .bar button{padding:10px 14px; border:1px solid #cbd5e1; border-radius:8px; background:#f1f5f9; cursor:pointer}
    .bar button.quit{color:#b91c1c}
    .notice{margin-top:16px; padding:10px 12px; border-radius:8px; background:#dcfce7}
    a{color:#2563eb}
  </style>
</head>
<body>
  <div class="wrap">
    <h1>{{.Title}}</h1>
    <div id="log"></div>
    <div id="notice"></div>
  </div>
  <div class="bar">
    <form id="input">
      <input id="text" autocomplete="off" placeholder="Your message here" disabled/>
      <button type="submit" id="send" disabled>Send</button>
      <button type="button" class="quit" id="quit" disabled>Quit</button>
    </form>
  </div>
<script>
(function(){
  var log = document.getElementById("log");
  var text = document.getElementById("text");
  var send = document.getElementById("send");
  var quit = document.getElementById("quit");
  var notice = document.getElementById("notice");
  var partial = null;
  var ended = false;

  function bubble(role, html){
    var row = document.createElement("div");
    row.className = "turn " + role;
    var av = document.createElement("div");
    av.className = "avatar";
    av.textContent = role === "interviewer" ? "🎓" : "👤";
    var b = document.createElement("div");
    b.className = "bubble";
    b.innerHTML = html;
    row.appendChild(av);
    row.appendChild(b);
    log.appendChild(row);
    window.scrollTo(0, document.body.scrollHeight);
    return b;
  }

  function enable(on){
    text.disabled = !on; send.disabled = !on; quit.disabled = !on;
    if (on) { text.focus(); }
  }

  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(scheme + location.host + "{{.SocketPath}}" + location.search);

  ws.onmessage = function(e){
    var f = JSON.parse(e.data);
    if (f.type === "partial") {
      if (!partial) { partial = bubble("interviewer", ""); }
      partial.innerHTML = f.html;
      return;
    }
    if (f.type === "message") {
      if (f.role === "interviewer" && partial) {
        partial.innerHTML = f.html;
        partial = null;
      } else {
        bubble(f.role, f.html);
      }
      if (f.role === "interviewer" && !ended) { enable(true); }
      return;
    }
    if (f.type === "end") {
      ended = true;
      enable(false);
      if (f.redirect_url) {
        var a = document.createElement("a");
        a.href = f.redirect_url;
        a.textContent = "Return to the survey";
        notice.className = "notice";
        notice.textContent = "Thank you. You will be redirected shortly. ";
        notice.appendChild(a);
        setTimeout(function(){ window.location.href = f.redirect_url; }, f.redirect_delay_ms || 0);
      }
    }
  };
  ws.onclose = function(){ enable(false); };

  document.getElementById("input").addEventListener("submit", function(ev){
    ev.preventDefault();
    var v = text.value.trim();
    if (!v) { return; }
    text.value = "";
    enable(false);
    ws.send(JSON.stringify({type: "message", text: v}));
  });
  quit.addEventListener("click", function(){
    enable(false);
    ws.send(JSON.stringify({type: "quit"}));
  });
})();
</script>
</body>
</html>`))

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = chatPageTmpl.Execute(w, struct {
		Title      string
		SocketPath string
	}{
		Title:      "Interview",
		SocketPath: "/ws",
	})
}
