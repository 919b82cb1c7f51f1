package debugagent

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/DataExMachina-dev/safepoint-go/internal/debugsvc"
)

// HTTPHandler renders the agent's threads. POSTs with suspend=<id>,
// resume=<id>, suspendall or resumeall act on them first.
func (a *Agent) HTTPHandler() http.Handler {
	return httpHandler{a: a}
}

type httpHandler struct {
	a *Agent
}

func (h httpHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// GETs render the current state of the threads.
	if req.Method == http.MethodGet {
		h.handleGet(w, req.Context())
		return
	}
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := req.ParseForm(); err != nil {
		h.a.cfg.errorLogger(fmt.Errorf("failed to parse form: %w", err))
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	ctx := req.Context()
	s := h.a.server
	var err error
	switch {
	case req.Form.Has("suspend"):
		var id uint32
		if id, err = parseID(req.Form.Get("suspend")); err == nil {
			_, err = s.SuspendThread(ctx, wrapperspb.UInt32(id))
		}
	case req.Form.Has("resume"):
		var id uint32
		if id, err = parseID(req.Form.Get("resume")); err == nil {
			_, err = s.ResumeThread(ctx, wrapperspb.UInt32(id))
		}
	case req.Form.Has("suspendall"):
		_, err = s.SuspendAll(ctx, &emptypb.Empty{})
	case req.Form.Has("resumeall"):
		_, err = s.ResumeAll(ctx, &emptypb.Empty{})
	default:
		err = fmt.Errorf("invalid POST: missing suspend/resume/suspendall/resumeall")
	}
	if err != nil {
		h.a.cfg.errorLogger(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Generate the page after the update.
	h.handleGet(w, ctx)
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid thread id %q: %w", s, err)
	}
	return uint32(id), nil
}

func (h httpHandler) handleGet(w http.ResponseWriter, ctx context.Context) {
	threads, err := h.a.server.ListThreads(ctx, &emptypb.Empty{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	sb := strings.Builder{}
	sb.WriteString(`<html>
<head>
	<title>Threads</title>
	<style>
	td, th { padding: 2px 8px; text-align: left; }
	.suspended { color: red; }
	</style>
</head>
<body>
<h1>Threads</h1>
<form action="" method="POST">
<input type="submit" value="Suspend all" name="suspendall"/>
<input type="submit" value="Resume all" name="resumeall"/>
</form>
<table>
<tr><th>id</th><th>name</th><th>state</th><th>suspend count</th><th>debug suspend count</th><th></th></tr>
`)
	for _, v := range threads.GetValues() {
		ti, err := debugsvc.ThreadInfoFromStruct(v.GetStructValue())
		if err != nil {
			h.a.cfg.errorLogger(err)
			continue
		}
		class := ""
		if ti.SuspendCount > 0 {
			class = ` class="suspended"`
		}
		daemon := ""
		if ti.Daemon {
			daemon = " (daemon)"
		}
		sb.WriteString(fmt.Sprintf(`<tr%s><td>%d</td><td>%s%s</td><td>%s</td><td>%d</td><td>%d</td>
<td><form action="" method="POST" style="margin:0">
<button name="suspend" value="%d">Suspend</button>
<button name="resume" value="%d">Resume</button>
</form></td></tr>
`, class, ti.ID, html.EscapeString(ti.Name), daemon, ti.State, ti.SuspendCount, ti.DebugSuspendCount, ti.ID, ti.ID))
	}
	sb.WriteString(`</table>
</body>
</html>`)

	_, err = w.Write([]byte(sb.String()))
	if err != nil {
		h.a.cfg.errorLogger(fmt.Errorf("failed to write response: %w", err))
	}
}
