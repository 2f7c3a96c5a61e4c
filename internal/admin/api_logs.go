package admin

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/inkdust2021/ringsnap/internal/config"
	rslog "github.com/inkdust2021/ringsnap/internal/log"
)

type LogsResponse struct {
	Path   string   `json:"path"`
	Exists bool     `json:"exists"`
	Lines  []string `json:"lines"`
	Error  string   `json:"error,omitempty"`
}

func (a *Admin) logPath() string {
	p := strings.TrimSpace(a.config.Get().Log.File)
	if p == "" {
		p = config.Default().Log.File
	}
	return rslog.ExpandPath(p)
}

func (a *Admin) logsResponse(path string, tail int) LogsResponse {
	resp := LogsResponse{Path: path, Exists: fileExists(path)}
	lines, err := tailFileLines(path, tail)
	if err != nil {
		// 文件不存在/不可读：返回空列表，并把错误交给前端提示。
		slog.Debug("Read logs failed", "path", path, "error", err)
		resp.Error = err.Error()
	}
	resp.Lines = lines
	return resp
}

// handleLogs handles GET /manager/api/logs?tail=200
func (a *Admin) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tail := clampInt(queryInt(r, "tail", 200), 1, 2000)
	writeJSON(w, http.StatusOK, a.logsResponse(a.logPath(), tail))
}

// handleLogsStream handles GET /manager/api/logs/stream?tail=200
func (a *Admin) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	send := func(event string, v any) {
		data, _ := json.Marshal(v)
		_, _ = w.Write([]byte("event: " + event + "\n"))
		_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	path := a.logPath()
	tail := clampInt(queryInt(r, "tail", 200), 1, 2000)
	send("logs_init", a.logsResponse(path, tail))

	follow := newLogFollower(path)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if lines := follow.poll(); len(lines) > 0 {
				send("logs_append", map[string]any{"lines": lines})
			}
		}
	}
}

// logFollower 从文件末尾开始读取新增的完整行，文件被截断或轮转时从头再读。
type logFollower struct {
	path  string
	pos   int64
	carry []byte
}

const maxFollowRead int64 = 256 * 1024

func newLogFollower(path string) *logFollower {
	f := &logFollower{path: path}
	if st, err := os.Stat(path); err == nil {
		f.pos = st.Size()
	}
	return f
}

func (f *logFollower) poll() []string {
	st, err := os.Stat(f.path)
	if err != nil {
		return nil
	}
	size := st.Size()
	if size < f.pos {
		f.pos = 0
		f.carry = f.carry[:0]
	}
	if size == f.pos {
		return nil
	}

	start := f.pos
	if size-start > maxFollowRead {
		// 变更过大：只取最后一段
		start = size - maxFollowRead
		f.carry = f.carry[:0]
	}
	b, err := readFileRange(f.path, start, size)
	f.pos = size
	if err != nil || len(b) == 0 {
		return nil
	}

	data := append(f.carry, b...)
	complete, carry := splitCompleteLines(data)
	f.carry = append([]byte(nil), carry...)

	lines := make([]string, 0, len(complete))
	for _, ln := range complete {
		ln = bytes.TrimSuffix(ln, []byte("\r"))
		if len(ln) > 0 {
			lines = append(lines, string(ln))
		}
	}
	return lines
}

func readFileRange(path string, start, end int64) ([]byte, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(f, end-start))
}

func tailFileLines(path string, tail int) ([]string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return nil, nil
	}

	// 从文件末尾逐步扩大读取窗口，直到换行足够或读到开头。
	window := int64(64 * 1024)
	var buf []byte
	for {
		if window > size {
			window = size
		}
		start := size - window
		if buf, err = readFileRange(path, start, size); err != nil {
			return nil, err
		}
		if bytes.Count(buf, []byte("\n")) > tail || start == 0 {
			break
		}
		window *= 2
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(buf))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(lines) <= tail {
		return lines, nil
	}
	return lines[len(lines)-tail:], nil
}

// splitCompleteLines 返回以 \n 结尾的完整行，剩余的半行作为 carry。
func splitCompleteLines(data []byte) (lines [][]byte, carry []byte) {
	if len(data) == 0 {
		return nil, nil
	}
	parts := bytes.Split(data, []byte("\n"))
	carry = parts[len(parts)-1]
	return parts[:len(parts)-1], carry
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
