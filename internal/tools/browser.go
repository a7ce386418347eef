package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/stewardhq/steward/internal/session"
)

// browserSession manages a single lazily-launched headless Chrome process
// and its CDP WebSocket connection. Grounded on jholhewres-goclaw's
// BrowserManager, generalized to a single tagged-action tool over
// github.com/coder/websocket instead of gorilla/websocket.
type browserSession struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	conn    *websocket.Conn
	wsURL   string
	msgID   int
	started bool
}

type browserParams struct {
	Action   string `json:"action"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Script   string `json:"script,omitempty"`
}

const browserOpTimeout = 30 * time.Second

func browserToolDef() Tool {
	bs := &browserSession{}
	return Tool{
		Spec: session.ToolSpec{
			Name:        "browser",
			Description: "Control a headless browser via Chrome DevTools Protocol. Actions: open (launches/resets the browser), navigate (go to a URL), click (CSS selector), screenshot (base64 PNG), eval (run JavaScript and return its value).",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"action": {"type": "string", "enum": ["open", "navigate", "click", "screenshot", "eval"]},
					"url": {"type": "string"},
					"selector": {"type": "string"},
					"script": {"type": "string"}
				},
				"required": ["action"]
			}`),
		},
		Execute: func(ctx context.Context, params json.RawMessage) ([]session.Block, error) {
			var in browserParams
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}

			switch in.Action {
			case "open":
				if err := bs.start(ctx); err != nil {
					return nil, fmt.Errorf("browser open: %w", err)
				}
				return textBlocks("browser ready"), nil
			case "navigate":
				if in.URL == "" {
					return nil, fmt.Errorf("browser navigate: url is required")
				}
				url := in.URL
				if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
					url = "https://" + url
				}
				if err := bs.navigate(ctx, url); err != nil {
					return nil, fmt.Errorf("browser navigate: %w", err)
				}
				return textBlocks(fmt.Sprintf("navigated to %s", url)), nil
			case "click":
				if in.Selector == "" {
					return nil, fmt.Errorf("browser click: selector is required")
				}
				if err := bs.click(ctx, in.Selector); err != nil {
					return nil, fmt.Errorf("browser click: %w", err)
				}
				return textBlocks(fmt.Sprintf("clicked %s", in.Selector)), nil
			case "screenshot":
				data, err := bs.screenshot(ctx)
				if err != nil {
					return nil, fmt.Errorf("browser screenshot: %w", err)
				}
				return []session.Block{{Kind: session.BlockImage, ImageData: data, ImageMimeType: "image/png"}}, nil
			case "eval":
				if in.Script == "" {
					return nil, fmt.Errorf("browser eval: script is required")
				}
				value, err := bs.eval(ctx, in.Script)
				if err != nil {
					return nil, fmt.Errorf("browser eval: %w", err)
				}
				return textBlocks(value), nil
			default:
				return nil, fmt.Errorf("unknown browser action %q", in.Action)
			}
		},
	}
}

func (b *browserSession) start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	chromePath := findChromeBinary()
	if chromePath == "" {
		return fmt.Errorf("chrome/chromium binary not found on PATH")
	}

	port, err := allocateLocalPort()
	if err != nil {
		return fmt.Errorf("allocate CDP port: %w", err)
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--headless=new",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-extensions",
		"--disable-gpu",
		"--no-sandbox",
		"about:blank",
	}
	b.cmd = exec.CommandContext(context.Background(), chromePath, args...)
	if err := b.cmd.Start(); err != nil {
		return fmt.Errorf("start chrome: %w", err)
	}

	wsURL, err := waitForCDPEndpoint(ctx, port, 10*time.Second)
	if err != nil {
		_ = b.cmd.Process.Kill()
		return fmt.Errorf("CDP not ready: %w", err)
	}
	b.wsURL = wsURL
	b.started = true
	return nil
}

func (b *browserSession) connect(ctx context.Context) (*websocket.Conn, error) {
	if b.conn != nil {
		return b.conn, nil
	}
	conn, _, err := websocket.Dial(ctx, b.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("CDP dial: %w", err)
	}
	b.conn = conn
	return conn, nil
}

func (b *browserSession) send(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	b.msgID++
	id := b.msgID
	msg := map[string]any{"id": id, "method": method}
	if params != nil {
		msg["params"] = params
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, browserOpTimeout)
	defer cancel()

	if err := conn.Write(opCtx, websocket.MessageText, data); err != nil {
		b.conn = nil
		return nil, fmt.Errorf("CDP write: %w", err)
	}

	for {
		_, raw, err := conn.Read(opCtx)
		if err != nil {
			b.conn = nil
			return nil, fmt.Errorf("CDP read: %w", err)
		}
		var resp struct {
			ID     int             `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &resp) == nil && resp.ID == id {
			if resp.Error != nil {
				return nil, fmt.Errorf("CDP error: %s", resp.Error.Message)
			}
			return resp.Result, nil
		}
	}
}

func (b *browserSession) navigate(ctx context.Context, url string) error {
	if err := b.start(ctx); err != nil {
		return err
	}
	_, err := b.send(ctx, "Page.navigate", map[string]any{"url": url})
	if err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return nil
}

func (b *browserSession) click(ctx context.Context, selector string) error {
	if err := b.start(ctx); err != nil {
		return err
	}
	js := fmt.Sprintf(`(function(){var el=document.querySelector(%q); if(!el) return "not_found"; el.click(); return "ok";})()`, selector)
	value, err := b.evalRaw(ctx, js)
	if err != nil {
		return err
	}
	if value == "not_found" {
		return fmt.Errorf("element not found: %s", selector)
	}
	return nil
}

func (b *browserSession) screenshot(ctx context.Context) (string, error) {
	if err := b.start(ctx); err != nil {
		return "", err
	}
	result, err := b.send(ctx, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return "", err
	}
	var out struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", err
	}
	return out.Data, nil
}

func (b *browserSession) eval(ctx context.Context, script string) (string, error) {
	if err := b.start(ctx); err != nil {
		return "", err
	}
	return b.evalRaw(ctx, script)
}

func (b *browserSession) evalRaw(ctx context.Context, script string) (string, error) {
	result, err := b.send(ctx, "Runtime.evaluate", map[string]any{"expression": script, "returnByValue": true})
	if err != nil {
		return "", err
	}
	var out struct {
		Result struct {
			Value any `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", out.Result.Value), nil
}

func (b *browserSession) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close(websocket.StatusNormalClosure, "")
		b.conn = nil
	}
	if b.cmd != nil && b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
		_ = b.cmd.Wait()
	}
	b.started = false
}

func findChromeBinary() string {
	candidates := []string{
		"google-chrome", "google-chrome-stable", "chromium-browser", "chromium",
		"/usr/bin/google-chrome", "/usr/bin/chromium-browser",
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path
		}
	}
	return ""
}

func allocateLocalPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port, nil
}

func waitForCDPEndpoint(ctx context.Context, port int, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	client := &http.Client{Timeout: 2 * time.Second}

	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil {
			var info struct {
				WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&info)
			resp.Body.Close()
			if decodeErr == nil && info.WebSocketDebuggerURL != "" {
				return info.WebSocketDebuggerURL, nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for CDP on port %d", port)
}
