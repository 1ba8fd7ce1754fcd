// Command orbitctl is a headless client for the orbitlab server. It joins
// over HTTP, dials the websocket endpoint, issues a single render or preset
// command, and prints progress until the job stream ends.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// frameHeader is the common prefix of every server frame; the switch below
// decodes the full per-type payload once the type is known.
type frameHeader struct {
	Type string `json:"type"`
	Job  uint64 `json:"job,omitempty"`
	Seq  uint64 `json:"seq,omitempty"`
}

type helloMsg struct {
	ID              string   `json:"id"`
	Families        []string `json:"families"`
	Presets         []preset `json:"presets"`
	HeartbeatMillis int64    `json:"heartbeatMillis"`
	Resync          bool     `json:"resync"`
}

type preset struct {
	ID     string `json:"id"`
	Family string `json:"family"`
	Title  string `json:"title,omitempty"`
}

type acceptedMsg struct {
	Job    uint64 `json:"job"`
	Family string `json:"family"`
}

type rejectMsg struct {
	Reason string `json:"reason"`
	Retry  bool   `json:"retry"`
}

type gridChunkMsg struct {
	Iters []int32 `json:"iters"`
}

type pointBatchMsg struct {
	Dim    int       `json:"dim"`
	Points []float64 `json:"points"`
}

type segmentBatchMsg struct {
	Segments []float64 `json:"segments"`
}

type progressMsg struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

type doneMsg struct {
	Job           uint64       `json:"job"`
	Cells         int          `json:"cells"`
	Points        int          `json:"points"`
	Segments      int          `json:"segments"`
	Roots         [][2]float64 `json:"roots"`
	ElapsedMillis int64        `json:"elapsedMillis"`
}

type failedMsg struct {
	Job    uint64 `json:"job"`
	Reason string `json:"reason"`
}

type heartbeatMsg struct {
	RTT int64 `json:"rtt"`
}

type client struct {
	conn *websocket.Conn

	mu  sync.Mutex
	job atomic.Uint64
	ack atomic.Uint64
}

func (c *client) write(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(wctx, c.conn, v)
}

func (c *client) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat := map[string]any{
				"type":   "heartbeat",
				"sentAt": time.Now().UnixMilli(),
			}
			if job := c.job.Load(); job != 0 {
				beat["job"] = job
				beat["ack"] = c.ack.Load()
			}
			if err := c.write(ctx, beat); err != nil {
				return
			}
		}
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	presetID := flag.String("preset", "", "render a catalog preset by id")
	family := flag.String("family", "", "render an ad-hoc spec for this generator family")
	width := flag.Int("width", 0, "grid width override")
	height := flag.Int("height", 0, "grid height override")
	maxIter := flag.Int("iter", 0, "iteration budget override")
	count := flag.Int("count", 0, "point count override")
	depth := flag.Int("depth", 0, "rewrite or recursion depth override")
	order := flag.Int("order", 0, "curve order override")
	curve := flag.String("curve", "", "curve family for -family curve")
	solid := flag.String("solid", "", "solid name for chaos families")
	seed := flag.String("seed", "", "deterministic job seed")
	list := flag.Bool("list", false, "list server presets and exit")
	verbose := flag.Bool("v", false, "log every frame")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	if !*list && *presetID == "" && *family == "" {
		fmt.Fprintln(os.Stderr, "orbitctl: either -preset or -family is required")
		flag.Usage()
		os.Exit(2)
	}

	overrides := map[string]any{}
	if *width > 0 {
		overrides["width"] = *width
	}
	if *height > 0 {
		overrides["height"] = *height
	}
	if *maxIter > 0 {
		overrides["maxIter"] = *maxIter
	}
	if *count > 0 {
		overrides["count"] = *count
	}
	if *depth > 0 {
		overrides["depth"] = *depth
	}
	if *order > 0 {
		overrides["order"] = *order
	}
	if *curve != "" {
		overrides["curve"] = *curve
	}
	if *solid != "" {
		overrides["solid"] = *solid
	}
	if *seed != "" {
		overrides["seed"] = *seed
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *addr, *presetID, *family, overrides, *list, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "orbitctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, presetID, family string, overrides map[string]any, list, verbose bool) error {
	viewerID, err := join(ctx, addr)
	if err != nil {
		return err
	}

	wsURL := fmt.Sprintf("ws://%s/ws?id=%s", addr, url.QueryEscape(viewerID))
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 24)

	_, raw, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	var head frameHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("decoding hello: %w", err)
	}
	if head.Type != "hello" {
		return fmt.Errorf("expected hello, got %q", head.Type)
	}
	var hello helloMsg
	if err := json.Unmarshal(raw, &hello); err != nil {
		return fmt.Errorf("decoding hello: %w", err)
	}

	if list {
		fmt.Printf("families: %v\n", hello.Families)
		if len(hello.Presets) == 0 {
			fmt.Println("no presets loaded")
		}
		for _, p := range hello.Presets {
			title := p.Title
			if title == "" {
				title = "-"
			}
			fmt.Printf("%-24s %-16s %s\n", p.ID, p.Family, title)
		}
		return conn.Close(websocket.StatusNormalClosure, "done")
	}

	cmd := map[string]any{
		"seq":    uint64(1),
		"sentAt": time.Now().UnixMilli(),
	}
	if presetID != "" {
		cmd["type"] = "preset"
		cmd["preset"] = presetID
		if len(overrides) > 0 {
			cmd["overrides"] = overrides
		}
	} else {
		spec := map[string]any{"family": family}
		for key, value := range overrides {
			spec[key] = value
		}
		cmd["type"] = "render"
		cmd["spec"] = spec
	}

	c := &client{conn: conn}
	if err := c.write(ctx, cmd); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	interval := 2 * time.Second
	if hello.HeartbeatMillis > 0 {
		interval = time.Duration(hello.HeartbeatMillis) * time.Millisecond
	}
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeatLoop(hbCtx, interval)

	started := time.Now()
	var cells, points, segments, frames int
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("stream ended early: %w", err)
		}
		var head frameHeader
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("decoding frame: %w", err)
		}
		if head.Job != 0 && head.Seq != 0 {
			c.job.Store(head.Job)
			c.ack.Store(head.Seq)
		}
		if verbose && head.Type != "heartbeat" {
			fmt.Printf("frame %s job=%d seq=%d\n", head.Type, head.Job, head.Seq)
		}

		switch head.Type {
		case "commandAck":
			if head.Job != 0 {
				c.job.Store(head.Job)
			}
		case "commandReject":
			var msg rejectMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding reject: %w", err)
			}
			return fmt.Errorf("command rejected: %s", msg.Reason)
		case "jobAccepted":
			var msg acceptedMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding jobAccepted: %w", err)
			}
			fmt.Printf("job %d accepted (family %s)\n", msg.Job, msg.Family)
		case "gridChunk":
			var msg gridChunkMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding gridChunk: %w", err)
			}
			frames++
			cells += len(msg.Iters)
		case "pointBatch":
			var msg pointBatchMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding pointBatch: %w", err)
			}
			frames++
			dim := msg.Dim
			if dim <= 0 {
				dim = 2
			}
			points += len(msg.Points) / dim
		case "segmentBatch":
			var msg segmentBatchMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding segmentBatch: %w", err)
			}
			frames++
			segments += len(msg.Segments) / 4
		case "progress":
			var msg progressMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding progress: %w", err)
			}
			if msg.Total > 0 {
				fmt.Printf("progress %d/%d (%.0f%%)\n", msg.Done, msg.Total, 100*float64(msg.Done)/float64(msg.Total))
			}
		case "jobDone":
			var msg doneMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding jobDone: %w", err)
			}
			fmt.Printf("job %d done in %dms: frames=%d cells=%d points=%d segments=%d",
				msg.Job, msg.ElapsedMillis, frames, cells, points, segments)
			if len(msg.Roots) > 0 {
				fmt.Printf(" roots=%d", len(msg.Roots))
			}
			fmt.Printf(" (wall %s)\n", time.Since(started).Round(time.Millisecond))
			return conn.Close(websocket.StatusNormalClosure, "done")
		case "jobFailed":
			var msg failedMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("decoding jobFailed: %w", err)
			}
			return fmt.Errorf("job %d failed: %s", msg.Job, msg.Reason)
		case "heartbeat":
			if verbose {
				var msg heartbeatMsg
				if err := json.Unmarshal(raw, &msg); err == nil {
					fmt.Printf("heartbeat rtt=%dms\n", msg.RTT)
				}
			}
		}
	}
}

func join(ctx context.Context, addr string) (string, error) {
	joinURL := fmt.Sprintf("http://%s/join", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("join %s: %w", joinURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("join %s: status %d", joinURL, resp.StatusCode)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding join response: %w", err)
	}
	if payload.ID == "" {
		return "", fmt.Errorf("join %s: empty viewer id", joinURL)
	}
	return payload.ID, nil
}
