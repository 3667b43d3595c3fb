package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/vocalq/outbound/pkg/provider/s2s"
	"github.com/vocalq/outbound/pkg/provider/s2s/gemini"
	"github.com/vocalq/outbound/pkg/types"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server. The handler receives the
// accepted conn. The server is automatically closed when the test finishes.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// ── TestCapabilities ───────────────────────────────────────────────────────────

func TestCapabilities(t *testing.T) {
	t.Parallel()
	p := gemini.New("key")
	caps := p.Capabilities()
	if caps.InputSampleRate != 16000 {
		t.Errorf("InputSampleRate = %d; want 16000", caps.InputSampleRate)
	}
	if caps.OutputSampleRate != 24000 {
		t.Errorf("OutputSampleRate = %d; want 24000", caps.OutputSampleRate)
	}
	if caps.ExplicitTurnDetection {
		t.Error("ExplicitTurnDetection should be false for the Live API")
	}
	if len(caps.Voices) == 0 {
		t.Error("Voices should be non-empty")
	}
}

// ── TestConnect ────────────────────────────────────────────────────────────────

func TestConnect_SendsSetup(t *testing.T) {
	t.Parallel()

	received := make(chan map[string]any, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg map[string]any
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithModel("gemini-2.0-flash-live-001"), gemini.WithBaseURL(wsURL(srv)))
	cfg := s2s.SessionConfig{
		Voice:        types.VoiceProfile{ID: "Puck"},
		Instructions: "You are a support agent.",
		Tools:        []types.ToolDefinition{{Name: "search_knowledge_base"}},
	}
	handle, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case msg := <-received:
		setup, ok := msg["setup"].(map[string]any)
		if !ok {
			t.Fatal("setup field missing")
		}
		if setup["model"] != "models/gemini-2.0-flash-live-001" {
			t.Errorf("model = %v; want models/gemini-2.0-flash-live-001", setup["model"])
		}
		si, _ := setup["systemInstruction"].(map[string]any)
		if si == nil {
			t.Error("systemInstruction missing")
		}
		if _, ok := setup["inputAudioTranscription"]; !ok {
			t.Error("inputAudioTranscription should be requested")
		}
		if _, ok := setup["outputAudioTranscription"]; !ok {
			t.Error("outputAudioTranscription should be requested")
		}
		tools, _ := setup["tools"].([]any)
		if len(tools) == 0 {
			t.Error("tools should be non-empty")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup message")
	}
}

func TestConnect_APIKeyInURL(t *testing.T) {
	t.Parallel()

	keyInURL := make(chan string, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		keyInURL <- r.URL.Query().Get("key")
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("my-secret-key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case k := <-keyInURL:
		if k != "my-secret-key" {
			t.Errorf("key = %q; want my-secret-key", k)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

// ── TestSendAudio ──────────────────────────────────────────────────────────────

func TestSendAudio_SendsRealtimeInput(t *testing.T) {
	t.Parallel()

	type realtimeMsg struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}

	audioMsg := make(chan realtimeMsg, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		// Consume setup.
		var raw map[string]any
		readJSON(t, conn, &raw)

		var msg realtimeMsg
		readJSON(t, conn, &msg)
		audioMsg <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	wantPCM := []byte{0x01, 0x02, 0x03, 0x04}
	if err := handle.SendAudio(wantPCM); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-audioMsg:
		if len(msg.RealtimeInput.MediaChunks) != 1 {
			t.Fatalf("mediaChunks = %d; want 1", len(msg.RealtimeInput.MediaChunks))
		}
		chunk := msg.RealtimeInput.MediaChunks[0]
		if chunk.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("mimeType = %q; want audio/pcm;rate=16000", chunk.MIMEType)
		}
		got, err := base64.StdEncoding.DecodeString(chunk.Data)
		if err != nil {
			t.Fatalf("base64 decode: %v", err)
		}
		if string(got) != string(wantPCM) {
			t.Errorf("decoded audio = %v; want %v", got, wantPCM)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for realtimeInput")
	}
}

// ── TestAudio / Transcripts ────────────────────────────────────────────────────

func TestAudio_DeliversModelTurnAudio(t *testing.T) {
	t.Parallel()

	wantPCM := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	encoded := base64.StdEncoding.EncodeToString(wantPCM)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm", "data": encoded}},
					},
				},
			},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case chunk, ok := <-handle.Audio():
		if !ok {
			t.Fatal("Audio channel closed unexpectedly")
		}
		if string(chunk) != string(wantPCM) {
			t.Errorf("audio chunk = %v; want %v", chunk, wantPCM)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio chunk")
	}
}

func TestTranscripts_InputAndOutputTranscription(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"inputTranscription": map[string]any{"text": "What is your refund policy?"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"outputTranscription": map[string]any{"text": "Refunds take five business days."},
			},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	want := []struct {
		role    string
		content string
	}{
		{"user", "What is your refund policy?"},
		{"assistant", "Refunds take five business days."},
	}
	for i, w := range want {
		select {
		case turn, ok := <-handle.Transcripts():
			if !ok {
				t.Fatal("Transcripts channel closed unexpectedly")
			}
			if turn.Role != w.role {
				t.Errorf("turn[%d] role = %q; want %q", i, turn.Role, w.role)
			}
			if turn.Content != w.content {
				t.Errorf("turn[%d] content = %q; want %q", i, turn.Content, w.content)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for transcript %d", i)
		}
	}
}

// ── TestOnInterrupted ──────────────────────────────────────────────────────────

func TestOnInterrupted_FiresOnInterruptedContent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"interrupted": true},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	fired := make(chan struct{}, 1)
	handle.OnInterrupted(func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for interruption callback")
	}
}

// ── TestOnToolCall ─────────────────────────────────────────────────────────────

func TestOnToolCall_SendsToolResponse(t *testing.T) {
	t.Parallel()

	toolResponse := make(chan map[string]any, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		writeJSON(t, conn, map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []map[string]any{
					{"id": "fc-1", "name": "search_knowledge_base", "args": map[string]any{"query": "pricing"}},
				},
			},
		})

		var resp map[string]any
		readJSON(t, conn, &resp)
		toolResponse <- resp

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	handlerCalled := make(chan string, 1)
	handle.OnToolCall(func(name, args string) (string, error) {
		handlerCalled <- name
		return "Our pricing starts at $49 per month.", nil
	})

	select {
	case name := <-handlerCalled:
		if name != "search_knowledge_base" {
			t.Errorf("handler called with %q; want search_knowledge_base", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	select {
	case resp := <-toolResponse:
		tr, _ := resp["toolResponse"].(map[string]any)
		if tr == nil {
			t.Fatalf("toolResponse missing in %v", resp)
		}
		frs, _ := tr["functionResponses"].([]any)
		if len(frs) != 1 {
			t.Fatalf("functionResponses = %d; want 1", len(frs))
		}
		fr, _ := frs[0].(map[string]any)
		if fr["id"] != "fc-1" {
			t.Errorf("id = %v; want fc-1", fr["id"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for toolResponse")
	}
}

// ── TestStartConversation ──────────────────────────────────────────────────────

func TestStartConversation_SendsClientContentTurn(t *testing.T) {
	t.Parallel()

	received := make(chan map[string]any, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)

		var msg map[string]any
		readJSON(t, conn, &msg)
		received <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{Greeting: "Hello!"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if err := handle.StartConversation(); err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	select {
	case msg := <-received:
		cc, _ := msg["clientContent"].(map[string]any)
		if cc == nil {
			t.Fatalf("clientContent missing in %v", msg)
		}
		if cc["turnComplete"] != true {
			t.Error("turnComplete should be true")
		}
		data, _ := json.Marshal(cc)
		if !strings.Contains(string(data), "Answer the call.") {
			t.Errorf("expected greeting trigger turn, got %s", data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for clientContent")
	}
}

// ── TestEnableTurnDetection / Interrupt are no-ops ─────────────────────────────

func TestEnableTurnDetection_NoOp(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if err := handle.EnableTurnDetection(); err != nil {
		t.Errorf("EnableTurnDetection should be a no-op, got %v", err)
	}
	if err := handle.Interrupt(); err != nil {
		t.Errorf("Interrupt should be a no-op, got %v", err)
	}
}

// ── TestClose ──────────────────────────────────────────────────────────────────

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
}

func TestClose_ClosesChannels(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_ = handle.Close()

	select {
	case _, open := <-handle.Audio():
		if open {
			t.Error("Audio channel should be closed after Close()")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Audio channel to close")
	}
}
