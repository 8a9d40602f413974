package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatContext(t *testing.T) {
	cc := NewChatContext("be brief")
	if cc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", cc.Len())
	}
	cc.Append(RoleUser, "hi").Append(RoleAssistant, "hello")

	cp := cc.Copy()
	cp.Append(RoleUser, "more")

	if cc.Len() != 3 {
		t.Errorf("original Len() = %d, want 3", cc.Len())
	}
	if cp.Len() != 4 {
		t.Errorf("copy Len() = %d, want 4", cp.Len())
	}
	msgs := cc.Messages()
	if msgs[0].Role != RoleSystem || msgs[0].Text != "be brief" {
		t.Errorf("first message = %+v", msgs[0])
	}

	if NewChatContext("").Len() != 0 {
		t.Error("empty system prompt should not add a message")
	}
}

func TestCollect(t *testing.T) {
	m := NewMock()
	m.Usage = Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}

	cc := NewChatContext("sys").Append(RoleUser, "what time is it")
	s, err := m.Chat(context.Background(), cc)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	text, usage, err := Collect(s)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "You said: what time is it" {
		t.Errorf("text = %q", text)
	}
	if usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", usage)
	}
	if len(m.Calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(m.Calls()))
	}
}

type errStream struct{ n int }

func (s *errStream) Recv() (Chunk, error) {
	if s.n == 0 {
		s.n++
		return Chunk{Delta: "part"}, nil
	}
	return Chunk{}, errors.New("boom")
}

func (s *errStream) Close() error { return nil }

func TestCollectError(t *testing.T) {
	text, _, err := Collect(&errStream{})
	if err == nil {
		t.Fatal("expected error")
	}
	if text != "part" {
		t.Errorf("partial text = %q, want %q", text, "part")
	}
}

func TestMockError(t *testing.T) {
	m := &Mock{Reply: func(*ChatContext) (string, error) { return "", io.ErrUnexpectedEOF }}
	if _, err := m.Chat(context.Background(), NewChatContext("")); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v", err)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestOpenAIStream(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hello", " there", "!"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":3,\"total_tokens\":8}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("test"), WithBaseURL(srv.URL+"/v1"), WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer p.Close()

	cc := NewChatContext("sys").Append(RoleUser, "hi")
	s, err := p.Chat(context.Background(), cc)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	text, usage, err := Collect(s)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if text != "Hello there!" {
		t.Errorf("text = %q", text)
	}
	if usage.TotalTokens != 8 {
		t.Errorf("usage = %+v", usage)
	}
	if got.Model != "test-model" || !got.Stream {
		t.Errorf("request model=%q stream=%v", got.Model, got.Stream)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestOpenAIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("bad"), WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	_, err = p.Chat(context.Background(), NewChatContext("").Append(RoleUser, "x"))
	if err == nil || !strings.Contains(err.Error(), "llm [openai]") {
		t.Errorf("err = %v", err)
	}
}
