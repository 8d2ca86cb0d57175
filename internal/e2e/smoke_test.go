//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("AGENTLAB_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func postJSON(t *testing.T, path string, payload any, out any) int {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

// TestEchoAgentRoundTrip provisions an integration, a language model and a
// test_echo agent, then runs one conversational turn end to end.
func TestEchoAgentRoundTrip(t *testing.T) {
	var integration struct {
		ID string `json:"id"`
	}
	status := postJSON(t, "/api/integrations", map[string]string{
		"integration_type": "openai_api_v1",
		"api_endpoint":     "http://localhost:9999/v1",
		"api_key":          "smoke-test",
	}, &integration)
	if status != http.StatusCreated {
		t.Fatalf("create integration: status %d", status)
	}

	var lm struct {
		ID string `json:"id"`
	}
	status = postJSON(t, "/api/language-models", map[string]string{
		"integration_id":     integration.ID,
		"language_model_tag": "smoke-model",
	}, &lm)
	if status != http.StatusCreated {
		t.Fatalf("create language model: status %d", status)
	}

	var agent struct {
		ID string `json:"id"`
	}
	status = postJSON(t, "/api/agents", map[string]string{
		"agent_name":        "smoke-echo",
		"agent_type":        "test_echo",
		"language_model_id": lm.ID,
	}, &agent)
	if status != http.StatusCreated {
		t.Fatalf("create agent: status %d", status)
	}

	var reply struct {
		ID             string  `json:"id"`
		MessageRole    string  `json:"message_role"`
		MessageContent string  `json:"message_content"`
		RepliesTo      *string `json:"replies_to"`
	}
	status = postJSON(t, "/api/messages", map[string]string{
		"agent_id":        agent.ID,
		"message_content": "ping",
	}, &reply)
	if status != http.StatusCreated {
		t.Fatalf("post message: status %d", status)
	}
	if reply.MessageRole != "assistant" {
		t.Errorf("message_role = %q, want assistant", reply.MessageRole)
	}
	if reply.RepliesTo == nil {
		t.Error("assistant reply carries no replies_to")
	}

	resp, err := http.Get(baseURL + "/api/messages/" + reply.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get message: status %d", resp.StatusCode)
	}
}
