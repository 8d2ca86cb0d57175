// Command chat is a terminal client for talking to one agent over the HTTP
// API. It resolves the agent by name, posts human messages and prints the
// assistant replies.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "agentlab server URL")
	tenant := flag.String("tenant", "", "tenant schema header, empty for public")
	agentFlag := flag.String("agent", "", "agent name or id to chat with")
	flag.Parse()

	fmt.Println("agentlab chat")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type 'exit' or 'quit' to leave. Commands: /agents")
	fmt.Println("---")

	agentID := resolveAgent(*server, *tenant, *agentFlag)
	if agentID == "" {
		listAgents(*server, *tenant)
		printError("no agent selected; pass -agent")
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if input == "/agents" {
			listAgents(*server, *tenant)
			continue
		}

		sendMessage(*server, *tenant, agentID, input)
	}
}

type agentRecord struct {
	ID        string `json:"id"`
	AgentName string `json:"agent_name"`
	AgentType string `json:"agent_type"`
	IsActive  bool   `json:"is_active"`
}

func fetchAgents(server, tenant string) []agentRecord {
	req, _ := http.NewRequest(http.MethodGet, server+"/api/agents", nil)
	if tenant != "" {
		req.Header.Set("X-Tenant-Schema", tenant)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		printError("failed to fetch agents: %v", err)
		return nil
	}
	defer resp.Body.Close()

	var agents []agentRecord
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		printError("failed to parse agents: %v", err)
		return nil
	}
	return agents
}

func listAgents(server, tenant string) {
	agents := fetchAgents(server, tenant)
	if len(agents) == 0 {
		fmt.Println("No agents registered yet.")
		return
	}
	fmt.Println("Available agents:")
	for _, a := range agents {
		marker := ""
		if !a.IsActive {
			marker = " (inactive)"
		}
		fmt.Printf("  %s [%s] %s%s\n", a.AgentName, a.AgentType, a.ID, marker)
	}
}

func resolveAgent(server, tenant, nameOrID string) string {
	if nameOrID == "" {
		return ""
	}
	for _, a := range fetchAgents(server, tenant) {
		if a.ID == nameOrID || a.AgentName == nameOrID {
			if !a.IsActive {
				printError("agent %s is deactivated", a.AgentName)
				return ""
			}
			return a.ID
		}
	}
	printError("agent %q not found", nameOrID)
	return ""
}

func sendMessage(server, tenant, agentID, content string) {
	body, _ := json.Marshal(map[string]string{
		"agent_id":        agentID,
		"message_role":    "human",
		"message_content": content,
	})

	req, _ := http.NewRequest(http.MethodPost, server+"/api/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set("X-Tenant-Schema", tenant)
	}

	// Agent turns can run several model calls; give them room.
	client := &http.Client{Timeout: 300 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		printError("request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		printError("server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var msg struct {
		MessageContent string `json:"message_content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		printError("failed to parse response: %v", err)
		return
	}
	fmt.Printf("\033[36m[agent]\033[0m %s\n", msg.MessageContent)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
