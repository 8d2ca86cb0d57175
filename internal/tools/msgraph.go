package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
)

// GraphClient looks people up in a Microsoft Entra ID directory using the
// client credentials flow.
type GraphClient struct {
	tenantID     string
	clientID     string
	clientSecret string
	client       *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewGraphClient creates a Microsoft Graph client.
func NewGraphClient(tenantID, clientID, clientSecret string, logger *zap.Logger) *GraphClient {
	return &GraphClient{
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

func (g *GraphClient) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", g.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	g.token = tok.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return g.token, nil
}

type graphUser struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName"`
	Mail              string   `json:"mail"`
	JobTitle          string   `json:"jobTitle"`
	Department        string   `json:"department"`
	OfficeLocation    string   `json:"officeLocation"`
	MobilePhone       string   `json:"mobilePhone"`
	BusinessPhones    []string `json:"businessPhones"`
	UserPrincipalName string   `json:"userPrincipalName"`
}

func (g *GraphClient) get(ctx context.Context, path string, out any) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://graph.microsoft.com/v1.0"+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("ConsistencyLevel", "eventual")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SearchPeople finds directory users whose display name matches the query.
func (g *GraphClient) SearchPeople(ctx context.Context, query string) (string, error) {
	path := fmt.Sprintf("/users?$filter=startswith(displayName,'%s')&$top=10", url.QueryEscape(query))
	var resp struct {
		Value []graphUser `json:"value"`
	}
	if err := g.get(ctx, path, &resp); err != nil {
		return "", err
	}
	if len(resp.Value) == 0 {
		return "No matching people found.", nil
	}
	var sb strings.Builder
	for _, u := range resp.Value {
		fmt.Fprintf(&sb, "%s (%s) - %s, %s\n", u.DisplayName, u.UserPrincipalName, u.JobTitle, u.Department)
	}
	return sb.String(), nil
}

// PersonDetails returns contact details for one user by id or principal name.
func (g *GraphClient) PersonDetails(ctx context.Context, idOrUPN string) (string, error) {
	var u graphUser
	path := fmt.Sprintf("/users/%s?$select=id,displayName,mail,jobTitle,department,officeLocation,mobilePhone,businessPhones,userPrincipalName",
		url.PathEscape(idOrUPN))
	if err := g.get(ctx, path, &u); err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\nEmail: %s\nTitle: %s\nDepartment: %s\n", u.DisplayName, u.Mail, u.JobTitle, u.Department)
	if u.OfficeLocation != "" {
		fmt.Fprintf(&sb, "Office: %s\n", u.OfficeLocation)
	}
	if u.MobilePhone != "" {
		fmt.Fprintf(&sb, "Mobile: %s\n", u.MobilePhone)
	}
	if len(u.BusinessPhones) > 0 {
		fmt.Fprintf(&sb, "Phone: %s\n", strings.Join(u.BusinessPhones, ", "))
	}
	return sb.String(), nil
}

// PersonSearchTool exposes directory search to the model.
func PersonSearchTool(g *GraphClient) (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "person_search_tool",
			Description: "Search the company directory for people by name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "The name to search for",
					},
				},
				"required": []string{"name"},
			},
		},
	}
	return def, func(ctx context.Context, args string) (string, error) {
		var params struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		return g.SearchPeople(ctx, params.Name)
	}
}

// PersonDetailsTool exposes single-person lookup to the model.
func PersonDetailsTool(g *GraphClient) (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "person_details_tool",
			Description: "Get contact details for one person by id or email from the company directory.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "User id or email address",
					},
				},
				"required": []string{"id"},
			},
		},
	}
	return def, func(ctx context.Context, args string) (string, error) {
		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		return g.PersonDetails(ctx, params.ID)
	}
}
