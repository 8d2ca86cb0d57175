package store

import "time"

// Agent is a configured agent instance belonging to one tenant.
type Agent struct {
	ID              string    `json:"id"`
	AgentName       string    `json:"agent_name"`
	AgentType       string    `json:"agent_type"`
	AgentSummary    string    `json:"agent_summary"`
	LanguageModelID string    `json:"language_model_id"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AgentSetting is one key/value configuration row scoped to an agent.
type AgentSetting struct {
	AgentID      string `json:"agent_id"`
	SettingKey   string `json:"setting_key"`
	SettingValue string `json:"setting_value"`
}

// Integration is a language model API endpoint registration. Credentials
// live in the secret store, keyed by integration id.
type Integration struct {
	ID              string    `json:"id"`
	IntegrationType string    `json:"integration_type"`
	CreatedAt       time.Time `json:"created_at"`
}

// LanguageModel binds a model tag to an integration.
type LanguageModel struct {
	ID               string    `json:"id"`
	IntegrationID    string    `json:"integration_id"`
	LanguageModelTag string    `json:"language_model_tag"`
	CreatedAt        time.Time `json:"created_at"`
}

// LanguageModelSetting is one key/value row scoped to a language model,
// e.g. the "embeddings" model tag.
type LanguageModelSetting struct {
	LanguageModelID string `json:"language_model_id"`
	SettingKey      string `json:"setting_key"`
	SettingValue    string `json:"setting_value"`
}

// Message is one conversation turn persisted for an agent.
type Message struct {
	ID             string         `json:"id"`
	MessageRole    string         `json:"message_role"`
	MessageContent string         `json:"message_content"`
	ResponseData   map[string]any `json:"response_data,omitempty"`
	AgentID        string         `json:"agent_id"`
	AttachmentID   *string        `json:"attachment_id,omitempty"`
	RepliesTo      *string        `json:"replies_to,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Attachment is an uploaded or generated binary plus its parsed text form.
type Attachment struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	RawContent    []byte    `json:"-"`
	ParsedContent string    `json:"parsed_content,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
