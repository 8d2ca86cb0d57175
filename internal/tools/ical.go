package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/nidhogg/agentlab/internal/provider"
	"github.com/nidhogg/agentlab/internal/store"
)

// AttachmentWriter persists generated attachments.
type AttachmentWriter interface {
	CreateAttachment(ctx context.Context, schema string, a *store.Attachment) error
}

// ICalTool creates a calendar event as an .ics attachment and returns its
// download link. The model passes RFC 3339 timestamps.
func ICalTool(st AttachmentWriter, schema, baseURL string) (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "ical_attachment_tool",
			Description: "Create a calendar event file (.ics) and return a link to download it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary": map[string]any{
						"type":        "string",
						"description": "Event title",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Event description",
					},
					"location": map[string]any{
						"type":        "string",
						"description": "Event location",
					},
					"start_time": map[string]any{
						"type":        "string",
						"description": "Event start in RFC 3339 format",
					},
					"end_time": map[string]any{
						"type":        "string",
						"description": "Event end in RFC 3339 format",
					},
				},
				"required": []string{"summary", "start_time", "end_time"},
			},
		},
	}
	return def, func(ctx context.Context, args string) (string, error) {
		var params struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Location    string `json:"location"`
			StartTime   string `json:"start_time"`
			EndTime     string `json:"end_time"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		start, err := time.Parse(time.RFC3339, params.StartTime)
		if err != nil {
			return "", fmt.Errorf("parse start_time: %w", err)
		}
		end, err := time.Parse(time.RFC3339, params.EndTime)
		if err != nil {
			return "", fmt.Errorf("parse end_time: %w", err)
		}
		if !end.After(start) {
			return "", fmt.Errorf("end_time %s is not after start_time %s", params.EndTime, params.StartTime)
		}

		cal := ics.NewCalendar()
		cal.SetMethod(ics.MethodPublish)
		event := cal.AddEvent(fmt.Sprintf("%d@agentlab", time.Now().UnixNano()))
		event.SetCreatedTime(time.Now())
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(params.Summary)
		if params.Description != "" {
			event.SetDescription(params.Description)
		}
		if params.Location != "" {
			event.SetLocation(params.Location)
		}

		att := &store.Attachment{
			FileName:      params.Summary + ".ics",
			RawContent:    []byte(cal.Serialize()),
			ParsedContent: params.Summary,
		}
		if err := st.CreateAttachment(ctx, schema, att); err != nil {
			return "", fmt.Errorf("store calendar attachment: %w", err)
		}
		return fmt.Sprintf("Calendar event created. Download link: %s/api/attachments/%s/download", baseURL, att.ID), nil
	}
}
