package issue

import (
	"encoding/json"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Draft is the parsed form of the free-text content a reasoning service
// passes to issue_manager create/update.
type Draft struct {
	Title         string
	Description   string
	Prerequisites []string
	Update        models.IssueUpdate
}

// ParseContent interprets the content argument of issue_manager. Reasoning
// services are supposed to send JSON but frequently send YAML or prose, so
// parsing degrades: JSON first (with raw newlines repaired), then YAML, then
// plain text where the first 24 characters become the title on create and the
// whole string becomes the details on update.
func ParseContent(content string, forCreate bool) Draft {
	var d Draft
	if strings.TrimSpace(content) == "" {
		return d
	}

	var obj map[string]any
	repaired := strings.ReplaceAll(content, "\n", "\\n")
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
		obj = normalizeKeys(obj)
	} else {
		obj = nil
		var yobj map[string]any
		if err := yaml.Unmarshal([]byte(content), &yobj); err == nil && len(yobj) > 0 {
			obj = normalizeKeys(yobj)
		}
	}

	if obj == nil {
		if forCreate {
			d.Title = content
			if len(d.Title) > 24 {
				d.Title = d.Title[:24]
			}
			d.Description = content
		} else {
			d.Update.Details = content
		}
		return d
	}

	d.Title = str(obj["title"])
	d.Description = str(obj["description"])
	if raw, ok := obj["prerequisites"].([]any); ok {
		for _, v := range raw {
			if s := str(v); s != "" {
				d.Prerequisites = append(d.Prerequisites, s)
			}
		}
	}
	d.Update.Status = str(obj["status"])
	d.Update.Priority = str(obj["priority"])
	d.Update.Assignee = str(obj["assignee"])
	d.Update.Author = str(obj["updated_by"])
	d.Update.Details = str(obj["details"])
	if ts := str(obj["updated_at"]); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			d.Update.UpdatedAt = t
		}
	}
	if d.Update.Details == "" && d.Description != "" && !forCreate {
		d.Update.Details = d.Description
	}

	// Nested updates arrays also appear; take the last entry's fields.
	if raw, ok := obj["updates"].([]any); ok && len(raw) > 0 {
		if last, ok := raw[len(raw)-1].(map[string]any); ok {
			last = normalizeKeys(last)
			if v := str(last["status"]); v != "" {
				d.Update.Status = v
			}
			if v := str(last["priority"]); v != "" {
				d.Update.Priority = v
			}
			if v := str(last["assignee"]); v != "" {
				d.Update.Assignee = v
			}
			if v := str(last["details"]); v != "" {
				d.Update.Details = v
			}
		}
	}
	return d
}

func normalizeKeys(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
