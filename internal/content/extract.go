// Package content turns raw LMS submission artifacts into normalized
// payloads. Decoders either return a typed payload or signal
// ErrNotMyFormat; the extractor chains them in priority order and
// degrades to plain text on any parse failure.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coursepipe/coursepipe/internal/lms"
	"github.com/coursepipe/coursepipe/internal/model"
)

// FileFetcher downloads a file URL as text. Satisfied by *lms.Client.
type FileFetcher interface {
	DownloadFileContent(ctx context.Context, fileURL string) (string, error)
}

// Extractor normalizes LMS submissions into content payloads.
type Extractor struct {
	files FileFetcher
}

// NewExtractor creates an extractor that pulls file attachments
// through the given fetcher.
func NewExtractor(files FileFetcher) *Extractor {
	return &Extractor{files: files}
}

// Extract applies the decision procedure to one LMS submission:
// online text, URL, file upload (image/pdf placeholders, JSON
// classification, text fallback), or none.
func (e *Extractor) Extract(ctx context.Context, sub lms.Submission) model.Payload {
	switch sub.SubmissionType {
	case "online_text_entry":
		text := Truncate(StripHTML(sub.Body), model.MaxContentLen(model.ContentText))
		if text == "" {
			return model.Payload{Type: model.ContentNone}
		}
		return model.Payload{Type: model.ContentText, Content: text}

	case "online_url":
		if sub.URL == "" {
			return model.Payload{Type: model.ContentNone}
		}
		return model.Payload{Type: model.ContentURL, Content: sub.URL}

	case "online_upload":
		if len(sub.Attachments) == 0 {
			return model.Payload{Type: model.ContentNone}
		}
		return e.extractAttachment(ctx, sub.Attachments[0])
	}

	if sub.Body != "" {
		text := Truncate(StripHTML(sub.Body), model.MaxContentLen(model.ContentText))
		if text != "" {
			return model.Payload{Type: model.ContentText, Content: text}
		}
	}
	return model.Payload{Type: model.ContentNone}
}

func (e *Extractor) extractAttachment(ctx context.Context, att lms.Attachment) model.Payload {
	mime := strings.ToLower(att.ContentType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		// Binary is pulled later as vision input; store a placeholder.
		return model.Payload{
			Type:     model.ContentImage,
			Content:  fmt.Sprintf("[Image: %s]", att.Filename),
			Filename: att.Filename,
			MimeType: att.ContentType,
			FileURL:  att.URL,
		}
	case mime == "application/pdf":
		return model.Payload{
			Type:     model.ContentPDF,
			Content:  fmt.Sprintf("[PDF: %s]", att.Filename),
			Filename: att.Filename,
			MimeType: att.ContentType,
			FileURL:  att.URL,
		}
	}

	text, err := e.files.DownloadFileContent(ctx, att.URL)
	if err != nil {
		slog.Warn("attachment download failed", "file", att.Filename, "error", err)
		return model.Payload{
			Type:     model.ContentFile,
			Content:  fmt.Sprintf("[File: %s]", att.Filename),
			Filename: att.Filename,
			MimeType: att.ContentType,
			FileURL:  att.URL,
		}
	}

	if strings.HasSuffix(strings.ToLower(att.Filename), ".json") {
		if p, err := classifyJSON([]byte(text)); err == nil {
			p.Filename = att.Filename
			p.MimeType = att.ContentType
			return p
		}
	}

	return model.Payload{
		Type:     model.ContentText,
		Content:  Truncate(text, model.MaxContentLen(model.ContentText)),
		Filename: att.Filename,
		MimeType: att.ContentType,
	}
}

// classifyJSON decides between conversation, ai-discussion, and text
// for a decoded .json attachment.
func classifyJSON(data []byte) (model.Payload, error) {
	// A bare array can only be a conversation.
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return ExtractConversation(data)
	}

	var activity model.ActivityData
	if err := json.Unmarshal(data, &activity); err == nil &&
		activity.ActivityID != "" && len(activity.Responses) > 0 {
		if hasAIDiscussion(activity) {
			return activityPayload(data, activity), nil
		}
		// Structured activity without a discussion grades as text.
		return model.Payload{
			Type:    model.ContentText,
			Content: Truncate(flattenActivity(activity), model.MaxContentLen(model.ContentText)),
		}, nil
	}

	if p, err := ExtractConversation(data); err == nil {
		return p, nil
	}
	return model.Payload{}, ErrNotMyFormat
}

func hasAIDiscussion(a model.ActivityData) bool {
	for _, r := range a.Responses {
		if r.QuestionType == "ai-discussion" {
			return true
		}
	}
	return false
}

// activityPayload keeps the parsed structure for the discussion grader
// alongside the raw JSON capped at the ai-discussion limit.
func activityPayload(raw []byte, a model.ActivityData) model.Payload {
	return model.Payload{
		Type:         model.ContentAIDiscussion,
		Content:      Truncate(string(raw), model.MaxContentLen(model.ContentAIDiscussion)),
		ActivityData: &a,
	}
}

// flattenActivity renders a non-discussion activity export as plain
// prompt/answer text.
func flattenActivity(a model.ActivityData) string {
	var parts []string
	for _, r := range a.Responses {
		answer := r.Answer
		if answer == "" {
			answer = r.Entry
		}
		if strings.TrimSpace(answer) == "" {
			continue
		}
		if r.Prompt != "" {
			parts = append(parts, r.Prompt+"\n"+answer)
		} else {
			parts = append(parts, answer)
		}
	}
	return strings.Join(parts, "\n\n")
}
