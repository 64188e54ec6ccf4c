package events

import (
	"context"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formwizard/pkg/values"
)

var (
	richTextPolicyOnce sync.Once
	richTextPolicy     *bluemonday.Policy
)

// SanitizeRichText strips markup the rich text editor cannot produce, such as
// scripts and event handlers.
func SanitizeRichText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(richTextSanitizer().Sanitize(trimmed))
}

// SanitizeFields returns a derived rule cleaning the rich text at paths.
func SanitizeFields(paths ...string) func(context.Context, map[string]any) error {
	return func(_ context.Context, payload map[string]any) error {
		for _, path := range paths {
			raw, ok := values.Get(payload, path)
			if !ok {
				continue
			}
			text, ok := raw.(string)
			if !ok {
				continue
			}
			if err := values.Set(payload, path, SanitizeRichText(text)); err != nil {
				return err
			}
		}
		return nil
	}
}

func richTextSanitizer() *bluemonday.Policy {
	richTextPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowAttrs("class").OnElements("span", "p")
		richTextPolicy = policy
	})
	return richTextPolicy
}
