package form

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/values"
	"github.com/goliatone/go-formwizard/pkg/visibility"
)

var patternCache sync.Map

// IsRequired reports whether field must hold a value under ctx.
func IsRequired(field schema.Field, evaluator visibility.Evaluator, ctx visibility.Context) (bool, error) {
	if field.Required {
		return true, nil
	}
	if field.RequiredIf != "" {
		ok, err := evaluator.Eval(field.Path, field.RequiredIf, ctx)
		if err != nil || ok {
			return ok, err
		}
	}
	if field.RequiredUnless != "" {
		ok, err := evaluator.Eval(field.Path, field.RequiredUnless, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
	return false, nil
}

// CheckField runs the synchronous rules of field against value and returns the
// first failure message, or "" when the value is acceptable.
func CheckField(field schema.Field, value any, evaluator visibility.Evaluator, ctx visibility.Context) string {
	required, err := IsRequired(field, evaluator, ctx)
	if err != nil {
		return fmt.Sprintf("%s cannot be checked: %v", field.Label, err)
	}
	if values.IsEmpty(value) {
		if required {
			return field.Message("required", field.Label+" is required")
		}
		return ""
	}

	if msg := checkType(field, value); msg != "" {
		return msg
	}
	if msg := checkFormat(field, value); msg != "" {
		return msg
	}
	if msg := checkBounds(field, value); msg != "" {
		return msg
	}
	for _, check := range field.Checks {
		ok, err := evaluator.Eval(field.Path, check.Rule, ctx)
		if err != nil {
			return fmt.Sprintf("%s cannot be checked: %v", field.Label, err)
		}
		if !ok {
			return check.Message
		}
	}
	return ""
}

func checkType(field schema.Field, value any) string {
	switch field.Type {
	case schema.TypeInteger:
		n, ok := Number(value)
		if !ok || n != math.Trunc(n) {
			return field.Message("type", field.Label+" must be a whole number")
		}
	case schema.TypeNumber:
		if _, ok := Number(value); !ok {
			return field.Message("type", field.Label+" must be a number")
		}
	case schema.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return field.Message("type", field.Label+" must be yes or no")
		}
	case schema.TypeDateTime:
		if _, ok := Time(value); !ok {
			return field.Message("type", field.Label+" must be a date and time")
		}
	case schema.TypeEnum:
		raw := fmt.Sprint(value)
		for _, option := range field.Enum {
			if option == raw {
				return ""
			}
		}
		return field.Message("enum", fmt.Sprintf("%s must be one of: %s", field.Label, strings.Join(field.Enum, ", ")))
	case schema.TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return field.Message("type", field.Label+" is invalid")
		}
	case schema.TypeArray:
		if !values.IsArray(value) {
			return field.Message("type", field.Label+" must be a list")
		}
	case schema.TypeString, schema.TypeText, schema.TypeRichText:
		if _, ok := value.(string); !ok {
			return field.Message("type", field.Label+" must be text")
		}
	}
	return ""
}

func checkFormat(field schema.Field, value any) string {
	raw, isString := value.(string)
	if !isString {
		return ""
	}
	raw = strings.TrimSpace(raw)
	switch field.Format {
	case schema.FormatEmail:
		addr, err := mail.ParseAddress(raw)
		if err != nil || addr.Address != raw {
			return field.Message("format", field.Label+" must be a valid email address")
		}
	case schema.FormatURL:
		parsed, err := url.ParseRequestURI(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return field.Message("format", field.Label+" must be a valid URL")
		}
	case schema.FormatDateTime:
		if _, ok := Time(raw); !ok {
			return field.Message("format", field.Label+" must be a date and time")
		}
	}
	if field.Pattern != "" {
		re, err := compilePattern(field.Pattern)
		if err != nil || !re.MatchString(raw) {
			return field.Message("pattern", field.Label+" has an invalid format")
		}
	}
	return ""
}

func checkBounds(field schema.Field, value any) string {
	if n, ok := Number(value); ok && (field.Type == schema.TypeInteger || field.Type == schema.TypeNumber) {
		if field.Min != nil && n < *field.Min {
			return field.Message("min", fmt.Sprintf("%s must be at least %s", field.Label, formatNumber(*field.Min)))
		}
		if field.Max != nil && n > *field.Max {
			return field.Message("max", fmt.Sprintf("%s must be at most %s", field.Label, formatNumber(*field.Max)))
		}
	}

	length := -1
	unit := "characters"
	switch typed := value.(type) {
	case string:
		length = utf8.RuneCountInString(typed)
	default:
		if values.IsArray(value) {
			length = values.Len(value)
			unit = "items"
		}
	}
	if length < 0 {
		return ""
	}
	if field.MinLength != nil && length < *field.MinLength {
		return field.Message("min_length", fmt.Sprintf("%s must have at least %d %s", field.Label, *field.MinLength, unit))
	}
	if field.MaxLength != nil && length > *field.MaxLength {
		return field.Message("max_length", fmt.Sprintf("%s must have at most %d %s", field.Label, *field.MaxLength, unit))
	}
	return ""
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// Number coerces decoded JSON numbers, Go numeric types and numeric strings.
func Number(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Time parses RFC 3339 strings and passes time.Time through.
func Time(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
