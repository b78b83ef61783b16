// Package payload decodes the request and response bodies of a captured
// exchange into JSON, when they are JSON. Decoding is best-effort: malformed
// input yields an absent result, never an error.
package payload

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aurascope/aurascope/internal/domain"
)

// formMessageField is the form field the gateway wraps its JSON envelope in.
const formMessageField = "message"

// Parser turns raw exchange bodies into ParsedExchange values.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With(slog.String("component", "payload"))}
}

// Parse decodes both sides of the exchange.
//
// The request body is decoded by trying, in order: the form-encoded wrapping
// (a "message" field holding JSON) when the declared content type is a form,
// then a direct JSON parse. The response body is decoded only when its
// declared content type indicates JSON; a body that merely looks like JSON is
// left alone so unrelated JSON-returning endpoints never produce false
// positives.
func (p *Parser) Parse(raw *domain.RawExchange) domain.ParsedExchange {
	var parsed domain.ParsedExchange

	parsed.RequestJSON = p.parseRequest(raw)
	parsed.ResponseJSON = p.parseResponse(raw)

	return parsed
}

func (p *Parser) parseRequest(raw *domain.RawExchange) json.RawMessage {
	body := raw.RequestBody
	if body == "" {
		return nil
	}

	if isFormEncoded(raw.RequestMimeType) {
		values, err := url.ParseQuery(body)
		if err != nil {
			p.logger.Debug("form decode failed",
				slog.String("url", raw.URL),
				slog.String("error", err.Error()))
			return nil
		}
		message := values.Get(formMessageField)
		if message == "" {
			p.logger.Debug("form body has no message field", slog.String("url", raw.URL))
			return nil
		}
		return validJSON(message)
	}

	if js := validJSON(body); js != nil {
		return js
	}
	p.logger.Debug("request body is not JSON", slog.String("url", raw.URL))
	return nil
}

func (p *Parser) parseResponse(raw *domain.RawExchange) json.RawMessage {
	if raw.ResponseBody == "" {
		return nil
	}
	if !declaresJSON(raw.ResponseMimeType) {
		return nil
	}
	js := validJSON(raw.ResponseBody)
	if js == nil {
		p.logger.Debug("response declared JSON but did not parse",
			slog.String("url", raw.URL),
			slog.String("mime", raw.ResponseMimeType))
	}
	return js
}

// validJSON returns the trimmed body as a RawMessage when it is well-formed
// JSON, nil otherwise.
func validJSON(body string) json.RawMessage {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return nil
	}
	return json.RawMessage(trimmed)
}

func isFormEncoded(mime string) bool {
	return strings.Contains(strings.ToLower(mime), "x-www-form-urlencoded")
}

func declaresJSON(mime string) bool {
	return strings.Contains(strings.ToLower(mime), "json")
}
