package payload

import (
	"net/url"
	"testing"

	"github.com/aurascope/aurascope/internal/domain"
)

func TestParse_RequestFormEncoded(t *testing.T) {
	message := `{"actions":[{"id":"1;a","descriptor":"aura://ApexActionController/ACTION$execute"}]}`
	body := url.Values{
		"message":      {message},
		"aura.context": {`{"mode":"PROD"}`},
		"aura.token":   {"tok"},
	}.Encode()

	p := New(nil)
	parsed := p.Parse(&domain.RawExchange{
		URL:             "https://example.my.site/aura?r=1",
		RequestMimeType: "application/x-www-form-urlencoded; charset=UTF-8",
		RequestBody:     body,
	})

	if !parsed.HasRequest() {
		t.Fatal("expected request JSON, got absent")
	}
	if got := string(parsed.RequestJSON); got != message {
		t.Errorf("RequestJSON = %q, want %q", got, message)
	}
}

func TestParse_RequestDirectJSON(t *testing.T) {
	p := New(nil)
	parsed := p.Parse(&domain.RawExchange{
		RequestMimeType: "application/json",
		RequestBody:     `{"classname":"Ctrl","method":"run"}`,
	})
	if !parsed.HasRequest() {
		t.Fatal("expected request JSON, got absent")
	}
}

func TestParse_RequestFailures(t *testing.T) {
	tests := []struct {
		name string
		mime string
		body string
	}{
		{"empty body", "application/json", ""},
		{"malformed json", "application/json", `{"unterminated`},
		{"form without message", "application/x-www-form-urlencoded", "aura.token=tok"},
		{"form with non-json message", "application/x-www-form-urlencoded", "message=hello"},
		{"form with bad encoding", "application/x-www-form-urlencoded", "message=%zz"},
		{"plain text", "text/plain", "just words"},
	}

	p := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := p.Parse(&domain.RawExchange{
				RequestMimeType: tt.mime,
				RequestBody:     tt.body,
			})
			if parsed.HasRequest() {
				t.Errorf("expected absent request JSON, got %q", parsed.RequestJSON)
			}
		})
	}
}

func TestParse_ResponseContentTypeGate(t *testing.T) {
	tests := []struct {
		name     string
		mime     string
		body     string
		wantJSON bool
	}{
		{"declared json", "application/json;charset=UTF-8", `{"actions":[]}`, true},
		{"vendor json", "application/vnd.api+json", `{"ok":true}`, true},
		{"looks like json but declared html", "text/html", `{"actions":[]}`, false},
		{"declared json but malformed", "application/json", `{"actions":`, false},
		{"no declared type", "", `{"actions":[]}`, false},
		{"empty body", "application/json", "", false},
	}

	p := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := p.Parse(&domain.RawExchange{
				ResponseMimeType: tt.mime,
				ResponseBody:     tt.body,
			})
			if got := parsed.HasResponse(); got != tt.wantJSON {
				t.Errorf("HasResponse() = %v, want %v", got, tt.wantJSON)
			}
		})
	}
}

func TestParse_NeverPanics(t *testing.T) {
	p := New(nil)
	// A handful of hostile bodies; Parse must degrade, not panic.
	bodies := []string{"%", "message=", "=&=&=", "\x00\x01", `[","]`}
	for _, b := range bodies {
		p.Parse(&domain.RawExchange{
			RequestMimeType: "application/x-www-form-urlencoded",
			RequestBody:     b,
			ResponseBody:    b,
		})
	}
}
