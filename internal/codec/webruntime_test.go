package codec

import (
	"testing"

	"github.com/aurascope/aurascope/internal/domain"
)

// stubResolver resolves class ids from a fixed map.
type stubResolver map[string]string

func (s stubResolver) Resolve(id string) (string, bool) {
	name, ok := s[id]
	return name, ok
}

func TestWebruntimeSingle_Normalize(t *testing.T) {
	request := `{"namespace":"","classname":"InventoryController","method":"listItems","params":{"warehouseId":"wh-7","page":2},"cacheable":true}`
	response := `{"returnValue":{"items":["a","b"]},"cacheable":true}`

	n := NewWebruntimeSingle(nil, nil)
	res, err := n.Normalize(parsedFrom(request, response), testExchange("https://brand.my.site.com/webruntime/api/apex/execute"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Batchable {
		t.Error("Batchable = true, want false")
	}
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(res.Records))
	}
	rec := res.Records[0]
	if rec.ClassName != "InventoryController" {
		t.Errorf("ClassName = %q, want %q", rec.ClassName, "InventoryController")
	}
	if rec.MethodName != "listItems" {
		t.Errorf("MethodName = %q, want %q", rec.MethodName, "listItems")
	}
	if got := rec.RequestParams["warehouseId"]; got != "wh-7" {
		t.Errorf("RequestParams[warehouseId] = %v, want %q", got, "wh-7")
	}
	if got := rec.ContextMetadata["cacheable"]; got != true {
		t.Errorf("ContextMetadata[cacheable] = %v, want true", got)
	}
	// The response body is surfaced whole, not unwrapped.
	if _, ok := rec.ResponseResult["returnValue"]; !ok {
		t.Error("ResponseResult missing returnValue key")
	}
	if rec.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", rec.ErrorMessage)
	}
}

func TestWebruntimeSingle_Normalize_ObfuscatedClass(t *testing.T) {
	request := `{"namespace":"","classname":"@udd/01p000000000001","method":"getItems","params":{}}`

	t.Run("mapping hit", func(t *testing.T) {
		n := NewWebruntimeSingle(stubResolver{"01p000000000001": "MyController"}, nil)
		res, err := n.Normalize(parsedFrom(request, ""), testExchange("https://brand.my.site.com/webruntime/api/apex/execute"))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		rec := res.Records[0]
		if rec.ClassName != "MyController" {
			t.Errorf("ClassName = %q, want %q", rec.ClassName, "MyController")
		}
		if got := rec.ContextMetadata[domain.MetaResolvedFrom]; got != "01p000000000001" {
			t.Errorf("ContextMetadata[%s] = %v, want %q", domain.MetaResolvedFrom, got, "01p000000000001")
		}
		if _, ok := rec.ContextMetadata[domain.MetaNeedsMapping]; ok {
			t.Error("ContextMetadata has needsMapping on a mapping hit")
		}
	})

	t.Run("mapping miss", func(t *testing.T) {
		n := NewWebruntimeSingle(stubResolver{}, nil)
		res, err := n.Normalize(parsedFrom(request, ""), testExchange("https://brand.my.site.com/webruntime/api/apex/execute"))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		rec := res.Records[0]
		if rec.ClassName != "01p000000000001" {
			t.Errorf("ClassName = %q, want %q", rec.ClassName, "01p000000000001")
		}
		if got := rec.ContextMetadata[domain.MetaNeedsMapping]; got != true {
			t.Errorf("ContextMetadata[%s] = %v, want true", domain.MetaNeedsMapping, got)
		}
	})

	t.Run("nil resolver", func(t *testing.T) {
		n := NewWebruntimeSingle(nil, nil)
		res, err := n.Normalize(parsedFrom(request, ""), testExchange("https://brand.my.site.com/webruntime/api/apex/execute"))
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		rec := res.Records[0]
		if rec.ClassName != "01p000000000001" {
			t.Errorf("ClassName = %q, want %q", rec.ClassName, "01p000000000001")
		}
		if got := rec.ContextMetadata[domain.MetaNeedsMapping]; got != true {
			t.Errorf("ContextMetadata[%s] = %v, want true", domain.MetaNeedsMapping, got)
		}
	})
}

func TestWebruntimeSingle_Normalize_NamespacePrefix(t *testing.T) {
	request := `{"namespace":"acme","classname":"BillingService","methodName":"recalculate","params":{}}`

	n := NewWebruntimeSingle(nil, nil)
	res, err := n.Normalize(parsedFrom(request, ""), testExchange("https://brand.my.site.com/webruntime/api/apex/execute"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	rec := res.Records[0]
	if rec.ClassName != "acme.BillingService" {
		t.Errorf("ClassName = %q, want %q", rec.ClassName, "acme.BillingService")
	}
	if rec.MethodName != "recalculate" {
		t.Errorf("MethodName = %q, want %q", rec.MethodName, "recalculate")
	}
}

func TestWebruntimeSingle_Normalize_Failures(t *testing.T) {
	request := `{"classname":"OrderController","method":"getOrders","params":{}}`
	tests := []struct {
		name     string
		response string
		wantMsg  string
	}{
		{
			name:     "isError flag with error string",
			response: `{"isError":true,"error":"Apex execution failed"}`,
			wantMsg:  "Apex execution failed",
		},
		{
			name:     "isError flag without error fields",
			response: `{"isError":true}`,
			wantMsg:  "Unknown error",
		},
		{
			name:     "error object",
			response: `{"error":{"message":"Access denied","statusCode":403}}`,
			wantMsg:  "Access denied",
		},
		{
			name:     "errors array",
			response: `{"errors":[{"message":"Field integrity exception"}]}`,
			wantMsg:  "Field integrity exception",
		},
	}

	n := NewWebruntimeSingle(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.Normalize(parsedFrom(request, tt.response), testExchange("https://brand.my.site.com/webruntime/api/apex/execute"))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			rec := res.Records[0]
			if rec.ErrorMessage != tt.wantMsg {
				t.Errorf("ErrorMessage = %q, want %q", rec.ErrorMessage, tt.wantMsg)
			}
			if got := rec.ResponseResult["message"]; got != tt.wantMsg {
				t.Errorf("ResponseResult[message] = %v, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestWebruntimeSingle_Normalize_MissingNames(t *testing.T) {
	n := NewWebruntimeSingle(nil, nil)
	res, err := n.Normalize(parsedFrom(`{"params":{"x":1}}`, ""), testExchange("https://brand.my.site.com/webruntime/api/apex/execute"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	rec := res.Records[0]
	if rec.ClassName != domain.UnknownClass {
		t.Errorf("ClassName = %q, want %q", rec.ClassName, domain.UnknownClass)
	}
	if rec.MethodName != domain.UnknownMethod {
		t.Errorf("MethodName = %q, want %q", rec.MethodName, domain.UnknownMethod)
	}
	if rec.ErrorMessage == "" {
		t.Error("ErrorMessage is empty, want a diagnostic")
	}
}

func TestWebruntimeSingle_Normalize_NoRequest(t *testing.T) {
	n := NewWebruntimeSingle(nil, nil)
	if _, err := n.Normalize(parsedFrom("", `{"returnValue":1}`), testExchange("https://brand.my.site.com/webruntime/api/apex/execute")); err == nil {
		t.Error("Normalize() error = nil, want non-nil")
	}
}
