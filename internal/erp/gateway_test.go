package erp_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"stockbot/internal/erp"
)

var testCreds = erp.Credentials{Key: "AB12CD34EF56GH78", Secret: "JKLMNOPQ7890ABCD"}

type recorded struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	Body   []byte
}

// newTestGateway serves every request with the given status and body
// and records the last request for assertions.
func newTestGateway(t *testing.T, status int, body string) (*erp.Gateway, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.Method = r.Method
		rec.Path = r.URL.Path
		rec.Query = r.URL.Query()
		rec.Auth = r.Header.Get("Authorization")
		rec.Body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return &erp.Gateway{BaseURL: srv.URL, Client: srv.Client(), Log: zerolog.Nop()}, rec
}

func TestSearchItems(t *testing.T) {
	g, rec := newTestGateway(t, 200, `{"data":[{"name":"ITM-1","item_code":"ITM-1","item_name":"Shurup","item_group":"Fasteners","stock_uom":"Nos","standard_rate":1200}]}`)

	items, err := g.SearchItems(context.Background(), testCreds, "shur", 25)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].ItemName != "Shurup" || items[0].StandardRate != 1200 {
		t.Fatalf("items: %+v", items)
	}
	if rec.Auth != "token AB12CD34EF56GH78:JKLMNOPQ7890ABCD" {
		t.Fatalf("auth header: %q", rec.Auth)
	}
	if rec.Path != "/api/resource/Item" {
		t.Fatalf("path: %q", rec.Path)
	}
	if rec.Query.Get("limit_page_length") != "25" {
		t.Fatalf("limit: %q", rec.Query.Get("limit_page_length"))
	}
	var fields []string
	if err := json.Unmarshal([]byte(rec.Query.Get("fields")), &fields); err != nil {
		t.Fatalf("fields param: %v", err)
	}
	var filters [][]string
	if err := json.Unmarshal([]byte(rec.Query.Get("filters")), &filters); err != nil {
		t.Fatalf("filters param: %v", err)
	}
	if len(filters) != 1 || filters[0][1] != "item_name" || filters[0][2] != "like" || filters[0][3] != "%shur%" {
		t.Fatalf("filters: %+v", filters)
	}
}

func TestSearchItemsWithoutQueryOmitsFilters(t *testing.T) {
	g, rec := newTestGateway(t, 200, `{"data":[]}`)
	if _, err := g.SearchItems(context.Background(), testCreds, "", 10); err != nil {
		t.Fatal(err)
	}
	if rec.Query.Get("filters") != "" {
		t.Fatalf("unexpected filters: %q", rec.Query.Get("filters"))
	}
}

func TestItemDetailDecodesEnvelope(t *testing.T) {
	g, rec := newTestGateway(t, 200, `{"data":{"name":"ITM-1","item_name":"Shurup","description":"<p>po'lat</p>"}}`)
	item, err := g.ItemDetail(context.Background(), testCreds, "ITM-1")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if item.ItemName != "Shurup" {
		t.Fatalf("item: %+v", item)
	}
	if rec.Path != "/api/resource/Item/ITM-1" {
		t.Fatalf("path: %q", rec.Path)
	}
}

func TestCreateStockEntry(t *testing.T) {
	g, rec := newTestGateway(t, 200, `{"data":{"name":"MAT-STE-2024-00001"}}`)

	name, err := g.CreateStockEntry(context.Background(), testCreds, erp.StockEntryInput{
		Company:        "accord",
		StockEntryType: "Material Receipt",
		NamingSeries:   "MAT-STE-.YYYY.-.#####",
		ToWarehouse:    "WH-Main",
		Items: []erp.StockEntryItemInput{{
			ItemCode: "ITM-1", Qty: 25, UOM: "Nos", TargetWarehouse: "WH-Main",
		}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if name != "MAT-STE-2024-00001" {
		t.Fatalf("name: %q", name)
	}
	if rec.Method != http.MethodPost || rec.Path != "/api/resource/Stock Entry" {
		t.Fatalf("request: %s %s", rec.Method, rec.Path)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body, &payload); err != nil {
		t.Fatalf("body: %v", err)
	}
	if payload["stock_entry_type"] != "Material Receipt" {
		t.Fatalf("payload: %v", payload)
	}
	items := payload["items"].([]any)
	first := items[0].(map[string]any)
	if first["t_warehouse"] != "WH-Main" || first["qty"] != float64(25) {
		t.Fatalf("item payload: %v", first)
	}
	if _, ok := first["s_warehouse"]; ok {
		t.Fatal("empty source warehouse should be omitted")
	}
}

func TestCreateDefaultsCompany(t *testing.T) {
	g, rec := newTestGateway(t, 200, `{"data":{"name":"MAT-STE-2024-00002"}}`)
	g.Company = "accord"

	if _, err := g.CreateStockEntry(context.Background(), testCreds, erp.StockEntryInput{
		StockEntryType: "Material Receipt",
		ToWarehouse:    "WH-Main",
		Items:          []erp.StockEntryItemInput{{ItemCode: "ITM-1", Qty: 1}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body, &payload); err != nil {
		t.Fatalf("body: %v", err)
	}
	if payload["company"] != "accord" {
		t.Fatalf("company not defaulted: %v", payload["company"])
	}

	// an explicit company always wins
	if _, err := g.CreateStockEntry(context.Background(), testCreds, erp.StockEntryInput{
		Company:        "other",
		StockEntryType: "Material Receipt",
		Items:          []erp.StockEntryItemInput{{ItemCode: "ITM-1", Qty: 1}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := json.Unmarshal(rec.Body, &payload); err != nil {
		t.Fatalf("body: %v", err)
	}
	if payload["company"] != "other" {
		t.Fatalf("explicit company overridden: %v", payload["company"])
	}
}

func TestCreateWithoutNameFails(t *testing.T) {
	g, _ := newTestGateway(t, 200, `{"data":{}}`)
	if _, err := g.CreateStockEntry(context.Background(), testCreds, erp.StockEntryInput{}); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestSubmitDoc(t *testing.T) {
	g, rec := newTestGateway(t, 200, `{"message":null}`)
	if err := g.SubmitDoc(context.Background(), testCreds, erp.DoctypeStockEntry, "MAT-STE-2024-00001"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Path != "/api/method/run_doc_method" {
		t.Fatalf("path: %q", rec.Path)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["dt"] != "Stock Entry" || payload["dn"] != "MAT-STE-2024-00001" || payload["method"] != "submit" {
		t.Fatalf("payload: %v", payload)
	}
}

func TestDeleteDoc(t *testing.T) {
	g, rec := newTestGateway(t, 202, ``)
	if err := g.DeleteDoc(context.Background(), testCreds, erp.DoctypeDeliveryNote, "MAT-DN-2024-00003"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Method != http.MethodDelete || rec.Path != "/api/resource/Delivery Note/MAT-DN-2024-00003" {
		t.Fatalf("request: %s %s", rec.Method, rec.Path)
	}
}

func TestVerifyCredentialsRejected(t *testing.T) {
	g, rec := newTestGateway(t, 401, `{"message":"Invalid API Key"}`)
	err := g.VerifyCredentials(context.Background(), testCreds)
	if err == nil {
		t.Fatal("expected auth error")
	}
	if rec.Path != "/api/method/frappe.auth.get_logged_user" {
		t.Fatalf("path: %q", rec.Path)
	}
	var ge *erp.GatewayError
	if !errors.As(err, &ge) || ge.StatusCode != 401 || ge.Detail != "Invalid API Key" {
		t.Fatalf("error: %v", err)
	}
}

func TestServerMessagesExtraction(t *testing.T) {
	body := `{"_server_messages":"[\"{\\\"message\\\": \\\"Negative stock error\\\"}\"]"}`
	g, _ := newTestGateway(t, 417, body)
	err := g.SubmitDoc(context.Background(), testCreds, erp.DoctypeStockEntry, "X")
	if err == nil {
		t.Fatal("expected error")
	}
	if d := erp.ErrorDetail(err); !strings.Contains(d, "Negative stock error") {
		t.Fatalf("detail: %q", d)
	}
}

func TestCleanText(t *testing.T) {
	got := erp.CleanText("<b>Xatolik:</b>\n  qoldiq   yetarli emas")
	if got != "Xatolik: qoldiq yetarli emas" {
		t.Fatalf("CleanText = %q", got)
	}
}

func TestFormatCreateErrorValuation(t *testing.T) {
	err := &erp.GatewayError{StatusCode: 417, Detail: "Allow Zero Valuation Rate for item ITM-1"}
	msg := erp.FormatCreateError(err)
	if !strings.Contains(msg, "Standard Rate") || !strings.Contains(msg, "Allow Zero Valuation Rate") {
		t.Fatalf("valuation guidance missing: %q", msg)
	}
}

func TestFormatActionErrorLinkedDocument(t *testing.T) {
	err := &erp.GatewayError{StatusCode: 417, Detail: "Cannot delete or cancel because Stock Entry is linked with GL Entry"}
	msg := erp.FormatActionError("MAT-STE-2024-00001 ni bekor qilish", err)
	if !strings.Contains(msg, "mumkin emas") || !strings.Contains(msg, "GL Entry") {
		t.Fatalf("linked doc guidance missing: %q", msg)
	}
}
