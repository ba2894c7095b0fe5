package flow_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockbot/internal/config"
	"stockbot/internal/db"
	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/events"
	"stockbot/internal/flow"
	"stockbot/internal/inline"
	"stockbot/internal/migrate"
	"stockbot/internal/repo"
)

// stubGateway satisfies flow.Gateway; tests set the function fields
// they care about, everything else returns zero values.
type stubGateway struct {
	verify                func(creds erp.Credentials) error
	searchItems           func(query string, limit int) ([]erp.Item, error)
	listEntries           func(query string, limit int) ([]erp.StockEntry, error)
	entryDetail           func(docname string) (erp.StockEntry, error)
	createStockEntry      func(input erp.StockEntryInput) (string, error)
	createPurchaseReceipt func(input erp.PurchaseReceiptInput) (string, error)
	createDeliveryNote    func(input erp.DeliveryNoteInput) (string, error)
	submitDoc             func(doctype, docname string) error

	createCalls int
	submitCalls int
}

func (g *stubGateway) VerifyCredentials(_ context.Context, creds erp.Credentials) error {
	if g.verify != nil {
		return g.verify(creds)
	}
	return nil
}

func (g *stubGateway) SearchItems(_ context.Context, _ erp.Credentials, query string, limit int) ([]erp.Item, error) {
	if g.searchItems != nil {
		return g.searchItems(query, limit)
	}
	return nil, nil
}

func (g *stubGateway) ItemDetail(_ context.Context, _ erp.Credentials, name string) (erp.Item, error) {
	return erp.Item{Name: name, ItemCode: name}, nil
}

func (g *stubGateway) SearchWarehouses(context.Context, erp.Credentials, string, int) ([]erp.Warehouse, error) {
	return nil, nil
}

func (g *stubGateway) SearchSuppliers(context.Context, erp.Credentials, string, int) ([]erp.Supplier, error) {
	return nil, nil
}

func (g *stubGateway) SearchCustomers(context.Context, erp.Credentials, string, int) ([]erp.Customer, error) {
	return nil, nil
}

func (g *stubGateway) ListStockEntries(_ context.Context, _ erp.Credentials, query string, limit int) ([]erp.StockEntry, error) {
	if g.listEntries != nil {
		return g.listEntries(query, limit)
	}
	return nil, nil
}

func (g *stubGateway) StockEntryDetail(_ context.Context, _ erp.Credentials, docname string) (erp.StockEntry, error) {
	if g.entryDetail != nil {
		return g.entryDetail(docname)
	}
	return erp.StockEntry{Name: docname}, nil
}

func (g *stubGateway) ListPurchaseReceipts(context.Context, erp.Credentials, string, int) ([]erp.PurchaseReceipt, error) {
	return nil, nil
}

func (g *stubGateway) PurchaseReceiptDetail(_ context.Context, _ erp.Credentials, docname string) (erp.PurchaseReceipt, error) {
	return erp.PurchaseReceipt{Name: docname}, nil
}

func (g *stubGateway) ListDeliveryNotes(context.Context, erp.Credentials, string, int) ([]erp.DeliveryNote, error) {
	return nil, nil
}

func (g *stubGateway) DeliveryNoteDetail(_ context.Context, _ erp.Credentials, docname string) (erp.DeliveryNote, error) {
	return erp.DeliveryNote{Name: docname}, nil
}

func (g *stubGateway) CreateStockEntry(_ context.Context, _ erp.Credentials, input erp.StockEntryInput) (string, error) {
	g.createCalls++
	if g.createStockEntry != nil {
		return g.createStockEntry(input)
	}
	return "MAT-STE-2024-00001", nil
}

func (g *stubGateway) CreatePurchaseReceipt(_ context.Context, _ erp.Credentials, input erp.PurchaseReceiptInput) (string, error) {
	g.createCalls++
	if g.createPurchaseReceipt != nil {
		return g.createPurchaseReceipt(input)
	}
	return "MAT-PRE-2024-00001", nil
}

func (g *stubGateway) CreateDeliveryNote(_ context.Context, _ erp.Credentials, input erp.DeliveryNoteInput) (string, error) {
	g.createCalls++
	if g.createDeliveryNote != nil {
		return g.createDeliveryNote(input)
	}
	return "MAT-DN-2024-00001", nil
}

func (g *stubGateway) SubmitDoc(_ context.Context, _ erp.Credentials, doctype, docname string) error {
	g.submitCalls++
	if g.submitDoc != nil {
		return g.submitDoc(doctype, docname)
	}
	return nil
}

func (g *stubGateway) CancelDoc(context.Context, erp.Credentials, string, string) error { return nil }
func (g *stubGateway) DeleteDoc(context.Context, erp.Credentials, string, string) error { return nil }

type testEnv struct {
	Flow    *flow.Flow
	Repo    repo.Repo
	Gateway *stubGateway
	Ctx     context.Context
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Telegram.Token = "123456:ABCDEF"
	cfg.ERP.BaseURL = "https://erp.example.com"
	cfg.ERP.VerifyEndpoint = "/api/method/frappe.auth.get_logged_user"
	cfg.ERP.Company = "accord"
	cfg.ERP.ReadTimeout = 10 * time.Second
	cfg.ERP.WriteTimeout = 15 * time.Second
	cfg.Series.StockEntry = "MAT-STE-.YYYY.-.#####"
	cfg.Series.PurchaseReceipt = "MAT-PRE-.YYYY.-.#####"
	cfg.Series.DeliveryNote = "MAT-DN-.YYYY.-.#####"
	cfg.Limits.Items = 25
	cfg.Limits.Warehouses = 25
	cfg.Limits.Suppliers = 25
	cfg.Limits.Customers = 25
	cfg.Limits.Documents = 25
	cfg.Workers = 2
	return cfg
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	gw := &stubGateway{}
	f := flow.New(r, events.Writer{DB: conn}, gw, testConfig(), zerolog.Nop())
	f.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Flow: f, Repo: r, Gateway: gw, Ctx: context.Background()}
}

const testUser = int64(100)

func msgEvent(text string, fromInline bool) flow.Event {
	return flow.Event{UserID: testUser, ChatID: testUser, Username: "tester", Text: text, FromInline: fromInline}
}

func cbEvent(data string) flow.Event {
	return flow.Event{UserID: testUser, ChatID: testUser, Username: "tester", Data: data, CallbackID: "cb1"}
}

func activate(t *testing.T, env testEnv) {
	t.Helper()
	if err := env.Repo.StoreAPIKey(env.Ctx, testUser, "AB12CD34EF56GH78"); err != nil {
		t.Fatal(err)
	}
	if err := env.Repo.StoreAPISecret(env.Ctx, testUser, "JKLMNOPQ7890ABCD"); err != nil {
		t.Fatal(err)
	}
}

func allText(acts []flow.Action) string {
	var b strings.Builder
	for _, a := range acts {
		b.WriteString(a.Text)
		b.WriteString("\n")
		if a.Answer != nil {
			b.WriteString(a.Answer.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func TestOnboarding(t *testing.T) {
	env := newTestEnv(t)
	verifyErr := error(&erp.GatewayError{StatusCode: 401, Detail: "Invalid API Key"})
	env.Gateway.verify = func(creds erp.Credentials) error { return verifyErr }

	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent("/start", false))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(allText(acts), "API kalitni yuboring") {
		t.Fatalf("start prompt: %q", allText(acts))
	}

	// malformed key is rejected without touching storage
	acts, _ = env.Flow.HandleMessage(env.Ctx, msgEvent("short", false))
	if !strings.Contains(allText(acts), "14-18") {
		t.Fatalf("key validation: %q", allText(acts))
	}
	if _, err := env.Repo.Credentials(env.Ctx, testUser); !errors.Is(err, repo.ErrNotFound) {
		t.Fatal("malformed key was stored")
	}

	acts, _ = env.Flow.HandleMessage(env.Ctx, msgEvent("AB12CD34EF56GH78", false))
	if !strings.Contains(allText(acts), "secret") {
		t.Fatalf("secret prompt: %q", allText(acts))
	}

	// secret failing verification keeps the pair pending
	acts, _ = env.Flow.HandleMessage(env.Ctx, msgEvent("JKLMNOPQ7890ABCD", false))
	if !strings.Contains(allText(acts), "Invalid API Key") {
		t.Fatalf("verify failure surfaced: %q", allText(acts))
	}
	c, _ := env.Repo.Credentials(env.Ctx, testUser)
	if c.Status != domain.CredentialPendingSecret {
		t.Fatalf("status after failed verify: %v", c.Status)
	}

	verifyErr = nil
	acts, _ = env.Flow.HandleMessage(env.Ctx, msgEvent("JKLMNOPQ7890ABCD", false))
	if !strings.Contains(allText(acts), "tasdiqlandi") {
		t.Fatalf("activation message: %q", allText(acts))
	}
	c, _ = env.Repo.Credentials(env.Ctx, testUser)
	if c.Status != domain.CredentialActive {
		t.Fatalf("status after verify: %v", c.Status)
	}
}

func TestClearCredentialsDropsDraft(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create")); err != nil {
		t.Fatal(err)
	}

	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent("/clear", false))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(allText(acts), "o'chirildi") {
		t.Fatalf("clear message: %q", allText(acts))
	}
	c, _ := env.Repo.Credentials(env.Ctx, testUser)
	if c.Status != domain.CredentialPendingKey {
		t.Fatalf("status: %v", c.Status)
	}
	if _, err := env.Repo.Draft(env.Ctx, testUser); !errors.Is(err, repo.ErrNotFound) {
		t.Fatal("draft survived credential reset")
	}
}

func TestCallbacksRequireActiveCredentials(t *testing.T) {
	env := newTestEnv(t)
	acts, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create"))
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || acts[0].Answer == nil || !acts[0].Answer.Alert {
		t.Fatalf("expected alert answer, got %+v", acts)
	}
	if _, err := env.Repo.Draft(env.Ctx, testUser); !errors.Is(err, repo.ErrNotFound) {
		t.Fatal("draft created without credentials")
	}
}

func TestStockEntryHappyPath(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	var captured erp.StockEntryInput
	env.Gateway.createStockEntry = func(input erp.StockEntryInput) (string, error) {
		captured = input
		return "MAT-STE-2024-00042", nil
	}

	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create")); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entrycreate:type:receipt")); err != nil {
		t.Fatal(err)
	}

	itemBlock := inline.RenderItem(inline.TagEntryItem, inline.ItemRef{Code: "ITM-1", Name: "Shurup", UOM: "Nos"})
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent(itemBlock, true)); err != nil {
		t.Fatal(err)
	}
	whBlock := inline.RenderWarehouse(inline.EntityRef{Code: "WH-Main", Label: "Asosiy ombor"})
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent(whBlock, true)); err != nil {
		t.Fatal(err)
	}

	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent("25", false))
	if err != nil {
		t.Fatal(err)
	}
	out := allText(acts)
	if !strings.Contains(out, "MAT-STE-2024-00042") || !strings.Contains(out, "✅ Stock Entry yaratildi.") {
		t.Fatalf("success message: %q", out)
	}

	if captured.Company != "accord" || captured.StockEntryType != "Material Receipt" {
		t.Fatalf("input header: %+v", captured)
	}
	if captured.NamingSeries != "MAT-STE-.YYYY.-.#####" {
		t.Fatalf("series: %q", captured.NamingSeries)
	}
	if captured.ToWarehouse != "WH-Main" || captured.FromWarehouse != "" {
		t.Fatalf("warehouse roles: %+v", captured)
	}
	if len(captured.Items) != 1 {
		t.Fatalf("items: %+v", captured.Items)
	}
	it := captured.Items[0]
	if it.ItemCode != "ITM-1" || it.Qty != 25 || it.UOM != "Nos" || it.TargetWarehouse != "WH-Main" || it.SourceWarehouse != "" {
		t.Fatalf("item row: %+v", it)
	}

	if _, err := env.Repo.Draft(env.Ctx, testUser); !errors.Is(err, repo.ErrNotFound) {
		t.Fatal("draft survived successful create")
	}
}

func TestStockEntryIssueUsesSourceWarehouse(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	var captured erp.StockEntryInput
	env.Gateway.createStockEntry = func(input erp.StockEntryInput) (string, error) {
		captured = input
		return "MAT-STE-2024-00043", nil
	}

	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create"))
	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entrycreate:type:issue"))
	_, _ = env.Flow.HandleMessage(env.Ctx, msgEvent(inline.RenderItem(inline.TagEntryItem, inline.ItemRef{Code: "ITM-2", Name: "Gips", UOM: "Bag"}), true))
	_, _ = env.Flow.HandleMessage(env.Ctx, msgEvent(inline.RenderWarehouse(inline.EntityRef{Code: "WH-Main", Label: "Asosiy ombor"}), true))
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent("10", false)); err != nil {
		t.Fatal(err)
	}

	if captured.FromWarehouse != "WH-Main" || captured.ToWarehouse != "" {
		t.Fatalf("warehouse roles: %+v", captured)
	}
	if captured.Items[0].SourceWarehouse != "WH-Main" || captured.Items[0].TargetWarehouse != "" {
		t.Fatalf("item row: %+v", captured.Items[0])
	}
}

func TestStockEntryRejectsBadQty(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create"))
	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entrycreate:type:receipt"))
	_, _ = env.Flow.HandleMessage(env.Ctx, msgEvent(inline.RenderItem(inline.TagEntryItem, inline.ItemRef{Code: "ITM-1", Name: "Shurup", UOM: "Nos"}), true))
	_, _ = env.Flow.HandleMessage(env.Ctx, msgEvent(inline.RenderWarehouse(inline.EntityRef{Code: "WH-Main", Label: "Asosiy ombor"}), true))

	for _, bad := range []string{"ko'p", "-3", "0"} {
		acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent(bad, false))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(allText(acts), "Miqdor") {
			t.Fatalf("qty %q accepted: %q", bad, allText(acts))
		}
		d, err := env.Repo.Draft(env.Ctx, testUser)
		if err != nil || d.Stage != domain.StageAwaitQty {
			t.Fatalf("stage after bad qty %q: %v %v", bad, d.Stage, err)
		}
	}
	if env.Gateway.createCalls != 0 {
		t.Fatalf("gateway called %d times", env.Gateway.createCalls)
	}
}

func TestStockEntryFailureRewindsToQty(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	env.Gateway.createStockEntry = func(erp.StockEntryInput) (string, error) {
		return "", &erp.GatewayError{StatusCode: 417, Detail: "Allow Zero Valuation Rate for ITM-1"}
	}

	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create"))
	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entrycreate:type:receipt"))
	_, _ = env.Flow.HandleMessage(env.Ctx, msgEvent(inline.RenderItem(inline.TagEntryItem, inline.ItemRef{Code: "ITM-1", Name: "Shurup", UOM: "Nos"}), true))
	_, _ = env.Flow.HandleMessage(env.Ctx, msgEvent(inline.RenderWarehouse(inline.EntityRef{Code: "WH-Main", Label: "Asosiy ombor"}), true))

	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent("25", false))
	if err != nil {
		t.Fatal(err)
	}
	out := allText(acts)
	if !strings.Contains(out, "Yangi miqdor yuboring") {
		t.Fatalf("retry hint missing: %q", out)
	}
	d, err := env.Repo.Draft(env.Ctx, testUser)
	if err != nil {
		t.Fatal("draft deleted on failure")
	}
	if d.Stage != domain.StageAwaitQty {
		t.Fatalf("stage after failure: %v", d.Stage)
	}
	if d.Stock == nil || d.Stock.ItemCode != "ITM-1" || d.Stock.TargetWarehouse != "WH-Main" {
		t.Fatalf("draft context lost: %+v", d.Stock)
	}

	// a fresh quantity retries the create
	env.Gateway.createStockEntry = nil
	acts, _ = env.Flow.HandleMessage(env.Ctx, msgEvent("30", false))
	if !strings.Contains(allText(acts), "✅ Stock Entry yaratildi.") {
		t.Fatalf("retry did not succeed: %q", allText(acts))
	}
}

func TestCancelDuringFlow(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create"))

	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent("/cancel", false))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(allText(acts), "Stock Entry jarayoni bekor qilindi") {
		t.Fatalf("cancel notice: %q", allText(acts))
	}
	if _, err := env.Repo.Draft(env.Ctx, testUser); !errors.Is(err, repo.ErrNotFound) {
		t.Fatal("draft survived cancel")
	}

	acts, _ = env.Flow.HandleMessage(env.Ctx, msgEvent("/cancel", false))
	if !strings.Contains(allText(acts), "topilmadi") {
		t.Fatalf("cancel without draft: %q", allText(acts))
	}
}

func TestConfirmCancelNotices(t *testing.T) {
	cases := []struct {
		start  string
		notice string
	}{
		{"entry:confirm", "Stock Entry tasdiqlash jarayoni bekor qilindi."},
		{"purchase:confirm", "Purchase Receipt tasdiqlash jarayoni bekor qilindi."},
		{"delivery:confirm", "Delivery Note tasdiqlash jarayoni bekor qilindi."},
	}
	for _, tc := range cases {
		env := newTestEnv(t)
		activate(t, env)
		if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent(tc.start)); err != nil {
			t.Fatal(err)
		}
		acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent("/cancel", false))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(allText(acts), tc.notice) {
			t.Fatalf("%s cancel notice: %q", tc.start, allText(acts))
		}
	}
}

func TestStageTransitionsAudited(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	_, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("entry:create"))
	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entrycreate:type:receipt")); err != nil {
		t.Fatal(err)
	}

	evs, err := env.Repo.ListEvents(env.Ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	var advanced bool
	for _, e := range evs {
		if e.Type == events.DraftAdvanced {
			advanced = true
		}
	}
	if !advanced {
		t.Fatalf("stage transition not recorded: %+v", evs)
	}
}

func TestPurchaseFinishPreconditions(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)

	d := domain.Draft{
		Kind:     domain.KindPurchase,
		Stage:    domain.StagePRItemsMenu,
		Purchase: &domain.PurchaseDraft{AcceptedWarehouse: "WH-Main"},
	}
	if err := env.Repo.SaveDraft(env.Ctx, testUser, d); err != nil {
		t.Fatal(err)
	}

	acts, err := env.Flow.HandleCallback(env.Ctx, cbEvent("purchasecreate:finish"))
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || acts[0].Answer == nil || acts[0].Answer.Text != "Avval supplier tanlang." {
		t.Fatalf("missing supplier gate: %+v", acts)
	}
	if env.Gateway.createCalls != 0 {
		t.Fatal("gateway called despite incomplete draft")
	}

	d.Purchase.Supplier = "SUP-1"
	_ = env.Repo.SaveDraft(env.Ctx, testUser, d)
	acts, _ = env.Flow.HandleCallback(env.Ctx, cbEvent("purchasecreate:finish"))
	if acts[0].Answer == nil || acts[0].Answer.Text != "Hech bo'lmaganda bitta item qo'shing." {
		t.Fatalf("missing items gate: %+v", acts)
	}
}

func TestDocActionSubmit(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	var gotDoctype, gotDocname string
	env.Gateway.submitDoc = func(doctype, docname string) error {
		gotDoctype, gotDocname = doctype, docname
		return nil
	}

	acts, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entry-approve:MAT-STE-2024-00007"))
	if err != nil {
		t.Fatal(err)
	}
	if gotDoctype != erp.DoctypeStockEntry || gotDocname != "MAT-STE-2024-00007" {
		t.Fatalf("submit args: %q %q", gotDoctype, gotDocname)
	}
	if !strings.Contains(allText(acts), "✅ MAT-STE-2024-00007 tasdiqlandi.") {
		t.Fatalf("submit message: %q", allText(acts))
	}
}

func TestDocActionFailureExplains(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	env.Gateway.submitDoc = func(string, string) error {
		return &erp.GatewayError{StatusCode: 417, Detail: "Cannot delete or cancel because linked with GL Entry"}
	}

	acts, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entry-approve:MAT-STE-2024-00007"))
	if err != nil {
		t.Fatal(err)
	}
	out := allText(acts)
	if !strings.Contains(out, "mumkin emas") || !strings.Contains(out, "GL Entry") {
		t.Fatalf("failure explanation: %q", out)
	}
}

func TestConfirmFlowPicksDocument(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	env.Gateway.entryDetail = func(docname string) (erp.StockEntry, error) {
		return erp.StockEntry{Name: docname, Purpose: "Material Receipt", PostingDate: "2024-05-01", Docstatus: 0}, nil
	}

	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("entry:confirm")); err != nil {
		t.Fatal(err)
	}
	d, err := env.Repo.Draft(env.Ctx, testUser)
	if err != nil || d.Kind != domain.KindConfirm {
		t.Fatalf("confirm draft: %+v %v", d, err)
	}

	block := inline.RenderApproval(inline.TagEntryApprove, "Stock Entry", "MAT-STE-2024-00009",
		"Draft", "", "", inline.EntryApprovePrefix)
	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent(block, true))
	if err != nil {
		t.Fatal(err)
	}
	out := allText(acts)
	if !strings.Contains(out, "MAT-STE-2024-00009") {
		t.Fatalf("document detail missing: %q", out)
	}
	// draft resolved
	if _, err := env.Repo.Draft(env.Ctx, testUser); !errors.Is(err, repo.ErrNotFound) {
		t.Fatal("confirm draft survived selection")
	}

	// draft documents offer the approve button
	var hasApprove bool
	for _, a := range acts {
		for _, row := range a.Keyboard {
			for _, btn := range row {
				if btn.Data == inline.EntryApprovePrefix+":MAT-STE-2024-00009" {
					hasApprove = true
				}
			}
		}
	}
	if !hasApprove {
		t.Fatal("approve button missing for draft document")
	}
}

func TestHandleInline(t *testing.T) {
	env := newTestEnv(t)

	// without credentials only the onboarding hint comes back
	reply := env.Flow.HandleInline(env.Ctx, testUser, "shurup")
	if reply.Hint == "" || len(reply.Results) != 0 {
		t.Fatalf("expected hint for unlinked user: %+v", reply)
	}

	activate(t, env)
	env.Gateway.searchItems = func(query string, limit int) ([]erp.Item, error) {
		if query != "shurup" {
			t.Fatalf("search term: %q", query)
		}
		if limit != 25 {
			t.Fatalf("limit: %d", limit)
		}
		return []erp.Item{{Name: "ITM-1", ItemCode: "ITM-1", ItemName: "Shurup 4x40", StockUOM: "Nos"}}, nil
	}

	reply = env.Flow.HandleInline(env.Ctx, testUser, "entryitem shurup")
	if len(reply.Results) != 1 {
		t.Fatalf("results: %+v", reply)
	}
	if !strings.HasPrefix(reply.Results[0].Message, inline.TagEntryItem) {
		t.Fatalf("message not tagged: %q", reply.Results[0].Message)
	}
	if ref := inline.ParseItem(inline.TagEntryItem, reply.Results[0].Message, true); ref == nil || ref.Code != "ITM-1" {
		t.Fatalf("result does not parse back: %+v", ref)
	}
}

func TestHandleInlineEntryApprove(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	env.Gateway.listEntries = func(query string, limit int) ([]erp.StockEntry, error) {
		return []erp.StockEntry{{Name: "MAT-STE-2024-00011", Purpose: "Material Receipt", Docstatus: 0}}, nil
	}

	reply := env.Flow.HandleInline(env.Ctx, testUser, "entryapprove")
	if len(reply.Results) != 1 {
		t.Fatalf("results: %+v", reply)
	}
	if got := inline.ParseApproval(inline.EntryApprovePrefix, reply.Results[0].Message); got != "MAT-STE-2024-00011" {
		t.Fatalf("tracking token: %q", got)
	}
}

func TestHandleInlineGatewayFailureBecomesHint(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	env.Gateway.searchItems = func(string, int) ([]erp.Item, error) {
		return nil, &erp.GatewayError{StatusCode: 500, Detail: "Internal Server Error"}
	}

	reply := env.Flow.HandleInline(env.Ctx, testUser, "entryitem x")
	if len(reply.Results) != 0 || reply.Hint == "" {
		t.Fatalf("expected hint on failure: %+v", reply)
	}
	if len(reply.Hint) > 48 {
		t.Fatalf("hint too long: %d", len(reply.Hint))
	}
}

func TestInlineEchoIgnoredWithoutDraft(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	block := inline.RenderItem(inline.TagEntryItem, inline.ItemRef{Code: "ITM-1", Name: "Shurup", UOM: "Nos"})
	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent(block, true))
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 0 {
		t.Fatalf("inline echo outside a flow should be dropped: %+v", acts)
	}
}
