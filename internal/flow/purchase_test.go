package flow_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/inline"
	"stockbot/internal/repo"
)

func TestPurchaseReceiptHappyPath(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	var captured erp.PurchaseReceiptInput
	env.Gateway.createPurchaseReceipt = func(input erp.PurchaseReceiptInput) (string, error) {
		captured = input
		return "MAT-PRE-2024-00031", nil
	}

	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("purchase:create")); err != nil {
		t.Fatal(err)
	}
	d, err := env.Repo.Draft(env.Ctx, testUser)
	if err != nil || d.Stage != domain.StagePRSupplier {
		t.Fatalf("stage after start: %v %v", d.Stage, err)
	}
	if d.Purchase.PostingDate != "2024-05-01" || d.Purchase.PostingTime != "12:00" {
		t.Fatalf("posting defaults: %+v", d.Purchase)
	}

	supplier := inline.RenderSupplier(inline.EntityRef{Code: "SUP-1", Label: "Akfa"})
	acts, err := env.Flow.HandleMessage(env.Ctx, msgEvent(supplier, true))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(allText(acts), "Akfa tanlandi.") {
		t.Fatalf("supplier ack: %q", allText(acts))
	}

	// free-text supplier delivery note
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent("DN-778", false)); err != nil {
		t.Fatal(err)
	}

	// posting date skipped by keyword keeps the default
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent("skip", false)); err != nil {
		t.Fatal(err)
	}
	d, _ = env.Repo.Draft(env.Ctx, testUser)
	if d.Stage != domain.StagePRTime || d.Purchase.PostingDate != "2024-05-01" {
		t.Fatalf("date skip: stage=%v date=%q", d.Stage, d.Purchase.PostingDate)
	}

	// posting time skipped by button keeps the default
	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("purchasecreate:skip")); err != nil {
		t.Fatal(err)
	}
	d, _ = env.Repo.Draft(env.Ctx, testUser)
	if d.Stage != domain.StagePRPutaway || d.Purchase.PostingTime != "12:00" {
		t.Fatalf("time skip: stage=%v time=%q", d.Stage, d.Purchase.PostingTime)
	}

	// putaway via button, is-return via text
	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("purchasecreate:yn:yes")); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent("yo'q", false)); err != nil {
		t.Fatal(err)
	}

	wh := inline.RenderWarehouse(inline.EntityRef{Code: "WH-Main", Label: "Asosiy ombor"})
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent(wh, true)); err != nil {
		t.Fatal(err)
	}
	// rejected warehouse not needed
	acts, err = env.Flow.HandleMessage(env.Ctx, msgEvent("skip", false))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(allText(acts), "Hozircha item qo'shilmagan.") {
		t.Fatalf("items menu: %q", allText(acts))
	}

	// first item: qty, rejected qty and rate all typed
	item1 := inline.RenderItem(inline.TagPurchaseItem, inline.ItemRef{Code: "ITM-1", Name: "Shurup", UOM: "Nos"})
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent(item1, true)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent("10", false)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent("2", false)); err != nil {
		t.Fatal(err)
	}
	acts, err = env.Flow.HandleMessage(env.Ctx, msgEvent("1200", false))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(allText(acts), "Shurup qo'shildi.") {
		t.Fatalf("first item ack: %q", allText(acts))
	}

	// second item: rejected qty skipped by button, zero rate
	item2 := inline.RenderItem(inline.TagPurchaseItem, inline.ItemRef{Code: "ITM-2", Name: "Gips", UOM: "Bag"})
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent(item2, true)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Flow.HandleMessage(env.Ctx, msgEvent("5", false)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Flow.HandleCallback(env.Ctx, cbEvent("purchasecreate:skip")); err != nil {
		t.Fatal(err)
	}
	acts, err = env.Flow.HandleMessage(env.Ctx, msgEvent("0", false))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(allText(acts), "1. Shurup") || !strings.Contains(allText(acts), "2. Gips") {
		t.Fatalf("menu lost earlier items: %q", allText(acts))
	}

	acts, err = env.Flow.HandleCallback(env.Ctx, cbEvent("purchasecreate:finish"))
	if err != nil {
		t.Fatal(err)
	}
	out := allText(acts)
	if !strings.Contains(out, "✅ Purchase Receipt yaratildi.") || !strings.Contains(out, "MAT-PRE-2024-00031") {
		t.Fatalf("success message: %q", out)
	}

	if captured.Supplier != "SUP-1" || captured.SupplierDeliveryNote != "DN-778" {
		t.Fatalf("header: %+v", captured)
	}
	if captured.PostingDate != "2024-05-01" || captured.PostingTime != "12:00" {
		t.Fatalf("skipped fields changed: %+v", captured)
	}
	if captured.ApplyPutawayRule != 1 || captured.IsReturn != 0 {
		t.Fatalf("flags: %+v", captured)
	}
	if captured.SetWarehouse != "WH-Main" || captured.Company != "accord" || captured.NamingSeries != "MAT-PRE-.YYYY.-.#####" {
		t.Fatalf("header: %+v", captured)
	}
	if len(captured.Items) != 2 {
		t.Fatalf("items: %+v", captured.Items)
	}
	first := captured.Items[0]
	if first.ItemCode != "ITM-1" || first.AcceptedQty != 10 || first.RejectedQty != 2 || first.ReceivedQty != 12 {
		t.Fatalf("first row qtys: %+v", first)
	}
	if first.Rate != 1200 || first.Amount != 12000 || first.Warehouse != "WH-Main" || first.RejectedWarehouse != "" {
		t.Fatalf("first row: %+v", first)
	}
	second := captured.Items[1]
	if second.ItemCode != "ITM-2" || second.AcceptedQty != 5 || second.RejectedQty != 0 || second.ReceivedQty != 5 {
		t.Fatalf("second row qtys: %+v", second)
	}
	if second.Rate != 0 || second.Amount != 0 {
		t.Fatalf("second row rate: %+v", second)
	}

	if _, err := env.Repo.Draft(env.Ctx, testUser); !errors.Is(err, repo.ErrNotFound) {
		t.Fatal("draft survived successful create")
	}
}

func TestPurchaseFailureRewindsToItemsMenu(t *testing.T) {
	env := newTestEnv(t)
	activate(t, env)
	env.Gateway.createPurchaseReceipt = func(erp.PurchaseReceiptInput) (string, error) {
		return "", &erp.GatewayError{StatusCode: 417, Detail: "Allow Zero Valuation Rate for ITM-1"}
	}

	d := domain.Draft{
		Kind:  domain.KindPurchase,
		Stage: domain.StagePRItemsMenu,
		Purchase: &domain.PurchaseDraft{
			Supplier:          "SUP-1",
			AcceptedWarehouse: "WH-Main",
			Items: []domain.PurchaseItem{
				{
					ItemCode:    "ITM-1",
					ItemName:    "Shurup",
					AcceptedQty: decimal.RequireFromString("10"),
					Rate:        decimal.RequireFromString("1200"),
					Amount:      decimal.RequireFromString("12000"),
				},
			},
		},
	}
	if err := env.Repo.SaveDraft(env.Ctx, testUser, d); err != nil {
		t.Fatal(err)
	}

	acts, err := env.Flow.HandleCallback(env.Ctx, cbEvent("purchasecreate:finish"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(allText(acts), "davom ettirish yoki bekor qilish") {
		t.Fatalf("failure guidance: %q", allText(acts))
	}

	got, err := env.Repo.Draft(env.Ctx, testUser)
	if err != nil {
		t.Fatal("draft deleted on failure")
	}
	if got.Stage != domain.StagePRItemsMenu {
		t.Fatalf("stage after failure: %v", got.Stage)
	}
	if len(got.Purchase.Items) != 1 || got.Purchase.Items[0].ItemCode != "ITM-1" {
		t.Fatalf("draft items lost: %+v", got.Purchase.Items)
	}
}
