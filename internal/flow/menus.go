package flow

import (
	"context"
	"fmt"
	"strings"

	"stockbot/internal/erp"
	"stockbot/internal/inline"
)

func docstatusLabel(v int) string {
	switch v {
	case erp.DocstatusDraft:
		return "Draft"
	case erp.DocstatusSubmitted:
		return "Tasdiqlangan"
	case erp.DocstatusCancelled:
		return "Bekor qilingan"
	}
	return "Noma'lum"
}

func (f *Flow) itemsMenu(ctx context.Context, s *Session) []Action {
	acts := []Action{msgKB(s.ChatID, "Inline tugmani bosing va itemlarni ko'ring.", itemsMarkup())}
	items, err := f.Gateway.SearchItems(ctx, s.Creds, "", f.Cfg.Limits.Items)
	if err != nil {
		text := "Item ro'yxatini olishda xatolik yuz berdi.\nMa'lumot: " + erp.ErrorDetail(err)
		return append(acts, msg(s.ChatID, text))
	}
	if len(items) == 0 {
		return append(acts, msg(s.ChatID, "ERPNext da item topilmadi."))
	}
	open := [][]Button{{{Label: "📦 Item oynasini ochish", SwitchInline: "itemlookup"}}}
	return append(acts, msgKB(s.ChatID, "Item tanlash uchun pastdagi qidiruv oynasini oching.", open))
}

func entryMarkup() [][]Button {
	return [][]Button{
		{{Label: "📋 Harakatni ko'rish", SwitchInline: "entry"}},
		{{Label: "➕ Yangi harakat yaratish", Data: "entry:create"}},
		{{Label: "✔️ Harakatni tasdiqlash", Data: "entry:confirm"}},
	}
}

func purchaseMarkup() [][]Button {
	return [][]Button{
		{{Label: "Ko'rish", SwitchInline: "purchase"}},
		{{Label: "➕ Yangi Purchase Receipt", Data: "purchase:create"}},
		{{Label: "✔️ Tasdiqlash", Data: "purchase:confirm"}},
	}
}

func deliveryMarkup() [][]Button {
	return [][]Button{
		{{Label: "Ko'rish", SwitchInline: "delivery"}},
		{{Label: "➕ Yangi rasmiylashtirish", Data: "delivery:create"}},
		{{Label: "✔️ Tasdiqlash", Data: "delivery:confirm"}},
	}
}

func (f *Flow) entryMenu(ctx context.Context, s *Session) []Action {
	acts := []Action{msgKB(s.ChatID, "Stock Entry menyusi:\nHarakatlarni ko'rish yoki yangi harakat yaratish uchun variantni tanlang.", entryMarkup())}
	if preview := f.entryPreview(ctx, s); preview != "" {
		acts = append(acts, msg(s.ChatID, preview))
	}
	return acts
}

func (f *Flow) entryPreview(ctx context.Context, s *Session) string {
	entries, err := f.Gateway.ListStockEntries(ctx, s.Creds, "", min(f.Cfg.Limits.Documents, 15))
	if err != nil {
		return "Stock Entry ro'yxatini olishda xatolik yuz berdi.\nMa'lumot: " + erp.ErrorDetail(err)
	}
	if len(entries) == 0 {
		return "Hozircha Stock Entry topilmadi."
	}
	preview := entries
	if len(preview) > 5 {
		preview = preview[:5]
	}
	var lines []string
	for _, e := range preview {
		purpose := e.Purpose
		if purpose == "" {
			purpose = e.StockEntryType
		}
		if purpose == "" {
			purpose = "-"
		}
		lines = append(lines, fmt.Sprintf("• %s — %s (%s, %s → %s) — %s",
			orDash(e.Name), purpose, orDash(e.PostingDate), orDash(e.FromWarehouse), orDash(e.ToWarehouse), docstatusLabel(e.Docstatus)))
	}
	if len(entries) > len(preview) {
		lines = append(lines, fmt.Sprintf("... yana %d ta harakat inline menyuda mavjud.", len(entries)-len(preview)))
	}
	return joinLines(lines)
}

func (f *Flow) purchaseMenu(ctx context.Context, s *Session) []Action {
	acts := []Action{}
	receipts, err := f.Gateway.ListPurchaseReceipts(ctx, s.Creds, "", min(f.Cfg.Limits.Documents, 15))
	switch {
	case err != nil:
		acts = append(acts, msg(s.ChatID, "Purchase Receipt ro'yxatini olishda xatolik yuz berdi.\nMa'lumot: "+erp.ErrorDetail(err)))
	case len(receipts) == 0:
		acts = append(acts, msg(s.ChatID, "Hozircha Purchase Receipt topilmadi."))
	default:
		preview := receipts
		if len(preview) > 5 {
			preview = preview[:5]
		}
		var lines []string
		for _, r := range preview {
			lines = append(lines, fmt.Sprintf("• %s — %s (%s) — %s",
				orDash(r.Name), orDash(r.Supplier), orDash(r.PostingDate), docstatusLabel(r.Docstatus)))
		}
		acts = append(acts, msg(s.ChatID, joinLines(lines)))
	}
	return append(acts, msgKB(s.ChatID, "Purchase Receipt menyusi:", purchaseMarkup()))
}

func (f *Flow) deliveryMenu(ctx context.Context, s *Session) []Action {
	acts := []Action{}
	notes, err := f.Gateway.ListDeliveryNotes(ctx, s.Creds, "", min(f.Cfg.Limits.Documents, 15))
	switch {
	case err != nil:
		acts = append(acts, msg(s.ChatID, "Delivery Note ro'yxatini olishda xatolik yuz berdi.\nMa'lumot: "+erp.ErrorDetail(err)))
	case len(notes) == 0:
		acts = append(acts, msg(s.ChatID, "Hozircha Delivery Note topilmadi."))
	default:
		preview := notes
		if len(preview) > 5 {
			preview = preview[:5]
		}
		var lines []string
		for _, n := range preview {
			lines = append(lines, fmt.Sprintf("• %s — %s (%s) — %s",
				orDash(n.Name), orDash(n.Customer), orDash(n.PostingDate), docstatusLabel(n.Docstatus)))
		}
		acts = append(acts, msg(s.ChatID, joinLines(lines)))
	}
	return append(acts, msgKB(s.ChatID, "Delivery Note menyusi:", deliveryMarkup()))
}

func (f *Flow) itemDetailCallback(ctx context.Context, s *Session, name string) ([]Action, error) {
	if name == "" || name == "refresh" {
		acts := []Action{answer("Yangilanmoqda…", false)}
		return append(acts, f.itemsMenu(ctx, s)...), nil
	}
	item, err := f.Gateway.ItemDetail(ctx, s.Creds, name)
	if err != nil {
		return []Action{answer("Item ma'lumotini olishda xatolik.", true)}, nil
	}
	return []Action{answer("", false), msg(s.ChatID, formatItem(item))}, nil
}

func (f *Flow) entryDetailCallback(ctx context.Context, s *Session, docname string) ([]Action, error) {
	if docname == "" || docname == "refresh" {
		acts := []Action{answer("Yangilanmoqda…", false)}
		if preview := f.entryPreview(ctx, s); preview != "" {
			acts = append(acts, msg(s.ChatID, preview))
		}
		return acts, nil
	}
	entry, err := f.Gateway.StockEntryDetail(ctx, s.Creds, docname)
	if err != nil {
		return []Action{answer("Stock Entry ma'lumotini olishda xatolik.", true)}, nil
	}
	return []Action{
		answer("", false),
		msgKB(s.ChatID, formatStockEntry(entry), entryActionButtons(entry)),
	}, nil
}

// entryActionButtons offers the lifecycle actions valid for the
// document's docstatus: draft can be approved or deleted, submitted
// only cancelled, cancelled only deleted.
func entryActionButtons(e erp.StockEntry) [][]Button {
	return actionButtons(e.Name, e.Docstatus, inline.EntryApprovePrefix, entryCancelPrefix, entryDeletePrefix)
}

func purchaseActionButtons(r erp.PurchaseReceipt) [][]Button {
	return actionButtons(r.Name, r.Docstatus, inline.PurchaseApprovePrefix, purchaseCancelPrefix, purchaseDeletePrefix)
}

func deliveryActionButtons(n erp.DeliveryNote) [][]Button {
	return actionButtons(n.Name, n.Docstatus, inline.DeliveryApprovePrefix, deliveryCancelPrefix, deliveryDeletePrefix)
}

func actionButtons(docname string, docstatus int, approvePrefix, cancelPrefix, deletePrefix string) [][]Button {
	if docname == "" {
		return nil
	}
	switch docstatus {
	case erp.DocstatusSubmitted:
		return [][]Button{{
			{Label: "❌ Bekor qilish", Data: cancelPrefix + ":" + docname},
		}}
	case erp.DocstatusDraft:
		return [][]Button{{
			{Label: "✅ Tasdiqlash", Data: approvePrefix + ":" + docname},
			{Label: "🗑️ O'chirish", Data: deletePrefix + ":" + docname},
		}}
	default:
		return [][]Button{{
			{Label: "🗑️ O'chirish", Data: deletePrefix + ":" + docname},
		}}
	}
}

func formatStockEntry(e erp.StockEntry) string {
	lines := []string{
		"🚚 Stock Entry: " + orDash(e.Name),
		"Maqsad: " + orDash(e.Purpose),
		"Tur: " + orDash(e.StockEntryType),
		"Sana: " + orDash(e.PostingDate) + " " + orDash(e.PostingTime),
		"Source Warehouse: " + orDash(e.FromWarehouse),
		"Target Warehouse: " + orDash(e.ToWarehouse),
		fmt.Sprintf("Qiymat: chiqish %v, kirish %v", e.TotalOutgoingValue, e.TotalIncomingValue),
		"Status: " + docstatusLabel(e.Docstatus),
	}
	return joinLines(lines)
}

func formatPurchaseReceipt(r erp.PurchaseReceipt) string {
	supplier := r.SupplierName
	if supplier == "" {
		supplier = r.Supplier
	}
	lines := []string{
		"🧾 Purchase Receipt: " + orDash(r.Name),
		"Supplier: " + orDash(supplier),
		"Sana: " + orDash(r.PostingDate) + " " + orDash(r.PostingTime),
		"Ombor: " + orDash(r.SetWarehouse),
		fmt.Sprintf("Jami: %v", r.GrandTotal),
		"Status: " + docstatusLabel(r.Docstatus),
	}
	return joinLines(lines)
}

func formatDeliveryNote(n erp.DeliveryNote) string {
	customer := n.CustomerName
	if customer == "" {
		customer = n.Customer
	}
	lines := []string{
		"🚚 Delivery Note: " + orDash(n.Name),
		"Mijoz: " + orDash(customer),
		"Sana: " + orDash(n.PostingDate) + " " + orDash(n.PostingTime),
		"Ombor: " + orDash(n.SetWarehouse),
		fmt.Sprintf("Jami: %v", n.GrandTotal),
		"Status: " + docstatusLabel(n.Docstatus),
	}
	return joinLines(lines)
}

func formatItem(it erp.Item) string {
	name := it.ItemName
	if name == "" {
		name = it.Name
	}
	code := it.ItemCode
	if code == "" {
		code = it.Name
	}
	lines := []string{
		"📦 Item: " + orDash(name),
		"Code: " + orDash(code),
		"Group: " + orDash(it.ItemGroup),
		"UOM: " + orDash(it.StockUOM),
	}
	if it.StandardRate != 0 {
		lines = append(lines, fmt.Sprintf("Narx: %v", it.StandardRate))
	}
	if it.Description != "" {
		desc := erp.CleanText(it.Description)
		if len(desc) > 600 {
			desc = desc[:600]
		}
		lines = append(lines, "", desc)
	}
	return joinLines(lines)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
