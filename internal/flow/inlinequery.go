package flow

import (
	"context"
	"fmt"
	"strings"

	"stockbot/internal/domain"
	"stockbot/internal/erp"
	"stockbot/internal/inline"
)

// InlineResult is one transport-agnostic inline search hit. Message is
// the text injected into the chat when the user picks it.
type InlineResult struct {
	Title       string
	Description string
	Message     string
}

// InlineReply carries either results or a hint shown as the inline
// panel's start button.
type InlineReply struct {
	Results []InlineResult
	Hint    string
}

type inlineMode struct {
	prefixes []string
	run      func(ctx context.Context, f *Flow, s *Session, term string) InlineReply
}

// Order matters: longer and more specific prefixes come first so
// "entryitem" never falls through to "entry".
var inlineModes = []inlineMode{
	{prefixes: []string{"entryitem", "itemlookup"}, run: inlineEntryItems},
	{prefixes: []string{"entrywarehouse", "warehouse"}, run: inlineWarehouses},
	{prefixes: []string{"entryapprove", "approve"}, run: inlineEntryApprove},
	{prefixes: []string{"purchaseapprove", "prapprove"}, run: inlinePurchaseApprove},
	{prefixes: []string{"pritem"}, run: inlinePurchaseItems},
	{prefixes: []string{"supplier"}, run: inlineSuppliers},
	{prefixes: []string{"purchase"}, run: inlinePurchases},
	{prefixes: []string{"deliveryapprove", "dnapprove"}, run: inlineDeliveryApprove},
	{prefixes: []string{"dnitem"}, run: inlineDeliveryItems},
	{prefixes: []string{"dncustomer"}, run: inlineCustomers},
	{prefixes: []string{"delivery"}, run: inlineDeliveries},
	{prefixes: []string{"entry"}, run: inlineEntries},
}

// HandleInline resolves one inline query into results. Users without an
// active credential pair only get the onboarding hint.
func (f *Flow) HandleInline(ctx context.Context, userID int64, query string) InlineReply {
	s := &Session{User: domain.User{ID: userID}, Status: domain.CredentialPendingKey}
	cred, err := f.Repo.Credentials(ctx, userID)
	if err == nil {
		s.Status = cred.Status
		s.Creds = erp.Credentials{Key: cred.APIKey, Secret: cred.APISecret}
	}
	if s.Status != domain.CredentialActive {
		return InlineReply{Hint: "Avval /start ni bosing"}
	}

	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)
	f.Log.Debug().Int64("user", userID).Str("query", SafePreview(trimmed)).Msg("inline query")

	for _, mode := range inlineModes {
		for _, prefix := range mode.prefixes {
			if strings.HasPrefix(lower, prefix) {
				term := strings.TrimSpace(trimmed[len(prefix):])
				return mode.run(ctx, f, s, term)
			}
		}
	}

	// Default mode: plain item lookup.
	term := trimmed
	if lower == "items" || lower == "bot items" {
		term = ""
	}
	return inlineItemLookup(ctx, f, s, term)
}

func inlineFailure(err error, fallback string) InlineReply {
	hint := erp.ErrorDetail(err)
	if hint == "" {
		hint = fallback
	}
	if len(hint) > 48 {
		hint = hint[:48]
	}
	return InlineReply{Hint: hint}
}

func itemTag(tag string, items []erp.Item, limit int) []InlineResult {
	var results []InlineResult
	for _, it := range items {
		name := it.ItemName
		if name == "" {
			name = it.Name
		}
		if name == "" {
			name = "Item"
		}
		code := it.ItemCode
		if code == "" {
			code = it.Name
		}
		if code == "" {
			code = "-"
		}
		uom := it.StockUOM
		if uom == "" {
			uom = "-"
		}
		results = append(results, InlineResult{
			Title:       fmt.Sprintf("%s (%s)", name, code),
			Description: "UOM: " + uom,
			Message:     inline.RenderItem(tag, inline.ItemRef{Code: code, Name: name, UOM: uom}),
		})
		if len(results) >= limit {
			break
		}
	}
	return results
}

func inlineEntryItems(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	items, err := f.Gateway.SearchItems(ctx, s.Creds, term, f.Cfg.Limits.Items)
	if err != nil {
		return inlineFailure(err, "Item ro'yxatini olishda xatolik")
	}
	return InlineReply{Results: itemTag(inline.TagEntryItem, items, f.Cfg.Limits.Items)}
}

func inlinePurchaseItems(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	items, err := f.Gateway.SearchItems(ctx, s.Creds, term, f.Cfg.Limits.Items)
	if err != nil {
		return inlineFailure(err, "Item ro'yxatini olishda xatolik")
	}
	return InlineReply{Results: itemTag(inline.TagPurchaseItem, items, f.Cfg.Limits.Items)}
}

func inlineDeliveryItems(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	items, err := f.Gateway.SearchItems(ctx, s.Creds, term, f.Cfg.Limits.Items)
	if err != nil {
		return inlineFailure(err, "Item ro'yxatini olishda xatolik")
	}
	return InlineReply{Results: itemTag(inline.TagDeliveryItem, items, f.Cfg.Limits.Items)}
}

func inlineWarehouses(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	warehouses, err := f.Gateway.SearchWarehouses(ctx, s.Creds, term, f.Cfg.Limits.Warehouses)
	if err != nil {
		return inlineFailure(err, "Ombor ro'yxatini olishda xatolik")
	}
	lowered := strings.ToLower(term)
	var results []InlineResult
	for _, w := range warehouses {
		name := w.Name
		if name == "" {
			name = "-"
		}
		label := w.WarehouseName
		if label == "" {
			label = name
		}
		if lowered != "" && !strings.Contains(strings.ToLower(label), lowered) && !strings.Contains(strings.ToLower(name), lowered) {
			continue
		}
		results = append(results, InlineResult{
			Title:       label,
			Description: name,
			Message:     inline.RenderWarehouse(inline.EntityRef{Code: name, Label: label}),
		})
		if len(results) >= f.Cfg.Limits.Warehouses {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlineSuppliers(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	suppliers, err := f.Gateway.SearchSuppliers(ctx, s.Creds, term, f.Cfg.Limits.Suppliers)
	if err != nil {
		return inlineFailure(err, "Supplier ro'yxatini olishda xatolik")
	}
	lowered := strings.ToLower(term)
	var results []InlineResult
	for _, sp := range suppliers {
		name := sp.Name
		if name == "" {
			name = "-"
		}
		label := sp.SupplierName
		if label == "" {
			label = sp.SupplierGroup
		}
		if label == "" {
			label = name
		}
		if lowered != "" && !strings.Contains(strings.ToLower(name), lowered) && !strings.Contains(strings.ToLower(label), lowered) {
			continue
		}
		results = append(results, InlineResult{
			Title:       label,
			Description: name,
			Message:     inline.RenderSupplier(inline.EntityRef{Code: name, Label: label}),
		})
		if len(results) >= f.Cfg.Limits.Suppliers {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlineCustomers(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	customers, err := f.Gateway.SearchCustomers(ctx, s.Creds, term, f.Cfg.Limits.Customers)
	if err != nil {
		return inlineFailure(err, "Customer ro'yxatini olishda xatolik")
	}
	lowered := strings.ToLower(term)
	var results []InlineResult
	for _, c := range customers {
		name := c.Name
		if name == "" {
			name = "-"
		}
		label := c.CustomerName
		if label == "" {
			label = c.CustomerGroup
		}
		if label == "" {
			label = name
		}
		if lowered != "" && !strings.Contains(strings.ToLower(name), lowered) && !strings.Contains(strings.ToLower(label), lowered) {
			continue
		}
		results = append(results, InlineResult{
			Title:       label,
			Description: name,
			Message:     inline.RenderCustomer(inline.EntityRef{Code: name, Label: label}),
		})
		if len(results) >= f.Cfg.Limits.Customers {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlineEntries(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	entries, err := f.Gateway.ListStockEntries(ctx, s.Creds, term, f.Cfg.Limits.Documents)
	if err != nil {
		return inlineFailure(err, "Stock Entry ro'yxatini olishda xatolik")
	}
	limit := min(f.Cfg.Limits.Documents, 10)
	var results []InlineResult
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		purpose := e.Purpose
		if purpose == "" {
			purpose = "-"
		}
		results = append(results, InlineResult{
			Title:       fmt.Sprintf("%s (%s)", e.Name, purpose),
			Description: fmt.Sprintf("%s • %s → %s", orDash(e.PostingDate), orDash(e.FromWarehouse), orDash(e.ToWarehouse)),
			Message:     formatStockEntry(e),
		})
		if len(results) >= limit {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlineEntryApprove(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	entries, err := f.Gateway.ListStockEntries(ctx, s.Creds, term, f.Cfg.Limits.Documents)
	if err != nil {
		return inlineFailure(err, "Stock Entry ro'yxatini olishda xatolik")
	}
	limit := min(f.Cfg.Limits.Documents, 10)
	var results []InlineResult
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		status := docstatusLabel(e.Docstatus)
		results = append(results, InlineResult{
			Title:       fmt.Sprintf("%s (%s)", e.Name, status),
			Description: orDash(e.PostingDate),
			Message:     inline.RenderApproval(inline.TagEntryApprove, "Stock Entry", e.Name, status, "", "", inline.EntryApprovePrefix),
		})
		if len(results) >= limit {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlinePurchases(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	receipts, err := f.Gateway.ListPurchaseReceipts(ctx, s.Creds, term, f.Cfg.Limits.Documents)
	if err != nil {
		return inlineFailure(err, "Purchase Receipt ro'yxatini olishda xatolik")
	}
	limit := min(f.Cfg.Limits.Documents, 10)
	var results []InlineResult
	for _, r := range receipts {
		if r.Name == "" {
			continue
		}
		supplier := orDash(r.Supplier)
		results = append(results, InlineResult{
			Title:       fmt.Sprintf("%s (%s)", r.Name, supplier),
			Description: fmt.Sprintf("%s • %s %s", supplier, orDash(r.PostingDate), orDash(r.PostingTime)),
			Message:     formatPurchaseReceipt(r),
		})
		if len(results) >= limit {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlinePurchaseApprove(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	receipts, err := f.Gateway.ListPurchaseReceipts(ctx, s.Creds, term, f.Cfg.Limits.Documents)
	if err != nil {
		return inlineFailure(err, "Purchase Receipt ro'yxatini olishda xatolik")
	}
	limit := min(f.Cfg.Limits.Documents, 10)
	var results []InlineResult
	for _, r := range receipts {
		if r.Name == "" {
			continue
		}
		status := docstatusLabel(r.Docstatus)
		supplier := orDash(r.Supplier)
		results = append(results, InlineResult{
			Title:       fmt.Sprintf("%s (%s)", r.Name, status),
			Description: fmt.Sprintf("%s • %s", supplier, orDash(r.PostingDate)),
			Message:     inline.RenderApproval(inline.TagPurchaseApprove, "Purchase Receipt", r.Name, status, "Supplier", supplier, inline.PurchaseApprovePrefix),
		})
		if len(results) >= limit {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlineDeliveries(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	notes, err := f.Gateway.ListDeliveryNotes(ctx, s.Creds, term, f.Cfg.Limits.Documents)
	if err != nil {
		return inlineFailure(err, "Delivery Note ro'yxatini olishda xatolik")
	}
	limit := min(f.Cfg.Limits.Documents, 10)
	var results []InlineResult
	for _, n := range notes {
		if n.Name == "" {
			continue
		}
		customer := orDash(n.Customer)
		results = append(results, InlineResult{
			Title:       fmt.Sprintf("%s (%s)", n.Name, customer),
			Description: fmt.Sprintf("%s • %s", orDash(n.PostingDate), customer),
			Message:     formatDeliveryNote(n),
		})
		if len(results) >= limit {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlineDeliveryApprove(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	notes, err := f.Gateway.ListDeliveryNotes(ctx, s.Creds, term, f.Cfg.Limits.Documents)
	if err != nil {
		return inlineFailure(err, "Delivery Note ro'yxatini olishda xatolik")
	}
	limit := min(f.Cfg.Limits.Documents, 10)
	var results []InlineResult
	for _, n := range notes {
		if n.Name == "" {
			continue
		}
		status := docstatusLabel(n.Docstatus)
		customer := orDash(n.Customer)
		results = append(results, InlineResult{
			Title:       fmt.Sprintf("%s (%s)", n.Name, status),
			Description: fmt.Sprintf("%s • %s", customer, orDash(n.PostingDate)),
			Message:     inline.RenderApproval(inline.TagDeliveryApprove, "Delivery Note", n.Name, status, "Customer", customer, inline.DeliveryApprovePrefix),
		})
		if len(results) >= limit {
			break
		}
	}
	return InlineReply{Results: results}
}

func inlineItemLookup(ctx context.Context, f *Flow, s *Session, term string) InlineReply {
	items, err := f.Gateway.SearchItems(ctx, s.Creds, term, f.Cfg.Limits.Items)
	if err != nil {
		return inlineFailure(err, "ERPNext bilan aloqa yo'q")
	}
	var results []InlineResult
	for _, it := range items {
		name := it.ItemName
		if name == "" {
			name = it.Name
		}
		if name == "" {
			name = "Item"
		}
		code := it.ItemCode
		if code == "" {
			code = it.Name
		}
		uom := orDash(it.StockUOM)
		group := orDash(it.ItemGroup)
		title := name
		if code != "" && code != name {
			title = fmt.Sprintf("%s (%s)", name, code)
		}
		lines := []string{
			"📦 " + title,
			"Item Code: " + orDash(code),
			"Item Group: " + group,
			"UOM: " + uom,
		}
		if it.StandardRate != 0 {
			lines = append(lines, fmt.Sprintf("Narx: %v", it.StandardRate))
		}
		if desc := erp.CleanText(it.Description); desc != "" {
			if len(desc) > 300 {
				desc = desc[:300]
			}
			lines = append(lines, "Ta'rif: "+desc)
		}
		results = append(results, InlineResult{
			Title:       title,
			Description: fmt.Sprintf("Kod: %s | UOM: %s | Group: %s", orDash(code), uom, group),
			Message:     strings.Join(lines, "\n"),
		})
		if len(results) >= f.Cfg.Limits.Items {
			break
		}
	}
	return InlineReply{Results: results}
}
