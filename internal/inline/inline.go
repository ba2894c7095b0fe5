// Package inline implements the tagged text blocks the bot's inline
// search results inject into the chat, and the parsers that round-trip
// them back into structured references.
package inline

import "strings"

const (
	TagEntryItem       = "#entryitem"
	TagEntryWarehouse  = "#entrywarehouse"
	TagEntryApprove    = "#entryapprove"
	TagPurchaseApprove = "#purchaseapprove"
	TagPurchaseItem    = "#pritem"
	TagSupplier        = "#supplier"
	TagDeliveryApprove = "#deliveryapprove"
	TagDeliveryItem    = "#dnitem"
	TagCustomer        = "#customer"
)

// Tracking tokens double as callback prefixes for document actions.
const (
	EntryApprovePrefix    = "entry-approve"
	PurchaseApprovePrefix = "purchase-approve"
	DeliveryApprovePrefix = "delivery-approve"
)

type ItemRef struct {
	Code string
	Name string
	UOM  string
}

type EntityRef struct {
	Code  string
	Label string
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func labelValue(line, label string) (string, bool) {
	if strings.HasPrefix(strings.ToLower(line), label) {
		_, rest, _ := strings.Cut(line, ":")
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// RenderItem builds the message an item search result injects.
func RenderItem(tag string, it ItemRef) string {
	return strings.Join([]string{
		tag,
		"📦 " + it.Name,
		"Item Code: " + it.Code,
		"UOM: " + it.UOM,
	}, "\n")
}

func RenderWarehouse(w EntityRef) string {
	return strings.Join([]string{
		TagEntryWarehouse,
		"Warehouse: " + w.Label,
		"Code: " + w.Code,
	}, "\n")
}

func RenderSupplier(s EntityRef) string {
	return strings.Join([]string{
		TagSupplier,
		"Supplier: " + s.Label,
		"Code: " + s.Code,
	}, "\n")
}

func RenderCustomer(c EntityRef) string {
	return strings.Join([]string{
		TagCustomer,
		"Customer: " + c.Label,
		"Code: " + c.Code,
	}, "\n")
}

// RenderApproval builds the block used to pick an existing document for
// lifecycle actions. The trailing tracking token is what the parser
// keys on.
func RenderApproval(tag, docLabel, docname, status, counterpartyLabel, counterparty, trackPrefix string) string {
	lines := []string{tag, docLabel + ": " + docname}
	if counterparty != "" {
		lines = append(lines, counterpartyLabel+": "+counterparty)
	}
	lines = append(lines, "Status: "+status, trackPrefix+":"+docname)
	return strings.Join(lines, "\n")
}

// ParseItem extracts an item reference. The entry flow historically
// accepted any message carrying an "Item Code:" line; the purchase and
// delivery item pickers require their tag, so callers pass requireTag.
func ParseItem(tag, text string, requireTag bool) *ItemRef {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}
	found := false
	for _, line := range lines {
		lowered := strings.ToLower(line)
		if strings.Contains(lowered, tag) {
			found = true
			break
		}
		if !requireTag && strings.Contains(lowered, "item code") {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	var ref ItemRef
	for _, line := range lines {
		if strings.HasPrefix(line, "📦") {
			ref.Name = strings.TrimSpace(strings.TrimPrefix(line, "📦"))
		}
		if v, ok := labelValue(line, "item code:"); ok {
			ref.Code = v
		}
		if v, ok := labelValue(line, "uom:"); ok {
			ref.UOM = v
		}
	}
	if ref.Code == "" {
		return nil
	}
	if ref.Name == "" {
		ref.Name = ref.Code
	}
	if ref.UOM == "" {
		ref.UOM = "-"
	}
	return &ref
}

// ParseWarehouse accepts any block mentioning a warehouse; the code
// falls back to the label when the Code line is absent.
func ParseWarehouse(text string) *EntityRef {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}
	mentioned := false
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), "warehouse") {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return nil
	}
	var ref EntityRef
	for _, line := range lines {
		if v, ok := labelValue(line, "warehouse:"); ok {
			ref.Label = v
		}
		if v, ok := labelValue(line, "entry warehouse:"); ok {
			ref.Label = v
		}
		if v, ok := labelValue(line, "code:"); ok {
			ref.Code = v
		}
	}
	if ref.Code == "" {
		ref.Code = ref.Label
	}
	if ref.Code == "" {
		return nil
	}
	if ref.Label == "" {
		ref.Label = ref.Code
	}
	return &ref
}

func ParseSupplier(text string) *EntityRef {
	return parseEntity(text, TagSupplier, "supplier:")
}

func ParseCustomer(text string) *EntityRef {
	return parseEntity(text, TagCustomer, "customer:")
}

func parseEntity(text, tag, label string) *EntityRef {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}
	mentioned := false
	for _, line := range lines {
		lowered := strings.ToLower(line)
		if strings.Contains(lowered, tag) || strings.Contains(lowered, label) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return nil
	}
	var ref EntityRef
	for _, line := range lines {
		if v, ok := labelValue(line, label); ok {
			ref.Label = v
		}
		if v, ok := labelValue(line, "code:"); ok {
			ref.Code = v
		}
	}
	if ref.Code == "" {
		ref.Code = ref.Label
	}
	if ref.Code == "" {
		return nil
	}
	if ref.Label == "" {
		ref.Label = ref.Code
	}
	return &ref
}

// ParseApproval returns the docname carried by a tracking token line
// like "entry-approve:MAT-STE-2024-00001".
func ParseApproval(trackPrefix, text string) string {
	for _, line := range splitLines(text) {
		if strings.HasPrefix(line, trackPrefix+":") {
			return strings.TrimSpace(strings.TrimPrefix(line, trackPrefix+":"))
		}
	}
	return ""
}
