package erp

import (
	"context"
	"fmt"
)

const (
	DoctypeStockEntry      = "Stock Entry"
	DoctypePurchaseReceipt = "Purchase Receipt"
	DoctypeDeliveryNote    = "Delivery Note"
)

const (
	DocstatusDraft     = 0
	DocstatusSubmitted = 1
	DocstatusCancelled = 2
)

type Item struct {
	Name         string  `json:"name"`
	ItemCode     string  `json:"item_code"`
	ItemName     string  `json:"item_name"`
	ItemGroup    string  `json:"item_group"`
	StockUOM     string  `json:"stock_uom"`
	Description  string  `json:"description"`
	StandardRate float64 `json:"standard_rate"`
}

type Warehouse struct {
	Name          string `json:"name"`
	WarehouseName string `json:"warehouse_name"`
}

type Supplier struct {
	Name          string `json:"name"`
	SupplierName  string `json:"supplier_name"`
	SupplierGroup string `json:"supplier_group"`
}

type Customer struct {
	Name          string `json:"name"`
	CustomerName  string `json:"customer_name"`
	CustomerGroup string `json:"customer_group"`
}

type StockEntry struct {
	Name               string  `json:"name"`
	Purpose            string  `json:"purpose"`
	StockEntryType     string  `json:"stock_entry_type"`
	PostingDate        string  `json:"posting_date"`
	PostingTime        string  `json:"posting_time"`
	FromWarehouse      string  `json:"from_warehouse"`
	ToWarehouse        string  `json:"to_warehouse"`
	TotalOutgoingValue float64 `json:"total_outgoing_value"`
	TotalIncomingValue float64 `json:"total_incoming_value"`
	Docstatus          int     `json:"docstatus"`
}

type PurchaseReceipt struct {
	Name         string  `json:"name"`
	Supplier     string  `json:"supplier"`
	SupplierName string  `json:"supplier_name"`
	PostingDate  string  `json:"posting_date"`
	PostingTime  string  `json:"posting_time"`
	SetWarehouse string  `json:"set_warehouse"`
	GrandTotal   float64 `json:"grand_total"`
	Docstatus    int     `json:"docstatus"`
}

type DeliveryNote struct {
	Name         string  `json:"name"`
	Customer     string  `json:"customer"`
	CustomerName string  `json:"customer_name"`
	PostingDate  string  `json:"posting_date"`
	PostingTime  string  `json:"posting_time"`
	SetWarehouse string  `json:"set_warehouse"`
	GrandTotal   float64 `json:"grand_total"`
	Docstatus    int     `json:"docstatus"`
}

func (g *Gateway) SearchItems(ctx context.Context, creds Credentials, query string, limit int) ([]Item, error) {
	q := listQuery{
		Doctype: "Item",
		Fields:  []string{"name", "item_code", "item_name", "item_group", "stock_uom", "description", "standard_rate"},
		OrderBy: "item_name asc",
		Limit:   limit,
	}
	if query != "" {
		q.Filter = [3]string{"item_name", "like", "%" + query + "%"}
	}
	var items []Item
	if err := g.list(ctx, creds, q, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (g *Gateway) ItemDetail(ctx context.Context, creds Credentials, name string) (Item, error) {
	var item Item
	err := g.get(ctx, creds, g.resourceURL("Item", name), nil, &item)
	return item, err
}

func (g *Gateway) SearchWarehouses(ctx context.Context, creds Credentials, query string, limit int) ([]Warehouse, error) {
	q := listQuery{
		Doctype: "Warehouse",
		Fields:  []string{"name", "warehouse_name"},
		OrderBy: "warehouse_name asc",
		Limit:   limit,
	}
	if query != "" {
		q.Filter = [3]string{"warehouse_name", "like", "%" + query + "%"}
	}
	var warehouses []Warehouse
	if err := g.list(ctx, creds, q, &warehouses); err != nil {
		return nil, err
	}
	return warehouses, nil
}

func (g *Gateway) SearchSuppliers(ctx context.Context, creds Credentials, query string, limit int) ([]Supplier, error) {
	q := listQuery{
		Doctype: "Supplier",
		Fields:  []string{"name", "supplier_name", "supplier_group"},
		OrderBy: "supplier_name asc",
		Limit:   limit,
	}
	if query != "" {
		q.Filter = [3]string{"supplier_name", "like", "%" + query + "%"}
	}
	var suppliers []Supplier
	if err := g.list(ctx, creds, q, &suppliers); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (g *Gateway) SearchCustomers(ctx context.Context, creds Credentials, query string, limit int) ([]Customer, error) {
	q := listQuery{
		Doctype: "Customer",
		Fields:  []string{"name", "customer_name", "customer_group"},
		OrderBy: "customer_name asc",
		Limit:   limit,
	}
	if query != "" {
		q.Filter = [3]string{"customer_name", "like", "%" + query + "%"}
	}
	var customers []Customer
	if err := g.list(ctx, creds, q, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (g *Gateway) ListStockEntries(ctx context.Context, creds Credentials, query string, limit int) ([]StockEntry, error) {
	q := listQuery{
		Doctype: DoctypeStockEntry,
		Fields: []string{
			"name", "purpose", "stock_entry_type", "posting_date", "posting_time",
			"from_warehouse", "to_warehouse", "total_outgoing_value", "total_incoming_value", "docstatus",
		},
		OrderBy: "posting_date desc",
		Limit:   limit,
	}
	if query != "" {
		q.Filter = [3]string{"name", "like", "%" + query + "%"}
	}
	var entries []StockEntry
	if err := g.list(ctx, creds, q, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (g *Gateway) StockEntryDetail(ctx context.Context, creds Credentials, docname string) (StockEntry, error) {
	var entry StockEntry
	err := g.get(ctx, creds, g.resourceURL(DoctypeStockEntry, docname), nil, &entry)
	return entry, err
}

func (g *Gateway) ListPurchaseReceipts(ctx context.Context, creds Credentials, query string, limit int) ([]PurchaseReceipt, error) {
	q := listQuery{
		Doctype: DoctypePurchaseReceipt,
		Fields: []string{
			"name", "supplier", "supplier_name", "posting_date", "posting_time",
			"set_warehouse", "grand_total", "docstatus",
		},
		OrderBy: "posting_date desc",
		Limit:   limit,
	}
	if query != "" {
		q.Filter = [3]string{"name", "like", "%" + query + "%"}
	}
	var receipts []PurchaseReceipt
	if err := g.list(ctx, creds, q, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

func (g *Gateway) PurchaseReceiptDetail(ctx context.Context, creds Credentials, docname string) (PurchaseReceipt, error) {
	var receipt PurchaseReceipt
	err := g.get(ctx, creds, g.resourceURL(DoctypePurchaseReceipt, docname), nil, &receipt)
	return receipt, err
}

func (g *Gateway) ListDeliveryNotes(ctx context.Context, creds Credentials, query string, limit int) ([]DeliveryNote, error) {
	q := listQuery{
		Doctype: DoctypeDeliveryNote,
		Fields: []string{
			"name", "customer", "customer_name", "posting_date", "posting_time",
			"set_warehouse", "grand_total", "docstatus",
		},
		OrderBy: "posting_date desc",
		Limit:   limit,
	}
	if query != "" {
		q.Filter = [3]string{"name", "like", "%" + query + "%"}
	}
	var notes []DeliveryNote
	if err := g.list(ctx, creds, q, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (g *Gateway) DeliveryNoteDetail(ctx context.Context, creds Credentials, docname string) (DeliveryNote, error) {
	var note DeliveryNote
	err := g.get(ctx, creds, g.resourceURL(DoctypeDeliveryNote, docname), nil, &note)
	return note, err
}

type StockEntryItemInput struct {
	ItemCode        string  `json:"item_code"`
	ItemName        string  `json:"item_name,omitempty"`
	Qty             float64 `json:"qty"`
	UOM             string  `json:"uom,omitempty"`
	StockUOM        string  `json:"stock_uom,omitempty"`
	SourceWarehouse string  `json:"s_warehouse,omitempty"`
	TargetWarehouse string  `json:"t_warehouse,omitempty"`
}

type StockEntryInput struct {
	Company        string                `json:"company"`
	StockEntryType string                `json:"stock_entry_type"`
	NamingSeries   string                `json:"naming_series,omitempty"`
	FromWarehouse  string                `json:"from_warehouse,omitempty"`
	ToWarehouse    string                `json:"to_warehouse,omitempty"`
	Items          []StockEntryItemInput `json:"items"`
}

type PurchaseReceiptItemInput struct {
	ItemCode          string  `json:"item_code"`
	ItemName          string  `json:"item_name,omitempty"`
	Qty               float64 `json:"qty"`
	ReceivedQty       float64 `json:"received_qty"`
	AcceptedQty       float64 `json:"accepted_qty"`
	RejectedQty       float64 `json:"rejected_qty"`
	Warehouse         string  `json:"warehouse"`
	RejectedWarehouse string  `json:"rejected_warehouse,omitempty"`
	UOM               string  `json:"uom,omitempty"`
	Rate              float64 `json:"rate"`
	Amount            float64 `json:"amount"`
}

type PurchaseReceiptInput struct {
	Supplier             string                     `json:"supplier"`
	PostingDate          string                     `json:"posting_date,omitempty"`
	PostingTime          string                     `json:"posting_time,omitempty"`
	SupplierDeliveryNote string                     `json:"supplier_delivery_note,omitempty"`
	ApplyPutawayRule     int                        `json:"apply_putaway_rule"`
	IsReturn             int                        `json:"is_return"`
	SetWarehouse         string                     `json:"set_warehouse"`
	Company              string                     `json:"company"`
	NamingSeries         string                     `json:"naming_series,omitempty"`
	Items                []PurchaseReceiptItemInput `json:"items"`
}

type DeliveryNoteItemInput struct {
	ItemCode  string  `json:"item_code"`
	ItemName  string  `json:"item_name,omitempty"`
	Qty       float64 `json:"qty"`
	UOM       string  `json:"uom,omitempty"`
	Rate      float64 `json:"rate"`
	Amount    float64 `json:"amount"`
	Warehouse string  `json:"warehouse"`
}

type DeliveryNoteInput struct {
	Customer     string                  `json:"customer"`
	PostingDate  string                  `json:"posting_date,omitempty"`
	PostingTime  string                  `json:"posting_time,omitempty"`
	Company      string                  `json:"company"`
	SetWarehouse string                  `json:"set_warehouse"`
	IsReturn     int                     `json:"is_return"`
	NamingSeries string                  `json:"naming_series,omitempty"`
	Items        []DeliveryNoteItemInput `json:"items"`
}

type createdDoc struct {
	Name string `json:"name"`
}

func (g *Gateway) createDoc(ctx context.Context, creds Credentials, doctype string, payload any) (string, error) {
	var doc createdDoc
	if err := g.postJSON(ctx, creds, g.resourceURL(doctype, ""), payload, &doc); err != nil {
		return "", err
	}
	if doc.Name == "" {
		return "", fmt.Errorf("%s created but response carried no name", doctype)
	}
	return doc.Name, nil
}

// CreateStockEntry creates a draft Stock Entry and returns its docname.
// An empty Company falls back to the gateway's configured company.
func (g *Gateway) CreateStockEntry(ctx context.Context, creds Credentials, input StockEntryInput) (string, error) {
	if input.Company == "" {
		input.Company = g.Company
	}
	return g.createDoc(ctx, creds, DoctypeStockEntry, input)
}

func (g *Gateway) CreatePurchaseReceipt(ctx context.Context, creds Credentials, input PurchaseReceiptInput) (string, error) {
	if input.Company == "" {
		input.Company = g.Company
	}
	return g.createDoc(ctx, creds, DoctypePurchaseReceipt, input)
}

func (g *Gateway) CreateDeliveryNote(ctx context.Context, creds Credentials, input DeliveryNoteInput) (string, error) {
	if input.Company == "" {
		input.Company = g.Company
	}
	return g.createDoc(ctx, creds, DoctypeDeliveryNote, input)
}
