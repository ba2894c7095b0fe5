package domain

import "github.com/shopspring/decimal"

type CredentialStatus string

const (
	CredentialPendingKey    CredentialStatus = "pending_key"
	CredentialPendingSecret CredentialStatus = "pending_secret"
	CredentialActive        CredentialStatus = "active"
)

type Credential struct {
	UserID    int64            `json:"user_id"`
	APIKey    string           `json:"api_key"`
	APISecret string           `json:"api_secret"`
	Status    CredentialStatus `json:"status"`
	UpdatedAt string           `json:"updated_at" format:"date-time"`
}

// Ready reports whether the credential pair can sign gateway requests.
func (c Credential) Ready() bool {
	return c.Status == CredentialActive && c.APIKey != "" && c.APISecret != ""
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type DraftKind string

const (
	KindStock    DraftKind = "stock_entry"
	KindPurchase DraftKind = "purchase_receipt"
	KindDelivery DraftKind = "delivery_note"
	KindConfirm  DraftKind = "confirm"
)

type Stage string

const (
	StageAwaitType      Stage = "await_type"
	StageAwaitItem      Stage = "await_item_message"
	StageAwaitWarehouse Stage = "await_warehouse_message"
	StageAwaitQty       Stage = "await_qty"
	StageSubmitting     Stage = "submitting"

	StagePRSupplier     Stage = "pr_supplier"
	StagePRSupplierNote Stage = "pr_supplier_note"
	StagePRDate         Stage = "pr_date"
	StagePRTime         Stage = "pr_time"
	StagePRPutaway      Stage = "pr_putaway"
	StagePRIsReturn     Stage = "pr_is_return"
	StagePRAcceptedWH   Stage = "pr_accepted_wh"
	StagePRRejectedWH   Stage = "pr_rejected_wh"
	StagePRItemsMenu    Stage = "pr_items_menu"
	StagePRItemQty      Stage = "pr_item_qty"
	StagePRItemRejected Stage = "pr_item_rejected_qty"
	StagePRItemRate     Stage = "pr_item_rate"
	StagePRSubmitting   Stage = "pr_submitting"

	StageDNCustomer   Stage = "dn_customer"
	StageDNDate       Stage = "dn_date"
	StageDNTime       Stage = "dn_time"
	StageDNIsReturn   Stage = "dn_is_return"
	StageDNSourceWH   Stage = "dn_source_wh"
	StageDNItemsMenu  Stage = "dn_items_menu"
	StageDNItemQty    Stage = "dn_item_qty"
	StageDNItemRate   Stage = "dn_item_rate"
	StageDNSubmitting Stage = "dn_submitting"

	StageConfirm Stage = "confirm"
)

// Draft is a tagged union: exactly one variant pointer matching Kind is
// non-nil. Stage values are scoped to the variant's own state graph.
type Draft struct {
	Kind      DraftKind      `json:"kind"`
	Stage     Stage          `json:"stage"`
	UpdatedAt string         `json:"updated_at,omitempty" format:"date-time"`
	Stock     *StockDraft    `json:"stock,omitempty"`
	Purchase  *PurchaseDraft `json:"purchase,omitempty"`
	Delivery  *DeliveryDraft `json:"delivery,omitempty"`
	Confirm   *ConfirmDraft  `json:"confirm,omitempty"`
}

type StockDraft struct {
	MovementType    string          `json:"movement_type"`
	ItemCode        string          `json:"item_code,omitempty"`
	ItemName        string          `json:"item_name,omitempty"`
	UOM             string          `json:"uom,omitempty"`
	SourceWarehouse string          `json:"source_warehouse,omitempty"`
	TargetWarehouse string          `json:"target_warehouse,omitempty"`
	Qty             decimal.Decimal `json:"qty"`
}

type PurchaseDraft struct {
	Supplier          string         `json:"supplier,omitempty"`
	SupplierName      string         `json:"supplier_name,omitempty"`
	SupplierNote      string         `json:"supplier_note,omitempty"`
	PostingDate       string         `json:"posting_date,omitempty"`
	PostingTime       string         `json:"posting_time,omitempty"`
	ApplyPutawayRule  bool           `json:"apply_putaway_rule"`
	IsReturn          bool           `json:"is_return"`
	AcceptedWarehouse string         `json:"accepted_warehouse,omitempty"`
	RejectedWarehouse string         `json:"rejected_warehouse,omitempty"`
	Items             []PurchaseItem `json:"items,omitempty"`
	Pending           *PurchaseItem  `json:"pending,omitempty"`
}

type PurchaseItem struct {
	ItemCode    string          `json:"item_code"`
	ItemName    string          `json:"item_name,omitempty"`
	UOM         string          `json:"uom,omitempty"`
	AcceptedQty decimal.Decimal `json:"accepted_qty"`
	RejectedQty decimal.Decimal `json:"rejected_qty"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

type DeliveryDraft struct {
	Customer        string         `json:"customer,omitempty"`
	CustomerName    string         `json:"customer_name,omitempty"`
	PostingDate     string         `json:"posting_date,omitempty"`
	PostingTime     string         `json:"posting_time,omitempty"`
	IsReturn        bool           `json:"is_return"`
	SourceWarehouse string         `json:"source_warehouse,omitempty"`
	Items           []DeliveryItem `json:"items,omitempty"`
	Pending         *DeliveryItem  `json:"pending,omitempty"`
}

type DeliveryItem struct {
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name,omitempty"`
	UOM      string          `json:"uom,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// ConfirmDraft waits for the user to pick an existing document via the
// inline approve search; Doctype scopes which tracking token is valid.
type ConfirmDraft struct {
	Doctype string `json:"doctype"`
}

type AuditEvent struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	UserID  int64  `json:"user_id"`
	Entity  string `json:"entity,omitempty"`
	Payload string `json:"payload_json,omitempty"`
}
