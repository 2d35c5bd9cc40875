package models

// Status enums are stored as their wire tokens. Columns use mysql enum
// types so bad values fail at the database too.

type PurchaseOrderStatus string

const (
	PoStatusDraft             PurchaseOrderStatus = "DRAFT"
	PoStatusApproved          PurchaseOrderStatus = "APPROVED"
	PoStatusSent              PurchaseOrderStatus = "SENT"
	PoStatusPartiallyReceived PurchaseOrderStatus = "PARTIALLY_RECEIVED"
	PoStatusCompleted         PurchaseOrderStatus = "COMPLETED"
	PoStatusClosed            PurchaseOrderStatus = "CLOSED"
	PoStatusCancelled         PurchaseOrderStatus = "CANCELLED"
)

func (s PurchaseOrderStatus) IsValid() bool {
	switch s {
	case PoStatusDraft, PoStatusApproved, PoStatusSent, PoStatusPartiallyReceived,
		PoStatusCompleted, PoStatusClosed, PoStatusCancelled:
		return true
	}
	return false
}

func (s PurchaseOrderStatus) String() string { return string(s) }

type GrnStatus string

const (
	GrnStatusDraft     GrnStatus = "DRAFT"
	GrnStatusPosted    GrnStatus = "POSTED"
	GrnStatusCancelled GrnStatus = "CANCELLED"
)

func (s GrnStatus) IsValid() bool {
	switch s {
	case GrnStatusDraft, GrnStatusPosted, GrnStatusCancelled:
		return true
	}
	return false
}

func (s GrnStatus) String() string { return string(s) }

type BatchStatus string

const (
	BatchStatusActive     BatchStatus = "ACTIVE"
	BatchStatusExpired    BatchStatus = "EXPIRED"
	BatchStatusReturned   BatchStatus = "RETURNED"
	BatchStatusWrittenOff BatchStatus = "WRITTEN_OFF"
	BatchStatusQuarantine BatchStatus = "QUARANTINE"
)

func (s BatchStatus) String() string { return string(s) }

type SupplierInvoiceStatus string

const (
	InvoiceStatusUnpaid    SupplierInvoiceStatus = "UNPAID"
	InvoiceStatusPartial   SupplierInvoiceStatus = "PARTIAL"
	InvoiceStatusPaid      SupplierInvoiceStatus = "PAID"
	InvoiceStatusCancelled SupplierInvoiceStatus = "CANCELLED"
)

func (s SupplierInvoiceStatus) String() string { return string(s) }

type ReturnNoteType string

const (
	ReturnTypeToSupplier   ReturnNoteType = "TO_SUPPLIER"
	ReturnTypeFromCustomer ReturnNoteType = "FROM_CUSTOMER"
	ReturnTypeInternal     ReturnNoteType = "INTERNAL"
)

func (t ReturnNoteType) IsValid() bool {
	switch t {
	case ReturnTypeToSupplier, ReturnTypeFromCustomer, ReturnTypeInternal:
		return true
	}
	return false
}

func (t ReturnNoteType) String() string { return string(t) }

type ReturnNoteStatus string

const (
	ReturnStatusDraft     ReturnNoteStatus = "DRAFT"
	ReturnStatusPosted    ReturnNoteStatus = "POSTED"
	ReturnStatusCancelled ReturnNoteStatus = "CANCELLED"
)

func (s ReturnNoteStatus) String() string { return string(s) }

// StockTxnType encodes what moved the stock; the sign lives on the
// quantity delta itself.
type StockTxnType string

const (
	StockTxnTypeGrn                StockTxnType = "GRN"
	StockTxnTypeDispense           StockTxnType = "DISPENSE"
	StockTxnTypeAdjustment         StockTxnType = "ADJUSTMENT"
	StockTxnTypeReturnToSupplier   StockTxnType = "RETURN_TO_SUPPLIER"
	StockTxnTypeReturnInternal     StockTxnType = "RETURN_INTERNAL"
	StockTxnTypeReturnFromCustomer StockTxnType = "RETURN_FROM_CUSTOMER"
)

func (t StockTxnType) String() string { return string(t) }

// StockRefType links a stock transaction back to its originating document.
type StockRefType string

const (
	StockRefTypeGrn        StockRefType = "GRN"
	StockRefTypeReturn     StockRefType = "RETURN"
	StockRefTypeAdjustment StockRefType = "ADJUSTMENT"
	StockRefTypeDispense   StockRefType = "DISPENSE"
)

func (t StockRefType) String() string { return string(t) }

// Document number series keys; the key doubles as the number prefix.
const (
	SeriesKeyGrn        = "GRN"
	SeriesKeyPo         = "PO"
	SeriesKeyReturn     = "RET"
	SeriesKeyPayment    = "PAY"
	SeriesKeyAdjustment = "ADJ"
	SeriesKeyDispense   = "DSP"
)
