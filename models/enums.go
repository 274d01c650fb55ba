package models

type MovementType string

const (
	MovementTypeReceipt    MovementType = "receipt"
	MovementTypeWriteOff   MovementType = "write_off"
	MovementTypeTransfer   MovementType = "transfer"
	MovementTypeSale       MovementType = "sale"
	MovementTypeReturn     MovementType = "return"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeAssembly   MovementType = "assembly"
)

type WriteOffReason string

const (
	WriteOffReasonDamaged     WriteOffReason = "damaged"
	WriteOffReasonExpired     WriteOffReason = "expired"
	WriteOffReasonLost        WriteOffReason = "lost"
	WriteOffReasonDisassembly WriteOffReason = "disassembly"
	WriteOffReasonCorrection  WriteOffReason = "correction"
	WriteOffReasonOther       WriteOffReason = "other"
)

type NomenclatureType string

const (
	NomenclatureTypeProduct NomenclatureType = "product"
	NomenclatureTypeBouquet NomenclatureType = "bouquet"
	NomenclatureTypeService NomenclatureType = "service"
)

type WalletType string

const (
	WalletTypeCash WalletType = "cash"
	WalletTypeBank WalletType = "bank"
	WalletTypeCard WalletType = "card"
)

type TransactionType string

const (
	TransactionTypeIncome          TransactionType = "income"
	TransactionTypeExpense         TransactionType = "expense"
	TransactionTypeTransfer        TransactionType = "transfer"
	TransactionTypeSalary          TransactionType = "salary"
	TransactionTypePersonalExpense TransactionType = "personal_expense"
	TransactionTypeSupplierPayment TransactionType = "supplier_payment"
)

type SaleStatus string

const (
	SaleStatusOpen      SaleStatus = "open"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInAssembly OrderStatus = "in_assembly"
	OrderStatusAssembled  OrderStatus = "assembled"
	OrderStatusOnDelivery OrderStatus = "on_delivery"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type ShiftStatus string

const (
	ShiftStatusOpen   ShiftStatus = "open"
	ShiftStatusClosed ShiftStatus = "closed"
)
