package models

import (
	"log"

	"github.com/floradesk/flora_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Organization{}, &TradingPoint{}, &Warehouse{},
		&Nomenclature{}, &BouquetComponent{},
		&Supplier{}, &SupplierNomenclature{},
		&Customer{}, &PromoCode{}, &LoyaltyProgram{},
		&Batch{}, &StockBalance{}, &StockMovement{},
		&Wallet{}, &Transaction{}, &TransactionCategory{}, &PaymentMethod{}, &Debt{},
		&Sale{}, &SaleItem{},
		&Order{}, &OrderItem{}, &OrderStatusHistory{},
		&CashShift{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
