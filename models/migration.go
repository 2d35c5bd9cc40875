package models

import (
	"log"

	"bitbucket.org/mmdatafocus/hims_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&Item{}, &Supplier{}, &Location{},
		&NumberSeries{},
		&ItemBatch{}, &StockTransaction{},
		&PurchaseOrder{}, &PurchaseOrderItem{},
		&Grn{}, &GrnItem{},
		&SupplierInvoice{}, &SupplierPayment{}, &PaymentAllocation{},
		&ReturnNote{}, &ReturnNoteItem{},
		&Dispense{}, &DispenseItem{},
		&StockAdjustment{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
