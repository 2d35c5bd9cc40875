package models_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/models"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/shopspring/decimal"
)

func TestDispenseAndReturnsDriveTheBatchLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "hims_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Apex Pharma"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	ward, err := models.CreateLocation(ctx, &models.NewLocation{Name: "Ward Pharmacy", Code: "WARD"})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	amoxicillin, err := models.CreateItem(ctx, &models.NewItem{Name: "Amoxicillin 250mg", Unit: "capsule"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	// Two receipts, the earlier expiry cheaper so the FEFO order and the
	// per-batch pricing are distinguishable in the dispense lines.
	base := time.Now().UTC().Truncate(24 * time.Hour)
	receiveBatch := func(invoiceNo, batchNo string, expiry time.Time, qty int64, cost, mrp, invoiceAmount string) {
		t.Helper()
		grn, err := models.CreateGrn(ctx, &models.NewGrn{
			SupplierId:            supplier.ID,
			LocationId:            ward.ID,
			GrnDate:               base,
			SupplierInvoiceNo:     invoiceNo,
			SupplierInvoiceAmount: dec(invoiceAmount),
			Items: []models.NewGrnItem{
				{
					ItemId:     amoxicillin.ID,
					BatchNo:    batchNo,
					ExpiryDate: &expiry,
					Quantity:   decimal.NewFromInt(qty),
					UnitCost:   dec(cost),
					Mrp:        dec(mrp),
				},
			},
		})
		if err != nil {
			t.Fatalf("CreateGrn %s: %v", batchNo, err)
		}
		if _, err := models.PostGrn(ctx, grn.ID, nil); err != nil {
			t.Fatalf("PostGrn %s: %v", batchNo, err)
		}
	}
	receiveBatch("AP-001", "AMX-A", base.AddDate(0, 6, 0), 10, "4.00", "6.00", "40.00")
	receiveBatch("AP-002", "AMX-B", base.AddDate(1, 6, 0), 10, "5.00", "7.50", "50.00")

	batches, err := models.ListItemBatch(ctx, models.ItemBatchFilter{ItemId: amoxicillin.ID, LocationId: ward.ID})
	if err != nil {
		t.Fatalf("ListItemBatch: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches got %d", len(batches))
	}
	batchA, batchB := batches[0], batches[1]
	if batchA.BatchNo != "AMX-A" || batchB.BatchNo != "AMX-B" {
		t.Fatalf("expected AMX-A before AMX-B got %s, %s", batchA.BatchNo, batchB.BatchNo)
	}

	// 1) Dispensing 12 drains the near batch at its mrp, then the far one.
	dispense, err := models.CreateDispense(ctx, &models.NewDispense{
		LocationId:   ward.ID,
		PatientId:    501,
		VisitId:      9001,
		DoctorId:     77,
		DispenseDate: base,
		Items: []models.NewDispenseItem{
			{ItemId: amoxicillin.ID, Quantity: decimal.NewFromInt(12)},
		},
	})
	if err != nil {
		t.Fatalf("CreateDispense: %v", err)
	}
	wantNumber := "DSP" + base.Format("20060102") + "0001"
	if dispense.DispenseNumber != wantNumber {
		t.Fatalf("expected dispense number %s got %s", wantNumber, dispense.DispenseNumber)
	}
	if !dispense.TotalAmount.Equal(dec("75.00")) {
		t.Fatalf("expected total 75.00 (10 x 6.00 + 2 x 7.50) got %s", dispense.TotalAmount)
	}
	if len(dispense.Items) != 2 {
		t.Fatalf("expected 2 issue slices got %d", len(dispense.Items))
	}
	issued := map[string]models.DispenseItem{}
	for _, slice := range dispense.Items {
		issued[slice.BatchNo] = slice
	}
	if slice := issued["AMX-A"]; !slice.Quantity.Equal(dec("10")) || !slice.Amount.Equal(dec("60.00")) {
		t.Fatalf("expected 10 from AMX-A for 60.00 got %s for %s", slice.Quantity, slice.Amount)
	}
	if slice := issued["AMX-B"]; !slice.Quantity.Equal(dec("2")) || !slice.Amount.Equal(dec("15.00")) {
		t.Fatalf("expected 2 from AMX-B for 15.00 got %s for %s", slice.Quantity, slice.Amount)
	}

	assertBalance := func(batchId int, want string) *models.ItemBatch {
		t.Helper()
		batch, err := utils.FetchModel[models.ItemBatch](ctx, batchId)
		if err != nil {
			t.Fatalf("fetch batch %d: %v", batchId, err)
		}
		if !batch.CurrentQty.Equal(dec(want)) {
			t.Fatalf("expected batch %s at %s got %s", batch.BatchNo, want, batch.CurrentQty)
		}
		return batch
	}
	assertBalance(batchA.ID, "0")
	assertBalance(batchB.ID, "8")

	// Every slice leaves a ledger row tagged with the patient.
	txns, err := models.ListStockTransactions(ctx, models.StockTransactionFilter{
		RefType: models.StockRefTypeDispense, RefId: dispense.ID,
	})
	if err != nil {
		t.Fatalf("ListStockTransactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 dispense movements got %d", len(txns))
	}
	moved := map[int]decimal.Decimal{}
	for _, txn := range txns {
		if txn.TxnType != models.StockTxnTypeDispense || txn.PatientId != 501 {
			t.Fatalf("expected DISPENSE movement for patient 501 got %+v", txn)
		}
		moved[txn.BatchId] = txn.Quantity
	}
	if !moved[batchA.ID].Equal(dec("-10")) || !moved[batchB.ID].Equal(dec("-2")) {
		t.Fatalf("expected movements -10/-2 got %s/%s", moved[batchA.ID], moved[batchB.ID])
	}

	// 2) A request the shelf cannot cover fails whole, leaving no document
	// and no movement behind.
	if _, err := models.CreateDispense(ctx, &models.NewDispense{
		LocationId:   ward.ID,
		PatientId:    501,
		DispenseDate: base,
		Items: []models.NewDispenseItem{
			{ItemId: amoxicillin.ID, Quantity: decimal.NewFromInt(50)},
		},
	}); !utils.IsErrorKind(err, utils.ErrorKindInsufficientStock) {
		t.Fatalf("expected insufficient stock error got %v", err)
	}
	dispenses, err := models.ListDispense(ctx, models.DispenseFilter{LocationId: ward.ID})
	if err != nil {
		t.Fatalf("ListDispense: %v", err)
	}
	if len(dispenses) != 1 {
		t.Fatalf("expected the failed dispense rolled back, got %d documents", len(dispenses))
	}
	assertBalance(batchA.ID, "0")
	assertBalance(batchB.ID, "8")

	// 3) Returning the rest of AMX-B to the supplier retires the batch.
	toSupplier, err := models.CreateReturnNote(ctx, &models.NewReturnNote{
		ReturnType: models.ReturnTypeToSupplier,
		LocationId: ward.ID,
		SupplierId: supplier.ID,
		ReturnDate: base,
		Reason:     "short dated stock",
		Items: []models.NewReturnNoteItem{
			{ItemId: amoxicillin.ID, BatchNo: "AMX-B", Quantity: decimal.NewFromInt(8)},
		},
	})
	if err != nil {
		t.Fatalf("CreateReturnNote (to supplier): %v", err)
	}
	wantReturnNumber := "RET" + base.Format("20060102") + "0001"
	if toSupplier.ReturnNumber != wantReturnNumber {
		t.Fatalf("expected return number %s got %s", wantReturnNumber, toSupplier.ReturnNumber)
	}
	toSupplier, err = models.PostReturnNote(ctx, toSupplier.ID)
	if err != nil {
		t.Fatalf("PostReturnNote (to supplier): %v", err)
	}
	if toSupplier.Status != models.ReturnStatusPosted {
		t.Fatalf("expected POSTED got %s", toSupplier.Status)
	}
	retired := assertBalance(batchB.ID, "0")
	if retired.Status != models.BatchStatusReturned {
		t.Fatalf("expected RETURNED got %s", retired.Status)
	}
	if retired.IsActive == nil || *retired.IsActive || retired.IsSaleable == nil || *retired.IsSaleable {
		t.Fatalf("expected the drained batch deactivated, got active=%v saleable=%v", retired.IsActive, retired.IsSaleable)
	}
	txns, err = models.ListStockTransactions(ctx, models.StockTransactionFilter{
		RefType: models.StockRefTypeReturn, RefId: toSupplier.ID,
	})
	if err != nil {
		t.Fatalf("ListStockTransactions (return): %v", err)
	}
	if len(txns) != 1 || txns[0].TxnType != models.StockTxnTypeReturnToSupplier || !txns[0].Quantity.Equal(dec("-8")) {
		t.Fatalf("expected one RETURN_TO_SUPPLIER movement of -8 got %+v", txns)
	}

	// 4) A customer return puts unexpired stock back on the shelf, even
	// into a batch dispensing had emptied.
	fromCustomer, err := models.CreateReturnNote(ctx, &models.NewReturnNote{
		ReturnType: models.ReturnTypeFromCustomer,
		LocationId: ward.ID,
		PatientId:  501,
		ReturnDate: base,
		Items: []models.NewReturnNoteItem{
			{ItemId: amoxicillin.ID, BatchId: batchA.ID, Quantity: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("CreateReturnNote (from customer): %v", err)
	}
	if _, err := models.PostReturnNote(ctx, fromCustomer.ID); err != nil {
		t.Fatalf("PostReturnNote (from customer): %v", err)
	}
	restocked := assertBalance(batchA.ID, "3")
	if restocked.Status != models.BatchStatusActive {
		t.Fatalf("expected ACTIVE got %s", restocked.Status)
	}
	if restocked.IsActive == nil || !*restocked.IsActive || restocked.IsSaleable == nil || !*restocked.IsSaleable {
		t.Fatalf("expected the batch saleable again, got active=%v saleable=%v", restocked.IsActive, restocked.IsSaleable)
	}
	txns, err = models.ListStockTransactions(ctx, models.StockTransactionFilter{
		RefType: models.StockRefTypeReturn, RefId: fromCustomer.ID,
	})
	if err != nil {
		t.Fatalf("ListStockTransactions (customer return): %v", err)
	}
	if len(txns) != 1 || txns[0].TxnType != models.StockTxnTypeReturnFromCustomer ||
		!txns[0].Quantity.Equal(dec("3")) || txns[0].PatientId != 501 {
		t.Fatalf("expected one RETURN_FROM_CUSTOMER movement of 3 for patient 501 got %+v", txns)
	}

	// 5) Writing those units off parks the unexpired batch in quarantine;
	// emptying it deactivates it too.
	writeOff, err := models.CreateReturnNote(ctx, &models.NewReturnNote{
		ReturnType: models.ReturnTypeInternal,
		LocationId: ward.ID,
		ReturnDate: base,
		Reason:     "water damage",
		Items: []models.NewReturnNoteItem{
			{ItemId: amoxicillin.ID, BatchId: batchA.ID, Quantity: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("CreateReturnNote (write off): %v", err)
	}
	if _, err := models.PostReturnNote(ctx, writeOff.ID); err != nil {
		t.Fatalf("PostReturnNote (write off): %v", err)
	}
	quarantined := assertBalance(batchA.ID, "0")
	if quarantined.Status != models.BatchStatusQuarantine {
		t.Fatalf("expected QUARANTINE for an unexpired write off got %s", quarantined.Status)
	}
	if quarantined.IsSaleable == nil || *quarantined.IsSaleable || quarantined.IsActive == nil || *quarantined.IsActive {
		t.Fatalf("expected the emptied batch off the shelf, got active=%v saleable=%v", quarantined.IsActive, quarantined.IsSaleable)
	}

	// 6) A second physical batch under the same number forces callers to
	// name the batch id; the draft survives the failed post.
	receiveBatch("AP-003", "AMX-A", base.AddDate(1, 0, 0), 5, "4.50", "6.50", "22.50")
	ambiguous, err := models.CreateReturnNote(ctx, &models.NewReturnNote{
		ReturnType: models.ReturnTypeToSupplier,
		LocationId: ward.ID,
		SupplierId: supplier.ID,
		ReturnDate: base,
		Items: []models.NewReturnNoteItem{
			{ItemId: amoxicillin.ID, BatchNo: "AMX-A", Quantity: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreateReturnNote (ambiguous): %v", err)
	}
	if _, err := models.PostReturnNote(ctx, ambiguous.ID); !utils.IsErrorKind(err, utils.ErrorKindValidation) {
		t.Fatalf("expected validation error for an ambiguous batch number got %v", err)
	}
	ambiguous, err = models.GetReturnNote(ctx, ambiguous.ID)
	if err != nil {
		t.Fatalf("GetReturnNote: %v", err)
	}
	if ambiguous.Status != models.ReturnStatusDraft {
		t.Fatalf("expected the failed post to leave the draft untouched got %s", ambiguous.Status)
	}
}
