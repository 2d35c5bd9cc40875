package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// createDispenseHandler issues stock FEFO-first; the whole request fails
// when any line cannot be covered.
func createDispenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDispense
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "CreateDispense")
		defer span.End()

		dispense, err := models.CreateDispense(ctx, &input)
		if err != nil {
			respondError(c, "stockHandlers.go", "createDispenseHandler", err)
			return
		}
		c.JSON(http.StatusCreated, dispense)
	}
}

func getDispenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		dispense, err := models.GetDispense(c.Request.Context(), id)
		if err != nil {
			respondError(c, "stockHandlers.go", "getDispenseHandler", err)
			return
		}
		c.JSON(http.StatusOK, dispense)
	}
}

func listDispenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.DispenseFilter{
			LocationId: intQuery(c, "location_id"),
			PatientId:  intQuery(c, "patient_id"),
			FromDate:   dateQuery(c, "from_date"),
			ToDate:     dateQuery(c, "to_date"),
		}
		dispenses, err := models.ListDispense(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "stockHandlers.go", "listDispenseHandler", err)
			return
		}
		c.JSON(http.StatusOK, dispenses)
	}
}

func createStockAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockAdjustment
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		adjustment, err := models.CreateStockAdjustment(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "stockHandlers.go", "createStockAdjustmentHandler", err)
			return
		}
		c.JSON(http.StatusCreated, adjustment)
	}
}

func getStockAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		adjustment, err := models.GetStockAdjustment(c.Request.Context(), id)
		if err != nil {
			respondError(c, "stockHandlers.go", "getStockAdjustmentHandler", err)
			return
		}
		c.JSON(http.StatusOK, adjustment)
	}
}

func listStockAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.StockAdjustmentFilter{
			BatchId:    intQuery(c, "batch_id"),
			ItemId:     intQuery(c, "item_id"),
			LocationId: intQuery(c, "location_id"),
			FromDate:   dateQuery(c, "from_date"),
			ToDate:     dateQuery(c, "to_date"),
		}
		adjustments, err := models.ListStockAdjustment(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "stockHandlers.go", "listStockAdjustmentHandler", err)
			return
		}
		c.JSON(http.StatusOK, adjustments)
	}
}

func listItemBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.ItemBatchFilter{
			ItemId:        intQuery(c, "item_id"),
			LocationId:    intQuery(c, "location_id"),
			Status:        models.BatchStatus(c.Query("status")),
			SaleableOnly:  boolQuery(c, "saleable_only"),
			WithStockOnly: boolQuery(c, "with_stock_only"),
			ExpiringOn:    dateQuery(c, "expiring_on"),
		}
		batches, err := models.ListItemBatch(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "stockHandlers.go", "listItemBatchHandler", err)
			return
		}
		c.JSON(http.StatusOK, batches)
	}
}

// previewFefoAllocationHandler answers which batches a quantity would draw
// from, without reserving anything.
func previewFefoAllocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		itemId := intQuery(c, "item_id")
		locationId := intQuery(c, "location_id")
		if itemId <= 0 || locationId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item_id and location_id are required"})
			return
		}
		quantity, err := decimal.NewFromString(c.Query("quantity"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be a number"})
			return
		}
		allocations, err := models.PreviewFefoAllocation(c.Request.Context(), itemId, locationId, quantity)
		if err != nil {
			respondError(c, "stockHandlers.go", "previewFefoAllocationHandler", err)
			return
		}
		c.JSON(http.StatusOK, allocations)
	}
}

func listStockTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.StockTransactionFilter{
			ItemId:     intQuery(c, "item_id"),
			BatchId:    intQuery(c, "batch_id"),
			LocationId: intQuery(c, "location_id"),
			TxnType:    models.StockTxnType(c.Query("txn_type")),
			RefType:    models.StockRefType(c.Query("ref_type")),
			RefId:      intQuery(c, "ref_id"),
			PatientId:  intQuery(c, "patient_id"),
			FromDate:   dateQuery(c, "from_date"),
			ToDate:     dateQuery(c, "to_date"),
			Limit:      intQuery(c, "limit"),
		}
		txns, err := models.ListStockTransactions(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "stockHandlers.go", "listStockTransactionHandler", err)
			return
		}
		c.JSON(http.StatusOK, txns)
	}
}

func createReturnNoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewReturnNote
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		note, err := models.CreateReturnNote(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "stockHandlers.go", "createReturnNoteHandler", err)
			return
		}
		c.JSON(http.StatusCreated, note)
	}
}

func getReturnNoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		note, err := models.GetReturnNote(c.Request.Context(), id)
		if err != nil {
			respondError(c, "stockHandlers.go", "getReturnNoteHandler", err)
			return
		}
		c.JSON(http.StatusOK, note)
	}
}

func listReturnNoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.ReturnNoteFilter{
			ReturnType: models.ReturnNoteType(c.Query("return_type")),
			LocationId: intQuery(c, "location_id"),
			SupplierId: intQuery(c, "supplier_id"),
			Status:     models.ReturnNoteStatus(c.Query("status")),
			FromDate:   dateQuery(c, "from_date"),
			ToDate:     dateQuery(c, "to_date"),
		}
		notes, err := models.ListReturnNote(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "stockHandlers.go", "listReturnNoteHandler", err)
			return
		}
		c.JSON(http.StatusOK, notes)
	}
}

func postReturnNoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "PostReturnNote")
		defer span.End()

		note, err := models.PostReturnNote(ctx, id)
		if err != nil {
			respondError(c, "stockHandlers.go", "postReturnNoteHandler", err)
			return
		}
		c.JSON(http.StatusOK, note)
	}
}

func cancelReturnNoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req cancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		note, err := models.CancelReturnNote(c.Request.Context(), id, req.CancelReason)
		if err != nil {
			respondError(c, "stockHandlers.go", "cancelReturnNoteHandler", err)
			return
		}
		c.JSON(http.StatusOK, note)
	}
}
