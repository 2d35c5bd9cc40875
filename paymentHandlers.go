package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/gin-gonic/gin"
)

func getSupplierInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		invoice, err := models.GetSupplierInvoice(c.Request.Context(), id)
		if err != nil {
			respondError(c, "paymentHandlers.go", "getSupplierInvoiceHandler", err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func listSupplierInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.SupplierInvoiceFilter{
			SupplierId:  intQuery(c, "supplier_id"),
			Status:      models.SupplierInvoiceStatus(c.Query("status")),
			OverdueOnly: boolQuery(c, "overdue_only"),
			FromDate:    dateQuery(c, "from_date"),
			ToDate:      dateQuery(c, "to_date"),
		}
		invoices, err := models.ListSupplierInvoice(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "paymentHandlers.go", "listSupplierInvoiceHandler", err)
			return
		}
		c.JSON(http.StatusOK, invoices)
	}
}

func cancelSupplierInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		invoice, err := models.CancelSupplierInvoice(c.Request.Context(), id)
		if err != nil {
			respondError(c, "paymentHandlers.go", "cancelSupplierInvoiceHandler", err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

// supplierOutstandingHandler summarizes open invoice exposure per supplier.
func supplierOutstandingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.GetSupplierOutstanding(c.Request.Context(), intQuery(c, "supplier_id"))
		if err != nil {
			respondError(c, "paymentHandlers.go", "supplierOutstandingHandler", err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func createSupplierPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSupplierPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "CreateSupplierPayment")
		defer span.End()

		payment, err := models.CreateSupplierPayment(ctx, &input)
		if err != nil {
			respondError(c, "paymentHandlers.go", "createSupplierPaymentHandler", err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	}
}

func getSupplierPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		payment, err := models.GetSupplierPayment(c.Request.Context(), id)
		if err != nil {
			respondError(c, "paymentHandlers.go", "getSupplierPaymentHandler", err)
			return
		}
		c.JSON(http.StatusOK, payment)
	}
}

func listSupplierPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.SupplierPaymentFilter{
			SupplierId:    intQuery(c, "supplier_id"),
			PaymentNumber: c.Query("payment_number"),
			FromDate:      dateQuery(c, "from_date"),
			ToDate:        dateQuery(c, "to_date"),
		}
		payments, err := models.ListSupplierPayment(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "paymentHandlers.go", "listSupplierPaymentHandler", err)
			return
		}
		c.JSON(http.StatusOK, payments)
	}
}

type allocatePaymentRequest struct {
	Allocations []models.PaymentAllocationInput `json:"allocations" binding:"required,dive"`
}

func allocatePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req allocatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		payment, err := models.AllocatePaymentToInvoices(c.Request.Context(), id, req.Allocations)
		if err != nil {
			respondError(c, "paymentHandlers.go", "allocatePaymentHandler", err)
			return
		}
		c.JSON(http.StatusOK, payment)
	}
}

func autoAllocatePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		payment, err := models.AutoAllocateSupplierPayment(c.Request.Context(), id)
		if err != nil {
			respondError(c, "paymentHandlers.go", "autoAllocatePaymentHandler", err)
			return
		}
		c.JSON(http.StatusOK, payment)
	}
}
