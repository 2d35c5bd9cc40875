package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/gin-gonic/gin"
)

func createPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "createPurchaseOrderHandler", err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func updatePurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.UpdatePurchaseOrder(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "updatePurchaseOrderHandler", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func getPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		order, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "getPurchaseOrderHandler", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func listPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.PurchaseOrderFilter{
			SupplierId: intQuery(c, "supplier_id"),
			LocationId: intQuery(c, "location_id"),
			Status:     models.PurchaseOrderStatus(c.Query("status")),
			FromDate:   dateQuery(c, "from_date"),
			ToDate:     dateQuery(c, "to_date"),
		}
		orders, err := models.ListPurchaseOrder(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "listPurchaseOrderHandler", err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

type changePoStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	CancelReason string `json:"cancel_reason"`
}

func changePurchaseOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req changePoStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.ChangePurchaseOrderStatus(c.Request.Context(), id, models.PurchaseOrderStatus(req.Status), req.CancelReason)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "changePurchaseOrderStatusHandler", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func createGrnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewGrn
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		grn, err := models.CreateGrn(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "createGrnHandler", err)
			return
		}
		c.JSON(http.StatusCreated, grn)
	}
}

func createGrnFromPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		poId, ok := idParam(c, "poId")
		if !ok {
			return
		}
		grn, err := models.CreateGrnFromPurchaseOrder(c.Request.Context(), poId)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "createGrnFromPurchaseOrderHandler", err)
			return
		}
		c.JSON(http.StatusCreated, grn)
	}
}

func updateGrnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.NewGrn
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		grn, err := models.UpdateGrn(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "updateGrnHandler", err)
			return
		}
		c.JSON(http.StatusOK, grn)
	}
}

func getGrnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		grn, err := models.GetGrn(c.Request.Context(), id)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "getGrnHandler", err)
			return
		}
		c.JSON(http.StatusOK, grn)
	}
}

func listGrnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.GrnFilter{
			SupplierId:      intQuery(c, "supplier_id"),
			LocationId:      intQuery(c, "location_id"),
			PurchaseOrderId: intQuery(c, "purchase_order_id"),
			Status:          models.GrnStatus(c.Query("status")),
			FromDate:        dateQuery(c, "from_date"),
			ToDate:          dateQuery(c, "to_date"),
		}
		grns, err := models.ListGrn(c.Request.Context(), filter)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "listGrnHandler", err)
			return
		}
		c.JSON(http.StatusOK, grns)
	}
}

// postGrnHandler runs the posting pipeline: stock in, item/batch cost
// updates, PO receipt bookkeeping and the supplier invoice, all in one
// transaction.
func postGrnHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.PostGrnInput
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		ctx, span := tracer.Start(c.Request.Context(), "PostGrn")
		defer span.End()

		grn, err := models.PostGrn(ctx, id, &input)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "postGrnHandler", err)
			return
		}
		c.JSON(http.StatusOK, grn)
	}
}

type cancelRequest struct {
	CancelReason string `json:"cancel_reason" binding:"required"`
}

func cancelGrnHandler() gin.HandlerFunc {
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
		grn, err := models.CancelGrn(c.Request.Context(), id, req.CancelReason)
		if err != nil {
			respondError(c, "purchaseHandlers.go", "cancelGrnHandler", err)
			return
		}
		c.JSON(http.StatusOK, grn)
	}
}
