package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"github.com/gin-gonic/gin"
)

type toggleActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func createItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := models.CreateItem(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "masterHandlers.go", "createItemHandler", err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func updateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.NewItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := models.UpdateItem(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, "masterHandlers.go", "updateItemHandler", err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func getItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		item, err := models.GetItem(c.Request.Context(), id)
		if err != nil {
			respondError(c, "masterHandlers.go", "getItemHandler", err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func listItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := models.ListItem(c.Request.Context(), stringQuery(c, "name"), boolQueryPtr(c, "is_active"))
		if err != nil {
			respondError(c, "masterHandlers.go", "listItemHandler", err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func toggleItemActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := models.ToggleActiveItem(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondError(c, "masterHandlers.go", "toggleItemActiveHandler", err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// importItemsHandler bulk-loads the item master from an uploaded workbook.
func importItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
			return
		}
		defer file.Close()

		imported, err := models.ImportItemsFromXlsx(c.Request.Context(), file)
		if err != nil {
			respondError(c, "masterHandlers.go", "importItemsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"imported": imported})
	}
}

func createSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		supplier, err := models.CreateSupplier(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "masterHandlers.go", "createSupplierHandler", err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	}
}

func updateSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		supplier, err := models.UpdateSupplier(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, "masterHandlers.go", "updateSupplierHandler", err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	}
}

func getSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		supplier, err := models.GetSupplier(c.Request.Context(), id)
		if err != nil {
			respondError(c, "masterHandlers.go", "getSupplierHandler", err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	}
}

func listSupplierHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		suppliers, err := models.ListSupplier(c.Request.Context(), stringQuery(c, "name"), boolQueryPtr(c, "is_active"))
		if err != nil {
			respondError(c, "masterHandlers.go", "listSupplierHandler", err)
			return
		}
		c.JSON(http.StatusOK, suppliers)
	}
}

func toggleSupplierActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		supplier, err := models.ToggleActiveSupplier(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondError(c, "masterHandlers.go", "toggleSupplierActiveHandler", err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	}
}

func createLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewLocation
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		location, err := models.CreateLocation(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "masterHandlers.go", "createLocationHandler", err)
			return
		}
		c.JSON(http.StatusCreated, location)
	}
}

func updateLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.NewLocation
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		location, err := models.UpdateLocation(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, "masterHandlers.go", "updateLocationHandler", err)
			return
		}
		c.JSON(http.StatusOK, location)
	}
}

func getLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		location, err := models.GetLocation(c.Request.Context(), id)
		if err != nil {
			respondError(c, "masterHandlers.go", "getLocationHandler", err)
			return
		}
		c.JSON(http.StatusOK, location)
	}
}

func listLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locations, err := models.ListLocation(c.Request.Context(), boolQueryPtr(c, "is_active"))
		if err != nil {
			respondError(c, "masterHandlers.go", "listLocationHandler", err)
			return
		}
		c.JSON(http.StatusOK, locations)
	}
}
