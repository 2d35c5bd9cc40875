package main

import (
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// statusForError maps service error kinds onto HTTP statuses. Unclassified
// errors count as internal and are never echoed to the client.
func statusForError(err error) int {
	switch utils.ErrorKindOf(err) {
	case utils.ErrorKindValidation:
		return http.StatusBadRequest
	case utils.ErrorKindNotFound:
		return http.StatusNotFound
	case utils.ErrorKindConflict, utils.ErrorKindInsufficientStock, utils.ErrorKindOverpayment:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, moduleName string, funcName string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), moduleName, funcName, "request failed", c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": utils.ErrorKindOf(err)})
}

// idParam reads a positive integer path parameter, answering the request
// itself when the value is malformed.
func idParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

func boolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	if err != nil {
		return false
	}
	return v
}

// boolQueryPtr keeps absent and malformed values as nil so filters stay
// tri-state.
func boolQueryPtr(c *gin.Context, name string) *bool {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func dateQuery(c *gin.Context, name string) *time.Time {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func stringQuery(c *gin.Context, name string) *string {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	return &raw
}

func writeXlsx(c *gin.Context, f *excelize.File, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := f.Write(c.Writer); err != nil {
		config.LogError(config.GetLogger(), "httpHelpers.go", "writeXlsx", "stream xlsx", filename, err)
	}
}
