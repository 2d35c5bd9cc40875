package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/hims_backend/models"
	"bitbucket.org/mmdatafocus/hims_backend/utils"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// loginHandler exchanges credentials for a bearer token. Wrong username,
// wrong password and disabled account all answer the same way.
func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		user, err := models.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if user.IsActive != nil && !*user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err := utils.ComparePassword(user.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(user.ID, user.Username, user.Role)
		if err != nil {
			respondError(c, "authHandlers.go", "loginHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user": gin.H{
				"id":       user.ID,
				"username": user.Username,
				"name":     user.Name,
				"role":     user.Role,
			},
		})
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, "authHandlers.go", "createUserHandler", err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func resetUserPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req resetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := models.UpdateUserPassword(c.Request.Context(), id, req.Password)
		if err != nil {
			respondError(c, "authHandlers.go", "resetUserPasswordHandler", err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
