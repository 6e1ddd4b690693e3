package response

import "github.com/gin-gonic/gin"

type APIError struct {
	Code    int                    `json:"code"`
	Name    string                 `json:"name"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{"data": data})
}

func Error(c *gin.Context, status, code int, name, message string) {
	c.JSON(status, gin.H{"error": APIError{Code: code, Name: name, Message: message}})
}

// ErrorDetail is Error with a structured payload, used where the contract
// promises the caller machine-readable state (current row, lock owner).
func ErrorDetail(c *gin.Context, status, code int, name, message string, detail map[string]interface{}) {
	c.JSON(status, gin.H{"error": APIError{Code: code, Name: name, Message: message, Detail: detail}})
}
