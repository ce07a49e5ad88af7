package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wardwatch/internal/manager"
)

// PatientHandlers serves the patient directory.
type PatientHandlers struct {
	store *manager.PatientStore
}

func NewPatientHandlers(store *manager.PatientStore) *PatientHandlers {
	return &PatientHandlers{store: store}
}

// List handles GET /patients/.
func (h *PatientHandlers) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.List())
}

// ByRoom handles GET /patients/:room.
func (h *PatientHandlers) ByRoom(c *gin.Context) {
	room := c.Param("room")
	p, ok := h.store.ByRoom(room)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Patient in room " + room + " not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}
