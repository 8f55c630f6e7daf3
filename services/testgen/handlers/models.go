// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/AleutianAI/testforge/services/testgen/registry"
	"github.com/gin-gonic/gin"
)

// ModelsHandler serves the model catalog.
type ModelsHandler struct {
	registry *registry.Registry
}

// NewModelsHandler creates a ModelsHandler.
func NewModelsHandler(reg *registry.Registry) *ModelsHandler {
	if reg == nil {
		panic("NewModelsHandler: registry must not be nil")
	}
	return &ModelsHandler{registry: reg}
}

// modelInfo is the wire shape of one catalog entry. Internal limits like
// MaxCodeLength stay server-side.
type modelInfo struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	MaxTokens    int    `json:"maxTokens"`
	ContextLimit int    `json:"contextLimit"`
}

// HandleListModels handles GET /v1/models.
//
// Returns the configured model catalog in registration order so clients
// can populate a model picker without hardcoding identifiers.
func (h *ModelsHandler) HandleListModels(c *gin.Context) {
	configs := h.registry.List()

	models := make([]modelInfo, 0, len(configs))
	for _, cfg := range configs {
		models = append(models, modelInfo{
			ID:           cfg.ID,
			Provider:     string(cfg.Provider),
			MaxTokens:    cfg.MaxTokens,
			ContextLimit: cfg.ContextLimit,
		})
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}
