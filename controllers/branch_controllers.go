package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/services"
	"github.com/yeremiapane/table-booking/utils"
)

type BranchController struct {
	Branches *services.BranchService
}

func NewBranchController(branches *services.BranchService) *BranchController {
	return &BranchController{Branches: branches}
}

// GetAllBranches
func (bc *BranchController) GetAllBranches(c *gin.Context) {
	branches, err := bc.Branches.ListBranches(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All branches", branches)
}

// GetBranchByID
func (bc *BranchController) GetBranchByID(c *gin.Context) {
	id, err := uintParam(c, "branch_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	branch, err := bc.Branches.GetBranch(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Branch detail", branch)
}

// CreateBranch
func (bc *BranchController) CreateBranch(c *gin.Context) {
	var body struct {
		Name     string `json:"name" binding:"required"`
		Slug     string `json:"slug" binding:"required"`
		Address  string `json:"address"`
		Timezone string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	branch := models.Branch{
		Name:     body.Name,
		Slug:     body.Slug,
		Address:  body.Address,
		Timezone: body.Timezone,
	}
	if err := bc.Branches.CreateBranch(c.Request.Context(), &branch); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.InfoLogger.Printf("New branch created: %s (%s)", branch.Name, branch.Slug)
	utils.RespondJSON(c, http.StatusCreated, "Branch created", branch)
}
