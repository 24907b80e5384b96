package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-booking/cache"
	"github.com/yeremiapane/table-booking/metrics"
	"github.com/yeremiapane/table-booking/middlewares"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/services"
	"github.com/yeremiapane/table-booking/utils"
)

const (
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replay"
)

type ReservationController struct {
	Reservations *services.ReservationService
	// Idempotency is optional; nil disables Idempotency-Key replay.
	Idempotency *cache.IdempotencyStore
}

func NewReservationController(reservations *services.ReservationService, idem *cache.IdempotencyStore) *ReservationController {
	return &ReservationController{Reservations: reservations, Idempotency: idem}
}

type createReservationRequest struct {
	BranchID  uint   `json:"branch_id" binding:"required"`
	PartySize int    `json:"party_size" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Time      string `json:"time" binding:"required"`
	Notes     string `json:"notes"`
	// Staff may book on behalf of a customer.
	CustomerID uint `json:"customer_id"`
}

// CreateReservation -> books a table or joins the waitlist
func (rc *ReservationController) CreateReservation(c *gin.Context) {
	userID, role := middlewares.CurrentUser(c)
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	scope := strconv.FormatUint(uint64(userID), 10)

	// Claim the key before booking so concurrent retries cannot book twice.
	claimed := false
	if rc.Idempotency != nil && key != "" {
		stored, ok, err := rc.Idempotency.Claim(c.Request.Context(), scope, key)
		switch {
		case errors.Is(err, cache.ErrInProgress):
			utils.RespondError(c, http.StatusConflict, err)
			return
		case err != nil:
			utils.ErrorLogger.Errorf("idempotency claim failed: %v", err)
		case ok:
			claimed = true
		default:
			metrics.RecordIdempotencyHit()
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
			return
		}
	}
	// Once a reservation commits the claim is never released; if storing
	// the response fails, the claim simply expires.
	committed := false
	if claimed {
		defer func() {
			if committed {
				return
			}
			if err := rc.Idempotency.Release(context.WithoutCancel(c.Request.Context()), scope, key); err != nil {
				utils.ErrorLogger.Errorf("idempotency release failed: %v", err)
			}
		}()
	}

	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	customerID := userID
	if req.CustomerID != 0 && req.CustomerID != userID {
		if !middlewares.IsStaff(role) {
			utils.RespondError(c, http.StatusForbidden, errors.New("only staff can book for another customer"))
			return
		}
		customerID = req.CustomerID
	}

	res, err := rc.Reservations.CreateReservation(c.Request.Context(), services.CreateReservationInput{
		CustomerID: customerID,
		BranchID:   req.BranchID,
		PartySize:  req.PartySize,
		Slot:       models.Slot{Date: req.Date, Time: req.Time},
		Notes:      req.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	committed = true

	message := "Reservation confirmed"
	if res.Status == models.ReservationPending {
		message = "No table available, added to waitlist"
	}
	body, err := json.Marshal(utils.JSONResponse{Status: true, Message: message, Data: res})
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	if claimed {
		stored := cache.StoredResponse{Status: http.StatusCreated, Body: body}
		if err := rc.Idempotency.Complete(context.WithoutCancel(c.Request.Context()), scope, key, stored); err != nil {
			utils.ErrorLogger.Errorf("idempotency save failed: %v", err)
		}
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

// GetMyReservations -> reservations of the calling customer
func (rc *ReservationController) GetMyReservations(c *gin.Context) {
	userID, _ := middlewares.CurrentUser(c)
	list, err := rc.Reservations.ListCustomerReservations(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "My reservations", list)
}

// GetReservation -> detail, for the owner or staff
func (rc *ReservationController) GetReservation(c *gin.Context) {
	res, ok := rc.loadOwned(c)
	if !ok {
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation detail", res)
}

// CancelReservation -> cancels and offers the slot to the waitlist
func (rc *ReservationController) CancelReservation(c *gin.Context) {
	res, ok := rc.loadOwned(c)
	if !ok {
		return
	}

	if err := rc.Reservations.CancelReservation(c.Request.Context(), res.ID); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation cancelled", nil)
}

func (rc *ReservationController) loadOwned(c *gin.Context) (*models.Reservation, bool) {
	id, err := uintParam(c, "id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return nil, false
	}

	res, err := rc.Reservations.GetReservation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}

	userID, role := middlewares.CurrentUser(c)
	if res.CustomerID != userID && !middlewares.IsStaff(role) {
		utils.RespondError(c, http.StatusForbidden, errors.New("not your reservation"))
		return nil, false
	}
	return res, true
}

// Availability -> previews which table a party would get
func (rc *ReservationController) Availability(c *gin.Context) {
	branchID, err := uintParam(c, "branch_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	partySize, err := strconv.Atoi(c.Query("party_size"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid party_size"))
		return
	}

	table, err := rc.Reservations.FindTable(c.Request.Context(), branchID, partySize,
		models.Slot{Date: c.Query("date"), Time: c.Query("time")})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Availability", gin.H{
		"available": table != nil,
		"table":     table,
	})
}

// GetWaitlist -> pending reservations of a slot in promotion order
func (rc *ReservationController) GetWaitlist(c *gin.Context) {
	branchID, err := uintParam(c, "branch_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	list, err := rc.Reservations.ListWaitlist(c.Request.Context(), branchID,
		models.Slot{Date: c.Query("date"), Time: c.Query("time")})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Waitlist", list)
}

// PromoteWaitlist -> manual promotion attempt for a slot
func (rc *ReservationController) PromoteWaitlist(c *gin.Context) {
	branchID, err := uintParam(c, "branch_id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var body struct {
		Date string `json:"date" binding:"required"`
		Time string `json:"time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	promoted, err := rc.Reservations.PromoteNext(c.Request.Context(), branchID, models.Slot{Date: body.Date, Time: body.Time})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if promoted == nil {
		utils.RespondJSON(c, http.StatusOK, "Nothing promoted", nil)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation promoted", promoted)
}

// SeatReservation -> confirmed party has arrived
func (rc *ReservationController) SeatReservation(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	res, err := rc.Reservations.SeatReservation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation seated", res)
}

// CompleteReservation -> party has left
func (rc *ReservationController) CompleteReservation(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	res, err := rc.Reservations.CompleteReservation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation completed", res)
}
