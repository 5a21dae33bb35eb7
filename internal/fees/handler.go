package fees

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stratocard/stratocard/internal/wallet"
)

// Handler exposes fee collection and debt endpoints.
type Handler struct {
	collector *Collector
}

// NewHandler constructs a fees handler.
func NewHandler(collector *Collector) *Handler {
	return &Handler{collector: collector}
}

// Collect runs the fee cascade for a card.
func (h *Handler) Collect(c *fiber.Ctx) error {
	var req CollectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.collector.Collect(c.UserContext(), Input{
		CompanyID:  req.CompanyID,
		CustomerID: req.CustomerID,
		CardID:     req.CardID,
		WalletID:   req.WalletID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Reason:     req.Reason,
	})
	if err != nil {
		if errors.Is(err, ErrCascadeExhausted) {
			return fiber.NewError(http.StatusInternalServerError, "fee collection failed at every tier")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusOK).JSON(CollectResponse{
		TransactionID: result.TransactionID,
		Source:        string(result.Source),
		DebtCreated:   result.DebtCreated,
		DebtID:        result.DebtID,
	})
}

// GetDebt returns a debt with its accrued interest.
func (h *Handler) GetDebt(c *fiber.Ctx) error {
	debt, err := h.collector.Debt(c.UserContext(), c.Params("debtId"))
	if err != nil {
		if errors.Is(err, ErrDebtNotFound) {
			return fiber.NewError(http.StatusNotFound, "debt not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toDebtResponse(debt, h.collector.AccruedInterest(debt)))
}

// ListDebts returns a customer's debts.
func (h *Handler) ListDebts(c *fiber.Ctx) error {
	debts, err := h.collector.DebtsForCustomer(c.UserContext(), c.Params("customerId"))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]DebtResponse, 0, len(debts))
	for _, d := range debts {
		out = append(out, toDebtResponse(d, h.collector.AccruedInterest(d)))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// PayDebt applies a wallet-funded payment to a debt.
func (h *Handler) PayDebt(c *fiber.Ctx) error {
	var req PayDebtRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	debt, err := h.collector.PayDebt(c.UserContext(), c.Params("debtId"), req.WalletID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrDebtNotFound):
			return fiber.NewError(http.StatusNotFound, "debt not found")
		case errors.Is(err, wallet.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(toDebtResponse(debt, h.collector.AccruedInterest(debt)))
}
