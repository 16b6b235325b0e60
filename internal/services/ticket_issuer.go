package services

import (
	"fmt"
	"strconv"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/elpekaan/eventgram-api/utils"
	"github.com/google/uuid"
)

const maxCodeAttempts = 10

// CodeGenerator produces candidate ticket codes.
type CodeGenerator func() (string, error)

func defaultCodeGenerator() (string, error) {
	return utils.GenerateTicketCode(utils.TicketCodeLength)
}

// TicketIssuer materializes tickets for completed orders and rotates their codes.
type TicketIssuer struct {
	clock    Clock
	generate CodeGenerator
}

func NewTicketIssuer(clock Clock, generate CodeGenerator) *TicketIssuer {
	if generate == nil {
		generate = defaultCodeGenerator
	}
	return &TicketIssuer{clock: clock, generate: generate}
}

// Issue inserts order.Quantity active tickets owned by the buyer.
func (i *TicketIssuer) Issue(tx *store.Tx, order *models.Order) ([]*models.Ticket, error) {
	now := models.At(i.clock.Now())
	tickets := make([]*models.Ticket, 0, order.Quantity)

	for range order.Quantity {
		code, err := i.uniqueCode(tx)
		if err != nil {
			return nil, err
		}

		t := &models.Ticket{
			ID:           uuid.NewString(),
			Code:         code,
			OrderID:      order.ID,
			EventID:      order.EventID,
			TicketTypeID: order.TicketTypeID,
			OwnerID:      order.UserID,
			Status:       models.TicketActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertTicket(t); err != nil {
			return nil, fmt.Errorf("issue ticket for order %s: %w", order.ID, err)
		}
		tickets = append(tickets, t)
	}

	return tickets, nil
}

// RegenerateCode gives the ticket a fresh code so any previously shared QR stops working.
func (i *TicketIssuer) RegenerateCode(tx *store.Tx, t *models.Ticket) error {
	code, err := i.uniqueCode(tx)
	if err != nil {
		return err
	}

	now := models.At(i.clock.Now())
	t.Code = code
	t.CodeRegeneratedAt = now
	t.UpdatedAt = now
	return tx.SaveTicket(t)
}

func (i *TicketIssuer) uniqueCode(tx *store.Tx) (string, error) {
	for range maxCodeAttempts {
		code, err := i.generate()
		if err != nil {
			return "", fmt.Errorf("generate ticket code: %w", err)
		}

		taken, err := tx.TicketCodeExists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", status.ErrCodeGenerationExhausted.WithMeta("attempts", strconv.Itoa(maxCodeAttempts))
}
