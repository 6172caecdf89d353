package telegram

import (
	"fmt"

	"fleet_service_bot/internal/domain"
	"fleet_service_bot/internal/ticket"
)

func renderCar(c domain.Car) string {
	return fmt.Sprintf("#%d | %s %d | VIN %s | plate %s | %d km | %s",
		c.ID, c.Model, c.Year, c.VIN, c.Plate, c.Mileage, c.FuelType)
}

func renderOpenTicket(v ticket.View) string {
	return fmt.Sprintf("#%d | %s | %s\n%s",
		v.Ticket.ID, v.Car.Plate, v.Ticket.DesiredAt, v.Ticket.Description)
}

func renderHistoryTicket(v ticket.View) string {
	comments := ""
	if v.Ticket.Comments != nil {
		comments = *v.Ticket.Comments
	}

	cost := 0.0
	if v.Ticket.CostNet != nil {
		cost = *v.Ticket.CostNet
	}

	return fmt.Sprintf("#%d | %s\n%s\nCost: %.2f",
		v.Ticket.ID, v.Car.Plate, comments, cost)
}
