package telegram

import (
	"fmt"
	"strconv"

	"github.com/go-telegram/bot/models"

	"fleet_service_bot/internal/domain"
)

// Main menu button labels.
const (
	btnCars     = "🚗 Cars"
	btnServices = "🔧 Services"
	btnAdmin    = "⚙️ Admin"
	btnMyJobs   = "🛠 My jobs"
)

// Callback data values. Prefixed entries carry colon-separated arguments.
const (
	cbCarAdd         = "car:add"
	cbCarList        = "car:list"
	cbServiceNew     = "service:new"
	cbServicePending = "service:pending"
	cbServiceHistory = "service:history"
	cbGrantAdmin     = "admin:grant:admin"
	cbGrantMechanic  = "admin:grant:mechanic"

	cbAssignPrefix  = "service:assign:"
	cbApprovePrefix = "service:approve:"
	cbRejectPrefix  = "service:reject:"
	cbFinishPrefix  = "service:finish:"
)

// assignNone marks the "no mechanic" choice in an assign callback.
const assignNone = "none"

func mainKeyboard(role string) *models.ReplyKeyboardMarkup {
	var rows [][]models.KeyboardButton

	switch role {
	case domain.RoleAdmin:
		rows = [][]models.KeyboardButton{
			{{Text: btnCars}, {Text: btnServices}},
			{{Text: btnAdmin}},
		}
	case domain.RoleMechanic:
		rows = [][]models.KeyboardButton{
			{{Text: btnServices}},
			{{Text: btnMyJobs}},
		}
	default:
		rows = [][]models.KeyboardButton{
			{{Text: btnServices}},
		}
	}

	return &models.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}
}

func carsKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "➕ Add car", CallbackData: cbCarAdd}},
			{{Text: "📄 List cars", CallbackData: cbCarList}},
		},
	}
}

func servicesKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "➕ New ticket", CallbackData: cbServiceNew}},
			{{Text: "⏳ Pending", CallbackData: cbServicePending}},
			{{Text: "📋 History", CallbackData: cbServiceHistory}},
		},
	}
}

func adminKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "➕ Add admin", CallbackData: cbGrantAdmin}},
			{{Text: "➕ Add mechanic", CallbackData: cbGrantMechanic}},
		},
	}
}

func mechanicsKeyboard(mechanics []domain.User, ticketID int64) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(mechanics)+1)

	for _, m := range mechanics {
		label := m.FullName
		if label == "" {
			label = strconv.FormatInt(m.TgID, 10)
		}
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         label,
			CallbackData: fmt.Sprintf("%s%d:%d", cbAssignPrefix, ticketID, m.TgID),
		}})
	}

	rows = append(rows, []models.InlineKeyboardButton{{
		Text:         "Without mechanic",
		CallbackData: fmt.Sprintf("%s%d:%s", cbAssignPrefix, ticketID, assignNone),
	}})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func reviewKeyboard(ticketID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Approve", CallbackData: fmt.Sprintf("%s%d", cbApprovePrefix, ticketID)},
				{Text: "❌ Reject", CallbackData: fmt.Sprintf("%s%d", cbRejectPrefix, ticketID)},
			},
		},
	}
}

func finishKeyboard(ticketID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Finish", CallbackData: fmt.Sprintf("%s%d", cbFinishPrefix, ticketID)}},
		},
	}
}
