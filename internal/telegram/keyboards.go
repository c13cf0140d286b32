package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediarise/rubybot/internal/catalog"
)

const (
	callbackBuyPrefix   = "buy_"
	callbackCheckPrefix = "check_"
	callbackModelPrefix = "select_model_"
)

func modelKeyboard(models []catalog.Model, selected string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(models))
	for _, m := range models {
		label := m.DisplayName
		if label == "" {
			label = m.Name
		}
		label = fmt.Sprintf("%s — %d 💎", label, m.PriceRubies)
		if m.Name == selected {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackModelPrefix+m.Name),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func buyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("10 💎", callbackBuyPrefix+"10"),
			tgbotapi.NewInlineKeyboardButtonData("50 💎", callbackBuyPrefix+"50"),
			tgbotapi.NewInlineKeyboardButtonData("100 💎", callbackBuyPrefix+"100"),
		),
	)
}

func paymentKeyboard(confirmationURL, paymentID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Оплатить", confirmationURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Проверить оплату", callbackCheckPrefix+paymentID),
		),
	)
}
