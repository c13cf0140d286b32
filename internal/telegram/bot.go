package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mediarise/rubybot/internal/catalog"
	"github.com/mediarise/rubybot/internal/config"
	"github.com/mediarise/rubybot/internal/service"
)

const (
	imageToImageTag = "[Image-to-Image]"
	multiImageTag   = "[Multi-Image]"
)

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	audit      *slog.Logger
	users      *service.UserService
	generation *service.GenerationService
	payments   *service.PaymentService
	transfers  *service.TransferService
	feedback   *service.FeedbackService
	catalog    *catalog.Catalog
	state      *StateManager
	albums     *Aggregator
	httpClient *http.Client
}

func NewBot(
	cfg config.Config,
	api *tgbotapi.BotAPI,
	log *slog.Logger,
	audit *slog.Logger,
	users *service.UserService,
	generation *service.GenerationService,
	payments *service.PaymentService,
	transfers *service.TransferService,
	feedback *service.FeedbackService,
	cat *catalog.Catalog,
) *Bot {
	b := &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		audit:      audit,
		users:      users,
		generation: generation,
		payments:   payments,
		transfers:  transfers,
		feedback:   feedback,
		catalog:    cat,
		state:      NewStateManager(),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	b.albums = NewAggregator(cfg.MediaGroupWindow, b.handleAlbumFlush)
	return b
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "username", b.api.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// SendText delivers a plain message, used by the admin broadcast as well.
func (b *Bot) SendText(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.ensureUser(ctx, msg)
	if err != nil {
		b.log.Error("ensure user", "error", err)
		return
	}
	b.auditMessage(msg)

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	b.handleText(ctx, msg.Chat.ID, user.TelegramID, user.Username, text)
}

// handleText routes a free-text message by the pending await. The await is
// popped before handling, so a failed handler leaves no stale flag behind.
func (b *Bot) handleText(ctx context.Context, chatID, userID int64, username, text string) {
	await := b.state.Take(userID)
	switch await.Kind {
	case AwaitMultiImagePrompt:
		if len(await.Images) == 0 {
			b.sendText(chatID, "Изображения не найдены. Пришлите альбом ещё раз.")
			return
		}
		b.runGeneration(ctx, chatID, userID, multiImageTag+" "+text, await.Images)
	case AwaitSingleImagePrompt:
		if len(await.Image) == 0 {
			b.sendText(chatID, "Изображение не найдено. Пришлите фото ещё раз.")
			return
		}
		b.runGeneration(ctx, chatID, userID, imageToImageTag+" "+text, [][]byte{await.Image})
	case AwaitFeedback:
		b.handleFeedbackText(chatID, userID, username, text)
	case AwaitQuantity:
		b.handleQuantityText(ctx, chatID, userID, text)
	default:
		b.runGeneration(ctx, chatID, userID, text, nil)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		b.state.Clear(userID)
		b.sendText(chatID, fmt.Sprintf(
			"Привет, %s! 💎\n\nЯ генерирую изображения по описанию. Просто напишите, что нарисовать, или пришлите фото с подписью, чтобы изменить его.\n\nЗа регистрацию вам начислено %d рубинов. Одна генерация стоит от %d рубинов.\n\nКоманды: /help",
			msg.From.FirstName, b.cfg.StartingRubies, b.defaultPrice(),
		))
	case "help":
		b.sendText(chatID, helpText)
	case "profile":
		b.handleProfile(ctx, chatID, userID, msg.From)
	case "generate":
		b.state.Clear(userID)
		b.sendText(chatID, "Опишите, что нарисовать. Можно прислать фото с подписью или альбом для генерации по образцу.")
	case "models":
		b.handleModels(chatID, userID)
	case "buy":
		b.handleBuy(chatID, userID)
	case "send":
		b.handleSend(ctx, msg)
	case "feedback":
		b.state.Set(userID, Await{Kind: AwaitFeedback})
		b.sendText(chatID, "Напишите ваш отзыв одним сообщением.")
	case "history":
		b.handleHistory(ctx, chatID, userID)
	default:
		b.sendText(chatID, "Неизвестная команда. Список команд: /help")
	}
}

const helpText = "Команды:\n" +
	"/profile — баланс и профиль\n" +
	"/generate — сгенерировать изображение\n" +
	"/models — выбрать модель\n" +
	"/buy — купить рубины\n" +
	"/send @username количество — перевести рубины\n" +
	"/history — история переводов\n" +
	"/feedback — оставить отзыв\n\n" +
	"Просто напишите текст, чтобы сгенерировать изображение. Фото с подписью — изменить фото. Альбом — объединить несколько фото."

func (b *Bot) handleProfile(ctx context.Context, chatID, userID int64, from *tgbotapi.User) {
	rubies, err := b.users.Rubies(ctx, userID)
	if err != nil {
		b.log.Error("read balance", "user_id", userID, "error", err)
		b.sendText(chatID, "Не удалось получить баланс, попробуйте позже.")
		return
	}
	name := from.UserName
	if name == "" {
		name = from.FirstName
	}
	model := b.selectedModelLabel(userID)
	b.sendText(chatID, fmt.Sprintf("Профиль %s\n\n💎 Рубины: %d\n🎨 Модель: %s", name, rubies, model))
}

func (b *Bot) handleModels(chatID, userID int64) {
	enabled := b.catalog.Enabled()
	if len(enabled) == 0 {
		b.sendText(chatID, "Нет доступных моделей.")
		return
	}
	selected := b.state.SelectedModel(userID)
	if selected == "" {
		if def := b.catalog.Default(); def != nil {
			selected = def.Name
		}
	}
	reply := tgbotapi.NewMessage(chatID, "Выберите модель генерации:")
	reply.ReplyMarkup = modelKeyboard(enabled, selected)
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send model keyboard", "error", err)
	}
}

func (b *Bot) handleBuy(chatID, userID int64) {
	if b.payments == nil {
		b.sendText(chatID, "Покупка рубинов временно недоступна.")
		return
	}
	b.state.Set(userID, Await{Kind: AwaitQuantity})
	reply := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Сколько рубинов купить? Выберите вариант или отправьте число (1–%d).\nЦена: %s ₽ за рубин.",
		b.cfg.MaxPurchaseRubies, b.cfg.RubyPrice.StringFixed(2),
	))
	reply.ReplyMarkup = buyKeyboard()
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send buy keyboard", "error", err)
	}
}

// handleQuantityText interprets a message while a purchase quantity is
// expected. Text that is not an integer at all is reinterpreted as a
// generation prompt; an integer out of range is rejected outright.
func (b *Bot) handleQuantityText(ctx context.Context, chatID, userID int64, text string) {
	qty, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		b.runGeneration(ctx, chatID, userID, text, nil)
		return
	}
	if qty <= 0 || qty > b.cfg.MaxPurchaseRubies {
		b.sendText(chatID, fmt.Sprintf("Укажите число от 1 до %d.", b.cfg.MaxPurchaseRubies))
		return
	}
	b.initiatePurchase(ctx, chatID, userID, qty)
}

func (b *Bot) initiatePurchase(ctx context.Context, chatID, userID int64, qty int) {
	if b.payments == nil {
		b.sendText(chatID, "Покупка рубинов временно недоступна.")
		return
	}
	initiated, err := b.payments.Initiate(ctx, userID, qty)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuantity) {
			b.sendText(chatID, fmt.Sprintf("Укажите число от 1 до %d.", b.cfg.MaxPurchaseRubies))
			return
		}
		b.log.Error("initiate payment", "user_id", userID, "error", err)
		b.sendText(chatID, "Не удалось создать платёж, попробуйте позже.")
		return
	}
	reply := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"Счёт на %d 💎 (%s ₽).\nОплатите по кнопке ниже, затем нажмите «Проверить оплату».",
		initiated.Rubies, initiated.Amount.StringFixed(2),
	))
	reply.ReplyMarkup = paymentKeyboard(initiated.ConfirmationURL, initiated.PaymentID)
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send payment message", "error", err)
	}
}

func (b *Bot) handleSend(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		b.sendText(chatID, "Формат: /send @username количество")
		return
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 {
		b.sendText(chatID, "Количество должно быть положительным числом.")
		return
	}

	recipient, err := b.transfers.Send(ctx, msg.From.ID, args[0], amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidQuantity):
			b.sendText(chatID, "Количество должно быть положительным числом.")
		case errors.Is(err, service.ErrInsufficientRubies):
			b.sendText(chatID, "Недостаточно рубинов для перевода. Баланс: /profile")
		case errors.Is(err, service.ErrRecipientNotFound):
			b.sendText(chatID, "Получатель не найден. Он должен хотя бы раз написать боту.")
		case errors.Is(err, service.ErrSelfTransfer):
			b.sendText(chatID, "Нельзя перевести рубины самому себе.")
		default:
			b.log.Error("transfer", "from", msg.From.ID, "error", err)
			b.sendText(chatID, "Не удалось выполнить перевод, попробуйте позже.")
		}
		return
	}

	senderBalance, err := b.users.Rubies(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("read sender balance after transfer", "error", err)
	}
	b.sendText(chatID, fmt.Sprintf("Перевод выполнен! @%s получил %d 💎.\nВаш баланс: %d 💎", recipient.Username, amount, senderBalance))

	// Recipient notification is best-effort: the transfer stands even if
	// this message cannot be delivered.
	sender := msg.From.UserName
	if sender == "" {
		sender = msg.From.FirstName
	}
	recipientBalance, err := b.users.Rubies(ctx, recipient.TelegramID)
	if err != nil {
		b.log.Error("read recipient balance after transfer", "error", err)
	}
	if err := b.SendText(recipient.TelegramID, fmt.Sprintf("Вам перевели %d 💎 от %s! Ваш баланс: %d 💎", amount, sender, recipientBalance)); err != nil {
		b.log.Warn("notify transfer recipient", "to", recipient.TelegramID, "error", err)
	}
}

func (b *Bot) handleHistory(ctx context.Context, chatID, userID int64) {
	entries, err := b.transfers.History(ctx, userID, 10)
	if err != nil {
		b.log.Error("transfer history", "user_id", userID, "error", err)
		b.sendText(chatID, "Не удалось получить историю, попробуйте позже.")
		return
	}
	if len(entries) == 0 {
		b.sendText(chatID, "Переводов пока нет.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Последние переводы:\n")
	for _, e := range entries {
		name := e.CounterpartUsername
		if name == "" {
			name = e.CounterpartFirstName
		}
		if e.Outgoing(userID) {
			fmt.Fprintf(&sb, "➖ %d 💎 → @%s (%s)\n", e.Amount, name, e.CreatedAt.Format("02.01.2006"))
		} else {
			fmt.Fprintf(&sb, "➕ %d 💎 ← @%s (%s)\n", e.Amount, name, e.CreatedAt.Format("02.01.2006"))
		}
	}
	b.sendText(chatID, sb.String())
}

func (b *Bot) handleFeedbackText(chatID, userID int64, username, text string) {
	if err := b.feedback.Record(userID, username, text); err != nil {
		b.log.Error("record feedback", "user_id", userID, "error", err)
		b.sendText(chatID, "Не удалось сохранить отзыв, попробуйте позже.")
		return
	}
	b.sendText(chatID, "Спасибо за отзыв! 💎")
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	photo := msg.Photo[len(msg.Photo)-1]

	data, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		b.log.Error("download photo", "user_id", userID, "error", err)
		b.sendText(chatID, "Не удалось загрузить фото, попробуйте снова.")
		return
	}

	caption := strings.TrimSpace(msg.Caption)

	if msg.MediaGroupID != "" {
		b.albums.Add(msg.MediaGroupID, userID, chatID, data, caption)
		return
	}

	if caption != "" {
		b.runGeneration(ctx, chatID, userID, imageToImageTag+" "+caption, [][]byte{data})
		return
	}
	b.state.Set(userID, Await{Kind: AwaitSingleImagePrompt, Image: data})
	b.sendText(chatID, "Фото получено. Напишите, что с ним сделать.")
}

// handleAlbumFlush fires once per media group, after the debounce window.
func (b *Bot) handleAlbumFlush(flush AlbumFlush) {
	ctx := context.Background()
	if flush.Caption != "" {
		b.runGeneration(ctx, flush.ChatID, flush.UserID, multiImageTag+" "+flush.Caption, flush.Images)
		return
	}
	b.state.Set(flush.UserID, Await{Kind: AwaitMultiImagePrompt, Images: flush.Images})
	b.sendText(flush.ChatID, fmt.Sprintf("Получено %d фото. Напишите, что с ними сделать.", len(flush.Images)))
}

func (b *Bot) runGeneration(ctx context.Context, chatID, userID int64, prompt string, images [][]byte) {
	modelName := b.state.SelectedModel(userID)
	b.sendText(chatID, "Генерация началась, это может занять до минуты... 🎨")

	result, err := b.generation.Generate(ctx, userID, prompt, modelName, images)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientRubies):
			cost := b.defaultPrice()
			if c, ok := b.generation.Price(modelName); ok {
				cost = c
			}
			b.sendText(chatID, fmt.Sprintf("Недостаточно рубинов: нужно %d 💎. Пополните баланс: /buy", cost))
		default:
			b.sendText(chatID, "Не удалось сгенерировать изображение, попробуйте позже.")
		}
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "generation.png",
		Bytes: result.Data,
	})
	photo.Caption = fmt.Sprintf("Готово! Списано %d 💎, осталось %d 💎.", result.Cost, result.Remaining)
	if _, err := b.api.Send(photo); err != nil {
		b.log.Error("send generated image", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	data := cb.Data

	switch {
	case strings.HasPrefix(data, callbackModelPrefix):
		name := strings.TrimPrefix(data, callbackModelPrefix)
		model := b.catalog.ByName(name)
		if model == nil || !model.Enabled {
			b.answerCallback(cb.ID, "Модель недоступна")
			return
		}
		b.state.SelectModel(userID, name)
		b.answerCallback(cb.ID, "Модель выбрана")
		b.sendText(chatID, fmt.Sprintf("Модель: %s. Цена генерации: %d 💎.", displayName(model), model.PriceRubies))

	case strings.HasPrefix(data, callbackBuyPrefix):
		qty, err := strconv.Atoi(strings.TrimPrefix(data, callbackBuyPrefix))
		if err != nil || qty <= 0 {
			b.answerCallback(cb.ID, "Неверный вариант")
			return
		}
		b.state.Clear(userID)
		b.answerCallback(cb.ID, "")
		b.initiatePurchase(ctx, chatID, userID, qty)

	case strings.HasPrefix(data, callbackCheckPrefix):
		b.handleCheckPayment(ctx, cb, chatID, userID, strings.TrimPrefix(data, callbackCheckPrefix))

	default:
		b.answerCallback(cb.ID, "Неизвестный выбор")
	}
}

func (b *Bot) handleCheckPayment(ctx context.Context, cb *tgbotapi.CallbackQuery, chatID, userID int64, paymentID string) {
	if b.payments == nil {
		b.answerCallback(cb.ID, "Платежи недоступны")
		return
	}
	payment, err := b.payments.Confirm(ctx, paymentID)
	switch {
	case err == nil:
		b.answerCallback(cb.ID, "Оплата получена")
		balance, berr := b.users.Rubies(ctx, payment.UserID)
		if berr != nil {
			b.log.Error("read balance after payment", "error", berr)
		}
		b.sendText(chatID, fmt.Sprintf("Оплата получена! Начислено %d 💎. Баланс: %d 💎.", payment.Rubies, balance))
	case errors.Is(err, service.ErrAlreadyProcessed):
		b.answerCallback(cb.ID, "Уже начислено")
		b.sendText(chatID, "Рубины по этому платежу уже начислены.")
	case errors.Is(err, service.ErrPaymentPending):
		b.answerCallback(cb.ID, "Платёж не оплачен")
		b.sendText(chatID, "Платёж ещё не оплачен. Оплатите и нажмите «Проверить оплату» снова.")
	case errors.Is(err, service.ErrPaymentNotFound):
		b.answerCallback(cb.ID, "Платёж не найден")
	default:
		b.log.Error("confirm payment", "payment_id", paymentID, "user_id", userID, "error", err)
		b.answerCallback(cb.ID, "Ошибка, попробуйте позже")
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("callback ack", "error", err)
	}
}

func (b *Bot) ensureUser(ctx context.Context, msg *tgbotapi.Message) (*userIdentity, error) {
	from := msg.From
	if from == nil {
		return nil, fmt.Errorf("message without sender")
	}
	user, err := b.users.Ensure(ctx, from.ID, from.UserName, from.FirstName)
	if err != nil {
		return nil, err
	}
	return &userIdentity{TelegramID: user.TelegramID, Username: user.Username}, nil
}

type userIdentity struct {
	TelegramID int64
	Username   string
}

func (b *Bot) auditMessage(msg *tgbotapi.Message) {
	if b.audit == nil {
		return
	}
	kind := "text"
	switch {
	case msg.IsCommand():
		kind = "command"
	case len(msg.Photo) > 0:
		kind = "photo"
	}
	b.audit.Info("incoming",
		"user_id", msg.From.ID,
		"username", msg.From.UserName,
		"kind", kind,
		"media_group", msg.MediaGroupID,
		"text", msg.Text,
	)
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (b *Bot) defaultPrice() int {
	if cost, ok := b.generation.Price(""); ok {
		return cost
	}
	return 1
}

func (b *Bot) selectedModelLabel(userID int64) string {
	name := b.state.SelectedModel(userID)
	var model *catalog.Model
	if name != "" {
		model = b.catalog.ByName(name)
	}
	if model == nil {
		model = b.catalog.Default()
	}
	if model == nil {
		return "не выбрана"
	}
	return displayName(model)
}

func displayName(m *catalog.Model) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

func (b *Bot) sendText(chatID int64, text string) {
	if err := b.SendText(chatID, text); err != nil {
		b.log.Error("send text", "chat_id", chatID, "error", err)
	}
}
