package bot

import (
	"fmt"
	"strconv"
)

// confirmToken is the literal reply that confirms fulfillment.
const confirmToken = "+"

// humanPoints renders 12345 as "12 345".
func humanPoints(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ' ')
		}
		out = append(out, c)
	}
	return string(out)
}

func msgAskDestination(units int) string {
	return fmt.Sprintf(
		"👋 Спасибо за заказ очков Steam!\n\n"+
			"Количество: *%s*\n"+
			"\nПожалуйста, отправьте ссылку на ваш профиль Steam:\n"+
			"`https://steamcommunity.com/id/ваш_id` или `https://steamcommunity.com/profiles/7656119...`",
		humanPoints(units))
}

func msgNoQuantity() string {
	return "⚠️ Не указано количество очков.\n" +
		"Пожалуйста, оформите заказ с выбором количества очков (в поле или количеством штук)."
}

func msgBadQuantity(units, minPoints int) string {
	return fmt.Sprintf(
		"⚠️ Некорректное количество очков: %d.\n"+
			"Минимум — %d и кратно 100 (например: 100, 500, 1000).\n"+
			"Оформите, пожалуйста, заказ заново.",
		units, minPoints)
}

func msgRefundSuffix(autoRefund bool) string {
	if autoRefund {
		return "\n\nДеньги вернутся автоматически."
	}
	return "\n\nАвто-возврат отключён, напишите в чат для возврата."
}

func msgInvalidLink() string {
	return "⚠️ Невалидная ссылка. Пример:\n" +
		"`https://steamcommunity.com/id/gabelogannewell`\n" +
		"или\n" +
		"`https://steamcommunity.com/profiles/7656119...`"
}

func msgConfirmPrompt(link string, units int) string {
	return fmt.Sprintf(
		"✅ Профиль принят!\n\n"+
			"Профиль: *%s*\n"+
			"Очки: *%s*\n"+
			"Если всё верно — напишите `+` для оформления пополнения.\n"+
			"Если нужен другой профиль — отправьте новую ссылку.\n"+
			"Изменить количество очков можно только при оформлении нового заказа.",
		link, humanPoints(units))
}

func msgLinkUpdated(link string, units int) string {
	return fmt.Sprintf(
		"♻️ Ссылка обновлена!\n"+
			"Профиль: *%s*\n"+
			"Очки: *%s*\n"+
			"Если всё верно — напишите `+` для оформления пополнения.",
		link, humanPoints(units))
}

func msgSuccess(link string, units int) string {
	return fmt.Sprintf(
		"🎉 Готово! Пополнение отправлено.\n\n"+
			"Профиль: *%s*\n"+
			"Очки: *%s*\n\n"+
			"Проверьте, пожалуйста, зачисление очков в Steam.\n"+
			"Чтобы завершить заказ — **подтвердите его у себя на FunPay** на странице заказа (кнопка «Подтвердить выполнение»).\n"+
			"Если есть проблема — опишите ситуацию здесь в чате, администратор ответит как можно быстрее.",
		link, humanPoints(units))
}

func msgInProgress() string {
	return "⏳ Пополнение уже оформляется, подождите немного.\n" +
		"Как только всё будет готово — напишем здесь."
}

func msgFailureRefunding(errText string) string {
	return "❌ Не удалось оформить пополнение очков.\n" +
		"Причина: " + errText + "\n\n🔁 Оформляю возврат средств…"
}

func msgRefunded() string {
	return "✅ Средства возвращены. Можно оформить заказ повторно позже."
}

func msgRefundFailed() string {
	return "❌ Не удалось выполнить автоматический возврат. Свяжитесь с админом."
}

func msgFailureManual(errText string) string {
	return "❌ Не удалось оформить пополнение очков.\n" +
		"Причина: " + errText + "\n\n⚠️ Авто-возврат выключен. Напишите в чат для возврата."
}

func msgGenericNotice() string {
	return "ℹ️ Если пополнение уже отправлено — подтвердите заказ у себя на FunPay на странице заказа.\n" +
		"По вопросам — напишите здесь, поможем."
}
