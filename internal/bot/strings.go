package bot

import (
	"fmt"

	"github.com/spigell/peermatch/internal/profile"
)

var catalog = map[string]map[string]string{
	"en": {
		"lang_select":                "Please choose your language:",
		"lang_changed":               "Language set to English",
		"welcome":                    "👋 *Welcome!* I help students find peers to study, build and network with.",
		"start_wizard":               "📝 Create profile",
		"find_matches":               "🔍 Find matches",
		"view_rules":                 "📜 Rules",
		"help":                       "❓ Help",
		"help_text":                  "📜 *Commands:*\n/start - Main menu\n/profile - Create profile\n/myprofile - View profile\n/edit - Edit profile\n/matches - Find peers\n/stats - Statistics\n/language - Change language\n/rules - Read rules\n/cancel - Cancel the current step",
		"rules_text":                 "📜 *Rules*\n\n1. Be respectful\n2. No spam\n3. Students only\n\nBreaking the rules may lead to a permanent block.",
		"use_menu":                   "I did not get that. Use /help to see what I can do.",
		"profile_exists":             "You already have a profile. Use /myprofile to view it or /edit to change it.",
		"no_profile":                 "You do not have a profile yet. Use /profile to create one.",
		"no_embedding":               "Your profile is saved but not ready for matching yet. Try again later or re-save a field with /edit.",
		"ask_university":             "🎓 Which university or organization are you from?",
		"ask_year":                   "Got it, *%s*! What year are you in?",
		"ask_skills":                 "*%s*, noted. List your skills separated by commas (e.g. Python, Design).",
		"ask_interests":              "What are you interested in? Separate items by commas.",
		"ask_goals":                  "Finally, what are your goals here?",
		"enter_uni":                  "Enter your university or organization:",
		"enter_year":                 "Choose your year:",
		"enter_skills":               "Enter your skills separated by commas:",
		"enter_interests":            "Enter your interests separated by commas:",
		"enter_goals":                "Enter your goals:",
		"invalid_input":              "Please send a non-empty answer.",
		"no_session":                 "There is nothing to continue. Use /profile to start.",
		"commit_busy":                "Still saving your profile, one moment please.",
		"cancel":                     "❌ Cancel",
		"wizard_cancelled":           "Cancelled. Nothing was saved.",
		"nothing_to_cancel":          "There is nothing to cancel.",
		"profile_updated":            "✅ Profile saved!",
		"profile_saved_no_embedding": "✅ Profile saved, but matching is temporarily unavailable for it. We will retry later.",
		"my_profile_title":           "👤 *Your profile*",
		"uni":                        "🎓 University:",
		"year":                       "📅 Year:",
		"skills":                     "🛠 Skills:",
		"interests":                  "💡 Interests:",
		"goals":                      "🎯 Goals:",
		"last_updated":               "🕒 Last updated: %s",
		"edit_profile":               "✏️ Edit profile",
		"edit_menu_title":            "✏️ *What would you like to change?*",
		"edit_uni":                   "University",
		"edit_year":                  "Year",
		"edit_skills":                "Skills",
		"edit_interests":             "Interests",
		"edit_goals":                 "Goals",
		"restart_wizard":             "🔄 Fill in again",
		"delete_profile":             "🗑 Delete profile",
		"done":                       "Done",
		"confirm_delete":             "⚠️ *Delete your profile?* This cannot be undone.",
		"yes_delete":                 "Yes, delete",
		"no_keep":                    "No, keep it",
		"profile_deleted":            "Your profile has been deleted.",
		"rate_limited":               "⏳ You can search for matches again in %d min %d sec.",
		"no_matches":                 "No matches yet. Check back when more people join!",
		"matches_found":              "🎉 Found *%d* matches:",
		"match_item":                 "*Match #%d:* %s (similarity %.2f)\n💡 _Reason:_ %s.",
		"report_user":                "🚩 Report",
		"user_reported":              "Thanks, the user has been reported.",
		"report_self":                "You cannot report yourself.",
		"user_not_found":             "That user no longer exists.",
		"report_hint":                "To report a user, press the 🚩 Report button under their match card. Our team will review the report shortly.",
		"stats_text":                 "📊 *Statistics*\n\n👥 Total users: %d\n🔥 Top skill: %s",
		"unknown_action":             "This button is no longer active.",
	},
	"ru": {
		"lang_select":                "Пожалуйста, выберите язык:",
		"lang_changed":               "Язык изменён на русский",
		"welcome":                    "👋 *Добро пожаловать!* Я помогаю студентам находить единомышленников для учёбы, проектов и нетворкинга.",
		"start_wizard":               "📝 Создать профиль",
		"find_matches":               "🔍 Найти пары",
		"view_rules":                 "📜 Правила",
		"help":                       "❓ Помощь",
		"help_text":                  "📜 *Команды:*\n/start - Главное меню\n/profile - Создать профиль\n/myprofile - Мой профиль\n/edit - Редактировать профиль\n/matches - Найти пары\n/stats - Статистика\n/language - Сменить язык\n/rules - Правила\n/cancel - Отменить текущий шаг",
		"rules_text":                 "📜 *Правила*\n\n1. Будьте вежливы\n2. Без спама\n3. Только для студентов\n\nНарушение правил может привести к блокировке.",
		"use_menu":                   "Я не понял. Используйте /help, чтобы увидеть список команд.",
		"profile_exists":             "У вас уже есть профиль. Откройте его через /myprofile или измените через /edit.",
		"no_profile":                 "У вас ещё нет профиля. Создайте его командой /profile.",
		"no_embedding":               "Профиль сохранён, но пока не готов к подбору. Попробуйте позже или пересохраните поле через /edit.",
		"ask_university":             "🎓 Из какого вы университета или организации?",
		"ask_year":                   "Отлично, *%s*! На каком вы курсе?",
		"ask_skills":                 "*%s*, записал. Перечислите ваши навыки через запятую (например, Python, Дизайн).",
		"ask_interests":              "Что вам интересно? Перечислите через запятую.",
		"ask_goals":                  "И наконец, какие у вас цели?",
		"enter_uni":                  "Введите ваш университет или организацию:",
		"enter_year":                 "Выберите курс:",
		"enter_skills":               "Введите навыки через запятую:",
		"enter_interests":            "Введите интересы через запятую:",
		"enter_goals":                "Введите ваши цели:",
		"invalid_input":              "Пожалуйста, отправьте непустой ответ.",
		"no_session":                 "Нечего продолжать. Начните с /profile.",
		"commit_busy":                "Профиль ещё сохраняется, подождите немного.",
		"cancel":                     "❌ Отмена",
		"wizard_cancelled":           "Отменено. Ничего не сохранено.",
		"nothing_to_cancel":          "Нечего отменять.",
		"profile_updated":            "✅ Профиль сохранён!",
		"profile_saved_no_embedding": "✅ Профиль сохранён, но подбор для него временно недоступен. Мы попробуем позже.",
		"my_profile_title":           "👤 *Ваш профиль*",
		"uni":                        "🎓 Университет:",
		"year":                       "📅 Курс:",
		"skills":                     "🛠 Навыки:",
		"interests":                  "💡 Интересы:",
		"goals":                      "🎯 Цели:",
		"last_updated":               "🕒 Обновлено: %s",
		"edit_profile":               "✏️ Редактировать",
		"edit_menu_title":            "✏️ *Что вы хотите изменить?*",
		"edit_uni":                   "Университет",
		"edit_year":                  "Курс",
		"edit_skills":                "Навыки",
		"edit_interests":             "Интересы",
		"edit_goals":                 "Цели",
		"restart_wizard":             "🔄 Заполнить заново",
		"delete_profile":             "🗑 Удалить профиль",
		"done":                       "Готово",
		"confirm_delete":             "⚠️ *Удалить профиль?* Это действие нельзя отменить.",
		"yes_delete":                 "Да, удалить",
		"no_keep":                    "Нет, оставить",
		"profile_deleted":            "Ваш профиль удалён.",
		"rate_limited":               "⏳ Искать пары снова можно через %d мин %d сек.",
		"no_matches":                 "Пока никого не нашлось. Загляните позже!",
		"matches_found":              "🎉 Найдено пар: *%d*",
		"match_item":                 "*Пара #%d:* %s (сходство %.2f)\n💡 _Причина:_ %s.",
		"report_user":                "🚩 Пожаловаться",
		"user_reported":              "Спасибо, жалоба отправлена.",
		"report_self":                "Нельзя пожаловаться на себя.",
		"user_not_found":             "Этого пользователя больше нет.",
		"report_hint":                "Чтобы пожаловаться, нажмите 🚩 под карточкой пары. Мы рассмотрим жалобу.",
		"stats_text":                 "📊 *Статистика*\n\n👥 Всего пользователей: %d\n🔥 Популярный навык: %s",
		"unknown_action":             "Эта кнопка больше не активна.",
	},
}

// tr looks up key in lang, falling back to English, and formats args into it.
func tr(lang, key string, args ...any) string {
	table := catalog[profile.NormalizeLanguage(lang)]
	s, ok := table[key]
	if !ok {
		s, ok = catalog[profile.DefaultLanguage][key]
		if !ok {
			return key
		}
	}
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}
