package bot

import (
	"strings"

	"github.com/spigell/peermatch/internal/profile"
	"github.com/spigell/peermatch/internal/wizard"
)

func languagePicker() Message {
	return Message{
		Text: tr("en", "lang_select"),
		Buttons: [][]Button{{
			{Text: "English 🇺🇸", Token: tokenLangPrefix + "en"},
			{Text: "Русский 🇷🇺", Token: tokenLangPrefix + "ru"},
		}},
	}
}

func homeKeyboard(lang string) [][]Button {
	return [][]Button{
		{{Text: tr(lang, "start_wizard"), Token: tokenStartWizard}},
		{{Text: tr(lang, "find_matches"), Token: tokenStartMatching}},
		{
			{Text: tr(lang, "view_rules"), Token: tokenViewRules},
			{Text: tr(lang, "help"), Token: tokenHelp},
		},
	}
}

func editKeyboard(lang string) [][]Button {
	edit := func(key string, f wizard.Field) Button {
		return Button{Text: tr(lang, key), Token: tokenEditPrefix + string(f)}
	}
	return [][]Button{
		{edit("edit_uni", wizard.FieldAffiliation), edit("edit_year", wizard.FieldStage)},
		{edit("edit_skills", wizard.FieldSkills), edit("edit_interests", wizard.FieldInterests)},
		{edit("edit_goals", wizard.FieldGoals)},
		{{Text: tr(lang, "restart_wizard"), Token: tokenEditAll}},
		{{Text: tr(lang, "delete_profile"), Token: tokenConfirmDelete}},
		{{Text: tr(lang, "done"), Token: tokenFinishEdit}},
	}
}

// stageKeyboard lays the stage enumeration out two per row.
func stageKeyboard(lang string) [][]Button {
	var rows [][]Button
	var row []Button
	for _, s := range profile.Stages() {
		row = append(row, Button{Text: s.Label(lang), Token: tokenYearPrefix + s.Code})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func cancelRow(lang string) []Button {
	return []Button{{Text: tr(lang, "cancel"), Token: tokenCancelWizard}}
}

// prompt asks for the input the session is waiting for.
func prompt(sess wizard.Session) Message {
	lang := sess.Language
	single := sess.Mode == wizard.ModeSingle

	var msg Message
	switch sess.State {
	case wizard.AwaitingAffiliation:
		msg.Text = pick(single, tr(lang, "enter_uni"), tr(lang, "ask_university"))
	case wizard.AwaitingStage:
		msg.Text = pick(single, tr(lang, "enter_year"), tr(lang, "ask_year", sess.Collected.Affiliation))
		msg.Buttons = stageKeyboard(lang)
	case wizard.AwaitingSkills:
		msg.Text = pick(single, tr(lang, "enter_skills"), tr(lang, "ask_skills", sess.Collected.Stage))
	case wizard.AwaitingInterests:
		msg.Text = pick(single, tr(lang, "enter_interests"), tr(lang, "ask_interests"))
	case wizard.AwaitingGoals:
		msg.Text = pick(single, tr(lang, "enter_goals"), tr(lang, "ask_goals"))
	default:
		msg.Text = tr(lang, "no_session")
		return msg
	}
	msg.Buttons = append(msg.Buttons, cancelRow(lang))
	return msg
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

func formatProfile(p *profile.Profile, lang string) string {
	var b strings.Builder
	b.WriteString(tr(lang, "my_profile_title"))
	b.WriteString("\n\n")
	line := func(key, value string) {
		b.WriteString(tr(lang, key))
		b.WriteString(" ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	line("uni", p.Affiliation)
	line("year", p.Stage)
	line("skills", strings.Join(p.Skills, ", "))
	line("interests", strings.Join(p.Interests, ", "))
	line("goals", p.Goals)
	if !p.LastUpdated.IsZero() {
		b.WriteString("\n")
		b.WriteString(tr(lang, "last_updated", p.LastUpdated.UTC().Format("2006-01-02 15:04")))
	}
	return strings.TrimRight(b.String(), "\n")
}
